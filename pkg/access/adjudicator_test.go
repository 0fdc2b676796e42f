/*
Copyright Trust Data Format Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package access

import (
	"encoding/base64"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/trustdataformat/kas-go/pkg/entity"
	"github.com/trustdataformat/kas-go/pkg/kaserrors"
	"github.com/trustdataformat/kas-go/pkg/policy"
)

const authority = "https://acme.example.com"

func attr(t *testing.T, name, value string) policy.AttributeValue {
	t.Helper()

	v, err := policy.ParseAttribute(fmt.Sprintf("%s/attr/%s/value/%s", authority, name, value))
	require.NoError(t, err)

	return v
}

func testPolicy(t *testing.T, dissem []string, attrs ...policy.AttributeValue) *policy.Policy {
	t.Helper()

	raw := `{"uuid":"u1","body":{"dataAttributes":[`
	for i, a := range attrs {
		if i > 0 {
			raw += ","
		}

		raw += fmt.Sprintf(`{"attribute":%q}`, a.String())
	}

	raw += `],"dissem":[`
	for i, d := range dissem {
		if i > 0 {
			raw += ","
		}

		raw += fmt.Sprintf("%q", d)
	}

	raw += `]}}`

	pol, err := policy.FromRawCanonical(base64.StdEncoding.EncodeToString([]byte(raw)))
	require.NoError(t, err)

	return pol
}

func testEntity(userID string, attrs ...policy.AttributeValue) *entity.Entity {
	return &entity.Entity{UserID: userID, Attributes: policy.NewAttributeSet(attrs...)}
}

func cacheWith(rule policy.Rule, name string, order ...string) *policy.Cache {
	cache := policy.NewCache()
	cache.Put(&policy.AttributePolicy{
		Namespace: authority + "/attr/" + name,
		Rule:      rule,
		Order:     order,
	})

	return cache
}

func TestDissem(t *testing.T) {
	adj := New(policy.NewCache())

	t.Run("empty dissem is wildcard", func(t *testing.T) {
		require.NoError(t, adj.CanAccess(testPolicy(t, nil), testEntity("eve@x")))
	})

	t.Run("member allowed", func(t *testing.T) {
		require.NoError(t, adj.CanAccess(testPolicy(t, []string{"alice@x"}), testEntity("alice@x")))
	})

	t.Run("non-member denied", func(t *testing.T) {
		err := adj.CanAccess(testPolicy(t, []string{"alice@x"}), testEntity("eve@x"))
		require.Error(t, err)
		require.Equal(t, kaserrors.Adjudicator, kaserrors.KindOf(err))
	})
}

func TestAllOf(t *testing.T) {
	projx := attr(t, "proj", "projx")
	fin := attr(t, "proj", "fin")
	extra := attr(t, "proj", "extra")

	adj := New(cacheWith(policy.RuleAllOf, "proj"))
	pol := testPolicy(t, nil, projx, fin)

	t.Run("superset grants", func(t *testing.T) {
		require.NoError(t, adj.CanAccess(pol, testEntity("u", projx, fin, extra)))
	})

	t.Run("missing value denies", func(t *testing.T) {
		err := adj.CanAccess(pol, testEntity("u", projx))
		require.Equal(t, kaserrors.Adjudicator, kaserrors.KindOf(err))
	})

	t.Run("missing namespace denies", func(t *testing.T) {
		err := adj.CanAccess(pol, testEntity("u"))
		require.Equal(t, kaserrors.Adjudicator, kaserrors.KindOf(err))
	})
}

func TestAnyOf(t *testing.T) {
	projx := attr(t, "proj", "projx")
	fin := attr(t, "proj", "fin")
	other := attr(t, "proj", "other")

	adj := New(cacheWith(policy.RuleAnyOf, "proj"))

	t.Run("overlap grants", func(t *testing.T) {
		require.NoError(t, adj.CanAccess(testPolicy(t, nil, projx, fin), testEntity("u", fin)))
	})

	t.Run("no overlap denies", func(t *testing.T) {
		err := adj.CanAccess(testPolicy(t, nil, projx, fin), testEntity("u", other))
		require.Equal(t, kaserrors.Adjudicator, kaserrors.KindOf(err))
	})
}

func TestHierarchy(t *testing.T) {
	secret := attr(t, "class", "s")
	topSecret := attr(t, "class", "topsecret")
	confidential := attr(t, "class", "c")

	adj := New(cacheWith(policy.RuleHierarchy, "class", "topsecret", "s", "c", "u"))
	pol := testPolicy(t, nil, secret)

	t.Run("higher rank grants", func(t *testing.T) {
		require.NoError(t, adj.CanAccess(pol, testEntity("u", topSecret)))
	})

	t.Run("equal rank grants", func(t *testing.T) {
		require.NoError(t, adj.CanAccess(pol, testEntity("u", secret)))
	})

	t.Run("lower rank denies", func(t *testing.T) {
		err := adj.CanAccess(pol, testEntity("u", confidential))
		require.Equal(t, kaserrors.Adjudicator, kaserrors.KindOf(err))
	})

	t.Run("absent value denies", func(t *testing.T) {
		err := adj.CanAccess(pol, testEntity("u"))
		require.Equal(t, kaserrors.Adjudicator, kaserrors.KindOf(err))
	})

	t.Run("unranked value denies", func(t *testing.T) {
		err := adj.CanAccess(pol, testEntity("u", attr(t, "class", "x")))
		require.Equal(t, kaserrors.Adjudicator, kaserrors.KindOf(err))
	})
}

func TestCanAccessV2AllOf(t *testing.T) {
	projx := attr(t, "proj", "projx")

	adj := New(cacheWith(policy.RuleAllOf, "proj"))
	pol := testPolicy(t, nil, projx)

	t.Run("every entity qualifies", func(t *testing.T) {
		sets := []*policy.AttributeSet{
			policy.NewAttributeSet(projx),
			policy.NewAttributeSet(projx, attr(t, "proj", "extra")),
		}
		require.NoError(t, adj.CanAccessV2(pol, "u", sets))
	})

	t.Run("one unqualified entity denies", func(t *testing.T) {
		sets := []*policy.AttributeSet{
			policy.NewAttributeSet(projx),
			policy.NewAttributeSet(),
		}
		err := adj.CanAccessV2(pol, "u", sets)
		require.Equal(t, kaserrors.Adjudicator, kaserrors.KindOf(err))
	})
}

func TestCanAccessV2AnyOf(t *testing.T) {
	projx := attr(t, "proj", "projx")
	fin := attr(t, "proj", "fin")

	adj := New(cacheWith(policy.RuleAnyOf, "proj"))
	pol := testPolicy(t, nil, projx, fin)

	t.Run("values split across entities grants", func(t *testing.T) {
		sets := []*policy.AttributeSet{
			policy.NewAttributeSet(projx),
			policy.NewAttributeSet(fin),
		}
		require.NoError(t, adj.CanAccessV2(pol, "u", sets))
	})

	t.Run("unheld value denies", func(t *testing.T) {
		sets := []*policy.AttributeSet{policy.NewAttributeSet(projx)}
		err := adj.CanAccessV2(pol, "u", sets)
		require.Equal(t, kaserrors.Adjudicator, kaserrors.KindOf(err))
	})
}

func TestCanAccessV2HierarchyWeakestLink(t *testing.T) {
	secret := attr(t, "class", "s")
	topSecret := attr(t, "class", "topsecret")
	confidential := attr(t, "class", "c")

	adj := New(cacheWith(policy.RuleHierarchy, "class", "topsecret", "s", "c", "u"))
	pol := testPolicy(t, nil, secret)

	t.Run("all entities strong enough", func(t *testing.T) {
		sets := []*policy.AttributeSet{
			policy.NewAttributeSet(topSecret),
			policy.NewAttributeSet(secret),
		}
		require.NoError(t, adj.CanAccessV2(pol, "u", sets))
	})

	t.Run("weakest entity decides", func(t *testing.T) {
		sets := []*policy.AttributeSet{
			policy.NewAttributeSet(topSecret),
			policy.NewAttributeSet(confidential),
		}
		err := adj.CanAccessV2(pol, "u", sets)
		require.Equal(t, kaserrors.Adjudicator, kaserrors.KindOf(err))
	})
}

func TestAdjudicatorDeterministic(t *testing.T) {
	projx := attr(t, "proj", "projx")

	adj := New(cacheWith(policy.RuleAllOf, "proj"))
	pol := testPolicy(t, nil, projx)
	ent := testEntity("u", projx)

	for i := 0; i < 10; i++ {
		require.NoError(t, adj.CanAccess(pol, ent))
	}
}
