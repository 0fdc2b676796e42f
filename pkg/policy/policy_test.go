/*
Copyright Trust Data Format Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package policy

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/trustdataformat/kas-go/pkg/kaserrors"
)

func canonical(t *testing.T, raw string) string {
	t.Helper()
	return base64.StdEncoding.EncodeToString([]byte(raw))
}

func TestFromRawCanonical(t *testing.T) {
	raw := canonical(t, `{"uuid":"u1","body":{"dataAttributes":[`+
		`{"attribute":"https://acme.example.com/attr/proj/value/x"}],"dissem":["alice@example.com"]}}`)

	pol, err := FromRawCanonical(raw)
	require.NoError(t, err)

	require.Equal(t, "u1", pol.UUID())
	require.Equal(t, []byte(raw), pol.CanonicalBytes())
	require.Equal(t, 1, pol.DataAttributes.Len())
	require.True(t, pol.Dissem.Contains("alice@example.com"))
}

func TestFromRawCanonicalBareString(t *testing.T) {
	raw := canonical(t, `"https://kas.example.com/policy/abc"`)

	pol, err := FromRawCanonical(raw)
	require.NoError(t, err)

	require.Equal(t, "https://kas.example.com/policy/abc", pol.UUID())
	require.Equal(t, 0, pol.DataAttributes.Len())
	require.Equal(t, 0, pol.Dissem.Len())
}

func TestFromRawCanonicalRejects(t *testing.T) {
	t.Run("not base64", func(t *testing.T) {
		_, err := FromRawCanonical("%%%")
		require.Equal(t, kaserrors.Policy, kaserrors.KindOf(err))
	})

	t.Run("not json", func(t *testing.T) {
		_, err := FromRawCanonical(canonical(t, "{{{"))
		require.Equal(t, kaserrors.Policy, kaserrors.KindOf(err))
	})

	t.Run("no uuid", func(t *testing.T) {
		_, err := FromRawCanonical(canonical(t, `{"body":{"dataAttributes":[],"dissem":[]}}`))
		require.Equal(t, kaserrors.Policy, kaserrors.KindOf(err))
	})

	t.Run("bad attribute", func(t *testing.T) {
		_, err := FromRawCanonical(canonical(t,
			`{"uuid":"u1","body":{"dataAttributes":[{"attribute":"nope"}],"dissem":[]}}`))
		require.Equal(t, kaserrors.InvalidAttribute, kaserrors.KindOf(err))
	})
}

func TestCanonicalBytesAreACopy(t *testing.T) {
	raw := canonical(t, `{"uuid":"u1","body":{"dataAttributes":[],"dissem":[]}}`)

	pol, err := FromRawCanonical(raw)
	require.NoError(t, err)

	stolen := pol.CanonicalBytes()
	stolen[0] ^= 0xFF

	require.Equal(t, []byte(raw), pol.CanonicalBytes())
}

func TestNewRemote(t *testing.T) {
	pol := NewRemote("https://kas.example.com/policy/abc")

	require.Equal(t, "https://kas.example.com/policy/abc", pol.UUID())
	require.Equal(t, 0, pol.DataAttributes.Len())
	require.Equal(t, 0, pol.Dissem.Len())
}

func TestCacheDefaultsToAllOf(t *testing.T) {
	cache := NewCache()

	p := cache.Get("https://acme.example.com/attr/proj")
	require.Equal(t, RuleAllOf, p.Rule)
	require.False(t, cache.Has("https://acme.example.com/attr/proj"))
}

func TestCacheLoadConfig(t *testing.T) {
	cache := NewCache()

	err := cache.LoadConfig([]RawAttributePolicy{
		{AuthorityNamespace: "https://acme.example.com", Name: "proj", Rule: "anyOf"},
		{AuthorityNamespace: "https://acme.example.com", Name: "class", Rule: "hierarchy",
			Order: []string{"TS", "S", "C", "U"}},
		{AuthorityNamespace: "https://acme.example.com", Name: "team", Rule: ""},
	})
	require.NoError(t, err)

	require.Equal(t, RuleAnyOf, cache.Get("https://acme.example.com/attr/proj").Rule)
	require.Equal(t, RuleAllOf, cache.Get("https://acme.example.com/attr/team").Rule)

	hierarchy := cache.Get("https://acme.example.com/attr/class")
	require.Equal(t, RuleHierarchy, hierarchy.Rule)
	require.Equal(t, 0, hierarchy.Rank("TS"))
	require.Equal(t, 3, hierarchy.Rank("U"))
	require.Equal(t, -1, hierarchy.Rank("X"))
}

func TestCacheLoadConfigRejects(t *testing.T) {
	t.Run("unknown rule", func(t *testing.T) {
		err := NewCache().LoadConfig([]RawAttributePolicy{
			{AuthorityNamespace: "https://acme.example.com", Name: "proj", Rule: "someOf"},
		})
		require.Equal(t, kaserrors.UnknownAttributePolicy, kaserrors.KindOf(err))
	})

	t.Run("hierarchy without order", func(t *testing.T) {
		err := NewCache().LoadConfig([]RawAttributePolicy{
			{AuthorityNamespace: "https://acme.example.com", Name: "class", Rule: "hierarchy"},
		})
		require.Equal(t, kaserrors.AttributePolicyConfig, kaserrors.KindOf(err))
	})

	t.Run("bad authority", func(t *testing.T) {
		err := NewCache().LoadConfig([]RawAttributePolicy{
			{AuthorityNamespace: "nope", Name: "proj", Rule: "allOf"},
		})
		require.Equal(t, kaserrors.AttributePolicyConfig, kaserrors.KindOf(err))
	})
}
