/*
Copyright Trust Data Format Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package entity

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/trustdataformat/kas-go/pkg/kaserrors"
)

const claimsJSON = `{
	"preferred_username": "alice@example.com",
	"tdf_claims": {
		"client_public_signing_key": "-----BEGIN PUBLIC KEY-----\nMA==\n-----END PUBLIC KEY-----",
		"entitlements": [
			{
				"entity_identifier": "alice@example.com",
				"entity_attributes": [
					{"attribute": "https://acme.example.com/attr/proj/value/x"},
					{"attribute": "https://acme.example.com/attr/proj/value/y"}
				]
			},
			{
				"entity_identifier": "laptop-01",
				"entity_attributes": [
					{"attribute": "https://acme.example.com/attr/proj/value/x"}
				]
			}
		]
	}
}`

func decodeClaims(t *testing.T, raw string) *Claims {
	t.Helper()

	claims := &Claims{}
	require.NoError(t, json.Unmarshal([]byte(raw), claims))

	return claims
}

func TestValidate(t *testing.T) {
	t.Run("signing key present", func(t *testing.T) {
		require.NoError(t, decodeClaims(t, claimsJSON).Validate())
	})

	t.Run("signing key missing", func(t *testing.T) {
		err := (&Claims{}).Validate()
		require.Error(t, err)
		require.Equal(t, kaserrors.Claims, kaserrors.KindOf(err))
	})
}

func TestAttributeSets(t *testing.T) {
	claims := decodeClaims(t, claimsJSON)

	sets, err := claims.AttributeSets()
	require.NoError(t, err)
	require.Len(t, sets, 2)

	require.Equal(t, 2, sets[0].Len())
	require.Equal(t, 1, sets[1].Len())
}

func TestAttributeSetsBadAttribute(t *testing.T) {
	claims := decodeClaims(t, claimsJSON)
	claims.TDFClaims.Entitlements[1].EntityAttributes[0].Attribute = "not-a-uri"

	_, err := claims.AttributeSets()
	require.Error(t, err)
	require.Equal(t, kaserrors.Claims, kaserrors.KindOf(err))
}

func TestFromClaims(t *testing.T) {
	claims := decodeClaims(t, claimsJSON)

	ent, err := FromClaims(claims, nil)
	require.NoError(t, err)

	require.Equal(t, "alice@example.com", ent.UserID)
	// Union of both entitlements, duplicates collapsed.
	require.Equal(t, 2, ent.Attributes.Len())
}

func TestFromClaimsNoEntitlements(t *testing.T) {
	ent, err := FromClaims(&Claims{PreferredUsername: "bob@example.com"}, nil)
	require.NoError(t, err)
	require.Equal(t, 0, ent.Attributes.Len())
}
