/*
Copyright Trust Data Format Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package entity models the requesting party: the claims decoded from a
// verified bearer token, and the Entity the adjudicator sees.
package entity

import (
	"github.com/trustdataformat/kas-go/pkg/kaserrors"
	"github.com/trustdataformat/kas-go/pkg/policy"
)

// Entitlement is one identity's attribute grant inside tdf_claims.
type Entitlement struct {
	EntityIdentifier string `json:"entity_identifier"`
	EntityAttributes []struct {
		Attribute string `json:"attribute"`
	} `json:"entity_attributes"`
}

// TDFClaims is the tdf_claims section of the bearer token.
type TDFClaims struct {
	ClientPublicSigningKey string        `json:"client_public_signing_key"`
	Entitlements           []Entitlement `json:"entitlements"`
}

// Claims is the subset of bearer token claims the KAS consumes.
type Claims struct {
	PreferredUsername string    `json:"preferred_username"`
	TDFClaims         TDFClaims `json:"tdf_claims"`
}

// Validate checks the claims carry what the rewrap path needs.
func (c *Claims) Validate() error {
	if c.TDFClaims.ClientPublicSigningKey == "" {
		return kaserrors.New(kaserrors.Claims, "token carries no client signing key")
	}

	return nil
}

// AttributeSets parses each entitlement's attributes into one set per
// identity, preserving the entitlement grouping for multi-entity
// adjudication.
func (c *Claims) AttributeSets() ([]*policy.AttributeSet, error) {
	sets := make([]*policy.AttributeSet, 0, len(c.TDFClaims.Entitlements))

	for _, ent := range c.TDFClaims.Entitlements {
		set := policy.NewAttributeSet()

		for _, ea := range ent.EntityAttributes {
			v, err := policy.ParseAttribute(ea.Attribute)
			if err != nil {
				return nil, kaserrors.Wrap(kaserrors.Claims, err,
					"entitlement %q carries a bad attribute", ent.EntityIdentifier)
			}

			set.Add(v)
		}

		sets = append(sets, set)
	}

	return sets, nil
}
