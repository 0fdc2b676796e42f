/*
Copyright Trust Data Format Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package entity

import (
	"crypto"

	"github.com/trustdataformat/kas-go/pkg/policy"
)

// Entity is the adjudication view of a requester. PublicKey is the ephemeral
// key from the signed request body, the one the DEK gets re-wrapped under,
// not the bearer token's signing key. Attributes is the union of all
// entitlement grants.
type Entity struct {
	UserID     string
	PublicKey  crypto.PublicKey
	Attributes *policy.AttributeSet
}

// FromClaims builds the Entity for one request.
func FromClaims(claims *Claims, publicKey crypto.PublicKey) (*Entity, error) {
	sets, err := claims.AttributeSets()
	if err != nil {
		return nil, err
	}

	union := policy.NewAttributeSet()

	for _, set := range sets {
		for _, v := range set.Values() {
			union.Add(v)
		}
	}

	return &Entity{
		UserID:     claims.PreferredUsername,
		PublicKey:  publicKey,
		Attributes: union,
	}, nil
}
