/*
Copyright Trust Data Format Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package service

import (
	"github.com/trustdataformat/kas-go/pkg/authtoken"
	kascrypto "github.com/trustdataformat/kas-go/pkg/crypto"
	"github.com/trustdataformat/kas-go/pkg/entity"
	"github.com/trustdataformat/kas-go/pkg/kaserrors"
	"github.com/trustdataformat/kas-go/pkg/keymaster"
	"github.com/trustdataformat/kas-go/pkg/plugin"
	"github.com/trustdataformat/kas-go/pkg/policy"
	"github.com/trustdataformat/kas-go/pkg/reqcontext"
	"github.com/trustdataformat/kas-go/pkg/tdf3"
)

// UpsertV2 is the OIDC plugin proxy: the same envelope auth as RewrapV2,
// then the upsert plugins run against the validated policy and KAO.
func (s *Service) UpsertV2(bearer string, body []byte, ctx *reqcontext.Context) ([]string, error) {
	claims, err := s.bearerClaims(bearer)
	if err != nil {
		return nil, err
	}

	outer, err := tdf3.ParseRewrapRequest(body)
	if err != nil {
		return nil, err
	}

	if outer.SignedRequestToken == "" {
		return nil, kaserrors.New(kaserrors.BadRequest, "request carries no signedRequestToken")
	}

	signingKey, err := kascrypto.ParsePublicKey([]byte(claims.TDFClaims.ClientPublicSigningKey))
	if err != nil {
		return nil, kaserrors.Wrap(kaserrors.Claims, err, "client signing key unparseable")
	}

	var tokenClaims requestTokenClaims
	if err := authtoken.Verify(outer.SignedRequestToken, signingKey, &tokenClaims); err != nil {
		return nil, err
	}

	requestBody, err := tdf3.ParseRequestBody(tokenClaims.RequestBody)
	if err != nil {
		return nil, err
	}

	ent := &entity.Entity{
		UserID:     claims.PreferredUsername,
		Attributes: policy.NewAttributeSet(),
	}

	return s.upsert(requestBody.Policy, requestBody.KeyAccess, ent, ctx)
}

// Upsert is the legacy plugin proxy.
func (s *Service) Upsert(body []byte, ctx *reqcontext.Context) ([]string, error) {
	req, err := tdf3.ParseRewrapRequest(body)
	if err != nil {
		return nil, err
	}

	if req.Entity == nil || req.AuthToken == "" {
		return nil, kaserrors.New(kaserrors.Entity, "request carries no entity auth")
	}

	publicKey, err := kascrypto.ParsePublicKey([]byte(req.Entity.PublicKey))
	if err != nil {
		return nil, kaserrors.Wrap(kaserrors.Entity, err, "entity public key unparseable")
	}

	var tokenClaims map[string]interface{}
	if err := authtoken.Verify(req.AuthToken, publicKey, &tokenClaims); err != nil {
		return nil, kaserrors.Wrap(kaserrors.Unauthorized, err, "authToken verification failed")
	}

	ent, err := legacyEntity(req.Entity, publicKey)
	if err != nil {
		return nil, err
	}

	return s.upsert(req.Policy, req.KeyAccess, ent, ctx)
}

func (s *Service) upsert(rawPolicy string, rawKAO *tdf3.RawKeyAccess, ent *entity.Entity,
	ctx *reqcontext.Context) ([]string, error) {
	if rawPolicy == "" || rawKAO == nil {
		return nil, kaserrors.New(kaserrors.BadRequest, "request carries no policy or keyAccess")
	}

	pol, err := policy.FromRawCanonical(rawPolicy)
	if err != nil {
		return nil, err
	}

	privateKey, err := s.km.RSAPrivateKey(keymaster.KeyKASPrivate)
	if err != nil {
		return nil, err
	}

	kao, err := tdf3.FromRaw(rawKAO, privateKey, pol.CanonicalBytes())
	if err != nil {
		return nil, err
	}

	if kao.PlainKey != nil {
		defer kascrypto.Zeroize(kao.PlainKey)
	}

	messages, err := s.plugins.Upsert(&plugin.Request{Policy: pol, Entity: ent, KeyAccess: kao, Context: ctx})
	if err != nil {
		return nil, err
	}

	return messages, nil
}
