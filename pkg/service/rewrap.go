/*
Copyright Trust Data Format Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package service

import (
	"crypto"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"

	"github.com/trustdataformat/kas-go/pkg/access"
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

// RewrapResponse is the successful rewrap result.
type RewrapResponse struct {
	EntityWrappedKey string                 `json:"entityWrappedKey"`
	SessionPublicKey string                 `json:"sessionPublicKey,omitempty"`
	Metadata         map[string]interface{} `json:"metadata,omitempty"`
}

// requestTokenClaims is the payload of the signed request token.
type requestTokenClaims struct {
	RequestBody string `json:"requestBody"`
}

// RewrapV2 is the OIDC rewrap: verify the bearer, verify the inner signed
// request with the client's signing key, then dispatch on algorithm.
func (s *Service) RewrapV2(bearer string, body []byte, ctx *reqcontext.Context) (*RewrapResponse, error) {
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

	clientPublicKey := requestBody.ClientPublicKey
	if clientPublicKey == "" && requestBody.Entity != nil {
		clientPublicKey = requestBody.Entity.PublicKey
	}

	if clientPublicKey == "" {
		return nil, kaserrors.New(kaserrors.BadRequest, "requestBody carries no client public key")
	}

	publicKey, err := kascrypto.ParsePublicKey([]byte(clientPublicKey))
	if err != nil {
		return nil, kaserrors.Wrap(kaserrors.BadRequest, err, "client public key unparseable")
	}

	ent, err := entity.FromClaims(claims, publicKey)
	if err != nil {
		return nil, err
	}

	sets, err := claims.AttributeSets()
	if err != nil {
		return nil, err
	}

	if requestBody.Algorithm == AlgorithmECSecp256r1 {
		return s.nanoRewrap(requestBody, ent, sets, ctx)
	}

	return s.tdf3Rewrap(requestBody.Policy, requestBody.KeyAccess, ent, sets, ctx)
}

// Rewrap is the legacy entity-object rewrap: the request carries the entity
// and an authToken signed by the entity's own key.
func (s *Service) Rewrap(body []byte, ctx *reqcontext.Context) (*RewrapResponse, error) {
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

	if req.KeyAccess == nil {
		return nil, kaserrors.New(kaserrors.BadRequest, "request carries no keyAccess")
	}

	if req.Algorithm == AlgorithmECSecp256r1 {
		return s.nanoRewrap(&tdf3.RequestBody{KeyAccess: req.KeyAccess, Policy: req.Policy}, ent, nil, ctx)
	}

	return s.tdf3Rewrap(req.Policy, req.KeyAccess, ent, nil, ctx)
}

func legacyEntity(raw *tdf3.LegacyEntity, publicKey crypto.PublicKey) (*entity.Entity, error) {
	attrs := policy.NewAttributeSet()

	if len(raw.Attributes) > 0 {
		var entries []struct {
			Attribute string `json:"attribute"`
		}

		if err := json.Unmarshal(raw.Attributes, &entries); err != nil {
			return nil, kaserrors.Wrap(kaserrors.Entity, err, "entity attributes undecodable")
		}

		for _, e := range entries {
			v, err := policy.ParseAttribute(e.Attribute)
			if err != nil {
				return nil, err
			}

			attrs.Add(v)
		}
	}

	return &entity.Entity{UserID: raw.UserID, PublicKey: publicKey, Attributes: attrs}, nil
}

// tdf3Rewrap runs the §4.7 pipeline: parse policy, validate the KAO and its
// binding, run plugins, adjudicate, re-wrap under the entity key.
func (s *Service) tdf3Rewrap(rawPolicy string, rawKAO *tdf3.RawKeyAccess, ent *entity.Entity,
	sets []*policy.AttributeSet, ctx *reqcontext.Context) (*RewrapResponse, error) {
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

	dek := kao.PlainKey
	if dek == nil {
		return nil, kaserrors.New(kaserrors.KeyAccess, "key access object carries no wrapped key")
	}

	defer kascrypto.Zeroize(dek)

	partial, err := s.runRewrapPlugins(pol, ent, kao, ctx)
	if err != nil {
		return nil, err
	}

	if partial.EntityWrappedKey != "" {
		return &RewrapResponse{EntityWrappedKey: partial.EntityWrappedKey, Metadata: partial.Metadata}, nil
	}

	if partial.KASWrappedKey != nil {
		dek, err = kascrypto.UnwrapKeyRSA(partial.KASWrappedKey, privateKey)
		if err != nil {
			return nil, err
		}

		defer kascrypto.Zeroize(dek)
	}

	if err := s.adjudicate(pol, ent, sets); err != nil {
		return nil, err
	}

	entityRSAKey, ok := ent.PublicKey.(*rsa.PublicKey)
	if !ok {
		return nil, kaserrors.New(kaserrors.BadRequest, "entity public key is not RSA")
	}

	rewrapped, err := kascrypto.WrapKeyRSA(dek, entityRSAKey)
	if err != nil {
		return nil, err
	}

	return &RewrapResponse{
		EntityWrappedKey: base64.StdEncoding.EncodeToString(rewrapped),
		Metadata:         partial.Metadata,
	}, nil
}

func (s *Service) runRewrapPlugins(pol *policy.Policy, ent *entity.Entity, kao *tdf3.KeyAccess,
	ctx *reqcontext.Context) (*plugin.Response, error) {
	return s.plugins.Update(&plugin.Request{Policy: pol, Entity: ent, KeyAccess: kao, Context: ctx})
}

// adjudicate resolves attribute rules through the plugin fetchers into a
// request-scoped cache, then runs the single- or multi-entity decision.
func (s *Service) adjudicate(pol *policy.Policy, ent *entity.Entity,
	sets []*policy.AttributeSet) error {
	cache := policy.NewCache()

	namespaces := make([]string, 0, pol.DataAttributes.Len())
	for ns := range pol.DataAttributes.ClusterByNamespace() {
		namespaces = append(namespaces, ns)
	}

	if err := s.plugins.FetchAttributes(cache, namespaces); err != nil {
		return err
	}

	adjudicator := access.New(cache)

	if sets != nil {
		return adjudicator.CanAccessV2(pol, ent.UserID, sets)
	}

	return adjudicator.CanAccess(pol, ent)
}
