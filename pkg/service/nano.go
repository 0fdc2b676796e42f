/*
Copyright Trust Data Format Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package service

import (
	"bytes"
	"crypto/ecdsa"
	"encoding/base64"

	kascrypto "github.com/trustdataformat/kas-go/pkg/crypto"
	"github.com/trustdataformat/kas-go/pkg/entity"
	"github.com/trustdataformat/kas-go/pkg/kaserrors"
	"github.com/trustdataformat/kas-go/pkg/keymaster"
	"github.com/trustdataformat/kas-go/pkg/nanotdf"
	"github.com/trustdataformat/kas-go/pkg/policy"
	"github.com/trustdataformat/kas-go/pkg/reqcontext"
	"github.com/trustdataformat/kas-go/pkg/tdf3"
)

const rewrapTagSize = 16

// nanoRewrap parses the header, checks the policy binding, recovers the
// payload key by ECDH against the KAS EC key, recovers the policy, runs the
// rewrap plugins, adjudicates, then wraps the key for the requester under a
// fresh session key.
func (s *Service) nanoRewrap(requestBody *tdf3.RequestBody, ent *entity.Entity,
	sets []*policy.AttributeSet, ctx *reqcontext.Context) (*RewrapResponse, error) {
	if requestBody.KeyAccess == nil || requestBody.KeyAccess.Header == "" {
		return nil, kaserrors.New(kaserrors.BadRequest, "request carries no container header")
	}

	headerBytes, err := base64.StdEncoding.DecodeString(requestBody.KeyAccess.Header)
	if err != nil {
		return nil, kaserrors.Wrap(kaserrors.BadRequest, err, "header is not base64")
	}

	header, err := nanotdf.ParseHeader(bytes.NewReader(headerBytes))
	if err != nil {
		return nil, err
	}

	if err := header.VerifyBinding(); err != nil {
		return nil, err
	}

	kasKey, err := s.km.ECPrivateKey(keymaster.KeyKASECPrivate)
	if err != nil {
		return nil, err
	}

	ephemeral, err := header.EphemeralKey()
	if err != nil {
		return nil, err
	}

	secret, err := kascrypto.SharedSecret(kasKey, ephemeral)
	if err != nil {
		return nil, err
	}

	defer kascrypto.Zeroize(secret)

	dek, err := kascrypto.DeriveSymmetricKey(secret)
	if err != nil {
		return nil, err
	}

	defer kascrypto.Zeroize(dek)

	pol, err := s.recoverPolicy(header, dek, ctx)
	if err != nil {
		return nil, err
	}

	partial, err := s.runRewrapPlugins(pol, ent, nil, ctx)
	if err != nil {
		return nil, err
	}

	if partial.EntityWrappedKey != "" {
		return &RewrapResponse{EntityWrappedKey: partial.EntityWrappedKey, Metadata: partial.Metadata}, nil
	}

	if partial.KASWrappedKey != nil {
		rsaKey, err := s.km.RSAPrivateKey(keymaster.KeyKASPrivate)
		if err != nil {
			return nil, err
		}

		override, err := kascrypto.UnwrapKeyRSA(partial.KASWrappedKey, rsaKey)
		if err != nil {
			return nil, err
		}

		defer kascrypto.Zeroize(override)

		dek = override
	}

	if err := s.adjudicate(pol, ent, sets); err != nil {
		return nil, err
	}

	resp, err := s.wrapForSession(dek, ent, s.legacyIV && legacyClientVersionAllowed(ctx))
	if err != nil {
		return nil, err
	}

	resp.Metadata = partial.Metadata

	return resp, nil
}

// recoverPolicy materialises the header's policy. Encrypted bodies are
// sealed under the derived key with a zero IV; the 3-byte zero IV of early
// producers is accepted only under the legacy flag and only for clients
// that predate the widened IV.
func (s *Service) recoverPolicy(header *nanotdf.Header, dek []byte,
	ctx *reqcontext.Context) (*policy.Policy, error) {
	switch header.Policy.Type {
	case nanotdf.PolicyRemote:
		return policy.NewRemote(header.Policy.Remote.URL()), nil
	case nanotdf.PolicyPlaintext:
		return policyFromBody(header.Policy.Body)
	case nanotdf.PolicyEncrypted:
		plaintext, err := s.decryptPolicy(header, dek, ctx)
		if err != nil {
			return nil, err
		}

		return policyFromBody(plaintext)
	}

	return nil, kaserrors.New(kaserrors.NanoTDFParse, "unsupported policy type %d", header.Policy.Type)
}

func policyFromBody(body []byte) (*policy.Policy, error) {
	return policy.FromRawCanonical(base64.StdEncoding.EncodeToString(body))
}

func (s *Service) decryptPolicy(header *nanotdf.Header, dek []byte, ctx *reqcontext.Context) ([]byte, error) {
	tagSize, err := header.Cipher.TagSize()
	if err != nil {
		return nil, err
	}

	body := header.Policy.Body
	if len(body) < tagSize {
		return nil, kaserrors.New(kaserrors.NanoTDFParse, "encrypted policy too short")
	}

	ciphertext := body[:len(body)-tagSize]
	tag := body[len(body)-tagSize:]

	plaintext, err := kascrypto.DecryptGCM(dek, make([]byte, kascrypto.GCMStandardIVSize), ciphertext, tag)
	if err == nil {
		return plaintext, nil
	}

	if s.legacyIV && legacyClientVersionAllowed(ctx) {
		legacy, legacyErr := kascrypto.DecryptGCM(dek, make([]byte, nanotdf.PayloadIVSize), ciphertext, tag)
		if legacyErr == nil {
			logger.Debugf("policy decrypted with legacy 3-byte IV")
			return legacy, nil
		}
	}

	return nil, err
}

// wrapForSession encrypts the recovered key under a fresh session KEK
// derived against the requester's EC public key. Under legacyWrap the blob
// carries the 3-byte IV that clients predating the widened IV expect.
func (s *Service) wrapForSession(dek []byte, ent *entity.Entity, legacyWrap bool) (*RewrapResponse, error) {
	requesterKey, ok := ent.PublicKey.(*ecdsa.PublicKey)
	if !ok {
		return nil, kaserrors.New(kaserrors.BadRequest, "entity public key is not EC")
	}

	curve, err := kascrypto.CurveOf(requesterKey)
	if err != nil {
		return nil, kaserrors.Wrap(kaserrors.BadRequest, err, "entity key curve unsupported")
	}

	session, err := kascrypto.GenerateECKeyPair(curve)
	if err != nil {
		return nil, err
	}

	secret, err := kascrypto.SharedSecret(session, requesterKey)
	if err != nil {
		return nil, err
	}

	defer kascrypto.Zeroize(secret)

	kek, err := kascrypto.DeriveSymmetricKey(secret)
	if err != nil {
		return nil, err
	}

	defer kascrypto.Zeroize(kek)

	ivSize := kascrypto.GCMStandardIVSize
	if legacyWrap {
		ivSize = nanotdf.PayloadIVSize
	}

	iv := kascrypto.RandomIV(ivSize)

	ciphertext, tag, err := kascrypto.EncryptGCM(kek, iv, dek, rewrapTagSize)
	if err != nil {
		return nil, err
	}

	blob := make([]byte, 0, len(iv)+len(ciphertext)+len(tag))
	blob = append(blob, iv...)
	blob = append(blob, ciphertext...)
	blob = append(blob, tag...)

	sessionPEM, err := kascrypto.ExportPublicKeyPEM(&session.PublicKey)
	if err != nil {
		return nil, err
	}

	return &RewrapResponse{
		EntityWrappedKey: base64.StdEncoding.EncodeToString(blob),
		SessionPublicKey: sessionPEM,
	}, nil
}
