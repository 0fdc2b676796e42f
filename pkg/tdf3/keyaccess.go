/*
Copyright Trust Data Format Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package tdf3 models the TDF3 key access object and the rewrap request
// bodies that carry it.
package tdf3

import (
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"regexp"

	kascrypto "github.com/trustdataformat/kas-go/pkg/crypto"
	"github.com/trustdataformat/kas-go/pkg/kaserrors"
)

// Key access object types.
const (
	TypeRemote  = "remote"
	TypeWrapped = "wrapped"

	protocolKAS = "kas"
)

var kasURLCheck = regexp.MustCompile(`(?i)^https?://[^\s]+$`)

// PolicyBinding is the KAO binding field. The wire carries either a bare
// base64 string or an {alg, hash} object.
type PolicyBinding struct {
	Alg  string `json:"alg,omitempty"`
	Hash string `json:"hash"`
}

// UnmarshalJSON accepts both binding shapes.
func (b *PolicyBinding) UnmarshalJSON(data []byte) error {
	var bare string
	if json.Unmarshal(data, &bare) == nil {
		b.Hash = bare
		return nil
	}

	type alias PolicyBinding

	var obj alias
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}

	*b = PolicyBinding(obj)

	return nil
}

// RawKeyAccess is the KAO as it appears in a rewrap request.
type RawKeyAccess struct {
	Type              string          `json:"type"`
	URL               string          `json:"url"`
	Protocol          string          `json:"protocol"`
	Header            string          `json:"header,omitempty"`
	WrappedKey        string          `json:"wrappedKey,omitempty"`
	PolicyBinding     *PolicyBinding  `json:"policyBinding,omitempty"`
	EncryptedMetadata string          `json:"encryptedMetadata,omitempty"`
	PolicySyncOptions json.RawMessage `json:"policySyncOptions,omitempty"`
}

// KeyAccess is a validated KAO with the DEK unwrapped. PlainKey is only set
// for wrapped-type objects parsed with the KAS private key.
type KeyAccess struct {
	Type              string
	URL               string
	Protocol          string
	WrappedKey        []byte
	PlainKey          []byte
	PolicyBinding     *PolicyBinding
	Metadata          map[string]interface{}
	PolicySyncOptions json.RawMessage
}

// FromRaw validates a raw KAO, unwraps the DEK with the KAS private key, and
// checks the policy binding against the canonical policy bytes. privateKey
// may be nil for upsert paths that only need validation.
func FromRaw(raw *RawKeyAccess, privateKey *rsa.PrivateKey, canonicalPolicy []byte) (*KeyAccess, error) {
	if raw.Type != TypeRemote && raw.Type != TypeWrapped {
		return nil, kaserrors.New(kaserrors.KeyAccess, "unknown key access type %q", raw.Type)
	}

	if raw.Protocol != protocolKAS {
		return nil, kaserrors.New(kaserrors.KeyAccess, "unknown protocol %q", raw.Protocol)
	}

	if !kasURLCheck.MatchString(raw.URL) {
		return nil, kaserrors.New(kaserrors.KeyAccess, "malformed kas url")
	}

	kao := &KeyAccess{
		Type:              raw.Type,
		URL:               raw.URL,
		Protocol:          raw.Protocol,
		PolicyBinding:     raw.PolicyBinding,
		PolicySyncOptions: raw.PolicySyncOptions,
	}

	if raw.WrappedKey != "" {
		wrapped, err := base64.StdEncoding.DecodeString(raw.WrappedKey)
		if err != nil {
			return nil, kaserrors.Wrap(kaserrors.KeyAccess, err, "wrapped key is not base64")
		}

		kao.WrappedKey = wrapped

		if privateKey != nil {
			plain, err := kascrypto.UnwrapKeyRSA(wrapped, privateKey)
			if err != nil {
				return nil, err
			}

			kao.PlainKey = plain
		}
	}

	if kao.PlainKey != nil && canonicalPolicy != nil {
		if err := kao.verifyBinding(canonicalPolicy); err != nil {
			return nil, err
		}
	}

	if raw.EncryptedMetadata != "" && kao.PlainKey != nil {
		metadata, err := decryptMetadata(raw.EncryptedMetadata, kao.PlainKey)
		if err != nil {
			return nil, err
		}

		kao.Metadata = metadata
	}

	return kao, nil
}

// verifyBinding checks HMAC(DEK, canonicalPolicy) against the binding hash.
// The hash travels as base64 over the lowercase hex digest.
func (k *KeyAccess) verifyBinding(canonicalPolicy []byte) error {
	if k.PolicyBinding == nil || k.PolicyBinding.Hash == "" {
		return kaserrors.New(kaserrors.PolicyBinding, "key access object carries no binding")
	}

	claimed, err := base64.StdEncoding.DecodeString(k.PolicyBinding.Hash)
	if err != nil {
		return kaserrors.Wrap(kaserrors.PolicyBinding, err, "binding is not base64")
	}

	expected := kascrypto.HMACDigestHex(k.PlainKey, canonicalPolicy)

	if !kascrypto.HMACEqual(claimed, []byte(expected)) {
		return kaserrors.New(kaserrors.PolicyBinding, "policy binding mismatch")
	}

	return nil
}

type encryptedMetadata struct {
	Ciphertext string `json:"ciphertext"`
	IV         string `json:"iv"`
}

// decryptMetadata opens the GCM-sealed metadata blob with the DEK. The
// ciphertext field carries iv || ct || tag; a tag failure here is a malformed
// request, not an access denial.
func decryptMetadata(raw string, dek []byte) (map[string]interface{}, error) {
	blob, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, kaserrors.Wrap(kaserrors.BadRequest, err, "metadata is not base64")
	}

	var envelope encryptedMetadata
	if err := json.Unmarshal(blob, &envelope); err != nil {
		return nil, kaserrors.Wrap(kaserrors.BadRequest, err, "metadata envelope is not JSON")
	}

	sealed, err := base64.StdEncoding.DecodeString(envelope.Ciphertext)
	if err != nil {
		return nil, kaserrors.Wrap(kaserrors.BadRequest, err, "metadata ciphertext is not base64")
	}

	if len(sealed) < kascrypto.GCMStandardIVSize+16 {
		return nil, kaserrors.New(kaserrors.BadRequest, "metadata ciphertext too short")
	}

	iv := sealed[:kascrypto.GCMStandardIVSize]
	tag := sealed[len(sealed)-16:]
	ciphertext := sealed[kascrypto.GCMStandardIVSize : len(sealed)-16]

	plaintext, err := kascrypto.DecryptGCM(dek, iv, ciphertext, tag)
	if err != nil {
		return nil, kaserrors.Wrap(kaserrors.InvalidTag, err, "metadata tag mismatch")
	}

	var metadata map[string]interface{}
	if err := json.Unmarshal(plaintext, &metadata); err != nil {
		return nil, kaserrors.Wrap(kaserrors.BadRequest, err, "metadata is not JSON")
	}

	return metadata, nil
}
