/*
Copyright Trust Data Format Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package tdf3

import (
	"encoding/json"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/trustdataformat/kas-go/pkg/kaserrors"
)

// rewrapRequestSchema accepts either the legacy envelope or the OIDC signed
// envelope. Field-level validation happens after parsing; the schema gates
// shape only.
const rewrapRequestSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"anyOf": [
		{"required": ["signedRequestToken"]},
		{"required": ["keyAccess", "policy"]}
	],
	"properties": {
		"signedRequestToken": {"type": "string"},
		"entity": {"type": "object"},
		"authToken": {"type": "string"},
		"keyAccess": {"type": "object"},
		"policy": {"type": "string"},
		"algorithm": {"type": "string"}
	}
}`

var rewrapSchema = gojsonschema.NewStringLoader(rewrapRequestSchema) //nolint:gochecknoglobals

// LegacyEntity is the entity object of the pre-OIDC envelope.
type LegacyEntity struct {
	UserID          string          `json:"userId"`
	PublicKey       string          `json:"publicKey"`
	SignerPublicKey string          `json:"signerPublicKey,omitempty"`
	Cert            string          `json:"cert,omitempty"`
	Attributes      json.RawMessage `json:"attributes,omitempty"`
}

// RewrapRequest is the outer rewrap body, either form.
type RewrapRequest struct {
	SignedRequestToken string        `json:"signedRequestToken,omitempty"`
	Entity             *LegacyEntity `json:"entity,omitempty"`
	AuthToken          string        `json:"authToken,omitempty"`
	KeyAccess          *RawKeyAccess `json:"keyAccess,omitempty"`
	Policy             string        `json:"policy,omitempty"`
	Algorithm          string        `json:"algorithm,omitempty"`
}

// RequestBody is the inner JSON of a signed request token.
type RequestBody struct {
	ClientPublicKey string        `json:"clientPublicKey,omitempty"`
	Entity          *LegacyEntity `json:"entity,omitempty"`
	KeyAccess       *RawKeyAccess `json:"keyAccess,omitempty"`
	Policy          string        `json:"policy,omitempty"`
	Algorithm       string        `json:"algorithm,omitempty"`
}

// ParseRewrapRequest schema-validates and decodes a rewrap body.
func ParseRewrapRequest(body []byte) (*RewrapRequest, error) {
	result, err := gojsonschema.Validate(rewrapSchema, gojsonschema.NewBytesLoader(body))
	if err != nil {
		return nil, kaserrors.Wrap(kaserrors.BadRequest, err, "request is not JSON")
	}

	if !result.Valid() {
		return nil, kaserrors.New(kaserrors.BadRequest, "request failed validation: %v", result.Errors())
	}

	var req RewrapRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, kaserrors.Wrap(kaserrors.BadRequest, err, "request body undecodable")
	}

	return &req, nil
}

// ParseRequestBody decodes the requestBody string from a verified request
// token. Some SDKs emit it with single quotes; those are rewritten before
// parsing, matching the service this replaces.
func ParseRequestBody(raw string) (*RequestBody, error) {
	if !strings.Contains(raw, `"`) {
		raw = strings.ReplaceAll(raw, "'", `"`)
	}

	var body RequestBody
	if err := json.Unmarshal([]byte(raw), &body); err != nil {
		return nil, kaserrors.Wrap(kaserrors.BadRequest, err, "requestBody is not JSON")
	}

	if body.KeyAccess == nil {
		return nil, kaserrors.New(kaserrors.BadRequest, "requestBody has no keyAccess")
	}

	return &body, nil
}
