/*
Copyright Trust Data Format Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package kaserrors defines the typed error kinds raised by the KAS core and
// their mapping onto HTTP status codes. Every failure on the rewrap path is
// one of these kinds; the front door converts them centrally so handlers
// never write status codes themselves.
package kaserrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind identifies a KAS error category.
type Kind int

// Error kinds. The 403 family is wide on purpose: integrity failures must be
// indistinguishable on the wire, the kind exists for logs only.
const (
	BadRequest Kind = iota
	Entity
	InvalidTag
	Unauthorized
	Forbidden
	Authorization
	Adjudicator
	PolicyBinding
	KeyAccess
	KeyNotFound
	Crypto
	Policy
	PolicyCreate
	PrivateKeyInvalid
	UnknownAttributePolicy
	JWT
	Claims
	NanoTDFParse
	InvalidAttribute
	PluginBackend
	PluginFailed
	PluginIsBad
	AttributePolicyConfig
	RequestTimeout
	PolicyNotFound
	RouteNotFound
	ContractNotFound
	Internal
)

var kindNames = map[Kind]string{ //nolint:gochecknoglobals
	BadRequest:             "bad request",
	Entity:                 "entity",
	InvalidTag:             "invalid tag",
	Unauthorized:           "unauthorized",
	Forbidden:              "forbidden",
	Authorization:          "authorization",
	Adjudicator:            "adjudicator",
	PolicyBinding:          "policy binding",
	KeyAccess:              "key access",
	KeyNotFound:            "key not found",
	Crypto:                 "crypto",
	Policy:                 "policy",
	PolicyCreate:           "policy create",
	PrivateKeyInvalid:      "private key invalid",
	UnknownAttributePolicy: "unknown attribute policy",
	JWT:                    "jwt",
	Claims:                 "claims",
	NanoTDFParse:           "nanotdf parse",
	InvalidAttribute:       "invalid attribute",
	PluginBackend:          "plugin backend",
	PluginFailed:           "plugin failed",
	PluginIsBad:            "plugin is bad",
	AttributePolicyConfig:  "attribute policy config",
	RequestTimeout:         "request timeout",
	PolicyNotFound:         "policy not found",
	RouteNotFound:          "route not found",
	ContractNotFound:       "contract not found",
	Internal:               "internal",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}

	return "internal"
}

// HTTPStatus returns the HTTP status code this kind surfaces as.
func (k Kind) HTTPStatus() int {
	switch k {
	case BadRequest, Entity, InvalidTag, NanoTDFParse:
		return http.StatusBadRequest
	case Unauthorized:
		return http.StatusUnauthorized
	case Forbidden, Authorization, Adjudicator, PolicyBinding, KeyAccess, KeyNotFound,
		Crypto, Policy, PolicyCreate, PrivateKeyInvalid, UnknownAttributePolicy, JWT, Claims:
		return http.StatusForbidden
	case PolicyNotFound, RouteNotFound, ContractNotFound:
		return http.StatusNotFound
	case InvalidAttribute, PluginBackend:
		return http.StatusBadGateway
	case RequestTimeout:
		return http.StatusServiceUnavailable
	case PluginFailed, PluginIsBad, AttributePolicyConfig, Internal:
		return http.StatusInternalServerError
	}

	return http.StatusInternalServerError
}

// KASError is an error with a Kind. The message is safe for logs; the wire
// response is derived from the kind alone.
type KASError struct {
	kind  Kind
	msg   string
	cause error
}

// New returns a KASError of the given kind.
func New(kind Kind, format string, args ...interface{}) *KASError {
	return &KASError{kind: kind, msg: fmt.Sprintf(format, args...)}
}

// Wrap returns a KASError of the given kind wrapping cause.
func Wrap(kind Kind, cause error, format string, args ...interface{}) *KASError {
	return &KASError{kind: kind, msg: fmt.Sprintf(format, args...), cause: cause}
}

func (e *KASError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.kind, e.msg, e.cause)
	}

	return fmt.Sprintf("%s: %s", e.kind, e.msg)
}

// Kind returns the error's kind.
func (e *KASError) Kind() Kind {
	return e.kind
}

// Unwrap returns the wrapped cause, if any.
func (e *KASError) Unwrap() error {
	return e.cause
}

// KindOf extracts the Kind from err. Errors without a kind are Internal.
func KindOf(err error) Kind {
	var kerr *KASError
	if errors.As(err, &kerr) {
		return kerr.kind
	}

	return Internal
}

// StatusOf returns the HTTP status for err.
func StatusOf(err error) int {
	return KindOf(err).HTTPStatus()
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	var kerr *KASError
	if errors.As(err, &kerr) {
		return kerr.kind == kind
	}

	return false
}
