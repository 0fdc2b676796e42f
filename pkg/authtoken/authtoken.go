/*
Copyright Trust Data Format Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package authtoken verifies the JWTs that arrive on the rewrap path: the
// OIDC bearer token from the identity provider and the signed request token
// from the client. Verification is two-step: an unverified peek selects the
// key (issuer realm), then the signature and time claims are checked.
package authtoken

import (
	"crypto"
	"os"
	"regexp"
	"strconv"
	"time"

	"github.com/go-jose/go-jose/v3"
	"github.com/go-jose/go-jose/v3/jwt"

	"github.com/trustdataformat/kas-go/pkg/kaserrors"
)

// Leeway bounds for clock skew between the KAS and the token issuer.
const (
	DefaultLeeway = 30 * time.Second
	MaxLeeway     = 120 * time.Second
)

var signingAlgorithms = []jose.SignatureAlgorithm{ //nolint:gochecknoglobals
	jose.RS256, jose.ES256, jose.ES384, jose.ES512,
}

var jwtShape = regexp.MustCompile(`^[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+\.([A-Za-z0-9_-]+)?$`)

// LooksLikeJWT reports whether raw has the three-part compact JWS shape.
// Legacy clients send opaque entity blobs in the same field, and those must
// not be routed into JWT parsing.
func LooksLikeJWT(raw string) bool {
	return jwtShape.MatchString(raw)
}

// Leeway returns the configured clock-skew allowance, clamped to
// [0, MaxLeeway]. Unset or unparseable values fall back to DefaultLeeway.
func Leeway() time.Duration {
	raw := os.Getenv("KAS_JWT_LEEWAY")
	if raw == "" {
		return DefaultLeeway
	}

	secs, err := strconv.Atoi(raw)
	if err != nil {
		return DefaultLeeway
	}

	if secs < 0 {
		return 0
	}

	leeway := time.Duration(secs) * time.Second
	if leeway > MaxLeeway {
		return MaxLeeway
	}

	return leeway
}

// PeekClaims decodes the token payload WITHOUT verifying the signature.
// Only use the result to select the verification key; never trust it.
func PeekClaims(raw string, out interface{}) error {
	token, err := jwt.ParseSigned(raw)
	if err != nil {
		return kaserrors.Wrap(kaserrors.JWT, err, "malformed token")
	}

	if err := token.UnsafeClaimsWithoutVerification(out); err != nil {
		return kaserrors.Wrap(kaserrors.JWT, err, "undecodable claims")
	}

	return nil
}

// Issuer returns the iss claim without verifying the token.
func Issuer(raw string) (string, error) {
	var claims jwt.Claims
	if err := PeekClaims(raw, &claims); err != nil {
		return "", err
	}

	return claims.Issuer, nil
}

// Verify checks the token signature against pub, validates exp/nbf with the
// configured leeway, and decodes the claims into out.
func Verify(raw string, pub crypto.PublicKey, out interface{}) error {
	token, err := jwt.ParseSigned(raw)
	if err != nil {
		return kaserrors.Wrap(kaserrors.JWT, err, "malformed token")
	}

	if len(token.Headers) == 0 {
		return kaserrors.New(kaserrors.JWT, "token has no signature header")
	}

	if !allowedAlgorithm(token.Headers[0].Algorithm) {
		return kaserrors.New(kaserrors.JWT, "disallowed signing algorithm %q", token.Headers[0].Algorithm)
	}

	var registered jwt.Claims
	if err := token.Claims(pub, &registered, out); err != nil {
		return kaserrors.Wrap(kaserrors.JWT, err, "signature verification failed")
	}

	err = registered.ValidateWithLeeway(jwt.Expected{Time: time.Now()}, Leeway())
	if err != nil {
		return kaserrors.Wrap(kaserrors.JWT, err, "token outside validity window")
	}

	return nil
}

func allowedAlgorithm(alg string) bool {
	for _, a := range signingAlgorithms {
		if string(a) == alg {
			return true
		}
	}

	return false
}

// CreateSigned builds a compact JWS over claims with the given key. Used by
// tests and by tooling that mints request tokens.
func CreateSigned(claims interface{}, alg jose.SignatureAlgorithm, key crypto.PrivateKey) (string, error) {
	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: alg, Key: key}, nil)
	if err != nil {
		return "", kaserrors.Wrap(kaserrors.JWT, err, "signer init failed")
	}

	raw, err := jwt.Signed(signer).Claims(claims).CompactSerialize()
	if err != nil {
		return "", kaserrors.Wrap(kaserrors.JWT, err, "token serialization failed")
	}

	return raw, nil
}
