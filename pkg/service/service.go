/*
Copyright Trust Data Format Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package service implements the KAS operations: TDF3 and nanoTDF rewrap,
// upsert proxying, public key serving, and health. Each operation is a pure
// function of the request, the key inventory, and the plugin chain; the only
// cross-request state is the realm-key cache.
package service

import (
	"crypto"
	"strconv"
	"strings"

	"github.com/trustdataformat/kas-go/pkg/authtoken"
	"github.com/trustdataformat/kas-go/pkg/common/log"
	kascrypto "github.com/trustdataformat/kas-go/pkg/crypto"
	"github.com/trustdataformat/kas-go/pkg/entity"
	"github.com/trustdataformat/kas-go/pkg/kaserrors"
	"github.com/trustdataformat/kas-go/pkg/keymaster"
	"github.com/trustdataformat/kas-go/pkg/plugin"
	"github.com/trustdataformat/kas-go/pkg/reqcontext"
)

var logger = log.New("kas/service")

// Algorithm values dispatched on the rewrap path.
const (
	AlgorithmRSA2048     = "rsa:2048"
	AlgorithmECSecp256r1 = "ec:secp256r1"
)

// Config carries the service's startup wiring.
type Config struct {
	KeyMaster   *keymaster.KeyMaster
	RealmKeys   *keymaster.RealmKeyFetcher
	Plugins     *plugin.Chain
	Version     string
	UseKeycloak bool
	LegacyIV    bool
}

// Service is the KAS core.
type Service struct {
	km          *keymaster.KeyMaster
	realmKeys   *keymaster.RealmKeyFetcher
	plugins     *plugin.Chain
	version     string
	useKeycloak bool
	legacyIV    bool
}

// New builds a Service.
func New(cfg *Config) *Service {
	plugins := cfg.Plugins
	if plugins == nil {
		plugins = plugin.NewChain()
	}

	return &Service{
		km:          cfg.KeyMaster,
		realmKeys:   cfg.RealmKeys,
		plugins:     plugins,
		version:     cfg.Version,
		useKeycloak: cfg.UseKeycloak,
		legacyIV:    cfg.LegacyIV,
	}
}

// Version returns the service version string.
func (s *Service) Version() string {
	return s.version
}

// PublicKey serves the KAS public key for the requested algorithm. The
// default is the RSA unwrap key.
func (s *Service) PublicKey(algorithm string) (string, error) {
	switch algorithm {
	case AlgorithmECSecp256r1:
		return s.km.ExportString(keymaster.KeyKASECPublic)
	case AlgorithmRSA2048, "":
		return s.km.ExportString(keymaster.KeyKASPublic)
	}

	return "", kaserrors.New(kaserrors.BadRequest, "unknown algorithm %q", algorithm)
}

// Healthz runs the registered health probes.
func (s *Service) Healthz(probe string) error {
	return s.plugins.Healthz(probe)
}

// bearerClaims verifies the OIDC bearer token and returns its claims. The
// issuer is peeked unverified only to select the realm key.
func (s *Service) bearerClaims(bearer string) (*entity.Claims, error) {
	if !authtoken.LooksLikeJWT(bearer) {
		return nil, kaserrors.New(kaserrors.Unauthorized, "bearer is not a token")
	}

	verifyKey, err := s.bearerKey(bearer)
	if err != nil {
		return nil, err
	}

	var claims entity.Claims
	if err := authtoken.Verify(bearer, verifyKey, &claims); err != nil {
		return nil, kaserrors.Wrap(kaserrors.Unauthorized, err, "bearer verification failed")
	}

	if err := claims.Validate(); err != nil {
		return nil, err
	}

	return &claims, nil
}

func (s *Service) bearerKey(bearer string) (crypto.PublicKey, error) {
	if s.useKeycloak && s.realmKeys != nil {
		realm, err := keymaster.RealmOf(bearer)
		if err != nil {
			return nil, err
		}

		pemBytes, err := s.realmKeys.PublicKeyPEM(realm)
		if err != nil {
			return nil, err
		}

		return kascrypto.ParsePublicKey(pemBytes)
	}

	key, err := s.km.Key(keymaster.KeyAAPublic)
	if err != nil {
		return nil, kaserrors.Wrap(kaserrors.Unauthorized, err, "no issuer key configured")
	}

	return key, nil
}

// legacyClientVersionAllowed gates the 3-byte IV behavior on the client
// version header: only clients before 0.0.1 used it. An absent header counts
// as old; an unparseable one counts as current.
func legacyClientVersionAllowed(ctx *reqcontext.Context) bool {
	raw := ctx.Get("virtru-ntdf-version")
	if raw == "" {
		return true
	}

	v, err := parseClientVersion(raw)
	if err != nil {
		return false
	}

	if v.major > 0 || v.minor > 0 || v.patch > 1 {
		return false
	}

	if v.patch == 1 {
		return v.prerelease
	}

	return true
}

type clientVersion struct {
	major, minor, patch int
	prerelease          bool
}

// parseClientVersion reads up to three numeric components, tolerating a "v"
// prefix and a pre-release or build suffix.
func parseClientVersion(raw string) (clientVersion, error) {
	var v clientVersion

	raw = strings.TrimPrefix(strings.TrimSpace(raw), "v")

	if i := strings.IndexAny(raw, "-+"); i >= 0 {
		v.prerelease = raw[i] == '-'
		raw = raw[:i]
	}

	parts := strings.Split(raw, ".")
	if len(parts) > 3 {
		return clientVersion{}, kaserrors.New(kaserrors.BadRequest, "version %q has too many components", raw)
	}

	components := []*int{&v.major, &v.minor, &v.patch}

	for i, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 {
			return clientVersion{}, kaserrors.New(kaserrors.BadRequest, "version component %q is not a number", part)
		}

		*components[i] = n
	}

	return v, nil
}
