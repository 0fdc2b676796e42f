/*
Copyright Trust Data Format Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package keymaster

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bluele/gcache"
	"github.com/cenkalti/backoff/v4"

	"github.com/trustdataformat/kas-go/pkg/authtoken"
	"github.com/trustdataformat/kas-go/pkg/common/log"
	"github.com/trustdataformat/kas-go/pkg/kaserrors"
)

var logger = log.New("kas/keymaster")

const (
	realmCacheSize = 32
	realmCacheTTL  = 5 * time.Minute

	fetchTimeout = 5 * time.Second
	fetchRetries = 3
)

// RealmKeyFetcher resolves identity provider public keys per realm. Fetched
// keys are cached with a TTL and mirrored into the KeyMaster so the rest of
// the service sees them under their well-known name.
type RealmKeyFetcher struct {
	km     *KeyMaster
	host   string
	client *http.Client
	cache  gcache.Cache
}

// NewRealmKeyFetcher builds a fetcher against the identity provider at host.
func NewRealmKeyFetcher(km *KeyMaster, host string) *RealmKeyFetcher {
	return &RealmKeyFetcher{
		km:     km,
		host:   strings.TrimRight(host, "/"),
		client: &http.Client{Timeout: fetchTimeout},
		cache:  gcache.New(realmCacheSize).LRU().Build(),
	}
}

// RealmOf extracts the realm from a token's unverified issuer claim. The
// issuer URL ends in /realms/{realm}.
func RealmOf(rawToken string) (string, error) {
	issuer, err := authtoken.Issuer(rawToken)
	if err != nil {
		return "", err
	}

	parsed, err := url.Parse(issuer)
	if err != nil || parsed.Path == "" {
		return "", kaserrors.New(kaserrors.Unauthorized, "issuer %q has no realm", issuer)
	}

	segments := strings.Split(strings.TrimRight(parsed.Path, "/"), "/")

	realm := segments[len(segments)-1]
	if realm == "" {
		return "", kaserrors.New(kaserrors.Unauthorized, "issuer %q has no realm", issuer)
	}

	return realm, nil
}

// PublicKeyPEM returns the PEM public key for realm, fetching it from the
// identity provider if it is not cached.
func (f *RealmKeyFetcher) PublicKeyPEM(realm string) ([]byte, error) {
	if cached, err := f.cache.Get(realm); err == nil {
		return cached.([]byte), nil
	}

	pemBytes, err := f.fetch(realm)
	if err != nil {
		return nil, err
	}

	if err := f.cache.SetWithExpire(realm, pemBytes, realmCacheTTL); err != nil {
		logger.Warnf("realm key cache set failed: %v", err)
	}

	f.km.SetRealmKey(realm, pemBytes)

	return pemBytes, nil
}

func (f *RealmKeyFetcher) fetch(realm string) ([]byte, error) {
	endpoint := fmt.Sprintf("%s/auth/realms/%s", f.host, url.PathEscape(realm))

	var body []byte

	op := func() error {
		resp, err := f.client.Get(endpoint) //nolint:noctx // bounded by client timeout
		if err != nil {
			return err
		}

		defer resp.Body.Close() //nolint:errcheck

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("identity provider returned %d", resp.StatusCode)
		}

		body, err = io.ReadAll(resp.Body)

		return err
	}

	err := backoff.Retry(op, backoff.WithMaxRetries(backoff.NewConstantBackOff(time.Second), fetchRetries))
	if err != nil {
		return nil, kaserrors.Wrap(kaserrors.Unauthorized, err, "realm %q key fetch failed", realm)
	}

	var payload struct {
		PublicKey string `json:"public_key"`
	}

	if err := json.Unmarshal(body, &payload); err != nil || payload.PublicKey == "" {
		return nil, kaserrors.New(kaserrors.Unauthorized, "realm %q returned no public key", realm)
	}

	pem := fmt.Sprintf("-----BEGIN PUBLIC KEY-----\n%s\n-----END PUBLIC KEY-----\n", payload.PublicKey)

	return []byte(pem), nil
}
