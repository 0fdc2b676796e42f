/*
Copyright Trust Data Format Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package keymaster

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-jose/go-jose/v3"
	"github.com/go-jose/go-jose/v3/jwt"
	"github.com/stretchr/testify/require"

	"github.com/trustdataformat/kas-go/pkg/authtoken"
	kascrypto "github.com/trustdataformat/kas-go/pkg/crypto"
	"github.com/trustdataformat/kas-go/pkg/kaserrors"
)

func rsaPEMs(t *testing.T) (privatePEM, publicPEM []byte, key *rsa.PrivateKey) {
	t.Helper()

	key, err := kascrypto.GenerateRSAKeyPair(kascrypto.MinRSAKeySize)
	require.NoError(t, err)

	privatePEM = pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})

	public, err := kascrypto.ExportPublicKeyPEM(&key.PublicKey)
	require.NoError(t, err)

	return privatePEM, []byte(public), key
}

func TestSetKeyPEMAndGet(t *testing.T) {
	privatePEM, publicPEM, key := rsaPEMs(t)

	km := New()
	km.SetKeyPEM(KeyKASPrivate, Private, privatePEM)
	km.SetKeyPEM(KeyKASPublic, Public, publicPEM)

	got, err := km.RSAPrivateKey(KeyKASPrivate)
	require.NoError(t, err)
	require.Equal(t, key.D, got.D)

	pub, err := km.RSAPublicKey(KeyKASPublic)
	require.NoError(t, err)
	require.Equal(t, key.PublicKey.N, pub.N)
}

func TestKeyNotFound(t *testing.T) {
	km := New()

	_, err := km.Key("nope")
	require.Error(t, err)
	require.Equal(t, kaserrors.KeyNotFound, kaserrors.KindOf(err))
}

func TestWrongKeyType(t *testing.T) {
	_, publicPEM, _ := rsaPEMs(t)

	km := New()
	km.SetKeyPEM(KeyKASPublic, Public, publicPEM)

	_, err := km.ECPublicKey(KeyKASPublic)
	require.Error(t, err)
	require.Equal(t, kaserrors.PrivateKeyInvalid, kaserrors.KindOf(err))
}

func TestSetKeyPath(t *testing.T) {
	privatePEM, _, key := rsaPEMs(t)

	path := filepath.Join(t.TempDir(), "kas.pem")
	require.NoError(t, os.WriteFile(path, privatePEM, 0o600))

	km := New()
	km.SetKeyPath(KeyKASPrivate, Private, path)

	got, err := km.RSAPrivateKey(KeyKASPrivate)
	require.NoError(t, err)
	require.Equal(t, key.D, got.D)
}

func TestExportString(t *testing.T) {
	_, publicPEM, _ := rsaPEMs(t)

	km := New()
	km.SetKeyPEM(KeyKASPublic, Public, publicPEM)

	exported, err := km.ExportString(KeyKASPublic)
	require.NoError(t, err)
	require.Contains(t, exported, "BEGIN PUBLIC KEY")
}

func TestRealmOf(t *testing.T) {
	key, err := kascrypto.GenerateRSAKeyPair(kascrypto.MinRSAKeySize)
	require.NoError(t, err)

	raw, err := authtoken.CreateSigned(jwt.Claims{
		Issuer: "https://idp.example.com/auth/realms/tdf",
	}, jose.RS256, key)
	require.NoError(t, err)

	realm, err := RealmOf(raw)
	require.NoError(t, err)
	require.Equal(t, "tdf", realm)
}

func TestRealmKeyFetcher(t *testing.T) {
	_, publicPEM, key := rsaPEMs(t)

	// The identity provider serves the key as bare base64 DER.
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)

	calls := 0
	idp := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
		calls++

		require.Equal(t, "/auth/realms/tdf", req.URL.Path)

		_ = json.NewEncoder(rw).Encode(map[string]string{
			"public_key": base64.StdEncoding.EncodeToString(der),
		})
	}))
	defer idp.Close()

	km := New()
	fetcher := NewRealmKeyFetcher(km, idp.URL)

	fetched, err := fetcher.PublicKeyPEM("tdf")
	require.NoError(t, err)

	parsed, err := kascrypto.ParsePublicKey(fetched)
	require.NoError(t, err)

	expected, err := kascrypto.ParsePublicKey(publicPEM)
	require.NoError(t, err)
	require.Equal(t, expected, parsed)

	// Stored in the key master under the realm name, and cached.
	require.True(t, km.Has("realm-pub:tdf"))

	_, err = fetcher.PublicKeyPEM("tdf")
	require.NoError(t, err)
	require.Equal(t, 1, calls)
}

func TestRealmKeyFetcherFailure(t *testing.T) {
	idp := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
		http.Error(rw, "down", http.StatusInternalServerError)
	}))
	defer idp.Close()

	fetcher := NewRealmKeyFetcher(New(), idp.URL)

	_, err := fetcher.PublicKeyPEM("tdf")
	require.Error(t, err)
	require.Equal(t, kaserrors.Unauthorized, kaserrors.KindOf(err))
}

func TestRealmKeyFetcherNoKeyInResponse(t *testing.T) {
	idp := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
		fmt.Fprint(rw, `{}`)
	}))
	defer idp.Close()

	fetcher := NewRealmKeyFetcher(New(), idp.URL)

	_, err := fetcher.PublicKeyPEM("tdf")
	require.Error(t, err)
}
