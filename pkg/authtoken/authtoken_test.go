/*
Copyright Trust Data Format Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package authtoken

import (
	"testing"
	"time"

	"github.com/go-jose/go-jose/v3"
	"github.com/go-jose/go-jose/v3/jwt"
	"github.com/stretchr/testify/require"

	kascrypto "github.com/trustdataformat/kas-go/pkg/crypto"
	"github.com/trustdataformat/kas-go/pkg/kaserrors"
)

func TestLooksLikeJWT(t *testing.T) {
	require.True(t, LooksLikeJWT("eyJhbGciOiJSUzI1NiJ9.eyJpc3MiOiJ4In0.c2ln"))
	require.True(t, LooksLikeJWT("aaa.bbb."))

	require.False(t, LooksLikeJWT(""))
	require.False(t, LooksLikeJWT("aaa.bbb"))
	require.False(t, LooksLikeJWT("aaa.bbb.ccc.ddd"))
	require.False(t, LooksLikeJWT("not a token"))
}

func TestLeeway(t *testing.T) {
	t.Run("default", func(t *testing.T) {
		t.Setenv("KAS_JWT_LEEWAY", "")
		require.Equal(t, DefaultLeeway, Leeway())
	})

	t.Run("configured", func(t *testing.T) {
		t.Setenv("KAS_JWT_LEEWAY", "10")
		require.Equal(t, 10*time.Second, Leeway())
	})

	t.Run("clamped to max", func(t *testing.T) {
		t.Setenv("KAS_JWT_LEEWAY", "600")
		require.Equal(t, MaxLeeway, Leeway())
	})

	t.Run("negative clamps to zero", func(t *testing.T) {
		t.Setenv("KAS_JWT_LEEWAY", "-5")
		require.Equal(t, time.Duration(0), Leeway())
	})

	t.Run("unparseable falls back", func(t *testing.T) {
		t.Setenv("KAS_JWT_LEEWAY", "soon")
		require.Equal(t, DefaultLeeway, Leeway())
	})
}

type testClaims struct {
	jwt.Claims
	Realm string `json:"realm,omitempty"`
}

func TestCreateVerifyRoundTrip(t *testing.T) {
	key, err := kascrypto.GenerateRSAKeyPair(kascrypto.MinRSAKeySize)
	require.NoError(t, err)

	claims := testClaims{
		Claims: jwt.Claims{
			Issuer: "https://idp.example.com/auth/realms/tdf",
			Expiry: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Realm: "tdf",
	}

	raw, err := CreateSigned(claims, jose.RS256, key)
	require.NoError(t, err)
	require.True(t, LooksLikeJWT(raw))

	var out testClaims
	require.NoError(t, Verify(raw, &key.PublicKey, &out))
	require.Equal(t, "tdf", out.Realm)
}

func TestVerifyWrongKey(t *testing.T) {
	key, err := kascrypto.GenerateRSAKeyPair(kascrypto.MinRSAKeySize)
	require.NoError(t, err)

	other, err := kascrypto.GenerateRSAKeyPair(kascrypto.MinRSAKeySize)
	require.NoError(t, err)

	raw, err := CreateSigned(jwt.Claims{Issuer: "x"}, jose.RS256, key)
	require.NoError(t, err)

	var out jwt.Claims
	err = Verify(raw, &other.PublicKey, &out)
	require.Error(t, err)
	require.Equal(t, kaserrors.JWT, kaserrors.KindOf(err))
}

func TestVerifyExpired(t *testing.T) {
	t.Setenv("KAS_JWT_LEEWAY", "0")

	key, err := kascrypto.GenerateRSAKeyPair(kascrypto.MinRSAKeySize)
	require.NoError(t, err)

	raw, err := CreateSigned(jwt.Claims{
		Expiry: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
	}, jose.RS256, key)
	require.NoError(t, err)

	var out jwt.Claims
	err = Verify(raw, &key.PublicKey, &out)
	require.Error(t, err)
	require.Equal(t, kaserrors.JWT, kaserrors.KindOf(err))
}

func TestVerifyExpiredWithinLeeway(t *testing.T) {
	t.Setenv("KAS_JWT_LEEWAY", "120")

	key, err := kascrypto.GenerateRSAKeyPair(kascrypto.MinRSAKeySize)
	require.NoError(t, err)

	raw, err := CreateSigned(jwt.Claims{
		Expiry: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
	}, jose.RS256, key)
	require.NoError(t, err)

	var out jwt.Claims
	require.NoError(t, Verify(raw, &key.PublicKey, &out))
}

func TestVerifyES256(t *testing.T) {
	key, err := kascrypto.GenerateECKeyPair(kascrypto.CurveSecp256r1)
	require.NoError(t, err)

	raw, err := CreateSigned(jwt.Claims{Issuer: "x"}, jose.ES256, key)
	require.NoError(t, err)

	var out jwt.Claims
	require.NoError(t, Verify(raw, &key.PublicKey, &out))
	require.Equal(t, "x", out.Issuer)
}

func TestPeekClaimsDoesNotVerify(t *testing.T) {
	key, err := kascrypto.GenerateRSAKeyPair(kascrypto.MinRSAKeySize)
	require.NoError(t, err)

	raw, err := CreateSigned(jwt.Claims{Issuer: "https://idp/auth/realms/tdf"}, jose.RS256, key)
	require.NoError(t, err)

	issuer, err := Issuer(raw)
	require.NoError(t, err)
	require.Equal(t, "https://idp/auth/realms/tdf", issuer)

	_, err = Issuer("garbage")
	require.Error(t, err)
}
