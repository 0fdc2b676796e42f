/*
Copyright Trust Data Format Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package crypto

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"math/big"

	"github.com/btcsuite/btcd/btcec"

	"github.com/trustdataformat/kas-go/pkg/kaserrors"
)

// Curve identifies one of the named curves the KAS supports. The numeric
// values are the nanoTDF ECC mode values and must not be reordered.
type Curve uint8

// Supported curves.
const (
	CurveSecp256r1 Curve = 0x00
	CurveSecp384r1 Curve = 0x01
	CurveSecp521r1 Curve = 0x02
	CurveSecp256k1 Curve = 0x03
)

var curveNames = map[Curve]string{ //nolint:gochecknoglobals
	CurveSecp256r1: "secp256r1",
	CurveSecp384r1: "secp384r1",
	CurveSecp521r1: "secp521r1",
	CurveSecp256k1: "secp256k1",
}

// CurveByName resolves a curve from its SEC name.
func CurveByName(name string) (Curve, error) {
	for c, n := range curveNames {
		if n == name {
			return c, nil
		}
	}

	return 0, kaserrors.New(kaserrors.Crypto, "unknown curve %q", name)
}

func (c Curve) String() string {
	if n, ok := curveNames[c]; ok {
		return n
	}

	return "unknown"
}

// Params returns the underlying elliptic.Curve.
func (c Curve) Params() (elliptic.Curve, error) {
	switch c {
	case CurveSecp256r1:
		return elliptic.P256(), nil
	case CurveSecp384r1:
		return elliptic.P384(), nil
	case CurveSecp521r1:
		return elliptic.P521(), nil
	case CurveSecp256k1:
		return btcec.S256(), nil
	}

	return nil, kaserrors.New(kaserrors.Crypto, "unsupported curve mode %d", c)
}

// ByteLength returns the field element size in bytes.
func (c Curve) ByteLength() int {
	switch c {
	case CurveSecp256r1, CurveSecp256k1:
		return 32
	case CurveSecp384r1:
		return 48
	case CurveSecp521r1:
		return 66
	}

	return 0
}

// PublicKeyByteLength returns the compressed point size (prefix + X).
func (c Curve) PublicKeyByteLength() int {
	return c.ByteLength() + 1
}

// SignatureByteLength returns the raw r||s signature size.
func (c Curve) SignatureByteLength() int {
	return 2 * c.ByteLength()
}

// CurveOf maps an ecdsa key's curve back to the Curve identifier.
func CurveOf(pub *ecdsa.PublicKey) (Curve, error) {
	switch pub.Curve {
	case elliptic.P256():
		return CurveSecp256r1, nil
	case elliptic.P384():
		return CurveSecp384r1, nil
	case elliptic.P521():
		return CurveSecp521r1, nil
	case btcec.S256():
		return CurveSecp256k1, nil
	}

	return 0, kaserrors.New(kaserrors.Crypto, "key is on an unsupported curve")
}

// GenerateECKeyPair generates a key pair on the given curve.
func GenerateECKeyPair(c Curve) (*ecdsa.PrivateKey, error) {
	params, err := c.Params()
	if err != nil {
		return nil, err
	}

	key, err := ecdsa.GenerateKey(params, rand.Reader)
	if err != nil {
		return nil, kaserrors.Wrap(kaserrors.Crypto, err, "generate %s key", c)
	}

	return key, nil
}

// CompressPublicKey serialises a public key to X9.62 compressed form.
func CompressPublicKey(pub *ecdsa.PublicKey) ([]byte, error) {
	if pub == nil || pub.X == nil || pub.Y == nil {
		return nil, kaserrors.New(kaserrors.Crypto, "invalid public key")
	}

	if pub.Curve == btcec.S256() {
		return (*btcec.PublicKey)(pub).SerializeCompressed(), nil
	}

	return elliptic.MarshalCompressed(pub.Curve, pub.X, pub.Y), nil
}

// DecompressPublicKey parses an X9.62 compressed point on the given curve.
// secp256k1 has curve parameter a=0, which the generic stdlib decompression
// cannot handle, so it goes through btcec.
func DecompressPublicKey(c Curve, compressed []byte) (*ecdsa.PublicKey, error) {
	if len(compressed) != c.PublicKeyByteLength() {
		return nil, kaserrors.New(kaserrors.Crypto, "compressed point length %d, want %d",
			len(compressed), c.PublicKeyByteLength())
	}

	if c == CurveSecp256k1 {
		pub, err := btcec.ParsePubKey(compressed, btcec.S256())
		if err != nil {
			return nil, kaserrors.Wrap(kaserrors.Crypto, err, "parse secp256k1 point")
		}

		return pub.ToECDSA(), nil
	}

	params, err := c.Params()
	if err != nil {
		return nil, err
	}

	x, y := elliptic.UnmarshalCompressed(params, compressed)
	if x == nil {
		return nil, kaserrors.New(kaserrors.Crypto, "point not on curve %s", c)
	}

	return &ecdsa.PublicKey{Curve: params, X: x, Y: y}, nil
}

// SharedSecret runs ECDH and returns the X coordinate left-padded to the
// curve's field size.
func SharedSecret(priv *ecdsa.PrivateKey, pub *ecdsa.PublicKey) ([]byte, error) {
	if priv == nil || pub == nil {
		return nil, kaserrors.New(kaserrors.Crypto, "nil key in ECDH")
	}

	if priv.Curve != pub.Curve {
		return nil, kaserrors.New(kaserrors.Crypto, "curve mismatch in ECDH")
	}

	x, _ := priv.Curve.ScalarMult(pub.X, pub.Y, priv.D.Bytes())
	if x == nil {
		return nil, kaserrors.New(kaserrors.Crypto, "ECDH scalar multiplication failed")
	}

	byteLen := (priv.Curve.Params().BitSize + 7) / 8
	secret := make([]byte, byteLen)
	xBytes := x.Bytes()
	copy(secret[byteLen-len(xBytes):], xBytes)

	return secret, nil
}

// SignECDSA signs SHA-256(data) and returns the signature as raw r||s with
// each component left-padded to the curve's field size. No DER framing is
// used on the wire.
func SignECDSA(priv *ecdsa.PrivateKey, data []byte) ([]byte, error) {
	digest := sha256.Sum256(data)

	r, s, err := ecdsa.Sign(rand.Reader, priv, digest[:])
	if err != nil {
		return nil, kaserrors.Wrap(kaserrors.Crypto, err, "ECDSA sign failed")
	}

	byteLen := (priv.Curve.Params().BitSize + 7) / 8
	sig := make([]byte, 2*byteLen)
	rBytes := r.Bytes()
	sBytes := s.Bytes()
	copy(sig[byteLen-len(rBytes):byteLen], rBytes)
	copy(sig[2*byteLen-len(sBytes):], sBytes)

	return sig, nil
}

// VerifyECDSA verifies a raw r||s signature over SHA-256(data).
func VerifyECDSA(pub *ecdsa.PublicKey, data, sig []byte) error {
	byteLen := (pub.Curve.Params().BitSize + 7) / 8
	if len(sig) != 2*byteLen {
		return kaserrors.New(kaserrors.Crypto, "signature length %d, want %d", len(sig), 2*byteLen)
	}

	digest := sha256.Sum256(data)
	r := new(big.Int).SetBytes(sig[:byteLen])
	s := new(big.Int).SetBytes(sig[byteLen:])

	if !ecdsa.Verify(pub, digest[:], r, s) {
		return kaserrors.New(kaserrors.Crypto, "ECDSA signature mismatch")
	}

	return nil
}
