/*
Copyright Trust Data Format Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package crypto

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"

	"github.com/trustdataformat/kas-go/pkg/kaserrors"
)

// ParsePublicKey parses a PEM public key or certificate into a key object.
// Deployments hand the KAS certificates as often as bare public keys, so both
// are accepted.
func ParsePublicKey(pemBytes []byte) (crypto.PublicKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, kaserrors.New(kaserrors.PrivateKeyInvalid, "no PEM block in public key input")
	}

	switch block.Type {
	case "PUBLIC KEY":
		pub, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, kaserrors.Wrap(kaserrors.PrivateKeyInvalid, err, "parse PKIX public key")
		}

		return pub, nil
	case "RSA PUBLIC KEY":
		pub, err := x509.ParsePKCS1PublicKey(block.Bytes)
		if err != nil {
			return nil, kaserrors.Wrap(kaserrors.PrivateKeyInvalid, err, "parse PKCS1 public key")
		}

		return pub, nil
	case "CERTIFICATE":
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, kaserrors.Wrap(kaserrors.PrivateKeyInvalid, err, "parse certificate")
		}

		return cert.PublicKey, nil
	}

	return nil, kaserrors.New(kaserrors.PrivateKeyInvalid, "unexpected PEM block %q", block.Type)
}

// ParsePrivateKey parses a PEM private key (PKCS#8, PKCS#1 or SEC1).
func ParsePrivateKey(pemBytes []byte) (crypto.PrivateKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, kaserrors.New(kaserrors.PrivateKeyInvalid, "no PEM block in private key input")
	}

	switch block.Type {
	case "PRIVATE KEY":
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, kaserrors.Wrap(kaserrors.PrivateKeyInvalid, err, "parse PKCS8 private key")
		}

		return key, nil
	case "RSA PRIVATE KEY":
		key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, kaserrors.Wrap(kaserrors.PrivateKeyInvalid, err, "parse PKCS1 private key")
		}

		return key, nil
	case "EC PRIVATE KEY":
		key, err := x509.ParseECPrivateKey(block.Bytes)
		if err != nil {
			return nil, kaserrors.Wrap(kaserrors.PrivateKeyInvalid, err, "parse EC private key")
		}

		return key, nil
	}

	return nil, kaserrors.New(kaserrors.PrivateKeyInvalid, "unexpected PEM block %q", block.Type)
}

// ExportPublicKeyPEM serialises a public key to PKIX PEM.
func ExportPublicKeyPEM(pub crypto.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", kaserrors.Wrap(kaserrors.PrivateKeyInvalid, err, "marshal public key")
	}

	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})), nil
}

// ExportPrivateKeyPEM serialises a private key to PKCS#8 PEM.
func ExportPrivateKeyPEM(priv crypto.PrivateKey) (string, error) {
	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return "", kaserrors.Wrap(kaserrors.PrivateKeyInvalid, err, "marshal private key")
	}

	return string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})), nil
}

// PublicKeyOf returns the public half of an RSA or EC private key.
func PublicKeyOf(priv crypto.PrivateKey) (crypto.PublicKey, error) {
	switch k := priv.(type) {
	case *rsa.PrivateKey:
		return &k.PublicKey, nil
	case *ecdsa.PrivateKey:
		return &k.PublicKey, nil
	}

	return nil, kaserrors.New(kaserrors.PrivateKeyInvalid, "unsupported private key type %T", priv)
}
