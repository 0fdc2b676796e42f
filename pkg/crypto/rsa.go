/*
Copyright Trust Data Format Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package crypto

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1" //nolint:gosec // OAEP-SHA1 is the TDF3 wire format
	"fmt"

	"github.com/trustdataformat/kas-go/pkg/kaserrors"
)

// MinRSAKeySize is the minimum accepted RSA modulus size in bits.
const MinRSAKeySize = 2048

// WrapKeyRSA encrypts a symmetric key with RSA-OAEP (MGF1-SHA1). The TDF3
// container format fixes the OAEP hash to SHA-1, so this is not negotiable
// per request.
func WrapKeyRSA(symmetricKey []byte, publicKey *rsa.PublicKey) ([]byte, error) {
	if publicKey == nil {
		return nil, kaserrors.New(kaserrors.Crypto, "nil RSA public key")
	}

	if publicKey.Size()*8 < MinRSAKeySize {
		return nil, kaserrors.New(kaserrors.Crypto, "RSA key below %d bits", MinRSAKeySize)
	}

	wrapped, err := rsa.EncryptOAEP(sha1.New(), rand.Reader, publicKey, symmetricKey, nil)
	if err != nil {
		return nil, kaserrors.Wrap(kaserrors.Crypto, err, "RSA-OAEP encrypt failed")
	}

	return wrapped, nil
}

// UnwrapKeyRSA decrypts a wrapped symmetric key with RSA-OAEP (MGF1-SHA1).
func UnwrapKeyRSA(wrappedKey []byte, privateKey *rsa.PrivateKey) ([]byte, error) {
	if privateKey == nil {
		return nil, kaserrors.New(kaserrors.Crypto, "nil RSA private key")
	}

	unwrapped, err := rsa.DecryptOAEP(sha1.New(), rand.Reader, privateKey, wrappedKey, nil)
	if err != nil {
		return nil, kaserrors.Wrap(kaserrors.Crypto, err, "RSA-OAEP decrypt failed")
	}

	return unwrapped, nil
}

// GenerateRSAKeyPair generates an RSA key pair of the given size. Used by
// tests and key bootstrap tooling.
func GenerateRSAKeyPair(bits int) (*rsa.PrivateKey, error) {
	if bits < MinRSAKeySize {
		return nil, kaserrors.New(kaserrors.Crypto, "RSA key below %d bits", MinRSAKeySize)
	}

	key, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, fmt.Errorf("generate RSA key: %w", err)
	}

	return key, nil
}
