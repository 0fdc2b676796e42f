/*
Copyright Trust Data Format Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package crypto

import (
	"crypto/sha256"

	"github.com/google/tink/go/subtle"

	"github.com/trustdataformat/kas-go/pkg/kaserrors"
)

// SymmetricKeySize is the AES-256 key length derived for nanoTDF sessions.
const SymmetricKeySize = 32

// nanoTDFMagic is the container version marker "L1L". The HKDF salt is the
// SHA-256 of these three bytes.
var nanoTDFMagic = []byte{0x4C, 0x31, 0x4C} //nolint:gochecknoglobals

// NanoTDFSalt returns the HKDF salt fixed by the nanoTDF format.
func NanoTDFSalt() []byte {
	sum := sha256.Sum256(nanoTDFMagic)
	return sum[:]
}

// DeriveSymmetricKey runs HKDF-SHA256 over an ECDH shared secret with the
// nanoTDF salt and empty info, producing the AES-256 session key.
func DeriveSymmetricKey(sharedSecret []byte) ([]byte, error) {
	key, err := subtle.ComputeHKDF("SHA256", sharedSecret, NanoTDFSalt(), nil, SymmetricKeySize)
	if err != nil {
		return nil, kaserrors.Wrap(kaserrors.Crypto, err, "HKDF derivation failed")
	}

	return key, nil
}
