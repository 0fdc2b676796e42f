/*
Copyright Trust Data Format Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"

	"github.com/google/tink/go/subtle/random"

	"github.com/trustdataformat/kas-go/pkg/kaserrors"
)

// GCM IV bounds. Twelve bytes is the required length; shorter IVs down to
// three bytes exist only for containers produced before the IV was widened,
// and are accepted when the legacy flag is on.
const (
	GCMStandardIVSize = 12
	gcmMinIVSize      = 3
	gcmMaxIVSize      = 128
)

var gcmTagSizes = map[int]bool{8: true, 12: true, 13: true, 14: true, 15: true, 16: true} //nolint:gochecknoglobals

// RandomIV returns a fresh random IV of the given size.
func RandomIV(size int) []byte {
	return random.GetRandomBytes(uint32(size))
}

func newGCM(key, iv []byte) (cipher.AEAD, error) {
	if len(key) != SymmetricKeySize {
		return nil, kaserrors.New(kaserrors.Crypto, "AES key length %d, want %d", len(key), SymmetricKeySize)
	}

	if len(iv) < gcmMinIVSize || len(iv) > gcmMaxIVSize {
		return nil, kaserrors.New(kaserrors.Crypto, "GCM IV length %d out of range", len(iv))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, kaserrors.Wrap(kaserrors.Crypto, err, "AES cipher init failed")
	}

	gcm, err := cipher.NewGCMWithNonceSize(block, len(iv))
	if err != nil {
		return nil, kaserrors.Wrap(kaserrors.Crypto, err, "GCM init failed")
	}

	return gcm, nil
}

// EncryptGCM encrypts plaintext with AES-256-GCM and returns the ciphertext
// and the authentication tag truncated to tagSize bytes.
func EncryptGCM(key, iv, plaintext []byte, tagSize int) (ciphertext, tag []byte, err error) {
	if !gcmTagSizes[tagSize] {
		return nil, nil, kaserrors.New(kaserrors.Crypto, "GCM tag length %d not supported", tagSize)
	}

	gcm, err := newGCM(key, iv)
	if err != nil {
		return nil, nil, err
	}

	sealed := gcm.Seal(nil, iv, plaintext, nil)
	ciphertext = sealed[:len(plaintext)]
	tag = sealed[len(plaintext) : len(plaintext)+tagSize]

	return ciphertext, tag, nil
}

// DecryptGCM decrypts ciphertext and verifies the (possibly truncated) tag.
//
// The standard library AEAD only accepts full 16-byte tags, so truncated tags
// are checked by recovering the plaintext from the GCM keystream and
// recomputing the full tag over it; the comparison against the truncated tag
// is constant time.
func DecryptGCM(key, iv, ciphertext, tag []byte) ([]byte, error) {
	if !gcmTagSizes[len(tag)] {
		return nil, kaserrors.New(kaserrors.Crypto, "GCM tag length %d not supported", len(tag))
	}

	gcm, err := newGCM(key, iv)
	if err != nil {
		return nil, err
	}

	if len(tag) == gcm.Overhead() {
		plaintext, err := gcm.Open(nil, iv, append(append([]byte{}, ciphertext...), tag...), nil)
		if err != nil {
			return nil, kaserrors.Wrap(kaserrors.Crypto, err, "GCM tag mismatch")
		}

		return plaintext, nil
	}

	keystream := gcm.Seal(nil, iv, make([]byte, len(ciphertext)), nil)[:len(ciphertext)]

	plaintext := make([]byte, len(ciphertext))
	for i := range ciphertext {
		plaintext[i] = ciphertext[i] ^ keystream[i]
	}

	sealed := gcm.Seal(nil, iv, plaintext, nil)
	fullTag := sealed[len(plaintext):]

	if !hmac.Equal(tag, fullTag[:len(tag)]) {
		zero(plaintext)
		return nil, kaserrors.New(kaserrors.Crypto, "GCM tag mismatch")
	}

	return plaintext, nil
}

// zero wipes key material in place. Best effort; Go gives no guarantee the
// memory was not already copied.
func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// Zeroize wipes sensitive byte slices.
func Zeroize(bufs ...[]byte) {
	for _, b := range bufs {
		zero(b)
	}
}
