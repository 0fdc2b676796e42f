/*
Copyright Trust Data Format Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package nanotdf

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/sha256"
	"io"

	kascrypto "github.com/trustdataformat/kas-go/pkg/crypto"
	"github.com/trustdataformat/kas-go/pkg/kaserrors"
)

// PayloadIVSize is the on-wire IV width. The three bytes are used directly
// as the GCM nonce.
const PayloadIVSize = 3

// Payload is the encrypted body section: a 3-byte length covering IV,
// ciphertext and tag, then those fields.
type Payload struct {
	IV         []byte
	Ciphertext []byte
	Tag        []byte
}

// Signature is the optional trailing signature section.
type Signature struct {
	PublicKey []byte
	Value     []byte
}

// Envelope is a full container: header, payload, optional signature.
type Envelope struct {
	Header    *Header
	Payload   *Payload
	Signature *Signature
}

// Parse reads a complete envelope.
func Parse(data []byte) (*Envelope, error) {
	r := bytes.NewReader(data)

	header, err := ParseHeader(r)
	if err != nil {
		return nil, err
	}

	payload, err := parsePayload(r, header.Cipher)
	if err != nil {
		return nil, err
	}

	env := &Envelope{Header: header, Payload: payload}

	if header.HasSignature {
		env.Signature, err = parseSignature(r, header.SignatureCurve)
		if err != nil {
			return nil, err
		}
	}

	if r.Len() != 0 {
		return nil, kaserrors.New(kaserrors.NanoTDFParse, "%d trailing bytes", r.Len())
	}

	return env, nil
}

func parsePayload(r io.Reader, cipher CipherMode) (*Payload, error) {
	lenBytes := make([]byte, 3)
	if _, err := io.ReadFull(r, lenBytes); err != nil {
		return nil, kaserrors.Wrap(kaserrors.NanoTDFParse, err, "truncated payload length")
	}

	length := int(lenBytes[0])<<16 | int(lenBytes[1])<<8 | int(lenBytes[2])

	tagSize, err := cipher.TagSize()
	if err != nil {
		return nil, err
	}

	if length < PayloadIVSize+tagSize {
		return nil, kaserrors.New(kaserrors.NanoTDFParse, "payload length %d too short", length)
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, kaserrors.Wrap(kaserrors.NanoTDFParse, err, "truncated payload")
	}

	return &Payload{
		IV:         body[:PayloadIVSize],
		Ciphertext: body[PayloadIVSize : length-tagSize],
		Tag:        body[length-tagSize:],
	}, nil
}

func parseSignature(r io.Reader, curve kascrypto.Curve) (*Signature, error) {
	sig := &Signature{
		PublicKey: make([]byte, curve.PublicKeyByteLength()),
		Value:     make([]byte, curve.SignatureByteLength()),
	}

	if _, err := io.ReadFull(r, sig.PublicKey); err != nil {
		return nil, kaserrors.Wrap(kaserrors.NanoTDFParse, err, "truncated signature key")
	}

	if _, err := io.ReadFull(r, sig.Value); err != nil {
		return nil, kaserrors.Wrap(kaserrors.NanoTDFParse, err, "truncated signature")
	}

	return sig, nil
}

// Serialize writes the envelope back to its byte form.
func (e *Envelope) Serialize() ([]byte, error) {
	header, err := e.Header.Serialize()
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer

	buf.Write(header)

	length := len(e.Payload.IV) + len(e.Payload.Ciphertext) + len(e.Payload.Tag)
	if length > 0xFFFFFF {
		return nil, kaserrors.New(kaserrors.NanoTDFParse, "payload too long")
	}

	buf.Write([]byte{byte(length >> 16), byte(length >> 8), byte(length)})
	buf.Write(e.Payload.IV)
	buf.Write(e.Payload.Ciphertext)
	buf.Write(e.Payload.Tag)

	if e.Signature != nil {
		buf.Write(e.Signature.PublicKey)
		buf.Write(e.Signature.Value)
	}

	return buf.Bytes(), nil
}

// VerifyBinding checks the header's policy binding. ECDSA mode verifies the
// signature over the policy body with the ephemeral key; GMAC mode compares
// the binding to the trailing bytes of the body's SHA-256 digest.
func (h *Header) VerifyBinding() error {
	data := h.Policy.BindingData()

	if h.UseECDSABinding {
		ephemeral, err := h.EphemeralKey()
		if err != nil {
			return err
		}

		if err := kascrypto.VerifyECDSA(ephemeral, data, h.Policy.Binding); err != nil {
			return kaserrors.Wrap(kaserrors.PolicyBinding, err, "policy binding signature mismatch")
		}

		return nil
	}

	digest := sha256.Sum256(data)

	if len(h.Policy.Binding) != GMACBindingSize ||
		!kascrypto.HMACEqual(h.Policy.Binding, digest[len(digest)-GMACBindingSize:]) {
		return kaserrors.New(kaserrors.PolicyBinding, "policy binding digest mismatch")
	}

	return nil
}

// GMACBinding computes the binding value for data in GMAC mode.
func GMACBinding(data []byte) []byte {
	digest := sha256.Sum256(data)
	return digest[len(digest)-GMACBindingSize:]
}

// EphemeralKey decompresses the header's ephemeral public key.
func (h *Header) EphemeralKey() (*ecdsa.PublicKey, error) {
	key, err := kascrypto.DecompressPublicKey(h.Curve, h.EphemeralPublicKey)
	if err != nil {
		return nil, kaserrors.Wrap(kaserrors.NanoTDFParse, err, "bad ephemeral key")
	}

	return key, nil
}
