/*
Copyright Trust Data Format Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package nanotdf

import (
	"bytes"
	"encoding/binary"
	"io"

	kascrypto "github.com/trustdataformat/kas-go/pkg/crypto"
	"github.com/trustdataformat/kas-go/pkg/kaserrors"
)

// Policy is the header's embedded policy section plus its binding.
type Policy struct {
	Type    PolicyType
	Remote  *ResourceLocator
	Body    []byte
	Binding []byte
}

// BindingData returns the bytes the binding covers: the URL body for remote
// policies, the (possibly encrypted) body otherwise.
func (p *Policy) BindingData() []byte {
	if p.Type == PolicyRemote && p.Remote != nil {
		return []byte(p.Remote.Body)
	}

	return p.Body
}

// Header is the parsed container header.
type Header struct {
	KAS                *ResourceLocator
	UseECDSABinding    bool
	Curve              kascrypto.Curve
	HasSignature       bool
	SignatureCurve     kascrypto.Curve
	Cipher             CipherMode
	Policy             Policy
	EphemeralPublicKey []byte
}

// ParseHeader reads a header off r, leaving the reader positioned at the
// payload.
func ParseHeader(r io.Reader) (*Header, error) {
	magic := make([]byte, 3)
	if _, err := io.ReadFull(r, magic); err != nil {
		return nil, kaserrors.Wrap(kaserrors.NanoTDFParse, err, "truncated magic")
	}

	if magic[0] != magicByte0 || magic[1] != magicByte1 || magic[2]&^versionMask != magicByte2&^versionMask {
		return nil, kaserrors.New(kaserrors.NanoTDFParse, "bad magic")
	}

	if magic[2]&versionMask != currentVersion {
		return nil, kaserrors.New(kaserrors.NanoTDFParse, "unsupported version %d", magic[2]&versionMask)
	}

	h := &Header{}

	kas, err := parseLocator(r)
	if err != nil {
		return nil, err
	}

	h.KAS = kas

	modes := make([]byte, 2)
	if _, err := io.ReadFull(r, modes); err != nil {
		return nil, kaserrors.Wrap(kaserrors.NanoTDFParse, err, "truncated mode bytes")
	}

	h.UseECDSABinding = modes[0]&0x80 != 0

	h.Curve, err = curveFromMode(modes[0] & 0x07)
	if err != nil {
		return nil, err
	}

	h.HasSignature = modes[1]&0x80 != 0

	h.SignatureCurve, err = curveFromMode(modes[1] >> 4 & 0x07)
	if err != nil {
		return nil, err
	}

	h.Cipher = CipherMode(modes[1] & 0x0F)
	if _, err := h.Cipher.TagSize(); err != nil {
		return nil, err
	}

	if err := h.parsePolicy(r); err != nil {
		return nil, err
	}

	h.EphemeralPublicKey = make([]byte, h.Curve.PublicKeyByteLength())
	if _, err := io.ReadFull(r, h.EphemeralPublicKey); err != nil {
		return nil, kaserrors.Wrap(kaserrors.NanoTDFParse, err, "truncated ephemeral key")
	}

	return h, nil
}

func (h *Header) parsePolicy(r io.Reader) error {
	typeByte := make([]byte, 1)
	if _, err := io.ReadFull(r, typeByte); err != nil {
		return kaserrors.Wrap(kaserrors.NanoTDFParse, err, "truncated policy type")
	}

	h.Policy.Type = PolicyType(typeByte[0])

	switch h.Policy.Type {
	case PolicyRemote:
		remote, err := parseLocator(r)
		if err != nil {
			return err
		}

		h.Policy.Remote = remote
	case PolicyPlaintext, PolicyEncrypted, PolicyEncryptedPKA:
		lenBytes := make([]byte, 2)
		if _, err := io.ReadFull(r, lenBytes); err != nil {
			return kaserrors.Wrap(kaserrors.NanoTDFParse, err, "truncated policy length")
		}

		h.Policy.Body = make([]byte, binary.BigEndian.Uint16(lenBytes))
		if _, err := io.ReadFull(r, h.Policy.Body); err != nil {
			return kaserrors.Wrap(kaserrors.NanoTDFParse, err, "truncated policy body")
		}
	default:
		return kaserrors.New(kaserrors.NanoTDFParse, "unknown policy type %d", h.Policy.Type)
	}

	bindingSize := GMACBindingSize
	if h.UseECDSABinding {
		bindingSize = h.Curve.SignatureByteLength()
	}

	h.Policy.Binding = make([]byte, bindingSize)
	if _, err := io.ReadFull(r, h.Policy.Binding); err != nil {
		return kaserrors.Wrap(kaserrors.NanoTDFParse, err, "truncated policy binding")
	}

	return nil
}

// Serialize writes the header back to its byte form.
func (h *Header) Serialize() ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(magicByte0)
	buf.WriteByte(magicByte1)
	buf.WriteByte(magicByte2&^versionMask | currentVersion)

	if h.KAS == nil {
		return nil, kaserrors.New(kaserrors.NanoTDFParse, "header has no kas locator")
	}

	h.KAS.serialize(&buf)

	eccMode := byte(h.Curve) & 0x07
	if h.UseECDSABinding {
		eccMode |= 0x80
	}

	buf.WriteByte(eccMode)

	symConfig := byte(h.Cipher)&0x0F | (byte(h.SignatureCurve)&0x07)<<4
	if h.HasSignature {
		symConfig |= 0x80
	}

	buf.WriteByte(symConfig)

	buf.WriteByte(byte(h.Policy.Type))

	switch h.Policy.Type {
	case PolicyRemote:
		if h.Policy.Remote == nil {
			return nil, kaserrors.New(kaserrors.NanoTDFParse, "remote policy has no locator")
		}

		h.Policy.Remote.serialize(&buf)
	case PolicyPlaintext, PolicyEncrypted, PolicyEncryptedPKA:
		if len(h.Policy.Body) > 0xFFFF {
			return nil, kaserrors.New(kaserrors.NanoTDFParse, "policy body too long")
		}

		lenBytes := make([]byte, 2)
		binary.BigEndian.PutUint16(lenBytes, uint16(len(h.Policy.Body)))
		buf.Write(lenBytes)
		buf.Write(h.Policy.Body)
	}

	buf.Write(h.Policy.Binding)
	buf.Write(h.EphemeralPublicKey)

	return buf.Bytes(), nil
}
