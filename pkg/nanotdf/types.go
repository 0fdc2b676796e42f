/*
Copyright Trust Data Format Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package nanotdf parses and serialises the compact binary TDF container.
// All multi-byte integers are big-endian; the layouts here are bit-exact, a
// parse followed by a serialise reproduces the input bytes.
package nanotdf

import (
	kascrypto "github.com/trustdataformat/kas-go/pkg/crypto"
	"github.com/trustdataformat/kas-go/pkg/kaserrors"
)

// Container magic: 18 bits of tag and a 6-bit version packed into "L1L".
const (
	magicByte0 = 0x4C
	magicByte1 = 0x31
	magicByte2 = 0x4C

	versionMask    = 0x3F
	currentVersion = 12
)

// CipherMode selects the AES-256-GCM tag width for the payload and for
// embedded encrypted policies.
type CipherMode uint8

// Cipher modes, ordered by tag width.
const (
	CipherGCM64  CipherMode = 0x00
	CipherGCM96  CipherMode = 0x01
	CipherGCM104 CipherMode = 0x02
	CipherGCM112 CipherMode = 0x03
	CipherGCM120 CipherMode = 0x04
	CipherGCM128 CipherMode = 0x05
)

// TagSize returns the GCM tag width in bytes.
func (m CipherMode) TagSize() (int, error) {
	switch m {
	case CipherGCM64:
		return 8, nil
	case CipherGCM96:
		return 12, nil
	case CipherGCM104:
		return 13, nil
	case CipherGCM112:
		return 14, nil
	case CipherGCM120:
		return 15, nil
	case CipherGCM128:
		return 16, nil
	}

	return 0, kaserrors.New(kaserrors.NanoTDFParse, "unknown cipher mode %d", m)
}

// Protocol is the resource locator scheme nibble.
type Protocol uint8

// Locator protocols.
const (
	ProtocolHTTP  Protocol = 0x00
	ProtocolHTTPS Protocol = 0x01
)

// KIDType is the locator's key identifier tag nibble.
type KIDType uint8

// Key identifier widths.
const (
	KIDNone   KIDType = 0x00
	KID2Byte  KIDType = 0x01
	KID8Byte  KIDType = 0x02
	KID32Byte KIDType = 0x03
)

// Size returns the identifier width in bytes.
func (t KIDType) Size() int {
	switch t {
	case KID2Byte:
		return 2
	case KID8Byte:
		return 8
	case KID32Byte:
		return 32
	}

	return 0
}

// PolicyType tags how the policy travels in the header.
type PolicyType uint8

// Policy types.
const (
	PolicyRemote       PolicyType = 0x00
	PolicyPlaintext    PolicyType = 0x01
	PolicyEncrypted    PolicyType = 0x02
	PolicyEncryptedPKA PolicyType = 0x03
)

// GMACBindingSize is the truncated-digest binding width.
const GMACBindingSize = 8

func curveFromMode(mode uint8) (kascrypto.Curve, error) {
	c := kascrypto.Curve(mode)
	if _, err := c.Params(); err != nil {
		return 0, kaserrors.New(kaserrors.NanoTDFParse, "unsupported curve mode %d", mode)
	}

	return c, nil
}
