/*
Copyright Trust Data Format Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package nanotdf

import (
	"bytes"
	"io"
	"strings"

	"github.com/trustdataformat/kas-go/pkg/kaserrors"
)

// ResourceLocator is the compact URL form used for the KAS address and for
// remote policies: a protocol nibble, a kid-type nibble, a length-prefixed
// body, and an optional fixed-width key identifier.
type ResourceLocator struct {
	Protocol Protocol
	KIDType  KIDType
	Body     string
	KID      []byte
}

// NewResourceLocator splits a URL into a locator. Key identifiers of width
// 2, 8 or 32 are tagged accordingly; any other width is dropped.
func NewResourceLocator(url string, kid []byte) (*ResourceLocator, error) {
	loc := &ResourceLocator{}

	switch {
	case strings.HasPrefix(url, "https://"):
		loc.Protocol = ProtocolHTTPS
		loc.Body = url[len("https://"):]
	case strings.HasPrefix(url, "http://"):
		loc.Protocol = ProtocolHTTP
		loc.Body = url[len("http://"):]
	default:
		return nil, kaserrors.New(kaserrors.NanoTDFParse, "locator url has no scheme")
	}

	if len(loc.Body) > 255 {
		return nil, kaserrors.New(kaserrors.NanoTDFParse, "locator body too long")
	}

	switch len(kid) {
	case 2:
		loc.KIDType = KID2Byte
	case 8:
		loc.KIDType = KID8Byte
	case 32:
		loc.KIDType = KID32Byte
	default:
		kid = nil
	}

	loc.KID = kid

	return loc, nil
}

// URL reassembles the full URL.
func (l *ResourceLocator) URL() string {
	if l.Protocol == ProtocolHTTPS {
		return "https://" + l.Body
	}

	return "http://" + l.Body
}

func parseLocator(r io.Reader) (*ResourceLocator, error) {
	head := make([]byte, 2)
	if _, err := io.ReadFull(r, head); err != nil {
		return nil, kaserrors.Wrap(kaserrors.NanoTDFParse, err, "truncated locator")
	}

	loc := &ResourceLocator{
		Protocol: Protocol(head[0] & 0x0F),
		KIDType:  KIDType(head[0] >> 4 & 0x0F),
	}

	body := make([]byte, head[1])
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, kaserrors.Wrap(kaserrors.NanoTDFParse, err, "truncated locator body")
	}

	loc.Body = string(body)

	if size := loc.KIDType.Size(); size > 0 {
		loc.KID = make([]byte, size)
		if _, err := io.ReadFull(r, loc.KID); err != nil {
			return nil, kaserrors.Wrap(kaserrors.NanoTDFParse, err, "truncated locator kid")
		}
	}

	return loc, nil
}

func (l *ResourceLocator) serialize(buf *bytes.Buffer) {
	buf.WriteByte(byte(l.KIDType)<<4 | byte(l.Protocol)&0x0F)
	buf.WriteByte(byte(len(l.Body)))
	buf.WriteString(l.Body)
	buf.Write(l.KID)
}
