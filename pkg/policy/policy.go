/*
Copyright Trust Data Format Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package policy

import (
	"encoding/base64"
	"encoding/json"

	"github.com/trustdataformat/kas-go/pkg/kaserrors"
)

// Policy is a parsed data policy. The uuid and the canonical bytes are fixed
// at construction; the binding HMAC is computed over the canonical bytes
// exactly as the requester supplied them, so they are never re-serialised.
// DataAttributes and Dissem stay mutable for plugin updates.
type Policy struct {
	uuid      string
	canonical []byte

	DataAttributes *AttributeSet
	Dissem         *Dissem
}

type rawPolicy struct {
	UUID string `json:"uuid"`
	Body struct {
		DataAttributes []struct {
			Attribute string `json:"attribute"`
		} `json:"dataAttributes"`
		Dissem []string `json:"dissem"`
	} `json:"body"`
}

// FromRawCanonical parses a base64 canonical policy. Two shapes are
// accepted: the JSON object form, and a bare JSON string, which remote
// nanoTDF policies use to carry just the policy URL. The bare form yields a
// policy with no attributes and no dissem, so it adjudicates as wildcard.
func FromRawCanonical(rawCanonical string) (*Policy, error) {
	decoded, err := base64.StdEncoding.DecodeString(rawCanonical)
	if err != nil {
		return nil, kaserrors.Wrap(kaserrors.Policy, err, "policy is not base64")
	}

	var bare string
	if json.Unmarshal(decoded, &bare) == nil {
		return &Policy{
			uuid:           bare,
			canonical:      []byte(rawCanonical),
			DataAttributes: NewAttributeSet(),
			Dissem:         NewDissem(),
		}, nil
	}

	var raw rawPolicy
	if err := json.Unmarshal(decoded, &raw); err != nil {
		return nil, kaserrors.Wrap(kaserrors.Policy, err, "policy is not JSON")
	}

	if raw.UUID == "" {
		return nil, kaserrors.New(kaserrors.Policy, "policy has no uuid")
	}

	attrs := NewAttributeSet()

	for _, da := range raw.Body.DataAttributes {
		v, err := ParseAttribute(da.Attribute)
		if err != nil {
			return nil, err
		}

		attrs.Add(v)
	}

	return &Policy{
		uuid:           raw.UUID,
		canonical:      []byte(rawCanonical),
		DataAttributes: attrs,
		Dissem:         NewDissem(raw.Body.Dissem...),
	}, nil
}

// NewRemote builds the policy for a remote nanoTDF reference: the URL is
// the identifier, and with no attributes or dissem the policy adjudicates
// as wildcard.
func NewRemote(url string) *Policy {
	return &Policy{
		uuid:           url,
		canonical:      []byte(base64.StdEncoding.EncodeToString([]byte(url))),
		DataAttributes: NewAttributeSet(),
		Dissem:         NewDissem(),
	}
}

// UUID returns the policy identifier.
func (p *Policy) UUID() string {
	return p.uuid
}

// CanonicalBytes returns a copy of the base64 canonical form as received.
func (p *Policy) CanonicalBytes() []byte {
	return append([]byte{}, p.canonical...)
}

// Dissem is an order-free set of entity identifiers. Empty means wildcard.
type Dissem struct {
	members map[string]struct{}
}

// NewDissem builds a dissemination set.
func NewDissem(members ...string) *Dissem {
	d := &Dissem{members: map[string]struct{}{}}

	for _, m := range members {
		d.members[m] = struct{}{}
	}

	return d
}

// Add inserts an identifier.
func (d *Dissem) Add(member string) {
	d.members[member] = struct{}{}
}

// Contains reports membership.
func (d *Dissem) Contains(member string) bool {
	_, ok := d.members[member]
	return ok
}

// Len returns the set size.
func (d *Dissem) Len() int {
	return len(d.members)
}

// Members returns the identifiers in unspecified order.
func (d *Dissem) Members() []string {
	out := make([]string, 0, len(d.members))
	for m := range d.members {
		out = append(out, m)
	}

	return out
}
