/*
Copyright Trust Data Format Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package policy models data policies and the attribute values they carry.
// An attribute URI has the shape <authority>/attr/<name>/value/<value>; the
// authority host is case-insensitive, the name and value are not.
package policy

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/trustdataformat/kas-go/pkg/kaserrors"
)

// Attribute URI component patterns. The host accepts hostname:port,
// dotted names, and IPv4:port forms.
const (
	schemePattern = `https?://`
	hostPattern   = `(([a-z0-9][a-z0-9]+:[0-9]{1,4})` +
		`|(([a-z0-9][a-z0-9-]*[a-z0-9]\.)+[^\s/]{2,})` +
		`|([0-9]{1,3}\.[0-9]{1,3}\.[0-9]{1,3}\.[0-9]{1,3}:[0-9]{1,4}))`
	namePattern  = `/attr/[a-z0-9]([a-z0-9-]+[a-z0-9])?`
	valuePattern = `/value/[a-z0-9]([a-z0-9-]+[a-z0-9])?`
)

var (
	authorityCheck = regexp.MustCompile(`(?i)^` + schemePattern + hostPattern + `$`)
	namespaceCheck = regexp.MustCompile(`(?i)^` + schemePattern + hostPattern + namePattern + `$`)
	attributeCheck = regexp.MustCompile(`(?i)^` + schemePattern + hostPattern + namePattern + valuePattern + `$`)
)

// AttributeValue is one attribute URI, split into its parts. Immutable after
// construction.
type AttributeValue struct {
	authority string
	name      string
	value     string
}

// ParseAttribute validates and splits an attribute URI.
func ParseAttribute(uri string) (AttributeValue, error) {
	if !attributeCheck.MatchString(uri) {
		return AttributeValue{}, kaserrors.New(kaserrors.InvalidAttribute, "malformed attribute %q", uri)
	}

	attrIdx := strings.Index(strings.ToLower(uri), "/attr/")
	rest := uri[attrIdx+len("/attr/"):]
	valueIdx := strings.Index(rest, "/value/")

	return AttributeValue{
		authority: strings.ToLower(uri[:attrIdx]),
		name:      rest[:valueIdx],
		value:     rest[valueIdx+len("/value/"):],
	}, nil
}

// ValidAuthority reports whether uri is a bare authority URI.
func ValidAuthority(uri string) bool {
	return authorityCheck.MatchString(uri)
}

// ValidNamespace reports whether uri is an <authority>/attr/<name> URI.
func ValidNamespace(uri string) bool {
	return namespaceCheck.MatchString(uri)
}

// Authority returns the lower-cased authority part.
func (a AttributeValue) Authority() string {
	return a.authority
}

// Name returns the attribute name.
func (a AttributeValue) Name() string {
	return a.name
}

// Value returns the attribute value.
func (a AttributeValue) Value() string {
	return a.value
}

// Namespace returns <authority>/attr/<name>, the key used for policy lookup.
func (a AttributeValue) Namespace() string {
	return fmt.Sprintf("%s/attr/%s", a.authority, a.name)
}

// String returns the canonical URI form.
func (a AttributeValue) String() string {
	return fmt.Sprintf("%s/attr/%s/value/%s", a.authority, a.name, a.value)
}

// AttributeSet is a deduplicated collection of AttributeValues.
type AttributeSet struct {
	values map[AttributeValue]struct{}
}

// NewAttributeSet builds a set from the given values.
func NewAttributeSet(values ...AttributeValue) *AttributeSet {
	s := &AttributeSet{values: map[AttributeValue]struct{}{}}

	for _, v := range values {
		s.values[v] = struct{}{}
	}

	return s
}

// ParseAttributeSet parses each URI and collects the results.
func ParseAttributeSet(uris []string) (*AttributeSet, error) {
	s := NewAttributeSet()

	for _, uri := range uris {
		v, err := ParseAttribute(uri)
		if err != nil {
			return nil, err
		}

		s.Add(v)
	}

	return s, nil
}

// Add inserts a value.
func (s *AttributeSet) Add(v AttributeValue) {
	s.values[v] = struct{}{}
}

// Contains reports membership.
func (s *AttributeSet) Contains(v AttributeValue) bool {
	_, ok := s.values[v]
	return ok
}

// Len returns the number of distinct values.
func (s *AttributeSet) Len() int {
	return len(s.values)
}

// Values returns the members in unspecified order.
func (s *AttributeSet) Values() []AttributeValue {
	out := make([]AttributeValue, 0, len(s.values))
	for v := range s.values {
		out = append(out, v)
	}

	return out
}

// InNamespace returns the members whose namespace matches ns.
func (s *AttributeSet) InNamespace(ns string) []AttributeValue {
	var out []AttributeValue

	for v := range s.values {
		if v.Namespace() == ns {
			out = append(out, v)
		}
	}

	return out
}

// ClusterByNamespace groups the members by their namespace key.
func (s *AttributeSet) ClusterByNamespace() map[string][]AttributeValue {
	out := map[string][]AttributeValue{}

	for v := range s.values {
		ns := v.Namespace()
		out[ns] = append(out[ns], v)
	}

	return out
}
