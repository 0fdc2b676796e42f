/*
Copyright Trust Data Format Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package policy

import (
	"github.com/trustdataformat/kas-go/pkg/kaserrors"
)

// Rule is the access rule governing one attribute namespace.
type Rule string

// Supported rules.
const (
	RuleAllOf     Rule = "allOf"
	RuleAnyOf     Rule = "anyOf"
	RuleHierarchy Rule = "hierarchy"
)

// AttributePolicy is the rule configuration for one namespace. Hierarchy
// policies carry Order, highest rank first.
type AttributePolicy struct {
	Namespace string
	Rule      Rule
	Order     []string
}

// Rank returns the index of value in the hierarchy order, or -1 when the
// value is not ranked. Lower index means higher rank.
func (p *AttributePolicy) Rank(value string) int {
	for i, v := range p.Order {
		if v == value {
			return i
		}
	}

	return -1
}

// RawAttributePolicy is the authority's wire form of one policy entry.
type RawAttributePolicy struct {
	AuthorityNamespace string   `json:"authorityNamespace"`
	Name               string   `json:"name"`
	Rule               string   `json:"rule"`
	Order              []string `json:"order,omitempty"`
}

// Cache maps namespaces to their AttributePolicy. It is request-scoped and
// needs no locking; a namespace the authority never described resolves to a
// default allOf policy.
type Cache struct {
	policies map[string]*AttributePolicy
}

// NewCache returns an empty Cache.
func NewCache() *Cache {
	return &Cache{policies: map[string]*AttributePolicy{}}
}

// Get returns the policy for ns, defaulting to allOf when the authority was
// silent about the namespace.
func (c *Cache) Get(ns string) *AttributePolicy {
	if p, ok := c.policies[ns]; ok {
		return p
	}

	return &AttributePolicy{Namespace: ns, Rule: RuleAllOf}
}

// Has reports whether ns was explicitly configured.
func (c *Cache) Has(ns string) bool {
	_, ok := c.policies[ns]
	return ok
}

// Put inserts one policy.
func (c *Cache) Put(p *AttributePolicy) {
	c.policies[p.Namespace] = p
}

// LoadConfig bulk-inserts entries from an authority response.
func (c *Cache) LoadConfig(raw []RawAttributePolicy) error {
	for _, entry := range raw {
		if !ValidAuthority(entry.AuthorityNamespace) {
			return kaserrors.New(kaserrors.AttributePolicyConfig,
				"bad authority namespace %q", entry.AuthorityNamespace)
		}

		rule := Rule(entry.Rule)

		switch rule {
		case RuleAllOf, RuleAnyOf, RuleHierarchy:
		case "":
			rule = RuleAllOf
		default:
			return kaserrors.New(kaserrors.UnknownAttributePolicy, "unknown rule %q", entry.Rule)
		}

		if rule == RuleHierarchy && len(entry.Order) == 0 {
			return kaserrors.New(kaserrors.AttributePolicyConfig,
				"hierarchy policy for %q has no order", entry.Name)
		}

		ns := entry.AuthorityNamespace + "/attr/" + entry.Name
		if !ValidNamespace(ns) {
			return kaserrors.New(kaserrors.AttributePolicyConfig, "bad namespace %q", ns)
		}

		c.Put(&AttributePolicy{Namespace: ns, Rule: rule, Order: entry.Order})
	}

	return nil
}
