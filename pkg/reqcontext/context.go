/*
Copyright Trust Data Format Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package reqcontext carries per-request metadata through the rewrap
// pipeline. Keys are case-insensitive, values accumulate in insertion order,
// so repeated headers survive the trip into plugins intact.
package reqcontext

import "strings"

type entry struct {
	key    string
	values []string
}

// Context is an ordered, case-insensitive multimap of request metadata.
// The zero value is not usable; construct with New.
type Context struct {
	entries []*entry
	index   map[string]*entry
}

// New returns an empty Context.
func New() *Context {
	return &Context{index: map[string]*entry{}}
}

// FromHeaders builds a Context from HTTP-style headers, preserving the
// order keys first appear in.
func FromHeaders(headers map[string][]string, order []string) *Context {
	ctx := New()

	for _, key := range order {
		for _, v := range headers[key] {
			ctx.Add(key, v)
		}
	}

	return ctx
}

// Add appends a value under key. The key keeps the casing of its first
// insertion.
func (c *Context) Add(key, value string) {
	folded := strings.ToLower(key)

	if e, ok := c.index[folded]; ok {
		e.values = append(e.values, value)
		return
	}

	e := &entry{key: key, values: []string{value}}
	c.entries = append(c.entries, e)
	c.index[folded] = e
}

// Get returns the first value for key, or "".
func (c *Context) Get(key string) string {
	if e, ok := c.index[strings.ToLower(key)]; ok && len(e.values) > 0 {
		return e.values[0]
	}

	return ""
}

// Values returns a copy of all values for key in insertion order.
func (c *Context) Values(key string) []string {
	e, ok := c.index[strings.ToLower(key)]
	if !ok {
		return nil
	}

	out := make([]string, len(e.values))
	copy(out, e.values)

	return out
}

// Has reports whether key is present.
func (c *Context) Has(key string) bool {
	_, ok := c.index[strings.ToLower(key)]
	return ok
}

// Keys returns the keys in first-insertion order, original casing.
func (c *Context) Keys() []string {
	keys := make([]string, 0, len(c.entries))
	for _, e := range c.entries {
		keys = append(keys, e.key)
	}

	return keys
}

// Data returns a deep copy of the whole map keyed by original casing.
// Mutating the copy does not affect the Context.
func (c *Context) Data() map[string][]string {
	out := make(map[string][]string, len(c.entries))

	for _, e := range c.entries {
		values := make([]string, len(e.values))
		copy(values, e.values)
		out[e.key] = values
	}

	return out
}

// Clone returns an independent copy.
func (c *Context) Clone() *Context {
	clone := New()

	for _, e := range c.entries {
		for _, v := range e.values {
			clone.Add(e.key, v)
		}
	}

	return clone
}
