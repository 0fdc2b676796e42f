/*
Copyright Trust Data Format Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package plugin defines the capability interfaces hooked around rewrap and
// upsert, and the chain that runs them. A plugin implements whichever
// capabilities it needs; the chain keeps one ordered slice per capability,
// registered once at startup.
package plugin

import (
	"github.com/trustdataformat/kas-go/pkg/common/log"
	"github.com/trustdataformat/kas-go/pkg/entity"
	"github.com/trustdataformat/kas-go/pkg/kaserrors"
	"github.com/trustdataformat/kas-go/pkg/policy"
	"github.com/trustdataformat/kas-go/pkg/reqcontext"
	"github.com/trustdataformat/kas-go/pkg/tdf3"
)

var logger = log.New("kas/plugin")

// Request is the material a rewrap or upsert plugin sees. Policy attributes
// and dissem may be mutated; the canonical bytes cannot be reached from here.
type Request struct {
	Policy    *policy.Policy
	Entity    *entity.Entity
	KeyAccess *tdf3.KeyAccess
	Context   *reqcontext.Context
}

// Response is a plugin's partial contribution to the rewrap response.
type Response struct {
	EntityWrappedKey string
	KASWrappedKey    []byte
	Metadata         map[string]interface{}
}

// AttributeFetcher resolves namespace rules from an attribute authority.
type AttributeFetcher interface {
	FetchAttributes(namespaces []string) ([]policy.RawAttributePolicy, error)
}

// RewrapMiddleware runs inside the rewrap pipeline before adjudication.
type RewrapMiddleware interface {
	Update(req *Request) (*Response, error)
}

// UpsertMiddleware receives policy metadata for back-end synchronisation.
type UpsertMiddleware interface {
	Upsert(req *Request) (string, error)
}

// HealthProbe answers liveness and readiness checks.
type HealthProbe interface {
	Healthz(probe string) error
}

// Chain holds the registered plugins in registration order.
type Chain struct {
	fetchers []AttributeFetcher
	rewraps  []RewrapMiddleware
	upserts  []UpsertMiddleware
	probes   []HealthProbe
}

// NewChain returns an empty Chain.
func NewChain() *Chain {
	return &Chain{}
}

// Register adds a plugin under every capability it implements.
func (c *Chain) Register(p interface{}) {
	registered := false

	if f, ok := p.(AttributeFetcher); ok {
		c.fetchers = append(c.fetchers, f)
		registered = true
	}

	if r, ok := p.(RewrapMiddleware); ok {
		c.rewraps = append(c.rewraps, r)
		registered = true
	}

	if u, ok := p.(UpsertMiddleware); ok {
		c.upserts = append(c.upserts, u)
		registered = true
	}

	if h, ok := p.(HealthProbe); ok {
		c.probes = append(c.probes, h)
		registered = true
	}

	if !registered {
		logger.Warnf("plugin %T implements no capability, ignored", p)
	}
}

// FetchAttributes asks each fetcher for the namespaces' rules and loads the
// results into the request's policy cache.
func (c *Chain) FetchAttributes(cache *policy.Cache, namespaces []string) error {
	for _, f := range c.fetchers {
		raw, err := f.FetchAttributes(namespaces)
		if err != nil {
			return err
		}

		if err := cache.LoadConfig(raw); err != nil {
			return err
		}
	}

	return nil
}

// Update runs the rewrap middlewares in order, merging their partial
// responses. The first plugin to produce an entityWrappedKey terminates the
// chain. An Authorization error from a plugin propagates as-is; any other
// plugin failure becomes a backend error.
func (c *Chain) Update(req *Request) (*Response, error) {
	merged := &Response{}

	for _, m := range c.rewraps {
		partial, err := m.Update(req)
		if err != nil {
			if kaserrors.IsKind(err, kaserrors.Authorization) || kaserrors.IsKind(err, kaserrors.Adjudicator) {
				return nil, err
			}

			return nil, kaserrors.Wrap(kaserrors.PluginBackend, err, "rewrap plugin %T failed", m)
		}

		if partial == nil {
			continue
		}

		if partial.KASWrappedKey != nil {
			merged.KASWrappedKey = partial.KASWrappedKey
		}

		for k, v := range partial.Metadata {
			if merged.Metadata == nil {
				merged.Metadata = map[string]interface{}{}
			}

			merged.Metadata[k] = v
		}

		if partial.EntityWrappedKey != "" {
			merged.EntityWrappedKey = partial.EntityWrappedKey
			return merged, nil
		}
	}

	return merged, nil
}

// Upsert runs the upsert middlewares in order and collects their messages.
func (c *Chain) Upsert(req *Request) ([]string, error) {
	messages := make([]string, 0, len(c.upserts))

	for _, m := range c.upserts {
		msg, err := m.Upsert(req)
		if err != nil {
			return nil, kaserrors.Wrap(kaserrors.PluginBackend, err, "upsert plugin %T failed", m)
		}

		if msg != "" {
			messages = append(messages, msg)
		}
	}

	return messages, nil
}

// Healthz runs every registered probe.
func (c *Chain) Healthz(probe string) error {
	for _, h := range c.probes {
		if err := h.Healthz(probe); err != nil {
			return kaserrors.Wrap(kaserrors.PluginFailed, err, "probe %T unhealthy", h)
		}
	}

	return nil
}
