/*
Copyright Trust Data Format Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package plugin

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/trustdataformat/kas-go/pkg/entity"
	"github.com/trustdataformat/kas-go/pkg/kaserrors"
	"github.com/trustdataformat/kas-go/pkg/policy"
)

type stubRewrap struct {
	resp *Response
	err  error
}

func (s *stubRewrap) Update(*Request) (*Response, error) {
	return s.resp, s.err
}

type stubUpsert struct {
	msg string
	err error
}

func (s *stubUpsert) Upsert(*Request) (string, error) {
	return s.msg, s.err
}

type stubProbe struct {
	err error
}

func (s *stubProbe) Healthz(string) error {
	return s.err
}

func TestChainUpdateMerges(t *testing.T) {
	chain := NewChain()
	chain.Register(&stubRewrap{resp: &Response{Metadata: map[string]interface{}{"a": 1}}})
	chain.Register(&stubRewrap{resp: &Response{Metadata: map[string]interface{}{"b": 2}}})

	resp, err := chain.Update(&Request{})
	require.NoError(t, err)
	require.Equal(t, map[string]interface{}{"a": 1, "b": 2}, resp.Metadata)
	require.Empty(t, resp.EntityWrappedKey)
}

func TestChainUpdateShortCircuits(t *testing.T) {
	third := &stubRewrap{err: errors.New("must not run")}

	chain := NewChain()
	chain.Register(&stubRewrap{resp: &Response{KASWrappedKey: []byte("rotated")}})
	chain.Register(&stubRewrap{resp: &Response{EntityWrappedKey: "d29u"}})
	chain.Register(third)

	resp, err := chain.Update(&Request{})
	require.NoError(t, err)
	require.Equal(t, "d29u", resp.EntityWrappedKey)
	require.Equal(t, []byte("rotated"), resp.KASWrappedKey)
}

func TestChainUpdateErrors(t *testing.T) {
	t.Run("authorization passes through", func(t *testing.T) {
		chain := NewChain()
		chain.Register(&stubRewrap{err: kaserrors.New(kaserrors.Authorization, "blocked")})

		_, err := chain.Update(&Request{})
		require.Equal(t, kaserrors.Authorization, kaserrors.KindOf(err))
	})

	t.Run("adjudicator passes through", func(t *testing.T) {
		chain := NewChain()
		chain.Register(&stubRewrap{err: kaserrors.New(kaserrors.Adjudicator, "denied")})

		_, err := chain.Update(&Request{})
		require.Equal(t, kaserrors.Adjudicator, kaserrors.KindOf(err))
	})

	t.Run("other failures become backend errors", func(t *testing.T) {
		chain := NewChain()
		chain.Register(&stubRewrap{err: errors.New("connection refused")})

		_, err := chain.Update(&Request{})
		require.Equal(t, kaserrors.PluginBackend, kaserrors.KindOf(err))
	})
}

func TestChainUpsert(t *testing.T) {
	chain := NewChain()
	chain.Register(&stubUpsert{msg: "synced"})
	chain.Register(&stubUpsert{})

	messages, err := chain.Upsert(&Request{})
	require.NoError(t, err)
	require.Equal(t, []string{"synced"}, messages)

	chain.Register(&stubUpsert{err: errors.New("backend down")})

	_, err = chain.Upsert(&Request{})
	require.Equal(t, kaserrors.PluginBackend, kaserrors.KindOf(err))
}

func TestChainHealthz(t *testing.T) {
	chain := NewChain()
	chain.Register(&stubProbe{})
	require.NoError(t, chain.Healthz("readiness"))

	chain.Register(&stubProbe{err: errors.New("dependency down")})

	err := chain.Healthz("readiness")
	require.Equal(t, kaserrors.PluginFailed, kaserrors.KindOf(err))
}

func TestEOAllowList(t *testing.T) {
	p := NewEOAllowList("alice@example.com, bob@example.com")

	t.Run("listed passes", func(t *testing.T) {
		_, err := p.Update(&Request{Entity: &entity.Entity{UserID: "alice@example.com"}})
		require.NoError(t, err)
	})

	t.Run("unlisted denied", func(t *testing.T) {
		_, err := p.Update(&Request{Entity: &entity.Entity{UserID: "eve@example.com"}})
		require.Equal(t, kaserrors.Authorization, kaserrors.KindOf(err))
	})

	t.Run("no entity passes", func(t *testing.T) {
		_, err := p.Update(&Request{})
		require.NoError(t, err)
	})
}

func TestEOBlockList(t *testing.T) {
	p := NewEOBlockList("eve@example.com")

	t.Run("unlisted passes", func(t *testing.T) {
		_, err := p.Update(&Request{Entity: &entity.Entity{UserID: "alice@example.com"}})
		require.NoError(t, err)
	})

	t.Run("listed denied", func(t *testing.T) {
		_, err := p.Update(&Request{Entity: &entity.Entity{UserID: "eve@example.com"}})
		require.Equal(t, kaserrors.Authorization, kaserrors.KindOf(err))
	})
}

func TestEASAttributeFetcher(t *testing.T) {
	authority := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
		require.Equal(t, http.MethodPost, req.Method)
		require.Equal(t, "/v1/attrName", req.URL.Path)

		fmt.Fprint(rw, `[{"authorityNamespace":"https://acme.example.com","name":"proj","rule":"anyOf"}]`)
	}))
	defer authority.Close()

	fetcher := NewEASAttributeFetcher(authority.URL + "/")

	entries, err := fetcher.FetchAttributes([]string{"https://acme.example.com/attr/proj"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "anyOf", entries[0].Rule)
}

func TestEASAttributeFetcherErrors(t *testing.T) {
	t.Run("empty namespace list skips the call", func(t *testing.T) {
		fetcher := NewEASAttributeFetcher("http://127.0.0.1:1")

		entries, err := fetcher.FetchAttributes(nil)
		require.NoError(t, err)
		require.Nil(t, entries)
	})

	t.Run("non-200", func(t *testing.T) {
		authority := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
			http.Error(rw, "nope", http.StatusBadGateway)
		}))
		defer authority.Close()

		_, err := NewEASAttributeFetcher(authority.URL).FetchAttributes([]string{"ns"})
		require.Equal(t, kaserrors.PluginBackend, kaserrors.KindOf(err))
	})

	t.Run("undecodable body", func(t *testing.T) {
		authority := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
			fmt.Fprint(rw, `{{{`)
		}))
		defer authority.Close()

		_, err := NewEASAttributeFetcher(authority.URL).FetchAttributes([]string{"ns"})
		require.Equal(t, kaserrors.PluginBackend, kaserrors.KindOf(err))
	})
}

func TestChainFetchAttributes(t *testing.T) {
	authority := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
		fmt.Fprint(rw, `[{"authorityNamespace":"https://acme.example.com","name":"proj","rule":"anyOf"}]`)
	}))
	defer authority.Close()

	chain := NewChain()
	chain.Register(NewEASAttributeFetcher(authority.URL))

	cache := policy.NewCache()
	require.NoError(t, chain.FetchAttributes(cache, []string{"https://acme.example.com/attr/proj"}))
	require.Equal(t, policy.RuleAnyOf, cache.Get("https://acme.example.com/attr/proj").Rule)
}
