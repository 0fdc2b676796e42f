/*
Copyright Trust Data Format Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package reqcontext

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAddAndGet(t *testing.T) {
	ctx := New()

	ctx.Add("Content-Type", "application/json")
	ctx.Add("content-type", "text/plain")

	require.Equal(t, "application/json", ctx.Get("CONTENT-TYPE"))
	require.Equal(t, []string{"application/json", "text/plain"}, ctx.Values("Content-Type"))
	require.True(t, ctx.Has("content-TYPE"))
	require.False(t, ctx.Has("accept"))
}

func TestDuplicatesKeepInsertionOrder(t *testing.T) {
	ctx := New()

	ctx.Add("X-Forwarded-For", "10.0.0.1")
	ctx.Add("Accept", "text/html")
	ctx.Add("x-forwarded-for", "10.0.0.2")
	ctx.Add("X-FORWARDED-FOR", "10.0.0.3")

	require.Equal(t, []string{"X-Forwarded-For", "Accept"}, ctx.Keys())
	require.Equal(t, []string{"10.0.0.1", "10.0.0.2", "10.0.0.3"}, ctx.Values("x-forwarded-for"))
}

func TestGettersReturnCopies(t *testing.T) {
	ctx := New()
	ctx.Add("Accept", "text/html")

	values := ctx.Values("Accept")
	values[0] = "mutated"

	require.Equal(t, "text/html", ctx.Get("Accept"))

	data := ctx.Data()
	data["Accept"][0] = "mutated"

	require.Equal(t, "text/html", ctx.Get("Accept"))
}

func TestFromHeaders(t *testing.T) {
	headers := map[string][]string{
		"Authorization": {"Bearer abc"},
		"Accept":        {"text/html", "application/json"},
	}

	ctx := FromHeaders(headers, []string{"Authorization", "Accept"})

	require.Equal(t, "Bearer abc", ctx.Get("authorization"))
	require.Equal(t, []string{"text/html", "application/json"}, ctx.Values("Accept"))
}

func TestClone(t *testing.T) {
	ctx := New()
	ctx.Add("Accept", "text/html")

	clone := ctx.Clone()
	clone.Add("Accept", "application/json")

	require.Len(t, ctx.Values("Accept"), 1)
	require.Len(t, clone.Values("Accept"), 2)
}
