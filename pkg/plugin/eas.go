/*
Copyright Trust Data Format Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package plugin

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/trustdataformat/kas-go/pkg/kaserrors"
	"github.com/trustdataformat/kas-go/pkg/policy"
)

const authorityTimeout = 5 * time.Second

// EASAttributeFetcher resolves attribute namespace rules from the attribute
// authority over HTTP.
type EASAttributeFetcher struct {
	host   string
	client *http.Client
}

// NewEASAttributeFetcher builds a fetcher against the authority at host.
func NewEASAttributeFetcher(host string) *EASAttributeFetcher {
	return &EASAttributeFetcher{
		host:   strings.TrimRight(host, "/"),
		client: &http.Client{Timeout: authorityTimeout},
	}
}

// FetchAttributes posts the namespace list and decodes the authority's
// policy entries. Any transport or decode failure is an upstream error.
func (f *EASAttributeFetcher) FetchAttributes(namespaces []string) ([]policy.RawAttributePolicy, error) {
	if len(namespaces) == 0 {
		return nil, nil
	}

	payload, err := json.Marshal(namespaces)
	if err != nil {
		return nil, kaserrors.Wrap(kaserrors.PluginBackend, err, "namespace list unencodable")
	}

	endpoint := fmt.Sprintf("%s/v1/attrName", f.host)

	resp, err := f.client.Post(endpoint, "application/json", bytes.NewReader(payload)) //nolint:noctx // bounded by client timeout
	if err != nil {
		return nil, kaserrors.Wrap(kaserrors.PluginBackend, err, "attribute authority unreachable")
	}

	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, kaserrors.New(kaserrors.PluginBackend, "attribute authority returned %d", resp.StatusCode)
	}

	var entries []policy.RawAttributePolicy
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, kaserrors.Wrap(kaserrors.PluginBackend, err, "attribute authority response undecodable")
	}

	return entries, nil
}
