/*
Copyright Trust Data Format Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package plugin

import (
	"strings"

	"github.com/trustdataformat/kas-go/pkg/kaserrors"
)

// EOAllowList denies every requester whose user id is not on the list.
type EOAllowList struct {
	allowed map[string]struct{}
}

// NewEOAllowList parses a comma-separated identifier list.
func NewEOAllowList(raw string) *EOAllowList {
	return &EOAllowList{allowed: splitList(raw)}
}

// Update implements RewrapMiddleware.
func (p *EOAllowList) Update(req *Request) (*Response, error) {
	if req.Entity == nil {
		return nil, nil
	}

	if _, ok := p.allowed[req.Entity.UserID]; !ok {
		return nil, kaserrors.New(kaserrors.Authorization, "%q not on allow list", req.Entity.UserID)
	}

	return nil, nil
}

// EOBlockList denies requesters whose user id is on the list.
type EOBlockList struct {
	blocked map[string]struct{}
}

// NewEOBlockList parses a comma-separated identifier list.
func NewEOBlockList(raw string) *EOBlockList {
	return &EOBlockList{blocked: splitList(raw)}
}

// Update implements RewrapMiddleware.
func (p *EOBlockList) Update(req *Request) (*Response, error) {
	if req.Entity == nil {
		return nil, nil
	}

	if _, ok := p.blocked[req.Entity.UserID]; ok {
		return nil, kaserrors.New(kaserrors.Authorization, "%q is on block list", req.Entity.UserID)
	}

	return nil, nil
}

func splitList(raw string) map[string]struct{} {
	out := map[string]struct{}{}

	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out[part] = struct{}{}
		}
	}

	return out
}
