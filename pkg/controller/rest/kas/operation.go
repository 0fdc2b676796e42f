/*
Copyright Trust Data Format Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package kas exposes the key access service operations over REST.
package kas

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/trustdataformat/kas-go/pkg/common/log"
	"github.com/trustdataformat/kas-go/pkg/controller/internal/cmdutil"
	"github.com/trustdataformat/kas-go/pkg/controller/rest"
	"github.com/trustdataformat/kas-go/pkg/kaserrors"
	"github.com/trustdataformat/kas-go/pkg/reqcontext"
	"github.com/trustdataformat/kas-go/pkg/service"
)

var logger = log.New("kas/rest")

// API paths.
const (
	VersionPath   = "/"
	HealthzPath   = "/healthz"
	PublicKeyPath = "/kas_public_key"
	RewrapPath    = "/rewrap"
	RewrapV2Path  = "/v2/rewrap"
	UpsertPath    = "/upsert"
	UpsertV2Path  = "/v2/upsert"
)

// maxInFlightRewraps bounds concurrent rewraps; excess requests get 503.
const maxInFlightRewraps = 128

const maxBodySize = 1 << 20

// Operation contains the KAS REST operations.
type Operation struct {
	handlers []rest.Handler
	svc      *service.Service
	rewraps  chan struct{}
}

// New returns a new KAS operation instance.
func New(svc *service.Service) *Operation {
	o := &Operation{
		svc:     svc,
		rewraps: make(chan struct{}, maxInFlightRewraps),
	}
	o.registerHandler()

	return o
}

// GetRESTHandlers gets all handlers exposed by this service.
func (o *Operation) GetRESTHandlers() []rest.Handler {
	return o.handlers
}

func (o *Operation) registerHandler() {
	o.handlers = []rest.Handler{
		cmdutil.NewHTTPHandler(VersionPath, http.MethodGet, o.Version),
		cmdutil.NewHTTPHandler(HealthzPath, http.MethodGet, o.Healthz),
		cmdutil.NewHTTPHandler(PublicKeyPath, http.MethodGet, o.PublicKey),
		cmdutil.NewHTTPHandler(RewrapPath, http.MethodPost, o.Rewrap),
		cmdutil.NewHTTPHandler(RewrapV2Path, http.MethodPost, o.RewrapV2),
		cmdutil.NewHTTPHandler(UpsertPath, http.MethodPost, o.Upsert),
		cmdutil.NewHTTPHandler(UpsertV2Path, http.MethodPost, o.UpsertV2),
	}
}

// Version swagger:route GET / kas versionReq
//
// Returns the service version.
func (o *Operation) Version(rw http.ResponseWriter, req *http.Request) {
	securityHeaders(rw)
	writeJSON(rw, http.StatusOK, map[string]string{"version": o.svc.Version()})
}

// Healthz swagger:route GET /healthz kas healthzReq
//
// Runs the liveness or readiness probe.
func (o *Operation) Healthz(rw http.ResponseWriter, req *http.Request) {
	securityHeaders(rw)

	if err := o.svc.Healthz(req.URL.Query().Get("probe")); err != nil {
		writeError(rw, req, err)
		return
	}

	rw.WriteHeader(http.StatusNoContent)
}

// PublicKey swagger:route GET /kas_public_key kas publicKeyReq
//
// Serves the KAS public key for the requested algorithm.
func (o *Operation) PublicKey(rw http.ResponseWriter, req *http.Request) {
	securityHeaders(rw)

	pem, err := o.svc.PublicKey(req.URL.Query().Get("algorithm"))
	if err != nil {
		writeError(rw, req, err)
		return
	}

	writeJSON(rw, http.StatusOK, pem)
}

// Rewrap swagger:route POST /rewrap kas rewrapReq
//
// Legacy entity-object rewrap.
func (o *Operation) Rewrap(rw http.ResponseWriter, req *http.Request) {
	o.boundedRewrap(rw, req, func(body []byte, ctx *reqcontext.Context) (interface{}, error) {
		return o.svc.Rewrap(body, ctx)
	})
}

// RewrapV2 swagger:route POST /v2/rewrap kas rewrapV2Req
//
// OIDC rewrap.
func (o *Operation) RewrapV2(rw http.ResponseWriter, req *http.Request) {
	bearer, err := bearerToken(req)
	if err != nil {
		securityHeaders(rw)
		writeError(rw, req, err)

		return
	}

	o.boundedRewrap(rw, req, func(body []byte, ctx *reqcontext.Context) (interface{}, error) {
		return o.svc.RewrapV2(bearer, body, ctx)
	})
}

// Upsert swagger:route POST /upsert kas upsertReq
//
// Legacy plugin proxy.
func (o *Operation) Upsert(rw http.ResponseWriter, req *http.Request) {
	securityHeaders(rw)

	body, ctx, err := readRequest(req)
	if err != nil {
		writeError(rw, req, err)
		return
	}

	messages, err := o.svc.Upsert(body, ctx)
	if err != nil {
		writeError(rw, req, err)
		return
	}

	writeJSON(rw, http.StatusOK, messages)
}

// UpsertV2 swagger:route POST /v2/upsert kas upsertV2Req
//
// OIDC plugin proxy.
func (o *Operation) UpsertV2(rw http.ResponseWriter, req *http.Request) {
	securityHeaders(rw)

	bearer, err := bearerToken(req)
	if err != nil {
		writeError(rw, req, err)
		return
	}

	body, ctx, err := readRequest(req)
	if err != nil {
		writeError(rw, req, err)
		return
	}

	messages, err := o.svc.UpsertV2(bearer, body, ctx)
	if err != nil {
		writeError(rw, req, err)
		return
	}

	writeJSON(rw, http.StatusOK, messages)
}

type rewrapFunc func(body []byte, ctx *reqcontext.Context) (interface{}, error)

// boundedRewrap admits the request into the in-flight budget, or sheds it
// with 503.
func (o *Operation) boundedRewrap(rw http.ResponseWriter, req *http.Request, fn rewrapFunc) {
	securityHeaders(rw)

	select {
	case o.rewraps <- struct{}{}:
		defer func() { <-o.rewraps }()
	default:
		writeError(rw, req, kaserrors.New(kaserrors.RequestTimeout, "rewrap capacity exhausted"))
		return
	}

	body, ctx, err := readRequest(req)
	if err != nil {
		writeError(rw, req, err)
		return
	}

	resp, err := fn(body, ctx)
	if err != nil {
		writeError(rw, req, err)
		return
	}

	writeJSON(rw, http.StatusOK, resp)
}

func readRequest(req *http.Request) ([]byte, *reqcontext.Context, error) {
	body, err := io.ReadAll(io.LimitReader(req.Body, maxBodySize))
	if err != nil {
		return nil, nil, kaserrors.Wrap(kaserrors.BadRequest, err, "body unreadable")
	}

	order := make([]string, 0, len(req.Header))
	for key := range req.Header {
		order = append(order, key)
	}

	return body, reqcontext.FromHeaders(req.Header, order), nil
}

func bearerToken(req *http.Request) (string, error) {
	auth := req.Header.Get("Authorization")
	if auth == "" {
		return "", kaserrors.New(kaserrors.Unauthorized, "no authorization header")
	}

	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", kaserrors.New(kaserrors.Unauthorized, "malformed authorization header")
	}

	return parts[1], nil
}

func securityHeaders(rw http.ResponseWriter) {
	rw.Header().Set("X-Content-Type-Options", "nosniff")
	rw.Header().Set("X-Frame-Options", "SAMEORIGIN")
}

func writeJSON(rw http.ResponseWriter, status int, v interface{}) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)

	if err := json.NewEncoder(rw).Encode(v); err != nil {
		logger.Errorf("unable to send response: %v", err)
	}
}

// writeError converts a typed failure to its HTTP status. The body carries a
// generic message; the specific cause goes to the logs under a request id.
func writeError(rw http.ResponseWriter, req *http.Request, err error) {
	requestID := uuid.New().String()
	status := kaserrors.StatusOf(err)

	logger.Warnf("request %s %s [%s] failed: %v", req.Method, req.URL.Path, requestID, err)

	writeJSON(rw, status, map[string]string{
		"error":     http.StatusText(status),
		"requestId": requestID,
	})
}
