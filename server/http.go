// Copyright 2026 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"time"

	"github.com/GoogleCloudPlatform/ssdd/constants"
	"github.com/GoogleCloudPlatform/ssdd/custody"
	"github.com/GoogleCloudPlatform/ssdd/secret_sharing/secrets"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	glog "github.com/golang/glog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	sharesEndpoint         = "/v1/shares/{id}"
	snapshotEndpoint       = "/v1/snapshot"
	snapshotStreamEndpoint = "/v1/snapshot/stream"
	metricsEndpoint        = "/metrics"

	// maxShareIDLen bounds the share IDs accepted in URLs.
	maxShareIDLen = 128
	// maxRequestBytes bounds PUT bodies. A hex share of a 48 byte secret is
	// under 100 bytes.
	maxRequestBytes = 64 << 10
	// maxTTLSeconds is the largest TTL representable as a time.Duration.
	maxTTLSeconds = math.MaxInt64 / int64(time.Second)
)

// StoreShareRequest is the body of PUT /v1/shares/{id}. A zero TTLSeconds
// selects the server's default TTL.
type StoreShareRequest struct {
	Share      secrets.Share `json:"share"`
	TTLSeconds int64         `json:"ttlSeconds,omitempty"`
}

// StoreShareResponse is returned by a successful PUT.
type StoreShareResponse struct {
	ID         string `json:"id"`
	TTLSeconds int64  `json:"ttlSeconds"`
}

// FetchShareResponse is the body of a successful GET /v1/shares/{id}.
type FetchShareResponse struct {
	ID    string        `json:"id"`
	Share secrets.Share `json:"share"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HTTPConfig configures the custodian's HTTP API.
type HTTPConfig struct {
	// DefaultTTL applies to PUTs that do not name a TTL.
	DefaultTTL time.Duration
	// RetrieveRatePerMinute limits share reads per client address. Zero
	// disables the limit.
	RetrieveRatePerMinute int
	// RetrieveBurst defaults to RetrieveRatePerMinute.
	RetrieveBurst int
	// Gatherer serves /metrics. Nil leaves /metrics unrouted.
	Gatherer prometheus.Gatherer
}

// CustodyHTTPService exposes a custody store over HTTP.
type CustodyHTTPService struct {
	store      *custody.Store
	defaultTTL time.Duration
	limiter    *rateLimiter
	gatherer   prometheus.Gatherer
}

// NewCustodyHTTPService creates an HTTP front end for store.
func NewCustodyHTTPService(store *custody.Store, cfg HTTPConfig) *CustodyHTTPService {
	ttl := cfg.DefaultTTL
	if ttl <= 0 {
		ttl = constants.DefaultShareTTL
	}
	return &CustodyHTTPService{
		store:      store,
		defaultTTL: ttl,
		limiter:    newRateLimiter(cfg.RetrieveRatePerMinute, cfg.RetrieveBurst),
		gatherer:   cfg.Gatherer,
	}
}

// Handler returns the routed API.
func (s *CustodyHTTPService) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Put(sharesEndpoint, s.handleStoreShare)
	r.With(s.limiter.middleware).Get(sharesEndpoint, s.handleFetchShare)
	r.Delete(sharesEndpoint, s.handleDeleteShare)
	r.Get(snapshotEndpoint, s.handleSnapshot)
	r.Get(snapshotStreamEndpoint, s.handleSnapshotStream)
	if s.gatherer != nil {
		r.Handle(metricsEndpoint, promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

// shareID returns the unescaped {id} URL parameter.
func shareID(r *http.Request) (string, error) {
	id := chi.URLParam(r, "id")
	// chi routes on the escaped path when it differs from the default encoding.
	if r.URL.RawPath != "" {
		var err error
		if id, err = url.PathUnescape(id); err != nil {
			return "", fmt.Errorf("invalid share ID: %w", err)
		}
	}
	if id == "" || len(id) > maxShareIDLen {
		return "", fmt.Errorf("share ID must be 1 to %d characters", maxShareIDLen)
	}
	return id, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		glog.Warningf("Failed to write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// statusFor maps custody errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, custody.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, custody.ErrExpired):
		return http.StatusGone
	case errors.Is(err, custody.ErrInvalidTTL), errors.Is(err, custody.ErrInvalidShare):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *CustodyHTTPService) handleStoreShare(w http.ResponseWriter, r *http.Request) {
	id, err := shareID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req StoreShareRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unable to parse request body: %v", err))
		return
	}

	if req.TTLSeconds > maxTTLSeconds {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("ttlSeconds %d exceeds %d", req.TTLSeconds, maxTTLSeconds))
		return
	}
	ttl := s.defaultTTL
	if req.TTLSeconds != 0 {
		ttl = time.Duration(req.TTLSeconds) * time.Second
	}

	if err := s.store.Store(id, req.Share, ttl); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, StoreShareResponse{ID: id, TTLSeconds: int64(ttl / time.Second)})
}

func (s *CustodyHTTPService) handleFetchShare(w http.ResponseWriter, r *http.Request) {
	id, err := shareID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	share, err := s.store.Retrieve(id)
	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			glog.Errorf("Retrieving share %q: %v", id, err)
			writeError(w, status, "internal error")
			return
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, FetchShareResponse{ID: id, Share: share})
}

func (s *CustodyHTTPService) handleDeleteShare(w http.ResponseWriter, r *http.Request) {
	id, err := shareID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.store.Delete(id); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *CustodyHTTPService) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.store.Snapshot())
}

// handleSnapshotStream sends the current snapshot and then one Server-Sent
// Event per store change until the client goes away.
func (s *CustodyHTTPService) handleSnapshotStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	events, cancel := s.store.Subscribe()
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if err := writeEvent(w, "snapshot", custody.Event{Snapshot: s.store.Snapshot()}); err != nil {
		glog.Warningf("Snapshot stream write failed: %v", err)
		return
	}
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := writeEvent(w, ev.Kind.String(), ev); err != nil {
				glog.Warningf("Snapshot stream write failed: %v", err)
				return
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, name string, ev custody.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshalling event: %w", err)
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data)
	return err
}
