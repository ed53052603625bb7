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

package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/GoogleCloudPlatform/ssdd/custody"
	"github.com/GoogleCloudPlatform/ssdd/protocol"
	"github.com/GoogleCloudPlatform/ssdd/secret_sharing/secrets"
	"github.com/GoogleCloudPlatform/ssdd/server"
	glog "github.com/golang/glog"
)

// maxResponseBytes bounds custodian response bodies.
const maxResponseBytes = 1 << 20

// ErrRateLimited is returned when the custodian refuses a read with 429.
var ErrRateLimited = errors.New("custodian rate limit exceeded")

// CustodyClient talks to a custodian's HTTP API.
type CustodyClient struct {
	baseURL    string
	httpClient *http.Client
}

// CustodyOption configures a CustodyClient.
type CustodyOption func(*CustodyClient)

// WithHTTPClient replaces http.DefaultClient.
func WithHTTPClient(c *http.Client) CustodyOption {
	return func(cc *CustodyClient) { cc.httpClient = c }
}

// NewCustodyClient returns a client for the custodian at baseURL.
func NewCustodyClient(baseURL string, opts ...CustodyOption) (*CustodyClient, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid custodian URL %q: %w", baseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("custodian URL %q must be http or https", baseURL)
	}

	c := &CustodyClient{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the custodian address this client talks to.
func (c *CustodyClient) BaseURL() string { return c.baseURL }

func (c *CustodyClient) shareURL(id string) string {
	return c.baseURL + "/v1/shares/" + url.PathEscape(id)
}

func (c *CustodyClient) do(ctx context.Context, method, target string, body any) (*http.Response, error) {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshalling request: %w", err)
		}
		r = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, r)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, target, err)
	}
	return resp, nil
}

// responseError turns a non-2xx response into an error, mapping custodian
// statuses back to custody errors.
func responseError(resp *http.Response) error {
	switch resp.StatusCode {
	case http.StatusNotFound:
		return custody.ErrNotFound
	case http.StatusGone:
		return custody.ErrExpired
	case http.StatusTooManyRequests:
		return ErrRateLimited
	}

	var body server.ErrorResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&body); err != nil || body.Error == "" {
		return fmt.Errorf("custodian returned %s", resp.Status)
	}
	return fmt.Errorf("custodian returned %s: %s", resp.Status, body.Error)
}

// StoreShare stores share under id for ttl.
func (c *CustodyClient) StoreShare(ctx context.Context, id string, share secrets.Share, ttl time.Duration) error {
	req := server.StoreShareRequest{Share: share, TTLSeconds: int64(ttl / time.Second)}
	if req.TTLSeconds <= 0 {
		return fmt.Errorf("%w: %v is under one second", custody.ErrInvalidTTL, ttl)
	}

	resp, err := c.do(ctx, http.MethodPut, c.shareURL(id), req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("storing share %q: %w", id, responseError(resp))
	}
	return nil
}

// FetchShare retrieves the share stored under id. Missing and expired shares
// yield custody.ErrNotFound and custody.ErrExpired.
func (c *CustodyClient) FetchShare(ctx context.Context, id string) (secrets.Share, error) {
	resp, err := c.do(ctx, http.MethodGet, c.shareURL(id), nil)
	if err != nil {
		return secrets.Share{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return secrets.Share{}, fmt.Errorf("fetching share %q: %w", id, responseError(resp))
	}

	var body server.FetchShareResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&body); err != nil {
		return secrets.Share{}, fmt.Errorf("decoding share %q: %w", id, err)
	}
	return body.Share, nil
}

// DeleteShare removes the share stored under id.
func (c *CustodyClient) DeleteShare(ctx context.Context, id string) error {
	resp, err := c.do(ctx, http.MethodDelete, c.shareURL(id), nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("deleting share %q: %w", id, responseError(resp))
	}
	return nil
}

// FetchShares fetches refs in order until want shares are held. Shares that
// are missing, expired, or fail hash validation are skipped with a warning;
// any other error aborts. If fewer than want shares could be fetched, the
// error wraps protocol.ErrInsufficientShares.
func (c *CustodyClient) FetchShares(ctx context.Context, refs []ShareRef, want int) ([]secrets.Share, error) {
	var shares []secrets.Share
	for _, ref := range refs {
		if len(shares) == want {
			break
		}

		share, err := c.FetchShare(ctx, ref.ID)
		switch {
		case errors.Is(err, custody.ErrNotFound), errors.Is(err, custody.ErrExpired):
			glog.Warningf("Skipping share %q: %v", ref.ID, err)
			continue
		case err != nil:
			return nil, err
		}

		if len(ref.Hash) > 0 && !ValidateShare(share, ref.Hash) {
			glog.Warningf("Skipping share %q: hash does not match the recorded hash", ref.ID)
			continue
		}
		shares = append(shares, share)
	}

	if len(shares) < want {
		return nil, fmt.Errorf("%w: fetched %d of %d shares", protocol.ErrInsufficientShares, len(shares), want)
	}
	glog.Infof("Fetched %d shares from %s", len(shares), c.baseURL)
	return shares, nil
}
