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

// Package client is the client library for SSDD. It encrypts data, hands the
// key shares to a custodian, and decrypts again while enough shares survive.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/GoogleCloudPlatform/ssdd/constants"
	"github.com/GoogleCloudPlatform/ssdd/custody"
	"github.com/GoogleCloudPlatform/ssdd/protocol"
	"github.com/GoogleCloudPlatform/ssdd/secret_sharing/secrets"
	glog "github.com/golang/glog"
	"github.com/google/uuid"
)

// Custodian holds shares on behalf of the client. CustodyClient implements it.
type Custodian interface {
	BaseURL() string
	StoreShare(ctx context.Context, id string, share secrets.Share, ttl time.Duration) error
	FetchShares(ctx context.Context, refs []ShareRef, want int) ([]secrets.Share, error)
	DeleteShare(ctx context.Context, id string) error
}

// DecryptedMetadata describes a completed decryption.
type DecryptedMetadata struct {
	BlobID     string
	SharesUsed int
}

// SsddClient encrypts and decrypts data whose key is held as shares by a
// custodian.
type SsddClient struct {
	custodian Custodian
	cipher    string
	policy    protocol.FingerprintPolicy
	shareTTL  time.Duration
}

// Option configures an SsddClient.
type Option func(*SsddClient)

// WithCipher selects the cipher used by Encrypt by name. Decrypt always uses
// the cipher recorded in the envelope.
func WithCipher(name string) Option {
	return func(c *SsddClient) { c.cipher = name }
}

// WithFingerprintPolicy sets how Decrypt treats the recorded fingerprint.
func WithFingerprintPolicy(policy protocol.FingerprintPolicy) Option {
	return func(c *SsddClient) { c.policy = policy }
}

// WithShareTTL sets how long the custodian keeps shares stored by Encrypt.
func WithShareTTL(ttl time.Duration) Option {
	return func(c *SsddClient) { c.shareTTL = ttl }
}

// NewSsddClient returns a client storing shares with custodian.
func NewSsddClient(custodian Custodian, opts ...Option) (*SsddClient, error) {
	if custodian == nil {
		return nil, errors.New("nil custodian passed to NewSsddClient()")
	}
	c := &SsddClient{
		custodian: custodian,
		cipher:    protocol.CipherCBC,
		policy:    protocol.FingerprintLegacy,
		shareTTL:  constants.DefaultShareTTL,
	}
	for _, opt := range opts {
		opt(c)
	}
	if _, err := protocol.CipherByName(c.cipher); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *SsddClient) newProtocol(cipherName string) (*protocol.Protocol, error) {
	cipher, err := protocol.CipherByName(cipherName)
	if err != nil {
		return nil, err
	}
	return protocol.New(protocol.WithCipher(cipher), protocol.WithFingerprintPolicy(c.policy))
}

// Encrypt reads all of input, writes an envelope holding its ciphertext to
// output, and stores numShares shares of the key with the custodian, any
// threshold of which can decrypt. The returned manifest is needed to decrypt.
// If blobID is empty a UUID is generated.
func (c *SsddClient) Encrypt(ctx context.Context, input io.Reader, output io.Writer, numShares, threshold int, blobID string) (*Manifest, error) {
	plaintext, err := io.ReadAll(input)
	if err != nil {
		return nil, fmt.Errorf("failed to read plaintext: %v", err)
	}

	p, err := c.newProtocol(c.cipher)
	if err != nil {
		return nil, err
	}
	msg, err := p.Encrypt(plaintext, numShares, threshold)
	if err != nil {
		return nil, fmt.Errorf("error encrypting data: %w", err)
	}

	if blobID == "" {
		blobID = uuid.NewString()
	}
	manifest := &Manifest{
		BlobID:       blobID,
		CustodianURL: c.custodian.BaseURL(),
		Threshold:    threshold,
	}

	for _, share := range msg.Shares {
		ref := ShareRef{ID: uuid.NewString(), Hash: HashShare(share)}
		if err := c.custodian.StoreShare(ctx, ref.ID, share, c.shareTTL); err != nil {
			c.deleteShares(ctx, manifest.Shares)
			return nil, fmt.Errorf("error storing share: %w", err)
		}
		manifest.Shares = append(manifest.Shares, ref)
	}

	env := protocol.Envelope{
		Cipher:      c.cipher,
		Fingerprint: msg.Fingerprint,
		Ciphertext:  msg.Ciphertext,
	}
	if err := protocol.WriteEnvelope(output, env); err != nil {
		c.deleteShares(ctx, manifest.Shares)
		return nil, err
	}

	glog.Infof("Encrypted blob %s with %d shares, threshold %d", blobID, numShares, threshold)
	return manifest, nil
}

// deleteShares removes shares stored by a failed Encrypt.
func (c *SsddClient) deleteShares(ctx context.Context, refs []ShareRef) {
	for _, ref := range refs {
		if err := c.custodian.DeleteShare(ctx, ref.ID); err != nil {
			glog.Warningf("Failed to delete share %q after failed encryption: %v", ref.ID, err)
		}
	}
}

// Discard deletes every share named by manifest, making the blob
// undecryptable before its shares expire. Shares already gone are not an error.
func (c *SsddClient) Discard(ctx context.Context, manifest *Manifest) error {
	var errs []error
	for _, ref := range manifest.Shares {
		err := c.custodian.DeleteShare(ctx, ref.ID)
		if err != nil && !errors.Is(err, custody.ErrNotFound) {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("error discarding blob %s: %w", manifest.BlobID, err)
	}
	glog.Infof("Discarded %d shares of blob %s", len(manifest.Shares), manifest.BlobID)
	return nil
}

// Decrypt reads an envelope from input, fetches enough shares named by
// manifest, and writes the plaintext to output.
func (c *SsddClient) Decrypt(ctx context.Context, input io.Reader, output io.Writer, manifest *Manifest) (*DecryptedMetadata, error) {
	if manifest == nil {
		return nil, errors.New("nil Manifest passed to Decrypt()")
	}
	if err := manifest.Validate(); err != nil {
		return nil, err
	}

	env, err := protocol.ReadEnvelope(input)
	if err != nil {
		return nil, err
	}
	p, err := c.newProtocol(env.Cipher)
	if err != nil {
		return nil, err
	}

	// Combining needs two shares even when one would do.
	want := max(manifest.Threshold, 2)
	shares, err := c.custodian.FetchShares(ctx, manifest.Shares, want)
	if err != nil {
		return nil, fmt.Errorf("error fetching shares: %w", err)
	}

	plaintext, err := p.Decrypt(env.Ciphertext, shares, env.Fingerprint)
	if err != nil {
		return nil, fmt.Errorf("error decrypting data: %w", err)
	}
	if _, err := output.Write(plaintext); err != nil {
		return nil, fmt.Errorf("failed to write plaintext: %v", err)
	}

	return &DecryptedMetadata{BlobID: manifest.BlobID, SharesUsed: len(shares)}, nil
}
