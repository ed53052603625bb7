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

// Package secrets contains types for secret sharing. When splitting a secret, a dealer needs
// to provide both the `secret` + `Metadata`. A dealer would then get a `Split`, which contains
// the `Metadata`, the secret shares, and the secret length.
package secrets

import (
	"encoding/hex"
	"fmt"
)

// Metadata contains the necessary secret sharing scheme information to split and/or reconstruct a secret.
type Metadata struct {
	NumShares int
	Threshold int
}

// Split represents a secret split into shares alongside the metadata needed to reconstruct it.
type Split struct {
	Metadata Metadata
	Shares   []Share
	// The length of the original split secret in bytes.
	SecretLen int
}

// Share is one point per secret byte, all evaluated at the same X coordinate ID.
// ID is never 0, since f(0) is the secret itself.
type Share struct {
	ID          byte
	Coordinates []byte
}

// Bytes encodes the share as its coordinates followed by the ID byte. This
// matches the layout used by Hashicorp Vault's shamir package.
func (s Share) Bytes() []byte {
	out := make([]byte, 0, len(s.Coordinates)+1)
	out = append(out, s.Coordinates...)
	return append(out, s.ID)
}

// ParseShare decodes the output of Share.Bytes.
func ParseShare(b []byte) (Share, error) {
	if len(b) < 2 {
		return Share{}, fmt.Errorf("encoded share has length %d, need at least 2", len(b))
	}
	id := b[len(b)-1]
	if id == 0 {
		return Share{}, fmt.Errorf("encoded share has X coordinate 0")
	}
	coords := make([]byte, len(b)-1)
	copy(coords, b[:len(b)-1])
	return Share{ID: id, Coordinates: coords}, nil
}

// MarshalText renders Bytes as lowercase hex.
func (s Share) MarshalText() ([]byte, error) {
	b := s.Bytes()
	out := make([]byte, hex.EncodedLen(len(b)))
	hex.Encode(out, b)
	return out, nil
}

// UnmarshalText parses the output of MarshalText.
func (s *Share) UnmarshalText(text []byte) error {
	raw := make([]byte, hex.DecodedLen(len(text)))
	if _, err := hex.Decode(raw, text); err != nil {
		return fmt.Errorf("share is not valid hex: %w", err)
	}
	parsed, err := ParseShare(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
