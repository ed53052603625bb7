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
	"errors"
	"fmt"
	"io"

	"sigs.k8s.io/yaml"
)

// maxManifestBytes bounds manifests read by ReadManifest.
const maxManifestBytes = 1 << 20

// Manifest records where the shares of one encrypted blob are held.
type Manifest struct {
	BlobID       string     `json:"blobId"`
	CustodianURL string     `json:"custodianUrl"`
	Threshold    int        `json:"threshold"`
	Shares       []ShareRef `json:"shares"`
}

// Validate checks that the manifest can possibly decrypt its blob.
func (m *Manifest) Validate() error {
	if m.Threshold < 1 {
		return fmt.Errorf("manifest threshold %d must be positive", m.Threshold)
	}
	if len(m.Shares) < max(m.Threshold, 2) {
		return fmt.Errorf("manifest lists %d shares, threshold is %d", len(m.Shares), m.Threshold)
	}
	seen := make(map[string]bool, len(m.Shares))
	for _, ref := range m.Shares {
		if ref.ID == "" {
			return errors.New("manifest lists a share with an empty ID")
		}
		if seen[ref.ID] {
			return fmt.Errorf("manifest lists share %q twice", ref.ID)
		}
		seen[ref.ID] = true
	}
	return nil
}

// WriteManifest writes m to w as YAML.
func WriteManifest(w io.Writer, m *Manifest) error {
	b, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %v", err)
	}
	if _, err := w.Write(b); err != nil {
		return fmt.Errorf("failed to write manifest: %v", err)
	}
	return nil
}

// ReadManifest parses a manifest written by WriteManifest. Unknown fields are
// rejected.
func ReadManifest(r io.Reader) (*Manifest, error) {
	b, err := io.ReadAll(io.LimitReader(r, maxManifestBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %v", err)
	}
	m := &Manifest{}
	if err := yaml.UnmarshalStrict(b, m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %v", err)
	}
	return m, nil
}
