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

// Utility functions for recording and checking shares.

package client

import (
	"bytes"
	"crypto/sha256"

	"github.com/GoogleCloudPlatform/ssdd/secret_sharing/secrets"
)

// ShareRef names a share held by a custodian, along with the hash of the
// share as it was stored.
type ShareRef struct {
	ID   string `json:"id"`
	Hash []byte `json:"hash,omitempty"`
}

// HashShare performs a SHA-256 hash on the encoded share.
func HashShare(share secrets.Share) []byte {
	hash := sha256.Sum256(share.Bytes())
	return hash[:]
}

// ValidateShare returns whether HashShare(share) equals expectedHash.
func ValidateShare(share secrets.Share, expectedHash []byte) bool {
	return bytes.Equal(HashShare(share), expectedHash)
}
