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

// Package constants contains shared constants between the client and the server.
package constants

import "time"

// KeyBytes is the size of the symmetric key in bytes (AES-256).
const KeyBytes = 32

// IVBytes is the size of the initialization vector in bytes.
const IVBytes = 16

// MasterSecretBytes is the size of the secret that gets split: key || iv.
const MasterSecretBytes = KeyBytes + IVBytes

// DefaultShares is the number of shares produced when none is configured.
const DefaultShares = 3

// DefaultThreshold is the number of shares needed to decrypt when none is configured.
const DefaultThreshold = 2

// MinThreshold is the smallest number of shares accepted for decryption.
const MinThreshold = 2

// DefaultShareTTL is how long the custodian keeps a share when no TTL is given.
const DefaultShareTTL = 10 * time.Minute

// SweepInterval is how often the custodian evicts expired shares.
const SweepInterval = time.Second

// HTTPPort is the default listening port for the custodian's HTTP API.
const HTTPPort = 9755

// GrpcPort is the default port for the custodian's gRPC health service.
const GrpcPort = 9754
