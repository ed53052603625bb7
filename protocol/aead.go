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

package protocol

import (
	"bytes"
	"fmt"
	"io"

	"github.com/GoogleCloudPlatform/ssdd/constants"
	"github.com/google/tink/go/streamingaead/subtle"
)

// Parameters for Tink's AES-GCM-HKDF streaming AEAD.
const (
	aeadHKDFAlg            = "SHA256"
	aeadSegmentSize        = 1 << 20
	aeadFirstSegmentOffset = 0
)

type streamingAEADCipher struct{}

// NewStreamingAEADCipher returns Tink's AES-GCM-HKDF streaming AEAD. The IV is
// bound to the ciphertext as associated data.
func NewStreamingAEADCipher() Cipher { return streamingAEADCipher{} }

func newAESGCMHKDF(key []byte) (*subtle.AESGCMHKDF, error) {
	c, err := subtle.NewAESGCMHKDF(key, aeadHKDFAlg, constants.KeyBytes, aeadSegmentSize, aeadFirstSegmentOffset)
	if err != nil {
		return nil, fmt.Errorf("unable to create streaming AEAD: %v", err)
	}
	return c, nil
}

func (streamingAEADCipher) Encrypt(plaintext, key, iv []byte) ([]byte, error) {
	c, err := newAESGCMHKDF(key)
	if err != nil {
		return nil, err
	}

	var out bytes.Buffer
	w, err := c.NewEncryptingWriter(&out, iv)
	if err != nil {
		return nil, fmt.Errorf("unable to create an encrypting writer: %v", err)
	}
	if _, err := w.Write(plaintext); err != nil {
		return nil, fmt.Errorf("unable to write plaintext: %v", err)
	}
	// Close flushes the final segment and its tag.
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("error closing writer: %v", err)
	}
	return out.Bytes(), nil
}

func (streamingAEADCipher) Decrypt(ciphertext, key, iv []byte) ([]byte, error) {
	c, err := newAESGCMHKDF(key)
	if err != nil {
		return nil, err
	}

	r, err := c.NewDecryptingReader(bytes.NewReader(ciphertext), iv)
	if err != nil {
		return nil, fmt.Errorf("unable to create a decrypting reader: %v", err)
	}
	plaintext, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("error reading plaintext: %v", err)
	}
	return plaintext, nil
}
