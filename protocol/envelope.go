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
	"encoding/binary"
	"fmt"
	"io"
)

// EnvelopeMagic starts every encrypted file written by WriteEnvelope.
var EnvelopeMagic = [13]byte{'S', 'S', 'D', 'D', 'E', 'N', 'C', 'R', 'Y', 'P', 'T', 'E', 'D'}

const envelopeVersion = 1

// Cipher identifiers stored in the envelope header.
var cipherIDs = map[string]uint8{
	CipherCBC:           1,
	CipherStreamingAEAD: 2,
}

// EnvelopeHeader precedes the fingerprint and ciphertext of an encrypted file.
type EnvelopeHeader struct {
	Magic          [13]byte // len(EnvelopeMagic) == 13
	Version        uint8    // 1 byte
	Cipher         uint8    // 1 byte
	FingerprintLen uint16   // 2 bytes
}

// Envelope is an encrypted message as stored on disk. Shares are never part of it.
type Envelope struct {
	Cipher      string
	Fingerprint []byte
	Ciphertext  []byte
}

// WriteEnvelope writes header || fingerprint || ciphertext to w.
func WriteEnvelope(w io.Writer, env Envelope) error {
	id, ok := cipherIDs[env.Cipher]
	if !ok {
		return fmt.Errorf("unknown cipher %q", env.Cipher)
	}
	if len(env.Fingerprint) > 0xFFFF {
		return fmt.Errorf("fingerprint too long: %d bytes", len(env.Fingerprint))
	}
	header := EnvelopeHeader{
		Magic:          EnvelopeMagic,
		Version:        envelopeVersion,
		Cipher:         id,
		FingerprintLen: uint16(len(env.Fingerprint)),
	}
	if err := binary.Write(w, binary.LittleEndian, header); err != nil {
		return fmt.Errorf("failed to write envelope header: %v", err)
	}
	if _, err := w.Write(env.Fingerprint); err != nil {
		return fmt.Errorf("failed to write fingerprint: %v", err)
	}
	if _, err := w.Write(env.Ciphertext); err != nil {
		return fmt.Errorf("failed to write ciphertext: %v", err)
	}
	return nil
}

// ReadEnvelope reads an envelope written by WriteEnvelope. The ciphertext is
// everything after the fingerprint.
func ReadEnvelope(r io.Reader) (*Envelope, error) {
	var header EnvelopeHeader
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("failed to read envelope header: %v", err)
	}
	if !bytes.Equal(header.Magic[:], EnvelopeMagic[:]) {
		return nil, fmt.Errorf("data is not a known SSDD encryption format")
	}
	if header.Version != envelopeVersion {
		return nil, fmt.Errorf("unsupported envelope version %d", header.Version)
	}

	env := &Envelope{}
	for name, id := range cipherIDs {
		if id == header.Cipher {
			env.Cipher = name
		}
	}
	if env.Cipher == "" {
		return nil, fmt.Errorf("unknown cipher id %d", header.Cipher)
	}

	env.Fingerprint = make([]byte, header.FingerprintLen)
	if _, err := io.ReadFull(r, env.Fingerprint); err != nil {
		return nil, fmt.Errorf("failed to read fingerprint: %v", err)
	}
	var err error
	if env.Ciphertext, err = io.ReadAll(r); err != nil {
		return nil, fmt.Errorf("failed to read ciphertext: %v", err)
	}
	return env, nil
}
