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
	"crypto/aes"
	"crypto/cipher"
	"errors"
	"fmt"
)

// Cipher encrypts and decrypts with a caller supplied key and IV.
type Cipher interface {
	Encrypt(plaintext, key, iv []byte) ([]byte, error)
	Decrypt(ciphertext, key, iv []byte) ([]byte, error)
}

const (
	// CipherCBC names AES-256-CBC with PKCS#7 padding.
	CipherCBC = "cbc"
	// CipherStreamingAEAD names Tink's AES-GCM-HKDF streaming AEAD.
	CipherStreamingAEAD = "streaming-aead"
)

// CipherByName returns the cipher registered under name.
func CipherByName(name string) (Cipher, error) {
	switch name {
	case CipherCBC, "":
		return NewCBCCipher(), nil
	case CipherStreamingAEAD:
		return NewStreamingAEADCipher(), nil
	default:
		return nil, fmt.Errorf("unknown cipher %q", name)
	}
}

var errInvalidPadding = errors.New("invalid padding")

type cbcCipher struct{}

// NewCBCCipher returns AES in CBC mode with PKCS#7 padding. A wrong key or a
// modified ciphertext usually surfaces as a padding error; nothing stronger
// than that is checked.
func NewCBCCipher() Cipher { return cbcCipher{} }

func (cbcCipher) Encrypt(plaintext, key, iv []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("unable to create new cipher: %v", err)
	}
	if len(iv) != block.BlockSize() {
		return nil, fmt.Errorf("iv has length %d, expected %d", len(iv), block.BlockSize())
	}
	padded := pad(plaintext, block.BlockSize())
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)
	return ciphertext, nil
}

func (cbcCipher) Decrypt(ciphertext, key, iv []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("unable to create new cipher: %v", err)
	}
	if len(iv) != block.BlockSize() {
		return nil, fmt.Errorf("iv has length %d, expected %d", len(iv), block.BlockSize())
	}
	if len(ciphertext) == 0 || len(ciphertext)%block.BlockSize() != 0 {
		return nil, fmt.Errorf("ciphertext length %d is not a positive multiple of %d", len(ciphertext), block.BlockSize())
	}
	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)
	return unpad(plaintext, block.BlockSize())
}

func pad(b []byte, blockSize int) []byte {
	n := blockSize - len(b)%blockSize
	return append(bytes.Clone(b), bytes.Repeat([]byte{byte(n)}, n)...)
}

func unpad(b []byte, blockSize int) ([]byte, error) {
	n := int(b[len(b)-1])
	if n == 0 || n > blockSize || n > len(b) {
		return nil, errInvalidPadding
	}
	for _, p := range b[len(b)-n:] {
		if int(p) != n {
			return nil, errInvalidPadding
		}
	}
	return b[:len(b)-n], nil
}
