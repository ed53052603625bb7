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

// Package protocol binds a freshly generated symmetric key and IV to Shamir
// shares. The ciphertext can only be decrypted by someone holding at least
// threshold shares; once too few shares survive, nobody can decrypt it.
package protocol

import (
	"crypto/subtle"
	"errors"
	"fmt"

	"github.com/GoogleCloudPlatform/ssdd/constants"
	"github.com/GoogleCloudPlatform/ssdd/secret_sharing/secrets"
	"github.com/GoogleCloudPlatform/ssdd/secret_sharing/shamir"
	tinksubtle "github.com/google/tink/go/subtle"
	"github.com/google/tink/go/subtle/random"
)

var (
	// ErrInsufficientShares is returned when fewer than constants.MinThreshold shares are presented.
	ErrInsufficientShares = errors.New("insufficient shares")
	// ErrMalformedSecret is returned when the reconstructed secret has the wrong length.
	ErrMalformedSecret = errors.New("malformed secret")
	// ErrDecryptionFailed is returned for any cipher failure. A wrong key and a
	// tampered ciphertext are indistinguishable.
	ErrDecryptionFailed = errors.New("decryption failed")
	// ErrFingerprintMismatch is returned under FingerprintStrict when the
	// reconstructed secret does not hash to the expected fingerprint.
	ErrFingerprintMismatch = errors.New("secret fingerprint mismatch")
)

// FingerprintPolicy controls whether Decrypt checks the secret fingerprint.
type FingerprintPolicy int

const (
	// FingerprintLegacy ignores the fingerprint. Only cipher failures detect a
	// wrong secret.
	FingerprintLegacy FingerprintPolicy = iota
	// FingerprintStrict rejects a reconstructed secret whose fingerprint does not match.
	FingerprintStrict
)

// ParseFingerprintPolicy parses "legacy" or "strict". The empty string is legacy.
func ParseFingerprintPolicy(s string) (FingerprintPolicy, error) {
	switch s {
	case "", "legacy":
		return FingerprintLegacy, nil
	case "strict":
		return FingerprintStrict, nil
	default:
		return 0, fmt.Errorf("unknown fingerprint policy %q", s)
	}
}

func (p FingerprintPolicy) String() string {
	switch p {
	case FingerprintLegacy:
		return "legacy"
	case FingerprintStrict:
		return "strict"
	default:
		return fmt.Sprintf("FingerprintPolicy(%d)", int(p))
	}
}

// fingerprintHash is the Tink name of the hash used for fingerprints.
const fingerprintHash = "SHA256"

// Fingerprint returns the SHA-256 digest of a master secret.
func Fingerprint(masterSecret []byte) ([]byte, error) {
	return tinksubtle.ComputeHash(tinksubtle.GetHashFunc(fingerprintHash), masterSecret)
}

// Message is the output of Encrypt.
type Message struct {
	Ciphertext []byte
	Shares     []secrets.Share
	// Fingerprint identifies the master secret for diagnostics. It is not a MAC.
	Fingerprint []byte
}

// Protocol encrypts messages under one-time keys split into shares. It holds no
// per-message state and is safe for concurrent use.
type Protocol struct {
	cipher   Cipher
	splitter *shamir.Splitter
	random   func(n uint32) []byte
	policy   FingerprintPolicy
}

// Option configures a Protocol.
type Option func(*Protocol)

// WithCipher sets the cipher. The default is NewCBCCipher.
func WithCipher(c Cipher) Option {
	return func(p *Protocol) { p.cipher = c }
}

// WithSplitter sets the secret splitter.
func WithSplitter(s *shamir.Splitter) Option {
	return func(p *Protocol) { p.splitter = s }
}

// WithRandom replaces the source of keys and IVs.
func WithRandom(fn func(n uint32) []byte) Option {
	return func(p *Protocol) { p.random = fn }
}

// WithFingerprintPolicy sets the fingerprint policy used by Decrypt.
func WithFingerprintPolicy(policy FingerprintPolicy) Option {
	return func(p *Protocol) { p.policy = policy }
}

// New returns a Protocol with AES-256-CBC, Tink randomness and legacy fingerprint handling.
func New(opts ...Option) (*Protocol, error) {
	p := &Protocol{
		cipher: NewCBCCipher(),
		random: random.GetRandomBytes,
		policy: FingerprintLegacy,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.splitter == nil {
		p.splitter = shamir.New()
	}
	if p.cipher == nil {
		return nil, fmt.Errorf("cipher must not be nil")
	}
	if p.random == nil {
		return nil, fmt.Errorf("random source must not be nil")
	}
	return p, nil
}

// Encrypt generates a key and IV, encrypts plaintext, and splits key || iv
// into numShares shares, threshold of which are needed to decrypt.
func (p *Protocol) Encrypt(plaintext []byte, numShares, threshold int) (*Message, error) {
	// A single share would be the key and IV in the clear.
	if threshold < constants.MinThreshold {
		return nil, fmt.Errorf("%w: threshold %d is below %d", shamir.ErrInvalidParameters, threshold, constants.MinThreshold)
	}
	masterSecret := make([]byte, 0, constants.MasterSecretBytes)
	masterSecret = append(masterSecret, p.random(constants.KeyBytes)...)
	masterSecret = append(masterSecret, p.random(constants.IVBytes)...)
	defer clear(masterSecret)
	if len(masterSecret) != constants.MasterSecretBytes {
		return nil, fmt.Errorf("random source returned %d bytes, expected %d", len(masterSecret), constants.MasterSecretBytes)
	}
	key, iv := masterSecret[:constants.KeyBytes], masterSecret[constants.KeyBytes:]

	ciphertext, err := p.cipher.Encrypt(plaintext, key, iv)
	if err != nil {
		return nil, fmt.Errorf("error encrypting plaintext: %w", err)
	}

	fingerprint, err := Fingerprint(masterSecret)
	if err != nil {
		return nil, fmt.Errorf("error fingerprinting secret: %w", err)
	}

	shares, err := p.splitter.Split(masterSecret, numShares, threshold)
	if err != nil {
		return nil, fmt.Errorf("error splitting secret: %w", err)
	}

	return &Message{
		Ciphertext:  ciphertext,
		Shares:      shares,
		Fingerprint: fingerprint,
	}, nil
}

// Decrypt reconstructs the key and IV from shares and decrypts ciphertext.
// The fingerprint is only consulted under FingerprintStrict and may be nil
// otherwise.
//
// Errors are ErrInsufficientShares, shamir.ErrShareLengthMismatch,
// shamir.ErrDuplicateShareID, ErrMalformedSecret, ErrFingerprintMismatch or
// ErrDecryptionFailed. Too few genuine shares, wrong shares and a modified
// ciphertext all look like ErrDecryptionFailed (or, under the strict policy,
// ErrFingerprintMismatch).
func (p *Protocol) Decrypt(ciphertext []byte, shares []secrets.Share, fingerprint []byte) ([]byte, error) {
	if len(shares) < constants.MinThreshold {
		return nil, fmt.Errorf("%w: need at least %d, got %d", ErrInsufficientShares, constants.MinThreshold, len(shares))
	}

	masterSecret, err := p.splitter.Combine(shares)
	if err != nil {
		return nil, fmt.Errorf("error combining shares: %w", err)
	}
	defer clear(masterSecret)

	if len(masterSecret) != constants.MasterSecretBytes {
		return nil, fmt.Errorf("%w: reconstructed %d bytes, expected %d", ErrMalformedSecret, len(masterSecret), constants.MasterSecretBytes)
	}

	if p.policy == FingerprintStrict {
		got, err := Fingerprint(masterSecret)
		if err != nil {
			return nil, fmt.Errorf("error fingerprinting secret: %w", err)
		}
		if subtle.ConstantTimeCompare(got, fingerprint) != 1 {
			return nil, ErrFingerprintMismatch
		}
	}

	key, iv := masterSecret[:constants.KeyBytes], masterSecret[constants.KeyBytes:]
	plaintext, err := p.cipher.Decrypt(ciphertext, key, iv)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}
