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

// Package shamir encapsulates all of the logic needed to perform t-of-n [Shamir
// Secret Sharing] (SSS) on arbitrary-size secrets over GF(2^8). SSS is based on
// the Lagrange interpolation theorem, which states that `k` points are enough to
// uniquely determine a polynomial of degree less than or equal to `k - 1`.
//
// Every byte of the secret is shared independently: byte `i` is the constant
// term of its own random polynomial, and share `x` holds that polynomial
// evaluated at `x`.
//
// This scheme is secure under the following assumptions:
//   - The scheme requires a trusted dealer to generate the shares.
//   - The scheme assumes a passive adversary which can observe (t - 1) shares
//     without being able to reconstruct the secret. It assumes the adversary
//     isn't allowed to participate in the `Combine` step by providing a chosen share.
//
// Combine does not detect bogus or corrupted shares, and it cannot tell when it
// was given fewer shares than the threshold: it returns an unrelated value.
//
// [Shamir Secret Sharing]: https://web.mit.edu/6.857/OldStuff/Fall03/ref/Shamir-HowToShareAsecrets.pdf
package shamir

import (
	"errors"
	"fmt"

	"github.com/GoogleCloudPlatform/ssdd/secret_sharing/internal/field/gf256"
	"github.com/GoogleCloudPlatform/ssdd/secret_sharing/secrets"
	"github.com/google/tink/go/subtle/random"
)

// MaxShares is the largest number of shares; share IDs are the non-zero field elements.
const MaxShares = 255

var (
	// ErrInvalidParameters is returned by Split for an empty secret or an out of range (n, k).
	ErrInvalidParameters = errors.New("invalid secret sharing parameters")
	// ErrTooFewShares is returned when fewer than two shares are combined.
	ErrTooFewShares = errors.New("not enough shares")
	// ErrShareLengthMismatch is returned when shares have different coordinate lengths.
	ErrShareLengthMismatch = errors.New("shares have different lengths")
	// ErrDuplicateShareID is returned when two shares have the same ID.
	ErrDuplicateShareID = errors.New("duplicate share ID")
	// ErrInvalidShareID is returned for a share with ID 0.
	ErrInvalidShareID = errors.New("invalid share ID")
)

// Splitter splits and combines secrets. It is safe for concurrent use.
type Splitter struct {
	field  *gf256.Field
	random func(n uint32) []byte
}

// Option configures a Splitter.
type Option func(*Splitter)

// WithField sets the field tables used for arithmetic.
func WithField(f *gf256.Field) Option {
	return func(s *Splitter) { s.field = f }
}

// WithRandom replaces the source of polynomial coefficients. It must be
// cryptographically secure outside of tests.
func WithRandom(fn func(n uint32) []byte) Option {
	return func(s *Splitter) { s.random = fn }
}

// New returns a Splitter using the shared field tables and Tink's CSPRNG.
func New(opts ...Option) *Splitter {
	s := &Splitter{
		field:  gf256.Default(),
		random: random.GetRandomBytes,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Split splits secret into numShares shares where threshold or more shares
// can be combined to reconstruct it. Shares get IDs 1..numShares.
func (s *Splitter) Split(secret []byte, numShares, threshold int) ([]secrets.Share, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("%w: secret must not be empty", ErrInvalidParameters)
	}
	if threshold < 1 || threshold > numShares || numShares > MaxShares {
		return nil, fmt.Errorf("%w: need 1 <= threshold (%d) <= numShares (%d) <= %d", ErrInvalidParameters, threshold, numShares, MaxShares)
	}

	shares := make([]secrets.Share, numShares)
	for i := range shares {
		shares[i] = secrets.Share{
			ID:          byte(i + 1),
			Coordinates: make([]byte, len(secret)),
		}
	}

	// For each secret byte we build a polynomial of degree threshold-1:
	// secret[i] + R_1 * x^1 + R_2 * x^2 + ... + R_(t-1) * x^(t-1)
	coefficients := make([]byte, threshold)
	for i, b := range secret {
		coefficients[0] = b
		// Coefficients are uniform over the whole field, zero included, so
		// any threshold-1 shares are independent of the secret.
		copy(coefficients[1:], s.random(uint32(threshold-1)))
		// shares[0].Coordinates = [ F1(1), F2(1), ..., FN(1) ]
		// shares[1].Coordinates = [ F1(2), F2(2), ..., FN(2) ]
		for j := range shares {
			shares[j].Coordinates[i] = s.evaluate(coefficients, shares[j].ID)
		}
	}
	clear(coefficients)
	return shares, nil
}

// evaluate computes c[0] + c[1]*x + ... + c[n-1]*x^(n-1) over GF(2^8).
func (s *Splitter) evaluate(coefficients []byte, x byte) byte {
	y := coefficients[0]
	for c := 1; c < len(coefficients); c++ {
		y = s.field.Add(y, s.field.Multiply(coefficients[c], s.field.Pow(x, c)))
	}
	return y
}

// Combine reconstructs the secret from shares by interpolating each byte's
// polynomial at x = 0. All shares are used.
func (s *Splitter) Combine(shares []secrets.Share) ([]byte, error) {
	if err := validateShares(shares); err != nil {
		return nil, err
	}
	coefficients, err := s.lagrangeCoefficients(shares)
	if err != nil {
		return nil, err
	}
	secret := make([]byte, len(shares[0].Coordinates))
	for i := range secret {
		// ∑j y[j] * L_j(0)
		var sum byte
		for j, share := range shares {
			sum = s.field.Add(sum, s.field.Multiply(share.Coordinates[i], coefficients[j]))
		}
		secret[i] = sum
	}
	return secret, nil
}

// lagrangeCoefficients computes L_j(0) = ∏m≠j x[m] / (x[j] - x[m]) for every
// share. Subtraction is XOR, so 0 - x[m] is x[m]. The coefficients depend only
// on the IDs, so they are shared by every byte position.
func (s *Splitter) lagrangeCoefficients(shares []secrets.Share) ([]byte, error) {
	out := make([]byte, len(shares))
	for j, sj := range shares {
		l := byte(1)
		for m, sm := range shares {
			if m == j {
				continue
			}
			term, err := s.field.Divide(sm.ID, s.field.Add(sj.ID, sm.ID))
			if err != nil {
				return nil, fmt.Errorf("interpolating share %d: %w", sj.ID, err)
			}
			l = s.field.Multiply(l, term)
		}
		out[j] = l
	}
	return out, nil
}

func validateShares(shares []secrets.Share) error {
	if len(shares) < 2 {
		return fmt.Errorf("%w: need at least 2, got %d", ErrTooFewShares, len(shares))
	}
	length := len(shares[0].Coordinates)
	if length == 0 {
		return fmt.Errorf("%w: share %d is empty", ErrShareLengthMismatch, shares[0].ID)
	}
	seen := make(map[byte]bool, len(shares))
	for _, share := range shares {
		if share.ID == 0 {
			return ErrInvalidShareID
		}
		if len(share.Coordinates) != length {
			return fmt.Errorf("%w: share %d has length %d, want %d", ErrShareLengthMismatch, share.ID, len(share.Coordinates), length)
		}
		if seen[share.ID] {
			return fmt.Errorf("%w: %d", ErrDuplicateShareID, share.ID)
		}
		seen[share.ID] = true
	}
	return nil
}

var defaultSplitter = New()

// SplitSecret splits a secret into metadata.NumShares shares where metadata.Threshold
// or more shares can be combined to reconstruct the original secret.
func SplitSecret(metadata secrets.Metadata, secret []byte) (secrets.Split, error) {
	shares, err := defaultSplitter.Split(secret, metadata.NumShares, metadata.Threshold)
	if err != nil {
		return secrets.Split{}, err
	}
	return secrets.Split{
		Metadata:  metadata,
		Shares:    shares,
		SecretLen: len(secret),
	}, nil
}

// Reconstruct reconstructs the secret from secretSplit.
//
// The number of shares provided must meet the threshold specified when the
// shares were created by [SplitSecret].
//
// Reconstruct will not detect bogus or corrupted shares.
func Reconstruct(secretSplit secrets.Split) ([]byte, error) {
	if n, t := len(secretSplit.Shares), secretSplit.Metadata.Threshold; n < t {
		return nil, fmt.Errorf("%w: need at least %d, got %d", ErrTooFewShares, t, n)
	}
	secret, err := defaultSplitter.Combine(secretSplit.Shares)
	if err != nil {
		return nil, err
	}
	if secretSplit.SecretLen != 0 && len(secret) != secretSplit.SecretLen {
		return nil, fmt.Errorf("%w: reconstructed %d bytes, want %d", ErrShareLengthMismatch, len(secret), secretSplit.SecretLen)
	}
	return secret, nil
}
