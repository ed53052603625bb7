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

package shamir_test

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/GoogleCloudPlatform/ssdd/secret_sharing/secrets"
	"github.com/GoogleCloudPlatform/ssdd/secret_sharing/shamir"
	"github.com/google/go-cmp/cmp"
)

func getRandomBytes(t *testing.T, n int) []byte {
	t.Helper()
	b := make([]byte, n)
	_, err := rand.Read(b)
	if err != nil {
		t.Fatalf("Failed to read random bytes: %v", err)
	}
	return b
}

// subsets returns every k-element subset of shares, preserving order.
func subsets(shares []secrets.Share, k int) [][]secrets.Share {
	if k == 0 {
		return [][]secrets.Share{nil}
	}
	if len(shares) < k {
		return nil
	}
	var out [][]secrets.Share
	for _, rest := range subsets(shares[1:], k-1) {
		out = append(out, append([]secrets.Share{shares[0]}, rest...))
	}
	return append(out, subsets(shares[1:], k)...)
}

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestCombineEveryThresholdSubset(t *testing.T) {
	s := shamir.New()
	for _, secretLen := range []int{1, 7, 32, 48, 64} {
		secret := getRandomBytes(t, secretLen)
		for n := 2; n <= 10; n++ {
			for k := 2; k <= n; k++ {
				t.Run(fmt.Sprintf("len-%d n-%d k-%d", secretLen, n, k), func(t *testing.T) {
					shares, err := s.Split(secret, n, k)
					if err != nil {
						t.Fatalf("Split() err = %v", err)
					}
					if len(shares) != n {
						t.Fatalf("Split() returned %d shares, want %d", len(shares), n)
					}
					for _, subset := range subsets(shares, k) {
						got, err := s.Combine(subset)
						if err != nil {
							t.Fatalf("Combine() err = %v", err)
						}
						if !bytes.Equal(got, secret) {
							t.Fatalf("Combine(%d of %d) = %x, want %x", k, n, got, secret)
						}
					}
				})
			}
		}
	}
}

func TestCombineEverySecretLength(t *testing.T) {
	s := shamir.New()
	for secretLen := 1; secretLen <= 64; secretLen++ {
		secret := getRandomBytes(t, secretLen)
		shares, err := s.Split(secret, 5, 3)
		if err != nil {
			t.Fatalf("Split() err = %v", err)
		}
		for _, share := range shares {
			if len(share.Coordinates) != secretLen {
				t.Fatalf("share %d has %d coordinates, want %d", share.ID, len(share.Coordinates), secretLen)
			}
		}
		// More than the threshold is fine too.
		got, err := s.Combine([]secrets.Share{shares[4], shares[0], shares[2], shares[3]})
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(got, secret) {
			t.Errorf("len %d: got %x, want %x", secretLen, got, secret)
		}
	}
}

func TestSplitAssignsSequentialIDs(t *testing.T) {
	shares, err := shamir.New().Split([]byte("secret"), 255, 2)
	if err != nil {
		t.Fatal(err)
	}
	for i, share := range shares {
		if share.ID != byte(i+1) {
			t.Fatalf("shares[%d].ID = %d, want %d", i, share.ID, i+1)
		}
	}
}

func TestCombineBelowThresholdIsUnrelated(t *testing.T) {
	s := shamir.New()
	for k := 3; k <= 6; k++ {
		t.Run(fmt.Sprintf("k-%d", k), func(t *testing.T) {
			matches := 0
			for i := 0; i < 200; i++ {
				secret := getRandomBytes(t, 16)
				shares, err := s.Split(secret, k+2, k)
				if err != nil {
					t.Fatal(err)
				}
				got, err := s.Combine(shares[:k-1])
				if err != nil {
					t.Fatalf("Combine() err = %v, want nil below threshold", err)
				}
				if bytes.Equal(got, secret) {
					matches++
				}
			}
			if matches != 0 {
				t.Errorf("%d of 200 sub-threshold reconstructions matched the secret", matches)
			}
		})
	}
}

func TestCombineWithAlteredShareFails(t *testing.T) {
	s := shamir.New()
	secret := getRandomBytes(t, 32)
	shares, err := s.Split(secret, 3, 2)
	if err != nil {
		t.Fatal(err)
	}
	shares[0].Coordinates = getRandomBytes(t, len(shares[0].Coordinates))
	got, err := s.Combine(shares[:2])
	if err != nil {
		t.Fatalf("Combine() err = %v, want nil", err)
	}
	if bytes.Equal(got, secret) {
		t.Error("combining an altered share reconstructed the secret")
	}
}

func TestCombineRejectsDuplicateIDs(t *testing.T) {
	s := shamir.New()
	shares, err := s.Split([]byte("secret"), 3, 2)
	if err != nil {
		t.Fatal(err)
	}
	dup := shares[1]
	dup.Coordinates = bytes.Clone(shares[0].Coordinates)
	dup.ID = shares[0].ID
	if _, err := s.Combine([]secrets.Share{shares[0], dup}); !errors.Is(err, shamir.ErrDuplicateShareID) {
		t.Errorf("Combine() err = %v, want %v", err, shamir.ErrDuplicateShareID)
	}
}

func TestCombineRejectsLengthMismatch(t *testing.T) {
	s := shamir.New()
	shares, err := s.Split([]byte("secret"), 3, 2)
	if err != nil {
		t.Fatal(err)
	}
	shares[1].Coordinates = shares[1].Coordinates[:3]
	if _, err := s.Combine(shares[:2]); !errors.Is(err, shamir.ErrShareLengthMismatch) {
		t.Errorf("Combine() err = %v, want %v", err, shamir.ErrShareLengthMismatch)
	}
}

func TestCombineRejectsInvalidInput(t *testing.T) {
	good := secrets.Share{ID: 1, Coordinates: []byte{1, 2}}
	for _, tc := range []struct {
		name   string
		shares []secrets.Share
		want   error
	}{
		{name: "no shares", shares: nil, want: shamir.ErrTooFewShares},
		{name: "one share", shares: []secrets.Share{good}, want: shamir.ErrTooFewShares},
		{name: "zero id", shares: []secrets.Share{good, {ID: 0, Coordinates: []byte{3, 4}}}, want: shamir.ErrInvalidShareID},
		{name: "empty coordinates", shares: []secrets.Share{{ID: 1}, {ID: 2}}, want: shamir.ErrShareLengthMismatch},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := shamir.New().Combine(tc.shares); !errors.Is(err, tc.want) {
				t.Errorf("Combine() err = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestSplitRejectsInvalidParameters(t *testing.T) {
	for _, tc := range []struct {
		name      string
		secret    []byte
		numShares int
		threshold int
	}{
		{name: "empty secret", secret: nil, numShares: 3, threshold: 2},
		{name: "zero threshold", secret: []byte("x"), numShares: 3, threshold: 0},
		{name: "threshold above shares", secret: []byte("x"), numShares: 3, threshold: 4},
		{name: "too many shares", secret: []byte("x"), numShares: 256, threshold: 2},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := shamir.New().Split(tc.secret, tc.numShares, tc.threshold)
			if !errors.Is(err, shamir.ErrInvalidParameters) {
				t.Errorf("Split() err = %v, want %v", err, shamir.ErrInvalidParameters)
			}
		})
	}
}

func TestSplitThresholdOneCopiesSecret(t *testing.T) {
	secret := []byte("plain")
	shares, err := shamir.New().Split(secret, 3, 1)
	if err != nil {
		t.Fatal(err)
	}
	for _, share := range shares {
		if !bytes.Equal(share.Coordinates, secret) {
			t.Errorf("share %d = %q, want %q", share.ID, share.Coordinates, secret)
		}
	}
}

// With every random coefficient fixed to 2, each byte b lies on the line
// y = b + 2x, so the shares can be computed by hand.
func TestSplitWithFixedCoefficients(t *testing.T) {
	twos := func(n uint32) []byte { return bytes.Repeat([]byte{2}, int(n)) }
	s := shamir.New(shamir.WithRandom(twos))
	secret := mustHex(t, "4B6579")

	shares, err := s.Split(secret, 3, 2)
	if err != nil {
		t.Fatal(err)
	}
	want := []secrets.Share{
		{ID: 1, Coordinates: mustHex(t, "49677b")},
		{ID: 2, Coordinates: mustHex(t, "4f617d")},
		{ID: 3, Coordinates: mustHex(t, "4d637f")},
	}
	if diff := cmp.Diff(want, shares); diff != "" {
		t.Fatalf("Split() mismatch (-want +got):\n%s", diff)
	}

	got, err := s.Combine([]secrets.Share{shares[0], shares[2]})
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, secret) {
		t.Errorf("Combine(1, 3) = %x, want %x", got, secret)
	}
	if _, err := s.Combine(shares[1:2]); !errors.Is(err, shamir.ErrTooFewShares) {
		t.Errorf("Combine(2) err = %v, want %v", err, shamir.ErrTooFewShares)
	}
}

// Walking the single random coefficient through every field element must move
// a share through every byte value exactly once, zero coefficient included.
func TestSplitSingleShareIsUniform(t *testing.T) {
	const secretByte = 0x5a
	var next byte
	counter := func(n uint32) []byte {
		out := make([]byte, n)
		for i := range out {
			out[i] = next
			next++
		}
		return out
	}
	s := shamir.New(shamir.WithRandom(counter))

	seen := make(map[byte]int)
	for i := 0; i < 256; i++ {
		shares, err := s.Split([]byte{secretByte}, 2, 2)
		if err != nil {
			t.Fatal(err)
		}
		seen[shares[0].Coordinates[0]]++
	}
	if len(seen) != 256 {
		t.Fatalf("share 1 took %d distinct values over all coefficients, want 256", len(seen))
	}
	if seen[secretByte] != 1 {
		t.Errorf("share 1 equalled the secret %d times, want 1", seen[secretByte])
	}
}

func TestSplitShareMatchesSecretAtUniformRate(t *testing.T) {
	const trials = 20000
	s := shamir.New()
	matches := 0
	for i := 0; i < trials; i++ {
		secret := getRandomBytes(t, 1)
		shares, err := s.Split(secret, 2, 2)
		if err != nil {
			t.Fatal(err)
		}
		if shares[0].Coordinates[0] == secret[0] {
			matches++
		}
	}
	// Expected trials/256 (about 78).
	if matches < 20 || matches > 200 {
		t.Errorf("share byte equalled secret byte in %d of %d splits, want about %d", matches, trials, trials/256)
	}
}

// Shares produced by an independent GF(2^8) implementation over the same
// polynomial, with arbitrary X coordinates.
func TestCombineFromStaticShares(t *testing.T) {
	all := []secrets.Share{
		{Coordinates: []byte{0xca, 0x6a, 0x5e, 0xe5, 0x13, 0x14, 0x08, 0x88, 0xf0, 0xab, 0x3a, 0x3b, 0xee, 0x7b, 0xd0, 0xdc}, ID: 0xd3},
		{Coordinates: []byte{0xf9, 0xa1, 0xf9, 0xb9, 0x00, 0xe4, 0x9c, 0x39, 0xcc, 0xce, 0x1f, 0xd9, 0xab, 0x3c, 0xe5, 0x72}, ID: 0x97},
		{Coordinates: []byte{0xb8, 0x03, 0x95, 0x32, 0x0f, 0x82, 0xa9, 0xf8, 0x1b, 0x42, 0x71, 0x20, 0xdb, 0x04, 0xa2, 0x51}, ID: 0x53},
		{Coordinates: []byte{0x7b, 0xc9, 0x47, 0x5e, 0xf8, 0x67, 0xff, 0x7c, 0xbc, 0x91, 0xdd, 0xa9, 0x8b, 0xa2, 0x7e, 0x84}, ID: 0xff},
		{Coordinates: []byte{0x0b, 0x98, 0x6c, 0x4a, 0x32, 0x23, 0x11, 0xfe, 0x62, 0x5e, 0xcc, 0x5a, 0x47, 0x2a, 0x4e, 0x15}, ID: 0x5d},
	}
	want := []byte("YELLOW_SUBMARINE")
	for _, subset := range subsets(all, 3) {
		got, err := shamir.New().Combine(subset)
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(got, want) {
			t.Errorf("got %q, want %q", got, want)
		}
	}
}

func TestSplitSecretAndReconstruct(t *testing.T) {
	md := secrets.Metadata{NumShares: 6, Threshold: 4}
	secret := getRandomBytes(t, 48)
	split, err := shamir.SplitSecret(md, secret)
	if err != nil {
		t.Fatal(err)
	}
	if split.SecretLen != len(secret) {
		t.Errorf("SecretLen = %d, want %d", split.SecretLen, len(secret))
	}

	split.Shares = split.Shares[1:5]
	got, err := shamir.Reconstruct(split)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, secret) {
		t.Errorf("got %x, want %x", got, secret)
	}

	split.Shares = split.Shares[:3]
	if _, err := shamir.Reconstruct(split); !errors.Is(err, shamir.ErrTooFewShares) {
		t.Errorf("Reconstruct() with 3 of threshold 4 err = %v, want %v", err, shamir.ErrTooFewShares)
	}
}

func TestConcurrentSplitAndCombine(t *testing.T) {
	s := shamir.New()
	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			secret := make([]byte, 48)
			rand.Read(secret)
			shares, err := s.Split(secret, 5, 3)
			if err != nil {
				errs <- err
				return
			}
			got, err := s.Combine(shares[2:])
			if err != nil {
				errs <- err
				return
			}
			if !bytes.Equal(got, secret) {
				errs <- fmt.Errorf("got %x, want %x", got, secret)
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}
