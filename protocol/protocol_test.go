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

package protocol_test

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"testing"

	"github.com/GoogleCloudPlatform/ssdd/constants"
	"github.com/GoogleCloudPlatform/ssdd/protocol"
	"github.com/GoogleCloudPlatform/ssdd/secret_sharing/secrets"
	"github.com/GoogleCloudPlatform/ssdd/secret_sharing/shamir"
	"github.com/google/go-cmp/cmp"
)

var testMessages = []string{
	"",
	"hello",
	"exactly sixteen!",
	"Ünïcödé ✓ 秘密のメッセージ 🔥",
	string(bytes.Repeat([]byte("long message "), 500)),
}

func newProtocol(t *testing.T, opts ...protocol.Option) *protocol.Protocol {
	t.Helper()
	p, err := protocol.New(opts...)
	if err != nil {
		t.Fatalf("protocol.New() err = %v", err)
	}
	return p
}

// counter returns a deterministic byte source: 0, 1, 2, ...
func counter() func(uint32) []byte {
	next := byte(0)
	return func(n uint32) []byte {
		out := make([]byte, n)
		for i := range out {
			out[i] = next
			next++
		}
		return out
	}
}

func TestEncryptDecryptEveryPairOfShares(t *testing.T) {
	for _, cipherName := range []string{protocol.CipherCBC, protocol.CipherStreamingAEAD} {
		c, err := protocol.CipherByName(cipherName)
		if err != nil {
			t.Fatal(err)
		}
		p := newProtocol(t, protocol.WithCipher(c))
		for i, m := range testMessages {
			t.Run(fmt.Sprintf("%s message %d", cipherName, i), func(t *testing.T) {
				msg, err := p.Encrypt([]byte(m), constants.DefaultShares, constants.DefaultThreshold)
				if err != nil {
					t.Fatalf("Encrypt() err = %v", err)
				}
				if len(msg.Shares) != constants.DefaultShares {
					t.Fatalf("Encrypt() returned %d shares, want %d", len(msg.Shares), constants.DefaultShares)
				}
				for _, pair := range [][2]int{{0, 1}, {0, 2}, {1, 2}, {2, 0}} {
					shares := []secrets.Share{msg.Shares[pair[0]], msg.Shares[pair[1]]}
					got, err := p.Decrypt(msg.Ciphertext, shares, nil)
					if err != nil {
						t.Fatalf("Decrypt(shares %v) err = %v", pair, err)
					}
					if string(got) != m {
						t.Fatalf("Decrypt(shares %v) = %q, want %q", pair, got, m)
					}
				}
				got, err := p.Decrypt(msg.Ciphertext, msg.Shares, nil)
				if err != nil {
					t.Fatalf("Decrypt(all shares) err = %v", err)
				}
				if string(got) != m {
					t.Fatalf("Decrypt(all shares) = %q, want %q", got, m)
				}
			})
		}
	}
}

func TestEncryptSharesAndFingerprint(t *testing.T) {
	p := newProtocol(t, protocol.WithRandom(counter()))
	msg, err := p.Encrypt([]byte("attack at dawn"), 5, 3)
	if err != nil {
		t.Fatal(err)
	}
	for _, s := range msg.Shares {
		if len(s.Coordinates) != constants.MasterSecretBytes {
			t.Errorf("share %d has %d coordinates, want %d", s.ID, len(s.Coordinates), constants.MasterSecretBytes)
		}
	}

	// The key and IV are the first 48 bytes drawn from the random source.
	master := counter()(constants.MasterSecretBytes)
	want := sha256.Sum256(master)
	if diff := cmp.Diff(want[:], msg.Fingerprint); diff != "" {
		t.Errorf("Fingerprint mismatch (-want +got):\n%s", diff)
	}

	recovered, err := shamir.New().Combine(msg.Shares[2:])
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(master, recovered); diff != "" {
		t.Errorf("shares do not hold key || iv (-want +got):\n%s", diff)
	}
}

func TestEncryptRejectsBadShareParameters(t *testing.T) {
	testCases := []struct {
		name      string
		numShares int
		threshold int
	}{
		{name: "threshold above shares", numShares: 2, threshold: 3},
		{name: "threshold one", numShares: 3, threshold: 1},
		{name: "threshold zero", numShares: 3, threshold: 0},
	}
	p := newProtocol(t)
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			msg, err := p.Encrypt([]byte("m"), tc.numShares, tc.threshold)
			if !errors.Is(err, shamir.ErrInvalidParameters) {
				t.Errorf("Encrypt(n=%d, k=%d) err = %v, want %v", tc.numShares, tc.threshold, err, shamir.ErrInvalidParameters)
			}
			if msg != nil {
				t.Errorf("Encrypt(n=%d, k=%d) returned a message alongside the error", tc.numShares, tc.threshold)
			}
		})
	}
}

func TestDecryptErrors(t *testing.T) {
	p := newProtocol(t)
	msg, err := p.Encrypt([]byte("top secret"), 3, 2)
	if err != nil {
		t.Fatal(err)
	}
	short, err := shamir.New().Split([]byte("not a key"), 3, 2)
	if err != nil {
		t.Fatal(err)
	}
	truncated := msg.Shares[1]
	truncated.Coordinates = truncated.Coordinates[:10]

	for _, tc := range []struct {
		name   string
		shares []secrets.Share
		want   error
	}{
		{name: "no shares", shares: nil, want: protocol.ErrInsufficientShares},
		{name: "one share", shares: msg.Shares[:1], want: protocol.ErrInsufficientShares},
		{name: "duplicate ids", shares: []secrets.Share{msg.Shares[0], msg.Shares[0]}, want: shamir.ErrDuplicateShareID},
		{name: "length mismatch", shares: []secrets.Share{msg.Shares[0], truncated}, want: shamir.ErrShareLengthMismatch},
		{name: "wrong secret length", shares: short[:2], want: protocol.ErrMalformedSecret},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := p.Decrypt(msg.Ciphertext, tc.shares, nil); !errors.Is(err, tc.want) {
				t.Errorf("Decrypt() err = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestDecryptWithForeignSharesFails(t *testing.T) {
	p := newProtocol(t)
	msg, err := p.Encrypt([]byte("message one"), 3, 2)
	if err != nil {
		t.Fatal(err)
	}
	other, err := p.Encrypt([]byte("message two"), 3, 2)
	if err != nil {
		t.Fatal(err)
	}
	// CBC padding only catches a wrong key most of the time; an accidental
	// valid padding still yields garbage.
	got, err := p.Decrypt(msg.Ciphertext, other.Shares[:2], nil)
	if err == nil && string(got) == "message one" {
		t.Fatal("Decrypt() with foreign shares recovered the plaintext")
	}
	if err != nil && !errors.Is(err, protocol.ErrDecryptionFailed) {
		t.Errorf("Decrypt() err = %v, want %v", err, protocol.ErrDecryptionFailed)
	}
}

func TestDecryptTamperedCiphertextWithAEADFails(t *testing.T) {
	p := newProtocol(t, protocol.WithCipher(protocol.NewStreamingAEADCipher()))
	msg, err := p.Encrypt([]byte("do not modify"), 3, 2)
	if err != nil {
		t.Fatal(err)
	}
	tampered := bytes.Clone(msg.Ciphertext)
	tampered[len(tampered)-1] ^= 0x01
	if _, err := p.Decrypt(tampered, msg.Shares[:2], nil); !errors.Is(err, protocol.ErrDecryptionFailed) {
		t.Errorf("Decrypt(tampered) err = %v, want %v", err, protocol.ErrDecryptionFailed)
	}
}

func TestDecryptErrorHidesCipherDetails(t *testing.T) {
	p := newProtocol(t, protocol.WithCipher(protocol.NewStreamingAEADCipher()))
	msg, err := p.Encrypt([]byte("x"), 3, 2)
	if err != nil {
		t.Fatal(err)
	}
	_, err = p.Decrypt(msg.Ciphertext[:len(msg.Ciphertext)-1], msg.Shares[1:], nil)
	if err != protocol.ErrDecryptionFailed {
		t.Errorf("Decrypt() err = %v, want exactly %v", err, protocol.ErrDecryptionFailed)
	}
}

func TestFingerprintPolicy(t *testing.T) {
	strict := newProtocol(t, protocol.WithFingerprintPolicy(protocol.FingerprintStrict))
	msg, err := strict.Encrypt([]byte("verified"), 3, 2)
	if err != nil {
		t.Fatal(err)
	}
	other, err := strict.Encrypt([]byte("other"), 3, 2)
	if err != nil {
		t.Fatal(err)
	}

	got, err := strict.Decrypt(msg.Ciphertext, msg.Shares[1:], msg.Fingerprint)
	if err != nil {
		t.Fatalf("strict Decrypt() err = %v", err)
	}
	if string(got) != "verified" {
		t.Errorf("strict Decrypt() = %q, want %q", got, "verified")
	}

	for _, tc := range []struct {
		name        string
		shares      []secrets.Share
		fingerprint []byte
	}{
		{name: "missing fingerprint", shares: msg.Shares[:2], fingerprint: nil},
		{name: "other fingerprint", shares: msg.Shares[:2], fingerprint: other.Fingerprint},
		{name: "foreign shares", shares: other.Shares[:2], fingerprint: msg.Fingerprint},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := strict.Decrypt(msg.Ciphertext, tc.shares, tc.fingerprint); !errors.Is(err, protocol.ErrFingerprintMismatch) {
				t.Errorf("strict Decrypt() err = %v, want %v", err, protocol.ErrFingerprintMismatch)
			}
		})
	}

	legacy := newProtocol(t)
	if _, err := legacy.Decrypt(msg.Ciphertext, msg.Shares[:2], other.Fingerprint); err != nil {
		t.Errorf("legacy Decrypt() with unrelated fingerprint err = %v, want nil", err)
	}
}

func TestParseFingerprintPolicy(t *testing.T) {
	for in, want := range map[string]protocol.FingerprintPolicy{
		"":       protocol.FingerprintLegacy,
		"legacy": protocol.FingerprintLegacy,
		"strict": protocol.FingerprintStrict,
	} {
		got, err := protocol.ParseFingerprintPolicy(in)
		if err != nil {
			t.Fatalf("ParseFingerprintPolicy(%q) err = %v", in, err)
		}
		if got != want {
			t.Errorf("ParseFingerprintPolicy(%q) = %v, want %v", in, got, want)
		}
	}
	if _, err := protocol.ParseFingerprintPolicy("lenient"); err == nil {
		t.Error("ParseFingerprintPolicy(lenient) err = nil, want error")
	}
}

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

// NIST SP 800-38A, F.2.5 CBC-AES256.Encrypt, first block.
func TestCBCCipherKnownAnswer(t *testing.T) {
	key := mustHex(t, "603deb1015ca71be2b73aef0857d77811f352c073b6108d72d9810a30914dff4")
	iv := mustHex(t, "000102030405060708090a0b0c0d0e0f")
	plaintext := mustHex(t, "6bc1bee22e409f96e93d7e117393172a")
	want := mustHex(t, "f58c4c04d6e5f1ba779eabfb5f7bfbd6")

	c := protocol.NewCBCCipher()
	got, err := c.Encrypt(plaintext, key, iv)
	if err != nil {
		t.Fatal(err)
	}
	// A full block of padding follows the 16 byte plaintext.
	if len(got) != 32 {
		t.Fatalf("ciphertext has length %d, want 32", len(got))
	}
	if diff := cmp.Diff(want, got[:16]); diff != "" {
		t.Errorf("first block mismatch (-want +got):\n%s", diff)
	}
	back, err := c.Decrypt(got, key, iv)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(plaintext, back); diff != "" {
		t.Errorf("Decrypt() mismatch (-want +got):\n%s", diff)
	}
}

func TestCBCCipherRejectsBadInput(t *testing.T) {
	c := protocol.NewCBCCipher()
	key := make([]byte, constants.KeyBytes)
	iv := make([]byte, constants.IVBytes)
	for _, tc := range []struct {
		name       string
		ciphertext []byte
		key        []byte
		iv         []byte
	}{
		{name: "empty ciphertext", ciphertext: nil, key: key, iv: iv},
		{name: "partial block", ciphertext: make([]byte, 17), key: key, iv: iv},
		{name: "short iv", ciphertext: make([]byte, 16), key: key, iv: iv[:8]},
		{name: "bad key size", ciphertext: make([]byte, 16), key: key[:7], iv: iv},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := c.Decrypt(tc.ciphertext, tc.key, tc.iv); err == nil {
				t.Error("Decrypt() err = nil, want error")
			}
		})
	}
}

func TestCipherByNameUnknown(t *testing.T) {
	if _, err := protocol.CipherByName("rot13"); err == nil {
		t.Error("CipherByName(rot13) err = nil, want error")
	}
}

func TestNewRejectsNilCipher(t *testing.T) {
	if _, err := protocol.New(protocol.WithCipher(nil)); err == nil {
		t.Error("New(WithCipher(nil)) err = nil, want error")
	}
}
