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

// Package gf256 implements arithmetic in the field GF(2^8) reduced by the
// AES polynomial x^8 + x^4 + x^3 + x + 1, using log/antilog tables built over
// the generator 3.
package gf256

import (
	"errors"
	"sync"
)

// ErrDivisionByZero is returned when dividing by the zero element.
var ErrDivisionByZero = errors.New("gf256: division by zero")

const (
	// irreducible polynomial (x^8 + x^4 + x^3 + x + 1)
	// (x^8 + x^4 + x^3 + x + 1) = {0x01 0x1B}
	// we deal with uint8 so we only need 0x1B
	irreduciblePolynomial = 0x1B

	// generator of the multiplicative group. 3 is the smallest generator for
	// the AES polynomial; 2 is not.
	generator = 0x03

	// order of the multiplicative group.
	order = 255
)

// Field holds the precomputed exponent and logarithm tables. A Field is never
// modified after New returns, so a single value can be shared by any number
// of goroutines.
type Field struct {
	// exp is doubled so that exp[log[a]+log[b]] never needs a modulo.
	exp [2 * order]byte
	log [256]byte
}

// New builds the tables for GF(2^8).
func New() *Field {
	f := &Field{}
	x := byte(1)
	for i := 0; i < order; i++ {
		f.exp[i] = x
		f.exp[i+order] = x
		f.log[x] = byte(i)
		x = slowMultiply(x, generator)
	}
	return f
}

var defaultField = sync.OnceValue(New)

// Default returns a process-wide Field that is built on first use.
func Default() *Field {
	return defaultField()
}

// slowMultiply is the shift-and-add product, used only to build the tables.
func slowMultiply(a, b byte) byte {
	var product byte
	for b != 0 {
		if b&1 == 1 {
			product ^= a
		}
		carry := a & 0x80
		a <<= 1
		if carry != 0 {
			a ^= irreduciblePolynomial
		}
		b >>= 1
	}
	return product
}

// Add returns a + b. Subtraction is the same operation in characteristic 2.
func (f *Field) Add(a, b byte) byte {
	return a ^ b
}

// Multiply returns a * b.
func (f *Field) Multiply(a, b byte) byte {
	if a == 0 || b == 0 {
		return 0
	}
	return f.exp[int(f.log[a])+int(f.log[b])]
}

// Divide returns a / b, or ErrDivisionByZero when b is zero.
func (f *Field) Divide(a, b byte) (byte, error) {
	if b == 0 {
		return 0, ErrDivisionByZero
	}
	if a == 0 {
		return 0, nil
	}
	return f.exp[int(f.log[a])+order-int(f.log[b])], nil
}

// Inverse returns the multiplicative inverse of a.
func (f *Field) Inverse(a byte) (byte, error) {
	return f.Divide(1, a)
}

// Pow returns x^e computed by repeated multiplication. Pow(x, 0) is 1 for
// every x, including zero.
func (f *Field) Pow(x byte, e int) byte {
	result := byte(1)
	for i := 0; i < e; i++ {
		result = f.Multiply(result, x)
	}
	return result
}
