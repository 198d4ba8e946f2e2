// Copyright © 2023-2024 Wei Shen <shenwei356@gmail.com>
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

package bloom

import (
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
	"sort"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/sha3"
)

// Hasher computes a wide digest of a k-mer.
// Implementations must be deterministic and safe for concurrent use.
type Hasher interface {
	// Name is recorded in the filter information.
	Name() string

	// Size returns the number of bytes of a digest.
	Size() int

	// Sum appends the digest of data to dst.
	Sum(dst, data []byte) []byte
}

// DefaultHash is the name of the default hash function.
const DefaultHash = "sha256"

type sha256Hasher struct{}

func (sha256Hasher) Name() string { return "sha256" }
func (sha256Hasher) Size() int    { return sha256.Size }
func (sha256Hasher) Sum(dst, data []byte) []byte {
	s := sha256.Sum256(data)
	return append(dst, s[:]...)
}

type sha512Hasher struct{}

func (sha512Hasher) Name() string { return "sha512" }
func (sha512Hasher) Size() int    { return sha512.Size }
func (sha512Hasher) Sum(dst, data []byte) []byte {
	s := sha512.Sum512(data)
	return append(dst, s[:]...)
}

type blake2bHasher struct{}

func (blake2bHasher) Name() string { return "blake2b-512" }
func (blake2bHasher) Size() int    { return blake2b.Size }
func (blake2bHasher) Sum(dst, data []byte) []byte {
	s := blake2b.Sum512(data)
	return append(dst, s[:]...)
}

type sha3Hasher struct{}

func (sha3Hasher) Name() string { return "sha3-512" }
func (sha3Hasher) Size() int    { return 64 }
func (sha3Hasher) Sum(dst, data []byte) []byte {
	s := sha3.Sum512(data)
	return append(dst, s[:]...)
}

var hashers = map[string]Hasher{
	"sha256":      sha256Hasher{},
	"sha512":      sha512Hasher{},
	"blake2b-512": blake2bHasher{},
	"sha3-512":    sha3Hasher{},
}

// HasherByName returns a built-in Hasher.
func HasherByName(name string) (Hasher, error) {
	h, ok := hashers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s, available: %s", ErrUnknownHash, name, HasherNames())
	}
	return h, nil
}

// HasherNames lists names of built-in hash functions.
func HasherNames() []string {
	names := make([]string, 0, len(hashers))
	for name := range hashers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
