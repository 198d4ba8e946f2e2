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

/*
Package bloom implements a Bloom filter of k-mers addressed by slices of
a single wide cryptographic digest.

# Addressing

Each k-mer is hashed once. The digest is read as a little-endian unsigned
integer, and K slices of BitfieldSize bits are taken from the low end:

	digest:   | slice K-1 | ... | slice 1 | slice 0 |   (most significant on the left)
	position: slice value
	byte:     position >> 3
	bit:      position & 7

So the digest must be at least K*BitfieldSize bits wide, and 1<<BitfieldSize
must not exceed the number of bits M of the filter.

# Guarantees

A k-mer inserted into the filter is always reported as present (no false
negatives). A k-mer never inserted may be reported as present with a
probability approaching the design rate

	p = (1 - e^(-K*N/M))^K

when N k-mers have been inserted. It is a statistical expectation, not a bound.

# Persistence

The filter is saved as a flat array of ceil(M/8) bytes, bit i in byte i>>3 at
bit position i&7. There's no header: M, K, BitfieldSize, the k-mer size and
the hash function must be provided when loading the filter.
*/
package bloom
