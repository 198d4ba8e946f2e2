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

import "fmt"

// Position is the address of a bit in the filter.
type Position struct {
	Byte uint64 // byte offset
	Bit  uint8  // bit offset in the byte, [0, 7]
}

// Index returns the bit index in the filter.
func (p Position) Index() uint64 { return p.Byte<<3 | uint64(p.Bit) }

func (p Position) String() string { return fmt.Sprintf("%d:%d", p.Byte, p.Bit) }

// Positioner generates K positions from the digest of a k-mer.
type Positioner struct {
	h        Hasher
	k        int
	bitfield uint
}

// NewPositioner creates a Positioner. The digest of the hasher must be at
// least k*bitfieldSize bits wide.
func NewPositioner(h Hasher, k int, bitfieldSize int) (*Positioner, error) {
	if h == nil {
		return nil, fmt.Errorf("%w: nil hasher", ErrInvalidParams)
	}
	if k < 1 {
		return nil, fmt.Errorf("%w: number of hash rounds (%d) should be >= 1", ErrInvalidParams, k)
	}
	if bitfieldSize < 1 || bitfieldSize > 64 {
		return nil, fmt.Errorf("%w: bitfield size (%d) should be in range of [1, 64]", ErrInvalidParams, bitfieldSize)
	}
	if k*bitfieldSize > h.Size()<<3 {
		return nil, fmt.Errorf("%w: %s gives %d bits, but %d hashes * %d bits are needed",
			ErrDigestTooNarrow, h.Name(), h.Size()<<3, k, bitfieldSize)
	}
	return &Positioner{h: h, k: k, bitfield: uint(bitfieldSize)}, nil
}

// Digest appends the digest of a k-mer to dst.
func (p *Positioner) Digest(dst, kmer []byte) []byte {
	return p.h.Sum(dst, kmer)
}

// Slice returns the position of the ith round (0-based) from a digest.
func (p *Positioner) Slice(digest []byte, i int) uint64 {
	return bitsAt(digest, uint(i)*p.bitfield, p.bitfield)
}

// Positions appends the K positions of a k-mer to dst.
func (p *Positioner) Positions(kmer []byte, dst []Position) []Position {
	var buf [64]byte
	digest := p.h.Sum(buf[:0], kmer)

	var v uint64
	for i := 0; i < p.k; i++ {
		v = p.Slice(digest, i)
		dst = append(dst, Position{Byte: v >> 3, Bit: uint8(v & 7)})
	}
	return dst
}

// bitsAt returns n bits starting from bit off of a little-endian integer.
func bitsAt(d []byte, off, n uint) uint64 {
	var v uint64
	var got uint
	i := off >> 3
	shift := off & 7
	for got < n {
		v |= (uint64(d[i]) >> shift) << got
		got += 8 - shift
		shift = 0
		i++
	}
	if n < 64 {
		v &= 1<<n - 1
	}
	return v
}
