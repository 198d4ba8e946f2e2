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
	"errors"
	"fmt"
	"math"
	"sync/atomic"

	"github.com/bits-and-blooms/bitset"
)

// ErrFinalized means the filter is read-only.
var ErrFinalized = errors.New("bloom filter: filter is finalized and read-only")

// Filter is a bit array of M bits.
//
// Bits are stored in 64-bit words, bit i in word i>>6 at bit i&63, which is
// the same as bit i&7 of byte i>>3 when the words are laid out in
// little-endian order.
type Filter struct {
	p   Params
	pos *Positioner

	words []uint64
	bits  *bitset.BitSet // read view sharing the words

	finalized atomic.Bool
}

// New creates an empty filter.
func New(p *Params, h Hasher) (*Filter, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	pos, err := NewPositioner(h, p.K, p.BitfieldSize)
	if err != nil {
		return nil, err
	}
	if p.Hash == "" {
		p.Hash = h.Name()
	}

	f := &Filter{
		p:     *p,
		pos:   pos,
		words: make([]uint64, (p.M+63)>>6),
	}
	f.bits = bitset.From(f.words)
	return f, nil
}

func (f *Filter) String() string {
	return fmt.Sprintf("bloom filter: %s, set bits: %d, finalized: %v", f.p, f.Count(), f.Finalized())
}

// Params returns a copy of the parameters.
func (f *Filter) Params() Params { return f.p }

// Positioner returns the position generator.
func (f *Filter) Positioner() *Positioner { return f.pos }

// Insert sets a bit. It's safe for concurrent use.
// It panics if the filter is finalized.
func (f *Filter) Insert(byteOffset uint64, bitOffset uint8) {
	if f.finalized.Load() {
		panic(ErrFinalized)
	}
	f.set(byteOffset<<3 | uint64(bitOffset&7))
}

func (f *Filter) set(i uint64) {
	atomic.OrUint64(&f.words[i>>6], 1<<(i&63))
}

// Query tells if a bit is set.
func (f *Filter) Query(byteOffset uint64, bitOffset uint8) bool {
	return f.bits.Test(uint(byteOffset<<3 | uint64(bitOffset&7)))
}

// Add inserts a k-mer. It's safe for concurrent use.
func (f *Filter) Add(kmer []byte) {
	if f.finalized.Load() {
		panic(ErrFinalized)
	}
	var buf [64]byte
	digest := f.pos.Digest(buf[:0], kmer)
	for i := 0; i < f.p.K; i++ {
		f.set(f.pos.Slice(digest, i))
	}
}

// MightContain tells if a k-mer is possibly in the filter.
// False means the k-mer is definitely not inserted.
func (f *Filter) MightContain(kmer []byte) bool {
	var buf [64]byte
	digest := f.pos.Digest(buf[:0], kmer)
	for i := 0; i < f.p.K; i++ {
		if !f.bits.Test(uint(f.pos.Slice(digest, i))) {
			return false
		}
	}
	return true
}

// Finalize makes the filter read-only.
func (f *Filter) Finalize() { f.finalized.Store(true) }

// Finalized tells if the filter is read-only.
func (f *Filter) Finalized() bool { return f.finalized.Load() }

// Count returns the number of set bits.
func (f *Filter) Count() uint64 { return uint64(f.bits.Count()) }

// FillRatio returns the proportion of set bits among the addressable ones.
func (f *Filter) FillRatio() float64 {
	return float64(f.Count()) / float64(uint64(1)<<f.p.BitfieldSize)
}

// EstimatedFPR estimates the false positive rate from the fill ratio.
func (f *Filter) EstimatedFPR() float64 {
	return math.Pow(f.FillRatio(), float64(f.p.K))
}
