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
	"math/bits"

	bbloom "github.com/bits-and-blooms/bloom/v3"
)

// ErrInvalidParams means some parameters are out of range.
var ErrInvalidParams = errors.New("bloom filter: invalid parameters")

// ErrDigestTooNarrow means the digest can not provide K*BitfieldSize bits.
var ErrDigestTooNarrow = errors.New("bloom filter: digest too narrow")

// ErrBitfieldTooWide means positions could be out of the filter.
var ErrBitfieldTooWide = errors.New("bloom filter: bitfield size too wide for the filter")

// ErrUnknownHash means the hash function is not supported.
var ErrUnknownHash = errors.New("bloom filter: unknown hash function")

// ErrParamsMismatch means parameters of building and querying differ.
var ErrParamsMismatch = errors.New("bloom filter: parameters mismatch")

// Params contains the parameters shared by building and querying.
// They are not saved in the filter file.
type Params struct {
	N            uint64  // expected number of elements
	M            uint64  // number of bits
	K            int     // number of hash rounds
	BitfieldSize int     // bits of each digest slice
	KmerLength   int     // k-mer size
	Hash         string  // name of the hash function
	FPR          float64 // design false positive rate, for information
}

func (p Params) String() string {
	return fmt.Sprintf("k-mer size: %d, n: %d, m: %d bits, hashes: %d, bitfield size: %d, hash: %s, design FPR: %.4g",
		p.KmerLength, p.N, p.M, p.K, p.BitfieldSize, p.Hash, p.FPR)
}

// Validate checks the values of parameters, without the hash function.
func (p *Params) Validate() error {
	if p.M == 0 {
		return fmt.Errorf("%w: number of bits should be > 0", ErrInvalidParams)
	}
	if p.K < 1 {
		return fmt.Errorf("%w: number of hashes (%d) should be >= 1", ErrInvalidParams, p.K)
	}
	if p.KmerLength < 1 {
		return fmt.Errorf("%w: k-mer size (%d) should be >= 1", ErrInvalidParams, p.KmerLength)
	}
	if p.BitfieldSize < 1 || p.BitfieldSize > 64 {
		return fmt.Errorf("%w: bitfield size (%d) should be in range of [1, 64]", ErrInvalidParams, p.BitfieldSize)
	}
	if p.BitfieldSize == 64 || uint64(1)<<p.BitfieldSize > p.M {
		return fmt.Errorf("%w: 2^%d positions > %d bits", ErrBitfieldTooWide, p.BitfieldSize, p.M)
	}
	return nil
}

// Check validates the parameters along with the hash function.
func (p *Params) Check(h Hasher) error {
	if err := p.Validate(); err != nil {
		return err
	}
	_, err := NewPositioner(h, p.K, p.BitfieldSize)
	return err
}

// Bytes returns the size of the filter file.
func (p *Params) Bytes() uint64 {
	return (p.M + 7) >> 3
}

// Diff lists parameters that must agree between building and querying
// but differ. N and FPR are informative and ignored.
func (p *Params) Diff(o *Params) []string {
	diffs := make([]string, 0, 5)
	if p.KmerLength != o.KmerLength {
		diffs = append(diffs, fmt.Sprintf("k-mer size: %d != %d", p.KmerLength, o.KmerLength))
	}
	if p.M != o.M {
		diffs = append(diffs, fmt.Sprintf("bits: %d != %d", p.M, o.M))
	}
	if p.K != o.K {
		diffs = append(diffs, fmt.Sprintf("hashes: %d != %d", p.K, o.K))
	}
	if p.BitfieldSize != o.BitfieldSize {
		diffs = append(diffs, fmt.Sprintf("bitfield size: %d != %d", p.BitfieldSize, o.BitfieldSize))
	}
	if p.Hash != o.Hash {
		diffs = append(diffs, fmt.Sprintf("hash: %s != %s", p.Hash, o.Hash))
	}
	return diffs
}

// Equal tells if two sets of parameters are compatible.
func (p *Params) Equal(o *Params) bool {
	return len(p.Diff(o)) == 0
}

// FalsePositiveRate returns the theoretical false positive rate
// (1 - e^(-kn/m))^k of a filter with m bits after inserting n elements.
func FalsePositiveRate(m, n uint64, k int) float64 {
	if m == 0 {
		return 1
	}
	return math.Pow(1-math.Exp(-float64(k)*float64(n)/float64(m)), float64(k))
}

// minBitfieldSize keeps tiny filters in whole 64-bit words.
const minBitfieldSize = 6

// EstimateParams derives the parameters from the expected number of elements
// and the desired false positive rate.
//
// The optimal size is rounded up to a power of two so that every slice of
// BitfieldSize bits addresses the whole filter. Then the smallest number of
// hashes satisfying the rate is chosen, as long as the digest is wide enough.
func EstimateParams(n uint64, fpr float64, kmerLength int, h Hasher) (*Params, error) {
	if n == 0 {
		return nil, fmt.Errorf("%w: number of elements should be > 0", ErrInvalidParams)
	}
	if fpr <= 0 || fpr >= 1 {
		return nil, fmt.Errorf("%w: false positive rate (%f) should be in range of (0, 1)", ErrInvalidParams, fpr)
	}
	if h == nil {
		return nil, fmt.Errorf("%w: nil hasher", ErrInvalidParams)
	}

	m0, k0 := bbloom.EstimateParameters(uint(n), fpr)

	bitfield := bits.Len64(uint64(m0) - 1) // ceil(log2(m0))
	if bitfield < minBitfieldSize {
		bitfield = minBitfieldSize
	}
	if bitfield > 63 {
		return nil, fmt.Errorf("%w: %d bits needed", ErrInvalidParams, m0)
	}
	m := uint64(1) << bitfield

	maxK := h.Size() << 3 / bitfield
	if maxK < 1 {
		return nil, fmt.Errorf("%w: %s gives %d bits, but %d bits are needed",
			ErrDigestTooNarrow, h.Name(), h.Size()<<3, bitfield)
	}

	var k int
	for i := 1; i <= int(k0) && i <= maxK; i++ {
		if FalsePositiveRate(m, n, i) <= fpr {
			k = i
			break
		}
	}
	if k == 0 { // the rate is not reachable with the digest, use as many hashes as possible
		k = min(int(k0), maxK)
		if k < 1 {
			k = 1
		}
	}

	p := &Params{
		N:            n,
		M:            m,
		K:            k,
		BitfieldSize: bitfield,
		KmerLength:   kmerLength,
		Hash:         h.Name(),
		FPR:          FalsePositiveRate(m, n, k),
	}
	return p, nil
}

// CompleteParams fills the bitfield size and the number of hashes if they
// are 0, for filters with a given number of bits.
// The bitfield size defaults to floor(log2(M)), and the number of hashes
// to the optimal value round(ln(2)*2^BitfieldSize/N), bounded by the digest width.
func CompleteParams(p *Params, h Hasher) error {
	if p.M == 0 {
		return fmt.Errorf("%w: number of bits should be > 0", ErrInvalidParams)
	}
	if h == nil {
		return fmt.Errorf("%w: nil hasher", ErrInvalidParams)
	}
	p.Hash = h.Name()

	if p.BitfieldSize == 0 {
		p.BitfieldSize = bits.Len64(p.M) - 1
		if p.BitfieldSize > 63 {
			p.BitfieldSize = 63
		}
		if p.BitfieldSize < 1 {
			return fmt.Errorf("%w: number of bits (%d) too small", ErrInvalidParams, p.M)
		}
	}

	if p.K == 0 {
		if p.N == 0 {
			return fmt.Errorf("%w: number of elements or number of hashes is needed", ErrInvalidParams)
		}
		maxK := h.Size() << 3 / p.BitfieldSize
		p.K = int(math.Round(math.Ln2 * float64(uint64(1)<<p.BitfieldSize) / float64(p.N)))
		if p.K < 1 {
			p.K = 1
		}
		if p.K > maxK {
			p.K = maxK
		}
	}

	if p.N > 0 {
		p.FPR = FalsePositiveRate(uint64(1)<<p.BitfieldSize, p.N, p.K)
	}
	return p.Check(h)
}
