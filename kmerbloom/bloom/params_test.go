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
	"testing"

	"github.com/stretchr/testify/require"
)

type narrowHasher struct{}

func (narrowHasher) Name() string { return "narrow" }
func (narrowHasher) Size() int    { return 2 }
func (narrowHasher) Sum(dst, data []byte) []byte {
	var a, b byte
	for i, c := range data {
		a ^= c
		b += c * byte(i+1)
	}
	return append(dst, a, b)
}

func TestEstimateParams(t *testing.T) {
	h, _ := HasherByName(DefaultHash)

	// a human genome
	p, err := EstimateParams(3000000000, 0.01, 30, h)
	require.NoError(t, err)
	require.Equal(t, uint64(1)<<35, p.M)
	require.Equal(t, 35, p.BitfieldSize)
	require.Equal(t, 4, p.K)
	require.Equal(t, 30, p.KmerLength)
	require.Equal(t, "sha256", p.Hash)
	require.InDelta(t, 0.0076, p.FPR, 0.0005)
	require.NoError(t, p.Check(h))
	require.Equal(t, uint64(1)<<32, p.Bytes())

	// tiny
	p, err = EstimateParams(3, 0.1, 4, h)
	require.NoError(t, err)
	require.Equal(t, uint64(64), p.M)
	require.NoError(t, p.Check(h))

	_, err = EstimateParams(0, 0.01, 30, h)
	require.ErrorIs(t, err, ErrInvalidParams)
	_, err = EstimateParams(100, 1, 30, h)
	require.ErrorIs(t, err, ErrInvalidParams)
	_, err = EstimateParams(100, 0, 30, h)
	require.ErrorIs(t, err, ErrInvalidParams)

	_, err = EstimateParams(3000000000, 0.01, 30, narrowHasher{})
	require.ErrorIs(t, err, ErrDigestTooNarrow)
}

func TestValidate(t *testing.T) {
	h, _ := HasherByName(DefaultHash)

	p := toyParams()
	require.NoError(t, p.Check(h))

	p = &Params{M: 100, K: 1, BitfieldSize: 7, KmerLength: 4}
	require.ErrorIs(t, p.Validate(), ErrBitfieldTooWide)

	p = &Params{M: 1 << 40, K: 8, BitfieldSize: 40, KmerLength: 4}
	require.NoError(t, p.Validate())
	require.ErrorIs(t, p.Check(h), ErrDigestTooNarrow)

	p = &Params{M: 256, K: 0, BitfieldSize: 8, KmerLength: 4}
	require.ErrorIs(t, p.Validate(), ErrInvalidParams)

	p = &Params{M: 256, K: 1, BitfieldSize: 8, KmerLength: 0}
	require.ErrorIs(t, p.Validate(), ErrInvalidParams)

	_, err := New(&Params{M: 100, K: 1, BitfieldSize: 7, KmerLength: 4}, h)
	require.ErrorIs(t, err, ErrBitfieldTooWide)
}

func TestCompleteParams(t *testing.T) {
	h, _ := HasherByName(DefaultHash)

	p := &Params{M: 256, N: 20, KmerLength: 4}
	require.NoError(t, CompleteParams(p, h))
	require.Equal(t, 8, p.BitfieldSize)
	require.Equal(t, 9, p.K)
	require.Equal(t, "sha256", p.Hash)
	require.Greater(t, p.FPR, 0.0)

	// non power of two
	p = &Params{M: 1000, K: 3, KmerLength: 4}
	require.NoError(t, CompleteParams(p, h))
	require.Equal(t, 9, p.BitfieldSize)
	require.Equal(t, 3, p.K)

	p = &Params{M: 1000, KmerLength: 4}
	require.ErrorIs(t, CompleteParams(p, h), ErrInvalidParams)
}

func TestDiff(t *testing.T) {
	a := toyParams()
	b := toyParams()
	b.N = 1000
	b.FPR = 0.5
	require.True(t, a.Equal(b))

	b.K = 3
	b.Hash = "sha512"
	diffs := a.Diff(b)
	require.Len(t, diffs, 2)
	require.Equal(t, "hashes: 2 != 3", diffs[0])
	require.Equal(t, "hash: sha256 != sha512", diffs[1])
	require.False(t, a.Equal(b))
}

func TestFalsePositiveRateFormula(t *testing.T) {
	require.Equal(t, 1.0, FalsePositiveRate(0, 10, 2))
	require.Equal(t, 0.0, FalsePositiveRate(1024, 0, 2))
	require.InDelta(t, 0.0076, FalsePositiveRate(1<<35, 3000000000, 4), 0.0005)
}
