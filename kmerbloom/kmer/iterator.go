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

package kmer

import (
	"errors"
	"fmt"
)

// ErrInvalidK means k < 1.
var ErrInvalidK = errors.New("k-mer: invalid k-mer size, should be >= 1")

// Iterator slides a window of k bases over the runs of a sanitized sequence.
type Iterator struct {
	seq  []byte
	runs []Run
	k    int

	r int // index of current run
	i int // start of the next window
}

// NewIterator returns an Iterator. Runs are usually computed with Runs().
func NewIterator(seq []byte, runs []Run, k int) (*Iterator, error) {
	it := &Iterator{}
	return it, it.Reset(seq, runs, k)
}

// Reset reuses the iterator for another sequence.
func (it *Iterator) Reset(seq []byte, runs []Run, k int) error {
	if k < 1 {
		return ErrInvalidK
	}
	for _, r := range runs {
		if r.Start < 0 || r.End > len(seq) || r.Start > r.End {
			return fmt.Errorf("k-mer: run [%d, %d) out of range [0, %d)", r.Start, r.End, len(seq))
		}
	}
	it.seq = seq
	it.runs = runs
	it.k = k
	it.r = 0
	if len(runs) > 0 {
		it.i = runs[0].Start
	}
	return nil
}

// Next returns the next k-mer, and false when all k-mers are visited.
// The k-mer shares the memory of the sequence and should not be modified.
func (it *Iterator) Next() ([]byte, bool) {
	var run Run
	for it.r < len(it.runs) {
		run = it.runs[it.r]
		if it.i+it.k <= run.End {
			it.i++
			return it.seq[it.i-1 : it.i-1+it.k], true
		}

		it.r++
		if it.r < len(it.runs) {
			it.i = it.runs[it.r].Start
		}
	}
	return nil, false
}
