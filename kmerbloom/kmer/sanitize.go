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
	"bytes"
	"sync"
)

// Unknown is the sentinel for all non-ACGT symbols after sanitization.
const Unknown byte = 'N'

const removed byte = 0

// table maps every byte to A, C, G, T or N, and 0 for bytes to be removed.
var table [256]byte

func init() {
	for i := range table {
		table[i] = Unknown
	}
	for i := 0; i <= ' '; i++ { // line breaks, tabs, spaces and other control bytes
		table[i] = removed
	}
	table[0x7f] = removed

	table['A'], table['C'], table['G'], table['T'] = 'A', 'C', 'G', 'T'
	table['a'], table['c'], table['g'], table['t'] = 'A', 'C', 'G', 'T'
}

// IsCanonical tells if a byte is one of A, C, G and T.
func IsCanonical(b byte) bool {
	return b == 'A' || b == 'C' || b == 'G' || b == 'T'
}

// Sanitize removes whitespace and control bytes from src, translates the
// left bytes to A, C, G, T or N, and appends the result to dst.
// Lower-case bases are converted to upper case, and degenerate bases,
// gaps and any other symbols become N.
func Sanitize(dst, src []byte) []byte {
	var c byte
	for _, b := range src {
		c = table[b]
		if c == removed {
			continue
		}
		dst = append(dst, c)
	}
	return dst
}

// Run is a region of canonical bases in a sanitized sequence, 0-based, [Start, End).
type Run struct {
	Start int
	End   int
}

// Len returns the length of the run.
func (r Run) Len() int { return r.End - r.Start }

// Runs appends the maximal runs of canonical bases in a sanitized sequence to runs.
func Runs(seq []byte, runs []Run) []Run {
	var start, end, i int
	pointer := 0
	n := len(seq)
	for pointer < n {
		// the first base at or after the pointer
		start = -1
		for i = pointer; i < n; i++ {
			if seq[i] != Unknown {
				start = i
				break
			}
		}
		if start < 0 {
			break
		}

		// ends at the next N
		end = bytes.IndexByte(seq[start:], Unknown)
		if end < 0 {
			end = n
		} else {
			end += start
		}

		runs = append(runs, Run{Start: start, End: end})
		pointer = end
	}
	return runs
}

// NumKmers returns the number of k-mers in all runs.
func NumKmers(runs []Run, k int) int {
	var n int
	for _, r := range runs {
		if r.Len() >= k {
			n += r.Len() - k + 1
		}
	}
	return n
}

// Sequence holds a sanitized sequence and its runs, it's reusable.
type Sequence struct {
	Seq  []byte
	Runs []Run
}

// Reset sanitizes a raw sequence and recomputes the runs.
func (s *Sequence) Reset(raw []byte) {
	s.Seq = Sanitize(s.Seq[:0], raw)
	s.Runs = Runs(s.Seq, s.Runs[:0])
}

// Bases returns the number of canonical bases.
func (s *Sequence) Bases() int {
	var n int
	for _, r := range s.Runs {
		n += r.Len()
	}
	return n
}

// PoolSequence is the object pool of Sequence.
var PoolSequence = &sync.Pool{New: func() interface{} {
	return &Sequence{
		Seq:  make([]byte, 0, 1<<20),
		Runs: make([]Run, 0, 16),
	}
}}

// RecycleSequence puts back a Sequence, dropping big buffers.
func RecycleSequence(s *Sequence) {
	if cap(s.Seq) > 64<<20 {
		s.Seq = make([]byte, 0, 1<<20)
	}
	PoolSequence.Put(s)
}
