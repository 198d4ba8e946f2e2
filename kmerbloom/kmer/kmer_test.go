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
	"math/rand"
	"testing"
)

func TestSanitize(t *testing.T) {
	cases := [][2]string{
		{"ACGT", "ACGT"},
		{"acgt", "ACGT"},
		{"AC\nGT\r\n", "ACGT"},
		{"A C\tG T", "ACGT"},
		{"MRYKVHDBNmrykvhdbnxswSWX", "NNNNNNNNNNNNNNNNNNNNNNNN"},
		{"AC-GU.*1", "ACNGNNNN"},
		{"", ""},
	}
	for _, c := range cases {
		s := Sanitize(nil, []byte(c[0]))
		if string(s) != c[1] {
			t.Errorf("sanitize %q: expected %q, returned %q", c[0], c[1], s)
		}
	}
}

func TestRuns(t *testing.T) {
	cases := []struct {
		seq  string
		runs []Run
	}{
		{"", nil},
		{"NNNN", nil},
		{"ACGT", []Run{{0, 4}}},
		{"NNACNGTNN", []Run{{2, 4}, {5, 7}}},
		{"ANNNC", []Run{{0, 1}, {4, 5}}},
	}
	for _, c := range cases {
		runs := Runs([]byte(c.seq), nil)
		if len(runs) != len(c.runs) {
			t.Errorf("%s: expected %v, returned %v", c.seq, c.runs, runs)
			continue
		}
		for i := range runs {
			if runs[i] != c.runs[i] {
				t.Errorf("%s: expected %v, returned %v", c.seq, c.runs, runs)
				break
			}
		}
	}
}

func TestRunsInvariant(t *testing.T) {
	alphabet := []byte("ACGTNacgtnRY\n")
	r := rand.New(rand.NewSource(1))
	raw := make([]byte, 2000)

	for round := 0; round < 100; round++ {
		for i := range raw {
			raw[i] = alphabet[r.Intn(len(alphabet))]
		}
		seq := Sanitize(nil, raw)
		runs := Runs(seq, nil)

		inRun := make([]bool, len(seq))
		prevEnd := 0
		for _, run := range runs {
			if run.Len() <= 0 {
				t.Errorf("empty run: %v", run)
				return
			}
			if run.Start < prevEnd {
				t.Errorf("overlapped runs")
				return
			}
			for i := run.Start; i < run.End; i++ {
				if !IsCanonical(seq[i]) {
					t.Errorf("non-canonical base %c in run %v", seq[i], run)
					return
				}
				inRun[i] = true
			}
			// preceded by the sequence start or a byte out of any run
			if run.Start > 0 && seq[run.Start-1] != Unknown {
				t.Errorf("run %v is not maximal", run)
				return
			}
			if run.End < len(seq) && seq[run.End] != Unknown {
				t.Errorf("run %v is not maximal", run)
				return
			}
			prevEnd = run.End
		}

		for i, b := range seq {
			if IsCanonical(b) && !inRun[i] {
				t.Errorf("base %d (%c) is not covered by any run", i, b)
				return
			}
		}
	}
}

func TestIterator(t *testing.T) {
	seq := Sanitize(nil, []byte("ACGTANNCGTTGNA"))
	runs := Runs(seq, nil)
	k := 3

	expected := []string{"ACG", "CGT", "GTA", "CGT", "GTT", "TTG"}
	if n := NumKmers(runs, k); n != len(expected) {
		t.Errorf("expected %d k-mers, NumKmers returned %d", len(expected), n)
	}

	it, err := NewIterator(seq, runs, k)
	if err != nil {
		t.Error(err)
		return
	}
	var kmers []string
	for {
		mer, ok := it.Next()
		if !ok {
			break
		}
		kmers = append(kmers, string(mer))
	}
	if len(kmers) != len(expected) {
		t.Errorf("expected %v, returned %v", expected, kmers)
		return
	}
	for i := range kmers {
		if kmers[i] != expected[i] {
			t.Errorf("expected %v, returned %v", expected, kmers)
			return
		}
	}

	// shorter than k
	seq = []byte("AC")
	if err = it.Reset(seq, Runs(seq, nil), 4); err != nil {
		t.Error(err)
		return
	}
	if _, ok := it.Next(); ok {
		t.Errorf("no k-mers expected for a sequence shorter than k")
	}

	if _, err = NewIterator(seq, nil, 0); err != ErrInvalidK {
		t.Errorf("expected ErrInvalidK, returned %v", err)
	}
}

func TestSequence(t *testing.T) {
	s := PoolSequence.Get().(*Sequence)
	defer RecycleSequence(s)

	s.Reset([]byte("acgt\nNNAA\n"))
	if string(s.Seq) != "ACGTNNAA" {
		t.Errorf("unexpected sanitized sequence: %s", s.Seq)
	}
	if len(s.Runs) != 2 || s.Bases() != 6 {
		t.Errorf("unexpected runs: %v", s.Runs)
	}

	s.Reset([]byte("nnn"))
	if len(s.Runs) != 0 || s.Bases() != 0 {
		t.Errorf("unexpected runs: %v", s.Runs)
	}
}
