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

package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shenwei356/kmerbloom/kmerbloom/bloom"
)

func TestFormatRatio(t *testing.T) {
	for v, s := range map[float64]string{
		1:       "1.0",
		0:       "0.0",
		0.5:     "0.5",
		0.125:   "0.125",
		2.0 / 3: "0.6666666666666666",
	} {
		if formatRatio(v) != s {
			t.Errorf("formatRatio(%v): %s, expected: %s", v, formatRatio(v), s)
		}
	}
}

func TestWriteReport(t *testing.T) {
	tests := []struct {
		r    *QueryResult
		text string
		tsv  string
	}{
		{
			&QueryResult{Header: []byte(">a desc\r"), Bases: 10, Total: 4, Matched: 1},
			">a desc\nProportion of 5-mers in common with reference: 0.25\n\n",
			"a desc\t10\t4\t1\t0.25\n",
		},
		{
			&QueryResult{Header: []byte(">b"), Bases: 3},
			">b\nProportion of 5-mers in common with reference: undefined (no 5-mers)\n\n",
			"b\t3\t0\t0\tNA\n",
		},
		{
			&QueryResult{Header: []byte(">c"), Err: fmt.Errorf("unexpected EOF")},
			">c\nProportion of 5-mers in common with reference: failed (unexpected EOF)\n\n",
			"c\t0\tNA\tNA\tNA\n",
		},
	}

	var buf bytes.Buffer
	for i, test := range tests {
		buf.Reset()
		writeReport(&buf, test.r, 5, "text")
		if buf.String() != test.text {
			t.Errorf("#%d: %q, expected: %q", i, buf.String(), test.text)
		}

		buf.Reset()
		writeReport(&buf, test.r, 5, "tsv")
		if buf.String() != test.tsv {
			t.Errorf("#%d: %q, expected: %q", i, buf.String(), test.tsv)
		}
	}

	if checkReportFormat("tsv") != nil || checkReportFormat("json") == nil {
		t.Errorf("unexpected result of checking report formats")
	}
}

func TestOrderedResults(t *testing.T) {
	ch := make(chan *QueryResult, 8)
	done := make(chan error)

	var ids []int
	go orderedResults(ch, func(r *QueryResult) error {
		ids = append(ids, r.Index)
		return nil
	}, done)

	for _, i := range []int{3, 1, 0, 2, 5, 4} {
		ch <- &QueryResult{Index: i}
	}
	close(ch)
	if err := <-done; err != nil {
		t.Fatal(err)
	}

	if len(ids) != 6 {
		t.Fatalf("6 results expected: %v", ids)
	}
	for i, id := range ids {
		if i != id {
			t.Errorf("results out of order: %v", ids)
			break
		}
	}

	// missing one
	ch = make(chan *QueryResult, 8)
	go orderedResults(ch, func(r *QueryResult) error { return nil }, done)
	ch <- &QueryResult{Index: 1}
	close(ch)
	if err := <-done; err == nil {
		t.Errorf("undelivered results should be reported")
	}
}

func TestFilterInfo(t *testing.T) {
	dir := t.TempDir()
	filterFile := filepath.Join(dir, "genome.bf")

	h, _ := bloom.HasherByName(bloom.DefaultHash)
	p, err := bloom.EstimateParams(3000000000, 0.01, 30, h)
	if err != nil {
		t.Fatal(err)
	}

	info := NewFilterInfo(p)
	info.InsertedKmers = 123
	info.InputFile = "genome.fa"
	if err = writeFilterInfo(filterInfoFile(filterFile), info); err != nil {
		t.Fatal(err)
	}

	info2, err := readFilterInfo(filterInfoFile(filterFile))
	if err != nil {
		t.Fatal(err)
	}
	if *info2 != *info {
		t.Errorf("unexpected filter info: %+v, expected: %+v", info2, info)
	}
	if !info2.Params().Equal(p) {
		t.Errorf("parameters mismatch: %v", info2.Params().Diff(p))
	}

	// parameters from the info file
	p2, err := resolveParams(filterFile, &bloom.Params{}, true)
	if err != nil {
		t.Fatal(err)
	}
	if !p2.Equal(p) {
		t.Errorf("parameters mismatch: %v", p2.Diff(p))
	}

	// agreed flags
	if _, err = resolveParams(filterFile, &bloom.Params{KmerLength: 30, K: p.K}, true); err != nil {
		t.Errorf("agreed parameters should be accepted: %s", err)
	}

	// disagreed flags
	_, err = resolveParams(filterFile, &bloom.Params{KmerLength: 31, Hash: "sha512"}, true)
	if !errors.Is(err, bloom.ErrParamsMismatch) {
		t.Fatalf("mismatched parameters should be reported: %v", err)
	}
	for _, d := range []string{"k-mer size: 31 != 30", "hash: sha512 != sha256"} {
		if !strings.Contains(err.Error(), d) {
			t.Errorf("difference not reported: %s, error: %s", d, err)
		}
	}
	if strings.Contains(err.Error(), "bits:") || strings.Contains(err.Error(), "hashes:") {
		t.Errorf("unset flags should not be reported: %s", err)
	}

	// ignoring the info file
	if _, err = resolveParams(filterFile, &bloom.Params{KmerLength: 30}, false); err == nil {
		t.Errorf("incomplete parameters should be reported")
	}
	p3, err := resolveParams(filterFile, &bloom.Params{KmerLength: 4, M: 256, K: 2}, false)
	if err != nil {
		t.Fatal(err)
	}
	if p3.Hash != bloom.DefaultHash || p3.BitfieldSize != 0 {
		t.Errorf("unexpected parameters: %s", p3)
	}
}

func TestParseByteSize(t *testing.T) {
	for s, v := range map[string]uint64{
		"1MiB":    1 << 20,
		"1048576": 1 << 20,
		"64KB":    64000,
		"32GiB":   1 << 35,
		" 1 KiB ": 1024,
	} {
		n, err := ParseByteSize(s)
		if err != nil {
			t.Errorf("%s: %s", s, err)
			continue
		}
		if n != v {
			t.Errorf("%s: %d, expected: %d", s, n, v)
		}
	}

	for _, s := range []string{"", "abc", "-1"} {
		if _, err := ParseByteSize(s); err == nil {
			t.Errorf("invalid size should be reported: %q", s)
		}
	}
}

func TestRandomKmer(t *testing.T) {
	a := make([]byte, 45)
	b := make([]byte, 45)
	randomKmer(a, 7, 1)
	randomKmer(b, 7, 1)
	if !bytes.Equal(a, b) {
		t.Errorf("random k-mers should be reproducible")
	}
	for _, c := range a {
		if c != 'A' && c != 'C' && c != 'G' && c != 'T' {
			t.Errorf("unexpected base: %c", c)
		}
	}

	randomKmer(b, 8, 1)
	if bytes.Equal(a, b) {
		t.Errorf("k-mers of different counters should differ: %s", a)
	}
}

func TestIsPlainFile(t *testing.T) {
	for file, plain := range map[string]bool{
		"-":          false,
		"a.fa":       true,
		"a.fasta.gz": false,
		"a.fa.XZ":    false,
		"dir/a.fna":  true,
		"a.fa.zst":   false,
	} {
		if isPlainFile(file) != plain {
			t.Errorf("%s: %v, expected: %v", file, !plain, plain)
		}
	}
}
