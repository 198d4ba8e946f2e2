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
	"os"
	"path/filepath"
	"testing"

	"github.com/shenwei356/kmerbloom/kmerbloom/bloom"
	"github.com/shenwei356/kmerbloom/kmerbloom/fasta"
)

var _genome = ">r1 first\nACGT\nACGT\n>r2\nttttGGGG\n>short\nAC\n"

func toyFilter(t *testing.T) (*bloom.Filter, *bloom.Params, bloom.Hasher) {
	h, err := bloom.HasherByName(bloom.DefaultHash)
	if err != nil {
		t.Fatal(err)
	}
	p := &bloom.Params{N: 10, M: 256, K: 2, BitfieldSize: 6, KmerLength: 4, Hash: bloom.DefaultHash}
	f, err := bloom.New(p, h)
	if err != nil {
		t.Fatal(err)
	}
	return f, p, h
}

func writeFile(t *testing.T, dir, name, content string) string {
	file := filepath.Join(dir, name)
	if err := os.WriteFile(file, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return file
}

func collect(results *[]*QueryResult) func(*QueryResult) error {
	return func(r *QueryResult) error {
		*results = append(*results, r)
		return nil
	}
}

func TestBuildAndQuery(t *testing.T) {
	dir := t.TempDir()
	file := writeFile(t, dir, "genome.fa", _genome)

	f, p, h := toyFilter(t)
	stats, err := BuildFilter(file, f, &BuildOptions{NumCPUs: 2, ChunkSize: 7})
	if err != nil {
		t.Fatal(err)
	}
	if !f.Finalized() {
		t.Errorf("filter should be finalized after building")
	}
	if stats.Records != 3 || stats.ShortRecords != 1 || stats.FailedRecords != 0 {
		t.Errorf("unexpected record stats: %+v", stats)
	}
	if stats.Kmers != 10 || stats.Bases != 18 {
		t.Errorf("unexpected k-mer stats: %+v", stats)
	}

	// building again
	if _, err = BuildFilter(file, f, &BuildOptions{NumCPUs: 1}); !errors.Is(err, bloom.ErrFinalized) {
		t.Errorf("building a finalized filter should fail")
	}

	// save and load
	filterFile := filepath.Join(dir, "genome.bf")
	if err = f.WriteFile(filterFile); err != nil {
		t.Fatal(err)
	}
	g, err := bloom.LoadFile(filterFile, p, h)
	if err != nil {
		t.Fatal(err)
	}

	expected := []string{
		">r1 first\nProportion of 4-mers in common with reference: 1.0\n\n",
		">r2\nProportion of 4-mers in common with reference: 1.0\n\n",
		">short\nProportion of 4-mers in common with reference: undefined (no 4-mers)\n\n",
	}

	for _, stream := range []bool{false, true} {
		var results []*QueryResult
		var qstats *PipelineStats
		opt := &QueryOptions{NumCPUs: 3, ChunkSize: 5}
		if stream {
			qstats, err = QueryStream(file, g, opt, collect(&results))
		} else {
			qstats, err = QueryFile(file, g, opt, collect(&results))
		}
		if err != nil {
			t.Fatal(err)
		}

		if len(results) != 3 {
			t.Fatalf("stream: %v, 3 results expected, %d returned", stream, len(results))
		}
		for i, r := range results {
			if r.Index != i {
				t.Errorf("stream: %v, results out of order: %d != %d", stream, r.Index, i)
			}
			var buf bytes.Buffer
			writeReport(&buf, r, 4, "text")
			if buf.String() != expected[i] {
				t.Errorf("stream: %v, unexpected report: %q, expected: %q", stream, buf.String(), expected[i])
			}
		}

		if qstats.Records != 3 || qstats.ShortRecords != 1 || qstats.Kmers != 10 || qstats.Matched != 10 {
			t.Errorf("stream: %v, unexpected stats: %+v", stream, qstats)
		}
	}

	// a sample not in the reference
	sample := writeFile(t, dir, "sample.fa", ">s1\nACGTNACGTA\n>s2\nAC\nGT\n")
	var results []*QueryResult
	if _, err = QueryFile(sample, g, &QueryOptions{NumCPUs: 1}, collect(&results)); err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("2 results expected, %d returned", len(results))
	}
	// ACGT, ACGT, CGTA, and N is not counted as a base
	if results[0].Total != 3 || results[0].Bases != 9 {
		t.Errorf("unexpected result: %+v", results[0])
	}
	if ratio, ok := results[1].Ratio(); !ok || ratio != 1 {
		t.Errorf("ACGT is in the reference, but ratio: %f, %v", ratio, ok)
	}
}

func TestQueryShortRecord(t *testing.T) {
	dir := t.TempDir()
	file := writeFile(t, dir, "genome.fa", ">short\nAC\n")

	f, _, _ := toyFilter(t)
	if _, err := BuildFilter(file, f, &BuildOptions{NumCPUs: 1}); err != nil {
		t.Fatal(err)
	}
	if f.Count() != 0 {
		t.Errorf("no bits should be set: %d", f.Count())
	}

	var results []*QueryResult
	if _, err := QueryFile(file, f, &QueryOptions{NumCPUs: 1}, collect(&results)); err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Fatalf("1 result expected, %d returned", len(results))
	}
	if _, ok := results[0].Ratio(); ok {
		t.Errorf("ratio should be undefined")
	}
	if results[0].Bases != 2 {
		t.Errorf("unexpected bases: %d", results[0].Bases)
	}
}

func TestQueryCallbackError(t *testing.T) {
	dir := t.TempDir()
	file := writeFile(t, dir, "genome.fa", _genome)
	f, _, _ := toyFilter(t)
	f.Finalize()

	errStop := errors.New("stop")
	var n int
	_, err := QueryFile(file, f, &QueryOptions{NumCPUs: 2}, func(r *QueryResult) error {
		n++
		return errStop
	})
	if !errors.Is(err, errStop) {
		t.Errorf("callback error should be returned: %v", err)
	}
	if n != 1 {
		t.Errorf("no results should be delivered after an error: %d", n)
	}
}

func TestMissingInput(t *testing.T) {
	f, _, _ := toyFilter(t)
	file := filepath.Join(t.TempDir(), "missing.fa")
	if _, err := BuildFilter(file, f, &BuildOptions{NumCPUs: 1}); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing file should be reported: %v", err)
	}
	if _, err := QueryFile(file, f, &QueryOptions{NumCPUs: 1}, nil); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing file should be reported: %v", err)
	}
	if _, err := BuildFilter(file, f, &BuildOptions{NumCPUs: 0}); err == nil {
		t.Errorf("invalid options should be reported")
	}
}

var errBadBlock = errors.New("bad block")

// badBlockReader fails reads starting at a given offset.
type badBlockReader struct {
	rd     *bytes.Reader
	offset int64
}

func (r *badBlockReader) ReadAt(p []byte, off int64) (int, error) {
	if off == r.offset {
		return 0, errBadBlock
	}
	return r.rd.ReadAt(p, off)
}

// the sequence of r2 in _genome can not be read
func badGenome(t *testing.T) (*badBlockReader, []fasta.Record) {
	rd := bytes.NewReader([]byte(_genome))
	records, err := fasta.Index(rd, rd.Size(), 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 3 {
		t.Fatalf("3 records expected, %d returned", len(records))
	}
	return &badBlockReader{rd: rd, offset: records[1].SeqStart}, records
}

func TestBuildFailedRecord(t *testing.T) {
	rd, records := badGenome(t)
	f, _, _ := toyFilter(t)

	stats, err := insertRecords(rd, records, f, &BuildOptions{NumCPUs: 2})
	if err != nil {
		t.Fatal(err)
	}
	if !f.Finalized() {
		t.Errorf("filter should be finalized after building")
	}
	if stats.Records != 3 || stats.FailedRecords != 1 || stats.ShortRecords != 1 {
		t.Errorf("unexpected record stats: %+v", stats)
	}
	// r1: ACGTACGT
	if stats.Kmers != 5 || stats.Bases != 10 {
		t.Errorf("unexpected k-mer stats: %+v", stats)
	}
	for _, km := range []string{"ACGT", "CGTA", "GTAC", "TACG"} {
		if !f.MightContain([]byte(km)) {
			t.Errorf("k-mer of r1 not inserted: %s", km)
		}
	}
}

func TestQueryFailedRecord(t *testing.T) {
	dir := t.TempDir()
	file := writeFile(t, dir, "genome.fa", _genome)
	f, _, _ := toyFilter(t)
	if _, err := BuildFilter(file, f, &BuildOptions{NumCPUs: 1}); err != nil {
		t.Fatal(err)
	}

	rd, records := badGenome(t)
	var results []*QueryResult
	stats, err := queryRecords(rd, records, f, &QueryOptions{NumCPUs: 3}, collect(&results))
	if err != nil {
		t.Fatal(err)
	}
	if stats.Records != 3 || stats.FailedRecords != 1 || stats.ShortRecords != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
	if len(results) != 3 {
		t.Fatalf("3 results expected, %d returned", len(results))
	}

	expected := []string{
		">r1 first\nProportion of 4-mers in common with reference: 1.0\n\n",
		">r2\nProportion of 4-mers in common with reference: failed (bad block)\n\n",
		">short\nProportion of 4-mers in common with reference: undefined (no 4-mers)\n\n",
	}
	for i, r := range results {
		if r.Index != i {
			t.Errorf("results out of order: %d != %d", r.Index, i)
		}
		var buf bytes.Buffer
		writeReport(&buf, r, 4, "text")
		if buf.String() != expected[i] {
			t.Errorf("unexpected report: %q, expected: %q", buf.String(), expected[i])
		}
	}
	if !errors.Is(results[1].Err, errBadBlock) {
		t.Errorf("unexpected error: %v", results[1].Err)
	}
}

func TestQueryFileFASTQ(t *testing.T) {
	dir := t.TempDir()
	file := writeFile(t, dir, "reads.fq", "@read1\nACGTACGT\n+\nIII>IIII\n@read2\nTTTTGGGG\n+\nIIIIIIII\n")

	genome := writeFile(t, dir, "genome.fa", _genome)
	f, _, _ := toyFilter(t)
	if _, err := BuildFilter(genome, f, &BuildOptions{NumCPUs: 1}); err != nil {
		t.Fatal(err)
	}

	if !isPlainFile(file) {
		t.Errorf("%s should be treated as a plain file", file)
	}

	var results []*QueryResult
	stats, err := QueryFile(file, f, &QueryOptions{NumCPUs: 2}, collect(&results))
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 || stats.Records != 2 {
		t.Fatalf("2 results expected, %d returned", len(results))
	}
	for i, name := range []string{">read1", ">read2"} {
		r := results[i]
		if string(r.Header) != name || r.Total != 5 || r.Matched != 5 || r.Bases != 8 {
			t.Errorf("unexpected result: %s, %+v", r.Header, r)
		}
	}
}
