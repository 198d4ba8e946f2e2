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
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shenwei356/bio/seqio/fastx"
	"github.com/shenwei356/kmerbloom/kmerbloom/bloom"
	"github.com/shenwei356/kmerbloom/kmerbloom/fasta"
	"github.com/shenwei356/kmerbloom/kmerbloom/kmer"
	"github.com/vbauerster/mpb/v8"
	"golang.org/x/sync/errgroup"
)

// QueryOptions contains the options of querying.
type QueryOptions struct {
	NumCPUs   int
	Verbose   bool // show progress bar
	ChunkSize int  // chunk size for indexing FASTA files
}

// CheckQueryOptions checks the options.
func CheckQueryOptions(opt *QueryOptions) error {
	if opt.NumCPUs < 1 {
		return fmt.Errorf("invalid number of threads: %d, should be >= 1", opt.NumCPUs)
	}
	if opt.ChunkSize < 0 {
		return fmt.Errorf("invalid chunk size: %d, should be >= 0", opt.ChunkSize)
	}
	return nil
}

// QueryResult is the result of a sample record.
type QueryResult struct {
	Index   int    // 0-based index of the record in the input
	Header  []byte // header line, with the leading '>'
	Bases   int    // canonical bases
	Total   uint64 // number of k-mers
	Matched uint64 // number of k-mers possibly in the filter
	Err     error  // failure of reading the record
}

// Ratio returns the proportion of matched k-mers.
// It's undefined (false) if there's no k-mers.
func (r *QueryResult) Ratio() (float64, bool) {
	if r.Total == 0 {
		return 0, false
	}
	return float64(r.Matched) / float64(r.Total), true
}

// countMatches counts k-mers of a sanitized sequence found in the filter.
func countMatches(f *bloom.Filter, s *kmer.Sequence, k int, r *QueryResult) error {
	r.Bases = s.Bases()
	if kmer.NumKmers(s.Runs, k) == 0 {
		return nil
	}

	var iter kmer.Iterator
	if err := iter.Reset(s.Seq, s.Runs, k); err != nil {
		return err
	}
	for {
		km, ok := iter.Next()
		if !ok {
			break
		}
		r.Total++
		if f.MightContain(km) {
			r.Matched++
		}
	}
	return nil
}

// orderedResults delivers results in the order of their indexes.
// After fn returns an error, remaining results are dropped.
func orderedResults(ch chan *QueryResult, fn func(*QueryResult) error, done chan error) {
	var id int
	buf := make(map[int]*QueryResult, 128)
	var err error

	output := func(r *QueryResult) {
		if err == nil {
			err = fn(r)
		}
	}

	var r *QueryResult
	var ok bool
	for r = range ch {
		if r.Index != id {
			buf[r.Index] = r
			continue
		}

		output(r)
		id++
		for {
			if r, ok = buf[id]; !ok {
				break
			}
			output(r)
			delete(buf, id)
			id++
		}
	}
	if len(buf) > 0 && err == nil {
		err = fmt.Errorf("%d query results not delivered", len(buf))
	}
	done <- err
}

func (stats *PipelineStats) update(r *QueryResult) {
	if r.Err != nil {
		stats.FailedRecords++
		return
	}
	if r.Total == 0 {
		stats.ShortRecords++
	}
	stats.Bases += uint64(r.Bases)
	stats.Kmers += r.Total
	stats.Matched += r.Matched
}

// QueryFile computes the proportion of k-mers in the filter for each record
// of a plain FASTA file, which is indexed first and then read with ReadAt.
// Records are processed concurrently, while results are delivered to fn in
// the input order. Records failed to read are passed with Err set.
// Files not starting with a FASTA header, e.g., FASTQ, are passed to QueryStream.
func QueryFile(file string, f *bloom.Filter, opt *QueryOptions, fn func(*QueryResult) error) (*PipelineStats, error) {
	if err := CheckQueryOptions(opt); err != nil {
		return nil, err
	}

	fh, err := os.Open(file)
	if err != nil {
		return nil, errors.Wrapf(err, "opening sample file")
	}
	defer fh.Close()

	info, err := fh.Stat()
	if err != nil {
		return nil, errors.Wrapf(err, "checking sample file: %s", file)
	}

	c, err := fasta.FirstSymbol(fh, info.Size())
	if err != nil {
		return nil, errors.Wrapf(err, "reading sample file: %s", file)
	}
	if c != 0 && c != fasta.HeaderMarker {
		fh.Close()
		return QueryStream(file, f, opt, fn)
	}

	timeStart := time.Now()

	records, err := fasta.Index(fh, info.Size(), opt.ChunkSize)
	if err != nil {
		return nil, errors.Wrapf(err, "indexing sample file: %s", file)
	}
	timeIndex := time.Since(timeStart)

	stats, err := queryRecords(fh, records, f, opt, fn)
	if err != nil {
		return nil, err
	}
	stats.TimeIndex = timeIndex
	return stats, nil
}

// queryRecords queries indexed records read from rd.
func queryRecords(rd io.ReaderAt, records []fasta.Record, f *bloom.Filter, opt *QueryOptions, fn func(*QueryResult) error) (*PipelineStats, error) {
	k := f.Params().KmerLength
	stats := &PipelineStats{Records: len(records)}

	var pbs *mpb.Progress
	var bar *mpb.Bar
	if opt.Verbose && len(records) > 0 {
		pbs, bar = newProgressBar(len(records), "processed records: ")
	}

	// outputter
	ch := make(chan *QueryResult, opt.NumCPUs)
	done := make(chan error)
	go orderedResults(ch, func(r *QueryResult) error {
		stats.update(r)
		if bar != nil {
			bar.Increment()
		}
		return fn(r)
	}, done)

	timeStart := time.Now()

	var g errgroup.Group
	g.SetLimit(opt.NumCPUs)
	for i := range records {
		rec := &records[i]

		g.Go(func() error {
			r := &QueryResult{Index: i}

			r.Header, r.Err = rec.Header(rd)
			if r.Err != nil {
				r.Header = []byte(fmt.Sprintf(">record #%d", i+1))
				ch <- r
				return nil
			}

			s, err := sanitizedRecord(rd, rec)
			if err != nil {
				r.Err = err
				ch <- r
				return nil
			}
			err = countMatches(f, s, k, r)
			kmer.RecycleSequence(s)
			if err != nil {
				return err
			}

			ch <- r
			return nil
		})
	}
	err := g.Wait()
	close(ch)
	errOut := <-done

	if pbs != nil {
		if err != nil || errOut != nil {
			bar.Abort(false)
		}
		pbs.Wait()
	}

	if err != nil {
		return nil, err
	}
	if errOut != nil {
		return nil, errOut
	}

	stats.TimeRun = time.Since(timeStart)
	return stats, nil
}

// QueryStream is the same as QueryFile, but reads records sequentially,
// supporting stdin and compressed files. FASTQ records are also accepted.
func QueryStream(file string, f *bloom.Filter, opt *QueryOptions, fn func(*QueryResult) error) (*PipelineStats, error) {
	if err := CheckQueryOptions(opt); err != nil {
		return nil, err
	}
	k := f.Params().KmerLength

	fastxReader, err := fastx.NewReader(nil, file, "")
	if err != nil {
		return nil, errors.Wrapf(err, "reading sample file: %s", file)
	}
	defer fastxReader.Close()

	stats := &PipelineStats{}

	// outputter
	ch := make(chan *QueryResult, opt.NumCPUs)
	done := make(chan error)
	go orderedResults(ch, func(r *QueryResult) error {
		stats.update(r)
		return fn(r)
	}, done)

	timeStart := time.Now()

	var g errgroup.Group
	g.SetLimit(opt.NumCPUs)

	var record *fastx.Record
	var i int
	for {
		record, err = fastxReader.Read()
		if err != nil {
			if err == io.EOF {
				err = nil
				break
			}
			err = errors.Wrapf(err, "reading sample file: %s", file)
			break
		}

		r := &QueryResult{Index: i}
		i++

		r.Header = make([]byte, 0, len(record.Name)+1)
		r.Header = append(r.Header, fasta.HeaderMarker)
		r.Header = append(r.Header, record.Name...)

		// the record is reused by the reader
		s := kmer.PoolSequence.Get().(*kmer.Sequence)
		s.Reset(record.Seq.Seq)

		g.Go(func() error {
			defer kmer.RecycleSequence(s)
			if err := countMatches(f, s, k, r); err != nil {
				return err
			}
			ch <- r
			return nil
		})
	}
	stats.Records = i

	errG := g.Wait()
	close(ch)
	errOut := <-done

	if err != nil {
		return nil, err
	}
	if errG != nil {
		return nil, errG
	}
	if errOut != nil {
		return nil, errOut
	}

	stats.TimeRun = time.Since(timeStart)
	return stats, nil
}

// ------------------------------------------------------------------------
// report

// ReportFormats lists the supported output formats.
var ReportFormats = []string{"text", "tsv"}

func checkReportFormat(format string) error {
	for _, f := range ReportFormats {
		if f == format {
			return nil
		}
	}
	return fmt.Errorf("unsupported output format: %s, available: %s", format, strings.Join(ReportFormats, ", "))
}

// formatRatio always keeps a decimal point, e.g., 1.0, 0.25.
func formatRatio(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsRune(s, '.') {
		s += ".0"
	}
	return s
}

func writeReportHeader(w io.Writer, format string) {
	if format == "tsv" {
		fmt.Fprintln(w, "query\tbases\tkmers\tmatched\tratio")
	}
}

func writeReport(w io.Writer, r *QueryResult, k int, format string) {
	header := bytes.TrimRight(r.Header, "\r\n")

	if format == "tsv" {
		if len(header) > 0 && header[0] == fasta.HeaderMarker {
			header = header[1:]
		}
		ratio, ok := r.Ratio()
		switch {
		case r.Err != nil:
			fmt.Fprintf(w, "%s\t%d\tNA\tNA\tNA\n", header, r.Bases)
		case !ok:
			fmt.Fprintf(w, "%s\t%d\t%d\t%d\tNA\n", header, r.Bases, r.Total, r.Matched)
		default:
			fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%s\n", header, r.Bases, r.Total, r.Matched, formatRatio(ratio))
		}
		return
	}

	fmt.Fprintf(w, "%s\n", header)
	fmt.Fprintf(w, "Proportion of %d-mers in common with reference: ", k)
	ratio, ok := r.Ratio()
	switch {
	case r.Err != nil:
		fmt.Fprintf(w, "failed (%s)\n", r.Err)
	case !ok:
		fmt.Fprintf(w, "undefined (no %d-mers)\n", k)
	default:
		fmt.Fprintf(w, "%s\n", formatRatio(ratio))
	}
	fmt.Fprintln(w)
}
