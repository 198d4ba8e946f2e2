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
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/shenwei356/kmerbloom/kmerbloom/bloom"
	"github.com/shenwei356/kmerbloom/kmerbloom/fasta"
	"github.com/shenwei356/kmerbloom/kmerbloom/kmer"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
	"golang.org/x/sync/errgroup"
)

// BuildOptions contains the options of building a filter.
type BuildOptions struct {
	NumCPUs   int
	Verbose   bool // show progress bar
	ChunkSize int  // chunk size for indexing the FASTA file
}

// CheckBuildOptions checks the options.
func CheckBuildOptions(opt *BuildOptions) error {
	if opt.NumCPUs < 1 {
		return fmt.Errorf("invalid number of threads: %d, should be >= 1", opt.NumCPUs)
	}
	if opt.ChunkSize < 0 {
		return fmt.Errorf("invalid chunk size: %d, should be >= 0", opt.ChunkSize)
	}
	return nil
}

// PipelineStats summarizes a run of building or querying.
type PipelineStats struct {
	Records       int    // records in the input
	ShortRecords  int    // records with no k-mers
	FailedRecords int    // records failed to read or process
	Bases         uint64 // canonical bases
	Kmers         uint64 // k-mers visited
	Matched       uint64 // k-mers found in the filter, only for querying

	TimeIndex time.Duration // time of indexing the input
	TimeRun   time.Duration // time of processing records
}

var poolRawSeq = &sync.Pool{New: func() interface{} {
	tmp := make([]byte, 0, 1<<20)
	return &tmp
}}

func recycleRawSeq(buf *[]byte) {
	if cap(*buf) > 64<<20 {
		return
	}
	poolRawSeq.Put(buf)
}

// sanitizedRecord reads the raw sequence of a record from a shared file
// handle and sanitizes it.
func sanitizedRecord(rd io.ReaderAt, r *fasta.Record) (*kmer.Sequence, error) {
	buf := poolRawSeq.Get().(*[]byte)
	raw, err := r.ReadSeq(rd, *buf)
	if err != nil {
		recycleRawSeq(buf)
		return nil, err
	}
	s := kmer.PoolSequence.Get().(*kmer.Sequence)
	s.Reset(raw)

	*buf = raw
	recycleRawSeq(buf)
	return s, nil
}

// newProgressBar is the one used in all pipelines.
func newProgressBar(total int, name string) (*mpb.Progress, *mpb.Bar) {
	pbs := mpb.New(mpb.WithWidth(40), mpb.WithOutput(os.Stderr))
	bar := pbs.AddBar(int64(total),
		mpb.PrependDecorators(
			decor.Name(name, decor.WC{W: len(name), C: decor.DindentRight}),
			decor.Name("", decor.WCSyncSpaceR),
			decor.CountersNoUnit("%d / %d", decor.WCSyncWidth),
		),
		mpb.AppendDecorators(
			decor.Name("ETA: ", decor.WC{W: len("ETA: ")}),
			decor.EwmaETA(decor.ET_STYLE_GO, 10),
			decor.OnComplete(decor.Name(""), ". done"),
		),
	)
	return pbs, bar
}

// BuildFilter inserts all k-mers of a FASTA file into the filter,
// and finalizes the filter.
//
// The file is indexed first, and then records are read with ReadAt from a
// single file handle and processed concurrently. Records failed to read are
// logged and skipped, while failures of opening or indexing the file are
// returned.
func BuildFilter(file string, f *bloom.Filter, opt *BuildOptions) (*PipelineStats, error) {
	if err := CheckBuildOptions(opt); err != nil {
		return nil, err
	}
	if f.Finalized() {
		return nil, bloom.ErrFinalized
	}

	fh, err := os.Open(file)
	if err != nil {
		return nil, errors.Wrapf(err, "opening genome file")
	}
	defer fh.Close()

	info, err := fh.Stat()
	if err != nil {
		return nil, errors.Wrapf(err, "checking genome file: %s", file)
	}

	timeStart := time.Now()

	records, err := fasta.Index(fh, info.Size(), opt.ChunkSize)
	if err != nil {
		return nil, errors.Wrapf(err, "indexing genome file: %s", file)
	}
	timeIndex := time.Since(timeStart)

	if len(records) == 0 {
		log.Warningf("no FASTA records found in %s", file)
	}

	stats, err := insertRecords(fh, records, f, opt)
	if err != nil {
		return nil, err
	}
	stats.TimeIndex = timeIndex
	return stats, nil
}

// insertRecords inserts k-mers of indexed records read from rd,
// and finalizes the filter.
func insertRecords(rd io.ReaderAt, records []fasta.Record, f *bloom.Filter, opt *BuildOptions) (*PipelineStats, error) {
	k := f.Params().KmerLength
	stats := &PipelineStats{Records: len(records)}

	var pbs *mpb.Progress
	var bar *mpb.Bar
	var chDuration chan time.Duration
	var doneDuration chan int
	if opt.Verbose && len(records) > 0 {
		pbs, bar = newProgressBar(len(records), "processed records: ")

		chDuration = make(chan time.Duration, opt.NumCPUs)
		doneDuration = make(chan int)
		go func() {
			for t := range chDuration {
				bar.EwmaIncrBy(1, t)
			}
			doneDuration <- 1
		}()
	}

	var nShort, nFailed atomic.Int64
	var nBases, nKmers atomic.Uint64

	timeStart := time.Now()

	var g errgroup.Group
	g.SetLimit(opt.NumCPUs)
	for i := range records {
		r := &records[i]

		g.Go(func() error {
			var startTime time.Time
			if opt.Verbose {
				startTime = time.Now()
				defer func() {
					chDuration <- time.Since(startTime)
				}()
			}

			s, err := sanitizedRecord(rd, r)
			if err != nil {
				log.Warningf("skipping record #%d (%s): %s", i+1, r, err)
				nFailed.Add(1)
				return nil
			}
			defer kmer.RecycleSequence(s)

			nBases.Add(uint64(s.Bases()))
			if kmer.NumKmers(s.Runs, k) == 0 {
				nShort.Add(1)
				return nil
			}

			var n uint64
			var iter kmer.Iterator
			if err = iter.Reset(s.Seq, s.Runs, k); err != nil {
				return err
			}
			for {
				km, ok := iter.Next()
				if !ok {
					break
				}
				f.Add(km)
				n++
			}
			nKmers.Add(n)

			return nil
		})
	}
	err := g.Wait()

	if opt.Verbose && len(records) > 0 {
		close(chDuration)
		<-doneDuration
		pbs.Wait()
	}

	if err != nil {
		return nil, err
	}

	stats.ShortRecords = int(nShort.Load())
	stats.FailedRecords = int(nFailed.Load())
	stats.Bases = nBases.Load()
	stats.Kmers = nKmers.Load()
	stats.TimeRun = time.Since(timeStart)

	f.Finalize()

	return stats, nil
}
