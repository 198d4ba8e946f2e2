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

// Package fasta locates records in large FASTA files without loading them
// into memory. The resulting offsets are used for random access of
// headers and sequences.
package fasta

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	perrors "github.com/pkg/errors"
)

// DefaultChunkSize is the size of the scanning window.
const DefaultChunkSize = 1 << 20 // 1M

// HeaderMarker is the first byte of a header line.
var HeaderMarker byte = '>'

// ErrInvalidRange means the record range does not fit in the source.
var ErrInvalidRange = errors.New("fasta index: invalid record range")

// Record contains byte offsets of a FASTA record in the source file.
// All offsets are 0-based and inclusive.
type Record struct {
	HeaderStart int64 // offset of the header marker
	HeaderEnd   int64 // offset of the newline terminating the header
	SeqStart    int64 // HeaderEnd + 1
	SeqEnd      int64 // last byte of the sequence, SeqStart-1 for empty sequences
}

func (r Record) String() string {
	return fmt.Sprintf("header:[%d, %d], seq:[%d, %d]", r.HeaderStart, r.HeaderEnd, r.SeqStart, r.SeqEnd)
}

// SeqLen returns the number of raw bytes in the sequence region,
// including line breaks.
func (r Record) SeqLen() int64 {
	return r.SeqEnd - r.SeqStart + 1
}

// Header returns the header line, the marker included and the line break
// excluded.
func (r Record) Header(rd io.ReaderAt) ([]byte, error) {
	n := r.HeaderEnd - r.HeaderStart
	if n < 0 {
		return nil, ErrInvalidRange
	}
	buf := make([]byte, n)
	if _, err := rd.ReadAt(buf, r.HeaderStart); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf, "\r"), nil
}

// ReadSeq reads the raw sequence bytes of the record into buf,
// which is grown when needed.
func (r Record) ReadSeq(rd io.ReaderAt, buf []byte) ([]byte, error) {
	n := r.SeqLen()
	if n < 0 {
		return buf[:0], ErrInvalidRange
	}
	if int64(cap(buf)) < n {
		buf = make([]byte, n)
	} else {
		buf = buf[:n]
	}
	if n == 0 {
		return buf, nil
	}
	_, err := rd.ReadAt(buf, r.SeqStart)
	if err == io.EOF { // io.ReaderAt may return EOF along with a full read at the end
		err = nil
	}
	return buf, err
}

var poolChunk = &sync.Pool{New: func() interface{} {
	tmp := make([]byte, DefaultChunkSize)
	return &tmp
}}

// Index scans the source in windows of chunkSize bytes and returns
// the records in the order of appearance.
//
// A header starts at a marker and ends at the first following newline.
// Additional markers before that newline are part of the same header line
// and are ignored, so only the first marker of a header line starts a record.
// A trailing header without a newline is not a record, but it still ends the
// sequence of the previous one.
func Index(rd io.ReaderAt, size int64, chunkSize int) ([]Record, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	var chunk []byte
	var pool bool
	if chunkSize == DefaultChunkSize {
		tmp := poolChunk.Get().(*[]byte)
		defer poolChunk.Put(tmp)
		chunk = *tmp
		pool = true
	}
	if !pool {
		chunk = make([]byte, chunkSize)
	}

	starts := make([]int64, 0, 64) // header starts, including a dangling one
	ends := make([]int64, 0, 64)   // header ends

	var open bool // a header start waiting for its newline
	var offset int64
	var n, i, j int
	var err error
	var buf []byte

	for offset < size {
		n, err = rd.ReadAt(chunk, offset)
		if n == 0 {
			if err == nil || err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return nil, err
		}
		if err != nil && err != io.EOF {
			return nil, err
		}
		buf = chunk[:n]

		i = 0
		for i < n {
			if open {
				j = bytes.IndexByte(buf[i:], '\n')
				if j < 0 {
					break // the newline is in a following chunk
				}
				i += j
				ends = append(ends, offset+int64(i))
				open = false
				i++
				continue
			}

			j = bytes.IndexByte(buf[i:], HeaderMarker)
			if j < 0 {
				break
			}
			i += j
			starts = append(starts, offset+int64(i))
			open = true
			i++
		}

		offset += int64(n)
	}

	records := make([]Record, len(ends))
	var next int64
	for i = range ends {
		if i+1 < len(starts) {
			next = starts[i+1]
		} else {
			next = size
		}
		records[i] = Record{
			HeaderStart: starts[i],
			HeaderEnd:   ends[i],
			SeqStart:    ends[i] + 1,
			SeqEnd:      next - 1,
		}
	}
	return records, nil
}

// FirstSymbol returns the first byte that is not a space or line break,
// or 0 for a blank source. A FASTA file starts with HeaderMarker,
// while FASTQ starts with '@'.
func FirstSymbol(rd io.ReaderAt, size int64) (byte, error) {
	buf := make([]byte, 4096)
	var offset int64
	for offset < size {
		n, err := rd.ReadAt(buf, offset)
		for _, b := range buf[:n] {
			switch b {
			case ' ', '\t', '\r', '\n':
			default:
				return b, nil
			}
		}
		if err != nil {
			if err == io.EOF {
				break
			}
			return 0, err
		}
		offset += int64(n)
	}
	return 0, nil
}

// IndexFile opens the file, indexes it, and closes it.
func IndexFile(file string, chunkSize int) ([]Record, error) {
	fh, err := os.Open(file)
	if err != nil {
		return nil, perrors.Wrap(err, "open fasta file")
	}
	defer fh.Close()

	info, err := fh.Stat()
	if err != nil {
		return nil, perrors.Wrapf(err, "stat fasta file: %s", file)
	}

	records, err := Index(fh, info.Size(), chunkSize)
	if err != nil {
		return nil, perrors.Wrapf(err, "index fasta file: %s", file)
	}
	return records, nil
}
