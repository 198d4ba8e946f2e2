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
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

// ErrSizeMismatch means the size of the filter file does not match the number of bits.
var ErrSizeMismatch = errors.New("bloom filter: file size mismatch")

// WriteTo writes the bit array, ceil(M/8) bytes, with no header.
func (f *Filter) WriteTo(w io.Writer) (int64, error) {
	bw := bufio.NewWriterSize(w, 1<<20)

	nBytes := f.p.Bytes()
	var buf [8]byte
	var written int64
	var n int
	var err error
	for _, word := range f.words {
		binary.LittleEndian.PutUint64(buf[:], word)
		if nBytes >= 8 {
			n, err = bw.Write(buf[:])
			nBytes -= 8
		} else {
			n, err = bw.Write(buf[:nBytes])
			nBytes = 0
		}
		written += int64(n)
		if err != nil {
			return written, err
		}
	}
	return written, bw.Flush()
}

// ReadFrom fills the bit array from r, which must hold exactly ceil(M/8) bytes.
func (f *Filter) ReadFrom(r io.Reader) (int64, error) {
	if f.finalized.Load() {
		return 0, ErrFinalized
	}
	br := bufio.NewReaderSize(r, 1<<20)

	nBytes := f.p.Bytes()
	var buf [8]byte
	var read int64
	var n, size int
	var err error
	for i := range f.words {
		size = 8
		if nBytes < 8 {
			size = int(nBytes)
			clear(buf[size:])
		}
		n, err = io.ReadFull(br, buf[:size])
		read += int64(n)
		if err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return read, fmt.Errorf("%w: %d bytes expected, %d bytes read", ErrSizeMismatch, f.p.Bytes(), read)
			}
			return read, err
		}
		f.words[i] = binary.LittleEndian.Uint64(buf[:])
		nBytes -= uint64(size)
	}

	// no trailing bytes
	if _, err = br.ReadByte(); err == nil {
		return read, fmt.Errorf("%w: more than %d bytes", ErrSizeMismatch, f.p.Bytes())
	} else if err != io.EOF {
		return read, err
	}
	return read, nil
}

// WriteFile saves the filter to a file.
func (f *Filter) WriteFile(file string) error {
	fh, err := os.Create(file)
	if err != nil {
		return err
	}
	_, err = f.WriteTo(fh)
	if err != nil {
		fh.Close()
		return err
	}
	return fh.Close()
}

// Load reads a filter saved with the same parameters, and finalizes it.
func Load(r io.Reader, p *Params, h Hasher) (*Filter, error) {
	f, err := New(p, h)
	if err != nil {
		return nil, err
	}
	if _, err = f.ReadFrom(r); err != nil {
		return nil, err
	}
	f.Finalize()
	return f, nil
}

// LoadFile reads a filter from a file, checking the file size first.
func LoadFile(file string, p *Params, h Hasher) (*Filter, error) {
	fh, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer fh.Close()

	info, err := fh.Stat()
	if err != nil {
		return nil, err
	}
	if uint64(info.Size()) != p.Bytes() {
		return nil, fmt.Errorf("%w: %d bytes expected for %d bits, but %s has %d bytes",
			ErrSizeMismatch, p.Bytes(), p.M, file, info.Size())
	}

	return Load(fh, p, h)
}
