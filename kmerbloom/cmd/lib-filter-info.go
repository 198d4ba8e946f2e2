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
	"bufio"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
	"github.com/shenwei356/kmerbloom/kmerbloom/bloom"
	"github.com/shenwei356/util/pathutil"
)

// FilterInfoExt is the extension of the filter information file.
const FilterInfoExt = ".toml"

// MainVersion is the main version of the filter file.
// The bit array layout changes only when it changes.
const MainVersion uint8 = 1

// MinorVersion is the minor version of the filter file.
const MinorVersion uint8 = 0

// FilterInfo is saved next to the filter, as the filter file has no header.
type FilterInfo struct {
	MainVersion  uint8 `toml:"main_version" comment:"Filter format"`
	MinorVersion uint8 `toml:"minor_version"`

	KmerLength       int     `toml:"kmer_length" comment:"Parameters"`
	ExpectedElements uint64  `toml:"expected_elements"`
	Bits             uint64  `toml:"bits"`
	Hashes           int     `toml:"hashes"`
	BitfieldSize     int     `toml:"bitfield_size"`
	Hash             string  `toml:"hash"`
	DesignFPR        float64 `toml:"design_fpr"`

	InsertedKmers uint64 `toml:"inserted_kmers" comment:"Statistics"`
	SetBits       uint64 `toml:"set_bits"`
	InputFile     string `toml:"input_file"`
	InputRecords  int    `toml:"input_records"`
}

// NewFilterInfo creates FilterInfo from the parameters.
func NewFilterInfo(p *bloom.Params) *FilterInfo {
	return &FilterInfo{
		MainVersion:  MainVersion,
		MinorVersion: MinorVersion,

		KmerLength:       p.KmerLength,
		ExpectedElements: p.N,
		Bits:             p.M,
		Hashes:           p.K,
		BitfieldSize:     p.BitfieldSize,
		Hash:             p.Hash,
		DesignFPR:        p.FPR,
	}
}

// Params returns the filter parameters.
func (info *FilterInfo) Params() *bloom.Params {
	return &bloom.Params{
		N:            info.ExpectedElements,
		M:            info.Bits,
		K:            info.Hashes,
		BitfieldSize: info.BitfieldSize,
		KmerLength:   info.KmerLength,
		Hash:         info.Hash,
		FPR:          info.DesignFPR,
	}
}

func filterInfoFile(filterFile string) string {
	return filterFile + FilterInfoExt
}

func readFilterInfo(file string) (*FilterInfo, error) {
	fh, err := os.Open(file)
	if err != nil {
		return nil, errors.Wrapf(err, "reading filter info file: %s", file)
	}
	defer fh.Close()

	info := &FilterInfo{}
	dec := toml.NewDecoder(bufio.NewReader(fh))
	dec.DisallowUnknownFields()
	if err = dec.Decode(info); err != nil {
		return nil, errors.Wrapf(err, "parsing filter info file: %s", file)
	}

	if info.MainVersion != MainVersion {
		return nil, fmt.Errorf("filter format version mismatch: %d (file) != %d (tool), %s",
			info.MainVersion, MainVersion, file)
	}
	return info, nil
}

func writeFilterInfo(file string, info *FilterInfo) error {
	fh, err := os.Create(file)
	if err != nil {
		return errors.Wrapf(err, "writing filter info file: %s", file)
	}

	bw := bufio.NewWriter(fh)
	if err = toml.NewEncoder(bw).Encode(info); err != nil {
		fh.Close()
		return errors.Wrapf(err, "writing filter info file: %s", file)
	}
	if err = bw.Flush(); err != nil {
		fh.Close()
		return err
	}
	return fh.Close()
}

// resolveParams decides the parameters for querying. Parameters in the info
// file are used if it exists, and explicit values must agree with them.
// Fields with zero values in explicit are not set by users.
func resolveParams(filterFile string, explicit *bloom.Params, useInfo bool) (*bloom.Params, error) {
	fileInfo := filterInfoFile(filterFile)
	var existed bool
	var err error
	if useInfo {
		existed, err = pathutil.Exists(fileInfo)
		if err != nil {
			return nil, errors.Wrapf(err, "checking filter info file: %s", fileInfo)
		}
	}

	if !existed {
		p := *explicit
		if p.Hash == "" {
			p.Hash = bloom.DefaultHash
		}
		if p.M == 0 || p.K == 0 || p.KmerLength == 0 {
			return nil, fmt.Errorf("filter info file not available, flags -k/--kmer, -m/--bits and -H/--hashes are needed")
		}
		return &p, nil
	}

	info, err := readFilterInfo(fileInfo)
	if err != nil {
		return nil, err
	}
	p := info.Params()

	// unset flags take values of the filter
	q := *explicit
	if q.KmerLength == 0 {
		q.KmerLength = p.KmerLength
	}
	if q.M == 0 {
		q.M = p.M
	}
	if q.K == 0 {
		q.K = p.K
	}
	if q.BitfieldSize == 0 {
		q.BitfieldSize = p.BitfieldSize
	}
	if q.Hash == "" {
		q.Hash = p.Hash
	}
	if !q.Equal(p) {
		return nil, fmt.Errorf("%w (flag != filter): %v", bloom.ErrParamsMismatch, q.Diff(p))
	}

	return p, nil
}
