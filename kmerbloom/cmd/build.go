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
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/shenwei356/kmerbloom/kmerbloom/bloom"
	"github.com/shenwei356/util/pathutil"
	"github.com/spf13/cobra"
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build a Bloom filter from k-mers of a genome",
	Long: `Build a Bloom filter from k-mers of a genome

Input:
  A plain FASTA file of a genome, which is indexed first and then
  records are read and processed in parallel.
  Lower-case bases are converted to upper case, and other symbols
  (N, degenerate bases, gaps) break the sequence, k-mers containing
  them are ignored.

Parameters:
  1. Given the expected number of k-mers (-n/--elements) and the false
     positive rate (-p/--fpr), the number of bits is rounded up to a power
     of 2, and the smallest number of hashes satisfying the rate is chosen.
  2. Or set the number of bits (-m/--bits) directly, with optional
     -H/--hashes and -b/--bitfield-size.
  Use 'kmerbloom utils params' to preview the parameters.

Output:
  1. <filter>:       the bit array of ceil(m/8) bytes, with no header.
  2. <filter>.toml:  parameters and statistics, used by 'kmerbloom query'.

`,
	Run: func(cmd *cobra.Command, args []string) {
		opt := getOptions(cmd)

		var fhLog *os.File
		if opt.Log2File {
			fhLog = addLog(opt.LogFile, opt.Verbose)
		}
		outputLog := opt.Verbose || opt.Log2File
		timeStart := time.Now()
		defer func() {
			if outputLog {
				log.Info()
				log.Infof("elapsed time: %s", time.Since(timeStart))
				log.Info()
			}
			if opt.Log2File {
				fhLog.Close()
			}
		}()

		// ---------------------------------------------------------------
		// flags

		k := getFlagPositiveInt(cmd, "kmer")
		n := getFlagUint64(cmd, "elements")
		fpr := getFlagNonNegativeFloat64(cmd, "fpr")
		bitsStr := getFlagString(cmd, "bits")
		hashes := getFlagNonNegativeInt(cmd, "hashes")
		bitfield := getFlagNonNegativeInt(cmd, "bitfield-size")
		hashName := getFlagString(cmd, "hash")
		chunkSize := getFlagByteSize(cmd, "chunk-size")

		outFile := getFlagString(cmd, "out-file")
		force := getFlagBool(cmd, "force")

		if outFile == "" {
			checkError(fmt.Errorf("flag -o/--out-file is needed"))
		}
		outFile = expandPath(outFile)

		if len(args) != 1 {
			checkError(fmt.Errorf("one genome file is needed"))
		}
		file := expandPath(args[0])
		if isStdin(file) {
			checkError(fmt.Errorf("stdin is not supported, the genome file needs random access"))
		}
		ok, err := pathutil.Exists(file)
		checkError(errors.Wrapf(err, "checking genome file: %s", file))
		if !ok {
			checkError(fmt.Errorf("genome file not exists: %s", file))
		}
		if filepath.Clean(file) == filepath.Clean(outFile) {
			checkError(fmt.Errorf("intput and output files should not be the same: %s", file))
		}

		h, err := bloom.HasherByName(hashName)
		checkError(err)

		// ---------------------------------------------------------------
		// parameters

		var p *bloom.Params
		if bitsStr != "" {
			m, err := ParseByteSize(bitsStr)
			if err != nil {
				checkError(fmt.Errorf("invalid value of flag -m/--bits: %s", bitsStr))
			}
			p = &bloom.Params{N: n, M: m, K: hashes, BitfieldSize: bitfield, KmerLength: k}
			checkError(bloom.CompleteParams(p, h))
		} else {
			if n == 0 {
				checkError(fmt.Errorf("flag -n/--elements or -m/--bits is needed"))
			}
			p, err = bloom.EstimateParams(n, fpr, k, h)
			checkError(err)
			if hashes > 0 || bitfield > 0 {
				log.Warningf("flags -H/--hashes and -b/--bitfield-size are ignored without -m/--bits")
			}
		}

		checkOutFile(outFile, force)

		if outputLog {
			log.Infof("KmerBloom v%s", VERSION)
			log.Info("  https://github.com/shenwei356/kmerbloom")
			log.Info()
			log.Infof("-------------------- [main parameters] --------------------")
			log.Infof("input file: %s", file)
			log.Infof("output file: %s", outFile)
			log.Info()
			log.Infof("k-mer size: %d", p.KmerLength)
			log.Infof("expected k-mers: %s", humanize.Comma(int64(p.N)))
			log.Infof("bits: %s (%s)", humanize.Comma(int64(p.M)), humanize.IBytes(p.Bytes()))
			log.Infof("hashes: %d", p.K)
			log.Infof("bitfield size: %d", p.BitfieldSize)
			log.Infof("hash function: %s", p.Hash)
			if p.N > 0 {
				log.Infof("theoretical false positive rate: %.6f", p.FPR)
			}
			log.Infof("-------------------- [main parameters] --------------------")
			log.Info()
		}

		// ---------------------------------------------------------------
		// building

		f, err := bloom.New(p, h)
		checkError(err)

		if outputLog {
			log.Infof("building Bloom filter with %d threads ...", opt.NumCPUs)
		}

		stats, err := BuildFilter(file, f, &BuildOptions{
			NumCPUs:   opt.NumCPUs,
			Verbose:   opt.Verbose,
			ChunkSize: chunkSize,
		})
		checkError(err)

		if outputLog {
			log.Infof("  %d records indexed in %s", stats.Records, stats.TimeIndex)
			log.Infof("  %s k-mers from %s bases inserted in %s",
				humanize.Comma(int64(stats.Kmers)), humanize.Comma(int64(stats.Bases)), stats.TimeRun)
			if stats.ShortRecords > 0 {
				log.Infof("  %d records with no k-mers", stats.ShortRecords)
			}
			if stats.FailedRecords > 0 {
				log.Warningf("  %d records failed to read and skipped", stats.FailedRecords)
			}
			log.Infof("  set bits: %s, fill ratio: %.4f, estimated false positive rate: %.6f",
				humanize.Comma(int64(f.Count())), f.FillRatio(), f.EstimatedFPR())
			if p.N > 0 && stats.Kmers > p.N {
				log.Warningf("  more k-mers (%d) than expected (%d), the false positive rate would be higher", stats.Kmers, p.N)
			}
		}

		// ---------------------------------------------------------------
		// saving

		timeSave := time.Now()
		checkError(errors.Wrapf(f.WriteFile(outFile), "writing filter file: %s", outFile))

		info := NewFilterInfo(p)
		info.InsertedKmers = stats.Kmers
		info.SetBits = f.Count()
		info.InputFile = filepath.Base(file)
		info.InputRecords = stats.Records
		checkError(writeFilterInfo(filterInfoFile(outFile), info))

		if outputLog {
			log.Infof("Bloom filter saved to %s in %s", outFile, time.Since(timeSave))
			log.Infof("filter information saved to %s", filterInfoFile(outFile))
		}
	},
}

func init() {
	RootCmd.AddCommand(buildCmd)

	// -----------------------------  parameters  -----------------------------

	buildCmd.Flags().IntP("kmer", "k", 30,
		formatFlagUsage(`K-mer size.`))

	buildCmd.Flags().Uint64P("elements", "n", 0,
		formatFlagUsage(`Expected number of k-mers, e.g., the genome size.`))

	buildCmd.Flags().Float64P("fpr", "p", 0.01,
		formatFlagUsage(`Desired false positive rate, used with -n/--elements.`))

	buildCmd.Flags().StringP("bits", "m", "",
		formatFlagUsage(`Number of bits, supporting units like KiB, MiB, GiB, e.g., 32GiB, 34359738368. Overrides -p/--fpr.`))

	buildCmd.Flags().IntP("hashes", "H", 0,
		formatFlagUsage(`Number of hashes, used with -m/--bits. 0 for the optimal value from -n/--elements.`))

	buildCmd.Flags().IntP("bitfield-size", "b", 0,
		formatFlagUsage(`Bits of each digest slice, used with -m/--bits. 0 for floor(log2(m)).`))

	buildCmd.Flags().StringP("hash", "", bloom.DefaultHash,
		formatFlagUsage(fmt.Sprintf(`Hash function, available: %s.`, bloom.HasherNames())))

	// -----------------------------  input  -----------------------------

	buildCmd.Flags().StringP("chunk-size", "", "1MiB",
		formatFlagUsage(`Chunk size for indexing the FASTA file.`))

	// -----------------------------  output  -----------------------------

	buildCmd.Flags().StringP("out-file", "o", "",
		formatFlagUsage(`Output filter file.`))

	buildCmd.Flags().BoolP("force", "", false,
		formatFlagUsage(`Overwrite existed output file.`))

	buildCmd.SetUsageTemplate(usageTemplate("-k <k> {-n <elements> [-p <fpr>] | -m <bits> [-H <hashes>]} -o <filter> <genome.fasta>"))
}
