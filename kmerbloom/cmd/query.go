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
	"regexp"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/shenwei356/bio/seq"
	"github.com/shenwei356/kmerbloom/kmerbloom/bloom"
	"github.com/shenwei356/util/pathutil"
	"github.com/spf13/cobra"
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Compute the proportion of k-mers of sample sequences in a Bloom filter",
	Long: `Compute the proportion of k-mers of sample sequences in a Bloom filter

Input:
  1. Sample sequences in FASTA format can be given via positional arguments,
     the flag -X/--infile-list with the list of input files, or a directory
     via the flag -I/--in-dir. Stdin is read if no files are given.
  2. Plain FASTA files are indexed and records are processed in parallel.
     Compressed files, stdin, and FASTQ files are read sequentially.

Parameters:
  Parameters of the filter are read from <filter>.toml created by
  'kmerbloom build'. Values set via flags must agree with it.
  If the file is not available, or --no-info is given, parameters are
  only read from flags, and -k/--kmer, -m/--bits and -H/--hashes are needed.

Output (text format):
  >header
  Proportion of <k>-mers in common with reference: <ratio>
  <blank line>

  The ratio is "undefined (no <k>-mers)" for sequences shorter than k
  or without valid k-mers. Records are output in the input order.

Output (tsv format):
  query, bases, kmers, matched, ratio. The ratio is NA if undefined.

`,
	Run: func(cmd *cobra.Command, args []string) {
		opt := getOptions(cmd)
		seq.ValidateSeq = false

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

		filterFile := getFlagString(cmd, "filter")
		if filterFile == "" {
			checkError(fmt.Errorf("flag -d/--filter needed"))
		}
		filterFile = expandPath(filterFile)

		k := getFlagNonNegativeInt(cmd, "kmer")
		bitsStr := getFlagString(cmd, "bits")
		hashes := getFlagNonNegativeInt(cmd, "hashes")
		bitfield := getFlagNonNegativeInt(cmd, "bitfield-size")
		hashName := getFlagString(cmd, "hash")
		noInfo := getFlagBool(cmd, "no-info")
		chunkSize := getFlagByteSize(cmd, "chunk-size")

		outFile := getFlagString(cmd, "out-file")
		format := getFlagString(cmd, "format")
		checkError(checkReportFormat(format))
		if !isStdin(outFile) {
			outFile = expandPath(outFile)
		}

		var m uint64
		var err error
		if bitsStr != "" {
			m, err = ParseByteSize(bitsStr)
			if err != nil {
				checkError(fmt.Errorf("invalid value of flag -m/--bits: %s", bitsStr))
			}
		}

		// ---------------------------------------------------------------
		// input files

		inDir := getFlagString(cmd, "in-dir")
		readFromDir := inDir != ""
		if readFromDir {
			inDir = expandPath(inDir)
			isDir, err := pathutil.IsDir(inDir)
			if err != nil {
				checkError(errors.Wrapf(err, "checking -I/--in-dir"))
			}
			if !isDir {
				checkError(fmt.Errorf("value of -I/--in-dir should be a directory: %s", inDir))
			}
		}

		var files []string
		if readFromDir {
			reFileStr := getFlagString(cmd, "file-regexp")
			if !reIgnoreCase.MatchString(reFileStr) {
				reFileStr = reIgnoreCaseStr + reFileStr
			}
			reFile, err := regexp.Compile(reFileStr)
			checkError(errors.Wrapf(err, "failed to parse regular expression for matching file: %s", reFileStr))

			files, err = getFileListFromDir(inDir, reFile, opt.NumCPUs)
			if err != nil {
				checkError(errors.Wrapf(err, "walking dir: %s", inDir))
			}
			if len(files) == 0 {
				checkError(fmt.Errorf("no files matching regular expression: %s", reFileStr))
			}
		} else {
			files = getFileListFromArgsAndFile(cmd, args, true, "infile-list", true)
			if outputLog && len(files) == 1 && isStdin(files[0]) {
				log.Info("no files given, reading from stdin")
			}
		}

		// ---------------------------------------------------------------
		// parameters and filter

		explicit := &bloom.Params{M: m, K: hashes, BitfieldSize: bitfield, KmerLength: k, Hash: hashName}
		p, err := resolveParams(filterFile, explicit, !noInfo)
		checkError(err)

		h, err := bloom.HasherByName(p.Hash)
		checkError(err)
		if p.BitfieldSize == 0 {
			checkError(bloom.CompleteParams(p, h))
		}
		checkError(p.Check(h))

		if outputLog {
			log.Infof("KmerBloom v%s", VERSION)
			log.Info("  https://github.com/shenwei356/kmerbloom")
			log.Info()
			log.Infof("loading Bloom filter: %s", filterFile)
			log.Infof("  %s", p)
		}

		timeLoad := time.Now()
		f, err := bloom.LoadFile(filterFile, p, h)
		checkError(err)

		if outputLog {
			log.Infof("  %s loaded in %s, fill ratio: %.4f, estimated false positive rate: %.6f",
				humanize.IBytes(p.Bytes()), time.Since(timeLoad), f.FillRatio(), f.EstimatedFPR())
			log.Info()
			log.Infof("querying %d file(s) with %d threads ...", len(files), opt.NumCPUs)
		}

		// ---------------------------------------------------------------
		// output

		outfh, gw, w, err := outStream(outFile, strings.HasSuffix(outFile, ".gz"), opt.CompressionLevel)
		checkError(err)
		defer func() {
			outfh.Flush()
			if gw != nil {
				gw.Close()
			}
			w.Close()
		}()

		writeReportHeader(outfh, format)
		report := func(r *QueryResult) error {
			if r.Err != nil {
				log.Warningf("failed to read record #%d: %s", r.Index+1, r.Err)
			}
			writeReport(outfh, r, p.KmerLength, format)
			return nil
		}

		qopt := &QueryOptions{
			NumCPUs:   opt.NumCPUs,
			Verbose:   opt.Verbose && !isStdin(outFile),
			ChunkSize: chunkSize,
		}

		var total PipelineStats
		for _, file := range files {
			var stats *PipelineStats
			if isPlainFile(file) {
				stats, err = QueryFile(file, f, qopt, report)
			} else {
				stats, err = QueryStream(file, f, qopt, report)
			}
			checkError(errors.Wrapf(err, "querying %s", file))
			outfh.Flush()

			total.Records += stats.Records
			total.ShortRecords += stats.ShortRecords
			total.FailedRecords += stats.FailedRecords
			total.Bases += stats.Bases
			total.Kmers += stats.Kmers
			total.Matched += stats.Matched
		}

		if outputLog {
			log.Infof("  %d records, %s k-mers, %s matched",
				total.Records, humanize.Comma(int64(total.Kmers)), humanize.Comma(int64(total.Matched)))
			if total.ShortRecords > 0 {
				log.Infof("  %d records with no k-mers", total.ShortRecords)
			}
			if total.FailedRecords > 0 {
				log.Warningf("  %d records failed to read", total.FailedRecords)
			}
			if !isStdin(outFile) {
				log.Infof("result saved to: %s", outFile)
			}
		}
	},
}

var compressedExts = []string{".gz", ".xz", ".zst", ".bz2"}

// isPlainFile tells if a file can be read with random access.
// FASTQ files are detected later by QueryFile.
func isPlainFile(file string) bool {
	if isStdin(file) {
		return false
	}
	f := strings.ToLower(file)
	for _, e := range compressedExts {
		if strings.HasSuffix(f, e) {
			return false
		}
	}
	return true
}

func init() {
	RootCmd.AddCommand(queryCmd)

	// -----------------------------  filter  -----------------------------

	queryCmd.Flags().StringP("filter", "d", "",
		formatFlagUsage(`Bloom filter file created by "kmerbloom build".`))

	queryCmd.Flags().BoolP("no-info", "", false,
		formatFlagUsage(`Do not read parameters from <filter>.toml, all parameters are read from flags.`))

	queryCmd.Flags().IntP("kmer", "k", 0,
		formatFlagUsage(`K-mer size, 0 for the value in <filter>.toml.`))

	queryCmd.Flags().StringP("bits", "m", "",
		formatFlagUsage(`Number of bits of the filter, supporting units like KiB, MiB, GiB.`))

	queryCmd.Flags().IntP("hashes", "H", 0,
		formatFlagUsage(`Number of hashes, 0 for the value in <filter>.toml.`))

	queryCmd.Flags().IntP("bitfield-size", "b", 0,
		formatFlagUsage(`Bits of each digest slice, 0 for the value in <filter>.toml or floor(log2(m)).`))

	queryCmd.Flags().StringP("hash", "", "",
		formatFlagUsage(fmt.Sprintf(`Hash function, available: %s. Default: %s, or the value in <filter>.toml.`,
			bloom.HasherNames(), bloom.DefaultHash)))

	// -----------------------------  input  -----------------------------

	queryCmd.Flags().StringP("infile-list", "X", "",
		formatFlagUsage(`File of input file list (one file per line). If given, they are appended to files from CLI arguments.`))

	queryCmd.Flags().StringP("in-dir", "I", "",
		formatFlagUsage(`Directory containing FASTA files. Directory symlinks are followed.`))

	queryCmd.Flags().StringP("file-regexp", "r", `\.(f[aq](st[aq])?|fna)(.gz)?$`,
		formatFlagUsage(`Regular expression for matching sequence files in -I/--in-dir, case ignored.`))

	queryCmd.Flags().StringP("chunk-size", "", "1MiB",
		formatFlagUsage(`Chunk size for indexing plain FASTA files.`))

	// -----------------------------  output  -----------------------------

	queryCmd.Flags().StringP("out-file", "o", "-",
		formatFlagUsage(`Out file, supports and recommends a ".gz" suffix ("-" for stdout).`))

	queryCmd.Flags().StringP("format", "f", "text",
		formatFlagUsage(fmt.Sprintf(`Output format, available: %s.`, strings.Join(ReportFormats, ", "))))

	queryCmd.SetUsageTemplate(usageTemplate("-d <filter> [-o out.txt] {<sample files> | -X <file list> | -I <dir>}"))
}
