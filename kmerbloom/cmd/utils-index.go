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
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shenwei356/kmerbloom/kmerbloom/fasta"
	"github.com/spf13/cobra"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Show the offsets of FASTA records",
	Long: `Show the offsets of FASTA records

Output format:
  Tab-delimited format with 7 columns, offsets are 0-based, ranges are inclusive.

    1. record, 1-based index
    2. header_start, offset of '>'
    3. header_end, offset of the line break of the header line
    4. seq_start
    5. seq_end
    6. seq_bytes, number of bytes of the sequence, including line breaks
    7. header, without '>'

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

		chunkSize := getFlagByteSize(cmd, "chunk-size")
		outFile := getFlagString(cmd, "out-file")

		files := getFileListFromArgsAndFile(cmd, args, true, "infile-list", true)
		for _, file := range files {
			if !isPlainFile(file) {
				checkError(fmt.Errorf("only plain FASTA files are supported: %s", file))
			}
		}

		outfh, gw, w, err := outStream(outFile, strings.HasSuffix(outFile, ".gz"), opt.CompressionLevel)
		checkError(err)
		defer func() {
			outfh.Flush()
			if gw != nil {
				gw.Close()
			}
			w.Close()
		}()

		showFile := len(files) > 1
		if showFile {
			fmt.Fprint(outfh, "file\t")
		}
		fmt.Fprintln(outfh, "record\theader_start\theader_end\tseq_start\tseq_end\tseq_bytes\theader")

		for _, file := range files {
			records, err := fasta.IndexFile(file, chunkSize)
			checkError(err)

			fh, err := os.Open(file)
			checkError(errors.Wrapf(err, "reading %s", file))

			for i, r := range records {
				header, err := r.Header(fh)
				checkError(errors.Wrapf(err, "reading %s", file))

				if showFile {
					fmt.Fprintf(outfh, "%s\t", file)
				}
				fmt.Fprintf(outfh, "%d\t%d\t%d\t%d\t%d\t%d\t%s\n",
					i+1, r.HeaderStart, r.HeaderEnd, r.SeqStart, r.SeqEnd, r.SeqLen(), header[1:])
			}
			fh.Close()

			if outputLog {
				log.Infof("%d records in %s", len(records), file)
			}
		}
	},
}

func init() {
	utilsCmd.AddCommand(indexCmd)

	indexCmd.Flags().StringP("infile-list", "X", "",
		formatFlagUsage(`File of input file list (one file per line). If given, they are appended to files from CLI arguments.`))

	indexCmd.Flags().StringP("chunk-size", "", "1MiB",
		formatFlagUsage(`Chunk size for scanning files.`))

	indexCmd.Flags().StringP("out-file", "o", "-",
		formatFlagUsage(`Out file, supports a ".gz" suffix ("-" for stdout).`))

	indexCmd.SetUsageTemplate(usageTemplate("<FASTA files>"))
}
