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
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/shenwei356/kmerbloom/kmerbloom/bloom"
	"github.com/spf13/cobra"
)

var paramsCmd = &cobra.Command{
	Use:   "params",
	Short: "Compute Bloom filter parameters from the number of k-mers and false positive rate",
	Long: `Compute Bloom filter parameters from the number of k-mers and false positive rate

The number of bits m is rounded up to a power of 2, so every bitfield-size-bit
slice of the digest addresses the whole filter. The smallest number of hashes
satisfying the false positive rate is chosen, bounded by the digest width.

With -m/--bits, the bitfield size is floor(log2(m)), and the number of hashes
is the optimal value round(ln(2)*2^bitfield/n) unless -H/--hashes is given.

Theoretical false positive rates of all possible numbers of hashes are
also listed with -a/--all.

`,
	Run: func(cmd *cobra.Command, args []string) {
		n := getFlagUint64(cmd, "elements")
		fpr := getFlagNonNegativeFloat64(cmd, "fpr")
		k := getFlagPositiveInt(cmd, "kmer")
		bitsStr := getFlagString(cmd, "bits")
		hashes := getFlagNonNegativeInt(cmd, "hashes")
		hashName := getFlagString(cmd, "hash")
		all := getFlagBool(cmd, "all")

		h, err := bloom.HasherByName(hashName)
		checkError(err)

		var p *bloom.Params
		if bitsStr != "" {
			m, err := ParseByteSize(bitsStr)
			if err != nil {
				checkError(fmt.Errorf("invalid value of flag -m/--bits: %s", bitsStr))
			}
			p = &bloom.Params{N: n, M: m, K: hashes, KmerLength: k}
			checkError(bloom.CompleteParams(p, h))
		} else {
			if n == 0 {
				checkError(fmt.Errorf("flag -n/--elements or -m/--bits is needed"))
			}
			p, err = bloom.EstimateParams(n, fpr, k, h)
			checkError(err)
		}

		fmt.Printf("k-mer size:       %d\n", p.KmerLength)
		fmt.Printf("expected k-mers:  %s\n", humanize.Comma(int64(p.N)))
		fmt.Printf("bits:             %s (%s)\n", humanize.Comma(int64(p.M)), humanize.IBytes(p.Bytes()))
		fmt.Printf("bitfield size:    %d\n", p.BitfieldSize)
		fmt.Printf("hashes:           %d\n", p.K)
		fmt.Printf("hash function:    %s (%d bits)\n", p.Hash, h.Size()<<3)
		if p.N > 0 {
			fmt.Printf("theoretical FPR:  %.6g\n", p.FPR)
		}
		fmt.Printf("flags for build:  -k %d -m %d -H %d -b %d --hash %s\n",
			p.KmerLength, p.M, p.K, p.BitfieldSize, p.Hash)

		if !all || p.N == 0 {
			return
		}

		maxK := h.Size() << 3 / p.BitfieldSize
		fmt.Println()
		fmt.Println("hashes\tFPR")
		m := uint64(1) << p.BitfieldSize
		var mark string
		for i := 1; i <= maxK; i++ {
			mark = ""
			if i == p.K {
				mark = "\t*"
			}
			fmt.Printf("%d\t%s%s\n", i, strings.TrimRight(fmt.Sprintf("%.8f", bloom.FalsePositiveRate(m, p.N, i)), "0"), mark)
		}
	},
}

func init() {
	utilsCmd.AddCommand(paramsCmd)

	paramsCmd.Flags().Uint64P("elements", "n", 0,
		formatFlagUsage(`Expected number of k-mers, e.g., the genome size.`))

	paramsCmd.Flags().Float64P("fpr", "p", 0.01,
		formatFlagUsage(`Desired false positive rate.`))

	paramsCmd.Flags().IntP("kmer", "k", 30,
		formatFlagUsage(`K-mer size.`))

	paramsCmd.Flags().StringP("bits", "m", "",
		formatFlagUsage(`Number of bits, supporting units like KiB, MiB, GiB. Overrides -p/--fpr.`))

	paramsCmd.Flags().IntP("hashes", "H", 0,
		formatFlagUsage(`Number of hashes, used with -m/--bits.`))

	paramsCmd.Flags().StringP("hash", "", bloom.DefaultHash,
		formatFlagUsage(fmt.Sprintf(`Hash function, available: %s.`, bloom.HasherNames())))

	paramsCmd.Flags().BoolP("all", "a", false,
		formatFlagUsage(`List theoretical false positive rates of all possible numbers of hashes.`))

	paramsCmd.SetUsageTemplate(usageTemplate("{-n <elements> [-p <fpr>] | -m <bits> [-n <elements>] [-H <hashes>]}"))
}
