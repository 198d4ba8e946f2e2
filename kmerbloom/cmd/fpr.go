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
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/shenwei356/kmerbloom/kmerbloom/bloom"
	"github.com/spf13/cobra"
	"github.com/zeebo/wyhash"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat/distuv"
)

var fprCmd = &cobra.Command{
	Use:   "fpr",
	Short: "Estimate the false positive rate of a Bloom filter with random k-mers",
	Long: `Estimate the false positive rate of a Bloom filter with random k-mers

Random k-mers are generated from a counter-based generator, so results are
reproducible with the same seed. A normal-approximation confidence interval
is also reported.

Attention:
  Random k-mers might exist in the genome, which is negligible for k >= 20
  and genomes of common sizes.

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

		filterFile := getFlagString(cmd, "filter")
		if filterFile == "" {
			checkError(fmt.Errorf("flag -d/--filter needed"))
		}
		filterFile = expandPath(filterFile)
		samples := getFlagPositiveInt(cmd, "samples")
		seed := uint64(getFlagNonNegativeInt(cmd, "seed"))
		confidence := getFlagNonNegativeFloat64(cmd, "confidence")
		if confidence <= 0 || confidence >= 1 {
			checkError(fmt.Errorf("value of flag --confidence should be in range of (0, 1)"))
		}

		info, err := readFilterInfo(filterInfoFile(filterFile))
		checkError(err)
		p := info.Params()
		h, err := bloom.HasherByName(p.Hash)
		checkError(err)

		f, err := bloom.LoadFile(filterFile, p, h)
		checkError(err)

		if outputLog {
			log.Infof("filter: %s", filterFile)
			log.Infof("  %s", p)
			log.Infof("testing %s random %d-mers with %d threads ...",
				humanize.Comma(int64(samples)), p.KmerLength, opt.NumCPUs)
		}

		positives := randomKmerPositives(f, samples, seed, opt.NumCPUs)

		rate := float64(positives) / float64(samples)
		z := distuv.UnitNormal.Quantile(1 - (1-confidence)/2)
		margin := z * math.Sqrt(rate*(1-rate)/float64(samples))

		fmt.Printf("random k-mers:     %d\n", samples)
		fmt.Printf("false positives:   %d\n", positives)
		fmt.Printf("empirical FPR:     %.6g\n", rate)
		fmt.Printf("%.0f%% CI:           [%.6g, %.6g]\n", confidence*100, math.Max(0, rate-margin), math.Min(1, rate+margin))
		fmt.Printf("estimated FPR:     %.6g (from %d set bits)\n", f.EstimatedFPR(), f.Count())
		if info.InsertedKmers > 0 {
			fmt.Printf("theoretical FPR:   %.6g (from %d inserted k-mers)\n",
				bloom.FalsePositiveRate(uint64(1)<<p.BitfieldSize, info.InsertedKmers, p.K), info.InsertedKmers)
		}
	},
}

var bit2base = [4]byte{'A', 'C', 'G', 'T'}

// randomKmer fills a k-mer with bases from hash values of successive counters.
func randomKmer(kmer []byte, counter uint64, seed uint64) {
	var buf [8]byte
	var v uint64
	for i := range kmer {
		if i&31 == 0 {
			binary.LittleEndian.PutUint64(buf[:], counter<<8|uint64(i>>5))
			v = wyhash.Hash(buf[:], seed)
		}
		kmer[i] = bit2base[v&3]
		v >>= 2
	}
}

func randomKmerPositives(f *bloom.Filter, samples int, seed uint64, threads int) uint64 {
	var positives atomic.Uint64
	k := f.Params().KmerLength

	chunk := (samples + threads - 1) / threads
	var g errgroup.Group
	for start := 0; start < samples; start += chunk {
		end := min(start+chunk, samples)
		g.Go(func() error {
			kmer := make([]byte, k)
			var n uint64
			for i := start; i < end; i++ {
				randomKmer(kmer, uint64(i), seed)
				if f.MightContain(kmer) {
					n++
				}
			}
			positives.Add(n)
			return nil
		})
	}
	g.Wait()
	return positives.Load()
}

func init() {
	utilsCmd.AddCommand(fprCmd)

	fprCmd.Flags().StringP("filter", "d", "",
		formatFlagUsage(`Bloom filter file created by "kmerbloom build", with <filter>.toml.`))

	fprCmd.Flags().IntP("samples", "N", 1000000,
		formatFlagUsage(`Number of random k-mers.`))

	fprCmd.Flags().IntP("seed", "s", 1,
		formatFlagUsage(`Seed for generating random k-mers.`))

	fprCmd.Flags().Float64P("confidence", "c", 0.95,
		formatFlagUsage(`Confidence level of the interval.`))

	fprCmd.SetUsageTemplate(usageTemplate("-d <filter> [-N <samples>]"))
}
