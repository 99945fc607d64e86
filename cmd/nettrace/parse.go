package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/cespare/xxhash/v2"
	"github.com/dustin/go-humanize"
	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/austenc/nettrace"
	"github.com/austenc/nettrace/utils"
)

var parseTopN int

var parseCmd = &cobra.Command{
	Use:               "parse [nettrace-files...]",
	Short:             "Decode nettrace files and print an allocation/method summary",
	Args:              cobra.MinimumNArgs(1),
	ValidArgsFunction: utils.CompleteFilesByExtension([]string{".nettrace"}, false),
	RunE:              runParse,
}

func init() {
	parseCmd.Flags().IntVar(&parseTopN, "top", 10, "number of top allocation types to show")
	rootCmd.AddCommand(parseCmd)
}

func runParse(cmd *cobra.Command, args []string) error {
	seenContent := make(map[uint64]string)

	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}

		sum := xxhash.Sum64(data)
		if prior, ok := seenContent[sum]; ok {
			fmt.Printf("skipping %s: identical content to %s\n", path, prior)
			continue
		}
		seenContent[sum] = path

		res, err := nettrace.Parse(data)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", path, err)
		}
		printSummary(path, res)
	}
	return nil
}

type allocRow struct {
	name string
	info *nettrace.AllocationInfo
}

func printSummary(path string, res *nettrace.ParseResult) {
	fmt.Printf("=== %s ===\n", path)
	if res.Trace != nil {
		fmt.Printf("process %d, %d processor(s), pointer size %d bytes, sampling rate %d Hz\n",
			res.Trace.ProcessID, res.Trace.ProcessorCount, res.Trace.PointerSize, res.Trace.SamplingRateHz)
	}
	fmt.Printf("%s total events across %d provider(s)\n", humanize.Comma(int64(res.TotalEvents)), len(res.Providers))

	rows := make([]allocRow, 0, len(res.Allocations))
	for name, info := range res.Allocations {
		rows = append(rows, allocRow{name, info})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].info.TotalSize > rows[j].info.TotalSize })

	top := lo.Slice(rows, 0, parseTopN)
	if len(top) > 0 {
		fmt.Println("top allocations by size:")
		for _, r := range top {
			fmt.Printf("  %-40s %12s  (%s allocations)\n",
				r.name, humanize.Bytes(r.info.TotalSize), humanize.Comma(int64(r.info.Count)))
		}
	}

	if len(res.Errors) > 0 {
		fmt.Printf("%d decode warning(s):\n", len(res.Errors))
		for _, e := range res.Errors {
			fmt.Printf("  - %s\n", e)
		}
	}

	summary := struct {
		TotalEvents     uint64 `json:"totalEvents"`
		AllocationTypes int    `json:"allocationTypes"`
		Methods         int    `json:"methods"`
		Stacks          int    `json:"stacks"`
		CPUSampleStacks int    `json:"cpuSampleStacks"`
	}{res.TotalEvents, len(res.Allocations), len(res.Methods), len(res.Stacks), len(res.CPUSamplesByStack)}

	if out, err := json.MarshalIndent(summary, "", "  "); err == nil {
		fmt.Println(string(out))
	}
}
