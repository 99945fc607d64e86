package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/austenc/nettrace"
	nettraceexport "github.com/austenc/nettrace/internal/nettrace/export"
	"github.com/austenc/nettrace/utils"
)

var (
	exportOut        string
	exportSampleType string
	exportSampleUnit string
)

var exportCmd = &cobra.Command{
	Use:               "export [nettrace-file]",
	Short:             "Export CPU or allocation samples as a pprof profile",
	Long:              `export writes a pprof profile built from CPU samples. Pass --sample-type alloc-objects to export a two-value allocation profile (alloc_objects/alloc_space) instead.`,
	Args:              cobra.ExactArgs(1),
	ValidArgsFunction: utils.CompleteFilesByExtension([]string{".nettrace"}, false),
	RunE:              runExport,
}

func init() {
	exportCmd.Flags().StringVar(&exportOut, "out", "", "output path (defaults to stdout)")
	exportCmd.Flags().StringVar(&exportSampleType, "sample-type", "samples", `pprof sample type name; "alloc-objects" exports an allocation profile instead of CPU samples`)
	exportCmd.Flags().StringVar(&exportSampleUnit, "sample-unit", "count", "pprof sample unit")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading %s: %w", args[0], err)
	}

	res, err := nettrace.Parse(data)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", args[0], err)
	}

	prof, err := nettraceexport.ToPprof(res, exportSampleType, exportSampleUnit)
	if err != nil {
		return fmt.Errorf("building pprof profile: %w", err)
	}

	out := os.Stdout
	if exportOut != "" {
		f, err := os.Create(exportOut)
		if err != nil {
			return fmt.Errorf("creating %s: %w", exportOut, err)
		}
		defer f.Close()
		out = f
	}

	if err := prof.Write(out); err != nil {
		return fmt.Errorf("writing pprof profile: %w", err)
	}
	return nil
}
