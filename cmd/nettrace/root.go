// Command nettrace decodes .NET EventPipe trace files and prints
// summaries or exports pprof profiles from them.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "nettrace",
	Short: "Decode .NET EventPipe (nettrace) trace files",
	Long:  `nettrace decodes EventPipe trace files into allocation, method, and CPU-sample summaries, and can export them as pprof profiles.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func main() {
	Execute()
}
