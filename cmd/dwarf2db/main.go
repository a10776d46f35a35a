// Package main provides the dwarf2db binary: a batch importer that reads
// DWARF debug information from an ELF binary and fills a type database.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dwarf2db/dwarf2db/internal/cli/importer"
	"github.com/dwarf2db/dwarf2db/pkg/version"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "dwarf2db",
		Short:         "dwarf2db - import DWARF debugging types into a type database",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(importer.NewImportCmd())
	rootCmd.AddCommand(newVersionCmd())

	if err := rootCmd.Execute(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Println(version.String())
		},
	}
}
