// Package main provides the rowforge CLI: a server for the conversion API
// and a local apply command for running a configuration against a workbook
// without a server.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "rowforge",
		Short: "Declarative spreadsheet-to-CSV conversion",
		Long: `rowforge transforms spreadsheet workbooks into CSV by applying an
ordered list of transformation rules defined in a portable JSON
configuration document.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newApplyCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
