package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rowforge/rowforge/internal/engine"
	"github.com/rowforge/rowforge/internal/logging"
	"github.com/rowforge/rowforge/internal/sheet"
)

func newApplyCmd() *cobra.Command {
	var (
		configPath string
		outputPath string
		verbose    bool
	)

	cmd := &cobra.Command{
		Use:   "apply [input.xlsx]",
		Short: "Apply a configuration to a workbook and print the CSV",
		Long: `apply runs a configuration document against a local workbook file and
writes the resulting CSV to stdout or a file. No server or database is
involved.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApply(args[0], configPath, outputPath, verbose)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Configuration document path (required)")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Output file path (default: stdout)")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Print applied rules and warnings to stderr")
	cmd.MarkFlagRequired("config")

	return cmd
}

func runApply(inputPath, configPath, outputPath string, verbose bool) error {
	logging.Setup("info", "text")

	docData, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("read configuration: %w", err)
	}

	doc, err := engine.ParseDocument(docData)
	if err != nil {
		var verr *engine.ValidationError
		if errors.As(err, &verr) {
			for _, p := range verr.Problems {
				fmt.Fprintln(os.Stderr, "invalid configuration:", p)
			}
		}
		return err
	}

	fileData, err := os.ReadFile(inputPath)
	if err != nil {
		return fmt.Errorf("read workbook: %w", err)
	}

	wb, err := sheet.ReadWorkbook(fileData)
	if err != nil {
		return fmt.Errorf("parse workbook: %w", err)
	}

	result, err := engine.Run(wb, doc.Rules)
	if err != nil {
		return err
	}

	if verbose {
		for _, a := range result.Applied {
			fmt.Fprintln(os.Stderr, "applied:", a)
		}
		for _, w := range result.Warnings {
			fmt.Fprintln(os.Stderr, "warning:", w)
		}
	}

	if result.Aborted {
		return fmt.Errorf("transformation aborted: column validation failed")
	}

	csv := engine.Serialize(result.Matrix, doc.Output)

	if outputPath != "" {
		if err := os.WriteFile(outputPath, []byte(csv), 0644); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
		fmt.Fprintf(os.Stderr, "wrote %d rows to %s\n", result.RowCount, outputPath)
		return nil
	}

	fmt.Print(csv)
	if csv != "" {
		fmt.Println()
	}
	return nil
}
