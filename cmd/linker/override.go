package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/energy-linkage/internal/audit"
	"github.com/energy-linkage/internal/importer"
	"github.com/energy-linkage/internal/logging"
	"github.com/energy-linkage/internal/match"
	"github.com/energy-linkage/internal/record"
)

// createOverrideCmd creates the override subcommands
func createOverrideCmd() *cobra.Command {
	overrideCmd := &cobra.Command{
		Use:   "override",
		Short: "Record and exchange manual QA decisions",
	}
	overrideCmd.AddCommand(createOverrideAddCmd())
	overrideCmd.AddCommand(createOverrideImportCmd())
	overrideCmd.AddCommand(createOverrideExportCmd())
	return overrideCmd
}

func createOverrideAddCmd() *cobra.Command {
	var reason, reviewer string
	cmd := &cobra.Command{
		Use:   "add <must_link|cannot_link> <dataset:year:id> <dataset:year:id>",
		Short: "Pin the decision for one pair",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := match.ParseOverrideKind(args[0])
			if err != nil {
				return err
			}
			a, err := record.ParseKey(args[1])
			if err != nil {
				return err
			}
			b, err := record.ParseKey(args[2])
			if err != nil {
				return err
			}
			if reviewer == "" {
				reviewer = os.Getenv("USER")
			}

			db, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()

			tracker := audit.NewTracker(logging.Default(), db)
			ov := match.Override{A: a, B: b, Kind: kind, Reason: reason, Reviewer: reviewer}
			if err := tracker.RecordManualOverride(cmd.Context(), cfg.Debug, ov); err != nil {
				return err
			}
			fmt.Printf("Recorded %s for %s / %s\n", kind, a, b)
			return nil
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "why the decision was taken")
	cmd.Flags().StringVar(&reviewer, "reviewer", "", "reviewer id (default $USER)")
	return cmd
}

func createOverrideImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import [filename]",
		Short: "Store every override in a CSV file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			list, err := importer.ReadOverrides(f)
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}

			db, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()

			tracker := audit.NewTracker(logging.Default(), db)
			for _, ov := range list {
				if ov.Reviewer == "" {
					ov.Reviewer = "import:" + args[0]
				}
				if err := tracker.RecordManualOverride(cmd.Context(), cfg.Debug, ov); err != nil {
					return err
				}
			}
			fmt.Printf("Imported %d overrides\n", len(list))
			return nil
		},
	}
}

func createOverrideExportCmd() *cobra.Command {
	var outPath string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write stored overrides as CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()

			list, err := db.LoadOverrides(cmd.Context())
			if err != nil {
				return err
			}
			return writeFile(outPath, func(f *os.File) error { return importer.WriteOverrides(f, list) })
		},
	}
	cmd.Flags().StringVarP(&outPath, "output", "o", "", "file to write (default stdout)")
	return cmd
}
