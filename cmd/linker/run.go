package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/energy-linkage/internal/audit"
	"github.com/energy-linkage/internal/importer"
	"github.com/energy-linkage/internal/linkage"
	"github.com/energy-linkage/internal/logging"
	"github.com/energy-linkage/internal/match"
	"github.com/energy-linkage/internal/record"
	"github.com/energy-linkage/internal/store"
)

type runOptions struct {
	input         string
	years         []int
	output        string
	scoresOut     string
	overridesIn   string
	priorIn       string
	modelPath     string
	useDB         bool
	save          bool
	diagnostics   string
	noPriorFromDB bool
}

func createRunCmd() *cobra.Command {
	var opts runOptions
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Link records and write the linkage table",
		Long: `Reads source records from a CSV file (--input) or the database (--db),
links them and writes the linkage table. With --save the run, its table and
pair provenance are stored in one transaction.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLinkage(cmd.Context(), opts)
		},
	}
	cmd.Flags().StringVarP(&opts.input, "input", "i", "", "source records CSV")
	cmd.Flags().IntSliceVar(&opts.years, "years", nil, "only these reporting years (database input)")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "linkage table CSV (default stdout)")
	cmd.Flags().StringVar(&opts.scoresOut, "scores", "", "write per-pair provenance CSV")
	cmd.Flags().StringVar(&opts.overridesIn, "overrides", "", "manual overrides CSV")
	cmd.Flags().StringVar(&opts.priorIn, "prior", "", "previous linkage table CSV for stable ids")
	cmd.Flags().StringVar(&opts.modelPath, "model", "", "model file (default model_path or built-in)")
	cmd.Flags().BoolVar(&opts.useDB, "db", false, "read records, overrides and the prior table from the database")
	cmd.Flags().BoolVar(&opts.save, "save", false, "store the run in the database")
	cmd.Flags().StringVar(&opts.diagnostics, "diagnostics", "", "write diagnostics JSON to this file")
	cmd.Flags().BoolVar(&opts.noPriorFromDB, "fresh", false, "ignore the stored prior table and mint new ids")
	return cmd
}

func runLinkage(ctx context.Context, opts runOptions) error {
	logger := logging.Default()
	if opts.input == "" && !opts.useDB {
		return fmt.Errorf("give --input or --db")
	}

	var db *store.Store
	if opts.useDB || opts.save {
		var err error
		if db, err = openStore(ctx); err != nil {
			return err
		}
		defer db.Close()
	}

	records, err := loadRecords(ctx, db, opts)
	if err != nil {
		return err
	}

	overrides, err := loadOverrides(ctx, db, opts)
	if err != nil {
		return err
	}

	prior, err := loadPrior(ctx, db, opts)
	if err != nil {
		return err
	}

	model, err := loadModel(opts.modelPath)
	if err != nil {
		return err
	}

	var overrideStore audit.OverrideStore
	if db != nil {
		overrideStore = db
	}
	tracker := audit.NewTracker(logger, overrideStore)
	orch := linkage.New(model,
		linkage.WithAuditor(tracker),
		linkage.WithLogger(logger),
		linkage.WithOverrides(overrides),
		linkage.WithPriorTable(prior),
		linkage.WithDebug(cfg.Debug),
	)

	started := time.Now().UTC()
	res, err := orch.Run(ctx, records, cfg)
	if err != nil {
		return err
	}
	finished := time.Now().UTC()

	if err := writeFile(opts.output, func(f *os.File) error { return importer.WriteLinkageTable(f, res.Table) }); err != nil {
		return err
	}
	if opts.scoresOut != "" {
		if err := writeFile(opts.scoresOut, func(f *os.File) error { return importer.WriteScores(f, res.Scores) }); err != nil {
			return err
		}
	}
	if opts.diagnostics != "" {
		if err := writeFile(opts.diagnostics, func(f *os.File) error {
			enc := json.NewEncoder(f)
			enc.SetIndent("", "  ")
			return enc.Encode(res.Diagnostics)
		}); err != nil {
			return err
		}
	}

	if opts.save {
		// records loaded from the store are already there
		var imported []record.RawRecord
		if opts.input != "" {
			imported = records
		}
		recorded := cfg
		recorded.DatabaseURL = ""
		cfgJSON, err := json.Marshal(recorded)
		if err != nil {
			return err
		}
		run := store.Run{ID: res.RunID, StartedAt: started, FinishedAt: finished, Config: cfgJSON}
		if err := db.SaveRunWithRecords(ctx, run, res, imported); err != nil {
			return err
		}
		logger.Info().Str("run_id", res.RunID).Msg("run stored")
	}

	printDiagnostics(res, audit.Summarize(res))
	return nil
}

func loadRecords(ctx context.Context, db *store.Store, opts runOptions) ([]record.RawRecord, error) {
	if opts.input == "" {
		return db.LoadRecords(ctx, opts.years...)
	}
	f, err := os.Open(opts.input)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", opts.input, err)
	}
	defer f.Close()

	records, stats, err := importer.NewReader(logging.Default()).ReadRecords(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", opts.input, err)
	}
	if stats.Skipped > 0 {
		fmt.Fprintf(os.Stderr, "Skipped %d of %d rows in %s\n", stats.Skipped, stats.Rows, opts.input)
	}
	return records, nil
}

func loadOverrides(ctx context.Context, db *store.Store, opts runOptions) ([]match.Override, error) {
	var out []match.Override
	if opts.useDB {
		stored, err := db.LoadOverrides(ctx)
		if err != nil {
			return nil, err
		}
		out = append(out, stored...)
	}
	if opts.overridesIn != "" {
		f, err := os.Open(opts.overridesIn)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", opts.overridesIn, err)
		}
		defer f.Close()
		fromFile, err := importer.ReadOverrides(f)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", opts.overridesIn, err)
		}
		// file entries come last so they win over stored ones
		out = append(out, fromFile...)
	}
	return out, nil
}

func loadPrior(ctx context.Context, db *store.Store, opts runOptions) (*record.LinkageTable, error) {
	if opts.priorIn != "" {
		f, err := os.Open(opts.priorIn)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", opts.priorIn, err)
		}
		defer f.Close()
		return importer.ReadLinkageTable(f)
	}
	if db != nil && !opts.noPriorFromDB {
		return db.LoadPriorTable(ctx)
	}
	return nil, nil
}

// writeFile runs write against path, or stdout when path is empty or "-".
func writeFile(path string, write func(*os.File) error) error {
	if path == "" || path == "-" {
		return write(os.Stdout)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}

func printDiagnostics(res *linkage.Result, stats audit.MatchingStats) {
	d := res.Diagnostics
	w := os.Stderr
	fmt.Fprintf(w, "\n=== Linkage run %s ===\n", res.RunID)
	fmt.Fprintf(w, "Records:          %d (%d duplicate keys dropped, %d low confidence)\n", d.Records, d.Duplicates, d.LowConfidence)
	if d.SpellingCorrections > 0 {
		fmt.Fprintf(w, "Spelling fixes:   %d names\n", d.SpellingCorrections)
	}
	fmt.Fprintf(w, "Candidate pairs:  %d\n", d.CandidatePairs())
	fmt.Fprintf(w, "Accepted pairs:   %d\n", d.Accepted())
	fmt.Fprintf(w, "Ambiguities:      %d\n", stats.Ambiguities)
	fmt.Fprintf(w, "Year clusters:    %d\n", d.Clusters())
	fmt.Fprintf(w, "Cross-year edges: %d used, %d skipped of %d\n", d.UsedEdges, d.SkippedEdges, d.CrossYearEdges)
	fmt.Fprintf(w, "Entities:         %d (%d ids reused, %d minted)\n", d.Entities, d.ReusedIDs, d.MintedIDs)
	fmt.Fprintf(w, "Singleton rate:   %.1f%%\n", d.SingletonRate*100)

	if len(d.Stages) > 0 {
		fmt.Fprintln(w, "\nStage                                   Pairs  Accepted  Ambiguous")
		for _, s := range d.Stages {
			fmt.Fprintf(w, "%-38s %6d %9d %10d\n", s.Label(), s.CandidatePairs, s.Accepted, s.Ambiguous)
		}
	}
	for _, ds := range stats.Stages {
		reasons := make([]string, 0, len(ds.ByReason))
		for _, r := range []match.Reason{match.ReasonAccepted, match.ReasonForced, match.ReasonBelowThreshold, match.ReasonAmbiguous, match.ReasonSuperseded, match.ReasonVetoed, match.ReasonConflict} {
			if n := ds.ByReason[r]; n > 0 {
				reasons = append(reasons, string(r)+"="+strconv.Itoa(n))
			}
		}
		fmt.Fprintf(w, "%s: %s (mean accepted confidence %.3f)\n", ds.Stage, strings.Join(reasons, " "), ds.MeanAccepted)
	}
}
