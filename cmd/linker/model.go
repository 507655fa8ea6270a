package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/energy-linkage/internal/config"
	"github.com/energy-linkage/internal/importer"
	"github.com/energy-linkage/internal/linkage"
	"github.com/energy-linkage/internal/match"
	"github.com/energy-linkage/internal/tuning"
)

// labelledInput loads pair scores and the overrides used as labels.
func labelledInput(ctx context.Context, scoresPath, overridesPath string, fromDB bool) ([]linkage.ScoredPair, []match.Override, error) {
	f, err := os.Open(scoresPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open %s: %w", scoresPath, err)
	}
	defer f.Close()
	scores, err := importer.ReadScores(f)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", scoresPath, err)
	}

	var overrides []match.Override
	if fromDB {
		db, err := openStore(ctx)
		if err != nil {
			return nil, nil, err
		}
		defer db.Close()
		if overrides, err = db.LoadOverrides(ctx); err != nil {
			return nil, nil, err
		}
	}
	if overridesPath != "" {
		of, err := os.Open(overridesPath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open %s: %w", overridesPath, err)
		}
		defer of.Close()
		fromFile, err := importer.ReadOverrides(of)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", overridesPath, err)
		}
		overrides = append(overrides, fromFile...)
	}
	if len(overrides) == 0 {
		return nil, nil, fmt.Errorf("no labels: give --overrides or --db")
	}
	return scores, overrides, nil
}

func createTrainCmd() *cobra.Command {
	var (
		scoresPath    string
		overridesPath string
		outPath       string
		fromDB        bool
		opts          = tuning.DefaultTrainOptions()
	)
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Fit the pair model from reviewed pairs",
		Long: `Fits logistic weights to the feature vectors of a scores file written by
"run --scores", using manual overrides as labels.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			scores, overrides, err := labelledInput(cmd.Context(), scoresPath, overridesPath, fromDB)
			if err != nil {
				return err
			}
			examples := tuning.Examples(scores, overrides)
			model, stats, err := tuning.Train(cfg.Debug, examples, opts)
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "Trained on %d pairs (%d matches, %d non-matches): loss %.4f after %d iterations, converged=%t\n",
				len(examples), stats.Positives, stats.Negatives, stats.Loss, stats.Iterations, stats.Converged)

			if outPath == "" {
				data, err := model.Encode()
				if err != nil {
					return err
				}
				_, err = os.Stdout.Write(data)
				return err
			}
			return model.SaveModel(outPath)
		},
	}
	cmd.Flags().StringVar(&scoresPath, "scores", "", "scores CSV written by run --scores")
	cmd.Flags().StringVar(&overridesPath, "overrides", "", "overrides CSV used as labels")
	cmd.Flags().BoolVar(&fromDB, "db", false, "also use overrides stored in the database")
	cmd.Flags().StringVarP(&outPath, "output", "o", "", "model file to write (default stdout)")
	cmd.Flags().IntVar(&opts.Iterations, "iterations", opts.Iterations, "maximum gradient steps")
	cmd.Flags().Float64Var(&opts.LearningRate, "learning-rate", opts.LearningRate, "gradient step size")
	cmd.Flags().Float64Var(&opts.L2, "l2", opts.L2, "L2 penalty on weights")
	cmd.MarkFlagRequired("scores")
	return cmd
}

func createTuneCmd() *cobra.Command {
	var (
		scoresPath    string
		overridesPath string
		modelPath     string
		fromDB        bool
		thresholds    []float64
		minPrecision  float64
	)
	cmd := &cobra.Command{
		Use:   "tune",
		Short: "Find the match threshold with the best F1 on reviewed pairs",
		RunE: func(cmd *cobra.Command, args []string) error {
			scores, overrides, err := labelledInput(cmd.Context(), scoresPath, overridesPath, fromDB)
			if err != nil {
				return err
			}
			var scorer match.Scorer
			if modelPath != "" {
				if scorer, err = loadModel(modelPath); err != nil {
					return err
				}
			}
			labelled := tuning.Label(scores, overrides, scorer)
			if len(labelled) == 0 {
				return fmt.Errorf("none of the scored pairs has a label")
			}

			results := tuning.Sweep(labelled, thresholds)
			fmt.Printf("\n=== Threshold Tuning (%d labelled pairs) ===\n", len(labelled))
			fmt.Println("Threshold | Precision | Recall | F1     | Accepted | TP  | FP  | FN")
			fmt.Println("----------|-----------|--------|--------|----------|-----|-----|-----")
			for _, r := range results {
				fmt.Printf("   %.2f   |   %.3f   | %.3f  | %.3f  |  %5d   | %3d | %3d | %3d\n",
					r.Threshold, r.Precision, r.Recall, r.F1Score, r.AcceptCount,
					r.TruePositives, r.FalsePositives, r.FalseNegatives)
			}

			best := tuning.Best(results, minPrecision)
			if best != nil {
				fmt.Printf("\nRecommended match_threshold: %.2f (precision %.3f, recall %.3f, F1 %.3f)\n",
					best.Threshold, best.Precision, best.Recall, best.F1Score)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&scoresPath, "scores", "", "scores CSV written by run --scores")
	cmd.Flags().StringVar(&overridesPath, "overrides", "", "overrides CSV used as labels")
	cmd.Flags().BoolVar(&fromDB, "db", false, "also use overrides stored in the database")
	cmd.Flags().StringVar(&modelPath, "model", "", "rescore pairs with this model before sweeping")
	cmd.Flags().Float64SliceVar(&thresholds, "thresholds", nil, "thresholds to try (default 0.50 to 0.95)")
	cmd.Flags().Float64Var(&minPrecision, "min-precision", config.GetEnvFloat("LINKER_MIN_PRECISION", tuning.MinPrecision), "precision a threshold must reach to be preferred")
	cmd.MarkFlagRequired("scores")
	return cmd
}
