package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/energy-linkage/internal/config"
	"github.com/energy-linkage/internal/logging"
	"github.com/energy-linkage/internal/match"
	"github.com/energy-linkage/internal/store"
)

var (
	configPath string
	debugMode  bool

	// cfg is loaded once before any subcommand runs.
	cfg config.LinkageConfig
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "linker",
		Short: "Energy entity record linkage",
		Long: `Links plants, units, generators and utilities reported in several
datasets and years to persistent entity ids.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.LoadEnv(); err != nil {
				return err
			}
			loaded, err := config.Load(configPath)
			if err != nil {
				return err
			}
			cfg = loaded
			if debugMode {
				cfg.Debug = true
			}
			if cfg.Debug {
				logging.SetLevel("debug")
			}
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "linkage config file (yaml, json or toml)")
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "enable debug output")

	rootCmd.AddCommand(createRunCmd())
	rootCmd.AddCommand(createTrainCmd())
	rootCmd.AddCommand(createTuneCmd())
	rootCmd.AddCommand(createServeCmd())
	rootCmd.AddCommand(createPingCmd())
	rootCmd.AddCommand(createOverrideCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// openStore connects to the configured database and creates missing tables.
func openStore(ctx context.Context) (*store.Store, error) {
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("no database configured (set database_url or DATABASE_URL)")
	}
	s, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := s.EnsureSchema(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// loadModel returns the configured model or the built-in one.
func loadModel(path string) (*match.LogisticModel, error) {
	if path == "" {
		path = cfg.ModelPath
	}
	if path == "" {
		return match.DefaultModel(), nil
	}
	return match.LoadModel(path)
}

// createPingCmd creates a command to test database connectivity
func createPingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Test database connectivity",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.Ping(cmd.Context()); err != nil {
				return err
			}
			fmt.Printf("Database connection successful (%s)\n", s.Driver())

			counts, err := s.Counts(cmd.Context())
			if err != nil {
				return err
			}
			tables := make([]string, 0, len(counts))
			for t := range counts {
				tables = append(tables, t)
			}
			sort.Strings(tables)
			for _, t := range tables {
				fmt.Printf("  %-18s %d\n", t, counts[t])
			}
			return nil
		},
	}
}
