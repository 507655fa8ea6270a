package config

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/spf13/viper"

	"github.com/energy-linkage/internal/embed"
	"github.com/energy-linkage/internal/normalize"
	"github.com/energy-linkage/internal/record"
)

// EnvPrefix is the prefix of environment overrides, e.g. LINKER_MATCH_THRESHOLD.
const EnvPrefix = "LINKER"

// LinkageConfig is the tunable surface of a linkage run.
type LinkageConfig struct {
	MatchThreshold   float64            `mapstructure:"match_threshold" yaml:"match_threshold" json:"match_threshold"`
	TypeThresholds   map[string]float64 `mapstructure:"type_thresholds" yaml:"type_thresholds" json:"type_thresholds"`
	BlockingKeys     []string           `mapstructure:"blocking_keys" yaml:"blocking_keys" json:"blocking_keys"`
	MaxYearGap       int                `mapstructure:"max_year_gap" yaml:"max_year_gap" json:"max_year_gap"`
	NameSynonymTable map[string]string  `mapstructure:"name_synonym_table" yaml:"name_synonym_table" json:"name_synonym_table"`

	// DatasetPairs lists the dataset pairs linked within each year.
	DatasetPairs [][]string `mapstructure:"dataset_pairs" yaml:"dataset_pairs" json:"dataset_pairs"`
	// CrossYearDatasets limits cross-year linking; empty means all datasets.
	CrossYearDatasets []string `mapstructure:"cross_year_datasets" yaml:"cross_year_datasets" json:"cross_year_datasets"`

	Workers              int  `mapstructure:"workers" yaml:"workers" json:"workers"`
	MaxBlockSize         int  `mapstructure:"max_block_size" yaml:"max_block_size" json:"max_block_size"`
	PreventSameYearMerge bool `mapstructure:"prevent_same_year_merge" yaml:"prevent_same_year_merge" json:"prevent_same_year_merge"`

	// SpellCorrection rewrites rare name tokens to a frequent spelling one
	// edit away before blocking.
	SpellCorrection bool `mapstructure:"spell_correction" yaml:"spell_correction" json:"spell_correction"`

	ModelPath   string `mapstructure:"model_path" yaml:"model_path" json:"model_path"`
	DatabaseURL string `mapstructure:"database_url" yaml:"database_url" json:"database_url,omitempty"`
	Debug       bool   `mapstructure:"debug" yaml:"debug" json:"debug"`
}

// Default returns the configuration used when no file is given.
func Default() LinkageConfig {
	return LinkageConfig{
		MatchThreshold:       0.8,
		BlockingKeys:         append([]string(nil), embed.DefaultBlockingRules...),
		MaxYearGap:           1,
		MaxBlockSize:         500,
		PreventSameYearMerge: true,
	}
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("match_threshold", d.MatchThreshold)
	v.SetDefault("type_thresholds", map[string]float64{})
	v.SetDefault("blocking_keys", d.BlockingKeys)
	v.SetDefault("max_year_gap", d.MaxYearGap)
	v.SetDefault("name_synonym_table", map[string]string{})
	v.SetDefault("dataset_pairs", [][]string{})
	v.SetDefault("cross_year_datasets", []string{})
	v.SetDefault("workers", 0)
	v.SetDefault("max_block_size", d.MaxBlockSize)
	v.SetDefault("prevent_same_year_merge", d.PreventSameYearMerge)
	v.SetDefault("spell_correction", false)
	v.SetDefault("model_path", "")
	v.SetDefault("database_url", "")
	v.SetDefault("debug", false)
}

// Load reads configuration from path (YAML, optional) with LINKER_*
// environment overrides. DATABASE_URL is honoured when database_url is unset.
// The result is not validated.
func Load(path string) (LinkageConfig, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return LinkageConfig{}, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var cfg LinkageConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return LinkageConfig{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = GetEnv("DATABASE_URL", "")
	}
	return cfg, nil
}

// Validate checks every option and returns all problems joined. Each
// problem matches ErrInvalidConfig.
func (c LinkageConfig) Validate() error {
	var errs []error
	add := func(field string, value interface{}, format string, args ...interface{}) {
		errs = append(errs, NewValidationError(field, value, fmt.Sprintf(format, args...)))
	}

	if !validThreshold(c.MatchThreshold) {
		add("match_threshold", c.MatchThreshold, "must be within [0, 1]")
	}

	types := make([]string, 0, len(c.TypeThresholds))
	for t := range c.TypeThresholds {
		types = append(types, t)
	}
	sort.Strings(types)
	for _, t := range types {
		if _, err := record.ParseEntityType(t); err != nil {
			add("type_thresholds", t, "%v", err)
		}
		if th := c.TypeThresholds[t]; !validThreshold(th) {
			add("type_thresholds."+t, th, "must be within [0, 1]")
		}
	}

	if err := embed.ValidateBlockingRules(c.BlockingKeys); err != nil {
		add("blocking_keys", c.BlockingKeys, "%v", err)
	}
	if c.MaxYearGap < 0 {
		add("max_year_gap", c.MaxYearGap, "must not be negative")
	}
	if _, err := normalize.New(c.NameSynonymTable); err != nil {
		add("name_synonym_table", len(c.NameSynonymTable), "%v", err)
	}

	for _, p := range c.DatasetPairs {
		switch {
		case len(p) != 2:
			add("dataset_pairs", p, "each pair needs exactly two datasets")
		case strings.TrimSpace(p[0]) == "" || strings.TrimSpace(p[1]) == "":
			add("dataset_pairs", p, "dataset names must not be blank")
		case p[0] == p[1]:
			add("dataset_pairs", p, "a dataset cannot be paired with itself")
		}
	}
	if c.Workers < 0 {
		add("workers", c.Workers, "must not be negative")
	}
	if c.MaxBlockSize < 0 {
		add("max_block_size", c.MaxBlockSize, "must not be negative")
	}

	return errors.Join(errs...)
}

// EntityThresholds returns the per-type thresholds keyed by entity type.
// Call after Validate.
func (c LinkageConfig) EntityThresholds() map[record.EntityType]float64 {
	out := make(map[record.EntityType]float64, len(c.TypeThresholds))
	for t, v := range c.TypeThresholds {
		if et, err := record.ParseEntityType(t); err == nil {
			out[et] = v
		}
	}
	return out
}

func validThreshold(v float64) bool {
	return !math.IsNaN(v) && v >= 0 && v <= 1
}
