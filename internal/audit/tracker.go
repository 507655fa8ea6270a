// Package audit keeps the trail of matching decisions a reviewer needs:
// ambiguity events, per-pair decision statistics, manual overrides and
// feature-level explanations of a confidence.
package audit

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/energy-linkage/internal/debug"
	"github.com/energy-linkage/internal/linkage"
	"github.com/energy-linkage/internal/logging"
	"github.com/energy-linkage/internal/match"
	"github.com/energy-linkage/internal/record"
)

// OverrideStore persists manual decisions.
type OverrideStore interface {
	SaveOverride(ctx context.Context, ov match.Override) error
	LoadOverrides(ctx context.Context) ([]match.Override, error)
}

// Tracker logs ambiguity events as a run finds them and records manual
// decisions. It is safe for concurrent use.
type Tracker struct {
	logger    *zerolog.Logger
	overrides OverrideStore
}

var _ linkage.Auditor = (*Tracker)(nil)

// NewTracker creates a tracker. overrides may be nil when manual decisions
// are not recorded.
func NewTracker(logger *zerolog.Logger, overrides OverrideStore) *Tracker {
	if logger == nil {
		logger = logging.Default()
	}
	return &Tracker{logger: logger, overrides: overrides}
}

// RecordAmbiguity implements linkage.Auditor.
func (t *Tracker) RecordAmbiguity(ctx context.Context, stage string, a match.Ambiguity) {
	candidates := make([]string, len(a.Candidates))
	for i, c := range a.Candidates {
		candidates[i] = c.String()
	}
	t.logger.Warn().
		Str("stage", stage).
		Str("record", a.Record.String()).
		Strs("candidates", candidates).
		Float64("confidence", a.Confidence).
		Msg("ambiguous match left unlinked")
}

// ErrNoOverrideStore is returned when a tracker without a store is asked to
// persist an override.
var ErrNoOverrideStore = errors.New("no override store configured")

// ErrInvalidOverride wraps every validation failure of a manual decision.
var ErrInvalidOverride = errors.New("invalid override")

// RecordManualOverride validates and stores a reviewer's decision on a pair.
// It takes effect on the next run.
func (t *Tracker) RecordManualOverride(ctx context.Context, localDebug bool, ov match.Override) error {
	debug.DebugHeader(localDebug)
	defer debug.DebugFooter(localDebug)

	if t.overrides == nil {
		return ErrNoOverrideStore
	}
	if _, err := match.ParseOverrideKind(string(ov.Kind)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidOverride, err)
	}
	if strings.TrimSpace(ov.Reviewer) == "" {
		return fmt.Errorf("%w: %s/%s needs a reviewer", ErrInvalidOverride, ov.A, ov.B)
	}
	if ov.A == ov.B {
		return fmt.Errorf("%w: %s paired with itself", ErrInvalidOverride, ov.A)
	}

	debug.DebugOutput(localDebug, "Recording %s override for %s / %s: %s", ov.Kind, ov.A, ov.B, ov.Reason)

	if err := t.overrides.SaveOverride(ctx, ov); err != nil {
		return fmt.Errorf("failed to record manual override: %w", err)
	}

	t.logger.Info().
		Str("a", ov.A.String()).
		Str("b", ov.B.String()).
		Str("kind", string(ov.Kind)).
		Str("reviewer", ov.Reviewer).
		Msg("manual override recorded")
	return nil
}

// OverrideHistory returns the stored overrides that involve key.
func (t *Tracker) OverrideHistory(ctx context.Context, key record.Key) ([]match.Override, error) {
	if t.overrides == nil {
		return nil, ErrNoOverrideStore
	}
	all, err := t.overrides.LoadOverrides(ctx)
	if err != nil {
		return nil, err
	}
	var out []match.Override
	for _, ov := range all {
		if ov.A == key || ov.B == key {
			out = append(out, ov)
		}
	}
	return out, nil
}
