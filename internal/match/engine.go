package match

import (
	"context"
	"fmt"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/energy-linkage/internal/debug"
	"github.com/energy-linkage/internal/embed"
)

// Engine scores candidate pairs in parallel. The vectors and the scorer are
// only read, so workers share them without locking.
type Engine struct {
	scorer    Scorer
	workers   int
	chunkSize int
}

// EngineConfig holds configuration for the scoring engine
type EngineConfig struct {
	Scorer    Scorer // defaults to DefaultModel()
	Workers   int    // defaults to GOMAXPROCS
	ChunkSize int    // pairs per task, defaults to 512
}

// NewEngine creates a new scoring engine
func NewEngine(config EngineConfig) *Engine {
	scorer := config.Scorer
	if scorer == nil {
		scorer = DefaultModel()
	}
	workers := config.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	chunk := config.ChunkSize
	if chunk <= 0 {
		chunk = 512
	}
	return &Engine{scorer: scorer, workers: workers, chunkSize: chunk}
}

// ScorePairs computes features and confidence for each pair. The result is
// in the order of pairs regardless of scheduling. A cancelled context stops
// the workers and returns its error with no scores.
func (e *Engine) ScorePairs(ctx context.Context, localDebug bool, left, right []embed.FeatureVector, pairs []Pair) ([]Score, error) {
	debug.DebugHeader(localDebug)
	defer debug.DebugFooter(localDebug)
	defer debug.DebugTiming(localDebug, fmt.Sprintf("scoring %d pairs", len(pairs)))()

	scores := make([]Score, len(pairs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)

	for start := 0; start < len(pairs); start += e.chunkSize {
		start, end := start, min(start+e.chunkSize, len(pairs))
		g.Go(func() error {
			for i := start; i < end; i++ {
				if (i-start)%64 == 0 {
					if err := gctx.Err(); err != nil {
						return err
					}
				}
				p := pairs[i]
				if p.Left < 0 || p.Left >= len(left) || p.Right < 0 || p.Right >= len(right) {
					return fmt.Errorf("pair %s/%s indexes outside the vector sets", p.A, p.B)
				}
				f := Compare(&left[p.Left], &right[p.Right])
				scores[i] = Score{Pair: p, Features: f, Confidence: clamp(e.scorer.Score(f))}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return scores, nil
}

func clamp(c float64) float64 {
	switch {
	case math.IsNaN(c):
		return 0
	case c < 0:
		return 0
	case c > 1:
		return 1
	}
	return c
}
