package match

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/energy-linkage/internal/embed"
	"github.com/energy-linkage/internal/record"
)

func TestGenerate(t *testing.T) {
	left := vectors(t,
		record.RawRecord{Key: key("a", "1", 2020), Name: "Riverside Power Co", Capacity: mw(500)},
		record.RawRecord{Key: key("a", "2", 2020), Name: "Lakeview Station"},
		record.RawRecord{Key: key("a", "3", 2020), Type: record.EntityUtility, Name: "Riverside Power Co"},
	)
	right := vectors(t,
		record.RawRecord{Key: key("b", "R-99", 2020), Name: "Riverside Power Company", Capacity: mw(498)},
		record.RawRecord{Key: key("b", "R-7", 2020), Name: "Mystic Generating Station"},
	)

	pairs, stats, err := Generate(false, left, right, GenerateOptions{})
	require.NoError(t, err)
	require.Len(t, pairs, 1, "utility never pairs with plant")
	assert.Equal(t, key("a", "1", 2020), pairs[0].A)
	assert.Equal(t, key("b", "R-99", 2020), pairs[0].B)
	assert.Equal(t, 0, pairs[0].Left)
	assert.Equal(t, 0, pairs[0].Right)
	assert.Equal(t, 1, stats.Blocks)

	// must_link pairs are generated even without a shared block
	overrides := NewOverrides([]Override{{A: key("a", "2", 2020), B: key("b", "R-7", 2020), Kind: MustLink}})
	pairs, stats, err = Generate(false, left, right, GenerateOptions{Overrides: overrides})
	require.NoError(t, err)
	require.Len(t, pairs, 2)
	assert.Equal(t, 1, stats.Forced)
	assert.Equal(t, key("a", "2", 2020), pairs[1].A)
}

func TestGenerateMaxBlockSize(t *testing.T) {
	var raws []record.RawRecord
	for i := 0; i < 5; i++ {
		raws = append(raws, record.RawRecord{Key: key("b", fmt.Sprint(i), 2020), Name: "Riverside Solar"})
	}
	left := vectors(t, record.RawRecord{Key: key("a", "x", 2020), Name: "Riverside Wind"})
	right := vectors(t, raws...)

	pairs, stats, err := Generate(false, left, right, GenerateOptions{MaxBlockSize: 3})
	require.NoError(t, err)
	assert.Empty(t, pairs)
	assert.Equal(t, 1, stats.SkippedBlocks)

	pairs, _, err = Generate(false, left, right, GenerateOptions{})
	require.NoError(t, err)
	assert.Len(t, pairs, 5)
	for i := 1; i < len(pairs); i++ {
		assert.True(t, pairs[i-1].less(pairs[i]))
	}
}

func TestGenerateRejectsMixedSchemas(t *testing.T) {
	left := vectors(t, record.RawRecord{Key: key("a", "1", 2020), Name: "x"})
	right := vectors(t, record.RawRecord{Key: key("b", "1", 2020), Name: "x"})
	right[0].Schema = "other"

	_, _, err := Generate(false, left, right, GenerateOptions{})
	assert.Error(t, err)
}

func TestScorePairsKeepsOrder(t *testing.T) {
	var raws []record.RawRecord
	for i := 0; i < 300; i++ {
		raws = append(raws, record.RawRecord{Key: key("b", fmt.Sprintf("%03d", i), 2020), Name: "Riverside"})
	}
	left := vectors(t, record.RawRecord{Key: key("a", "1", 2020), Name: "Riverside"})
	right := vectors(t, raws...)

	pairs := make([]Pair, len(right))
	for j := range right {
		pairs[j] = Pair{A: left[0].Key, B: right[j].Key, Left: 0, Right: j}
	}

	byIndex := ScorerFunc(func(f Features) float64 { return f[FeatSameLocalID] })
	e := NewEngine(EngineConfig{Scorer: byIndex, Workers: 4, ChunkSize: 7})
	scores, err := e.ScorePairs(context.Background(), false, left, right, pairs)
	require.NoError(t, err)
	require.Len(t, scores, len(pairs))
	for i, s := range scores {
		assert.Equal(t, pairs[i], s.Pair)
	}
}

func TestScorePairsClampsScorer(t *testing.T) {
	vs := vectors(t,
		record.RawRecord{Key: key("a", "1", 2020), Name: "x"},
		record.RawRecord{Key: key("b", "1", 2020), Name: "x"},
	)
	pairs := []Pair{{A: vs[0].Key, B: vs[1].Key, Left: 0, Right: 0}}

	e := NewEngine(EngineConfig{Scorer: ScorerFunc(func(Features) float64 { return 7 })})
	scores, err := e.ScorePairs(context.Background(), false, vs[:1], vs[1:], pairs)
	require.NoError(t, err)
	assert.Equal(t, 1.0, scores[0].Confidence)
}

func TestScorePairsCancelled(t *testing.T) {
	vs := vectors(t,
		record.RawRecord{Key: key("a", "1", 2020), Name: "x"},
		record.RawRecord{Key: key("b", "1", 2020), Name: "x"},
	)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e := NewEngine(EngineConfig{})
	scores, err := e.ScorePairs(ctx, false, vs[:1], vs[1:], []Pair{{Left: 0, Right: 0}})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, scores)
}

func TestScorePairsBadIndex(t *testing.T) {
	var none []embed.FeatureVector
	_, err := NewEngine(EngineConfig{}).ScorePairs(context.Background(), false, none, none, []Pair{{Left: 1, Right: 0}})
	assert.Error(t, err)
}
