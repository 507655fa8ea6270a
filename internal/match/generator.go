package match

import (
	"fmt"
	"sort"

	"github.com/energy-linkage/internal/debug"
	"github.com/energy-linkage/internal/embed"
	"github.com/energy-linkage/internal/record"
)

// GenerateOptions bounds candidate generation.
type GenerateOptions struct {
	// MaxBlockSize skips blocks holding more records than this on either
	// side. 0 disables the guard.
	MaxBlockSize int
	// Overrides adds must_link pairs even when they share no block.
	Overrides *Overrides
}

// GenerateStats reports what generation did.
type GenerateStats struct {
	Blocks        int
	SkippedBlocks int
	Forced        int
}

// Generate returns the distinct pairs (l, r) with l from left and r from
// right that share at least one blocking key, sorted by key. All vectors must
// come from the same schema.
func Generate(localDebug bool, left, right []embed.FeatureVector, opts GenerateOptions) ([]Pair, GenerateStats, error) {
	debug.DebugHeader(localDebug)
	defer debug.DebugFooter(localDebug)

	var stats GenerateStats
	if err := sameSchema(left, right); err != nil {
		return nil, stats, err
	}

	leftIndex := blockIndex(left)
	rightIndex := blockIndex(right)

	keys := make([]string, 0, len(leftIndex))
	for k := range leftIndex {
		if _, ok := rightIndex[k]; ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	seen := make(map[[2]int]bool)
	var pairs []Pair
	add := func(i, j int) {
		if seen[[2]int{i, j}] {
			return
		}
		seen[[2]int{i, j}] = true
		pairs = append(pairs, Pair{A: left[i].Key, B: right[j].Key, Type: left[i].Type, Left: i, Right: j})
	}

	for _, k := range keys {
		ls, rs := leftIndex[k], rightIndex[k]
		stats.Blocks++
		if opts.MaxBlockSize > 0 && (len(ls) > opts.MaxBlockSize || len(rs) > opts.MaxBlockSize) {
			stats.SkippedBlocks++
			debug.DebugOutput(localDebug, "Skipping block %s (%d x %d)", k, len(ls), len(rs))
			continue
		}
		for _, i := range ls {
			for _, j := range rs {
				add(i, j)
			}
		}
	}

	if opts.Overrides != nil {
		stats.Forced = addForced(left, right, opts.Overrides, seen, add)
	}

	sort.Slice(pairs, func(i, j int) bool { return pairs[i].less(pairs[j]) })
	debug.DebugOutput(localDebug, "Generated %d pairs from %d shared blocks (%d skipped)", len(pairs), stats.Blocks, stats.SkippedBlocks)
	return pairs, stats, nil
}

func blockIndex(vectors []embed.FeatureVector) map[string][]int {
	index := make(map[string][]int)
	for i := range vectors {
		for _, k := range vectors[i].BlockingKeys {
			index[k] = append(index[k], i)
		}
	}
	return index
}

func sameSchema(sets ...[]embed.FeatureVector) error {
	fingerprint := ""
	for _, set := range sets {
		for i := range set {
			switch {
			case fingerprint == "":
				fingerprint = set[i].Schema
			case set[i].Schema != fingerprint:
				return fmt.Errorf("vector %s has schema %s, expected %s", set[i].Key, set[i].Schema, fingerprint)
			}
		}
	}
	return nil
}

func addForced(left, right []embed.FeatureVector, o *Overrides, seen map[[2]int]bool, add func(i, j int)) int {
	pos := make(map[record.Key]int, len(right))
	for j := range right {
		pos[right[j].Key] = j
	}
	forced := 0
	for i := range left {
		for _, other := range o.mustLinkPartners(left[i].Key) {
			j, ok := pos[other]
			if !ok || left[i].Type != right[j].Type || seen[[2]int{i, j}] {
				continue
			}
			add(i, j)
			forced++
		}
	}
	return forced
}
