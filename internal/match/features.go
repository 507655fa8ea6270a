package match

import (
	"math"
	"strings"

	"github.com/energy-linkage/internal/embed"
	"github.com/energy-linkage/internal/normalize"
	"github.com/energy-linkage/internal/phonetics"
)

// winklerPrefix is the longest common prefix rewarded by Jaro-Winkler.
const winklerPrefix = 4

// Compare computes the distance vector of a pair. Missing values never enter
// a distance: name features are 0 when either name is blank, agreement
// indicators are 0 when either side is missing, and the missing count
// records how many comparisons were skipped.
func Compare(a, b *embed.FeatureVector) Features {
	var f Features
	missing := 0

	if a.Name != "" && b.Name != "" {
		f[FeatJaroWinkler] = JaroWinkler(a.Name, b.Name)
		f[FeatLevenshtein] = LevenshteinSimilarity(a.Name, b.Name)
		f[FeatJaccard] = normalize.Jaccard(a.Tokens, b.Tokens)
		f[FeatPhonetic] = phonetics.Overlap(a.Codes, b.Codes)
	} else {
		missing++
	}

	if a.IsMissing(embed.FieldCapacity) || b.IsMissing(embed.FieldCapacity) {
		missing++
	} else {
		f[FeatCapacity] = 2*capacityAgreement(a.Capacity, b.Capacity) - 1
	}

	categorical := []struct {
		idx  int
		x, y string
	}{
		{FeatFuel, a.Fuel, b.Fuel},
		{FeatPrimeMover, a.Mover, b.Mover},
		{FeatState, a.State, b.State},
		{FeatCity, a.City, b.City},
		{FeatOwner, a.Owner, b.Owner},
	}
	for _, c := range categorical {
		switch {
		case c.x == "" || c.y == "":
			missing++
		case c.x == c.y:
			f[c.idx] = 1
		default:
			f[c.idx] = -1
		}
	}

	if strings.EqualFold(strings.TrimSpace(a.Key.LocalID), strings.TrimSpace(b.Key.LocalID)) && a.Key.LocalID != "" {
		f[FeatSameLocalID] = 1
	}
	f[FeatMissing] = float64(missing)
	return f
}

// capacityAgreement is 1 - |a-b|/max(a,b), 1 when both are zero.
func capacityAgreement(a, b float64) float64 {
	hi := math.Max(a, b)
	if hi == 0 {
		return 1
	}
	return 1 - math.Abs(a-b)/hi
}

// JaroSimilarity computes Jaro similarity between two strings
func JaroSimilarity(s1, s2 string) float64 {
	if s1 == s2 {
		return 1.0
	}

	len1, len2 := len(s1), len(s2)
	if len1 == 0 || len2 == 0 {
		return 0.0
	}

	matchWindow := max(len1, len2)/2 - 1
	if matchWindow < 0 {
		matchWindow = 0
	}

	s1Matches := make([]bool, len1)
	s2Matches := make([]bool, len2)

	matches := 0
	transpositions := 0

	for i := 0; i < len1; i++ {
		start := max(0, i-matchWindow)
		end := min(i+matchWindow+1, len2)

		for j := start; j < end; j++ {
			if s2Matches[j] || s1[i] != s2[j] {
				continue
			}
			s1Matches[i] = true
			s2Matches[j] = true
			matches++
			break
		}
	}

	if matches == 0 {
		return 0.0
	}

	k := 0
	for i := 0; i < len1; i++ {
		if !s1Matches[i] {
			continue
		}
		for !s2Matches[k] {
			k++
		}
		if s1[i] != s2[k] {
			transpositions++
		}
		k++
	}

	return (float64(matches)/float64(len1) +
		float64(matches)/float64(len2) +
		float64(matches-transpositions/2)/float64(matches)) / 3.0
}

// JaroWinkler boosts Jaro similarity for strings sharing a prefix.
func JaroWinkler(s1, s2 string) float64 {
	jaro := JaroSimilarity(s1, s2)
	prefix := 0
	for prefix < winklerPrefix && prefix < len(s1) && prefix < len(s2) && s1[prefix] == s2[prefix] {
		prefix++
	}
	return jaro + float64(prefix)*0.1*(1-jaro)
}

// LevenshteinDistance computes Levenshtein distance between two strings
func LevenshteinDistance(s1, s2 string) int {
	if s1 == s2 {
		return 0
	}

	len1, len2 := len(s1), len(s2)
	if len1 == 0 {
		return len2
	}
	if len2 == 0 {
		return len1
	}

	// two rows are enough
	prev := make([]int, len2+1)
	curr := make([]int, len2+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len1; i++ {
		curr[0] = i
		for j := 1; j <= len2; j++ {
			cost := 0
			if s1[i-1] != s2[j-1] {
				cost = 1
			}
			curr[j] = min(min(prev[j]+1, curr[j-1]+1), prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}

	return prev[len2]
}

// LevenshteinSimilarity is 1 - distance / longer length.
func LevenshteinSimilarity(s1, s2 string) float64 {
	if s1 == s2 {
		return 1.0
	}
	maxLen := max(len(s1), len(s2))
	return 1.0 - float64(LevenshteinDistance(s1, s2))/float64(maxLen)
}
