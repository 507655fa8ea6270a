package symspell

import (
	"sort"
	"strings"
)

// SymSpell indexes every deletion of every dictionary term within the
// maximum edit distance, so a lookup only generates deletions of the input.
type SymSpell struct {
	dictionary map[string]int64
	deletes    map[string][]string
	config     *Config
}

// New creates an empty dictionary.
func New(config *Config) *SymSpell {
	if config == nil {
		config = DefaultConfig()
	}
	return &SymSpell{
		dictionary: make(map[string]int64),
		deletes:    make(map[string][]string),
		config:     config,
	}
}

// AddTerm adds frequency occurrences of term. Terms shorter than
// MinTermLength are ignored.
func (s *SymSpell) AddTerm(term string, frequency int64) {
	term = strings.ToLower(strings.TrimSpace(term))
	if len(term) < s.config.MinTermLength || frequency <= 0 {
		return
	}
	if _, ok := s.dictionary[term]; !ok {
		for _, del := range generateDeletes(term, s.config.MaxEditDistance) {
			s.deletes[del] = append(s.deletes[del], term)
		}
	}
	s.dictionary[term] += frequency
}

// AddTerms adds each entry.
func (s *SymSpell) AddTerms(entries []DictionaryEntry) {
	for _, entry := range entries {
		s.AddTerm(entry.Term, entry.Frequency)
	}
}

// Frequency returns how often term was added.
func (s *SymSpell) Frequency(term string) int64 {
	return s.dictionary[strings.ToLower(strings.TrimSpace(term))]
}

// Lookup returns the terms within maxDistance of input ordered by distance,
// then frequency descending, then term.
func (s *SymSpell) Lookup(input string, maxDistance int) []Suggestion {
	input = strings.ToLower(strings.TrimSpace(input))
	if input == "" {
		return nil
	}
	maxDistance = min(maxDistance, s.config.MaxEditDistance)

	seen := make(map[string]bool)
	var candidates []Suggestion
	consider := func(term string) {
		if seen[term] {
			return
		}
		seen[term] = true
		if dist := editDistance(input, term, maxDistance); dist >= 0 {
			candidates = append(candidates, Suggestion{Term: term, Distance: dist, Frequency: s.dictionary[term]})
		}
	}

	variants := append(generateDeletes(input, maxDistance), input)
	for _, del := range variants {
		for _, term := range s.deletes[del] {
			consider(term)
		}
		if _, ok := s.dictionary[del]; ok {
			consider(del)
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Distance != b.Distance {
			return a.Distance < b.Distance
		}
		if a.Frequency != b.Frequency {
			return a.Frequency > b.Frequency
		}
		return a.Term < b.Term
	})
	return candidates
}

// LookupBest returns the first suggestion of Lookup, or nil.
func (s *SymSpell) LookupBest(input string, maxDistance int) *Suggestion {
	suggestions := s.Lookup(input, maxDistance)
	if len(suggestions) == 0 {
		return nil
	}
	return &suggestions[0]
}

// Stats summarizes the dictionary.
func (s *SymSpell) Stats() DictionaryStats {
	stats := DictionaryStats{
		TermCount:   len(s.dictionary),
		DeleteCount: len(s.deletes),
	}
	for _, freq := range s.dictionary {
		stats.TotalFrequency += freq
		stats.MaxFrequency = max(stats.MaxFrequency, freq)
	}
	return stats
}

func generateDeletes(term string, maxDistance int) []string {
	if maxDistance <= 0 || term == "" {
		return nil
	}
	deletes := make(map[string]bool)
	collectDeletes(term, maxDistance, deletes)

	out := make([]string, 0, len(deletes))
	for del := range deletes {
		out = append(out, del)
	}
	return out
}

func collectDeletes(term string, distance int, deletes map[string]bool) {
	if distance <= 0 || len(term) <= 1 {
		return
	}
	for i := 0; i < len(term); i++ {
		del := term[:i] + term[i+1:]
		if !deletes[del] {
			deletes[del] = true
			collectDeletes(del, distance-1, deletes)
		}
	}
}

// editDistance is the optimal string alignment distance between a and b, or
// -1 once it must exceed maxDistance.
func editDistance(a, b string, maxDistance int) int {
	if len(a) > len(b) {
		a, b = b, a
	}
	if len(b)-len(a) > maxDistance {
		return -1
	}
	if a == "" {
		return len(b)
	}

	n := len(a)
	prevPrev := make([]int, n+1)
	prev := make([]int, n+1)
	curr := make([]int, n+1)
	for i := range prev {
		prev[i] = i
	}

	for j := 1; j <= len(b); j++ {
		curr[0] = j
		rowMin := j
		for i := 1; i <= n; i++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[i] = min(prev[i]+1, curr[i-1]+1, prev[i-1]+cost)
			if i > 1 && j > 1 && a[i-1] == b[j-2] && a[i-2] == b[j-1] {
				curr[i] = min(curr[i], prevPrev[i-2]+1)
			}
			rowMin = min(rowMin, curr[i])
		}
		if rowMin > maxDistance {
			return -1
		}
		prevPrev, prev, curr = prev, curr, prevPrev
	}

	if prev[n] > maxDistance {
		return -1
	}
	return prev[n]
}
