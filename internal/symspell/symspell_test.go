package symspell

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/energy-linkage/internal/record"
)

func buildTestDictionary() *SymSpell {
	entries := []DictionaryEntry{
		{Term: "generating", Frequency: 5000},
		{Term: "station", Frequency: 4000},
		{Term: "hydroelectric", Frequency: 3000},
		{Term: "colstrip", Frequency: 40},
		{Term: "cholla", Frequency: 30},
		{Term: "navajo", Frequency: 20},
		{Term: "bonneville", Frequency: 10},
		{Term: "stations", Frequency: 5},
	}
	return BuildFromEntries(entries, &Config{MaxEditDistance: 2, MinTermLength: 3, MinFrequency: 1, Dominance: 1})
}

func TestSymSpellLookup(t *testing.T) {
	s := buildTestDictionary()

	tests := []struct {
		name         string
		input        string
		wantTerm     string
		wantDistance int
	}{
		{name: "exact match", input: "station", wantTerm: "station", wantDistance: 0},
		{name: "upper case input", input: "COLSTRIP", wantTerm: "colstrip", wantDistance: 0},
		{name: "missing letter", input: "generatng", wantTerm: "generating", wantDistance: 1},
		{name: "extra letter", input: "navvajo", wantTerm: "navajo", wantDistance: 1},
		{name: "substitution", input: "cholls", wantTerm: "cholla", wantDistance: 1},
		{name: "transposition", input: "hydroelcetric", wantTerm: "hydroelectric", wantDistance: 1},
		{name: "two edits", input: "bonevile", wantTerm: "bonneville", wantDistance: 2},
		{name: "frequency breaks distance tie", input: "statio", wantTerm: "station", wantDistance: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			best := s.LookupBest(tt.input, 2)
			require.NotNil(t, best)
			assert.Equal(t, tt.wantTerm, best.Term)
			assert.Equal(t, tt.wantDistance, best.Distance)
		})
	}
}

func TestSymSpellLookupNoMatch(t *testing.T) {
	s := buildTestDictionary()
	assert.Nil(t, s.LookupBest("xyzzyq", 2))
	assert.Nil(t, s.LookupBest("", 2))
	assert.Nil(t, s.LookupBest("bonevile", 1), "distance is capped by the request")
}

func TestSymSpellLookupOrdering(t *testing.T) {
	s := BuildFromEntries([]DictionaryEntry{
		{Term: "ridge", Frequency: 5},
		{Term: "rodge", Frequency: 5},
		{Term: "ridges", Frequency: 50},
	}, &Config{MaxEditDistance: 1, MinTermLength: 3})

	got := s.Lookup("redge", 1)
	require.Len(t, got, 2)
	assert.Equal(t, "ridge", got[0].Term, "equal distance and frequency order by term")
	assert.Equal(t, "rodge", got[1].Term)
}

func TestSymSpellAddTermAccumulates(t *testing.T) {
	s := New(&Config{MaxEditDistance: 1, MinTermLength: 3})
	s.AddTerm("solar", 2)
	s.AddTerm(" SOLAR ", 3)
	s.AddTerm("pv", 10)
	s.AddTerm("wind", 0)

	assert.Equal(t, int64(5), s.Frequency("solar"))
	assert.Equal(t, int64(0), s.Frequency("pv"), "short terms are ignored")
	assert.Equal(t, int64(0), s.Frequency("wind"), "non-positive counts are ignored")

	stats := s.Stats()
	assert.Equal(t, 1, stats.TermCount)
	assert.Equal(t, int64(5), stats.TotalFrequency)
	assert.Equal(t, int64(5), stats.MaxFrequency)
	assert.Equal(t, 5, stats.DeleteCount)
}

func TestEditDistance(t *testing.T) {
	tests := []struct {
		a, b string
		max  int
		want int
	}{
		{"station", "station", 2, 0},
		{"station", "statoin", 2, 1},
		{"station", "staton", 2, 1},
		{"station", "stations", 2, 1},
		{"station", "nation", 2, 2},
		{"station", "plant", 2, -1},
		{"", "ab", 2, 2},
		{"abcdef", "a", 2, -1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, editDistance(tt.a, tt.b, tt.max), "%s/%s", tt.a, tt.b)
	}
}

func normalized(names ...string) []record.NormalizedRecord {
	out := make([]record.NormalizedRecord, len(names))
	for i, name := range names {
		out[i] = record.NormalizedRecord{
			RawRecord:     record.RawRecord{Key: record.Key{Dataset: "eia860", Year: 2020, LocalID: string(rune('a' + i))}},
			CanonicalName: name,
			Tokens:        strings.Fields(name),
		}
	}
	return out
}

func TestCorrectorCorrectsRareTokens(t *testing.T) {
	records := normalized(
		"colstrip",
		"colstrip 3",
		"colstrip energy",
		"colstrp",
		"navajo generatng station",
	)
	c := NewCorrector(records, nil)

	results := c.Apply(false, records)
	require.Len(t, results, 2)

	assert.Equal(t, "colstrip", records[3].CanonicalName)
	assert.Equal(t, []string{"colstrip"}, records[3].Tokens)
	assert.Equal(t, map[string]string{"colstrp": "colstrip"}, results[0].Tokens)

	assert.Equal(t, "navajo generating station", records[4].CanonicalName)
	assert.Equal(t, "navajo generatng station", results[1].Original)
	assert.Equal(t, "navajo generating station", results[1].Corrected)
}

func TestCorrectorLeavesTrustedTokens(t *testing.T) {
	c := NewCorrector(normalized("cholla", "cholla", "cholla", "chola", "chola", "chola", "unit 12345"), nil)

	tests := []struct {
		name string
		tok  string
	}{
		{name: "frequent token", tok: "chola"},
		{name: "vocabulary word", tok: "station"},
		{name: "short token", tok: "pwr"},
		{name: "number", tok: "12345"},
		{name: "unknown token", tok: "zzzzzz"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := c.CorrectToken(tt.tok)
			assert.False(t, ok)
			assert.Equal(t, tt.tok, got)
		})
	}
}

func TestCorrectorNeedsDominance(t *testing.T) {
	// Both spellings are rare, so neither wins.
	records := normalized("bonneville", "bonnevile")
	c := NewCorrector(records, nil)
	assert.Empty(t, c.Apply(false, records))
	assert.Equal(t, "bonnevile", records[1].CanonicalName)
}

func TestCorrectorIsOrderIndependent(t *testing.T) {
	a := normalized("colstrip", "colstrip", "colstrip", "colstip")
	b := normalized("colstip", "colstrip", "colstrip", "colstrip")

	NewCorrector(a, nil).Apply(false, a)
	NewCorrector(b, nil).Apply(false, b)
	assert.Equal(t, "colstrip", a[3].CanonicalName)
	assert.Equal(t, "colstrip", b[0].CanonicalName)
}

func TestNilCorrector(t *testing.T) {
	var c *Corrector
	got, ok := c.CorrectToken("colstrp")
	assert.False(t, ok)
	assert.Equal(t, "colstrp", got)
}
