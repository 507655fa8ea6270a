package symspell

import "github.com/energy-linkage/internal/record"

// vocabularyFrequency outweighs any count a single run produces.
const vocabularyFrequency = 1 << 20

// energyVocabulary are words common in plant and utility names. They are
// never corrected and typos of them are corrected towards them.
var energyVocabulary = []string{
	"association", "authority", "battery", "center", "combined", "company",
	"cooperative", "county", "district", "electric", "electricity", "energy",
	"facility", "generating", "generation", "generator", "geothermal",
	"hydroelectric", "international", "municipal", "national", "nuclear",
	"peaking", "photovoltaic", "plant", "power", "project", "public",
	"renewable", "reservoir", "service", "services", "solar", "station",
	"storage", "turbine", "utilities", "utility", "valley", "water",
}

// VocabularyEntries returns the built-in vocabulary as dictionary entries.
func VocabularyEntries() []DictionaryEntry {
	entries := make([]DictionaryEntry, len(energyVocabulary))
	for i, word := range energyVocabulary {
		entries[i] = DictionaryEntry{Term: word, Frequency: vocabularyFrequency}
	}
	return entries
}

// TokenFrequencies counts, for each token, the records whose name holds it.
func TokenFrequencies(records []record.NormalizedRecord) map[string]int64 {
	freq := make(map[string]int64)
	for _, rec := range records {
		seen := make(map[string]bool, len(rec.Tokens))
		for _, tok := range rec.Tokens {
			if !seen[tok] {
				seen[tok] = true
				freq[tok]++
			}
		}
	}
	return freq
}

// BuildFromEntries builds a dictionary holding entries.
func BuildFromEntries(entries []DictionaryEntry, config *Config) *SymSpell {
	s := New(config)
	s.AddTerms(entries)
	return s
}
