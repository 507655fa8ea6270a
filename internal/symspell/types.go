// Package symspell corrects misspelled name tokens with the symmetric delete
// algorithm. The dictionary is built from the token frequencies of the names
// being linked, so a rare token is corrected towards a common spelling that
// is at most a small edit distance away.
package symspell

// Config holds correction parameters.
type Config struct {
	// MaxEditDistance is the largest Damerau-Levenshtein distance corrected.
	MaxEditDistance int

	// MinTermLength is the shortest token considered for correction. Short
	// tokens are usually initials or abbreviations.
	MinTermLength int

	// MinFrequency is how often a spelling must occur before other tokens
	// are corrected towards it. Tokens seen this often are never corrected.
	MinFrequency int64

	// Dominance is how many times more frequent the replacement must be
	// than the token it replaces.
	Dominance int64
}

// DefaultConfig returns conservative settings for entity names.
func DefaultConfig() *Config {
	return &Config{
		MaxEditDistance: 1,
		MinTermLength:   5,
		MinFrequency:    3,
		Dominance:       3,
	}
}

// Suggestion is one dictionary term near a looked-up token.
type Suggestion struct {
	Term      string
	Distance  int
	Frequency int64
}

// CorrectionResult records one corrected name.
type CorrectionResult struct {
	Original  string `json:"original"`
	Corrected string `json:"corrected"`

	// Tokens maps each replaced token to its replacement.
	Tokens map[string]string `json:"tokens"`
}

// DictionaryEntry is a term with its frequency.
type DictionaryEntry struct {
	Term      string
	Frequency int64
}

// DictionaryStats describes a built dictionary.
type DictionaryStats struct {
	TermCount      int
	DeleteCount    int
	TotalFrequency int64
	MaxFrequency   int64
}
