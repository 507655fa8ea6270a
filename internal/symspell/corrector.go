package symspell

import (
	"strings"
	"unicode"

	"github.com/energy-linkage/internal/debug"
	"github.com/energy-linkage/internal/record"
)

// Corrector rewrites rare name tokens to a dominant nearby spelling.
// It is read-only after construction and safe for concurrent use.
type Corrector struct {
	spell  *SymSpell
	vocab  map[string]bool
	config *Config
}

// NewCorrector builds a corrector from the names of records plus the
// built-in vocabulary.
func NewCorrector(records []record.NormalizedRecord, config *Config) *Corrector {
	if config == nil {
		config = DefaultConfig()
	}
	c := &Corrector{
		spell:  New(config),
		vocab:  make(map[string]bool, len(energyVocabulary)),
		config: config,
	}
	for _, word := range energyVocabulary {
		c.vocab[word] = true
	}
	c.spell.AddTerms(VocabularyEntries())
	for tok, n := range TokenFrequencies(records) {
		if !hasDigit(tok) {
			c.spell.AddTerm(tok, n)
		}
	}
	return c
}

// Stats describes the dictionary.
func (c *Corrector) Stats() DictionaryStats {
	return c.spell.Stats()
}

// CorrectToken returns the replacement for tok and whether one applies.
// Numbers, short tokens, vocabulary words and tokens already seen
// MinFrequency times are left alone.
func (c *Corrector) CorrectToken(tok string) (string, bool) {
	if c == nil || len(tok) < c.config.MinTermLength || hasDigit(tok) || c.vocab[tok] {
		return tok, false
	}
	own := c.spell.Frequency(tok)
	if own >= c.config.MinFrequency {
		return tok, false
	}
	for _, s := range c.spell.Lookup(tok, c.config.MaxEditDistance) {
		if s.Distance == 0 {
			continue
		}
		if s.Frequency >= c.config.MinFrequency && s.Frequency >= c.config.Dominance*max(own, 1) {
			return s.Term, true
		}
		// Suggestions are frequency ordered within a distance.
		break
	}
	return tok, false
}

// CorrectTokens returns tokens with each correctable token replaced, and
// the replacements made.
func (c *Corrector) CorrectTokens(tokens []string) ([]string, map[string]string) {
	var out []string
	var changed map[string]string
	for i, tok := range tokens {
		repl, ok := c.CorrectToken(tok)
		if !ok {
			continue
		}
		if out == nil {
			out = append([]string(nil), tokens...)
			changed = make(map[string]string)
		}
		out[i] = repl
		changed[tok] = repl
	}
	if out == nil {
		return tokens, nil
	}
	return out, changed
}

// Apply corrects the tokens and canonical name of each record in place and
// returns one result per changed record, in record order.
func (c *Corrector) Apply(localDebug bool, records []record.NormalizedRecord) []CorrectionResult {
	debug.DebugHeader(localDebug)
	defer debug.DebugFooter(localDebug)

	var results []CorrectionResult
	for i := range records {
		tokens, changed := c.CorrectTokens(records[i].Tokens)
		if changed == nil {
			continue
		}
		corrected := strings.Join(tokens, " ")
		debug.DebugOutput(localDebug, "%s: %q -> %q", records[i].Key, records[i].CanonicalName, corrected)
		results = append(results, CorrectionResult{
			Original:  records[i].CanonicalName,
			Corrected: corrected,
			Tokens:    changed,
		})
		records[i].Tokens = tokens
		records[i].CanonicalName = corrected
	}
	return results
}

func hasDigit(s string) bool {
	return strings.IndexFunc(s, unicode.IsDigit) >= 0
}
