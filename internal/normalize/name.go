package normalize

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/energy-linkage/internal/debug"
	"github.com/energy-linkage/internal/record"
)

// commonSynonyms are abbreviations seen in utility and plant names across
// the regulatory and operational datasets.
var commonSynonyms = map[string]string{
	"assn":  "association",
	"assoc": "association",
	"auth":  "authority",
	"co":    "company",
	"coop":  "cooperative",
	"corp":  "corporation",
	"cty":   "county",
	"dept":  "department",
	"dist":  "district",
	"elec":  "electric",
	"inc":   "incorporated",
	"intl":  "international",
	"ltd":   "limited",
	"mun":   "municipal",
	"muni":  "municipal",
	"natl":  "national",
	"pub":   "public",
	"pwr":   "power",
	"svc":   "service",
	"svcs":  "services",
	"util":  "utility",
	"utils": "utilities",
	"mtn":   "mountain",
	"mt":    "mount",
	"ft":    "fort",
}

// plantSynonyms apply only to plant, unit and generator names.
var plantSynonyms = map[string]string{
	"stn":   "station",
	"sta":   "station",
	"gen":   "generating",
	"gs":    "generating station",
	"ctr":   "center",
	"cntr":  "center",
	"hydro": "hydroelectric",
	"proj":  "project",
	"fac":   "facility",
	"u":     "unit",
}

// legalSuffixes are dropped from the end of names (anywhere for utilities).
// Values are post-expansion forms.
var legalSuffixes = map[string]bool{
	"incorporated": true,
	"corporation":  true,
	"company":      true,
	"limited":      true,
	"llc":          true,
	"llp":          true,
	"lp":           true,
	"plc":          true,
}

// Normalizer canonicalizes entity names. It is safe for concurrent use:
// its tables are read-only after construction.
type Normalizer struct {
	common map[string][]string
	plant  map[string][]string
}

// New builds a normalizer from the default abbreviation tables overlaid with
// extra (the configured name_synonym_table). Keys and values of extra are
// folded the same way names are. A table whose expansion would never settle
// is rejected.
func New(extra map[string]string) (*Normalizer, error) {
	common := make(map[string]string, len(commonSynonyms)+len(extra))
	for k, v := range commonSynonyms {
		common[k] = v
	}
	// plant falls back to common, and extra wins over both.
	plant := make(map[string]string, len(commonSynonyms)+len(plantSynonyms)+len(extra))
	for k, v := range commonSynonyms {
		plant[k] = v
	}
	for k, v := range plantSynonyms {
		plant[k] = v
	}
	for k, v := range extra {
		if key := strings.Join(tokenize(fold(k)), " "); key != "" {
			k = key
		}
		common[k] = v
		plant[k] = v
	}

	n := &Normalizer{}
	var err error
	if n.common, err = compileTable(common); err != nil {
		return nil, err
	}
	if n.plant, err = compileTable(plant); err != nil {
		return nil, err
	}
	return n, nil
}

// Default returns a normalizer with only the built-in tables.
func Default() *Normalizer {
	n, err := New(nil)
	if err != nil {
		panic(err)
	}
	return n
}

func compileTable(table map[string]string) (map[string][]string, error) {
	out := make(map[string][]string, len(table))
	for k, v := range table {
		key := strings.Join(tokenize(fold(k)), " ")
		if key == "" || strings.Contains(key, " ") {
			return nil, fmt.Errorf("synonym key %q must be a single token", k)
		}
		value := tokenize(fold(v))
		if len(value) == 0 {
			return nil, fmt.Errorf("synonym %q has an empty expansion", k)
		}
		if len(value) == 1 && value[0] == key {
			continue
		}
		out[key] = value
	}
	if err := checkSettles(out); err != nil {
		return nil, err
	}
	return out, nil
}

// checkSettles rejects tables containing an expansion cycle (a -> b -> a),
// which would break idempotence.
func checkSettles(table map[string][]string) error {
	keys := make([]string, 0, len(table))
	for k := range table {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	const (
		unvisited = iota
		active
		done
	)
	state := make(map[string]int, len(table))
	var visit func(string) error
	visit = func(tok string) error {
		switch state[tok] {
		case active:
			return fmt.Errorf("synonym table has a cycle through %q", tok)
		case done:
			return nil
		}
		state[tok] = active
		for _, next := range table[tok] {
			if _, ok := table[next]; ok {
				if err := visit(next); err != nil {
					return err
				}
			}
		}
		state[tok] = done
		return nil
	}
	for _, k := range keys {
		if err := visit(k); err != nil {
			return err
		}
	}
	return nil
}

// Name returns the canonical form of raw for entity type t.
// The result is lower-case ASCII tokens separated by single spaces, and
// Name(Name(x, t), t) == Name(x, t).
func (n *Normalizer) Name(raw string, t record.EntityType) string {
	return n.NameDebug(false, raw, t)
}

// NameDebug is Name with optional tracing.
func (n *Normalizer) NameDebug(localDebug bool, raw string, t record.EntityType) string {
	debug.DebugHeader(localDebug)
	defer debug.DebugFooter(localDebug)

	tokens := tokenize(fold(raw))
	debug.DebugOutput(localDebug, "Folded tokens: %v", tokens)
	if len(tokens) == 0 {
		return ""
	}

	table := n.plant
	if t == record.EntityUtility {
		table = n.common
	}
	tokens = expand(tokens, table)
	debug.DebugOutput(localDebug, "After synonym expansion: %v", tokens)

	tokens = trimFillers(tokens, t == record.EntityUtility)
	canonical := strings.Join(tokens, " ")
	debug.DebugOutput(localDebug, "Canonical: %s", canonical)
	return canonical
}

// Tokens splits a canonical name into its tokens.
func Tokens(canonical string) []string {
	return strings.Fields(canonical)
}

// IsBlank reports whether raw has no usable name content.
func IsBlank(raw string) bool {
	return len(tokenize(fold(raw))) == 0
}

func expand(tokens []string, table map[string][]string) []string {
	// Tables are acyclic (checkSettles), so this terminates.
	for {
		changed := false
		out := make([]string, 0, len(tokens))
		for _, tok := range tokens {
			if repl, ok := table[tok]; ok {
				out = append(out, repl...)
				changed = true
				continue
			}
			out = append(out, tok)
		}
		tokens = out
		if !changed {
			return tokens
		}
	}
}

// trimFillers drops legal suffixes and a leading or trailing "the" until
// nothing changes. A single remaining token is always kept.
func trimFillers(tokens []string, anywhere bool) []string {
	if anywhere && len(tokens) > 1 {
		kept := make([]string, 0, len(tokens))
		for _, tok := range tokens {
			if !legalSuffixes[tok] {
				kept = append(kept, tok)
			}
		}
		if len(kept) > 0 {
			tokens = kept
		} else {
			tokens = tokens[:1]
		}
	}
	for len(tokens) > 1 {
		last := tokens[len(tokens)-1]
		switch {
		case legalSuffixes[last] || last == "the":
			tokens = tokens[:len(tokens)-1]
		case tokens[0] == "the":
			tokens = tokens[1:]
		default:
			return tokens
		}
	}
	return tokens
}

// newFolder returns a fresh diacritic-stripping transformer; transformers
// carry state and are not shared between goroutines.
func newFolder() transform.Transformer {
	return transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
}

// fold strips diacritics and lower-cases. Characters with no ASCII form are
// dropped; "&" becomes "and"; apostrophes join their neighbours; any other
// punctuation becomes a separator.
func fold(s string) string {
	folded, _, err := transform.String(newFolder(), s)
	if err != nil {
		folded = s
	}

	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(unicode.ToLower(r))
		case r == '&':
			b.WriteString(" and ")
		case r == '\'' || r == '’' || r == '`':
			// O'Brien -> obrien
		case r < unicode.MaxASCII:
			b.WriteByte(' ')
		case unicode.IsSpace(r) || unicode.IsPunct(r) || unicode.IsSymbol(r):
			b.WriteByte(' ')
		}
	}
	return b.String()
}

func tokenize(s string) []string {
	return strings.Fields(s)
}
