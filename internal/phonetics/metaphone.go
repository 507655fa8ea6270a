package phonetics

import (
	"strings"
)

// replacement rules are applied in order; earlier rules win on overlap.
var replacements = []struct{ pattern, code string }{
	{"SCH", "SK"},
	{"TCH", "X"},
	{"PH", "F"},
	{"GH", "F"},
	{"CK", "K"},
	{"QU", "KW"},
	{"TH", "0"}, // 0 stands for the theta sound
	{"SH", "X"},
	{"CH", "X"},
	{"WH", "W"},
	{"KN", "N"},
	{"WR", "R"},
	{"DG", "J"},
	{"Z", "S"},
	{"C", "K"},
	{"Q", "K"},
	{"V", "F"},
}

// codeLength is the number of characters kept per code.
const codeLength = 4

// Code returns a short phonetic key for a single token.
func Code(token string) string {
	text := strings.ToUpper(strings.TrimSpace(token))
	if text == "" {
		return ""
	}

	result := text
	for _, r := range replacements {
		result = strings.ReplaceAll(result, r.pattern, r.code)
	}

	// Vowels are dropped except at the start
	if len(result) > 1 {
		first := result[:1]
		rest := strings.Map(func(r rune) rune {
			switch r {
			case 'A', 'E', 'I', 'O', 'U', 'Y', 'H', 'W':
				return -1
			default:
				return r
			}
		}, result[1:])
		result = first + rest
	}

	var cleaned strings.Builder
	var lastChar rune
	for _, char := range result {
		if char != lastChar {
			cleaned.WriteRune(char)
			lastChar = char
		}
	}

	code := cleaned.String()
	if len(code) > codeLength {
		code = code[:codeLength]
	}
	return code
}

// Codes returns the codes of all tokens, skipping purely numeric tokens
// which carry no sound.
func Codes(tokens []string) []string {
	out := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if isNumeric(tok) {
			continue
		}
		if c := Code(tok); c != "" {
			out = append(out, c)
		}
	}
	return out
}

// Match checks if two tokens have the same code.
func Match(a, b string) bool {
	ca, cb := Code(a), Code(b)
	return ca != "" && ca == cb
}

// Overlap is the share of the shorter code list present in the other.
// Two empty lists are reported as 0 since neither side has anything to agree on.
func Overlap(codes1, codes2 []string) float64 {
	if len(codes1) == 0 || len(codes2) == 0 {
		return 0.0
	}
	seen := make(map[string]int, len(codes1))
	for _, c := range codes1 {
		seen[c]++
	}
	hits := 0
	for _, c := range codes2 {
		if seen[c] > 0 {
			seen[c]--
			hits++
		}
	}
	minLen := len(codes1)
	if len(codes2) < minLen {
		minLen = len(codes2)
	}
	return float64(hits) / float64(minLen)
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
