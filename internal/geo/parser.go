// Package geo extracts city and state from free-text plant locations so that
// records lacking explicit location columns can still be blocked by place.
package geo

import (
	"regexp"
	"strings"

	"github.com/energy-linkage/internal/normalize"
)

// Location is the part of an address used for blocking.
type Location struct {
	City     string
	State    string // two-letter code
	Postcode string
}

// Parser turns a free-text address into a Location. Implementations must be
// safe for concurrent use.
type Parser interface {
	Parse(address string) Location
}

// newDefault is replaced by the libpostal build.
var newDefault = func() Parser { return RegexParser{} }

// Default returns the libpostal parser when built with -tags libpostal and the
// regex parser otherwise.
func Default() Parser {
	return newDefault()
}

var (
	zipPattern = regexp.MustCompile(`\b(\d{5})(?:-\d{4})?\s*$`)
	// A bare trailing pair like "Ct" is a street suffix unless a comma
	// precedes it or a ZIP followed it.
	stateCommaPattern = regexp.MustCompile(`^(.*?)\s*,\s*([A-Za-z]{2})\.?$`)
	stateSpacePattern = regexp.MustCompile(`^(.*?)\s+([A-Za-z]{2})\.?$`)
)

// RegexParser understands US "street, city, ST 12345" forms.
type RegexParser struct{}

// Parse implements Parser.
func (RegexParser) Parse(address string) Location {
	var loc Location
	rest := strings.TrimSpace(address)
	if rest == "" {
		return loc
	}

	if m := zipPattern.FindStringSubmatchIndex(rest); m != nil {
		loc.Postcode = rest[m[2]:m[3]]
		rest = strings.TrimSpace(rest[:m[0]])
	}
	rest = strings.TrimRight(rest, ", ")

	tail := stateCommaPattern
	if loc.Postcode != "" && !stateCommaPattern.MatchString(rest) {
		tail = stateSpacePattern
	}
	if m := tail.FindStringSubmatch(rest); m != nil {
		if code := normalize.State(m[2]); code != "" {
			loc.State = code
			rest = m[1]
		}
	}
	if loc.State == "" {
		// "Springfield, Illinois"
		parts := strings.Split(rest, ",")
		if len(parts) > 1 {
			if code := normalize.State(parts[len(parts)-1]); code != "" {
				loc.State = code
				rest = strings.Join(parts[:len(parts)-1], ",")
			}
		}
	}

	// The city is the last comma-separated part left, when there is more
	// than one part or a state was found.
	parts := strings.Split(rest, ",")
	if len(parts) > 1 || loc.State != "" {
		loc.City = normalize.Field(parts[len(parts)-1])
	}
	return loc
}

// Fill returns city and state for a record, parsing address only for the
// values that were not reported explicitly.
func Fill(p Parser, city, state, address string) (string, string) {
	if p == nil || (city != "" && state != "") || strings.TrimSpace(address) == "" {
		return city, state
	}
	loc := p.Parse(address)
	if city == "" {
		city = loc.City
	}
	if state == "" {
		state = loc.State
	}
	return city, state
}
