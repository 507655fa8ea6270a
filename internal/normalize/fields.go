package normalize

import (
	"strings"

	"github.com/energy-linkage/internal/record"
)

var stateCodes = map[string]string{
	"alabama": "AL", "alaska": "AK", "arizona": "AZ", "arkansas": "AR",
	"california": "CA", "colorado": "CO", "connecticut": "CT", "delaware": "DE",
	"district of columbia": "DC", "florida": "FL", "georgia": "GA", "hawaii": "HI",
	"idaho": "ID", "illinois": "IL", "indiana": "IN", "iowa": "IA",
	"kansas": "KS", "kentucky": "KY", "louisiana": "LA", "maine": "ME",
	"maryland": "MD", "massachusetts": "MA", "michigan": "MI", "minnesota": "MN",
	"mississippi": "MS", "missouri": "MO", "montana": "MT", "nebraska": "NE",
	"nevada": "NV", "new hampshire": "NH", "new jersey": "NJ", "new mexico": "NM",
	"new york": "NY", "north carolina": "NC", "north dakota": "ND", "ohio": "OH",
	"oklahoma": "OK", "oregon": "OR", "pennsylvania": "PA", "puerto rico": "PR",
	"rhode island": "RI", "south carolina": "SC", "south dakota": "SD", "tennessee": "TN",
	"texas": "TX", "utah": "UT", "vermont": "VT", "virginia": "VA",
	"washington": "WA", "west virginia": "WV", "wisconsin": "WI", "wyoming": "WY",
}

var validStateCodes = func() map[string]bool {
	out := make(map[string]bool, len(stateCodes))
	for _, code := range stateCodes {
		out[code] = true
	}
	return out
}()

// State returns the two-letter postal code for a state name or code, or ""
// when the value is not recognised.
func State(raw string) string {
	s := strings.Join(tokenize(fold(raw)), " ")
	if s == "" {
		return ""
	}
	if code, ok := stateCodes[s]; ok {
		return code
	}
	if code := strings.ToUpper(s); len(code) == 2 && validStateCodes[code] {
		return code
	}
	return ""
}

// Category cleans a categorical code such as a fuel type or prime mover:
// "Natural Gas" -> "natural_gas". Blank input stays blank.
func Category(raw string) string {
	return strings.Join(tokenize(fold(raw)), "_")
}

// Field cleans free text (cities, owner ids) to lower-case single-spaced
// ASCII.
func Field(raw string) string {
	return strings.Join(tokenize(fold(raw)), " ")
}

// Jaccard is |A ∩ B| / |A ∪ B| over distinct tokens.
func Jaccard(tokens1, tokens2 []string) float64 {
	if len(tokens1) == 0 && len(tokens2) == 0 {
		return 0.0
	}
	set1 := make(map[string]bool, len(tokens1))
	for _, t := range tokens1 {
		set1[t] = true
	}
	set2 := make(map[string]bool, len(tokens2))
	for _, t := range tokens2 {
		set2[t] = true
	}
	inter := 0
	for t := range set2 {
		if set1[t] {
			inter++
		}
	}
	union := len(set1) + len(set2) - inter
	return float64(inter) / float64(union)
}

// Record normalizes every comparable field of r. The raw values stay
// available through the embedded RawRecord.
func (n *Normalizer) Record(r record.RawRecord) record.NormalizedRecord {
	if r.Type == "" {
		r.Type = record.EntityPlant
	}
	canonical := n.Name(r.Name, r.Type)
	return record.NormalizedRecord{
		RawRecord:     r,
		CanonicalName: canonical,
		Tokens:        Tokens(canonical),
		Fuel:          Category(r.FuelType),
		Mover:         Category(r.PrimeMover),
		StateCode:     State(r.State),
		CityName:      Field(r.City),
		Owner:         strings.ToLower(strings.TrimSpace(r.OwnerID)),
	}
}

// Records normalizes records in order.
func (n *Normalizer) Records(records []record.RawRecord) []record.NormalizedRecord {
	out := make([]record.NormalizedRecord, len(records))
	for i, r := range records {
		out[i] = n.Record(r)
	}
	return out
}
