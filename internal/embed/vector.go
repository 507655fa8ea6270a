package embed

import (
	"math"

	"github.com/energy-linkage/internal/geo"
	"github.com/energy-linkage/internal/phonetics"
	"github.com/energy-linkage/internal/record"
)

// FeatureVector is the comparable form of one record. Values follows the
// schema layout; the string fields feed the pair comparator.
type FeatureVector struct {
	Key  record.Key
	Type record.EntityType

	Name   string
	Tokens []string
	Codes  []string // phonetic codes of Tokens

	Capacity float64 // Sentinel when missing
	Fuel     string
	Mover    string
	State    string
	City     string
	Owner    string

	Values  []float64
	Missing map[string]bool

	LowConfidence bool
	BlockingKeys  []string
	Schema        string // fingerprint
}

func (v *FeatureVector) missing(field string) bool {
	return v.Missing[field]
}

// IsMissing reports whether field had no usable value.
func (v *FeatureVector) IsMissing(field string) bool {
	return v.missing(field)
}

// Embedder encodes records against one schema.
type Embedder struct {
	schema Schema
	parser geo.Parser
}

// NewEmbedder creates an embedder. parser may be nil, in which case free-text
// addresses are ignored.
func NewEmbedder(schema Schema, parser geo.Parser) *Embedder {
	return &Embedder{schema: schema, parser: parser}
}

// Schema returns the embedder's layout.
func (e *Embedder) Schema() Schema {
	return e.schema
}

// Embed encodes records in order. No record is dropped: missing values get
// the sentinel and the vector is flagged low-confidence when a required
// field is absent.
func (e *Embedder) Embed(records []record.NormalizedRecord) []FeatureVector {
	out := make([]FeatureVector, len(records))
	fingerprint := e.schema.Fingerprint()
	for i := range records {
		out[i] = e.embedOne(&records[i])
		out[i].Schema = fingerprint
	}
	return out
}

func (e *Embedder) embedOne(r *record.NormalizedRecord) FeatureVector {
	city, state := geo.Fill(e.parser, r.CityName, r.StateCode, r.Address)

	v := FeatureVector{
		Key:      r.Key,
		Type:     r.Type,
		Name:     r.CanonicalName,
		Tokens:   r.Tokens,
		Codes:    phonetics.Codes(r.Tokens),
		Capacity: Sentinel,
		Fuel:     r.Fuel,
		Mover:    r.Mover,
		State:    state,
		City:     city,
		Owner:    r.Owner,
		Values:   make([]float64, e.schema.Width()),
		Missing:  make(map[string]bool),
	}

	if r.Capacity != nil && *r.Capacity >= 0 && !math.IsNaN(*r.Capacity) && !math.IsInf(*r.Capacity, 0) {
		v.Capacity = *r.Capacity
	} else {
		v.Missing[FieldCapacity] = true
	}
	if v.Name == "" {
		v.Missing[FieldName] = true
	}

	categorical := map[string]string{
		FieldFuelType:   v.Fuel,
		FieldPrimeMover: v.Mover,
		FieldState:      v.State,
		FieldCity:       v.City,
		FieldOwnerID:    v.Owner,
	}
	for field, val := range categorical {
		if val == "" {
			v.Missing[field] = true
		}
	}

	for i, field := range e.schema.Numeric {
		switch {
		case field == FieldCapacity && !v.Missing[FieldCapacity]:
			// log scale so that 500 vs 498 MW is a small step
			v.Values[i] = math.Log1p(v.Capacity)
		default:
			v.Values[i] = Sentinel
		}
	}
	for j, field := range e.schema.Categorical {
		val := categorical[field]
		if val == "" {
			continue
		}
		base := len(e.schema.Numeric) + j*e.schema.HashBuckets
		v.Values[base+hashBucket(val, e.schema.HashBuckets)] = 1
	}

	for _, field := range e.schema.Required {
		if v.Missing[field] {
			v.LowConfidence = true
			break
		}
	}

	v.BlockingKeys = e.schema.blockingKeys(&v)
	return v
}
