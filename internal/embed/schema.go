// Package embed turns normalized records into fixed-schema feature vectors
// and computes the blocking keys that bound candidate generation.
package embed

import (
	"fmt"
	"hash/fnv"
	"strings"
)

// Sentinel is stored in place of a missing numeric value. It is never fed to
// a distance: comparisons check the Missing bits first.
const Sentinel = -1.0

// Field names of the vector schema.
const (
	FieldName       = "name"
	FieldCapacity   = "capacity"
	FieldFuelType   = "fuel_type"
	FieldPrimeMover = "prime_mover"
	FieldState      = "state"
	FieldCity       = "city"
	FieldOwnerID    = "owner_id"
)

// Schema fixes the layout of every vector in one pass.
type Schema struct {
	// Numeric fields, each encoded as one scaled value.
	Numeric []string
	// Categorical fields, each hashed one-hot into HashBuckets slots.
	Categorical []string
	HashBuckets int

	// Required fields; a record missing any of them is low-confidence.
	Required []string

	Rules []BlockingRule
	// BucketsPerDoubling sets the width of capacity_bucket.
	BucketsPerDoubling int
	// BucketMargin is the fractional distance from a bucket edge within
	// which the neighbouring bucket is also emitted.
	BucketMargin float64
}

// NewSchema returns the default layout with the given blocking rules.
func NewSchema(rules []string) (Schema, error) {
	parsed, err := ParseBlockingRules(rules)
	if err != nil {
		return Schema{}, err
	}
	return Schema{
		Numeric:            []string{FieldCapacity},
		Categorical:        []string{FieldFuelType, FieldPrimeMover, FieldState},
		HashBuckets:        16,
		Required:           []string{FieldName, FieldState},
		Rules:              parsed,
		BucketsPerDoubling: 2,
		BucketMargin:       0.1,
	}, nil
}

// Width is the length of FeatureVector.Values.
func (s Schema) Width() int {
	return len(s.Numeric) + len(s.Categorical)*s.HashBuckets
}

// Fingerprint identifies the layout. Vectors with different fingerprints
// must not be compared.
func (s Schema) Fingerprint() string {
	h := fnv.New64a()
	fmt.Fprintf(h, "n=%s;c=%s;h=%d;",
		strings.Join(s.Numeric, ","), strings.Join(s.Categorical, ","), s.HashBuckets)
	for _, r := range s.Rules {
		fmt.Fprintf(h, "r=%s;", r)
	}
	fmt.Fprintf(h, "b=%d/%g", s.BucketsPerDoubling, s.BucketMargin)
	return fmt.Sprintf("%016x", h.Sum64())
}

func hashBucket(value string, buckets int) int {
	h := fnv.New32a()
	h.Write([]byte(value))
	return int(h.Sum32() % uint32(buckets))
}
