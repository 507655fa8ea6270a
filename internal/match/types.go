package match

import (
	"github.com/energy-linkage/internal/record"
)

// Pair is a candidate pair. A comes from the left side (first dataset or
// earlier year) and B from the right side. Left and Right index the vector
// slices the pair was generated from.
type Pair struct {
	A, B        record.Key
	Type        record.EntityType
	Left, Right int
}

func (p Pair) less(o Pair) bool {
	if p.A != o.A {
		return p.A.Less(o.A)
	}
	return p.B.Less(o.B)
}

// Feature indices of the distance vector. The order is part of the model
// file format: append new features, never reorder.
const (
	FeatJaroWinkler = iota
	FeatLevenshtein
	FeatJaccard
	FeatPhonetic
	FeatCapacity
	FeatFuel
	FeatPrimeMover
	FeatState
	FeatCity
	FeatOwner
	FeatSameLocalID
	FeatMissing
	NumFeatures
)

// FeatureNames are the model-file names of each feature.
var FeatureNames = [NumFeatures]string{
	"jaro_winkler",
	"levenshtein",
	"token_jaccard",
	"phonetic_overlap",
	"capacity_agreement",
	"fuel_type_agreement",
	"prime_mover_agreement",
	"state_agreement",
	"city_agreement",
	"owner_agreement",
	"same_local_id",
	"missing_count",
}

// FeatureIndex returns the index of a feature name, or -1.
func FeatureIndex(name string) int {
	for i, n := range FeatureNames {
		if n == name {
			return i
		}
	}
	return -1
}

// Features is the fixed-order distance vector of one pair.
type Features [NumFeatures]float64

// Map returns the features keyed by name, for provenance output.
func (f Features) Map() map[string]float64 {
	out := make(map[string]float64, NumFeatures)
	for i, v := range f {
		out[FeatureNames[i]] = v
	}
	return out
}

// Reason explains the decision taken for a scored pair.
type Reason string

const (
	ReasonAccepted       Reason = "accepted"
	ReasonBelowThreshold Reason = "below_threshold"
	ReasonAmbiguous      Reason = "ambiguous"
	ReasonSuperseded     Reason = "superseded"
	ReasonForced         Reason = "forced"
	ReasonVetoed         Reason = "vetoed"
	// ReasonConflict marks a pair accepted by its stage but refused while
	// clustering because it would join two records of one dataset.
	ReasonConflict Reason = "dataset_conflict"
)

// Score is a scored candidate pair with its decision.
type Score struct {
	Pair
	Features   Features
	Confidence float64
	Threshold  float64
	Accepted   bool
	Reason     Reason
}

// CapacityAgreement is the tie-break attribute: closer capacities rank first.
func (s Score) CapacityAgreement() float64 {
	return s.Features[FeatCapacity]
}

// Ambiguity records a record left unmatched because several candidates tied
// at the top.
type Ambiguity struct {
	Record     record.Key
	Candidates []record.Key
	Confidence float64
}
