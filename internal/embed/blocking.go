package embed

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Attribute is one record attribute a blocking rule can use.
type Attribute string

const (
	AttrState          Attribute = "state"
	AttrCity           Attribute = "city"
	AttrCapacityBucket Attribute = "capacity_bucket"
	AttrFuelType       Attribute = "fuel_type"
	AttrPrimeMover     Attribute = "prime_mover"
	AttrNamePrefix     Attribute = "name_prefix"
	AttrNameToken      Attribute = "name_token"
	AttrOwnerID        Attribute = "owner_id"
	AttrLocalID        Attribute = "local_id"
)

var knownAttributes = map[Attribute]bool{
	AttrState: true, AttrCity: true, AttrCapacityBucket: true, AttrFuelType: true,
	AttrPrimeMover: true, AttrNamePrefix: true, AttrNameToken: true, AttrOwnerID: true,
	AttrLocalID: true,
}

// DefaultBlockingRules pair records in the same state and capacity range,
// sharing a distinctive name token, or carrying the same local id.
var DefaultBlockingRules = []string{"state+capacity_bucket", "name_token", "local_id"}

// BlockingRule is a conjunction of attributes. A record gets a key for the
// rule only when every attribute has a value.
type BlockingRule []Attribute

// ParseBlockingRule parses "state+capacity_bucket".
func ParseBlockingRule(s string) (BlockingRule, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty blocking rule")
	}
	var rule BlockingRule
	seen := make(map[Attribute]bool)
	for _, part := range strings.Split(s, "+") {
		attr := Attribute(strings.ToLower(strings.TrimSpace(part)))
		if !knownAttributes[attr] {
			return nil, fmt.Errorf("unknown blocking attribute %q in rule %q", part, s)
		}
		if seen[attr] {
			continue
		}
		seen[attr] = true
		rule = append(rule, attr)
	}
	return rule, nil
}

// ParseBlockingRules parses every rule, failing on the first bad one.
func ParseBlockingRules(rules []string) ([]BlockingRule, error) {
	if len(rules) == 0 {
		return nil, fmt.Errorf("at least one blocking rule is required")
	}
	out := make([]BlockingRule, 0, len(rules))
	for _, r := range rules {
		rule, err := ParseBlockingRule(r)
		if err != nil {
			return nil, err
		}
		out = append(out, rule)
	}
	return out, nil
}

// ValidateBlockingRules reports the first unknown attribute or empty rule.
func ValidateBlockingRules(rules []string) error {
	_, err := ParseBlockingRules(rules)
	return err
}

func (r BlockingRule) String() string {
	parts := make([]string, len(r))
	for i, a := range r {
		parts[i] = string(a)
	}
	return strings.Join(parts, "+")
}

// nameStopTokens are too common to block on.
var nameStopTokens = map[string]bool{
	"and": true, "of": true, "the": true, "power": true, "plant": true,
	"station": true, "generating": true, "energy": true, "electric": true,
	"unit": true, "center": true, "project": true, "facility": true,
	"company": true, "county": true, "city": true,
}

// namePrefixLen is the number of leading characters used by name_prefix.
const namePrefixLen = 4

// capacityBucket places a capacity on a log2 scale with BucketsPerDoubling
// buckets per doubling. near reports the neighbouring bucket when the value
// sits within margin of a boundary, or -1.
func capacityBucket(capacity float64, perDoubling int, margin float64) (bucket, near int) {
	pos := math.Log2(1+capacity) * float64(perDoubling)
	bucket = int(math.Floor(pos))
	frac := pos - float64(bucket)
	near = -1
	switch {
	case frac < margin && bucket > 0:
		near = bucket - 1
	case frac > 1-margin:
		near = bucket + 1
	}
	return bucket, near
}

// values returns the blocking values of one attribute for v; empty when the
// attribute is missing.
func (s Schema) values(attr Attribute, v *FeatureVector) []string {
	switch attr {
	case AttrState:
		return single(v.State)
	case AttrCity:
		return single(v.City)
	case AttrFuelType:
		return single(v.Fuel)
	case AttrPrimeMover:
		return single(v.Mover)
	case AttrOwnerID:
		return single(v.Owner)
	case AttrLocalID:
		return single(strings.ToLower(strings.TrimSpace(v.Key.LocalID)))
	case AttrNamePrefix:
		compact := strings.ReplaceAll(v.Name, " ", "")
		if compact == "" {
			return nil
		}
		if len(compact) > namePrefixLen {
			compact = compact[:namePrefixLen]
		}
		return []string{compact}
	case AttrNameToken:
		var out []string
		seen := make(map[string]bool)
		for _, tok := range v.Tokens {
			if len(tok) < 3 || nameStopTokens[tok] || seen[tok] {
				continue
			}
			seen[tok] = true
			out = append(out, tok)
		}
		return out
	case AttrCapacityBucket:
		if v.missing(FieldCapacity) {
			return nil
		}
		b, near := capacityBucket(v.Capacity, s.BucketsPerDoubling, s.BucketMargin)
		out := []string{fmt.Sprint(b)}
		if near >= 0 {
			out = append(out, fmt.Sprint(near))
		}
		return out
	}
	return nil
}

func single(s string) []string {
	if s == "" {
		return nil
	}
	return []string{s}
}

// blockingKeys computes the sorted, distinct keys of v. Every key starts with
// the entity type so sub-types never share a block.
func (s Schema) blockingKeys(v *FeatureVector) []string {
	var keys []string
	for _, rule := range s.Rules {
		combos := []string{string(v.Type) + "|" + rule.String()}
		for _, attr := range rule {
			vals := s.values(attr, v)
			if len(vals) == 0 {
				combos = nil
				break
			}
			next := make([]string, 0, len(combos)*len(vals))
			for _, c := range combos {
				for _, val := range vals {
					next = append(next, c+"|"+val)
				}
			}
			combos = next
		}
		keys = append(keys, combos...)
	}
	sort.Strings(keys)
	return dedupe(keys)
}

func dedupe(sorted []string) []string {
	if len(sorted) == 0 {
		return sorted
	}
	out := sorted[:1]
	for _, k := range sorted[1:] {
		if k != out[len(out)-1] {
			out = append(out, k)
		}
	}
	return out
}
