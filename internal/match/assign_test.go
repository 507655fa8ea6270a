package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/energy-linkage/internal/record"
)

func reasons(a Assignment) []Reason {
	out := make([]Reason, len(a.Scores))
	for i, s := range a.Scores {
		out[i] = s.Reason
	}
	return out
}

func TestAssignOneToOne(t *testing.T) {
	a1, a2 := key("a", "1", 2020), key("a", "2", 2020)
	b1, b2 := key("b", "1", 2020), key("b", "2", 2020)

	got := Assign(false, []Score{
		score(a1, b1, 0.95, 0),
		score(a2, b1, 0.90, 0),
		score(a2, b2, 0.85, 0),
		score(a1, b2, 0.40, 0),
	}, AssignOptions{Threshold: 0.8})

	assert.Equal(t, []Reason{ReasonAccepted, ReasonSuperseded, ReasonAccepted, ReasonBelowThreshold}, reasons(got))
	require.Len(t, got.Accepted, 2)
	assert.Empty(t, got.Ambiguities)

	used := make(map[record.Key]bool)
	for _, s := range got.Accepted {
		assert.False(t, used[s.A])
		assert.False(t, used[s.B])
		used[s.A], used[s.B] = true, true
	}
}

func TestAssignTieIsAmbiguous(t *testing.T) {
	a1 := key("a", "1", 2020)
	b1, b2 := key("b", "1", 2020), key("b", "2", 2020)

	got := Assign(false, []Score{
		score(a1, b1, 0.93, 0.9),
		score(a1, b2, 0.93, 0.9),
	}, AssignOptions{Threshold: 0.8})

	assert.Empty(t, got.Accepted)
	assert.Equal(t, []Reason{ReasonAmbiguous, ReasonAmbiguous}, reasons(got))
	require.Len(t, got.Ambiguities, 1)
	assert.Equal(t, a1, got.Ambiguities[0].Record)
	assert.Equal(t, []record.Key{b1, b2}, got.Ambiguities[0].Candidates)
	assert.Equal(t, 0.93, got.Ambiguities[0].Confidence)
}

func TestAssignTieBrokenByCapacity(t *testing.T) {
	a1 := key("a", "1", 2020)
	b1, b2 := key("b", "1", 2020), key("b", "2", 2020)

	got := Assign(false, []Score{
		score(a1, b1, 0.93, 0.2),
		score(a1, b2, 0.93, 0.99),
	}, AssignOptions{Threshold: 0.8})

	require.Len(t, got.Accepted, 1)
	assert.Equal(t, b2, got.Accepted[0].B)
	assert.Equal(t, []Reason{ReasonSuperseded, ReasonAccepted}, reasons(got))
}

func TestAssignAmbiguousRecordStaysUnmatched(t *testing.T) {
	a1, a2 := key("a", "1", 2020), key("a", "2", 2020)
	b1, b2 := key("b", "1", 2020), key("b", "2", 2020)

	got := Assign(false, []Score{
		score(a1, b1, 0.93, 0),
		score(a1, b2, 0.93, 0),
		score(a1, b2, 0.85, 0),
		score(a2, b1, 0.85, 0),
	}, AssignOptions{Threshold: 0.8})

	assert.Equal(t, []Reason{ReasonAmbiguous, ReasonAmbiguous, ReasonAmbiguous, ReasonAccepted}, reasons(got))
	require.Len(t, got.Accepted, 1)
	assert.Equal(t, a2, got.Accepted[0].A)
}

func TestAssignTypeThresholds(t *testing.T) {
	a1, b1 := key("a", "1", 2020), key("b", "1", 2020)
	s := score(a1, b1, 0.7, 0)
	s.Type = record.EntityUtility

	got := Assign(false, []Score{s}, AssignOptions{
		Threshold:      0.8,
		TypeThresholds: map[record.EntityType]float64{record.EntityUtility: 0.6},
	})
	assert.Equal(t, []Reason{ReasonAccepted}, reasons(got))
	assert.Equal(t, 0.6, got.Scores[0].Threshold)
}

func TestAssignOverrides(t *testing.T) {
	a1, a2 := key("a", "1", 2020), key("a", "2", 2020)
	b1, b2 := key("b", "1", 2020), key("b", "2", 2020)

	overrides := NewOverrides([]Override{
		{A: b1, B: a1, Kind: CannotLink},
		{A: a2, B: b2, Kind: MustLink},
	})
	kind, ok := overrides.Lookup(a1, b1)
	assert.True(t, ok)
	assert.Equal(t, CannotLink, kind)

	got := Assign(false, []Score{
		score(a1, b1, 0.99, 0),
		score(a2, b2, 0.10, 0),
		score(a1, b2, 0.95, 0),
	}, AssignOptions{Threshold: 0.8, Overrides: overrides})

	assert.Equal(t, []Reason{ReasonVetoed, ReasonForced, ReasonSuperseded}, reasons(got))
	require.Len(t, got.Accepted, 1)
	assert.Equal(t, a2, got.Accepted[0].A)
}

func TestAssignDoesNotModifyInput(t *testing.T) {
	in := []Score{score(key("a", "1", 2020), key("b", "1", 2020), 0.9, 0)}
	Assign(false, in, AssignOptions{Threshold: 0.5})
	assert.False(t, in[0].Accepted)
	assert.Empty(t, in[0].Reason)
}
