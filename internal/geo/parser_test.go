package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegexParser(t *testing.T) {
	tests := []struct {
		address string
		want    Location
	}{
		{"100 River Rd, Riverside, CA 92501", Location{City: "riverside", State: "CA", Postcode: "92501"}},
		{"Lakeview, NY", Location{City: "lakeview", State: "NY"}},
		{"Springfield, Illinois", Location{City: "springfield", State: "IL"}},
		{"Hwy 9, Big Bend, FL 33572-1234", Location{City: "big bend", State: "FL", Postcode: "33572"}},
		{"Austin TX 78701", Location{City: "austin", State: "TX", Postcode: "78701"}},
		{"Austin, TX", Location{City: "austin", State: "TX"}},
		{"12 Elm Ct", Location{}},
		{"12 Elm Ct, Dallas, TX", Location{City: "dallas", State: "TX"}},
		{"somewhere", Location{}},
		{"", Location{}},
	}
	p := RegexParser{}
	for _, tt := range tests {
		t.Run(tt.address, func(t *testing.T) {
			assert.Equal(t, tt.want, p.Parse(tt.address))
		})
	}
}

func TestFill(t *testing.T) {
	p := RegexParser{}

	city, state := Fill(p, "", "", "Riverside, CA")
	assert.Equal(t, "riverside", city)
	assert.Equal(t, "CA", state)

	// explicit values win
	city, state = Fill(p, "", "NV", "Riverside, CA")
	assert.Equal(t, "riverside", city)
	assert.Equal(t, "NV", state)

	city, state = Fill(nil, "", "", "Riverside, CA")
	assert.Empty(t, city)
	assert.Empty(t, state)
}
