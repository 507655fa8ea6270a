//go:build libpostal

package geo

import (
	postal "github.com/openvenues/gopostal/parser"

	"github.com/energy-linkage/internal/normalize"
)

func init() {
	newDefault = func() Parser { return PostalParser{} }
}

// PostalParser uses libpostal, which handles the many address layouts the
// regex parser does not.
type PostalParser struct{}

// Parse implements Parser.
func (PostalParser) Parse(address string) Location {
	var loc Location
	for _, comp := range postal.ParseAddress(address) {
		switch comp.Label {
		case "city", "suburb":
			if loc.City == "" || comp.Label == "city" {
				loc.City = normalize.Field(comp.Value)
			}
		case "state":
			loc.State = normalize.State(comp.Value)
		case "postcode":
			loc.Postcode = comp.Value
		}
	}
	return loc
}
