package match

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/energy-linkage/internal/embed"
	"github.com/energy-linkage/internal/normalize"
	"github.com/energy-linkage/internal/record"
)

func mw(f float64) *float64 { return &f }

func key(dataset, id string, year int) record.Key {
	return record.Key{Dataset: dataset, LocalID: id, Year: year}
}

func vectors(t *testing.T, raws ...record.RawRecord) []embed.FeatureVector {
	t.Helper()
	schema, err := embed.NewSchema(embed.DefaultBlockingRules)
	require.NoError(t, err)
	return embed.NewEmbedder(schema, nil).Embed(normalize.Default().Records(raws))
}

func score(a, b record.Key, conf, capAgree float64) Score {
	s := Score{Pair: Pair{A: a, B: b, Type: record.EntityPlant}, Confidence: conf}
	s.Features[FeatCapacity] = capAgree
	return s
}
