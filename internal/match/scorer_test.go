package match

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/energy-linkage/internal/record"
)

func TestDefaultModel(t *testing.T) {
	vs := vectors(t,
		record.RawRecord{Key: key("a", "1", 2020), Name: "Riverside Power Co", Capacity: mw(500)},
		record.RawRecord{Key: key("b", "R-99", 2020), Name: "Riverside Power Company", Capacity: mw(498)},
		record.RawRecord{Key: key("b", "R-12", 2020), Name: "Lakeview Station", Capacity: mw(80)},
	)
	m := DefaultModel()

	same := m.Score(Compare(&vs[0], &vs[1]))
	other := m.Score(Compare(&vs[0], &vs[2]))
	assert.Greater(t, same, 0.9)
	assert.Less(t, other, 0.1)
}

func TestParseModel(t *testing.T) {
	m, err := ParseModel([]byte(`
version: 1
bias: -2
temperature: 2
weights:
  jaro_winkler: 4
  missing_count: -0.5
`))
	require.NoError(t, err)
	assert.Equal(t, -2.0, m.Bias)
	assert.Equal(t, 4.0, m.Weights[FeatJaroWinkler])
	assert.Equal(t, 0.0, m.Weights[FeatState])

	var f Features
	f[FeatJaroWinkler] = 1
	assert.InDelta(t, Sigmoid(1), m.Score(f), 1e-12)

	_, err = ParseModel([]byte("weights:\n  shoe_size: 1\n"))
	assert.Error(t, err)
	_, err = ParseModel([]byte("version: 9\n"))
	assert.Error(t, err)
	_, err = ParseModel([]byte("temperature: -1\n"))
	assert.Error(t, err)
}

func TestSaveLoadModel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.yaml")
	require.NoError(t, DefaultModel().SaveModel(path))

	loaded, err := LoadModel(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultModel(), loaded)

	_, err = LoadModel(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
