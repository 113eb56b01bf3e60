package stops

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RejectsEmptyInput(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)

	_, err = New(map[string]Coordinate{"": {Lat: 1, Lon: 2}})
	assert.Error(t, err)
}

func TestDefault_ContainsPadovaStops(t *testing.T) {
	r := Default()

	require.Equal(t, 5, r.Len())
	assert.True(t, r.Contains("Stazione FS"))
	assert.True(t, r.Contains("Prato della Valle"))
	assert.False(t, r.Contains("Piazza Navona"))

	coord, err := r.Lookup("Ospedale")
	require.NoError(t, err)
	assert.InDelta(t, 45.4109, coord.Lat, 0.0001)
	assert.InDelta(t, 11.8888, coord.Lon, 0.0001)
}

func TestLookup_UnknownStop(t *testing.T) {
	r := Default()

	_, err := r.Lookup("Colosseo")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownStop)
	assert.Contains(t, err.Error(), "Colosseo")
}

func TestNames_SortedAndCopied(t *testing.T) {
	r := Default()

	names := r.Names()
	assert.IsIncreasing(t, names)

	// Mutating the returned slice must not affect the registry.
	names[0] = "mutated"
	assert.NotContains(t, r.Names(), "mutated")
}

func TestAll_OrderedByName(t *testing.T) {
	r := Default()

	all := r.All()
	require.Len(t, all, 5)
	assert.Equal(t, "Basilica del Santo", all[0].Name)
	assert.Equal(t, "Stazione FS", all[4].Name)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stops.json")
	content := `{"Centro": {"lat": 45.1, "lon": 11.2}, "Periferia": {"lat": 45.2, "lon": 11.3}}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	r, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, r.Len())
	assert.True(t, r.Contains("Centro"))
}

func TestLoadFile_Errors(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o600))
	_, err = LoadFile(path)
	assert.Error(t, err)
}
