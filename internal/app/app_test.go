package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safetransit/safetransit/internal/analysis"
	"github.com/safetransit/safetransit/internal/config"
	"github.com/safetransit/safetransit/internal/storage"
)

func testConfig() *config.Config {
	return &config.Config{
		ModelName:       config.DefaultModelName,
		Temperature:     0.2,
		ServerHost:      "localhost",
		ServerPort:      8090,
		RateBurst:       60,
		PollTimeoutSecs: 30,
		LogLevel:        "error",
	}
}

func TestSetupMemoryOnly(t *testing.T) {
	a, err := Setup(context.Background(), testConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	assert.IsType(t, &storage.Memory{}, a.Store)
	assert.IsType(t, analysis.Noop{}, a.Advisor)
	assert.NotNil(t, a.Sessions)
	assert.Equal(t, 5, a.Registry.Len())
}

func TestSetupRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.ServerPort = 0

	_, err := Setup(context.Background(), cfg)
	require.ErrorIs(t, err, config.ErrInvalidServerPort)
}

func TestSetupStopsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stops.json")
	data := `{"Piazza Garibaldi": {"lat": 45.41, "lon": 11.87}}`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	cfg := testConfig()
	cfg.StopsFile = path

	a, err := Setup(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	assert.Equal(t, 1, a.Registry.Len())
	assert.True(t, a.Registry.Contains("Piazza Garibaldi"))
}

func TestSetupStopsFileMissing(t *testing.T) {
	cfg := testConfig()
	cfg.StopsFile = filepath.Join(t.TempDir(), "missing.json")

	_, err := Setup(context.Background(), cfg)
	require.Error(t, err)
}
