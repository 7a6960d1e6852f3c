package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taxitrack/internal/viewmodel"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, float64(-1), cfg.Sentinel)
	assert.Equal(t, 2*time.Second, cfg.PollInterval)
}

func TestLoad_File(t *testing.T) {
	p := writeFile(t, `
locations_url: http://feed.example:7114
route_transport: grpc
grpc_addr: routes.example:8082
poll_interval: 500ms
feed_format: gtfsrt
sentinel: -2
pois:
  - label: Original Joe's
    lon: -121.8893
    lat: 37.3352
`)
	cfg, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, "http://feed.example:7114", cfg.LocationsURL)
	assert.Equal(t, "grpc", cfg.RouteTransport)
	assert.Equal(t, 500*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, 10*time.Second, cfg.FetchTimeout)
	assert.Equal(t, float64(-2), cfg.Sentinel)
	assert.Equal(t, []viewmodel.Place{viewmodel.NewPOI(-121.8893, 37.3352, "Original Joe's")}, cfg.Seed())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("TAXITRACK_LOCATIONS_URL", "http://env.example")
	t.Setenv("TAXITRACK_POLL_INTERVAL", "5s")
	t.Setenv("TAXITRACK_SENTINEL", "-9")
	t.Setenv("TAXITRACK_HTTP_PORT", "9090")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "http://env.example", cfg.LocationsURL)
	assert.Equal(t, 5*time.Second, cfg.PollInterval)
	assert.Equal(t, float64(-9), cfg.Sentinel)
	assert.Equal(t, 9090, cfg.HTTPPort)
}

func TestLoad_BadEnv(t *testing.T) {
	t.Setenv("TAXITRACK_POLL_INTERVAL", "soon")
	t.Setenv("TAXITRACK_HTTP_PORT", "eighty")
	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TAXITRACK_POLL_INTERVAL")
	assert.Contains(t, err.Error(), "TAXITRACK_HTTP_PORT")
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bad transport", "route_transport: carrier-pigeon\n"},
		{"bad format", "feed_format: csv\n"},
		{"zero interval", "poll_interval: 0s\n"},
		{"bad url", "locations_url: not a url\n"},
		{"poi without label", "pois:\n  - lon: 1\n    lat: 1\n"},
		{"poi out of range", "pois:\n  - label: x\n    lon: 200\n    lat: 1\n"},
		{"sentinel collides with live markers", "sentinel: 0\n"},
		{"positive sentinel", "sentinel: 3\n"},
		{"http transport without route url", "route_transport: http\nroute_url: \"\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLoad_GRPCWithoutRouteURL(t *testing.T) {
	cfg, err := Load(writeFile(t, "route_transport: grpc\nroute_url: \"\"\n"))
	require.NoError(t, err)
	assert.Empty(t, cfg.RouteURL)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
