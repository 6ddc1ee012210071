package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envFrom(m map[string]string) func(string) string {
	return func(key string) string { return m[key] }
}

func TestParse_Defaults(t *testing.T) {
	c, err := Parse(nil, envFrom(nil))
	require.NoError(t, err)

	assert.Equal(t, "8080", c.Port)
	assert.Equal(t, "polls.db", c.DBPath)
	assert.Empty(t, c.AllowedOrigins)
	assert.Equal(t, 10*time.Second, c.ShutdownTimeout)
	assert.Equal(t, slog.LevelInfo, c.SlogLevel())
}

func TestParse_EnvironmentAndFlags(t *testing.T) {
	env := envFrom(map[string]string{
		"PORT":             "5001",
		"LOG_LEVEL":        "debug",
		"ALLOWED_ORIGINS":  "http://localhost:3000, http://localhost:3001",
		"SHUTDOWN_TIMEOUT": "3s",
	})

	c, err := Parse([]string{"--port", "9000", "--db", ":memory:"}, env)
	require.NoError(t, err)

	assert.Equal(t, "9000", c.Port)
	assert.Equal(t, ":memory:", c.DBPath)
	assert.Equal(t, []string{"http://localhost:3000", "http://localhost:3001"}, c.AllowedOrigins)
	assert.Equal(t, 3*time.Second, c.ShutdownTimeout)
	assert.Equal(t, slog.LevelDebug, c.SlogLevel())
}

func TestParse_Errors(t *testing.T) {
	_, err := Parse(nil, envFrom(map[string]string{"SHUTDOWN_TIMEOUT": "soon"}))
	assert.Error(t, err)

	_, err = Parse([]string{"--unknown"}, envFrom(nil))
	assert.Error(t, err)
}
