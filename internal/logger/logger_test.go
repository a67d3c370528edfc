package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, ParseLevel("debug"))
	assert.Equal(t, zerolog.WarnLevel, ParseLevel("warn"))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel("verbose"))
}

func TestInitialize_WritesComponentLogsToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rewarder.log")
	Initialize("info", path)
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.TraceLevel) })

	l := GetForComponent("test")
	l.Info().Str("vault", "elys1a").Msg("hello")
	l.Debug().Msg("filtered")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"component":"test"`)
	assert.Contains(t, string(data), `"vault":"elys1a"`)
	assert.NotContains(t, string(data), "filtered")
}
