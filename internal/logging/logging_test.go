package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("")
	require.NoError(t, err)
	require.Equal(t, zerolog.WarnLevel, lvl)

	lvl, err = ParseLevel(" DEBUG ")
	require.NoError(t, err)
	require.Equal(t, zerolog.DebugLevel, lvl)

	lvl, err = ParseLevel("disabled")
	require.NoError(t, err)
	require.Equal(t, zerolog.Disabled, lvl)

	for _, bad := range []string{"verbose", "fatal", "panic"} {
		_, err = ParseLevel(bad)
		require.Error(t, err, bad)
	}
}

func TestNew_ConsoleAndFile(t *testing.T) {
	var buf bytes.Buffer
	file := filepath.Join(t.TempDir(), "logs", "leakloom.log")

	l, closeFn, err := New(Options{Level: "info", File: file, Console: &buf, NoColor: true})
	require.NoError(t, err)

	cl := Component(l, "source")
	cl.Info().Str("url", "https://example.test/").Msg("fetched")
	l.Debug().Msg("hidden")
	require.NoError(t, closeFn())

	require.Contains(t, buf.String(), "fetched")
	require.Contains(t, buf.String(), "component=source")
	require.NotContains(t, buf.String(), "hidden")

	b, err := os.ReadFile(file)
	require.NoError(t, err)
	require.Contains(t, string(b), `"component":"source"`)
	require.Contains(t, string(b), `"message":"fetched"`)
}

func TestNew_InvalidLevel(t *testing.T) {
	_, _, err := New(Options{Level: "loud"})
	require.Error(t, err)
}
