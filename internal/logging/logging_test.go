package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gameshop/internal/config"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewWritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "api.log")
	logger, cleanup, err := New(config.LoggingConfig{Level: "debug", Format: "json", File: path})
	require.NoError(t, err)

	logger.Info("order_approved")
	require.NoError(t, cleanup())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.True(t, strings.Contains(string(data), `"msg":"order_approved"`), string(data))
}

func TestParseLevel(t *testing.T) {
	cases := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"WARNING": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"":        zapcore.InfoLevel,
		"chatty":  zapcore.InfoLevel,
	}
	for in, want := range cases {
		require.Equal(t, want, parseLevel(in), in)
	}
}
