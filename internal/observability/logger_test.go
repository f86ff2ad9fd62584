// File: internal/observability/logger_test.go
package observability

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/xkilldash9x/dialtone/internal/config"
)

// -- Test Cases --

func TestNewLogger(t *testing.T) {
	t.Run("console output is colorized", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewLogger(config.LoggerConfig{
			Level:       "debug",
			Format:      "console",
			ServiceName: "dialtone-test",
			Colors:      config.ColorConfig{Info: "green"},
		}, zapcore.AddSync(&buf))

		logger.Info("dispatch started")
		require.NoError(t, logger.Sync())

		out := buf.String()
		assert.Contains(t, out, "dispatch started")
		assert.Contains(t, out, colorMap["green"]+"INFO"+colorReset)
		assert.Contains(t, out, "dialtone-test.")
	})

	t.Run("uncolored levels fall back to plain text", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewLogger(config.LoggerConfig{Level: "debug", Format: "console"}, zapcore.AddSync(&buf))
		logger.Warn("careful")
		require.NoError(t, logger.Sync())

		assert.Contains(t, buf.String(), "WARN")
		assert.NotContains(t, buf.String(), colorReset)
	})

	t.Run("json output is structured", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewLogger(config.LoggerConfig{Level: "info", Format: "json", ServiceName: "JSONTest"}, zapcore.AddSync(&buf))
		logger.Warn("source rate limited", zap.String("source", "spam-reports"))
		require.NoError(t, logger.Sync())

		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry), "log output should be valid JSON")
		assert.Equal(t, "warn", entry["level"])
		assert.Equal(t, "JSONTest", entry["logger"])
		assert.Equal(t, "source rate limited", entry["msg"])
		assert.Equal(t, "spam-reports", entry["source"])
	})

	t.Run("level filtering", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewLogger(config.LoggerConfig{Level: "warn", Format: "json"}, zapcore.AddSync(&buf))
		logger.Info("hidden")
		logger.Error("shown")
		require.NoError(t, logger.Sync())

		assert.NotContains(t, buf.String(), "hidden")
		assert.Contains(t, buf.String(), "shown")
	})

	t.Run("invalid level defaults to info", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewLogger(config.LoggerConfig{Level: "chatty", Format: "json"}, zapcore.AddSync(&buf))
		logger.Debug("hidden")
		logger.Info("shown")
		require.NoError(t, logger.Sync())

		assert.NotContains(t, buf.String(), "hidden")
		assert.Contains(t, buf.String(), "shown")
	})

	t.Run("writes rotated file when configured", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "dialtone.log")
		var console bytes.Buffer
		logger := NewLogger(config.LoggerConfig{
			Level:   "debug",
			Format:  "console",
			LogFile: path,
			MaxSize: 1,
		}, zapcore.AddSync(&console))

		logger.Debug("written to file", zap.Int("sources", 7))
		require.NoError(t, logger.Sync())

		content, err := os.ReadFile(path)
		require.NoError(t, err)
		line := strings.TrimSpace(string(content))
		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &entry), "file sink is always JSON")
		assert.Equal(t, "written to file", entry["msg"])
		assert.EqualValues(t, 7, entry["sources"])
	})
}

func TestGlobalLogger(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	fallback := GetLogger()
	require.NotNil(t, fallback)

	var first, second bytes.Buffer
	Initialize(config.LoggerConfig{Level: "info", Format: "json", ServiceName: "first"}, zapcore.AddSync(&first))
	// Later initializations are ignored.
	Initialize(config.LoggerConfig{Level: "info", Format: "json", ServiceName: "second"}, zapcore.AddSync(&second))

	GetLogger().Info("hello")
	Sync()

	assert.Contains(t, first.String(), "hello")
	assert.Contains(t, first.String(), `"logger":"first"`)
	assert.Empty(t, second.String())
}
