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
)

// syncBuffer adapts bytes.Buffer to zapcore.WriteSyncer.
type syncBuffer struct {
	bytes.Buffer
}

func (b *syncBuffer) Sync() error { return nil }

func TestNewLoggerCLIProfile(t *testing.T) {
	var buf syncBuffer
	logger, err := NewLogger(&buf, Config{Level: "info", Profile: "cli"})
	require.NoError(t, err)

	logger.Info("fetching run", zap.String("run", "SRR1574565"))
	logger.Debug("not visible at info")

	out := buf.String()
	assert.Contains(t, out, "fetching run")
	assert.Contains(t, out, "SRR1574565")
	assert.NotContains(t, out, "not visible")
}

func TestNewLoggerStructuredProfile(t *testing.T) {
	var buf syncBuffer
	logger, err := NewLogger(&buf, Config{Level: "debug", Profile: "structured"})
	require.NoError(t, err)

	logger.Info("download complete", zap.Int64("bytes", 1024))

	line := strings.TrimSpace(buf.String())
	var record map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &record))
	assert.Equal(t, "download complete", record["msg"])
	assert.Equal(t, "info", record["level"])
	assert.InDelta(t, 1024, record["bytes"], 0.1)
	assert.NotEmpty(t, record["ts"])
}

func TestNewLoggerRejectsBadInput(t *testing.T) {
	var buf syncBuffer

	_, err := NewLogger(&buf, Config{Level: "verbose"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log level")

	_, err = NewLogger(&buf, Config{Profile: "xml"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "profile")
}

func TestNewLoggerFileSink(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sracatch.log")

	var buf syncBuffer
	logger, err := NewLogger(&buf, Config{Profile: "cli", FilePath: path})
	require.NoError(t, err)

	logger.Warn("mirror throttled", zap.String("method", "ena-ftp"))
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "mirror throttled")
	// The file sink is structured regardless of the console profile.
	assert.Contains(t, string(data), `"level":"warn"`)

	// Console output still got the line.
	assert.Contains(t, buf.String(), "mirror throttled")
}

func TestInitReplacesCLILogger(t *testing.T) {
	orig := CLILogger
	t.Cleanup(func() { CLILogger = orig })

	require.NoError(t, Init(Config{Level: "error", Profile: "structured"}))
	assert.False(t, CLILogger.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, CLILogger.Core().Enabled(zapcore.ErrorLevel))
}
