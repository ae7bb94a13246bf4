package logger

import (
	"bytes"
	"errors"
	"log/slog"
	"marketnews/internal/config"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLogLevel("debug"))
	assert.Equal(t, slog.LevelWarn, parseLogLevel("warn"))
	assert.Equal(t, slog.LevelError, parseLogLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLogLevel("verbose"))
}

func TestLevelDispatcher_RoutesErrors(t *testing.T) {
	var out, errOut bytes.Buffer
	log := NewWithWriters("info", &out, &errOut)

	log.Info("Collection pass finished", slog.Int("inserted", 3))
	log.Error("Insert failed", slog.Any("error", errors.New("boom")))
	log.Debug("hidden")

	assert.Contains(t, out.String(), "INFO")
	assert.Contains(t, out.String(), "Collection pass finished | inserted=3")
	assert.NotContains(t, out.String(), "Insert failed")
	assert.NotContains(t, out.String(), "hidden")
	assert.Contains(t, errOut.String(), `ERROR`)
	assert.Contains(t, errOut.String(), `error="boom"`)
}

func TestReadableHandler_KeepsLoggerAttrs(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriters("debug", &buf, &buf).With(slog.String("component", "collector"))

	log.Debug("Item stored", slog.String("op", "run"), slog.String("url", "https://example.com/a"))

	line := buf.String()
	assert.Contains(t, line, "DEBUG [collector] (run)")
	assert.Contains(t, line, "url=https://example.com/a")
	assert.Contains(t, line, "<logger_test.go:")
}

func TestReadableHandler_ShortensLongURL(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(NewReadableHandler(&buf, nil))

	log.Info("Query", slog.String("url", "https://www.example.com/"+strings.Repeat("a", 60)))

	assert.Contains(t, buf.String(), "url=https://www.example.com/...")
}

func TestReadableHandler_Group(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(NewReadableHandler(&buf, nil)).WithGroup("store")

	log.Info("Query", slog.String("table", "market_news"))

	assert.Contains(t, buf.String(), "store.table=market_news")
}

func TestReadableHandler_Duration(t *testing.T) {
	h := NewReadableHandler(&bytes.Buffer{}, nil)

	assert.Equal(t, "took=1.235s", h.formatAttr(slog.Duration("duration", 1234567*time.Microsecond)))
}

func TestNew_WritesRotatedFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	log, err := New(config.LoggerConfig{Level: "info", Dir: dir, MaxSizeMB: 1})
	require.NoError(t, err)

	log.Info("started")
	log.Error("failed")

	info, err := os.ReadFile(filepath.Join(dir, logFile))
	require.NoError(t, err)
	assert.Contains(t, string(info), "started")
	errs, err := os.ReadFile(filepath.Join(dir, errorLogFile))
	require.NoError(t, err)
	assert.Contains(t, string(errs), "failed")
}
