package config

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, kv := range os.Environ() {
		if name, _, ok := strings.Cut(kv, "="); ok && strings.HasPrefix(name, EnvPrefix) {
			t.Setenv(name, "")
			os.Unsetenv(name)
		}
	}
}

func testFlags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("listen", defaultListenAddr, "")
	fs.String("engine", defaultEngine, "")
	fs.Int("window", defaultWindow, "")
	fs.String("log-level", "info", "")
	fs.String("log-format", "json", "")
	return fs
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("SMAQ_LISTEN_ADDR", ":9090")
	t.Setenv("SMAQ_ENGINE", "ema")
	t.Setenv("SMAQ_WINDOW", "30")
	t.Setenv("SMAQ_SHUTDOWN_TIMEOUT", "3s")
	t.Setenv("SMAQ_LOG_LEVEL", "DEBUG")

	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.ListenAddr)
	assert.Equal(t, "ema", cfg.Engine)
	assert.Equal(t, 30, cfg.Window)
	assert.Equal(t, 3*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadFilePrecedence(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "smaq.yaml")
	yml := "listen_addr: \":7070\"\nwindow: 5\nlog:\n  format: text\n"
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o600))

	t.Setenv("SMAQ_WINDOW", "9")

	cfg, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.ListenAddr, "file overrides defaults")
	assert.Equal(t, 9, cfg.Window, "env overrides file")
	assert.Equal(t, "text", cfg.Log.Format)
}

func TestLoadMissingFileIsSkipped(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), nil)
	require.NoError(t, err)
	assert.Equal(t, defaultListenAddr, cfg.ListenAddr)
}

func TestLoadFlagsOverrideEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("SMAQ_ENGINE", "ema")
	t.Setenv("SMAQ_WINDOW", "20")

	fs := testFlags()
	require.NoError(t, fs.Parse([]string{"--window", "3", "--listen", ":6060"}))

	cfg, err := Load("", fs)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Window)
	assert.Equal(t, ":6060", cfg.ListenAddr)
	assert.Equal(t, "ema", cfg.Engine, "unchanged flags must not override env")
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"unknown engine", "SMAQ_ENGINE", "macd"},
		{"zero window", "SMAQ_WINDOW", "0"},
		{"bad log level", "SMAQ_LOG_LEVEL", "verbose"},
		{"bad log format", "SMAQ_LOG_FORMAT", "xml"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.val)

			_, err := Load("", nil)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid config")
		})
	}
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "listen_addr", envKey("SMAQ_LISTEN_ADDR"))
	assert.Equal(t, "log.level", envKey("SMAQ_LOG_LEVEL"))
	assert.Equal(t, "max_upload_bytes", envKey("SMAQ_MAX_UPLOAD_BYTES"))
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"invalid", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		got := ParseLogLevel(tt.input)
		if got != tt.want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestNewLoggerOutputsJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, LogConfig{Level: "info", Format: "json"})

	logger.Info("test message", "key", "value")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("logger output is not valid JSON: %v\noutput: %s", err, buf.String())
	}
	for _, key := range []string{"time", "level", "msg"} {
		if _, ok := entry[key]; !ok {
			t.Errorf("JSON output missing expected key %q", key)
		}
	}
	if entry["key"] != "value" {
		t.Errorf("key = %v, want %q", entry["key"], "value")
	}
}

func TestNewLoggerTextAndLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, LogConfig{Level: "warn", Format: "text"})

	logger.Info("hidden")
	logger.Warn("shown", "job_id", 7)

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "msg=shown")
	assert.Contains(t, out, "job_id=7")
}
