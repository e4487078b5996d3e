package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

const (
	defaultListenAddr       = ":8080"
	defaultEngine           = "sma"
	defaultWindow           = 14
	defaultSubscriberBuffer = 64
	defaultMaxUploadBytes   = 32 << 20 // 32 MB
	defaultShutdownTimeout  = 10 * time.Second

	// EnvPrefix prefixes every environment variable read by Load.
	EnvPrefix = "SMAQ_"
)

var validate = validator.New()

// Config holds application configuration.
type Config struct {
	ListenAddr       string        `koanf:"listen_addr" validate:"required"`
	Engine           string        `koanf:"engine" validate:"oneof=sma ema"`
	Window           int           `koanf:"window" validate:"min=1,max=10000"`
	SubscriberBuffer int           `koanf:"subscriber_buffer" validate:"min=0,max=65536"`
	MaxUploadBytes   int64         `koanf:"max_upload_bytes" validate:"min=1"`
	ShutdownTimeout  time.Duration `koanf:"shutdown_timeout" validate:"min=0"`
	Log              LogConfig     `koanf:"log"`
}

// LogConfig controls the structured logger.
type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn error"`
	Format string `koanf:"format" validate:"oneof=json text"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		ListenAddr:       defaultListenAddr,
		Engine:           defaultEngine,
		Window:           defaultWindow,
		SubscriberBuffer: defaultSubscriberBuffer,
		MaxUploadBytes:   defaultMaxUploadBytes,
		ShutdownTimeout:  defaultShutdownTimeout,
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

func defaultMap() map[string]any {
	def := Default()
	return map[string]any{
		"listen_addr":       def.ListenAddr,
		"engine":            def.Engine,
		"window":            def.Window,
		"subscriber_buffer": def.SubscriberBuffer,
		"max_upload_bytes":  def.MaxUploadBytes,
		"shutdown_timeout":  def.ShutdownTimeout.String(),
		"log.level":         def.Log.Level,
		"log.format":        def.Log.Format,
	}
}

// flagKeys maps command-line flag names to configuration keys.
var flagKeys = map[string]string{
	"listen":     "listen_addr",
	"engine":     "engine",
	"window":     "window",
	"log-level":  "log.level",
	"log-format": "log.format",
}

// Load merges configuration sources in increasing precedence: defaults, the
// YAML file at path (skipped when empty or missing), SMAQ_* environment
// variables, and changed flags. The result is validated.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaultMap(), "."), nil); err != nil {
		return Config{}, fmt.Errorf("load defaults: %w", err)
	}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return Config{}, fmt.Errorf("load config file %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("check config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return Config{}, fmt.Errorf("load environment: %w", err)
	}

	if flags != nil {
		provider := posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return Config{}, fmt.Errorf("load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Log.Level = strings.ToLower(cfg.Log.Level)
	cfg.Log.Format = strings.ToLower(cfg.Log.Format)

	if err := validate.Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// envKey maps SMAQ_LOG_LEVEL to log.level and SMAQ_LISTEN_ADDR to listen_addr.
func envKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	if rest, ok := strings.CutPrefix(key, "log_"); ok {
		return "log." + rest
	}
	return key
}

// ParseLogLevel converts a level name to a slog level, defaulting to info.
func ParseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a structured logger writing to w. Format "text" selects
// the text handler; anything else writes JSON.
func NewLogger(w io.Writer, lc LogConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLogLevel(lc.Level)}
	if lc.Format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}
