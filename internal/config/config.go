// Package config loads engine settings from defaults, an optional config
// file and TROUT_* environment variables, and sets up logging.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/hailam/trout/internal/engine"
)

const envPrefix = "TROUT"

// Keys
const (
	KeyHashMB            = "hash_mb"
	KeyMultiPV           = "multipv"
	KeyLogLevel          = "log_level"
	KeyLogFile           = "log_file"
	KeyAnalysisDir       = "analysis_dir"
	KeyInfoInterval      = "info_interval"
	KeyNodeCheckInterval = "node_check_interval"
	KeyMoveOverhead      = "move_overhead"
)

var ErrInvalid = errors.New("invalid configuration")

type Config struct {
	HashMB            int
	MultiPV           int
	LogLevel          zerolog.Level
	LogFile           string
	AnalysisDir       string
	InfoInterval      time.Duration
	NodeCheckInterval int
	MoveOverhead      time.Duration
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(KeyHashMB, 128)
	v.SetDefault(KeyMultiPV, 1)
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFile, "")
	v.SetDefault(KeyAnalysisDir, "")
	v.SetDefault(KeyInfoInterval, time.Second)
	v.SetDefault(KeyNodeCheckInterval, 5000)
	v.SetDefault(KeyMoveOverhead, 30*time.Millisecond)
}

// Load reads the configuration. An empty path skips the config file.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	level, err := zerolog.ParseLevel(strings.ToLower(v.GetString(KeyLogLevel)))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalid, KeyLogLevel, err)
	}

	cfg := &Config{
		HashMB:            v.GetInt(KeyHashMB),
		MultiPV:           v.GetInt(KeyMultiPV),
		LogLevel:          level,
		LogFile:           v.GetString(KeyLogFile),
		AnalysisDir:       v.GetString(KeyAnalysisDir),
		InfoInterval:      v.GetDuration(KeyInfoInterval),
		NodeCheckInterval: v.GetInt(KeyNodeCheckInterval),
		MoveOverhead:      v.GetDuration(KeyMoveOverhead),
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch {
	case c.HashMB < 1:
		return fmt.Errorf("%w: %s must be at least 1, got %d", ErrInvalid, KeyHashMB, c.HashMB)
	case c.MultiPV < 1:
		return fmt.Errorf("%w: %s must be at least 1, got %d", ErrInvalid, KeyMultiPV, c.MultiPV)
	case c.NodeCheckInterval < 1:
		return fmt.Errorf("%w: %s must be at least 1, got %d", ErrInvalid, KeyNodeCheckInterval, c.NodeCheckInterval)
	case c.InfoInterval <= 0:
		return fmt.Errorf("%w: %s must be positive", ErrInvalid, KeyInfoInterval)
	case c.MoveOverhead < 0:
		return fmt.Errorf("%w: %s must not be negative", ErrInvalid, KeyMoveOverhead)
	}
	return nil
}

// EngineOptions maps the settings onto search options.
func (c *Config) EngineOptions() engine.Options {
	opts := engine.DefaultOptions()
	opts.NodeCheckInterval = uint64(c.NodeCheckInterval)
	opts.InfoInterval = c.InfoInterval
	opts.MoveOverhead = c.MoveOverhead
	return opts
}

// SetupLogging points the global logger at stderr, or at LogFile when set,
// and applies the configured level. The returned closer releases the file.
func (c *Config) SetupLogging() (io.Closer, error) {
	var (
		out    io.Writer = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}
		closer io.Closer = io.NopCloser(nil)
	)
	if c.LogFile != "" {
		f, err := os.OpenFile(c.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		out, closer = f, f
	}

	zerolog.SetGlobalLevel(c.LogLevel)
	log.Logger = zerolog.New(out).With().Timestamp().Logger()
	return closer, nil
}

// LogPanic must be deferred directly. It writes a panic and its stack to
// the log and then lets the panic continue.
func LogPanic(where string) {
	if r := recover(); r != nil {
		log.WithLevel(zerolog.PanicLevel).
			Str("in", where).
			Interface("panic", r).
			Str("stack", string(debug.Stack())).
			Msg("unrecoverable error")
		panic(r)
	}
}
