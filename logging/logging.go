// Package logging builds the zap logger used across the bot.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Config struct {
	Level  string `yaml:"level" json:"level" env:"LEVEL"`    // debug, info, warn, error
	Format string `yaml:"format" json:"format" env:"FORMAT"` // console or json
	Output string `yaml:"output" json:"output" env:"OUTPUT"` // stdout, stderr or a file path

	// File, when set, additionally writes JSON lines to this path.
	File string `yaml:"file" json:"file" env:"FILE"`
}

func DefaultConfig() Config {
	return Config{Level: "info", Format: "console", Output: "stderr"}
}

func (c Config) Validate() error {
	if _, err := zapcore.ParseLevel(c.level()); err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	switch c.Format {
	case "", "console", "json":
	default:
		return fmt.Errorf("log format %q: want console or json", c.Format)
	}
	return nil
}

func (c Config) level() string {
	if c.Level == "" {
		return "info"
	}
	return strings.ToLower(c.Level)
}

// New returns the logger and a cleanup that flushes and closes any files.
func New(cfg Config) (*zap.Logger, func(), error) {
	var (
		closers []io.Closer
		out     io.Writer
	)
	switch cfg.Output {
	case "", "stderr":
		out = os.Stderr
	case "stdout":
		out = os.Stdout
	default:
		f, err := os.OpenFile(cfg.Output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log output: %w", err)
		}
		out = f
		closers = append(closers, f)
	}

	var jsonOut io.Writer
	if cfg.File != "" {
		f, err := os.OpenFile(cfg.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			for _, c := range closers {
				c.Close()
			}
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		jsonOut = f
		closers = append(closers, f)
	}

	log, err := build(cfg, out, jsonOut)
	if err != nil {
		for _, c := range closers {
			c.Close()
		}
		return nil, nil, err
	}

	cleanup := func() {
		_ = log.Sync()
		for _, c := range closers {
			c.Close()
		}
	}
	return log, cleanup, nil
}

// NewWriter logs to w only.
func NewWriter(cfg Config, w io.Writer) (*zap.Logger, error) {
	return build(cfg, w, nil)
}

func build(cfg Config, out, jsonOut io.Writer) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.level())
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeCaller = zapcore.ShortCallerEncoder

	var enc zapcore.Encoder
	switch cfg.Format {
	case "json":
		enc = zapcore.NewJSONEncoder(encoderConfig)
	case "", "console":
		encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(encoderConfig)
	default:
		return nil, fmt.Errorf("log format %q: want console or json", cfg.Format)
	}

	cores := []zapcore.Core{zapcore.NewCore(enc, zapcore.AddSync(out), level)}
	if jsonOut != nil {
		jsonConfig := zap.NewProductionEncoderConfig()
		jsonConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(jsonConfig), zapcore.AddSync(jsonOut), level))
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddCaller()), nil
}
