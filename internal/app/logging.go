package app

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	LogFormatConsole = "console"
	LogFormatJSON    = "json"
)

func parseLogLevel(value string) (zerolog.Level, error) {
	if strings.TrimSpace(value) == "" {
		return zerolog.InfoLevel, nil
	}
	level, err := zerolog.ParseLevel(strings.ToLower(value))
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("unknown log level %q", value)
	}
	return level, nil
}

// NewLogger builds the root logger. Console output is for humans; json is
// one event per line.
func NewLogger(cfg LogConfig, out io.Writer) (zerolog.Logger, error) {
	level, err := parseLogLevel(cfg.Level)
	if err != nil {
		return zerolog.Nop(), err
	}
	writer := out
	switch cfg.Format {
	case "", LogFormatConsole:
		writer = zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}
	case LogFormatJSON:
	default:
		return zerolog.Nop(), fmt.Errorf("unknown log format %q", cfg.Format)
	}
	return zerolog.New(writer).Level(level).With().Timestamp().Str("service", "hermes").Logger(), nil
}
