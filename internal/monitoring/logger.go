// Package monitoring holds the process-wide diagnostic logger.
package monitoring

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// Logger is the structured root logger. Packages derive child loggers with
// GetLogger once their owner has called Configure.
var Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05.000"}).
	With().Timestamp().Logger()

// Logf is the package-level printf-style logger. It writes info-level
// messages to Logger but may be replaced by SetLogger; tests use that to
// redirect or mute it.
var Logf func(format string, v ...interface{}) = defaultLogf

func defaultLogf(format string, v ...interface{}) {
	Logger.Info().Msgf(format, v...)
}

// SetLogger replaces Logf. Passing nil installs a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Configure rebuilds Logger.
//   - level:  trace, debug, info, warn, error, disabled (empty means info)
//   - format: text (console, no colour), color, json (empty means text)
func Configure(level, format string, w io.Writer) error {
	if w == nil {
		w = os.Stderr
	}

	lvl := zerolog.InfoLevel
	if level != "" {
		var err error
		if lvl, err = zerolog.ParseLevel(strings.ToLower(level)); err != nil {
			return fmt.Errorf("invalid log level %q: %w", level, err)
		}
	}

	switch strings.ToLower(format) {
	case "", "text":
		w = zerolog.ConsoleWriter{Out: w, NoColor: true, TimeFormat: "15:04:05.000"}
	case "color":
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05.000"}
	case "json":
	default:
		return fmt.Errorf("invalid log format %q: expected text, color or json", format)
	}

	Logger = zerolog.New(w).Level(lvl).With().Timestamp().Logger()
	Logf = defaultLogf
	return nil
}

// GetLogger returns a child of Logger tagged with module.
func GetLogger(module string) zerolog.Logger {
	return Logger.With().Str("module", module).Logger()
}
