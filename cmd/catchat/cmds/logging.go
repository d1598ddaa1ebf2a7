package cmds

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-go-golems/catchat/pkg/config"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// parseZerologLevel converts a string level into zerolog.Level, defaulting to warn.
func parseZerologLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	case "disabled", "off":
		return zerolog.Disabled
	default:
		return zerolog.WarnLevel
	}
}

// setupLogging points the global logger at path, or at stderr when path is
// empty. A TUI always logs to a file. The returned closer is nil for stderr.
func setupLogging(level, path string, tui bool) (io.Closer, error) {
	zerolog.SetGlobalLevel(parseZerologLevel(level))

	if path == "" && tui {
		p, err := config.DefaultLogFile()
		if err != nil {
			return nil, err
		}
		path = p
	}

	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, errors.Wrap(err, "create log directory")
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, errors.Wrap(err, "open log file")
		}
		log.Logger = zerolog.New(f).With().Timestamp().Logger()
		return f, nil
	}

	var w io.Writer = os.Stderr
	if isatty.IsTerminal(os.Stderr.Fd()) {
		w = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
	}
	log.Logger = zerolog.New(w).With().Timestamp().Logger()
	return nil, nil
}
