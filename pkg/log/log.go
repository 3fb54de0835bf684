package log

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the process-wide root logger. It stays silent until Init
// installs a writer, so packages constructed in tests log nothing
// unless the test asks for output.
var Logger zerolog.Logger

// Config controls the root logger built by Init.
type Config struct {
	// Level is one of debug, info, warn or error. Anything else,
	// including the empty string, falls back to info.
	Level string

	// JSONOutput selects machine-readable JSON lines. When false the
	// console writer renders human-friendly output instead.
	JSONOutput bool

	// Output defaults to os.Stdout.
	Output io.Writer
}

// Init builds the root logger and installs it as Logger. Call it once
// at process start, before any component derives a child logger.
func Init(cfg Config) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	if !cfg.JSONOutput {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	Logger = zerolog.New(out).With().Timestamp().Logger()
}

// WithComponent returns a child logger that stamps every line with the
// component name. Each package takes one at construction time and adds
// per-entity fields (job_id, workflow_id, chain_alias) at call sites.
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}
