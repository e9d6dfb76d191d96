package monitoring

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevelEnv overrides the level passed on the command line when set
const LogLevelEnv = "YOLO_PREP_LOG_LEVEL"

// Setup points the global zerolog logger at w (stderr when nil) with a
// human-readable console format and applies the level. Unknown levels fall back to info.
func Setup(level string, w io.Writer) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}
	if env := os.Getenv(LogLevelEnv); env != "" {
		level = env
	}

	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly}).
		With().Timestamp().Logger()
	return log.Logger
}

// Silence discards all log output. Tests use it to keep output clean.
func Silence() {
	log.Logger = zerolog.Nop()
}
