package logger

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Options controls how New builds a logger.
type Options struct {
	Service string
	Debug   bool
	Out     io.Writer
}

// New returns a logger stamped with the service name and the process that
// emitted it. Debug mode writes human readable lines; otherwise JSON.
func New(opts Options) zerolog.Logger {
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	level := zerolog.InfoLevel
	if opts.Debug {
		level = zerolog.DebugLevel
		out = zerolog.ConsoleWriter{
			Out:        out,
			NoColor:    true,
			TimeFormat: time.RFC3339,
			FormatLevel: func(i interface{}) string {
				return fmt.Sprintf("| %-6s|", i)
			},
			FormatMessage: func(i interface{}) string {
				return fmt.Sprintf("| %s", i)
			},
			FormatFieldName: func(i interface{}) string {
				return fmt.Sprintf("%s:", i)
			},
		}
	}

	fields := zerolog.New(out).Level(level).With().
		Timestamp().
		Str("service", opts.Service).
		Int("pid", os.Getpid())
	if host, err := os.Hostname(); err == nil {
		fields = fields.Str("host", host)
	}
	return fields.Logger()
}

// Init installs New's logger as the global one used by the helpers below.
func Init(serviceName string, debug bool) {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.TimestampFieldName = "timestamp"
	zerolog.MessageFieldName = "message"

	log.Logger = New(Options{Service: serviceName, Debug: debug})
	log.Info().Bool("debug", debug).Msg("Logger initialized")
}

func Debug() *zerolog.Event {
	return log.Debug()
}

func Info() *zerolog.Event {
	return log.Info()
}

func Warn() *zerolog.Event {
	return log.Warn()
}

func Error() *zerolog.Event {
	return log.Error()
}

// Fatal logs and exits the process.
func Fatal() *zerolog.Event {
	return log.Fatal()
}
