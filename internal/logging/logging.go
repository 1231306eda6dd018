// Package logging configures the process-wide zap logger.
package logging

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	globalLogger *zap.Logger
	globalLevel  = zap.NewAtomicLevelAt(zapcore.WarnLevel)
)

// Config holds logging configuration.
type Config struct {
	Level      string // debug, info, warn, error
	Format     string // json, console
	OutputPath string // file path; empty means stderr
}

// Init builds the global logger. Log lines never go to stdout, where the
// terminal draws its transcript.
func Init(cfg Config) error {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.WarnLevel
	}
	globalLevel.SetLevel(level)

	var config zap.Config
	if cfg.Format == "console" {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	} else {
		config = zap.NewProductionConfig()
	}
	config.Level = globalLevel

	output := OutputPath(cfg.OutputPath)
	config.OutputPaths = []string{output}
	config.ErrorOutputPaths = []string{output}

	logger, err := config.Build(zap.AddStacktrace(zapcore.ErrorLevel))
	if err != nil {
		return err
	}
	globalLogger = logger.Named("bettermux").With(zap.Int("pid", os.Getpid()))
	return nil
}

// ParseLevel accepts zap level names in any case.
func ParseLevel(s string) (zapcore.Level, error) {
	var level zapcore.Level
	err := level.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(s))))
	return level, err
}

// OutputPath maps a configured destination to a zap sink. stdout is
// redirected to stderr.
func OutputPath(path string) string {
	switch strings.TrimSpace(path) {
	case "", "stdout", "stderr":
		return "stderr"
	}
	return path
}

// L returns the global logger, creating a warn-level stderr logger if Init
// was never called.
func L() *zap.Logger {
	if globalLogger == nil {
		config := zap.NewProductionConfig()
		config.Level = globalLevel
		config.OutputPaths = []string{"stderr"}
		logger, err := config.Build()
		if err != nil {
			logger = zap.NewNop()
		}
		globalLogger = logger
	}
	return globalLogger
}

// Sync flushes any buffered log entries.
func Sync() error {
	if globalLogger != nil {
		return globalLogger.Sync()
	}
	return nil
}

// ForSession returns a logger tagging every line with the session id.
func ForSession(base *zap.Logger, sessionID string) *zap.Logger {
	if base == nil {
		base = L()
	}
	return base.With(zap.String("session_id", sessionID))
}

// Command is the field naming the command being interpreted.
func Command(name string) zap.Field {
	return zap.String("command", name)
}
