// Package observability holds the process-wide loggers and metrics registry.
package observability

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logging profiles.
const (
	// ProfileStructured emits JSON lines.
	ProfileStructured = "STRUCTURED"

	// ProfileConsole emits human-readable lines.
	ProfileConsole = "CONSOLE"
)

var (
	// CLILogger writes command progress and diagnostics to stderr.
	// Stdout is reserved for command output.
	CLILogger = zap.NewNop()

	// ServerLogger is used by the HTTP server and request handlers.
	ServerLogger = zap.NewNop()
)

// InitCLILogger configures CLILogger with a console encoder on stderr.
// verbose lowers the level to debug.
func InitCLILogger(serviceName string, verbose bool) {
	level := zapcore.InfoLevel
	if verbose {
		level = zapcore.DebugLevel
	}

	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.TimeKey = ""
	encCfg.CallerKey = ""
	encCfg.NameKey = ""
	encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	if !isTerminal(os.Stderr) {
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	}

	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.Lock(os.Stderr), level)
	CLILogger = zap.New(core).Named(serviceName)
}

// InitServerLogger configures ServerLogger. level is a zap level name and
// profile is STRUCTURED or CONSOLE (case-insensitive).
func InitServerLogger(serviceName, level, profile string) error {
	lvl, err := ParseLevel(level)
	if err != nil {
		return err
	}

	var enc zapcore.Encoder
	switch strings.ToUpper(profile) {
	case "", ProfileStructured:
		encCfg := zap.NewProductionEncoderConfig()
		encCfg.TimeKey = "ts"
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		enc = zapcore.NewJSONEncoder(encCfg)
	case ProfileConsole:
		encCfg := zap.NewDevelopmentEncoderConfig()
		enc = zapcore.NewConsoleEncoder(encCfg)
	default:
		return fmt.Errorf("unknown logging profile %q (expected STRUCTURED or CONSOLE)", profile)
	}

	core := zapcore.NewCore(enc, zapcore.Lock(os.Stderr), lvl)
	ServerLogger = zap.New(core, zap.AddCaller()).With(zap.String("service", serviceName))
	return nil
}

// ParseLevel maps a level name to a zap level. Empty means info.
func ParseLevel(level string) (zapcore.Level, error) {
	if level == "" {
		return zapcore.InfoLevel, nil
	}
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
		return lvl, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return lvl, nil
}

// Sync flushes both loggers. Errors from syncing a terminal are ignored.
func Sync() {
	_ = CLILogger.Sync()
	_ = ServerLogger.Sync()
}

func isTerminal(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}
