// Package observability provides logging for CLI commands and the dev
// gateway server.
package observability

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// CLILogger is the process-wide logger for command output. Commands log
// through it; it writes human-readable lines to stderr so stdout stays
// clean for data.
var CLILogger *zap.Logger = zap.NewNop()

// InitCLILogger configures CLILogger at the given level. jsonOutput switches
// to machine-readable JSON lines for log shippers.
func InitCLILogger(level string, jsonOutput bool) {
	lvl := parseLevel(level)

	encoderCfg := zap.NewDevelopmentEncoderConfig()
	encoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	encoder := zapcore.NewConsoleEncoder(encoderCfg)
	if jsonOutput {
		encoderCfg = zap.NewProductionEncoderConfig()
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	}

	core := zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), lvl)
	CLILogger = zap.New(core)
}

// NewServerLogger builds a JSON logger for the dev gateway server.
func NewServerLogger(level string) *zap.Logger {
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
		zapcore.Lock(os.Stderr),
		parseLevel(level),
	)
	return zap.New(core, zap.AddCaller())
}

// SyncLogger flushes buffered log entries. Call before process exit.
func SyncLogger() {
	if CLILogger != nil {
		_ = CLILogger.Sync()
	}
}

func parseLevel(level string) zapcore.Level {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return zapcore.InfoLevel
	}
	return lvl
}
