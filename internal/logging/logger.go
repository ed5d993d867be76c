package logging

import (
	"encoding/hex"
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var logger *zap.Logger

// LogLevelEnvVar is the environment variable that controls logging verbosity.
// When unset or empty, logging is silent (no zap output).
// Valid values: "debug", "info", "warn", "error"
const LogLevelEnvVar = "CABINHEAT_LOG_LEVEL"

// Initialize creates a new logger with the specified level.
// If level is empty, it checks CABINHEAT_LOG_LEVEL environment variable.
// If neither is set, logging is disabled (silent mode).
func Initialize(level string) error {
	// If no level provided, check environment variable
	if level == "" {
		level = os.Getenv(LogLevelEnvVar)
	}

	// If still no level, use silent mode (nop logger)
	if level == "" {
		logger = zap.NewNop()
		return nil
	}

	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		// Unknown level - use info as default when explicitly set to something
		zapLevel = zapcore.InfoLevel
	}

	config := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapLevel),
		Development:      false,
		Encoding:         "console",
		EncoderConfig:    zap.NewDevelopmentEncoderConfig(),
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	// Customize encoder for better readability
	config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.EncoderConfig.EncodeCaller = zapcore.ShortCallerEncoder

	var err error
	logger, err = config.Build()
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	return nil
}

// InitializeFromEnv initializes the logger from the CABINHEAT_LOG_LEVEL
// environment variable. This is the recommended way to initialize logging
// for CLI commands that want silent mode by default.
func InitializeFromEnv() error {
	return Initialize("")
}

// GetLogger returns the global logger instance
func GetLogger() *zap.Logger {
	if logger == nil {
		// Fallback to silent logger if not initialized
		// This ensures no unexpected log output in CLI commands
		logger = zap.NewNop()
	}
	return logger
}

// Info logs an info message
func Info(msg string, fields ...zap.Field) {
	GetLogger().Info(msg, fields...)
}

// Debug logs a debug message
func Debug(msg string, fields ...zap.Field) {
	GetLogger().Debug(msg, fields...)
}

// Warn logs a warning message
func Warn(msg string, fields ...zap.Field) {
	GetLogger().Warn(msg, fields...)
}

// Error logs an error message
func Error(msg string, fields ...zap.Field) {
	GetLogger().Error(msg, fields...)
}

// Fatal logs a fatal message and exits
func Fatal(msg string, fields ...zap.Field) {
	GetLogger().Fatal(msg, fields...)
}

// LogConnection logs a BLE connection lifecycle event
func LogConnection(address string, event string) {
	Info("Connection event",
		zap.String("address", address),
		zap.String("event", event),
	)
}

// LogFrame logs one protocol frame with direction ("write" or "notify").
// Full hex is only attached at debug level to keep info output compact.
func LogFrame(address string, direction string, frame []byte) {
	fields := []zap.Field{
		zap.String("address", address),
		zap.String("direction", direction),
		zap.Int("length", len(frame)),
	}
	if GetLogger().Core().Enabled(zapcore.DebugLevel) {
		fields = append(fields, zap.String("hex", hexDump(frame)))
	}
	Info("Protocol frame", fields...)
}

// LogRawBytes logs raw bytes (useful for debugging protocol issues)
func LogRawBytes(label string, data []byte) {
	Debug(label,
		zap.Int("length", len(data)),
		zap.String("hex", hexDump(data)),
		zap.String("ascii", asciiDump(data)),
	)
}

// Helper functions

func hexDump(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	// Limit to first 256 bytes for logging
	if len(data) > 256 {
		return hex.EncodeToString(data[:256]) + "..."
	}
	return hex.EncodeToString(data)
}

func asciiDump(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	// Limit to first 256 bytes
	if len(data) > 256 {
		data = data[:256]
	}

	result := make([]byte, len(data))
	for i, b := range data {
		if b >= 32 && b <= 126 {
			result[i] = b
		} else {
			result[i] = '.'
		}
	}
	return string(result)
}

// Sync flushes any buffered log entries
func Sync() {
	if logger != nil {
		_ = logger.Sync()
	}
}
