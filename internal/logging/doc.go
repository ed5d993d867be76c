// Package logging provides structured logging for cabinheat.
//
// This package wraps zap logger with convenience functions for common logging
// patterns used throughout the client. It provides both general logging
// functions and specialized functions for protocol-specific logging needs.
//
// # Log Levels
//
// The package supports standard log levels:
//   - Debug: Detailed debugging info (hex dumps, frame decoding, retries)
//   - Info: Normal operations (connections, commands, state changes)
//   - Warn: Non-fatal issues (connection drops, checksum mismatches)
//   - Error: Fatal issues (startup failures, unrecoverable BLE errors)
//
// # Structured Logging
//
// All log functions use structured fields for queryability:
//
//	logging.Info("Device connected",
//	    zap.String("address", "A4:C1:38:12:34:56"),
//	    zap.String("name", "AirHeaterBLE"),
//	)
//
// # Specialized Logging
//
// The package provides domain-specific logging functions:
//
// Connection Logging:
//
//	logging.LogConnection(address, "scan_match")
//	logging.LogConnection(address, "connected")
//	logging.LogConnection(address, "notifications_enabled")
//	logging.LogConnection(address, "disconnected")
//
// Frame Logging:
//
//	logging.LogFrame(address, "write", frame)
//	logging.LogFrame(address, "notify", frame)
//
// Raw byte dumps for protocol debugging:
//
//	logging.LogRawBytes("masked notification", data)
//
// # Configuration
//
// CLI commands should initialize from the environment so that output stays
// silent unless the user asks for it:
//
//	if err := logging.InitializeFromEnv(); err != nil {
//	    log.Fatal(err)
//	}
//	defer logging.Sync()
//
// Set CABINHEAT_LOG_LEVEL=debug to see frame-level detail.
//
// # Thread Safety
//
// All logging functions are safe for concurrent use. The underlying zap logger
// handles synchronization automatically.
package logging
