// Package logger provides structured logging for walletmesh.
//
// It builds log/slog loggers with a shared dynamic level and redaction of
// credential-bearing attributes:
//
//   - logger.go: logger construction and level control
//   - context.go: context-carried loggers and wallet attributes
//   - redact.go: sensitive attribute redaction
package logger
