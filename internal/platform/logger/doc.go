// Package logger provides structured logging functionality for the application.
//
// It utilizes Go's standard library log/slog package to implement structured JSON logging
// with configurable log levels. Loggers travel through request and task contexts via
// WithLogger and FromContext, and every attribute is passed through the redact package.
package logger
