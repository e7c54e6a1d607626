/*
Copyright Broca Project Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package wmlogger

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/trustbloc/logutil-go/pkg/log"
	"go.uber.org/zap"
)

// Module is the name of the Watermill module used for logging.
const Module = "watermill"

type logger interface {
	Debug(msg string, fields ...zap.Field)
	Info(msg string, fields ...zap.Field)
	Error(msg string, fields ...zap.Field)
	IsEnabled(level log.Level) bool
}

// Logger wraps the structured logger and implements the Watermill logger adapter interface.
type Logger struct {
	logger logger
	fields watermill.LogFields
}

// New returns a new Watermill logger adapter.
func New() *Logger {
	return newWMLogger(log.New(Module))
}

func newWMLogger(logger logger) *Logger {
	return &Logger{logger: logger}
}

// Error logs an error.
func (l *Logger) Error(msg string, err error, fields watermill.LogFields) {
	l.logger.Error(msg, append(l.toZapFields(fields), zap.Error(err))...)
}

// Info logs an informational message.
func (l *Logger) Info(msg string, fields watermill.LogFields) {
	// Watermill outputs too many INFO logs, so use the DEBUG log level.
	if !l.logger.IsEnabled(log.DEBUG) {
		return
	}

	l.logger.Info(msg, l.toZapFields(fields)...)
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string, fields watermill.LogFields) {
	if !l.logger.IsEnabled(log.DEBUG) {
		return
	}

	l.logger.Debug(msg, l.toZapFields(fields)...)
}

// Trace logs a trace message. Note that this implementation uses a debug log for trace.
func (l *Logger) Trace(msg string, fields watermill.LogFields) {
	if !l.logger.IsEnabled(log.DEBUG) {
		return
	}

	l.logger.Debug(msg, l.toZapFields(fields)...)
}

// With returns a new logger with the supplied fields so that each log contains these fields.
func (l *Logger) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &Logger{
		logger: l.logger,
		fields: l.fields.Add(fields),
	}
}

func (l *Logger) toZapFields(additionalFields watermill.LogFields) []zap.Field {
	combinedFields := l.fields.Add(additionalFields)

	if len(combinedFields) == 0 {
		return nil
	}

	zapFields := make([]zap.Field, 0, len(combinedFields))

	for k, v := range combinedFields {
		zapFields = append(zapFields, zap.Any(k, v))
	}

	return zapFields
}
