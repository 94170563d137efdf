// Package zaplog adapts a *zap.Logger to rabbitmq.Logger.
package zaplog

import (
	"go.uber.org/zap"

	"github.com/dbolly/rabbitmq-abstraction"
)

// Logger wraps a *zap.Logger to satisfy rabbitmq.Logger.
type Logger struct {
	z *zap.Logger
}

// New wraps z. A nil z is replaced with zap.NewNop().
func New(z *zap.Logger) *Logger {
	if z == nil {
		z = zap.NewNop()
	}
	return &Logger{z: z}
}

func toZapFields(fields []rabbitmq.Field) []zap.Field {
	zfs := make([]zap.Field, len(fields))
	for i, f := range fields {
		zfs[i] = zap.Any(f.Key, f.Value)
	}
	return zfs
}

func (l *Logger) Debug(msg string, fields ...rabbitmq.Field) { l.z.Debug(msg, toZapFields(fields)...) }
func (l *Logger) Info(msg string, fields ...rabbitmq.Field)  { l.z.Info(msg, toZapFields(fields)...) }
func (l *Logger) Warn(msg string, fields ...rabbitmq.Field)  { l.z.Warn(msg, toZapFields(fields)...) }
func (l *Logger) Error(msg string, fields ...rabbitmq.Field) { l.z.Error(msg, toZapFields(fields)...) }

var _ rabbitmq.Logger = (*Logger)(nil)
