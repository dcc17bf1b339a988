package client

import "go.uber.org/zap"

// Logger is the minimal sink the dispatcher falls back to when no
// StructuredLogger is configured.
type Logger interface {
	Debugf(format string, args ...any)
}

// StructuredLogger receives keyvals the way zap's SugaredLogger.Debugw does;
// the dispatcher always has an even-length keyvals slice.
type StructuredLogger interface {
	Debugw(msg string, keyvals ...any)
}

// logField is one structured key/value pair threaded through
// logDispatcherEvent.
type logField struct {
	key   string
	value any
}

func logKV(key string, value any) logField {
	return logField{key: key, value: value}
}

// zapLogger adapts *zap.Logger to StructuredLogger. The teacher's client
// package declared the StructuredLogger interface but never shipped a
// concrete backend; this is that backend.
type zapLogger struct {
	l *zap.SugaredLogger
}

// NewZapLogger wraps l as a client.StructuredLogger.
func NewZapLogger(l *zap.Logger) StructuredLogger {
	return &zapLogger{l: l.Sugar()}
}

func (z *zapLogger) Debugw(msg string, keyvals ...any) {
	z.l.Debugw(msg, keyvals...)
}

func fieldsToKeyvals(fields []logField) []any {
	kv := make([]any, 0, len(fields)*2)
	for _, f := range fields {
		kv = append(kv, f.key, f.value)
	}
	return kv
}
