package observability

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ZapLevel maps this level to the corresponding zapcore.Level.
func (l Level) ZapLevel() zapcore.Level {
	switch {
	case l <= 8:
		return zapcore.DebugLevel
	case l <= 12:
		return zapcore.InfoLevel
	case l <= 16:
		return zapcore.WarnLevel
	default:
		return zapcore.ErrorLevel
	}
}

// ZapObserver writes events to a zap.Logger using the same field layout as
// SlogObserver.
type ZapObserver struct {
	logger *zap.Logger
}

// NewZapObserver creates a ZapObserver. A nil logger means zap's global
// logger, looked up on every event so zap.ReplaceGlobals takes effect.
func NewZapObserver(logger *zap.Logger) *ZapObserver {
	return &ZapObserver{logger: logger}
}

func (o *ZapObserver) OnEvent(_ context.Context, event Event) {
	logger := o.logger
	if logger == nil {
		logger = zap.L()
	}

	ce := logger.Check(event.Level.ZapLevel(), string(event.Type))
	if ce == nil {
		return
	}

	fields := make([]zap.Field, 0, len(event.Data)+3)
	fields = append(fields, zap.String("source", event.Source))
	if event.Scope != "" {
		fields = append(fields, zap.String("scope", event.Scope))
	}
	if event.Key != "" {
		fields = append(fields, zap.String("atom_key", event.Key))
	}
	for k, v := range event.Data {
		fields = append(fields, zap.Any(k, v))
	}

	ce.Write(fields...)
}
