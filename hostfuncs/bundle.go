package hostfuncs

import (
	"context"
	"maps"
	"slices"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wasmplug/wasmplug/domain/entities"
	"github.com/wasmplug/wasmplug/wireformat"
)

// HostFuncBundle is a pre-configured set of related host functions.
type HostFuncBundle interface {
	// Handlers returns a map of handler names to ByteHandler functions.
	Handlers() map[string]ByteHandler
}

// StaticBundle is a HostFuncBundle with a fixed set of handlers.
type StaticBundle map[string]ByteHandler

// Handlers implements HostFuncBundle.
func (b StaticBundle) Handlers() map[string]ByteHandler {
	return maps.Clone(b)
}

// LogBundle returns the log_message host function, which routes guest log
// records to logger.
func LogBundle(logger *zap.Logger) HostFuncBundle {
	return StaticBundle{
		wireformat.ImportLogMessage: NewMsgpackHandler(func(ctx context.Context, rec wireformat.LogRecord) (entities.Value, error) {
			return nil, logRecord(ctx, logger, rec)
		}),
	}
}

func logRecord(ctx context.Context, logger *zap.Logger, rec wireformat.LogRecord) error {
	level, err := zapcore.ParseLevel(rec.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}
	// Guests never panic or exit the host through its logger.
	if level > zapcore.ErrorLevel {
		level = zapcore.ErrorLevel
	}
	if !logger.Core().Enabled(level) {
		return nil
	}

	fields := make([]zap.Field, 0, len(rec.Attrs)+1)
	if caller, ok := CallerFrom(ctx); ok {
		fields = append(fields, zap.String("plugin", caller))
	}
	keys := make([]string, 0, len(rec.Attrs))
	for k := range rec.Attrs {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		fields = append(fields, zap.String(k, rec.Attrs[k]))
	}

	if ce := logger.Check(level, rec.Message); ce != nil {
		ce.Write(fields...)
	}
	return nil
}
