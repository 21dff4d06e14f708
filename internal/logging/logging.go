// Package logging adapts the structured loggers used by the provider and the
// CLI to the Logger interface consumed by the engine.
package logging

import (
	"context"

	"github.com/hashicorp/terraform-plugin-log/tflog"
	"github.com/rs/zerolog"
)

// Fields is an optional set of structured key/value pairs attached to a line.
type Fields = map[string]interface{}

// Logger is the logging surface of the engine. The signature matches tflog so
// that the provider can pass its context-scoped logger straight through.
type Logger interface {
	Debug(ctx context.Context, msg string, fields ...Fields)
	Info(ctx context.Context, msg string, fields ...Fields)
	Warn(ctx context.Context, msg string, fields ...Fields)
}

// TFLog writes through terraform-plugin-log, so lines end up in the
// Terraform CLI's log output (TF_LOG).
type TFLog struct{}

func (TFLog) Debug(ctx context.Context, msg string, fields ...Fields) {
	tflog.Debug(ctx, msg, fields...)
}

func (TFLog) Info(ctx context.Context, msg string, fields ...Fields) {
	tflog.Info(ctx, msg, fields...)
}

func (TFLog) Warn(ctx context.Context, msg string, fields ...Fields) {
	tflog.Warn(ctx, msg, fields...)
}

// Zerolog writes through a zerolog.Logger.
type Zerolog struct {
	L zerolog.Logger
}

func (z Zerolog) Debug(_ context.Context, msg string, fields ...Fields) {
	z.emit(z.L.Debug(), msg, fields)
}

func (z Zerolog) Info(_ context.Context, msg string, fields ...Fields) {
	z.emit(z.L.Info(), msg, fields)
}

func (z Zerolog) Warn(_ context.Context, msg string, fields ...Fields) {
	z.emit(z.L.Warn(), msg, fields)
}

func (z Zerolog) emit(ev *zerolog.Event, msg string, fields []Fields) {
	for _, f := range fields {
		ev = ev.Fields(f)
	}
	ev.Msg(msg)
}

// Discard drops every line.
type Discard struct{}

func (Discard) Debug(context.Context, string, ...Fields) {}
func (Discard) Info(context.Context, string, ...Fields)  {}
func (Discard) Warn(context.Context, string, ...Fields)  {}
