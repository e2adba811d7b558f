package audit

import (
	"context"
	"log/slog"

	"github.com/mattjoyce/wxgate/internal/center"
	"github.com/mattjoyce/wxgate/internal/fault"
)

var _ center.Observer = (*LogObserver)(nil)

// LogObserver writes one structured line per callback outcome.
type LogObserver struct {
	logger *slog.Logger
}

func NewLogObserver(logger *slog.Logger) *LogObserver {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogObserver{logger: logger}
}

func (o *LogObserver) OnRequest(ctx context.Context, app string, raw []byte) {
	o.logger.DebugContext(ctx, "callback received", "app", app, "bytes", len(raw))
}

func (o *LogObserver) OnResponse(ctx context.Context, ex center.Exchange) {
	r := FromExchange(ex)
	o.logger.InfoContext(ctx, "callback answered",
		"app", r.App,
		"key", r.Key,
		"kind", r.Kind,
		"event", r.Event,
		"source", r.Source,
		"duration_ms", r.DurationMS,
	)
}

// OnFailure logs handler and encryption failures at ERROR; rejected or
// malformed input is the caller's problem and logs at WARN.
func (o *LogObserver) OnFailure(ctx context.Context, f center.Failure) {
	kind := fault.KindOf(f.Err)
	level := slog.LevelWarn
	if kind == fault.HandlerFailure || kind == fault.EncryptionFailed || kind == "" {
		level = slog.LevelError
	}
	o.logger.Log(ctx, level, "callback failed",
		"app", f.App,
		"key", f.Key,
		"error_kind", string(kind),
		"error", f.Err,
	)
}
