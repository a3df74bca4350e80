// Package telemetry records dispatcher events as structured log lines.
package telemetry

import (
	"context"
	"log/slog"
	"sort"
)

// Sink writes message, event and error records through slog. Each record
// carries a "telemetry" attribute naming its kind so log queries can filter
// them from ordinary application logs.
type Sink struct {
	logger *slog.Logger
}

func NewSink(logger *slog.Logger) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{logger: logger}
}

// TrackMessage records one handled inbound message and the intent it was
// dispatched to.
func (s *Sink) TrackMessage(ctx context.Context, identityID, intent string) {
	s.logger.LogAttrs(ctx, slog.LevelInfo, "message handled",
		slog.String("telemetry", "message"),
		slog.String("identity", identityID),
		slog.String("intent", intent),
	)
}

func (s *Sink) TrackEvent(ctx context.Context, name string, props map[string]string) {
	attrs := append([]slog.Attr{
		slog.String("telemetry", "event"),
		slog.String("event", name),
	}, propAttrs(props)...)
	s.logger.LogAttrs(ctx, slog.LevelInfo, "event", attrs...)
}

func (s *Sink) TrackError(ctx context.Context, err error, props map[string]string) {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	attrs := append([]slog.Attr{
		slog.String("telemetry", "error"),
		slog.String("err", msg),
	}, propAttrs(props)...)
	s.logger.LogAttrs(ctx, slog.LevelError, "error", attrs...)
}

func propAttrs(props map[string]string) []slog.Attr {
	if len(props) == 0 {
		return nil
	}
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	attrs := make([]slog.Attr, 0, len(keys))
	for _, k := range keys {
		attrs = append(attrs, slog.String(k, props[k]))
	}
	return []slog.Attr{{Key: "props", Value: slog.GroupValue(attrs...)}}
}
