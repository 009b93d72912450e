package kpirewardd

import (
	"log/slog"
	"sort"

	"auxrewards/core/events"
)

// logEmitter mirrors every emitted event into the structured log.
type logEmitter struct {
	logger *slog.Logger
}

func (l logEmitter) Emit(evt events.Event) {
	if evt == nil {
		return
	}
	rendered := evt.Event()
	if rendered == nil {
		return
	}
	keys := make([]string, 0, len(rendered.Attributes))
	for k := range rendered.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	attrs := make([]any, 0, len(keys)+1)
	attrs = append(attrs, slog.String("event", rendered.Type))
	for _, k := range keys {
		attrs = append(attrs, slog.String(k, rendered.Attributes[k]))
	}
	l.logger.Info("kpirewardd: event", attrs...)
}
