// Package metrics provides a minimal counter sink. The default sink reports
// through the structured logger; deployments scrape the log stream.
package metrics

import "go.uber.org/zap"

// Sink receives named counter increments.
type Sink interface {
	Count(name string, delta int64, tags map[string]string)
}

// Counter names emitted by the collaboration pipeline.
const (
	CounterOperationsApplied   = "collab.operations.applied"
	CounterOperationsRejected  = "collab.operations.rejected"
	CounterTransformsPerformed = "collab.transforms.performed"
	CounterSnapshotsPersisted  = "collab.snapshots.persisted"
	CounterConnectionsOpened   = "collab.connections.opened"
	CounterConnectionsClosed   = "collab.connections.closed"
)

type logSink struct {
	logger *zap.Logger
}

// NewLogSink emits every increment as a debug log line.
func NewLogSink(logger *zap.Logger) Sink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &logSink{logger: logger}
}

func (s *logSink) Count(name string, delta int64, tags map[string]string) {
	fields := make([]zap.Field, 0, len(tags)+2)
	fields = append(fields, zap.String("metric", name), zap.Int64("delta", delta))
	for key, value := range tags {
		fields = append(fields, zap.String(key, value))
	}
	s.logger.Debug("metric", fields...)
}

type nopSink struct{}

// NewNopSink discards every increment.
func NewNopSink() Sink { return nopSink{} }

func (nopSink) Count(string, int64, map[string]string) {}
