// Package usagelog is the Usage Logger: it accepts one UsageRecord per
// completed request over a bounded channel and persists them from a
// single background worker, batching writes and never blocking the
// request path. Modeled on the original gateway's fire-and-forget
// log_request, which never let a logging failure fail the request and
// fell back to printing the row it couldn't save.
package usagelog

import (
	"context"
	"encoding/json"
	"time"

	"github.com/amerfu/pllm-gateway/internal/models"
	"go.uber.org/zap"
)

// Store is the subset of the authoritative store the logger needs.
type Store interface {
	CreateUsageRecordBatch(ctx context.Context, recs []models.UsageRecord) error
}

// Logger buffers UsageRecords in memory and drains them to the store on a
// fixed interval or once the buffer fills, whichever comes first.
type Logger struct {
	store         Store
	logger        *zap.Logger
	queue         chan models.UsageRecord
	flushInterval time.Duration
	batchSize     int
}

func New(store Store, logger *zap.Logger, queueSize, batchSize int, flushInterval time.Duration) *Logger {
	if batchSize <= 0 {
		batchSize = 50
	}
	if flushInterval <= 0 {
		flushInterval = time.Second
	}
	return &Logger{
		store:         store,
		logger:        logger,
		queue:         make(chan models.UsageRecord, queueSize),
		flushInterval: flushInterval,
		batchSize:     batchSize,
	}
}

// Log enqueues a record. If the queue is full the oldest pending record
// is dropped to make room and written to the process log as a last
// resort, mirroring the original's "[LOG ERROR]" / "[LOG DATA]" fallback
// — never failing the request.
func (l *Logger) Log(rec models.UsageRecord) {
	select {
	case l.queue <- rec:
		return
	default:
	}
	select {
	case old := <-l.queue:
		l.fallback(old, "usage log queue full, dropped oldest record")
	default:
	}
	select {
	case l.queue <- rec:
	default:
		l.fallback(rec, "usage log queue full")
	}
}

// Run drains the queue until ctx is cancelled, flushing whatever remains
// before returning.
func (l *Logger) Run(ctx context.Context) {
	ticker := time.NewTicker(l.flushInterval)
	defer ticker.Stop()

	batch := make([]models.UsageRecord, 0, l.batchSize)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := l.store.CreateUsageRecordBatch(ctx, batch); err != nil {
			for _, rec := range batch {
				l.fallback(rec, err.Error())
			}
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case rec := <-l.queue:
					batch = append(batch, rec)
					if len(batch) >= l.batchSize {
						flush()
					}
				default:
					flush()
					return
				}
			}
		case rec := <-l.queue:
			batch = append(batch, rec)
			if len(batch) >= l.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

// fallback prints a record the logger could not persist so the operator
// can recover it from process logs rather than losing it silently.
func (l *Logger) fallback(rec models.UsageRecord, reason string) {
	data, _ := json.Marshal(rec)
	l.logger.Error("usage_log_error: failed to persist usage record",
		zap.String("reason", reason),
		zap.String("request_id", rec.RequestID),
		zap.ByteString("record", data),
	)
}
