package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/storm-data-shared/retry"

	"github.com/couchcryptid/gfs-grid-etl/internal/domain"
	"github.com/couchcryptid/gfs-grid-etl/internal/observability"
)

// commitTimeout bounds an offset commit once the pipeline context is done.
const commitTimeout = 5 * time.Second

// BatchExtractor reads up to batchSize notifications from the source.
type BatchExtractor interface {
	ExtractBatch(ctx context.Context, batchSize int) ([]domain.Notification, error)
}

// Processor converts the objects named in one notification payload.
type Processor interface {
	Process(ctx context.Context, payload []byte) ([]Result, error)
}

// BatchLoader publishes completion events.
type BatchLoader interface {
	LoadBatch(ctx context.Context, events []domain.ConversionEvent) error
}

// Pipeline consumes notifications and converts them one at a time, in order.
type Pipeline struct {
	extractor BatchExtractor
	processor Processor
	loader    BatchLoader
	logger    *slog.Logger
	metrics   *observability.Metrics
	ready     atomic.Bool
	batchSize int
}

// New creates a Pipeline. A nil loader disables completion events.
func New(e BatchExtractor, p Processor, l BatchLoader, logger *slog.Logger, metrics *observability.Metrics, batchSize int) *Pipeline {
	return &Pipeline{
		extractor: e,
		processor: p,
		loader:    l,
		logger:    logger,
		metrics:   metrics,
		batchSize: batchSize,
	}
}

// CheckReadiness returns nil if the pipeline has handled at least one batch,
// or an error describing why the service is not yet ready.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("pipeline has not processed any messages yet")
	}
	return nil
}

// Run executes the consume loop until the context is cancelled.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("pipeline started", "batch_size", p.batchSize, "completion_events", p.loader != nil)
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	// Exponential backoff on extract failures: start at 200ms, double, cap at 5s.
	backoff := 200 * time.Millisecond
	maxBackoff := 5 * time.Second

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("pipeline stopping", "reason", ctx.Err())
			return nil
		default:
		}

		if !p.processBatch(ctx, &backoff, maxBackoff) {
			return nil
		}
	}
}

// processBatch runs one extract-convert-publish cycle. Returns false if the pipeline should stop.
func (p *Pipeline) processBatch(ctx context.Context, backoff *time.Duration, maxBackoff time.Duration) bool {
	batch, err := p.extractor.ExtractBatch(ctx, p.batchSize)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		p.logger.Error("extract batch failed", "error", err)
		return p.backoffOrStop(ctx, backoff, maxBackoff)
	}

	if len(batch) == 0 {
		return ctx.Err() == nil
	}

	p.metrics.MessagesConsumed.Add(float64(len(batch)))
	*backoff = 200 * time.Millisecond

	events := make([]domain.ConversionEvent, 0, len(batch))
	handled := make([]domain.Notification, 0, len(batch))

	for _, msg := range batch {
		results, err := p.processor.Process(ctx, msg.Value)
		if err != nil {
			if ctx.Err() != nil {
				// Leave the offset uncommitted so the message is redelivered.
				break
			}
			p.logger.Warn("conversion failed, skipping message",
				"error", err,
				"topic", msg.Topic,
				"partition", msg.Partition,
				"offset", msg.Offset,
			)
		}
		for _, r := range results {
			if !r.Skipped {
				events = append(events, r.Event)
			}
		}
		handled = append(handled, msg)
	}

	if p.loader != nil && len(events) > 0 {
		if err := p.loader.LoadBatch(ctx, events); err != nil {
			p.logger.Error("publish completion events failed", "error", err, "events", len(events))
		}
	}

	for _, msg := range handled {
		p.commitOffset(ctx, msg)
	}

	if len(handled) > 0 {
		p.ready.Store(true)
	}
	return ctx.Err() == nil
}

// backoffOrStop checks for context cancellation, sleeps with the current backoff,
// and advances the backoff. Returns false if the pipeline should stop.
func (p *Pipeline) backoffOrStop(ctx context.Context, backoff *time.Duration, maxBackoff time.Duration) bool {
	if ctx.Err() != nil {
		return false
	}
	if !retry.SleepWithContext(ctx, *backoff) {
		return false
	}
	*backoff = retry.NextBackoff(*backoff, maxBackoff)
	return true
}

// commitOffset commits the message offset if a commit function is available.
func (p *Pipeline) commitOffset(ctx context.Context, msg domain.Notification) {
	if msg.Commit == nil {
		return
	}
	// Finished work is acknowledged even when shutdown has cancelled ctx.
	commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), commitTimeout)
	defer cancel()
	if err := msg.Commit(commitCtx); err != nil {
		p.logger.Warn("commit offset failed", "error", err,
			"topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset)
	}
}
