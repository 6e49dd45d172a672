// Package worker provides an asynchronous worker pool for recording completed
// conversation turns: persisting them to the transcript store and publishing
// turn events to the event stream.
//
// The pool decouples recording from the gateway's HTTP hot path so that the
// client-gateway-upstream interaction is fully transparent.
package worker

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/papercomputeco/patchbay/pkg/eventstream"
	"github.com/papercomputeco/patchbay/pkg/llm"
	"github.com/papercomputeco/patchbay/pkg/transcript"
)

var (
	defaultNumWorkers   uint = 3
	defaultJobQueueSize uint = 256
)

// Job is one completed turn for the worker pool to record.
type Job struct {
	Provider string
	Turn     llm.ConversationTurn
	Meta     eventstream.TurnRequestMeta
}

// Config is the configuration options for the worker pool.
type Config struct {
	// Store is the transcript store for persisting turns.
	Store transcript.Store

	// Publisher is the optional event stream publisher. A nil Publisher
	// disables turn events.
	Publisher eventstream.Publisher

	// Gateway identifies this gateway instance in published events,
	// typically its listen address.
	Gateway string

	// NumWorkers is the number of background workers in the pool.
	NumWorkers uint

	// QueueSize is the capacity of the buffered job channel (defaults to 256).
	QueueSize uint

	// Logger is the provided zap logger
	Logger *zap.Logger
}

// Pool records completed turns asynchronously via a worker pool.
type Pool struct {
	config *Config
	queue  chan Job
	wg     sync.WaitGroup
	logger *zap.Logger
}

// NewPool creates a new Pool and starts its worker goroutines.
func NewPool(c *Config) (*Pool, error) {
	if c.NumWorkers == 0 {
		c.NumWorkers = defaultNumWorkers
	}

	if c.QueueSize == 0 {
		c.QueueSize = defaultJobQueueSize
	}

	if c.NumWorkers > uint(math.MaxInt) {
		return nil, fmt.Errorf("NumWorkers %d exceeds max int", c.NumWorkers)
	}

	wp := &Pool{
		config: c,
		queue:  make(chan Job, c.QueueSize),
		logger: c.Logger,
	}

	wp.wg.Add(int(c.NumWorkers))
	for i := range c.NumWorkers {
		go wp.worker(i)
	}

	return wp, nil
}

// Enqueue submits a job for processing by the worker pool.
// Returns true if enqueued, false if the queue is full, resulting in the job being dropped
func (p *Pool) Enqueue(job Job) bool {
	select {
	case p.queue <- job:
		p.logger.Debug("job queued",
			zap.String("provider", job.Provider),
			zap.String("model", jobModel(job)),
		)
		return true
	default:
		p.logger.Error("job not queued, queue full, job dropped",
			zap.String("provider", job.Provider),
			zap.String("model", jobModel(job)),
		)
		return false
	}
}

// Close signals workers to stop and waits for in-flight jobs to drain.
// Call this during graceful shutdown after the gateway HTTP server has stopped.
func (p *Pool) Close() {
	close(p.queue)
	p.wg.Wait()
}

// worker is the inner worker thread that continuously pulls jobs off the jobs queue
func (p *Pool) worker(id uint) {
	defer p.wg.Done()
	p.logger.Debug("worker started", zap.Uint("worker_id", id))

	for job := range p.queue {
		p.processJob(job)
	}

	p.logger.Debug("recording worker stopped", zap.Uint("worker_id", id))
}

// processJob records a Job: the turn is saved to the transcript store, then
// announced on the event stream. A turn that fails to save is not announced;
// the event's record id must reference a persisted record.
func (p *Pool) processJob(job Job) {
	ctx := context.Background()

	rec := transcript.NewRecord(&job.Turn)
	if err := p.config.Store.Save(ctx, rec); err != nil {
		p.logger.Error("async transcript save failed",
			zap.String("provider", job.Provider),
			zap.Error(err),
		)
		return
	}

	p.logger.Info("turn recorded",
		zap.String("record_id", rec.ID),
		zap.String("conversation_id", rec.ConversationID),
		zap.String("provider", job.Provider),
	)

	if p.config.Publisher == nil {
		return
	}

	event := p.turnEvent(job, rec)
	if err := p.config.Publisher.PublishTurn(ctx, event); err != nil {
		p.logger.Warn("turn event publish failed",
			zap.String("record_id", rec.ID),
			zap.Error(err),
		)
		return
	}

	p.logger.Debug("turn event published",
		zap.String("event_id", event.EventID),
		zap.String("record_id", rec.ID),
	)
}

// turnEvent builds the event announcing a recorded turn.
func (p *Pool) turnEvent(job Job, rec *transcript.Record) *eventstream.TurnRecordedEvent {
	return &eventstream.TurnRecordedEvent{
		SchemaVersion: eventstream.SchemaVersionV1,
		EventType:     eventstream.EventTypeTurnRecorded,
		EventID:       uuid.NewString(),
		EmittedAt:     time.Now().UTC(),
		Source: eventstream.EventSource{
			Gateway:  p.config.Gateway,
			Provider: job.Provider,
			Model:    rec.Model,
		},
		RequestMeta: job.Meta,
		Transcript: eventstream.TurnTranscriptMeta{
			RecordID:       rec.ID,
			ConversationID: rec.ConversationID,
		},
		Turn: job.Turn,
	}
}

// jobModel is the model name for logging, tolerating a nil request.
func jobModel(job Job) string {
	if job.Turn.Request == nil {
		return ""
	}
	return job.Turn.Request.Model
}
