// SPDX-License-Identifier: MIT

package report

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/slhost/exibridge/internal/log"
	"github.com/slhost/exibridge/internal/metrics"
)

// Config holds the pipeline's retry knobs.
type Config struct {
	// MaxAttempts caps delivery attempts per job during normal operation.
	MaxAttempts int
	// BaseDelay is the first retry wait; it doubles per attempt.
	BaseDelay time.Duration
	// MaxDelay caps an individual retry wait.
	MaxDelay time.Duration
}

// Reporter is the public handle for the delivery pipeline. Producers enqueue
// from the emulation thread; a single worker goroutine drains the queue in
// FIFO order. Enqueue operations never block and never perform I/O.
type Reporter struct {
	endpoint Endpoint
	creds    CredentialSource
	cfg      Config
	logger   zerolog.Logger

	mu     sync.Mutex
	queue  []*job
	closed bool

	notify   chan struct{}
	shutdown chan struct{}
	done     chan struct{}

	runCtx    context.Context
	cancelRun context.CancelFunc
}

// New creates a Reporter and starts its worker goroutine. Call Close to stop
// it; the Reporter must not outlive the Device that owns it.
func New(endpoint Endpoint, creds CredentialSource, cfg Config) *Reporter {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 500 * time.Millisecond
	}
	if cfg.MaxDelay < cfg.BaseDelay {
		cfg.MaxDelay = cfg.BaseDelay
	}

	runCtx, cancelRun := context.WithCancel(context.Background())

	r := &Reporter{
		endpoint:  endpoint,
		creds:     creds,
		cfg:       cfg,
		logger:    log.WithComponent("report"),
		notify:    make(chan struct{}, 1),
		shutdown:  make(chan struct{}),
		done:      make(chan struct{}),
		runCtx:    runCtx,
		cancelRun: cancelRun,
	}

	go r.run()
	return r
}

// StartSession marks the beginning of a new match session. It resets replay
// accumulation and notifies the remote endpoint.
func (r *Reporter) StartSession() {
	r.enqueue(newJob(KindSessionStart))
}

// LogReport hands a finalized game report to the pipeline. Ownership of the
// report transfers here; the caller must not mutate it afterwards.
func (r *Reporter) LogReport(report *GameReport) {
	j := newJob(KindGameReport)
	j.report = report
	r.enqueue(j)
}

// PushReplayData appends raw replay bytes to the delivery stream. The bytes
// are copied, so the caller's buffer may be reused immediately.
func (r *Reporter) PushReplayData(data []byte) {
	j := newJob(KindReplayChunk)
	j.chunk = append([]byte(nil), data...)
	r.enqueue(j)
}

// ReportCompletion notifies the endpoint that the match ended normally.
func (r *Reporter) ReportCompletion(matchID string, endMode uint8) {
	j := newJob(KindMatchCompletion)
	j.matchID = matchID
	j.endMode = endMode
	r.enqueue(j)
}

// ReportAbandonment notifies the endpoint that the match was abandoned.
func (r *Reporter) ReportAbandonment(matchID string) {
	j := newJob(KindMatchAbandonment)
	j.matchID = matchID
	r.enqueue(j)
}

// Pending returns the number of jobs waiting in the queue.
func (r *Reporter) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.queue)
}

// Close drains the queue with single-attempt delivery until ctx expires, then
// abandons whatever is left. It blocks until the worker goroutine has exited,
// which is prompt after abandonment because the in-flight request is
// cancelled. Safe to call more than once.
func (r *Reporter) Close(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		<-r.done
		return nil
	}
	r.closed = true
	pending := len(r.queue)
	r.mu.Unlock()

	r.logger.Info().Int("pending", pending).Msg("delivery pipeline shutting down")
	close(r.shutdown)

	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		r.cancelRun()
		<-r.done
		r.logger.Warn().Msg("flush window expired, delivery queue abandoned")
		return ctx.Err()
	}
}

// enqueue appends a job and nudges the worker. Jobs arriving after Close are
// dropped; the queue is already draining for the last time.
func (r *Reporter) enqueue(j *job) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		r.logger.Debug().Str("kind", j.kind.String()).Msg("pipeline closed, dropping job")
		metrics.IncJobDropped(j.kind.String(), "closed")
		return
	}
	r.queue = append(r.queue, j)
	r.mu.Unlock()

	metrics.IncJobEnqueued(j.kind.String())

	select {
	case r.notify <- struct{}{}:
	default:
	}
}

// peek returns the front job without removing it.
func (r *Reporter) peek() (*job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.queue) == 0 {
		return nil, false
	}
	return r.queue[0], true
}

// pop removes the front job.
func (r *Reporter) pop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.queue) > 0 {
		r.queue = r.queue[1:]
	}
}
