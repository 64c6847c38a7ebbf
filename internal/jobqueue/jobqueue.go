// Package jobqueue implements the session-scoped FIFO worker pool: jobs
// for the same session execute strictly in arrival order, jobs across
// sessions run concurrently up to a bounded worker count.
package jobqueue

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/nextlevelbuilder/chatbridge/internal/bus"
)

// Processor runs one job to completion (enrichment, agent invocation,
// delivery). It is supplied by the caller that wires the queue to the
// rest of the bridge.
type Processor interface {
	Process(ctx context.Context, job bus.Job)
}

const defaultQueueCapacity = 256

// Queue dispatches jobs to a bounded pool of workers while guaranteeing
// at most one worker owns a given session's jobs at a time.
type Queue struct {
	proc        Processor
	dispatch    chan bus.Job
	shutdownCtx context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	gracePeriod time.Duration

	mu        sync.Mutex
	sessions  map[string]*sessionQueue
}

type sessionQueue struct {
	mu      sync.Mutex
	pending []bus.Job
	running bool
}

// New builds a Queue with workerCount long-lived workers pulling from a
// shared dispatch channel, processing jobs via proc.
func New(workerCount int, proc Processor, gracePeriod time.Duration) *Queue {
	if workerCount <= 0 {
		workerCount = 8
	}
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		proc:        proc,
		dispatch:    make(chan bus.Job, defaultQueueCapacity),
		shutdownCtx: ctx,
		cancel:      cancel,
		gracePeriod: gracePeriod,
		sessions:    make(map[string]*sessionQueue),
	}
	for i := 0; i < workerCount; i++ {
		q.wg.Add(1)
		go q.worker()
	}
	return q
}

// sessionKey identifies a job's FIFO lane. Jobs are keyed by chat_id
// until a session is assigned; callers that have an assigned session id
// should key on that instead via EnqueueForSession.
func sessionKey(job bus.Job) string {
	return job.ChatID
}

// Enqueue implements ingest.Enqueuer: it never blocks, returning
// immediately after handing the job to its session lane.
func (q *Queue) Enqueue(job bus.Job) error {
	return q.EnqueueForSession(sessionKey(job), job)
}

// EnqueueForSession appends job to the named session's FIFO lane and
// schedules the lane for dispatch if it is not already running.
func (q *Queue) EnqueueForSession(sessionID string, job bus.Job) error {
	q.mu.Lock()
	sq, ok := q.sessions[sessionID]
	if !ok {
		sq = &sessionQueue{}
		q.sessions[sessionID] = sq
	}
	q.mu.Unlock()

	sq.mu.Lock()
	sq.pending = append(sq.pending, job)
	shouldSchedule := !sq.running
	if shouldSchedule {
		sq.running = true
	}
	sq.mu.Unlock()

	if shouldSchedule {
		q.scheduleNext(sessionID, sq)
	}
	return nil
}

// scheduleNext pushes the session lane's next job onto the dispatch
// channel without blocking the caller; the worker that picks it up
// re-schedules the lane's following job on completion, guaranteeing only
// one in-flight job per session at a time.
func (q *Queue) scheduleNext(sessionID string, sq *sessionQueue) {
	sq.mu.Lock()
	if len(sq.pending) == 0 {
		sq.running = false
		sq.mu.Unlock()
		return
	}
	job := sq.pending[0]
	sq.pending = sq.pending[1:]
	sq.mu.Unlock()

	select {
	case q.dispatch <- job:
	default:
		// Dispatch channel momentarily full: hand off in a goroutine so
		// Enqueue itself never blocks.
		go func() {
			select {
			case q.dispatch <- job:
			case <-q.shutdownCtx.Done():
			}
		}()
	}
}

func (q *Queue) worker() {
	defer q.wg.Done()
	for {
		select {
		case <-q.shutdownCtx.Done():
			return
		case job, ok := <-q.dispatch:
			if !ok {
				return
			}
			func() {
				defer func() {
					if r := recover(); r != nil {
						slog.Error("jobqueue.worker.panic", "recovered", r, "chat_id", job.ChatID)
					}
				}()
				q.proc.Process(q.shutdownCtx, job)
			}()
			q.completeSession(sessionKey(job))
		}
	}
}

func (q *Queue) completeSession(sessionID string) {
	q.mu.Lock()
	sq, ok := q.sessions[sessionID]
	q.mu.Unlock()
	if !ok {
		return
	}
	q.scheduleNext(sessionID, sq)
}

// Shutdown cancels all in-flight jobs and waits up to the grace period
// for workers to flush before returning.
func (q *Queue) Shutdown() {
	q.cancel()
	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(q.gracePeriod):
		slog.Warn("jobqueue.shutdown.grace_period_exceeded")
	}
}
