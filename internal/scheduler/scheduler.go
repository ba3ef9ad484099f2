// Package scheduler runs a bounded FIFO queue of requests against a single
// worker loop, recording execution history and publishing lifecycle events
// as each task moves through it.
package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/deskflow/kernel/internal/eventbus"
	"github.com/deskflow/kernel/internal/kerrors"
	"github.com/deskflow/kernel/internal/logging"
	"github.com/deskflow/kernel/internal/protocol"
	"github.com/deskflow/kernel/internal/store/repositories"
)

const (
	TopicTaskQueued    = "task.queued"
	TopicTaskStarted   = "task.started"
	TopicTaskCompleted = "task.completed"
	TopicTaskFailed    = "task.failed"
)

// Executor runs a single request to completion. The Scheduler has no
// knowledge of Gateway or Router; it just runs whatever function it is
// given, one at a time, in submission order.
type Executor func(ctx context.Context, req *protocol.Request) *protocol.Response

type job struct {
	req      *protocol.Request
	callback func(*protocol.Response)
}

// Scheduler is a single-worker bounded queue. Requests never run
// concurrently with each other; callers that need parallelism (e.g. the
// Workflow Engine's DAG executor) bypass the Scheduler entirely.
type Scheduler struct {
	queue    chan job
	bus      *eventbus.Bus
	history  *repositories.ExecutionHistoryRepo
	executor Executor

	stopped int32
	wg      sync.WaitGroup
}

// New creates a Scheduler with the given bounded queue capacity.
func New(capacity int, bus *eventbus.Bus, history *repositories.ExecutionHistoryRepo, executor Executor) *Scheduler {
	if capacity <= 0 {
		capacity = 100
	}
	return &Scheduler{
		queue:    make(chan job, capacity),
		bus:      bus,
		history:  history,
		executor: executor,
	}
}

// Run starts the worker loop. It returns once Stop has been called and the
// queue has drained.
func (s *Scheduler) Run(ctx context.Context) {
	s.wg.Add(1)
	defer s.wg.Done()
	for j := range s.queue {
		s.runOne(ctx, j)
	}
}

// Submit enqueues req and invokes callback with its eventual Response.
// Submit never blocks the caller waiting for execution; it returns
// immediately once the request is queued or rejected.
func (s *Scheduler) Submit(req *protocol.Request, callback func(*protocol.Response)) {
	if atomic.LoadInt32(&s.stopped) == 1 {
		callback(protocol.NewErrorResponse(req.ID, string(kerrors.CodeSchedulerStopped), "scheduler is stopped", time.Now().Unix()))
		return
	}

	select {
	case s.queue <- job{req: req, callback: callback}:
		if s.bus != nil {
			s.bus.Publish(TopicTaskQueued, map[string]interface{}{"id": req.ID, "type": req.Type})
		}
	default:
		callback(protocol.NewErrorResponse(req.ID, string(kerrors.CodeQueueFull), "scheduler queue is full", time.Now().Unix()))
	}
}

func (s *Scheduler) runOne(ctx context.Context, j job) {
	taskID := int64(-1)
	if s.history != nil {
		taskID = s.history.Start(ctx, j.req.Type, "scheduler")
	}

	if s.bus != nil {
		s.bus.Publish(TopicTaskStarted, map[string]interface{}{"id": j.req.ID, "type": j.req.Type})
	}
	if s.history != nil && taskID >= 0 {
		s.history.MarkRunning(ctx, taskID)
	}

	resp := s.executor(ctx, j.req)

	if resp != nil && resp.Error == nil {
		if s.history != nil && taskID >= 0 {
			s.history.Complete(ctx, taskID, "")
		}
		if s.bus != nil {
			s.bus.Publish(TopicTaskCompleted, map[string]interface{}{"id": j.req.ID, "type": j.req.Type})
		}
	} else {
		reason := "unknown error"
		if resp != nil && resp.Error != nil {
			reason = resp.Error.Message
		}
		if s.history != nil && taskID >= 0 {
			s.history.Fail(ctx, taskID, reason)
		}
		if s.bus != nil {
			s.bus.Publish(TopicTaskFailed, map[string]interface{}{"id": j.req.ID, "type": j.req.Type, "reason": reason})
		}
	}

	j.callback(resp)
}

// Stop closes the queue to new completions after draining what is already
// enqueued, then waits for the worker loop to exit. Submit called after
// Stop returns SCHEDULER_STOPPED immediately.
func (s *Scheduler) Stop() {
	if !atomic.CompareAndSwapInt32(&s.stopped, 0, 1) {
		return
	}
	close(s.queue)
	s.wg.Wait()
	logging.Info("scheduler: stopped, queue drained")
}

// Depth reports the number of requests currently queued, for diagnostics.
func (s *Scheduler) Depth() int {
	return len(s.queue)
}
