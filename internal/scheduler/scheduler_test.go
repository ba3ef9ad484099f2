package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deskflow/kernel/internal/eventbus"
	"github.com/deskflow/kernel/internal/kerrors"
	"github.com/deskflow/kernel/internal/protocol"
)

func echoExecutor(ctx context.Context, req *protocol.Request) *protocol.Response {
	resp, _ := protocol.NewSuccessResponse(req.ID, map[string]string{"echo": req.Type}, 0)
	return resp
}

func failingExecutor(ctx context.Context, req *protocol.Request) *protocol.Response {
	return protocol.NewErrorResponse(req.ID, "ENGINE_ERROR", "boom", 0)
}

func awaitCallback(t *testing.T, submit func(cb func(*protocol.Response))) *protocol.Response {
	t.Helper()
	ch := make(chan *protocol.Response, 1)
	submit(func(resp *protocol.Response) { ch <- resp })
	select {
	case resp := <-ch:
		return resp
	case <-time.After(2 * time.Second):
		t.Fatal("callback never invoked")
		return nil
	}
}

func TestSubmitRunsRequestAndInvokesCallback(t *testing.T) {
	s := New(4, nil, nil, echoExecutor)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)
	defer s.Stop()

	resp := awaitCallback(t, func(cb func(*protocol.Response)) {
		s.Submit(&protocol.Request{ID: "r1", Type: "PING"}, cb)
	})

	require.NotNil(t, resp)
	assert.True(t, resp.Success)
}

func TestSubmitPublishesLifecycleEventsInOrder(t *testing.T) {
	bus := eventbus.New()
	var mu sync.Mutex
	var topics []string
	done := make(chan struct{}, 1)

	bus.SubscribeAll(func(topic string, payload interface{}) {
		mu.Lock()
		topics = append(topics, topic)
		mu.Unlock()
		if topic == TopicTaskCompleted {
			done <- struct{}{}
		}
	})

	s := New(4, bus, nil, echoExecutor)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)
	defer s.Stop()

	awaitCallback(t, func(cb func(*protocol.Response)) {
		s.Submit(&protocol.Request{ID: "r1", Type: "PING"}, cb)
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("task.completed never published")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{TopicTaskQueued, TopicTaskStarted, TopicTaskCompleted}, topics)
}

func TestSubmitPublishesTaskFailedOnError(t *testing.T) {
	bus := eventbus.New()
	done := make(chan map[string]interface{}, 1)
	bus.Subscribe(TopicTaskFailed, func(topic string, payload interface{}) {
		done <- payload.(map[string]interface{})
	})

	s := New(4, bus, nil, failingExecutor)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)
	defer s.Stop()

	resp := awaitCallback(t, func(cb func(*protocol.Response)) {
		s.Submit(&protocol.Request{ID: "r2", Type: "PING"}, cb)
	})
	assert.False(t, resp.Success)

	select {
	case payload := <-done:
		assert.Equal(t, "boom", payload["reason"])
	case <-time.After(2 * time.Second):
		t.Fatal("task.failed never published")
	}
}

func TestSubmitReturnsQueueFullWhenCapacityExceeded(t *testing.T) {
	release := make(chan struct{})
	blocking := func(ctx context.Context, req *protocol.Request) *protocol.Response {
		<-release
		return echoExecutor(ctx, req)
	}

	s := New(1, nil, nil, blocking)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)
	defer func() {
		close(release)
		s.Stop()
	}()

	// First submission occupies the single worker; it blocks on release.
	s.Submit(&protocol.Request{ID: "r1", Type: "PING"}, func(*protocol.Response) {})
	// Give the worker loop a moment to pick up r1 before queuing r2.
	time.Sleep(50 * time.Millisecond)

	// Second submission fills the one-deep queue.
	s.Submit(&protocol.Request{ID: "r2", Type: "PING"}, func(*protocol.Response) {})
	time.Sleep(50 * time.Millisecond)

	resp := awaitCallback(t, func(cb func(*protocol.Response)) {
		s.Submit(&protocol.Request{ID: "r3", Type: "PING"}, cb)
	})

	require.NotNil(t, resp)
	require.NotNil(t, resp.Error)
	assert.Equal(t, string(kerrors.CodeQueueFull), resp.Error.Code)
}

func TestSubmitAfterStopReturnsSchedulerStopped(t *testing.T) {
	s := New(4, nil, nil, echoExecutor)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)
	s.Stop()

	resp := awaitCallback(t, func(cb func(*protocol.Response)) {
		s.Submit(&protocol.Request{ID: "r1", Type: "PING"}, cb)
	})

	require.NotNil(t, resp.Error)
	assert.Equal(t, string(kerrors.CodeSchedulerStopped), resp.Error.Code)
}

func TestFIFOOrderingOfExecution(t *testing.T) {
	var mu sync.Mutex
	var order []string
	seq := func(ctx context.Context, req *protocol.Request) *protocol.Response {
		mu.Lock()
		order = append(order, req.ID)
		mu.Unlock()
		resp, _ := protocol.NewSuccessResponse(req.ID, nil, 0)
		return resp
	}

	s := New(8, nil, nil, seq)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)
	defer s.Stop()

	var wg sync.WaitGroup
	ids := []string{"a", "b", "c", "d"}
	for _, id := range ids {
		wg.Add(1)
		s.Submit(&protocol.Request{ID: id, Type: "PING"}, func(*protocol.Response) { wg.Done() })
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, ids, order)
}
