package workflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/deskflow/kernel/internal/eventbus"
	"github.com/deskflow/kernel/internal/kerrors"
	"github.com/deskflow/kernel/internal/logging"
)

// eventTrigger couples one EventBus topic to one workflow id.
type eventTrigger struct {
	topic      string
	workflowID string
	token      eventbus.Token
}

// cronTrigger couples one cron schedule to one workflow id, letting a
// workflow start on a time-based schedule in addition to event triggers.
type cronTrigger struct {
	spec       string
	workflowID string
	entryID    cron.EntryID
}

type triggerTable struct {
	mu      sync.Mutex
	events  []*eventTrigger
	crons   []*cronTrigger
	engine  *Engine
	bus     *eventbus.Bus
	cronEng *cron.Cron
}

func newTriggerTable(e *Engine, bus *eventbus.Bus) *triggerTable {
	return &triggerTable{engine: e, bus: bus, cronEng: cron.New()}
}

// RegisterTrigger couples eventTopic to workflowID: whenever the topic
// fires on the EventBus, the engine starts the workflow with an initial
// context of {trigger_event, trigger_timestamp, ...event payload}.
func (e *Engine) RegisterTrigger(eventTopic, workflowID string) error {
	if _, err := e.definition(workflowID); err != nil {
		return err
	}
	if e.bus == nil {
		return kerrors.New(kerrors.KindInternal, kerrors.CodeInternalError, "event bus unavailable")
	}

	tt := e.triggers
	tt.mu.Lock()
	defer tt.mu.Unlock()

	trig := &eventTrigger{topic: eventTopic, workflowID: workflowID}
	trig.token = e.bus.Subscribe(eventTopic, func(topic string, payload interface{}) {
		ctx := context.Background()
		initial := map[string]interface{}{
			"trigger_event":     topic,
			"trigger_timestamp": time.Now().UTC().Format(time.RFC3339),
		}
		if m, ok := payload.(map[string]interface{}); ok {
			for k, v := range m {
				initial[k] = v
			}
		} else {
			initial["payload"] = payload
		}
		if _, err := e.StartWorkflow(ctx, workflowID, initial); err != nil {
			logging.Error("workflow: trigger on topic %q failed to start workflow %q: %v", topic, workflowID, err)
		}
	})
	tt.events = append(tt.events, trig)
	return nil
}

// UnregisterTrigger removes every trigger coupling eventTopic to
// workflowID.
func (e *Engine) UnregisterTrigger(eventTopic, workflowID string) error {
	tt := e.triggers
	tt.mu.Lock()
	defer tt.mu.Unlock()

	kept := tt.events[:0]
	removed := false
	for _, t := range tt.events {
		if t.topic == eventTopic && t.workflowID == workflowID {
			if e.bus != nil {
				e.bus.Unsubscribe(t.token)
			}
			removed = true
			continue
		}
		kept = append(kept, t)
	}
	tt.events = kept

	if !removed {
		return kerrors.New(kerrors.KindInputInvalid, kerrors.CodeValidationFailed, fmt.Sprintf("no trigger registered for topic %q / workflow %q", eventTopic, workflowID))
	}
	return nil
}

// ListTriggers returns a snapshot of every registered event trigger, for
// diagnostics.
func (e *Engine) ListTriggers() []struct{ Topic, WorkflowID string } {
	tt := e.triggers
	tt.mu.Lock()
	defer tt.mu.Unlock()
	out := make([]struct{ Topic, WorkflowID string }, 0, len(tt.events))
	for _, t := range tt.events {
		out = append(out, struct{ Topic, WorkflowID string }{t.topic, t.workflowID})
	}
	return out
}

// RegisterCronTrigger couples a cron schedule to a workflow start. Not
// reachable from the wire protocol or from definition loading (Definition
// has no schedule field); only Go callers register cron triggers.
func (e *Engine) RegisterCronTrigger(spec, workflowID string) error {
	if _, err := e.definition(workflowID); err != nil {
		return err
	}
	tt := e.triggers
	tt.mu.Lock()
	defer tt.mu.Unlock()

	entryID, err := tt.cronEng.AddFunc(spec, func() {
		ctx := context.Background()
		initial := map[string]interface{}{
			"trigger_event":     "cron:" + spec,
			"trigger_timestamp": time.Now().UTC().Format(time.RFC3339),
		}
		if _, err := e.StartWorkflow(ctx, workflowID, initial); err != nil {
			logging.Error("workflow: cron trigger %q failed to start workflow %q: %v", spec, workflowID, err)
		}
	})
	if err != nil {
		return fmt.Errorf("register cron trigger %q: %w", spec, err)
	}
	tt.crons = append(tt.crons, &cronTrigger{spec: spec, workflowID: workflowID, entryID: entryID})
	return nil
}

// StartCron starts the cron scheduler goroutine; a no-op if no cron
// triggers were ever registered.
func (e *Engine) StartCron() {
	e.triggers.cronEng.Start()
}

// StopCron stops the cron scheduler, waiting for any in-flight trigger
// function to return.
func (e *Engine) StopCron() {
	<-e.triggers.cronEng.Stop().Done()
}
