// Package kernel wires every component (Store, EventBus, State, Supervisor,
// Gateway, Router, Scheduler, Workflow Engine, Advisor/Guardrail/Draft)
// into one coordinator and runs the front-end request/response loop.
package kernel

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/deskflow/kernel/internal/advisor"
	"github.com/deskflow/kernel/internal/config"
	"github.com/deskflow/kernel/internal/eventbus"
	"github.com/deskflow/kernel/internal/gateway"
	"github.com/deskflow/kernel/internal/logging"
	"github.com/deskflow/kernel/internal/router"
	"github.com/deskflow/kernel/internal/scheduler"
	"github.com/deskflow/kernel/internal/store"
	"github.com/deskflow/kernel/internal/store/repositories"
	"github.com/deskflow/kernel/internal/supervisor"
	"github.com/deskflow/kernel/internal/workflow"
)

// Kernel is the fully wired runtime: every subsystem, torn down in the
// order Shutdown documents.
type Kernel struct {
	Store      *store.Store
	Repos      *repositories.Repositories
	Bus        *eventbus.Bus
	State      *config.State
	Supervisor *supervisor.Supervisor
	Gateway    *gateway.Gateway
	Router     *router.Router
	Scheduler  *scheduler.Scheduler
	Engine     *workflow.Engine
	Advisor    *advisor.Advisor
	Guardrail  *advisor.Guardrail
	Draft      *advisor.Draft

	configWatcher *fsnotify.Watcher
	schedulerDone chan struct{}
}

// Options configures a new Kernel at construction.
type Options struct {
	DebugLogging      bool
	SchedulerCapacity int
	WorkflowDefDir    string // directory of *.json / *.yaml workflow definitions
	GuardrailConfigPath string
}

// New wires every component but does not start the Scheduler worker loop,
// spawn any worker subprocess, or begin reading stdin — call Start for that.
func New(opts Options) (*Kernel, error) {
	logging.Initialize(opts.DebugLogging)

	bus := eventbus.New()

	state, err := config.Load(bus)
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}

	st, err := store.Open(config.DatabasePath())
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	repos := repositories.New(st.Conn())

	gw := gateway.New(func(reason, detail string) {
		repos.ActivityLog.Record(context.Background(), store.ActivityLogEntry{
			Timestamp: time.Now().UTC(), Action: "gateway.reject", Severity: store.SeveritySecurity,
			Module: "gateway", ShortMessage: reason, Metadata: detail,
		})
	})

	sup := supervisor.New(bus)
	rtr := router.New()

	guardrailPath := opts.GuardrailConfigPath
	if guardrailPath == "" {
		guardrailPath = filepath.Join(config.Root(), "guardrail.json")
	}
	guardrailCfg, err := advisor.LoadGuardrailConfig(guardrailPath)
	if err != nil {
		return nil, fmt.Errorf("load guardrail config: %w", err)
	}
	grd := advisor.NewGuardrail(guardrailCfg, repos.GuardrailAudit)
	adv := advisor.NewAdvisor(repos.ExecutionHistory, repos.SuggestionAudit, grd)
	dr := advisor.NewDraft(repos.DraftAudit, grd)

	k := &Kernel{
		Store: st, Repos: repos, Bus: bus, State: state,
		Supervisor: sup, Gateway: gw, Router: rtr,
		Advisor: adv, Guardrail: grd, Draft: dr,
		schedulerDone: make(chan struct{}),
	}

	engine := workflow.New(repos.WorkflowExec, repos.StepExec, repos.Approvals, bus, k.dispatchTaskStep)
	k.Engine = engine

	if opts.WorkflowDefDir != "" {
		if err := k.loadWorkflowDefinitions(opts.WorkflowDefDir); err != nil {
			logging.Error("kernel: failed to load workflow definitions from %s: %v", opts.WorkflowDefDir, err)
		}
	}

	capacity := opts.SchedulerCapacity
	sched := scheduler.New(capacity, bus, repos.ExecutionHistory, k.executeScheduled)
	k.Scheduler = sched

	return k, nil
}

// Start spawns configured worker subprocesses, resumes in-flight workflow
// executions, and begins the scheduler worker loop and background tickers.
// It must be called exactly once, before the request loop.
func (k *Kernel) Start(ctx context.Context) error {
	for name, wc := range k.State.Modules().Workers {
		if !wc.Enabled {
			continue
		}
		if err := k.Supervisor.Spawn(ctx, supervisor.Invocation{Name: name, Path: wc.Path}); err != nil {
			logging.Error("kernel: failed to spawn worker %q: %v", name, err)
		}
	}

	if err := k.Engine.ResumeInProgress(ctx); err != nil {
		logging.Error("kernel: failed to resume in-progress workflows: %v", err)
	}

	k.Engine.StartCron()
	k.Engine.StartApprovalTimeoutTicker(ctx, 30*time.Second)

	go k.Scheduler.Run(ctx)

	if watcher, err := k.State.Watch(); err != nil {
		logging.Error("kernel: config watch failed to start: %v", err)
	} else {
		k.configWatcher = watcher
	}

	return nil
}

func (k *Kernel) loadWorkflowDefinitions(dir string) error {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			logging.Error("kernel: failed to read workflow definition %s: %v", path, err)
			continue
		}

		var def *workflow.Definition
		switch filepath.Ext(entry.Name()) {
		case ".yaml", ".yml":
			def, err = workflow.ParseDefinitionYAML(data)
		case ".json":
			def, err = workflow.ParseDefinitionJSON(data)
		default:
			continue
		}
		if err != nil {
			logging.Error("kernel: invalid workflow definition %s: %v", path, err)
			continue
		}
		k.Engine.RegisterDefinition(def)
		logging.Info("kernel: loaded workflow definition %q from %s", def.ID, path)
	}
	return nil
}

// Shutdown tears every component down in order: config watcher close, the
// engine's approval-timeout ticker and cron stop, scheduler stop, supervisor
// stop, a final configuration save, store close. Workflow executions still
// being driven by the engine are not waited for.
func (k *Kernel) Shutdown() {
	logging.Info("kernel: shutting down")

	if k.configWatcher != nil {
		_ = k.configWatcher.Close()
	}

	k.Engine.StopApprovalTimeoutTicker()
	k.Engine.StopCron()

	k.Scheduler.Stop()

	k.Supervisor.Shutdown()

	if err := k.State.SaveConfiguration(); err != nil {
		logging.Error("kernel: failed to save configuration at shutdown: %v", err)
	}

	if err := k.Store.Close(); err != nil {
		logging.Error("kernel: failed to close store: %v", err)
	}

	logging.Info("kernel: shutdown complete")
}
