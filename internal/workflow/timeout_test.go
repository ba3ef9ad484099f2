package workflow

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deskflow/kernel/internal/eventbus"
	"github.com/deskflow/kernel/internal/store"
	"github.com/deskflow/kernel/internal/store/repositories"
)

func TestRejectExpiredApprovalsAutoRejectsPastDeadline(t *testing.T) {
	s, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	repos := repositories.New(s.Conn())
	bus := eventbus.New()
	e := New(repos.WorkflowExec, repos.StepExec, repos.Approvals, bus, echoDispatcher)

	ctx := context.Background()
	past := time.Now().UTC().Add(-time.Minute)
	require.NoError(t, repos.WorkflowExec.Create(ctx, store.WorkflowExecution{
		ExecutionID: "exec-1", WorkflowID: "wf", Status: store.WFPausedForApproval, StartedAt: time.Now().UTC(),
	}))
	require.NoError(t, repos.Approvals.Create(ctx, store.Approval{
		ExecutionID: "exec-1", StepID: "gate", TimeoutPolicy: store.ApprovalTimeoutFail, TimeoutAt: &past,
	}))

	e.rejectExpiredApprovals(ctx)

	got, err := repos.Approvals.Get(ctx, "exec-1", "gate")
	require.NoError(t, err)
	require.NotNil(t, got.Decision)
	assert.Equal(t, "REJECT", *got.Decision)
	assert.Equal(t, timeoutActor, got.ActorID)
}

func TestRejectExpiredApprovalsLeavesUnexpiredAlone(t *testing.T) {
	s, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	repos := repositories.New(s.Conn())
	bus := eventbus.New()
	e := New(repos.WorkflowExec, repos.StepExec, repos.Approvals, bus, echoDispatcher)

	ctx := context.Background()
	future := time.Now().UTC().Add(time.Hour)
	require.NoError(t, repos.Approvals.Create(ctx, store.Approval{
		ExecutionID: "exec-2", StepID: "gate", TimeoutPolicy: store.ApprovalTimeoutFail, TimeoutAt: &future,
	}))

	e.rejectExpiredApprovals(ctx)

	got, err := repos.Approvals.Get(ctx, "exec-2", "gate")
	require.NoError(t, err)
	assert.Nil(t, got.Decision)
}
