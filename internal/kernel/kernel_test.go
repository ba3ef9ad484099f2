package kernel

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deskflow/kernel/internal/kerrors"
	"github.com/deskflow/kernel/internal/protocol"
)

func newTestKernel(t *testing.T) *Kernel {
	t.Helper()
	t.Setenv("KERNEL_CONFIG_DIR", t.TempDir())
	t.Setenv("KERNEL_DATABASE_PATH", ":memory:")

	k, err := New(Options{SchedulerCapacity: 10})
	require.NoError(t, err)
	t.Cleanup(func() { _ = k.Store.Close() })
	return k
}

func TestHandleRequestPingIsHandledLocally(t *testing.T) {
	k := newTestKernel(t)
	resp := k.HandleRequest(context.Background(), &protocol.Request{ID: "r1", Type: "PING"}, 32)

	require.NotNil(t, resp)
	assert.True(t, resp.Success)

	var result map[string]interface{}
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	assert.Equal(t, "PONG", result["message"])
}

func TestHandleRequestGetStatusReportsQueueDepth(t *testing.T) {
	k := newTestKernel(t)
	resp := k.HandleRequest(context.Background(), &protocol.Request{ID: "r1", Type: "GET_STATUS"}, 32)

	require.NotNil(t, resp)
	assert.True(t, resp.Success)

	var result map[string]interface{}
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	assert.Equal(t, float64(0), result["queueDepth"])
}

func TestHandleRequestUnknownOperationReturnsUnknownOperationCode(t *testing.T) {
	k := newTestKernel(t)
	resp := k.HandleRequest(context.Background(), &protocol.Request{ID: "r1", Type: "NOT_A_REAL_OP"}, 32)

	require.NotNil(t, resp)
	require.NotNil(t, resp.Error)
	assert.Equal(t, string(kerrors.CodeUnknownOperation), resp.Error.Code)
}

func TestHandleRequestGatewayRejectsEmptyCorrelationID(t *testing.T) {
	k := newTestKernel(t)
	resp := k.HandleRequest(context.Background(), &protocol.Request{ID: "", Type: "PING"}, 32)

	require.NotNil(t, resp)
	require.NotNil(t, resp.Error)
	assert.Equal(t, string(kerrors.CodeValidationFailed), resp.Error.Code)
}

func TestHandleRequestDispatchesWorkerOperationThroughScheduler(t *testing.T) {
	k := newTestKernel(t)
	go k.Scheduler.Run(context.Background())
	t.Cleanup(k.Scheduler.Stop)
	// No python worker process is spawned in this test, so dispatch reaches
	// the scheduler and fails with ENGINE_UNAVAILABLE rather than hanging.
	resp := k.HandleRequest(context.Background(), &protocol.Request{ID: "r1", Type: "EXPORT_PDF"}, 32)

	require.NotNil(t, resp)
	require.NotNil(t, resp.Error)
	assert.Equal(t, string(kerrors.CodeEngineUnavailable), resp.Error.Code)
}

func TestHandleRequestStartWorkflowUnknownDefinitionReturnsWorkflowNotFound(t *testing.T) {
	k := newTestKernel(t)
	resp := k.HandleRequest(context.Background(), &protocol.Request{
		ID: "r1", Type: "START_WORKFLOW",
		Payload: []byte(`{"workflowId":"does-not-exist","initialContext":{}}`),
	}, 64)

	require.NotNil(t, resp)
	require.NotNil(t, resp.Error)
	assert.Equal(t, string(kerrors.CodeWorkflowNotFound), resp.Error.Code)
}

func TestHandleRequestGenerateDraftProducesDraftOnlyArtifact(t *testing.T) {
	k := newTestKernel(t)
	resp := k.HandleRequest(context.Background(), &protocol.Request{
		ID: "r1", Type: "GENERATE_DRAFT",
		Payload: []byte(`{"kind":"documentation-snippet","params":{"title":"T","body":"B"}}`),
	}, 64)

	require.NotNil(t, resp)
	assert.True(t, resp.Success)

	var artifact map[string]interface{}
	require.NoError(t, json.Unmarshal(resp.Result, &artifact))
	assert.Equal(t, "draft-only", artifact["status"])
}
