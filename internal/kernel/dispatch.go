package kernel

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/deskflow/kernel/internal/kerrors"
	"github.com/deskflow/kernel/internal/protocol"
	"github.com/deskflow/kernel/internal/router"
)

// executeScheduled is the scheduler.Executor: it runs a worker-bound
// request to completion via the Supervisor and builds its Response. Local
// operations never reach the Scheduler — see handleRequest.
func (k *Kernel) executeScheduled(ctx context.Context, req *protocol.Request) *protocol.Response {
	dest, err := k.Router.Resolve(req.Type)
	if err != nil {
		return errorResponse(req.ID, kerrors.AsKernelError(err))
	}
	return k.dispatchWorker(ctx, dest, req)
}

func (k *Kernel) dispatchWorker(ctx context.Context, dest router.Destination, req *protocol.Request) *protocol.Response {
	if !k.Supervisor.IsReady(dest.Worker) {
		return errorResponse(req.ID, kerrors.EngineUnavailable(fmt.Sprintf("worker %q is not ready", dest.Worker)))
	}

	resp, err := k.Supervisor.SendAndReceive(ctx, dest.Worker, dest.WorkerMethod, req.Payload, req.ID, 0)
	if err != nil {
		return errorResponse(req.ID, kerrors.AsKernelError(err))
	}
	if !resp.Success {
		code, msg := "ENGINE_ERROR", "worker reported failure"
		if resp.Error != nil {
			code, msg = resp.Error.Code, resp.Error.Message
		}
		return protocol.NewErrorResponse(req.ID, code, msg, time.Now().Unix())
	}
	return &protocol.Response{ID: req.ID, Success: true, Result: resp.Result, Timestamp: time.Now().Unix()}
}

// dispatchTaskStep is the workflow.Dispatcher a Workflow Engine task step
// uses: it resolves the operation through the Router exactly like any
// other request, then runs it directly against the Supervisor (bypassing
// the Scheduler — the DAG executor already bounds its own parallelism via
// max_parallelism) or a local handler.
func (k *Kernel) dispatchTaskStep(ctx context.Context, operation string, input map[string]interface{}) (map[string]interface{}, error) {
	payload, err := json.Marshal(input)
	if err != nil {
		return nil, kerrors.Internal("marshal step input", err)
	}
	req := &protocol.Request{ID: fmt.Sprintf("step-%d", time.Now().UnixNano()), Type: operation, Payload: payload}

	dest, err := k.Router.Resolve(operation)
	if err != nil {
		return nil, err
	}

	var resp *protocol.Response
	if dest.Local {
		resp = k.executeLocal(ctx, req, dest)
	} else {
		resp = k.dispatchWorker(ctx, dest, req)
	}

	if resp.Error != nil {
		return nil, kerrors.New(kerrors.KindTransientWorker, kerrors.Code(resp.Error.Code), resp.Error.Message)
	}

	var result map[string]interface{}
	if len(resp.Result) > 0 {
		if err := json.Unmarshal(resp.Result, &result); err != nil {
			return nil, kerrors.Internal("unmarshal step result", err)
		}
	}
	return result, nil
}

func errorResponse(id string, ke *kerrors.KernelError) *protocol.Response {
	return protocol.NewErrorResponse(id, string(ke.Code), ke.Message, time.Now().Unix())
}
