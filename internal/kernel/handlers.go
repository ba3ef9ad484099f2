package kernel

import (
	"context"
	"encoding/json"
	"time"

	"github.com/deskflow/kernel/internal/advisor"
	"github.com/deskflow/kernel/internal/kerrors"
	"github.com/deskflow/kernel/internal/protocol"
	"github.com/deskflow/kernel/internal/router"
)

// HandleRequest is the single entry point the front-end loop calls for
// every inbound line: validate, route, then either execute locally or
// enqueue through the Scheduler for worker-bound dispatch. rawLen is the
// raw byte length of the line, for the Gateway's size check.
func (k *Kernel) HandleRequest(ctx context.Context, req *protocol.Request, rawLen int) *protocol.Response {
	if err := k.Gateway.Validate(req, rawLen); err != nil {
		return errorResponse(req.ID, kerrors.AsKernelError(err))
	}

	dest, err := k.Router.Resolve(req.Type)
	if err != nil {
		return errorResponse(req.ID, kerrors.AsKernelError(err))
	}

	if dest.Local {
		return k.executeLocal(ctx, req, dest)
	}

	result := make(chan *protocol.Response, 1)
	k.Scheduler.Submit(req, func(resp *protocol.Response) { result <- resp })
	return <-result
}

func (k *Kernel) executeLocal(ctx context.Context, req *protocol.Request, dest router.Destination) *protocol.Response {
	switch req.Type {
	case "PING":
		return success(req.ID, map[string]interface{}{"message": "PONG"})
	case "GET_STATUS":
		return success(req.ID, map[string]interface{}{"status": "ok", "queueDepth": k.Scheduler.Depth()})
	case "GET_ENGINE_STATUS":
		return success(req.ID, map[string]interface{}{"workers": k.Supervisor.Status()})
	case "QUERY_CONTRACTS":
		var p struct{ Limit int `json:"limit"` }
		decodePayload(req.Payload, &p)
		if p.Limit <= 0 {
			p.Limit = 50
		}
		return success(req.ID, map[string]interface{}{"contracts": k.Repos.Contracts.Query(ctx, p.Limit)})
	case "GET_CONTRACT_BY_ID":
		var p struct{ ID int64 `json:"id"` }
		decodePayload(req.Payload, &p)
		contract, err := k.Repos.Contracts.GetByID(ctx, p.ID)
		if err != nil {
			return errorResponse(req.ID, kerrors.New(kerrors.KindInputInvalid, kerrors.CodeValidationFailed, "contract not found"))
		}
		return success(req.ID, contract)
	case "QUERY_EXECUTION_HISTORY":
		var p struct{ Limit int `json:"limit"` }
		decodePayload(req.Payload, &p)
		if p.Limit <= 0 {
			p.Limit = 50
		}
		return success(req.ID, map[string]interface{}{"tasks": k.Repos.ExecutionHistory.List(ctx, p.Limit)})
	case "QUERY_ACTIVITY_LOGS":
		var p struct{ Limit int `json:"limit"` }
		decodePayload(req.Payload, &p)
		if p.Limit <= 0 {
			p.Limit = 50
		}
		return success(req.ID, map[string]interface{}{"entries": k.Repos.ActivityLog.List(ctx, p.Limit)})

	case "START_WORKFLOW":
		var p struct {
			WorkflowID     string                 `json:"workflowId"`
			InitialContext map[string]interface{} `json:"initialContext"`
		}
		decodePayload(req.Payload, &p)
		execID, err := k.Engine.StartWorkflow(ctx, p.WorkflowID, p.InitialContext)
		if err != nil {
			return errorResponse(req.ID, kerrors.AsKernelError(err))
		}
		return success(req.ID, map[string]interface{}{"executionId": execID})

	case "RESOLVE_APPROVAL":
		var p struct {
			ExecutionID string `json:"executionId"`
			StepID      string `json:"stepId"`
			Decision    string `json:"decision"`
			Actor       string `json:"actor"`
			Comment     string `json:"comment"`
		}
		decodePayload(req.Payload, &p)
		if err := k.Engine.ResolveApproval(ctx, p.ExecutionID, p.StepID, p.Decision, p.Actor, p.Comment); err != nil {
			return errorResponse(req.ID, kerrors.AsKernelError(err))
		}
		return success(req.ID, map[string]interface{}{"resolved": true})

	case "GET_PENDING_APPROVALS":
		approvals, err := k.Engine.ListPendingApprovals(ctx)
		if err != nil {
			return errorResponse(req.ID, kerrors.AsKernelError(err))
		}
		return success(req.ID, map[string]interface{}{"approvals": approvals})

	case "REGISTER_WORKFLOW_TRIGGER":
		var p struct{ EventTopic, WorkflowID string }
		if err := json.Unmarshal(req.Payload, &p); err != nil {
			return errorResponse(req.ID, kerrors.Validation("invalid payload"))
		}
		if err := k.Engine.RegisterTrigger(p.EventTopic, p.WorkflowID); err != nil {
			return errorResponse(req.ID, kerrors.AsKernelError(err))
		}
		return success(req.ID, map[string]interface{}{"registered": true})

	case "UNREGISTER_WORKFLOW_TRIGGER":
		var p struct{ EventTopic, WorkflowID string }
		if err := json.Unmarshal(req.Payload, &p); err != nil {
			return errorResponse(req.ID, kerrors.Validation("invalid payload"))
		}
		if err := k.Engine.UnregisterTrigger(p.EventTopic, p.WorkflowID); err != nil {
			return errorResponse(req.ID, kerrors.AsKernelError(err))
		}
		return success(req.ID, map[string]interface{}{"unregistered": true})

	case "LIST_WORKFLOW_TRIGGERS":
		return success(req.ID, map[string]interface{}{"triggers": k.Engine.ListTriggers()})

	case "GET_AI_SUGGESTIONS":
		var p struct{ Context string `json:"context"` }
		decodePayload(req.Payload, &p)
		return success(req.ID, map[string]interface{}{"suggestions": k.Advisor.GetSuggestions(ctx, p.Context)})

	case "GENERATE_DRAFT":
		var p struct {
			Kind   string                 `json:"kind"`
			Params map[string]interface{} `json:"params"`
		}
		decodePayload(req.Payload, &p)
		artifact, err := k.Draft.Generate(ctx, advisor.DraftKind(p.Kind), p.Params)
		if err != nil {
			return errorResponse(req.ID, kerrors.New(kerrors.KindInputInvalid, kerrors.CodePolicyBlocked, err.Error()))
		}
		return success(req.ID, artifact)

	case "SHUTDOWN":
		go k.Shutdown()
		return success(req.ID, map[string]interface{}{"shuttingDown": true})

	default:
		return errorResponse(req.ID, kerrors.UnknownOperation(req.Type))
	}
}

func decodePayload(raw json.RawMessage, v interface{}) {
	if len(raw) == 0 {
		return
	}
	_ = json.Unmarshal(raw, v)
}

func success(id string, result interface{}) *protocol.Response {
	resp, err := protocol.NewSuccessResponse(id, result, time.Now().Unix())
	if err != nil {
		return errorResponse(id, kerrors.Internal("marshal result", err))
	}
	return resp
}
