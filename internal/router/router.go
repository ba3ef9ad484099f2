// Package router maps each operation name to a destination: an in-kernel
// local handler, or one of the named worker subprocesses.
package router

import "github.com/deskflow/kernel/internal/kerrors"

// Destination identifies where an operation should be dispatched.
type Destination struct {
	Local        bool
	Worker       string
	WorkerMethod string // operation name rewritten into the worker's method vocabulary
}

// Router is a static operation -> Destination table.
type Router struct {
	table map[string]Destination
}

func New() *Router {
	r := &Router{table: map[string]Destination{}}
	r.registerDefaults()
	return r
}

func (r *Router) register(op string, dest Destination) {
	r.table[op] = dest
}

func local(op string) Destination { return Destination{Local: true} }

func worker(name, method string) Destination {
	return Destination{Worker: name, WorkerMethod: method}
}

func (r *Router) registerDefaults() {
	localOps := []string{
		"PING", "GET_STATUS", "GET_ENGINE_STATUS",
		"QUERY_CONTRACTS", "GET_CONTRACT_BY_ID", "QUERY_EXECUTION_HISTORY", "QUERY_ACTIVITY_LOGS",
		"START_WORKFLOW", "RESOLVE_APPROVAL", "GET_PENDING_APPROVALS",
		"REGISTER_WORKFLOW_TRIGGER", "UNREGISTER_WORKFLOW_TRIGGER", "LIST_WORKFLOW_TRIGGERS",
		"GET_AI_SUGGESTIONS", "GENERATE_DRAFT",
		"SHUTDOWN",
	}
	for _, op := range localOps {
		r.register(op, local(op))
	}

	pythonOps := []string{
		"EXPORT_EXCEL", "EXPORT_PDF", "EXPORT_IMAGE",
		"PDF_MERGE", "PDF_SPLIT", "PDF_ROTATE", "PDF_WATERMARK",
		"IMAGE_COMPRESS", "IMAGE_CONVERT", "IMAGE_RESIZE",
		"LIST_TEMPLATES", "LOAD_TEMPLATE",
		"OCR_EXTRACT", "AI_QUERY", "AI_LEARN",
	}
	for _, op := range pythonOps {
		r.register(op, worker("python", op))
	}

	nativeOps := []string{"CRYPTO_ENCRYPT", "CRYPTO_DECRYPT", "CRYPTO_HASH", "PARALLEL_PROCESS", "COMPRESS_DATA"}
	for _, op := range nativeOps {
		r.register(op, worker("native", op))
	}

	networkOps := []string{
		"EXTERNAL_API_CALL", "LIST_PROVIDERS", "GET_PROVIDER_INFO",
		"SAVE_CREDENTIAL", "DELETE_CREDENTIAL", "GET_RATE_LIMIT_STATUS", "GET_METRICS",
	}
	for _, op := range networkOps {
		r.register(op, worker("network", op))
	}
}

// Resolve looks up the destination for op. Unknown operations return
// UNKNOWN_OPERATION without further processing.
func (r *Router) Resolve(op string) (Destination, error) {
	dest, ok := r.table[op]
	if !ok {
		return Destination{}, kerrors.UnknownOperation(op)
	}
	return dest, nil
}

// Whitelist returns every registered operation name, e.g. for diagnostics.
func (r *Router) Whitelist() []string {
	ops := make([]string, 0, len(r.table))
	for op := range r.table {
		ops = append(ops, op)
	}
	return ops
}
