// Package kerrors implements the five-kind error taxonomy from the kernel's
// error handling design: every failure is categorized once, and the
// category fixes both its recovery policy and its wire-level code.
package kerrors

import "fmt"

// Kind is one of the five propagation-policy buckets.
type Kind int

const (
	KindInputInvalid Kind = iota
	KindRoutingInvalid
	KindTransientWorker
	KindPersistentWorker
	KindInternal
)

// Code is the wire-level error.code taxonomy returned to callers.
type Code string

const (
	CodeUnknownOperation        Code = "UNKNOWN_OPERATION"
	CodeValidationFailed        Code = "VALIDATION_FAILED"
	CodeQueueFull               Code = "QUEUE_FULL"
	CodeSchedulerStopped        Code = "SCHEDULER_STOPPED"
	CodeEngineUnavailable       Code = "ENGINE_UNAVAILABLE"
	CodeEngineError             Code = "ENGINE_ERROR"
	CodeTimeout                 Code = "TIMEOUT"
	CodeWorkflowNotFound        Code = "WORKFLOW_NOT_FOUND"
	CodeApprovalAlreadyResolved Code = "APPROVAL_ALREADY_RESOLVED"
	CodeApprovalNotFound        Code = "APPROVAL_NOT_FOUND"
	CodePolicyBlocked           Code = "POLICY_BLOCKED"
	CodeNotImplemented          Code = "NOT_IMPLEMENTED"
	CodeInternalError           Code = "INTERNAL_ERROR"
)

// KernelError is the error type that crosses every component boundary on
// its way back to a front-end response or a caller.
type KernelError struct {
	Kind    Kind
	Code    Code
	Message string
	Err     error
}

func (e *KernelError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *KernelError) Unwrap() error { return e.Err }

func New(kind Kind, code Code, message string) *KernelError {
	return &KernelError{Kind: kind, Code: code, Message: message}
}

func Wrap(kind Kind, code Code, message string, err error) *KernelError {
	return &KernelError{Kind: kind, Code: code, Message: message, Err: err}
}

func Validation(message string) *KernelError {
	return New(KindInputInvalid, CodeValidationFailed, message)
}

func UnknownOperation(op string) *KernelError {
	return New(KindRoutingInvalid, CodeUnknownOperation, fmt.Sprintf("unknown operation %q", op))
}

func Timeout(message string) *KernelError {
	return New(KindTransientWorker, CodeTimeout, message)
}

func EngineError(message string, err error) *KernelError {
	return Wrap(KindTransientWorker, CodeEngineError, message, err)
}

func EngineUnavailable(message string) *KernelError {
	return New(KindPersistentWorker, CodeEngineUnavailable, message)
}

func Internal(message string, err error) *KernelError {
	return Wrap(KindInternal, CodeInternalError, message, err)
}

func NotImplemented(message string) *KernelError {
	return New(KindInputInvalid, CodeNotImplemented, message)
}

// AsKernelError unwraps err into a *KernelError, falling back to a generic
// internal error so every caller can rely on getting one back.
func AsKernelError(err error) *KernelError {
	if err == nil {
		return nil
	}
	if ke, ok := err.(*KernelError); ok {
		return ke
	}
	return Internal("unexpected error", err)
}
