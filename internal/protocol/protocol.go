// Package protocol defines the wire types exchanged on the two JSON-lines
// channels the kernel speaks: the front-end request/response channel, and
// the worker command/response channel each supervised subprocess uses on
// its stdio.
package protocol

import "encoding/json"

// Request is one line sent from the front-end to the kernel.
type Request struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp,omitempty"`
}

// ErrorPayload is the error half of a Response.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Response is one line sent from the kernel back to the front-end.
type Response struct {
	ID        string          `json:"id"`
	Success   bool            `json:"success"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     *ErrorPayload   `json:"error,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// WorkerCommand is one line sent from the kernel to a worker subprocess.
type WorkerCommand struct {
	ID     string          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// WorkerResponse is one line a worker subprocess sends back on its stdout.
type WorkerResponse struct {
	ID      string          `json:"id"`
	Success bool            `json:"success"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *ErrorPayload   `json:"error,omitempty"`
}

// ReadyAnnouncement is the single unsolicited line a worker emits on
// startup, before it will accept any command.
type ReadyAnnouncement struct {
	Type         string   `json:"type"` // always "READY"
	Engine       string   `json:"engine"`
	Version      string   `json:"version"`
	Capabilities []string `json:"capabilities"`
}

// NewSuccessResponse builds a successful Response carrying result.
func NewSuccessResponse(id string, result interface{}, timestamp int64) (*Response, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	return &Response{ID: id, Success: true, Result: raw, Timestamp: timestamp}, nil
}

// NewErrorResponse builds a failed Response carrying an error code/message.
func NewErrorResponse(id, code, message string, timestamp int64) *Response {
	return &Response{
		ID:        id,
		Success:   false,
		Error:     &ErrorPayload{Code: code, Message: message},
		Timestamp: timestamp,
	}
}
