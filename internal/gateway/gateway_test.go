package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deskflow/kernel/internal/kerrors"
	"github.com/deskflow/kernel/internal/protocol"
)

func validRequest() *protocol.Request {
	return &protocol.Request{ID: "req-1", Type: "PING"}
}

func TestValidateRejectsEmptyCorrelationID(t *testing.T) {
	g := New(nil)
	req := validRequest()
	req.ID = ""

	err := g.Validate(req, 0)
	require.Error(t, err)
	assert.Equal(t, kerrors.CodeValidationFailed, kerrors.AsKernelError(err).Code)
}

func TestValidateRejectsEmptyOperation(t *testing.T) {
	g := New(nil)
	req := validRequest()
	req.Type = ""

	err := g.Validate(req, 0)
	require.Error(t, err)
}

func TestValidateRejectsOversizedMessage(t *testing.T) {
	g := New(nil)
	req := validRequest()

	err := g.Validate(req, maxMessageBytes+1)
	require.Error(t, err)
}

func TestValidateAllowsPlainRequestUnderLimit(t *testing.T) {
	g := New(nil)
	req := validRequest()

	assert.NoError(t, g.Validate(req, 128))
}

func TestValidateRejectsPathTraversal(t *testing.T) {
	var reason, detail string
	g := New(func(r, d string) { reason, detail = r, d })

	req := &protocol.Request{ID: "req-2", Type: "EXPORT_PDF", Payload: []byte(`{"path":"../../etc/passwd"}`)}
	err := g.Validate(req, len(req.Payload))

	require.Error(t, err)
	assert.Equal(t, "path traversal sequence rejected", reason)
	assert.Equal(t, "../../etc/passwd", detail)
}

func TestValidateRejectsDeniedSystemDirectory(t *testing.T) {
	g := New(nil)
	req := &protocol.Request{ID: "req-3", Type: "EXPORT_PDF", Payload: []byte(`{"outputPath":"/etc/foo.pdf"}`)}

	err := g.Validate(req, len(req.Payload))
	require.Error(t, err)
}

func TestValidateRejectsExtensionNotOnAllowList(t *testing.T) {
	g := New(nil)
	req := &protocol.Request{ID: "req-4", Type: "EXPORT_PDF", Payload: []byte(`{"path":"/tmp/report.exe"}`)}

	err := g.Validate(req, len(req.Payload))
	require.Error(t, err)
}

func TestValidateAllowsAllowedExtensionUnderSafePath(t *testing.T) {
	g := New(nil)
	req := &protocol.Request{ID: "req-5", Type: "EXPORT_PDF", Payload: []byte(`{"path":"/tmp/report.pdf"}`)}

	assert.NoError(t, g.Validate(req, len(req.Payload)))
}

func TestValidateRejectsNonStringPathField(t *testing.T) {
	g := New(nil)
	req := &protocol.Request{ID: "req-9", Type: "EXPORT_PDF", Payload: []byte(`{"path":42}`)}

	err := g.Validate(req, len(req.Payload))
	require.Error(t, err)
	assert.Equal(t, kerrors.CodeValidationFailed, kerrors.AsKernelError(err).Code)
}

func TestValidateIgnoresNonDocumentOperationsPayload(t *testing.T) {
	g := New(nil)
	req := &protocol.Request{ID: "req-6", Type: "PING", Payload: []byte(`{"path":"../../etc/passwd"}`)}

	assert.NoError(t, g.Validate(req, len(req.Payload)))
}

func TestValidateRejectsBasicAuthCredential(t *testing.T) {
	var reason, detail string
	g := New(func(r, d string) { reason, detail = r, d })
	req := &protocol.Request{ID: "req-7", Type: "SAVE_CREDENTIAL", Payload: []byte(`{"authType":"basic"}`)}

	err := g.Validate(req, len(req.Payload))
	require.Error(t, err)
	assert.Equal(t, kerrors.CodeNotImplemented, kerrors.AsKernelError(err).Code)
	assert.Equal(t, "unimplemented credential auth type", reason)
	assert.Equal(t, "basic", detail)
}

func TestValidateAllowsBearerCredential(t *testing.T) {
	g := New(nil)
	req := &protocol.Request{ID: "req-8", Type: "SAVE_CREDENTIAL", Payload: []byte(`{"authType":"bearer"}`)}

	assert.NoError(t, g.Validate(req, len(req.Payload)))
}
