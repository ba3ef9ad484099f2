// Package gateway applies rule-based validation to every inbound request
// before it reaches the Router.
package gateway

import (
	"encoding/json"
	"fmt"
	"regexp"
	"runtime"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/deskflow/kernel/internal/kerrors"
	"github.com/deskflow/kernel/internal/logging"
	"github.com/deskflow/kernel/internal/protocol"
)

const maxMessageBytes = 1 << 20 // one mebibyte

var traversalPattern = regexp.MustCompile(`(\.\.[\\/])|([\\/]\.\.)`)

// documentOperations touch the filesystem and are subject to the path and
// extension checks below.
var documentOperations = map[string]bool{
	"EXPORT_EXCEL": true, "EXPORT_PDF": true, "EXPORT_IMAGE": true,
	"PDF_MERGE": true, "PDF_SPLIT": true, "PDF_ROTATE": true, "PDF_WATERMARK": true,
	"IMAGE_COMPRESS": true, "IMAGE_CONVERT": true, "IMAGE_RESIZE": true,
	"LIST_TEMPLATES": true, "LOAD_TEMPLATE": true,
}

var allowedExtensions = map[string]bool{
	".pdf": true, ".xlsx": true, ".xls": true, ".docx": true,
	".png": true, ".jpg": true, ".jpeg": true, ".webp": true,
}

// DenyListDirs holds the filesystem prefixes document operations may never
// touch. It is an exported package variable, so tests can override it
// per-platform.
var DenyListDirs = defaultDenyList()

func defaultDenyList() []string {
	if runtime.GOOS == "windows" {
		return []string{`C:\Windows`, `C:\Program Files`}
	}
	return []string{"/etc", "/usr", "/bin", "/sbin", "/boot", "/proc", "/sys"}
}

func maxPathLength() int {
	if runtime.GOOS == "windows" {
		return 260
	}
	return 4096
}

// SecurityEventFunc is called once per rejection so the caller can log or
// audit it as a security event.
type SecurityEventFunc func(reason, detail string)

type Gateway struct {
	onReject SecurityEventFunc
}

func New(onReject SecurityEventFunc) *Gateway {
	if onReject == nil {
		onReject = func(string, string) {}
	}
	return &Gateway{onReject: onReject}
}

// pathPayload is the minimal shape the Gateway needs to extract a path
// argument from a request payload without knowing every operation's full
// schema.
type pathPayload struct {
	Path      string `json:"path,omitempty"`
	InputPath string `json:"inputPath,omitempty"`
	OutputPath string `json:"outputPath,omitempty"`
}

// documentPayloadSchema constrains the path-bearing fields of a document
// operation payload to strings before the worker ever sees it. It
// deliberately says nothing about safety (traversal, deny-listed
// directories, extensions) — that stays in validatePath below.
const documentPayloadSchema = `{
	"type": "object",
	"properties": {
		"path": {"type": "string"},
		"inputPath": {"type": "string"},
		"outputPath": {"type": "string"}
	}
}`

var documentPayloadSchemaLoader = gojsonschema.NewStringLoader(documentPayloadSchema)

func (g *Gateway) validatePayloadSchema(req *protocol.Request) error {
	if len(req.Payload) == 0 {
		return nil
	}
	dataLoader := gojsonschema.NewStringLoader(string(req.Payload))
	result, err := gojsonschema.Validate(documentPayloadSchemaLoader, dataLoader)
	if err != nil {
		// Payload isn't JSON at all; leave that failure to the worker's own
		// decode of its full operation schema.
		return nil
	}
	if !result.Valid() {
		var details []string
		for _, desc := range result.Errors() {
			details = append(details, desc.String())
		}
		return g.reject("payload failed schema validation", strings.Join(details, "; "))
	}
	return nil
}

// Validate enforces every Gateway rule against req, returning a
// *kerrors.KernelError with Code VALIDATION_FAILED on the first violation.
func (g *Gateway) Validate(req *protocol.Request, rawLen int) error {
	if req.ID == "" {
		return g.reject("empty correlation id", "")
	}
	if req.Type == "" {
		return g.reject("empty operation", req.ID)
	}
	if rawLen > maxMessageBytes {
		return g.reject("message exceeds size limit", fmt.Sprintf("%d bytes", rawLen))
	}

	if documentOperations[req.Type] {
		if err := g.validateDocumentOperation(req); err != nil {
			return err
		}
	}

	if req.Type == "SAVE_CREDENTIAL" {
		if err := g.validateCredentialAuthType(req); err != nil {
			return err
		}
	}

	return nil
}

// credentialPayload is the minimal shape the Gateway needs to reject the
// unimplemented basic-auth credential branch (see §9 Open Questions) before
// it ever reaches the network worker.
type credentialPayload struct {
	AuthType string `json:"authType"`
}

func (g *Gateway) validateCredentialAuthType(req *protocol.Request) error {
	if len(req.Payload) == 0 {
		return nil
	}
	var p credentialPayload
	if err := json.Unmarshal(req.Payload, &p); err != nil {
		return nil
	}
	if strings.EqualFold(p.AuthType, "basic") {
		logging.Error("gateway: rejected SAVE_CREDENTIAL with unimplemented authType=basic")
		g.onReject("unimplemented credential auth type", "basic")
		return kerrors.NotImplemented("basic auth credential storage is not implemented")
	}
	return nil
}

func (g *Gateway) validateDocumentOperation(req *protocol.Request) error {
	if len(req.Payload) == 0 {
		return nil
	}
	if err := g.validatePayloadSchema(req); err != nil {
		return err
	}

	var p pathPayload
	if err := json.Unmarshal(req.Payload, &p); err != nil {
		// Payload isn't the minimal path shape; leave deeper validation to
		// the worker that owns this operation's full schema.
		return nil
	}

	for _, candidate := range []string{p.Path, p.InputPath, p.OutputPath} {
		if candidate == "" {
			continue
		}
		if err := g.validatePath(candidate); err != nil {
			return err
		}
	}
	return nil
}

func (g *Gateway) validatePath(path string) error {
	if traversalPattern.MatchString(path) {
		return g.reject("path traversal sequence rejected", path)
	}
	if len(path) > maxPathLength() {
		return g.reject("path exceeds maximum length", path)
	}
	for _, deny := range DenyListDirs {
		if strings.HasPrefix(path, deny) {
			return g.reject("path under denied system directory", path)
		}
	}
	if ext := extOf(path); ext != "" && !allowedExtensions[ext] {
		return g.reject("file extension not on allow-list", ext)
	}
	return nil
}

func extOf(path string) string {
	idx := strings.LastIndexByte(path, '.')
	if idx < 0 || idx == len(path)-1 {
		return ""
	}
	return strings.ToLower(path[idx:])
}

func (g *Gateway) reject(reason, detail string) error {
	logging.Error("gateway: rejected request (%s): %s", reason, detail)
	g.onReject(reason, detail)
	return kerrors.Validation(reason)
}
