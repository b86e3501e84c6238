package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"

	"github.com/emanuelschuetze/openslides-datastore-service/internal/ir"
)

// LoadError represents an error that occurred while loading a request file.
type LoadError struct {
	Code    string
	Path    string
	Message string
	Err     error
}

func (e *LoadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %s: %v", e.Path, e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s: %s", e.Path, e.Code, e.Message)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// LoadRequests reads write requests from a JSON, YAML or CUE file. The file
// holds either one request object or a list of them; the extension picks
// the format (.json, .yaml/.yml, .cue).
func LoadRequests(path string) ([]ir.WriteRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &LoadError{Code: ErrCodeNotFound, Path: path, Message: "request file not found"}
		}
		return nil, &LoadError{Code: ErrCodeNotFound, Path: path, Message: "cannot read request file", Err: err}
	}

	var jsonData []byte
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		jsonData = data
	case ".yaml", ".yml":
		jsonData, err = yamlToJSON(data)
	case ".cue":
		jsonData, err = cueToJSON(data, path)
	default:
		return nil, &LoadError{Code: ErrCodeUnsupportedFormat, Path: path, Message: fmt.Sprintf("unsupported file extension %q", ext)}
	}
	if err != nil {
		return nil, &LoadError{Code: ErrCodeParseFailed, Path: path, Message: "cannot parse request file", Err: err}
	}

	requests, err := decodeRequests(jsonData)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeParseFailed, Path: path, Message: "invalid write request", Err: err}
	}
	return requests, nil
}

// decodeRequests decodes a request object or a list of request objects.
func decodeRequests(data []byte) ([]ir.WriteRequest, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, fmt.Errorf("empty document")
	}
	if trimmed[0] == '[' {
		var requests []ir.WriteRequest
		if err := json.Unmarshal(trimmed, &requests); err != nil {
			return nil, err
		}
		return requests, nil
	}
	var req ir.WriteRequest
	if err := json.Unmarshal(trimmed, &req); err != nil {
		return nil, err
	}
	return []ir.WriteRequest{req}, nil
}

func yamlToJSON(data []byte) ([]byte, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	v, err := ir.FromAny(raw)
	if err != nil {
		return nil, err
	}
	return ir.MarshalCanonical(v)
}

func cueToJSON(data []byte, path string) ([]byte, error) {
	ctx := cuecontext.New()
	value := ctx.CompileBytes(data)
	if err := value.Err(); err != nil {
		return nil, fmt.Errorf("compiling %s: %w", path, err)
	}
	if err := value.Validate(); err != nil {
		return nil, fmt.Errorf("validating %s: %w", path, err)
	}
	return value.MarshalJSON()
}

// Error code constants - unified across all CLI commands.
const (
	ErrCodeGeneric           = "E001" // Generic/unknown error
	ErrCodeNotFound          = "E005" // Path not found
	ErrCodeUnsupportedFormat = "E008" // Unknown request file extension
	ErrCodeParseFailed       = "E009" // Request file does not parse
	ErrCodeConfig            = "E010" // Invalid configuration

	// Write errors
	ErrCodeInvalidRequest = "E201" // Request conflicts with stored state or is malformed
	ErrCodeModelLocked    = "E202" // Locked fields changed
	ErrCodeUnavailable    = "E301" // Database unreachable, retry later
	ErrCodeInconsistent   = "E302" // Models table differs from the event log
)
