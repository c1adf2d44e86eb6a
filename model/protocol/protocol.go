// Package protocol defines the wire contract between the workflow engine
// and modules: the action request, the step response and a strict, versioned
// codec for the raw TCP transport.
//
// Every frame is a single JSON document terminated by a newline and carrying
// an explicit version tag.  Decoding rejects unknown fields, unknown status
// values and version mismatches outright - a malformed frame indicates
// version skew between runner and module and must never be guessed at.
package protocol

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// ErrMalformed marks a frame that was read successfully but does not match
// the schema: unknown fields, unknown status, wrong version.  Callers use it
// to tell version skew apart from plain I/O failures.
var ErrMalformed = errors.New("protocol: malformed frame")

// Version is the wire version stamped on every TCP frame.
const Version = 1

// maxFrameSize bounds a single frame; anything larger is rejected as malformed.
const maxFrameSize = 1 << 20

// StepStatus is the logical outcome a module reports for one action.
type StepStatus string

const (
	// StatusSucceeded indicates the action completed successfully
	StatusSucceeded StepStatus = "succeeded"

	// StatusFailed indicates the module reported a logical failure; the
	// run records it and, by default, continues
	StatusFailed StepStatus = "failed"

	// StatusRunning indicates a long-running action was accepted and is
	// still in progress
	StatusRunning StepStatus = "running"

	// StatusBusy is a transport-level conflict signal: the module's action
	// lock was not available.  It maps to HTTP 409 on the REST surface and
	// never appears in a run record - adapters convert it to a retryable
	// busy error
	StatusBusy StepStatus = "busy"
)

// Valid reports whether the status is one of the declared enum values.
func (s StepStatus) Valid() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusRunning, StatusBusy:
		return true
	}
	return false
}

// ActionRequest asks a module to perform one named action.
type ActionRequest struct {
	// Name is the action handle looked up in the module's action registry
	Name string `json:"action_handle"`

	// Args holds the fully resolved, literal action arguments
	Args map[string]interface{} `json:"action_vars,omitempty"`

	// Files maps file argument name to the local path of an uploaded file
	Files map[string]string `json:"files,omitempty"`
}

// StepResponse is a module's answer to one action request.
type StepResponse struct {
	Status  StepStatus        `json:"status"`
	Message string            `json:"message,omitempty"`
	Log     string            `json:"log,omitempty"`
	Data    map[string]string `json:"data,omitempty"`
	Files   map[string]string `json:"files,omitempty"`
}

// Succeeded builds a successful step response.
func Succeeded(message, log string) *StepResponse {
	return &StepResponse{Status: StatusSucceeded, Message: message, Log: log}
}

// Failed builds a failed step response.
func Failed(message, log string) *StepResponse {
	return &StepResponse{Status: StatusFailed, Message: message, Log: log}
}

// requestFrame is the TCP request wire form.
type requestFrame struct {
	Version int                    `json:"version"`
	Handle  string                 `json:"action_handle"`
	Vars    map[string]interface{} `json:"action_vars,omitempty"`
}

// responseFrame is the TCP response wire form.
type responseFrame struct {
	Version  int        `json:"version"`
	Response StepStatus `json:"action_response"`
	Message  string     `json:"action_msg,omitempty"`
	Log      string     `json:"action_log,omitempty"`
}

// WriteRequest encodes an action request as a single versioned frame.
func WriteRequest(w io.Writer, request *ActionRequest) error {
	if request == nil || request.Name == "" {
		return fmt.Errorf("protocol: request has no action handle")
	}
	frame := &requestFrame{Version: Version, Handle: request.Name, Vars: request.Args}
	return writeFrame(w, frame)
}

// ReadRequest decodes one request frame, rejecting anything that does not
// match the schema.
func ReadRequest(r *bufio.Reader) (*ActionRequest, error) {
	frame := &requestFrame{}
	if err := readFrame(r, frame); err != nil {
		return nil, err
	}
	if frame.Version != Version {
		return nil, fmt.Errorf("%w: unsupported request version %d", ErrMalformed, frame.Version)
	}
	if frame.Handle == "" {
		return nil, fmt.Errorf("%w: request missing action handle", ErrMalformed)
	}
	return &ActionRequest{Name: frame.Handle, Args: frame.Vars}, nil
}

// WriteResponse encodes a step response as a single versioned frame.
func WriteResponse(w io.Writer, response *StepResponse) error {
	if response == nil || !response.Status.Valid() {
		return fmt.Errorf("protocol: response has invalid status")
	}
	frame := &responseFrame{
		Version:  Version,
		Response: response.Status,
		Message:  response.Message,
		Log:      response.Log,
	}
	return writeFrame(w, frame)
}

// ReadResponse decodes one response frame, rejecting anything that does not
// match the schema.
func ReadResponse(r *bufio.Reader) (*StepResponse, error) {
	frame := &responseFrame{}
	if err := readFrame(r, frame); err != nil {
		return nil, err
	}
	if frame.Version != Version {
		return nil, fmt.Errorf("%w: unsupported response version %d", ErrMalformed, frame.Version)
	}
	if !frame.Response.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrMalformed, frame.Response)
	}
	return &StepResponse{Status: frame.Response, Message: frame.Message, Log: frame.Log}, nil
}

func writeFrame(w io.Writer, frame interface{}) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("protocol: failed to encode frame: %w", err)
	}
	if _, err = w.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("protocol: failed to write frame: %w", err)
	}
	return nil
}

func readFrame(r *bufio.Reader, into interface{}) error {
	line, err := readLine(r)
	if err != nil {
		return err
	}
	decoder := json.NewDecoder(bytes.NewReader(line))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(into); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}

// readLine accumulates one newline-terminated frame chunk by chunk, so a peer
// streaming an overlong frame is rejected at the size bound rather than
// buffered in full first.
func readLine(r *bufio.Reader) ([]byte, error) {
	var line []byte
	for {
		chunk, err := r.ReadSlice('\n')
		if len(line)+len(chunk) > maxFrameSize {
			return nil, fmt.Errorf("%w: frame exceeds %d bytes", ErrMalformed, maxFrameSize)
		}
		line = append(line, chunk...)
		switch {
		case err == nil:
			return line, nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case err == io.EOF && len(line) > 0:
			return line, nil
		default:
			return nil, fmt.Errorf("protocol: failed to read frame: %w", err)
		}
	}
}
