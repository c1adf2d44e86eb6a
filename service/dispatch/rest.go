package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/viant/afs"

	"github.com/labkit/workcell/model"
	"github.com/labkit/workcell/model/protocol"
	"github.com/labkit/workcell/runtime/resolver"
)

// REST dispatches steps as HTTP POST requests to {module.address}/action,
// with the action handle and serialized action vars as query parameters and
// declared file attachments streamed as multipart content.
type REST struct {
	client *http.Client
	config Config
	fs     afs.Service
	logger *slog.Logger
}

var _ Dispatcher = (*REST)(nil)

// NewREST creates a REST dispatcher.
func NewREST(config Config) *REST {
	return &REST{
		client: &http.Client{Timeout: config.Timeout},
		config: config,
		fs:     afs.New(),
		logger: slog.Default(),
	}
}

// Dispatch sends the step, retrying transient failures within the configured
// bounds.  A 409 from the module maps to ErrModuleBusy and is retried with
// backoff; a malformed response body is a ProtocolError and is never retried.
func (d *REST) Dispatch(ctx context.Context, step *resolver.ResolvedStep, module *model.Module) (*protocol.StepResponse, error) {
	endpoint, err := d.endpoint(module)
	if err != nil {
		return nil, &Error{Module: module.Name, Step: step.Step.Name, Err: err}
	}

	var busyAttempts, netAttempts int
	for {
		response, err := d.attempt(ctx, endpoint, step, module)
		if err == nil {
			return response, nil
		}
		var protocolErr *ProtocolError
		switch {
		case errors.As(err, &protocolErr):
			return nil, err
		case errors.Is(err, ErrModuleBusy):
			busyAttempts++
			if busyAttempts > d.config.BusyRetries {
				return nil, fmt.Errorf("module %s still busy after %d attempts: %w", module.Name, busyAttempts, ErrModuleBusy)
			}
			d.logger.Debug("module busy, backing off", "module", module.Name, "step", step.Step.Name, "attempt", busyAttempts)
			if err := sleep(ctx, d.config.BusyDelay); err != nil {
				return nil, &Error{Module: module.Name, Step: step.Step.Name, Err: err}
			}
		default:
			netAttempts++
			if netAttempts > d.config.MaxRetries {
				return nil, &Error{Module: module.Name, Step: step.Step.Name, Err: err}
			}
			d.logger.Debug("dispatch attempt failed, retrying", "module", module.Name, "step", step.Step.Name, "attempt", netAttempts, "error", err)
			if err := sleep(ctx, d.config.RetryDelay); err != nil {
				return nil, &Error{Module: module.Name, Step: step.Step.Name, Err: err}
			}
		}
	}
}

// attempt performs a single POST and interprets the module's answer.
func (d *REST) attempt(ctx context.Context, endpoint string, step *resolver.ResolvedStep, module *model.Module) (*protocol.StepResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, d.config.Timeout)
	defer cancel()

	vars, err := json.Marshal(step.Args)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize action vars: %w", err)
	}

	query := url.Values{}
	query.Set("action_handle", step.Step.Command)
	query.Set("action_vars", string(vars))

	body, contentType, err := d.body(ctx, step)
	if err != nil {
		return nil, err
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint+"?"+query.Encode(), body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		request.Header.Set("Content-Type", contentType)
	}

	httpResponse, err := d.client.Do(request)
	if err != nil {
		return nil, err
	}
	defer httpResponse.Body.Close()

	if httpResponse.StatusCode == http.StatusConflict {
		_, _ = io.Copy(io.Discard, httpResponse.Body)
		return nil, ErrModuleBusy
	}
	if httpResponse.StatusCode < 200 || httpResponse.StatusCode >= 300 {
		return nil, fmt.Errorf("module returned HTTP %d", httpResponse.StatusCode)
	}

	data, err := io.ReadAll(httpResponse.Body)
	if err != nil {
		return nil, err
	}
	response := &protocol.StepResponse{}
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(response); err != nil {
		return nil, &ProtocolError{Module: module.Name, Err: err}
	}
	if !response.Status.Valid() {
		return nil, &ProtocolError{Module: module.Name, Err: fmt.Errorf("unknown status %q", response.Status)}
	}
	if response.Status == protocol.StatusBusy {
		return nil, ErrModuleBusy
	}
	return response, nil
}

// body builds the request body: multipart content when the step declares
// file attachments, empty otherwise.
func (d *REST) body(ctx context.Context, step *resolver.ResolvedStep) (io.Reader, string, error) {
	if len(step.Step.Files) == 0 {
		return nil, "", nil
	}
	buffer := &bytes.Buffer{}
	writer := multipart.NewWriter(buffer)
	for _, location := range step.Step.Files {
		data, err := d.fs.DownloadWithURL(ctx, location)
		if err != nil {
			return nil, "", fmt.Errorf("failed to read step file %s: %w", location, err)
		}
		part, err := writer.CreateFormFile("files", filepath.Base(location))
		if err != nil {
			return nil, "", err
		}
		if _, err := part.Write(data); err != nil {
			return nil, "", err
		}
	}
	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return buffer, writer.FormDataContentType(), nil
}

// endpoint derives the module's action URL from its config.
func (d *REST) endpoint(module *model.Module) (string, error) {
	address := module.Address()
	if address == "" {
		return "", fmt.Errorf("module %s has no address configured", module.Name)
	}
	if !strings.Contains(address, "://") {
		address = "http://" + address
	}
	if port := module.Port(); port > 0 && !hasPort(address) {
		address = fmt.Sprintf("%s:%d", address, port)
	}
	return strings.TrimSuffix(address, "/") + "/action", nil
}

// hasPort reports whether the address already carries an explicit port.
func hasPort(address string) bool {
	parsed, err := url.Parse(address)
	if err != nil {
		return false
	}
	return parsed.Port() != ""
}

// sleep pauses for the supplied duration unless the context finishes first.
func sleep(ctx context.Context, delay time.Duration) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
