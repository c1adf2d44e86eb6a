package dispatch

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/labkit/workcell/model"
	"github.com/labkit/workcell/model/protocol"
	"github.com/labkit/workcell/runtime/resolver"
)

// TCP dispatches steps as framed messages over a raw TCP connection to
// {module.address}:{module.port}.  Responses are parsed with the strict,
// versioned protocol codec - received bytes are never evaluated, only
// decoded against the declared schema.
type TCP struct {
	config Config
	dialer net.Dialer
	logger *slog.Logger
}

var _ Dispatcher = (*TCP)(nil)

// NewTCP creates a TCP dispatcher.
func NewTCP(config Config) *TCP {
	return &TCP{
		config: config,
		dialer: net.Dialer{Timeout: config.Timeout},
		logger: slog.Default(),
	}
}

// Dispatch sends the step over one connection per attempt, retrying
// transient network failures and busy signals within the configured bounds.
func (d *TCP) Dispatch(ctx context.Context, step *resolver.ResolvedStep, module *model.Module) (*protocol.StepResponse, error) {
	address := module.Address()
	if address == "" {
		return nil, &Error{Module: module.Name, Step: step.Step.Name, Err: fmt.Errorf("module has no address configured")}
	}
	endpoint := net.JoinHostPort(address, strconv.Itoa(module.Port()))

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
			if err := sleep(ctx, d.config.BusyDelay); err != nil {
				return nil, &Error{Module: module.Name, Step: step.Step.Name, Err: err}
			}
		default:
			netAttempts++
			if netAttempts > d.config.MaxRetries {
				return nil, &Error{Module: module.Name, Step: step.Step.Name, Err: err}
			}
			d.logger.Debug("tcp dispatch attempt failed, retrying", "module", module.Name, "step", step.Step.Name, "attempt", netAttempts, "error", err)
			if err := sleep(ctx, d.config.RetryDelay); err != nil {
				return nil, &Error{Module: module.Name, Step: step.Step.Name, Err: err}
			}
		}
	}
}

// attempt performs one request/response exchange on a fresh connection.
func (d *TCP) attempt(ctx context.Context, endpoint string, step *resolver.ResolvedStep, module *model.Module) (*protocol.StepResponse, error) {
	conn, err := d.dialer.DialContext(ctx, "tcp", endpoint)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(d.config.Timeout))

	request := &protocol.ActionRequest{Name: step.Step.Command, Args: step.Args}
	if err := protocol.WriteRequest(conn, request); err != nil {
		return nil, err
	}

	response, err := protocol.ReadResponse(bufio.NewReader(conn))
	if err != nil {
		if errors.Is(err, protocol.ErrMalformed) {
			return nil, &ProtocolError{Module: module.Name, Err: err}
		}
		return nil, err
	}
	if response.Status == protocol.StatusBusy {
		return nil, ErrModuleBusy
	}
	return response, nil
}
