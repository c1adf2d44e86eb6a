package dispatch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/labkit/workcell/model"
	"github.com/labkit/workcell/model/protocol"
	"github.com/labkit/workcell/runtime/resolver"
)

func testConfig() Config {
	return Config{
		Timeout:     time.Second,
		MaxRetries:  2,
		RetryDelay:  time.Millisecond,
		BusyRetries: 2,
		BusyDelay:   time.Millisecond,
	}
}

func restModule(address string) *model.Module {
	return &model.Module{
		Name:      "pipette",
		Interface: model.InterfaceREST,
		Config:    map[string]interface{}{"address": address},
	}
}

func resolvedStep() *resolver.ResolvedStep {
	return &resolver.ResolvedStep{
		Step: &model.Step{Name: "transfer", Module: "pipette", Command: "transfer"},
		Args: map[string]interface{}{"source": "(0,0)", "target": "(1,1)"},
	}
}

func TestRESTDispatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/action", r.URL.Path)
		assert.Equal(t, "transfer", r.URL.Query().Get("action_handle"))

		var args map[string]interface{}
		err := json.Unmarshal([]byte(r.URL.Query().Get("action_vars")), &args)
		assert.NoError(t, err)
		assert.Equal(t, "(0,0)", args["source"])

		_ = json.NewEncoder(w).Encode(protocol.Succeeded("transferred", "plate moved"))
	}))
	defer server.Close()

	dispatcher := NewREST(testConfig())
	response, err := dispatcher.Dispatch(context.Background(), resolvedStep(), restModule(server.URL))
	assert.NoError(t, err)
	assert.Equal(t, protocol.StatusSucceeded, response.Status)
	assert.Equal(t, "transferred", response.Message)
}

func TestRESTDispatchBusyThenSuccess(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusConflict)
			return
		}
		_ = json.NewEncoder(w).Encode(protocol.Succeeded("done", ""))
	}))
	defer server.Close()

	dispatcher := NewREST(testConfig())
	response, err := dispatcher.Dispatch(context.Background(), resolvedStep(), restModule(server.URL))
	assert.NoError(t, err)
	assert.Equal(t, protocol.StatusSucceeded, response.Status)
	assert.Equal(t, int32(2), calls.Load())
}

func TestRESTDispatchBusyExhausted(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))
	defer server.Close()

	dispatcher := NewREST(testConfig())
	_, err := dispatcher.Dispatch(context.Background(), resolvedStep(), restModule(server.URL))
	assert.Error(t, err)
	assert.ErrorIs(t, err, ErrModuleBusy)
}

func TestRESTDispatchBusyResponseBody(t *testing.T) {
	// A 200 whose body reports the busy status is treated like a 409
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(&protocol.StepResponse{Status: protocol.StatusBusy})
	}))
	defer server.Close()

	dispatcher := NewREST(testConfig())
	_, err := dispatcher.Dispatch(context.Background(), resolvedStep(), restModule(server.URL))
	assert.ErrorIs(t, err, ErrModuleBusy)
}

func TestRESTDispatchMalformedResponse(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"status":"succeeded","surprise":true}`))
	}))
	defer server.Close()

	dispatcher := NewREST(testConfig())
	_, err := dispatcher.Dispatch(context.Background(), resolvedStep(), restModule(server.URL))
	assert.Error(t, err)
	var protocolErr *ProtocolError
	assert.ErrorAs(t, err, &protocolErr)
	assert.Equal(t, "pipette", protocolErr.Module)
	// Protocol errors are never retried
	assert.Equal(t, int32(1), calls.Load())
}

func TestRESTDispatchServerErrorRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(protocol.Succeeded("recovered", ""))
	}))
	defer server.Close()

	dispatcher := NewREST(testConfig())
	response, err := dispatcher.Dispatch(context.Background(), resolvedStep(), restModule(server.URL))
	assert.NoError(t, err)
	assert.Equal(t, protocol.StatusSucceeded, response.Status)
	assert.Equal(t, int32(3), calls.Load())
}

func TestRESTDispatchUnreachable(t *testing.T) {
	dispatcher := NewREST(testConfig())
	_, err := dispatcher.Dispatch(context.Background(), resolvedStep(), restModule("http://127.0.0.1:1"))
	assert.Error(t, err)
	var dispatchErr *Error
	assert.ErrorAs(t, err, &dispatchErr)
	assert.Equal(t, "pipette", dispatchErr.Module)
	assert.Equal(t, "transfer", dispatchErr.Step)
}

func TestRESTDispatchNoAddress(t *testing.T) {
	dispatcher := NewREST(testConfig())
	_, err := dispatcher.Dispatch(context.Background(), resolvedStep(), &model.Module{Name: "pipette"})
	assert.Error(t, err)
	var dispatchErr *Error
	assert.ErrorAs(t, err, &dispatchErr)
}

func TestEndpointDerivation(t *testing.T) {
	dispatcher := NewREST(testConfig())

	endpoint, err := dispatcher.endpoint(restModule("http://host:8001"))
	assert.NoError(t, err)
	assert.Equal(t, "http://host:8001/action", endpoint)

	module := restModule("host")
	module.Config["port"] = 8001
	endpoint, err = dispatcher.endpoint(module)
	assert.NoError(t, err)
	assert.Equal(t, "http://host:8001/action", endpoint)

	endpoint, err = dispatcher.endpoint(restModule("https://host/"))
	assert.NoError(t, err)
	assert.Equal(t, "https://host/action", endpoint)
}
