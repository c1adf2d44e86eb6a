package node

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStateHappyPath(t *testing.T) {
	state := NewState()
	status, _ := state.Status()
	assert.Equal(t, StatusInit, status)

	state.Ready()
	status, _ = state.Status()
	assert.Equal(t, StatusIdle, status)

	assert.NoError(t, state.Acquire())
	status, _ = state.Status()
	assert.Equal(t, StatusBusy, status)

	state.Release()
	status, _ = state.Status()
	assert.Equal(t, StatusIdle, status)
}

func TestStateAcquireConflicts(t *testing.T) {
	state := NewState()

	// INIT rejects acquire
	err := state.Acquire()
	assert.Error(t, err)
	var conflict *ConflictError
	assert.ErrorAs(t, err, &conflict)
	assert.Equal(t, StatusInit, conflict.Status)

	state.Ready()
	assert.NoError(t, state.Acquire())

	// BUSY rejects a second acquire without altering state
	err = state.Acquire()
	assert.ErrorAs(t, err, &conflict)
	assert.Equal(t, StatusBusy, conflict.Status)
	status, _ := state.Status()
	assert.Equal(t, StatusBusy, status)
}

func TestStateError(t *testing.T) {
	state := NewState()
	state.Ready()
	assert.NoError(t, state.Acquire())

	state.Fail(fmt.Errorf("motor stalled"))
	status, errText := state.Status()
	assert.Equal(t, StatusError, status)
	assert.Equal(t, "motor stalled", errText)

	// ERROR is terminal: no acquire, release is a no-op, Ready is a no-op
	assert.Error(t, state.Acquire())
	state.Release()
	state.Ready()
	status, _ = state.Status()
	assert.Equal(t, StatusError, status)
}

func TestStateConcurrentAcquire(t *testing.T) {
	state := NewState()
	state.Ready()

	var wg sync.WaitGroup
	var acquired int
	var mu sync.Mutex
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if state.Acquire() == nil {
				mu.Lock()
				acquired++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, acquired)
}
