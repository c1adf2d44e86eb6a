// Package occupancy tracks which run currently occupies each named workcell
// location.  The runner updates occupancy after every transfer-like step:
// the source location of a moved asset is cleared and the target location is
// stamped with the run id.  Updates are advisory; a failed update never fails
// the run.
package occupancy

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
)

// Tracker records location occupancy changes.
type Tracker interface {
	// Set stamps the location with the given run id.
	Set(ctx context.Context, location, runID string) error
	// Clear empties the location.
	Clear(ctx context.Context, location string) error
}

// Memory is an in-process tracker.
type Memory struct {
	mu        sync.RWMutex
	locations map[string]string
}

var _ Tracker = (*Memory)(nil)

// NewMemory creates an empty in-memory tracker.
func NewMemory() *Memory {
	return &Memory{locations: map[string]string{}}
}

// Set stamps the location with the run id.
func (m *Memory) Set(_ context.Context, location, runID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.locations[location] = runID
	return nil
}

// Clear empties the location.
func (m *Memory) Clear(_ context.Context, location string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.locations[location] = ""
	return nil
}

// Occupant returns the run id occupying the location, empty when vacant.
func (m *Memory) Occupant(location string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.locations[location]
}

// Snapshot returns a copy of the current occupancy map.
func (m *Memory) Snapshot() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snapshot := make(map[string]string, len(m.locations))
	for location, runID := range m.locations {
		snapshot[location] = runID
	}
	return snapshot
}

// Notifier posts occupancy changes to an external workcell server.
type Notifier struct {
	baseURL string
	client  *http.Client
}

var _ Tracker = (*Notifier)(nil)

// NewNotifier creates a tracker that POSTs updates to
// {baseURL}/wc/locations/{location}/set.
func NewNotifier(baseURL string, client *http.Client) *Notifier {
	if client == nil {
		client = http.DefaultClient
	}
	return &Notifier{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

// Set stamps the location with the run id on the remote server.
func (t *Notifier) Set(ctx context.Context, location, runID string) error {
	return t.post(ctx, location, runID)
}

// Clear empties the location on the remote server.
func (t *Notifier) Clear(ctx context.Context, location string) error {
	return t.post(ctx, location, "")
}

func (t *Notifier) post(ctx context.Context, location, runID string) error {
	endpoint := fmt.Sprintf("%s/wc/locations/%s/set?run_id=%s",
		t.baseURL, url.PathEscape(location), url.QueryEscape(runID))
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return err
	}
	response, err := t.client.Do(request)
	if err != nil {
		return err
	}
	defer response.Body.Close()
	if response.StatusCode < 200 || response.StatusCode > 299 {
		return fmt.Errorf("occupancy update for %s: unexpected status %s", location, response.Status)
	}
	return nil
}
