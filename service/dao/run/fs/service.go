// Package fs provides a filesystem-backed run-record store so run history
// survives server restarts.  Records are stored one JSON document per run.
package fs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/option"
	"github.com/viant/afs/url"

	"github.com/labkit/workcell/model"
	"github.com/labkit/workcell/service/dao"
	"github.com/labkit/workcell/service/dao/criteria"
)

// Service implements a filesystem-based run-record store.
type Service struct {
	basePath string
	fs       afs.Service
	mu       sync.RWMutex
}

var _ dao.Service[string, model.RunRecord] = (*Service)(nil)

// New creates a filesystem run-record store rooted at basePath.
func New(basePath string) (*Service, error) {
	if basePath == "" {
		return nil, fmt.Errorf("base path cannot be empty")
	}

	fs := afs.New()
	ctx := context.Background()
	exists, _ := fs.Exists(ctx, basePath)
	if !exists {
		if err := fs.Create(ctx, basePath, file.DefaultDirOsMode, true); err != nil {
			return nil, fmt.Errorf("failed to create base directory: %w", err)
		}
	}
	basePath = url.Normalize(basePath, file.Scheme)

	return &Service{basePath: basePath, fs: fs}, nil
}

// Save persists a run record.
func (s *Service) Save(ctx context.Context, record *model.RunRecord) error {
	if record == nil {
		return dao.ErrNilEntity
	}
	if record.RunID == "" {
		return dao.ErrInvalidID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal run record: %w", err)
	}
	filePath := s.recordPath(record.RunID)
	if err := s.fs.Upload(ctx, filePath, file.DefaultFileOsMode, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to save run record to file %s: %w", filePath, err)
	}
	return nil
}

// Load retrieves a run record by run id.
func (s *Service) Load(ctx context.Context, id string) (*model.RunRecord, error) {
	if id == "" {
		return nil, dao.ErrInvalidID
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	filePath := s.recordPath(id)
	exists, err := s.fs.Exists(ctx, filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to check if run record exists: %w", err)
	}
	if !exists {
		return nil, dao.ErrNotFound
	}

	data, err := s.fs.DownloadWithURL(ctx, filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read run record file: %w", err)
	}
	var record model.RunRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run record: %w", err)
	}
	return &record, nil
}

// Delete removes a run record.
func (s *Service) Delete(ctx context.Context, id string) error {
	if id == "" {
		return dao.ErrInvalidID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	filePath := s.recordPath(id)
	exists, err := s.fs.Exists(ctx, filePath)
	if err != nil {
		return fmt.Errorf("failed to check if run record exists: %w", err)
	}
	if !exists {
		return dao.ErrNotFound
	}
	if err := s.fs.Delete(ctx, filePath); err != nil {
		return fmt.Errorf("failed to delete run record file: %w", err)
	}
	return nil
}

// List returns all run records, optionally filtered by the State parameter.
func (s *Service) List(ctx context.Context, parameters ...*dao.Parameter) ([]*model.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	objects, err := s.fs.List(ctx, s.basePath, option.NewRecursive(true))
	if err != nil {
		return nil, fmt.Errorf("failed to list run record files: %w", err)
	}

	var records []*model.RunRecord
	for _, object := range objects {
		if object.IsDir() || !strings.HasSuffix(object.Name(), ".json") {
			continue
		}
		data, err := s.fs.Download(ctx, object)
		if err != nil {
			continue
		}
		var record model.RunRecord
		if err := json.Unmarshal(data, &record); err != nil {
			continue
		}
		if !criteria.FilterByState(record.State, parameters) {
			continue
		}
		records = append(records, &record)
	}
	return records, nil
}

func (s *Service) recordPath(id string) string {
	return path.Join(s.basePath, fmt.Sprintf("%s.json", id))
}
