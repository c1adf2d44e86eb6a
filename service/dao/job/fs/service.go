// Package fs provides a filesystem-backed job store so the submission queue's
// bookkeeping survives server restarts.  Jobs are stored one JSON document
// per job.
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

// Service implements a filesystem-based job store.
type Service struct {
	basePath string
	fs       afs.Service
	mu       sync.RWMutex
}

var _ dao.Service[string, model.Job] = (*Service)(nil)

// New creates a filesystem job store rooted at basePath.
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

// Save persists a job.
func (s *Service) Save(ctx context.Context, job *model.Job) error {
	if job == nil {
		return dao.ErrNilEntity
	}
	if job.ID == "" {
		return dao.ErrInvalidID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	filePath := s.jobPath(job.ID)
	if err := s.fs.Upload(ctx, filePath, file.DefaultFileOsMode, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to save job to file %s: %w", filePath, err)
	}
	return nil
}

// Load retrieves a job by id.
func (s *Service) Load(ctx context.Context, id string) (*model.Job, error) {
	if id == "" {
		return nil, dao.ErrInvalidID
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	filePath := s.jobPath(id)
	exists, err := s.fs.Exists(ctx, filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to check if job exists: %w", err)
	}
	if !exists {
		return nil, dao.ErrNotFound
	}

	data, err := s.fs.DownloadWithURL(ctx, filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read job file: %w", err)
	}
	var job model.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	return &job, nil
}

// Delete removes a job.
func (s *Service) Delete(ctx context.Context, id string) error {
	if id == "" {
		return dao.ErrInvalidID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	filePath := s.jobPath(id)
	exists, err := s.fs.Exists(ctx, filePath)
	if err != nil {
		return fmt.Errorf("failed to check if job exists: %w", err)
	}
	if !exists {
		return dao.ErrNotFound
	}
	if err := s.fs.Delete(ctx, filePath); err != nil {
		return fmt.Errorf("failed to delete job file: %w", err)
	}
	return nil
}

// List returns all jobs, optionally filtered by the State parameter.
func (s *Service) List(ctx context.Context, parameters ...*dao.Parameter) ([]*model.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	objects, err := s.fs.List(ctx, s.basePath, option.NewRecursive(true))
	if err != nil {
		return nil, fmt.Errorf("failed to list job files: %w", err)
	}

	var jobs []*model.Job
	for _, object := range objects {
		if object.IsDir() || !strings.HasSuffix(object.Name(), ".json") {
			continue
		}
		data, err := s.fs.Download(ctx, object)
		if err != nil {
			continue
		}
		var job model.Job
		if err := json.Unmarshal(data, &job); err != nil {
			continue
		}
		if !criteria.FilterByState(job.Status, parameters) {
			continue
		}
		jobs = append(jobs, &job)
	}
	return jobs, nil
}

func (s *Service) jobPath(id string) string {
	return path.Join(s.basePath, fmt.Sprintf("%s.json", id))
}
