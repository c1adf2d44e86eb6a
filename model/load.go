package model

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/viant/afs"
	"gopkg.in/yaml.v3"
)

// DecodeWorkflow decodes a workflow definition from YAML and validates its
// structure.
func DecodeWorkflow(data []byte) (*Workflow, error) {
	workflow := &Workflow{}
	if err := yaml.Unmarshal(data, workflow); err != nil {
		return nil, fmt.Errorf("failed to decode workflow: %w", err)
	}
	if issues := workflow.Validate(); len(issues) > 0 {
		return nil, issues[0]
	}
	return workflow, nil
}

// DecodeWorkcell decodes a workcell definition from YAML and validates its
// structure.
func DecodeWorkcell(data []byte) (*Workcell, error) {
	cell := &Workcell{}
	if err := yaml.Unmarshal(data, cell); err != nil {
		return nil, fmt.Errorf("failed to decode workcell: %w", err)
	}
	if issues := cell.Validate(); len(issues) > 0 {
		return nil, issues[0]
	}
	return cell, nil
}

// LoadWorkflow loads a workflow definition from the supplied URL (file path
// or any scheme the afs service understands).  When the workflow carries no
// name, the file name is used.
func LoadWorkflow(ctx context.Context, fs afs.Service, URL string) (*Workflow, error) {
	data, err := fs.DownloadWithURL(ctx, URL)
	if err != nil {
		return nil, fmt.Errorf("failed to load workflow from %s: %w", URL, err)
	}
	workflow, err := DecodeWorkflow(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", URL, err)
	}
	if workflow.Name == "" {
		workflow.Name = nameFromURL(URL)
	}
	return workflow, nil
}

// LoadWorkcell loads a workcell definition from the supplied URL.
func LoadWorkcell(ctx context.Context, fs afs.Service, URL string) (*Workcell, error) {
	data, err := fs.DownloadWithURL(ctx, URL)
	if err != nil {
		return nil, fmt.Errorf("failed to load workcell from %s: %w", URL, err)
	}
	cell, err := DecodeWorkcell(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", URL, err)
	}
	if cell.Name == "" {
		cell.Name = nameFromURL(URL)
	}
	return cell, nil
}

// nameFromURL extracts a definition name from a URL (file name without extension).
func nameFromURL(URL string) string {
	base := filepath.Base(URL)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
