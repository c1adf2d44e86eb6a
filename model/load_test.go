package model

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/viant/afs"
)

const workflowYAML = `
name: transfer_and_measure
version: "1.2"
modules:
  - robotarm
  - platereader
flowdef:
  - name: move_plate
    module: robotarm
    command: transfer
    args:
      source: stack1
      target: reader
  - name: measure
    module: platereader
    command: read_absorbance
    args:
      wavelength: payload.wavelength
    haltOnFailure: true
`

const workcellYAML = `
name: demo_cell
modules:
  - name: robotarm
    interface: tcp
    model: pf400
    config:
      address: 192.168.1.50
      port: 3000
  - name: platereader
    interface: rest
    config:
      address: http://192.168.1.60:2005
locations:
  robotarm:
    stack1: "(0,0)"
    reader: "(1,1)"
`

func TestDecodeWorkflow(t *testing.T) {
	workflow, err := DecodeWorkflow([]byte(workflowYAML))
	assert.NoError(t, err)
	assert.Equal(t, "transfer_and_measure", workflow.Name)
	assert.Equal(t, "1.2", workflow.Version)
	assert.Equal(t, []string{"robotarm", "platereader"}, workflow.Modules)
	assert.Len(t, workflow.Flowdef, 2)

	step := workflow.Flowdef[0]
	assert.Equal(t, "move_plate", step.Name)
	assert.Equal(t, "transfer", step.Command)
	assert.Equal(t, "stack1", step.Args["source"])
	assert.False(t, step.HaltOnFailure)
	assert.True(t, workflow.Flowdef[1].HaltOnFailure)
}

func TestDecodeWorkflowInvalid(t *testing.T) {
	_, err := DecodeWorkflow([]byte("name: empty\nmodules: []\n"))
	assert.Error(t, err)

	_, err = DecodeWorkflow([]byte("flowdef: {not: a list}"))
	assert.Error(t, err)
}

func TestDecodeWorkcell(t *testing.T) {
	cell, err := DecodeWorkcell([]byte(workcellYAML))
	assert.NoError(t, err)
	assert.Equal(t, "demo_cell", cell.Name)
	assert.Len(t, cell.Modules, 2)

	arm := cell.FindModule("robotarm")
	assert.NotNil(t, arm)
	assert.Equal(t, InterfaceTCP, arm.Interface)
	assert.Equal(t, "pf400", arm.Model)
	assert.Equal(t, "192.168.1.50", arm.Address())
	assert.Equal(t, 3000, arm.Port())

	locations := cell.ModuleLocations("robotarm")
	assert.Equal(t, "(0,0)", locations["stack1"])
}

func TestDecodeWorkcellInvalid(t *testing.T) {
	_, err := DecodeWorkcell([]byte("modules:\n  - name: arm\n    interface: carrier-pigeon\n"))
	assert.Error(t, err)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	workflowPath := filepath.Join(dir, "transfer_and_measure.yaml")
	assert.NoError(t, os.WriteFile(workflowPath, []byte(workflowYAML), 0o644))
	cellPath := filepath.Join(dir, "demo_cell.yaml")
	assert.NoError(t, os.WriteFile(cellPath, []byte(workcellYAML), 0o644))

	fs := afs.New()
	ctx := context.Background()

	workflow, err := LoadWorkflow(ctx, fs, workflowPath)
	assert.NoError(t, err)
	assert.Equal(t, "transfer_and_measure", workflow.Name)

	cell, err := LoadWorkcell(ctx, fs, cellPath)
	assert.NoError(t, err)
	assert.Equal(t, "demo_cell", cell.Name)

	_, err = LoadWorkflow(ctx, fs, filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadNameFromFileName(t *testing.T) {
	dir := t.TempDir()
	// Definition carries no name; the file name is used
	data := []byte("modules:\n  - robotarm\nflowdef:\n  - name: move\n    module: robotarm\n    command: transfer\n")
	path := filepath.Join(dir, "unload_plate.yaml")
	assert.NoError(t, os.WriteFile(path, data, 0o644))

	workflow, err := LoadWorkflow(context.Background(), afs.New(), path)
	assert.NoError(t, err)
	assert.Equal(t, "unload_plate", workflow.Name)
}
