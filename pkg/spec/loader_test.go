package spec_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shankarkarande/farmvibes-ai/pkg/models"
	"github.com/shankarkarande/farmvibes-ai/pkg/spec"
	"github.com/stretchr/testify/assert"
)

const validYAML = `
name: ndvi_summary
sources:
  user_input:
    - download.region
sinks:
  summary: summarize.stats
parameters:
  resolution: 10
tasks:
  download:
    op: download_imagery
  summarize:
    op: summarize
    parameters:
      resolution: "@from(resolution)"
edges:
  - origin: download.raster
    destination:
      - summarize.raster
`

func TestLoadValidWorkflow(t *testing.T) {
	ws, err := spec.Load([]byte(validYAML))
	assert.NoError(t, err)
	assert.Equal(t, "ndvi_summary", ws.Name)
	assert.Len(t, ws.Tasks, 2)
	assert.Equal(t, "download_imagery", ws.Tasks["download"].Op)
	assert.Equal(t, "@from(resolution)", ws.Tasks["summarize"].Parameters["resolution"])
	assert.Equal(t, []string{"download.region"}, ws.Sources["user_input"])
	assert.Equal(t, "summarize.stats", ws.Sinks["summary"])
	assert.Len(t, ws.Edges, 1)
	assert.Equal(t, []string{"summarize.raster"}, ws.Edges[0].Destination)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		kind models.ErrorKind
	}{
		{
			name: "invalid yaml",
			yaml: "tasks: [unbalanced",
			kind: models.ErrMalformedSpec,
		},
		{
			name: "no tasks",
			yaml: "name: empty\ntasks: {}\n",
			kind: models.ErrMalformedSpec,
		},
		{
			name: "duplicate alias",
			yaml: `
name: dup
tasks:
  t1:
    op: a
  t1:
    op: b
`,
			kind: models.ErrDuplicateAlias,
		},
		{
			name: "alias with dot",
			yaml: `
name: dotted
tasks:
  t.1:
    op: a
`,
			kind: models.ErrMalformedSpec,
		},
		{
			name: "neither op nor workflow",
			yaml: `
name: hollow
tasks:
  t1: {}
`,
			kind: models.ErrMalformedSpec,
		},
		{
			name: "both op and workflow",
			yaml: `
name: both
tasks:
  t1:
    op: a
    workflow: b
`,
			kind: models.ErrMalformedSpec,
		},
		{
			name: "edge references unknown task",
			yaml: `
name: dangling
tasks:
  t1:
    op: a
edges:
  - origin: ghost.out
    destination:
      - t1.x
`,
			kind: models.ErrUnknownPortReference,
		},
		{
			name: "sink references unknown task",
			yaml: `
name: badsink
tasks:
  t1:
    op: a
sinks:
  out: ghost.result
`,
			kind: models.ErrUnknownPortReference,
		},
		{
			name: "source references unknown task",
			yaml: `
name: badsource
tasks:
  t1:
    op: a
sources:
  in:
    - ghost.x
`,
			kind: models.ErrUnknownPortReference,
		},
		{
			name: "implicit fan-in",
			yaml: `
name: fanin
tasks:
  t1:
    op: a
  t2:
    op: b
  t3:
    op: c
edges:
  - origin: t1.out
    destination:
      - t3.x
  - origin: t2.out
    destination:
      - t3.x
`,
			kind: models.ErrMalformedSpec,
		},
		{
			name: "source and edge feed the same port",
			yaml: `
name: mixedfanin
sources:
  in:
    - t2.x
tasks:
  t1:
    op: a
  t2:
    op: b
edges:
  - origin: t1.out
    destination:
      - t2.x
`,
			kind: models.ErrMalformedSpec,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := spec.Load([]byte(tt.yaml))
			assert.Error(t, err)
			assert.Equal(t, tt.kind, models.KindOf(err))
		})
	}
}

func TestLoadFileNameFallback(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "unnamed_flow.yaml")
	content := `
tasks:
  t1:
    op: a
`
	assert.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	ws, err := spec.LoadFile(path)
	assert.NoError(t, err)
	assert.Equal(t, "unnamed_flow", ws.Name)
}

func TestLoadFileMissing(t *testing.T) {
	_, err := spec.LoadFile("/does/not/exist.yaml")
	assert.Error(t, err)
	assert.Equal(t, models.ErrMalformedSpec, models.KindOf(err))
}

func TestMemRegistry(t *testing.T) {
	r := spec.NewMemRegistry()

	ws, err := spec.Load([]byte(validYAML))
	assert.NoError(t, err)
	assert.NoError(t, r.Register(ws))

	got, err := r.Get("ndvi_summary")
	assert.NoError(t, err)
	assert.Equal(t, ws, got)

	_, err = r.Get("missing")
	assert.Error(t, err)

	err = r.Register(&models.WorkflowSpec{Tasks: map[string]models.TaskSpec{"t": {Op: "a"}}})
	assert.Error(t, err) // nameless
}

func TestDirRegistry(t *testing.T) {
	dir := t.TempDir()
	assert.NoError(t, os.WriteFile(filepath.Join(dir, "simple.yaml"), []byte(`
name: simple
tasks:
  t1:
    op: a
`), 0o644))

	r := spec.NewDirRegistry(dir)

	ws, err := r.Get("simple")
	assert.NoError(t, err)
	assert.Equal(t, "simple", ws.Name)

	// cached on second lookup
	again, err := r.Get("simple")
	assert.NoError(t, err)
	assert.Same(t, ws, again)

	_, err = r.Get("absent")
	assert.Error(t, err)
}
