package graph_test

import (
	"testing"

	"github.com/shankarkarande/farmvibes-ai/pkg/graph"
	"github.com/shankarkarande/farmvibes-ai/pkg/models"
	"github.com/shankarkarande/farmvibes-ai/pkg/spec"
	"github.com/stretchr/testify/assert"
)

func newBuilder(t *testing.T, nested ...*models.WorkflowSpec) *graph.Builder {
	reg := spec.NewMemRegistry()
	for _, ws := range nested {
		assert.NoError(t, reg.Register(ws))
	}
	return graph.NewBuilder(reg)
}

func TestBuildLinearPipeline(t *testing.T) {
	ws := &models.WorkflowSpec{
		Name:    "pipeline",
		Sources: map[string][]string{"a": {"t1.x"}},
		Sinks:   map[string]string{"result": "t2.out"},
		Tasks: map[string]models.TaskSpec{
			"t1": {Op: "double"},
			"t2": {Op: "inc"},
		},
		Edges: []models.EdgeSpec{
			{Origin: "t1.out", Destination: []string{"t2.x"}},
		},
	}

	g, err := newBuilder(t).Build(ws, nil)
	assert.NoError(t, err)

	assert.Equal(t, []string{"t1", "t2"}, g.Order)
	assert.Equal(t, []string{"t1"}, g.Deps["t2"])
	assert.Equal(t, []string{"t2"}, g.Dependents["t1"])
	assert.Equal(t, graph.InputRef{Source: "a"}, g.Inputs["t1"]["x"])
	assert.Equal(t, graph.InputRef{Origin: models.PortRef{Task: "t1", Port: "out"}}, g.Inputs["t2"]["x"])
	assert.Equal(t, models.PortRef{Task: "t2", Port: "out"}, g.Sinks["result"])
}

func TestBuildResolvesParameters(t *testing.T) {
	ws := &models.WorkflowSpec{
		Name:       "parametrized",
		Sources:    map[string][]string{"a": {"t.x"}},
		Sinks:      map[string]string{"out": "t.out"},
		Parameters: map[string]interface{}{"resolution": 10},
		Tasks: map[string]models.TaskSpec{
			"t": {Op: "resample", Parameters: map[string]interface{}{
				"resolution": "@from(resolution)",
				"method":     "bilinear",
			}},
		},
	}

	g, err := newBuilder(t).Build(ws, nil)
	assert.NoError(t, err)
	assert.Equal(t, 10, g.Nodes["t"].Parameters["resolution"])
	assert.Equal(t, "bilinear", g.Nodes["t"].Parameters["method"])

	g, err = newBuilder(t).Build(ws, map[string]interface{}{"resolution": 30})
	assert.NoError(t, err)
	assert.Equal(t, 30, g.Nodes["t"].Parameters["resolution"])
}

func TestBuildUnknownOverrideLeftAlone(t *testing.T) {
	// an override for an undeclared parameter becomes part of the top
	// table; tasks that never reference it are unaffected
	ws := &models.WorkflowSpec{
		Name:    "plain",
		Sources: map[string][]string{"a": {"t.x"}},
		Sinks:   map[string]string{"out": "t.out"},
		Tasks:   map[string]models.TaskSpec{"t": {Op: "noop"}},
	}
	g, err := newBuilder(t).Build(ws, map[string]interface{}{"stray": 1})
	assert.NoError(t, err)
	assert.Empty(t, g.Nodes["t"].Parameters)
}

func TestBuildNestedWorkflow(t *testing.T) {
	inner := &models.WorkflowSpec{
		Name:       "inner",
		Sources:    map[string][]string{"in": {"a.x", "b.x"}},
		Sinks:      map[string]string{"out": "b.out"},
		Parameters: map[string]interface{}{"crs": "EPSG:4326"},
		Tasks: map[string]models.TaskSpec{
			"a": {Op: "op_a", Parameters: map[string]interface{}{"crs": "@from(crs)"}},
			"b": {Op: "op_b"},
		},
	}

	outer := &models.WorkflowSpec{
		Name:       "outer",
		Sources:    map[string][]string{"data": {"sub.in"}},
		Sinks:      map[string]string{"final": "last.out"},
		Parameters: map[string]interface{}{"crs": "EPSG:32633"},
		Tasks: map[string]models.TaskSpec{
			"sub":  {Workflow: "inner", Parameters: map[string]interface{}{"crs": "@from(crs)"}},
			"last": {Op: "op_c"},
		},
		Edges: []models.EdgeSpec{
			{Origin: "sub.out", Destination: []string{"last.x"}},
		},
	}

	g, err := newBuilder(t, inner).Build(outer, nil)
	assert.NoError(t, err)

	// nested tasks are flattened with qualified aliases
	assert.Len(t, g.Nodes, 3)
	assert.Contains(t, g.Nodes, "sub.a")
	assert.Contains(t, g.Nodes, "sub.b")
	assert.Contains(t, g.Nodes, "last")

	// the outer source fans out to both internal ports of the nested source
	assert.ElementsMatch(t, []models.PortRef{
		{Task: "sub.a", Port: "x"},
		{Task: "sub.b", Port: "x"},
	}, g.Sources["data"])

	// the edge from the nested sink lands on the leaf origin port
	assert.Equal(t, graph.InputRef{Origin: models.PortRef{Task: "sub.b", Port: "out"}}, g.Inputs["last"]["x"])

	// the nested parameter was overridden through the parent chain
	assert.Equal(t, "EPSG:32633", g.Nodes["sub.a"].Parameters["crs"])

	assert.Equal(t, models.PortRef{Task: "last", Port: "out"}, g.Sinks["final"])
}

func TestBuildDeeplyNested(t *testing.T) {
	leaf := &models.WorkflowSpec{
		Name:    "leaf",
		Sources: map[string][]string{"in": {"t.x"}},
		Sinks:   map[string]string{"out": "t.out"},
		Tasks:   map[string]models.TaskSpec{"t": {Op: "noop"}},
	}
	mid := &models.WorkflowSpec{
		Name:    "mid",
		Sources: map[string][]string{"in": {"l.in"}},
		Sinks:   map[string]string{"out": "l.out"},
		Tasks:   map[string]models.TaskSpec{"l": {Workflow: "leaf"}},
	}
	top := &models.WorkflowSpec{
		Name:    "top",
		Sources: map[string][]string{"in": {"m.in"}},
		Sinks:   map[string]string{"out": "m.out"},
		Tasks:   map[string]models.TaskSpec{"m": {Workflow: "mid"}},
	}

	g, err := newBuilder(t, leaf, mid).Build(top, nil)
	assert.NoError(t, err)
	assert.Equal(t, []string{"m.l.t"}, g.Order)
	assert.Equal(t, models.PortRef{Task: "m.l.t", Port: "out"}, g.Sinks["out"])
	assert.Equal(t, []models.PortRef{{Task: "m.l.t", Port: "x"}}, g.Sources["in"])
}

func TestBuildSelfReferencingWorkflow(t *testing.T) {
	recursive := &models.WorkflowSpec{
		Name:    "recursive",
		Sources: map[string][]string{"in": {"again.in"}},
		Sinks:   map[string]string{"out": "again.out"},
		Tasks:   map[string]models.TaskSpec{"again": {Workflow: "recursive"}},
	}

	_, err := newBuilder(t, recursive).Build(recursive, nil)
	assert.Error(t, err)
	assert.Equal(t, models.ErrCyclicGraph, models.KindOf(err))
}

func TestBuildDependencyCycle(t *testing.T) {
	ws := &models.WorkflowSpec{
		Name:    "cyclic",
		Sources: map[string][]string{"a": {"t1.seed"}},
		Sinks:   map[string]string{"out": "t2.out"},
		Tasks: map[string]models.TaskSpec{
			"t1": {Op: "a"},
			"t2": {Op: "b"},
		},
		Edges: []models.EdgeSpec{
			{Origin: "t1.out", Destination: []string{"t2.x"}},
			{Origin: "t2.out", Destination: []string{"t1.x"}},
		},
	}

	_, err := newBuilder(t).Build(ws, nil)
	assert.Error(t, err)
	assert.Equal(t, models.ErrCyclicGraph, models.KindOf(err))
}

func TestBuildUnreachableSink(t *testing.T) {
	inner := &models.WorkflowSpec{
		Name:    "inner",
		Sources: map[string][]string{"in": {"t.x"}},
		Sinks:   map[string]string{"out": "t.out"},
		Tasks:   map[string]models.TaskSpec{"t": {Op: "noop"}},
	}
	outer := &models.WorkflowSpec{
		Name:    "outer",
		Sources: map[string][]string{"in": {"sub.in"}},
		Sinks:   map[string]string{"final": "sub.missing"},
		Tasks:   map[string]models.TaskSpec{"sub": {Workflow: "inner"}},
	}

	_, err := newBuilder(t, inner).Build(outer, nil)
	assert.Error(t, err)
	assert.Equal(t, models.ErrUnreachableSink, models.KindOf(err))
}

func TestBuildFanInAcrossScopes(t *testing.T) {
	inner := &models.WorkflowSpec{
		Name:    "inner",
		Sources: map[string][]string{"in": {"t.x"}},
		Sinks:   map[string]string{"out": "t.out"},
		Tasks:   map[string]models.TaskSpec{"t": {Op: "noop"}},
	}
	outer := &models.WorkflowSpec{
		Name:    "outer",
		Sources: map[string][]string{"data": {"sub.in"}},
		Sinks:   map[string]string{"final": "sub.out"},
		Tasks: map[string]models.TaskSpec{
			"feeder": {Op: "noop"},
			"sub":    {Workflow: "inner"},
		},
		Edges: []models.EdgeSpec{
			{Origin: "feeder.out", Destination: []string{"sub.in"}},
		},
	}

	// the source and the edge both land on the same internal port
	_, err := newBuilder(t, inner).Build(outer, nil)
	assert.Error(t, err)
	assert.Equal(t, models.ErrMalformedSpec, models.KindOf(err))
}

func TestBuildUnfedNestedSource(t *testing.T) {
	inner := &models.WorkflowSpec{
		Name: "inner",
		Sources: map[string][]string{
			"in":  {"t.x"},
			"aux": {"t.y"},
		},
		Sinks: map[string]string{"out": "t.out"},
		Tasks: map[string]models.TaskSpec{"t": {Op: "noop"}},
	}
	outer := &models.WorkflowSpec{
		Name:    "outer",
		Sources: map[string][]string{"data": {"sub.in"}},
		Sinks:   map[string]string{"final": "sub.out"},
		Tasks:   map[string]models.TaskSpec{"sub": {Workflow: "inner"}},
	}

	// "aux" is declared by the nested workflow but nothing in the outer
	// scope feeds it, so t.y would execute with no input
	_, err := newBuilder(t, inner).Build(outer, nil)
	assert.Error(t, err)
	assert.Equal(t, models.ErrMalformedSpec, models.KindOf(err))
	assert.Contains(t, err.Error(), `source "aux"`)
}

func TestBuildUnboundNestedParameter(t *testing.T) {
	inner := &models.WorkflowSpec{
		Name:    "inner",
		Sources: map[string][]string{"in": {"t.x"}},
		Sinks:   map[string]string{"out": "t.out"},
		Tasks: map[string]models.TaskSpec{
			"t": {Op: "noop", Parameters: map[string]interface{}{"v": "@from(never_declared)"}},
		},
	}
	outer := &models.WorkflowSpec{
		Name:    "outer",
		Sources: map[string][]string{"in": {"sub.in"}},
		Sinks:   map[string]string{"out": "sub.out"},
		Tasks:   map[string]models.TaskSpec{"sub": {Workflow: "inner"}},
	}

	_, err := newBuilder(t, inner).Build(outer, nil)
	assert.Error(t, err)
	assert.Equal(t, models.ErrUnboundParameter, models.KindOf(err))
}

func TestBuildTopologicalOrderIsDeterministic(t *testing.T) {
	ws := &models.WorkflowSpec{
		Name:    "diamond",
		Sources: map[string][]string{"a": {"top.x"}},
		Sinks:   map[string]string{"out": "bottom.out"},
		Tasks: map[string]models.TaskSpec{
			"top":    {Op: "a"},
			"left":   {Op: "b"},
			"right":  {Op: "c"},
			"bottom": {Op: "d"},
		},
		Edges: []models.EdgeSpec{
			{Origin: "top.out", Destination: []string{"left.x", "right.x"}},
			{Origin: "left.out", Destination: []string{"bottom.l"}},
			{Origin: "right.out", Destination: []string{"bottom.r"}},
		},
	}

	first, err := newBuilder(t).Build(ws, nil)
	assert.NoError(t, err)
	assert.Equal(t, "top", first.Order[0])
	assert.Equal(t, "bottom", first.Order[3])
	for i := 0; i < 10; i++ {
		g, err := newBuilder(t).Build(ws, nil)
		assert.NoError(t, err)
		assert.Equal(t, first.Order, g.Order)
	}
}
