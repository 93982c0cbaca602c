// Package graph expands a workflow spec, including nested workflow
// references, into a single flat task DAG ready for scheduling. Nodes
// are indexed by dot-qualified alias path so the flattened arena needs
// no recursive object graphs, only adjacency lists keyed by strings.
package graph

import (
	"sort"

	"github.com/shankarkarande/farmvibes-ai/pkg/models"
	"github.com/shankarkarande/farmvibes-ai/pkg/params"
	"github.com/shankarkarande/farmvibes-ai/pkg/spec"
)

// InputRef says where one input port of a node gets its data from:
// either a top-level run source (Source != "") or an upstream task's
// output port.
type InputRef struct {
	Source string
	Origin models.PortRef
}

// Node is one executable task of the flattened DAG. Parameters are
// fully literal except "@secret()" references, which the scheduler
// resolves at dispatch.
type Node struct {
	Alias      string
	Op         string
	Parameters map[string]interface{}
}

// Graph is the flattened, validated, topologically ordered task DAG.
type Graph struct {
	Workflow   string
	Nodes      map[string]*Node
	Order      []string                            // topological execution order
	Deps       map[string][]string                 // alias -> upstream aliases
	Dependents map[string][]string                 // alias -> downstream aliases
	Inputs     map[string]map[string]InputRef      // alias -> input port -> feed
	Edges      map[models.PortRef][]models.PortRef // origin -> destinations
	Sources    map[string][]models.PortRef         // source name -> destination ports
	Sinks      map[string]models.PortRef           // sink name -> origin port
}

// Builder expands workflow specs against a registry of nested
// workflow definitions.
type Builder struct {
	registry spec.Registry
}

func NewBuilder(registry spec.Registry) *Builder {
	return &Builder{registry: registry}
}

// Build flattens ws into an executable DAG. overrides are the
// submission-time top-level parameter bindings. Build fails with
// ErrCyclicGraph on dependency cycles or self-referencing workflow
// expansions, and ErrUnreachableSink when a declared sink cannot be
// traced to a task output port of the flattened graph.
func (b *Builder) Build(ws *models.WorkflowSpec, overrides map[string]interface{}) (*Graph, error) {
	g := &Graph{
		Workflow:   ws.Name,
		Nodes:      make(map[string]*Node),
		Deps:       make(map[string][]string),
		Dependents: make(map[string][]string),
		Inputs:     make(map[string]map[string]InputRef),
		Edges:      make(map[models.PortRef][]models.PortRef),
		Sources:    make(map[string][]models.PortRef),
		Sinks:      make(map[string]models.PortRef),
	}

	table, err := params.Resolve(ws.Parameters, overrides, nil)
	if err != nil {
		return nil, err
	}

	exp := &expansion{builder: b, graph: g, stack: make(map[string]bool)}
	srcBind, sinkBind, err := exp.expand("", ws, table)
	if err != nil {
		return nil, err
	}

	for name, ports := range srcBind {
		g.Sources[name] = ports
		for _, p := range ports {
			if prev, ok := g.input(p.Task)[p.Port]; ok {
				return nil, models.NewError(models.ErrMalformedSpec,
					"port %s fed by both source %q and %s", p, name, prev.Origin)
			}
			g.input(p.Task)[p.Port] = InputRef{Source: name}
		}
	}
	for name, port := range sinkBind {
		if _, ok := g.Nodes[port.Task]; !ok {
			return nil, models.NewError(models.ErrUnreachableSink,
				"sink %q resolves to unknown task %q", name, port.Task)
		}
		g.Sinks[name] = port
	}

	if err := g.sort(); err != nil {
		return nil, err
	}
	return g, nil
}

func (g *Graph) input(alias string) map[string]InputRef {
	m, ok := g.Inputs[alias]
	if !ok {
		m = make(map[string]InputRef)
		g.Inputs[alias] = m
	}
	return m
}

// expansion carries the per-build state of the recursive flattening.
type expansion struct {
	builder *Builder
	graph   *Graph
	stack   map[string]bool // workflow names on the expansion path
}

// aliasBinds maps one scope's task aliases to their flattened ports.
// Leaf tasks bind ports to themselves; nested workflow tasks bind
// their declared sources and sinks to internal ports of the inlined
// subgraph.
type aliasBinds struct {
	leaf  map[string]string                      // alias -> qualified path
	src   map[string]map[string][]models.PortRef // alias -> source -> ports
	sinks map[string]map[string]models.PortRef   // alias -> sink -> port
	fed   map[string]map[string]bool             // alias -> source names fed by this scope
}

// expand inlines one workflow scope under prefix and returns the
// flattened bindings of the scope's own declared sources and sinks.
func (e *expansion) expand(prefix string, ws *models.WorkflowSpec, table map[string]interface{}) (map[string][]models.PortRef, map[string]models.PortRef, error) {
	binds := aliasBinds{
		leaf:  make(map[string]string),
		src:   make(map[string]map[string][]models.PortRef),
		sinks: make(map[string]map[string]models.PortRef),
		fed:   make(map[string]map[string]bool),
	}

	aliases := make([]string, 0, len(ws.Tasks))
	for alias := range ws.Tasks {
		aliases = append(aliases, alias)
	}
	sort.Strings(aliases)

	for _, alias := range aliases {
		ts := ws.Tasks[alias]
		path := alias
		if prefix != "" {
			path = prefix + "." + alias
		}

		taskParams, err := params.Resolve(nil, ts.Parameters, table)
		if err != nil {
			return nil, nil, err
		}

		if ts.Op != "" {
			e.graph.Nodes[path] = &Node{Alias: path, Op: ts.Op, Parameters: taskParams}
			e.graph.Deps[path] = nil
			binds.leaf[alias] = path
			continue
		}

		if e.stack[ts.Workflow] {
			return nil, nil, models.NewError(models.ErrCyclicGraph,
				"workflow %q expands into itself", ts.Workflow)
		}
		sub, err := e.builder.registry.Get(ts.Workflow)
		if err != nil {
			return nil, nil, err
		}
		subTable, err := params.Resolve(sub.Parameters, ts.Parameters, table)
		if err != nil {
			return nil, nil, err
		}
		e.stack[ts.Workflow] = true
		srcB, sinkB, err := e.expand(path, sub, subTable)
		delete(e.stack, ts.Workflow)
		if err != nil {
			return nil, nil, err
		}
		binds.src[alias] = srcB
		binds.sinks[alias] = sinkB
	}

	for _, es := range ws.Edges {
		origin, err := e.resolveOrigin(es.Origin, binds)
		if err != nil {
			return nil, nil, err
		}
		for _, d := range es.Destination {
			dests, err := e.resolveDests(d, binds)
			if err != nil {
				return nil, nil, err
			}
			for _, dest := range dests {
				if prev, ok := e.graph.input(dest.Task)[dest.Port]; ok {
					return nil, nil, models.NewError(models.ErrMalformedSpec,
						"port %s fed by both %s and %s", dest, prev.Origin, origin)
				}
				e.graph.Edges[origin] = append(e.graph.Edges[origin], dest)
				e.graph.input(dest.Task)[dest.Port] = InputRef{Origin: origin}
				e.graph.Deps[dest.Task] = appendUnique(e.graph.Deps[dest.Task], origin.Task)
				e.graph.Dependents[origin.Task] = appendUnique(e.graph.Dependents[origin.Task], dest.Task)
			}
		}
	}

	srcBind := make(map[string][]models.PortRef, len(ws.Sources))
	for name, targets := range ws.Sources {
		for _, t := range targets {
			dests, err := e.resolveDests(t, binds)
			if err != nil {
				return nil, nil, err
			}
			srcBind[name] = append(srcBind[name], dests...)
		}
	}

	sinkBind := make(map[string]models.PortRef, len(ws.Sinks))
	for name, target := range ws.Sinks {
		origin, err := e.resolveOrigin(target, binds)
		if err != nil {
			return nil, nil, models.NewError(models.ErrUnreachableSink,
				"sink %q of workflow %q: %v", name, ws.Name, err)
		}
		sinkBind[name] = origin
	}

	// every source a nested workflow declares must get data from this
	// scope, or its internal destination ports would never be fed
	for _, alias := range aliases {
		srcs := binds.src[alias]
		if srcs == nil {
			continue
		}
		names := make([]string, 0, len(srcs))
		for name := range srcs {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if !binds.fed[alias][name] {
				return nil, nil, models.NewError(models.ErrMalformedSpec,
					"source %q of nested workflow task %q is never fed", name, alias)
			}
		}
	}

	return srcBind, sinkBind, nil
}

// resolveOrigin maps an origin endpoint "alias.port" of the current
// scope to a leaf output port, following nested sink bindings.
func (e *expansion) resolveOrigin(endpoint string, binds aliasBinds) (models.PortRef, error) {
	ref, err := models.ParsePortRef(endpoint)
	if err != nil {
		return models.PortRef{}, models.NewError(models.ErrMalformedSpec, "%v", err)
	}
	if path, ok := binds.leaf[ref.Task]; ok {
		return models.PortRef{Task: path, Port: ref.Port}, nil
	}
	sinks, ok := binds.sinks[ref.Task]
	if !ok {
		return models.PortRef{}, models.NewError(models.ErrUnknownPortReference,
			"origin %s references unknown task %q", endpoint, ref.Task)
	}
	origin, ok := sinks[ref.Port]
	if !ok {
		return models.PortRef{}, models.NewError(models.ErrUnknownPortReference,
			"origin %s references undeclared sink %q of nested workflow task %q", endpoint, ref.Port, ref.Task)
	}
	return origin, nil
}

// resolveDests maps a destination endpoint to leaf input ports,
// expanding through nested source bindings (one endpoint may fan out
// into several internal ports).
func (e *expansion) resolveDests(endpoint string, binds aliasBinds) ([]models.PortRef, error) {
	ref, err := models.ParsePortRef(endpoint)
	if err != nil {
		return nil, models.NewError(models.ErrMalformedSpec, "%v", err)
	}
	if path, ok := binds.leaf[ref.Task]; ok {
		return []models.PortRef{{Task: path, Port: ref.Port}}, nil
	}
	srcs, ok := binds.src[ref.Task]
	if !ok {
		return nil, models.NewError(models.ErrUnknownPortReference,
			"destination %s references unknown task %q", endpoint, ref.Task)
	}
	ports, ok := srcs[ref.Port]
	if !ok {
		return nil, models.NewError(models.ErrUnknownPortReference,
			"destination %s references undeclared source %q of nested workflow task %q", endpoint, ref.Port, ref.Task)
	}
	if binds.fed[ref.Task] == nil {
		binds.fed[ref.Task] = make(map[string]bool)
	}
	binds.fed[ref.Task][ref.Port] = true
	return ports, nil
}

// sort computes the topological order of the flattened graph using
// Kahn's algorithm. A leftover node means a dependency cycle.
func (g *Graph) sort() error {
	inDegree := make(map[string]int, len(g.Nodes))
	for alias := range g.Nodes {
		inDegree[alias] = len(g.Deps[alias])
	}

	var queue []string
	for alias, deg := range inDegree {
		if deg == 0 {
			queue = append(queue, alias)
		}
	}
	sort.Strings(queue)

	var order []string
	for len(queue) > 0 {
		curr := queue[0]
		queue = queue[1:]
		order = append(order, curr)

		next := append([]string(nil), g.Dependents[curr]...)
		sort.Strings(next)
		for _, dep := range next {
			inDegree[dep]--
			if inDegree[dep] == 0 {
				queue = append(queue, dep)
			}
		}
	}

	if len(order) != len(g.Nodes) {
		return models.NewError(models.ErrCyclicGraph,
			"workflow %q contains a dependency cycle", g.Workflow)
	}
	g.Order = order
	return nil
}

func appendUnique(list []string, v string) []string {
	for _, e := range list {
		if e == v {
			return list
		}
	}
	return append(list, v)
}
