// Package spec parses and validates declarative workflow documents.
// Loading is a pure parse+validate step: nested workflow references are
// recorded but not expanded, so sub-workflow specs can be loaded lazily
// by the graph builder.
package spec

import (
	"fmt"
	"os"
	"strings"

	"github.com/shankarkarande/farmvibes-ai/pkg/models"
	"gopkg.in/yaml.v3"
)

// Load parses a YAML workflow document and validates its referential
// integrity. It fails with ErrMalformedSpec on syntax problems,
// ErrDuplicateAlias if two tasks share an alias, and
// ErrUnknownPortReference if an edge, source or sink names a task that
// is not declared.
func Load(data []byte) (*models.WorkflowSpec, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, models.NewError(models.ErrMalformedSpec, "parse workflow document: %v", err)
	}
	if err := checkDuplicateAliases(&doc); err != nil {
		return nil, err
	}

	var ws models.WorkflowSpec
	if err := doc.Decode(&ws); err != nil {
		return nil, models.NewError(models.ErrMalformedSpec, "decode workflow document: %v", err)
	}
	if err := Validate(&ws); err != nil {
		return nil, err
	}
	return &ws, nil
}

// LoadFile reads and parses a workflow document from disk.
func LoadFile(path string) (*models.WorkflowSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, models.NewError(models.ErrMalformedSpec, "read workflow file %s: %v", path, err)
	}
	ws, err := Load(data)
	if err != nil {
		return nil, err
	}
	if ws.Name == "" {
		base := path[strings.LastIndex(path, "/")+1:]
		ws.Name = strings.TrimSuffix(base, ".yaml")
	}
	return ws, nil
}

// checkDuplicateAliases walks the raw tasks mapping because decoding
// into a Go map silently keeps the last duplicate key.
func checkDuplicateAliases(doc *yaml.Node) error {
	root := doc
	if root.Kind == yaml.DocumentNode && len(root.Content) > 0 {
		root = root.Content[0]
	}
	if root.Kind != yaml.MappingNode {
		return nil // struct decode reports the real problem
	}
	for i := 0; i+1 < len(root.Content); i += 2 {
		if root.Content[i].Value != "tasks" {
			continue
		}
		tasks := root.Content[i+1]
		if tasks.Kind != yaml.MappingNode {
			return nil
		}
		seen := make(map[string]struct{}, len(tasks.Content)/2)
		for j := 0; j+1 < len(tasks.Content); j += 2 {
			alias := tasks.Content[j].Value
			if _, ok := seen[alias]; ok {
				return models.NewError(models.ErrDuplicateAlias, "task alias %q declared twice", alias)
			}
			seen[alias] = struct{}{}
		}
	}
	return nil
}

// Validate checks the referential integrity of a workflow spec without
// expanding nested workflow references.
func Validate(ws *models.WorkflowSpec) error {
	if len(ws.Tasks) == 0 {
		return models.NewError(models.ErrMalformedSpec, "workflow %q declares no tasks", ws.Name)
	}
	for alias, ts := range ws.Tasks {
		if strings.Contains(alias, ".") {
			return models.NewError(models.ErrMalformedSpec, "task alias %q must not contain dots", alias)
		}
		if ts.Op == "" && ts.Workflow == "" {
			return models.NewError(models.ErrMalformedSpec, "task %q references neither an op nor a workflow", alias)
		}
		if ts.Op != "" && ts.Workflow != "" {
			return models.NewError(models.ErrMalformedSpec, "task %q references both an op and a workflow", alias)
		}
	}

	// Destination ports fed by more than one origin would be silent
	// fan-in; merging requires an explicit task.
	fed := make(map[string]string) // destination port -> feeding origin/source

	for name, dests := range ws.Sources {
		if len(dests) == 0 {
			return models.NewError(models.ErrMalformedSpec, "source %q maps to no ports", name)
		}
		for _, d := range dests {
			ref, err := models.ParsePortRef(d)
			if err != nil {
				return models.NewError(models.ErrMalformedSpec, "source %q: %v", name, err)
			}
			if _, ok := ws.Tasks[ref.Task]; !ok {
				return models.NewError(models.ErrUnknownPortReference,
					"source %q targets undeclared task %q", name, ref.Task)
			}
			if prev, ok := fed[d]; ok {
				return models.NewError(models.ErrMalformedSpec,
					"port %s fed by both %s and source %q", d, prev, name)
			}
			fed[d] = "source " + name
		}
	}

	for i, e := range ws.Edges {
		origin, err := models.ParsePortRef(e.Origin)
		if err != nil {
			return models.NewError(models.ErrMalformedSpec, "edge %d: %v", i, err)
		}
		if _, ok := ws.Tasks[origin.Task]; !ok {
			return models.NewError(models.ErrUnknownPortReference,
				"edge origin %s references undeclared task %q", e.Origin, origin.Task)
		}
		if len(e.Destination) == 0 {
			return models.NewError(models.ErrMalformedSpec, "edge from %s has no destinations", e.Origin)
		}
		for _, d := range e.Destination {
			dest, err := models.ParsePortRef(d)
			if err != nil {
				return models.NewError(models.ErrMalformedSpec, "edge %d: %v", i, err)
			}
			if _, ok := ws.Tasks[dest.Task]; !ok {
				return models.NewError(models.ErrUnknownPortReference,
					"edge destination %s references undeclared task %q", d, dest.Task)
			}
			if prev, ok := fed[d]; ok {
				return models.NewError(models.ErrMalformedSpec,
					"port %s fed by both %s and %s", d, prev, e.Origin)
			}
			fed[d] = e.Origin
		}
	}

	for name, target := range ws.Sinks {
		ref, err := models.ParsePortRef(target)
		if err != nil {
			return models.NewError(models.ErrMalformedSpec, "sink %q: %v", name, err)
		}
		if _, ok := ws.Tasks[ref.Task]; !ok {
			return models.NewError(models.ErrUnknownPortReference,
				"sink %q targets undeclared task %q", name, ref.Task)
		}
	}
	return nil
}

// Registry resolves workflow names to specs. The graph builder consults
// it when expanding nested workflow references.
type Registry interface {
	Get(name string) (*models.WorkflowSpec, error)
}

// MemRegistry is an in-memory Registry for embedded use and tests.
type MemRegistry struct {
	specs map[string]*models.WorkflowSpec
}

func NewMemRegistry() *MemRegistry {
	return &MemRegistry{specs: make(map[string]*models.WorkflowSpec)}
}

// Register validates and stores a spec under its name.
func (r *MemRegistry) Register(ws *models.WorkflowSpec) error {
	if ws.Name == "" {
		return models.NewError(models.ErrMalformedSpec, "workflow has no name")
	}
	if err := Validate(ws); err != nil {
		return err
	}
	r.specs[ws.Name] = ws
	return nil
}

func (r *MemRegistry) Get(name string) (*models.WorkflowSpec, error) {
	ws, ok := r.specs[name]
	if !ok {
		return nil, models.NewError(models.ErrUnknownPortReference, "workflow %q is not registered", name)
	}
	return ws, nil
}

// DirRegistry loads workflow specs lazily from a directory of YAML
// files named <workflow>.yaml.
type DirRegistry struct {
	dir   string
	cache map[string]*models.WorkflowSpec
}

func NewDirRegistry(dir string) *DirRegistry {
	return &DirRegistry{dir: dir, cache: make(map[string]*models.WorkflowSpec)}
}

func (r *DirRegistry) Get(name string) (*models.WorkflowSpec, error) {
	if ws, ok := r.cache[name]; ok {
		return ws, nil
	}
	ws, err := LoadFile(fmt.Sprintf("%s/%s.yaml", r.dir, name))
	if err != nil {
		return nil, err
	}
	r.cache[name] = ws
	return ws, nil
}
