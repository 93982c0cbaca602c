package models

import (
	"fmt"
	"strings"
)

// PortRef identifies a single port of a task, e.g. "ndvi.raster".
// Task is a (possibly dot-qualified) task alias, Port the port name.
type PortRef struct {
	Task string `json:"task" yaml:"task"`
	Port string `json:"port" yaml:"port"`
}

func (p PortRef) String() string {
	return p.Task + "." + p.Port
}

// ParsePortRef splits "task.port" on the last dot so qualified aliases
// like "parent.child.out" keep their full task path.
func ParsePortRef(s string) (PortRef, error) {
	idx := strings.LastIndex(s, ".")
	if idx <= 0 || idx == len(s)-1 {
		return PortRef{}, fmt.Errorf("invalid port reference %q, expected task.port", s)
	}
	return PortRef{Task: s[:idx], Port: s[idx+1:]}, nil
}

// TaskSpec declares a single task inside a workflow: either a primitive
// operation (Op) or a nested workflow reference (Workflow), never both.
// Parameter override values may be literals or "@from(name)" indirections.
type TaskSpec struct {
	Op         string                 `json:"op,omitempty" yaml:"op,omitempty"`
	Workflow   string                 `json:"workflow,omitempty" yaml:"workflow,omitempty"`
	Parameters map[string]interface{} `json:"parameters,omitempty" yaml:"parameters,omitempty"`
}

// EdgeSpec connects one origin output port to one or more destination
// input ports (fan-out). Fan-in is expressed with an explicit merge task.
type EdgeSpec struct {
	Origin      string   `json:"origin" yaml:"origin"`
	Destination []string `json:"destination" yaml:"destination"`
}

// WorkflowSpec is the validated in-memory form of a declarative workflow
// document. Nested workflow references in Tasks are recorded, not
// expanded; expansion happens in the graph builder.
type WorkflowSpec struct {
	Name       string                 `json:"name" yaml:"name"`
	Sources    map[string][]string    `json:"sources,omitempty" yaml:"sources,omitempty"`
	Sinks      map[string]string      `json:"sinks,omitempty" yaml:"sinks,omitempty"`
	Parameters map[string]interface{} `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	Tasks      map[string]TaskSpec    `json:"tasks" yaml:"tasks"`
	Edges      []EdgeSpec             `json:"edges,omitempty" yaml:"edges,omitempty"`
}
