// Package params resolves "@from(name)" parameter indirections into
// fully literal tables before anything is scheduled. Resolution is a
// pure pass: resolving twice from identical inputs yields identical
// tables, which the cache fingerprints rely on.
package params

import (
	"regexp"
	"sort"

	"github.com/shankarkarande/farmvibes-ai/pkg/models"
)

var (
	fromRe   = regexp.MustCompile(`^@from\(([^()\s]+)\)$`)
	secretRe = regexp.MustCompile(`^@secret\(([^()\s]+)\)$`)
)

// FromRef reports whether v is an "@from(name)" indirection and
// returns the referenced parameter name.
func FromRef(v interface{}) (string, bool) {
	s, ok := v.(string)
	if !ok {
		return "", false
	}
	m := fromRe.FindStringSubmatch(s)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// SecretRef reports whether v is an "@secret(name)" reference. Secrets
// are resolved at dispatch time, never during parameter resolution, so
// secret material stays out of fingerprints and stored specs.
func SecretRef(v interface{}) (string, bool) {
	s, ok := v.(string)
	if !ok {
		return "", false
	}
	m := secretRe.FindStringSubmatch(s)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// Resolve produces a fully literal parameter table for one scope.
// The scope table is defaults overridden by overrides; "@from(name)"
// values look up name among the scope's own entries first, then in the
// already-literal enclosing table. Chains must terminate in literals:
// a missing name fails with ErrUnboundParameter, a reference cycle with
// ErrCyclicParameterReference.
func Resolve(defaults, overrides, enclosing map[string]interface{}) (map[string]interface{}, error) {
	merged := make(map[string]interface{}, len(defaults)+len(overrides))
	for k, v := range defaults {
		merged[k] = v
	}
	for k, v := range overrides {
		merged[k] = v
	}

	r := &resolver{merged: merged, enclosing: enclosing,
		resolved: make(map[string]interface{}), visiting: make(map[string]bool)}

	out := make(map[string]interface{}, len(merged))
	for _, name := range sortedKeys(merged) {
		v, err := r.lookup(name)
		if err != nil {
			return nil, err
		}
		out[name] = v
	}
	return out, nil
}

type resolver struct {
	merged    map[string]interface{}
	enclosing map[string]interface{}
	resolved  map[string]interface{}
	visiting  map[string]bool
}

func (r *resolver) lookup(name string) (interface{}, error) {
	if v, ok := r.resolved[name]; ok {
		return v, nil
	}
	if r.visiting[name] {
		// Re-entering a name means "@from(name)" inside its own chain,
		// which is how a scope forwards a parameter from its parent
		// (e.g. x: "@from(x)"). Only when the enclosing scope cannot
		// break the chain is it a genuine cycle.
		if v, ok := r.enclosing[name]; ok {
			return v, nil
		}
		return nil, models.NewError(models.ErrCyclicParameterReference,
			"parameter %q participates in an @from cycle", name)
	}
	raw, ok := r.merged[name]
	if !ok {
		v, ok := r.enclosing[name]
		if !ok {
			return nil, models.NewError(models.ErrUnboundParameter,
				"parameter %q is not bound in any enclosing scope", name)
		}
		return v, nil
	}
	r.visiting[name] = true
	v, err := r.value(raw)
	delete(r.visiting, name)
	if err != nil {
		return nil, err
	}
	r.resolved[name] = v
	return v, nil
}

// value resolves one raw value, descending into maps and lists so
// structured parameters can embed indirections.
func (r *resolver) value(raw interface{}) (interface{}, error) {
	if ref, ok := FromRef(raw); ok {
		return r.lookup(ref)
	}
	switch t := raw.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for _, k := range sortedKeys(t) {
			v, err := r.value(t[k])
			if err != nil {
				return nil, err
			}
			out[k] = v
		}
		return out, nil
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			v, err := r.value(e)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	default:
		return raw, nil
	}
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
