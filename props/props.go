// Package props holds the hierarchical property bags attached to job nodes.
//
// A Props value is a flat string map plus an optional parent; lookups fall
// through to the parent chain. Bags are persisted in their hierarchical map
// form so the nesting survives a round trip:
//
//	{"source": "job.props", "props": {"k": "v"}, "parent": {...}}
package props

import (
	"encoding/json"
	"sort"

	"github.com/teranos/flowstate/errors"
)

// Keys of the hierarchical map form.
const (
	keySource = "source"
	keyProps  = "props"
	keyParent = "parent"
)

// Props is a property bag with an optional parent chain.
type Props struct {
	Source string
	Values map[string]string
	Parent *Props
}

// New creates an empty bag with the given parent (may be nil).
func New(parent *Props) *Props {
	return &Props{Values: make(map[string]string), Parent: parent}
}

// FromMap creates a parentless bag holding a copy of m.
func FromMap(m map[string]string) *Props {
	p := New(nil)
	for k, v := range m {
		p.Values[k] = v
	}
	return p
}

// Put sets key on this level of the bag.
func (p *Props) Put(key, value string) {
	if p.Values == nil {
		p.Values = make(map[string]string)
	}
	p.Values[key] = value
}

// Get looks key up here and then up the parent chain.
func (p *Props) Get(key string) (string, bool) {
	for cur := p; cur != nil; cur = cur.Parent {
		if v, ok := cur.Values[key]; ok {
			return v, true
		}
	}
	return "", false
}

// Keys returns this level's keys, sorted.
func (p *Props) Keys() []string {
	keys := make([]string, 0, len(p.Values))
	for k := range p.Values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Flatten merges the parent chain into one map; children override parents.
func (p *Props) Flatten() map[string]string {
	var chain []*Props
	for cur := p; cur != nil; cur = cur.Parent {
		chain = append(chain, cur)
	}
	out := make(map[string]string)
	for i := len(chain) - 1; i >= 0; i-- {
		for k, v := range chain[i].Values {
			out[k] = v
		}
	}
	return out
}

// ToHierarchicalMap converts the bag and its parents to nested maps.
func (p *Props) ToHierarchicalMap() map[string]any {
	values := make(map[string]any, len(p.Values))
	for k, v := range p.Values {
		values[k] = v
	}
	m := map[string]any{
		keySource: p.Source,
		keyProps:  values,
	}
	if p.Parent != nil {
		m[keyParent] = p.Parent.ToHierarchicalMap()
	}
	return m
}

// FromHierarchicalMap rebuilds a bag from the form produced by ToHierarchicalMap.
// Non-string leaf values are rejected rather than silently dropped.
func FromHierarchicalMap(m map[string]any) (*Props, error) {
	if m == nil {
		return nil, nil
	}

	p := New(nil)
	if src, ok := m[keySource].(string); ok {
		p.Source = src
	}

	if raw, ok := m[keyProps]; ok && raw != nil {
		values, ok := raw.(map[string]any)
		if !ok {
			return nil, errors.Newf("props: %q must be an object, got %T", keyProps, raw)
		}
		for k, v := range values {
			s, ok := v.(string)
			if !ok {
				return nil, errors.Newf("props: value for %q must be a string, got %T", k, v)
			}
			p.Values[k] = s
		}
	}

	if raw, ok := m[keyParent]; ok && raw != nil {
		parentMap, ok := raw.(map[string]any)
		if !ok {
			return nil, errors.Newf("props: %q must be an object, got %T", keyParent, raw)
		}
		parent, err := FromHierarchicalMap(parentMap)
		if err != nil {
			return nil, errors.Wrap(err, "parent")
		}
		p.Parent = parent
	}

	return p, nil
}

// MarshalJSON encodes the hierarchical form.
func (p *Props) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.ToHierarchicalMap())
}

// UnmarshalJSON decodes the hierarchical form.
func (p *Props) UnmarshalJSON(data []byte) error {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	decoded, err := FromHierarchicalMap(m)
	if err != nil {
		return err
	}
	if decoded == nil {
		*p = Props{Values: make(map[string]string)}
		return nil
	}
	*p = *decoded
	return nil
}
