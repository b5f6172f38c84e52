package graph

import "reflect"

// Position is a canvas coordinate. It has no meaning during execution.
type Position struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Data is a node's open field bag. Its schema depends on the node kind.
type Data map[string]any

// String returns the string value for field, or "" if it is missing or
// not a string.
func (d Data) String(field string) string {
	if s, ok := d[field].(string); ok {
		return s
	}
	return ""
}

// Int returns the integer value for field, or 0.
// JSON numbers decode as float64 and are accepted when whole.
func (d Data) Int(field string) int {
	switch v := d[field].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		if v == float64(int(v)) {
			return int(v)
		}
	}
	return 0
}

// Clone returns a deep copy of d.
func (d Data) Clone() Data {
	if d == nil {
		return nil
	}
	out := make(Data, len(d))
	for k, v := range d {
		out[k] = cloneValue(v)
	}
	return out
}

// with returns a copy of d with field set to value.
// Nested values of untouched fields are shared; Data values are never
// mutated in place, so sharing them between node versions is safe.
func (d Data) with(field string, value any) Data {
	out := make(Data, len(d)+1)
	for k, v := range d {
		out[k] = v
	}
	out[field] = value
	return out
}

// cloneValue deep-copies maps, slices and arrays. The container types
// JSON and YAML decoding produce take a fast path; any other map, slice
// or array is copied by reflection. Pointers and scalars are returned
// as is.
func cloneValue(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case Data:
		return val.Clone()
	case map[string]any:
		return map[string]any(Data(val).Clone())
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	case []string:
		out := make([]string, len(val))
		copy(out, val)
		return out
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map, reflect.Slice, reflect.Array:
		return cloneReflect(rv).Interface()
	}
	return v
}

func cloneReflect(rv reflect.Value) reflect.Value {
	switch rv.Kind() {
	case reflect.Map:
		if rv.IsNil() {
			return rv
		}
		out := reflect.MakeMapWithSize(rv.Type(), rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out.SetMapIndex(iter.Key(), cloneElem(iter.Value()))
		}
		return out
	case reflect.Slice:
		if rv.IsNil() {
			return rv
		}
		out := reflect.MakeSlice(rv.Type(), rv.Len(), rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out.Index(i).Set(cloneElem(rv.Index(i)))
		}
		return out
	case reflect.Array:
		out := reflect.New(rv.Type()).Elem()
		for i := 0; i < rv.Len(); i++ {
			out.Index(i).Set(cloneElem(rv.Index(i)))
		}
		return out
	}
	return rv
}

// cloneElem copies one element, descending into interface values.
func cloneElem(v reflect.Value) reflect.Value {
	if v.Kind() != reflect.Interface {
		return cloneReflect(v)
	}
	if v.IsNil() {
		return v
	}
	out := reflect.New(v.Type()).Elem()
	out.Set(reflect.ValueOf(cloneValue(v.Interface())))
	return out
}

// Node is a vertex of the workflow graph.
//
// Nodes held by a Store are treated as immutable: every mutation replaces
// the node with a new value, so pointer equality tells a caller whether
// a node changed.
type Node struct {
	ID       string   `json:"id" yaml:"id"`
	Type     Kind     `json:"type" yaml:"type"`
	Position Position `json:"position" yaml:"position"`
	Data     Data     `json:"data" yaml:"data"`
}

// Clone returns a deep copy of n.
func (n Node) Clone() Node {
	n.Data = n.Data.Clone()
	return n
}

// Edge is a directed connection between two nodes. Handles distinguish
// ports on nodes with more than one.
type Edge struct {
	ID           string `json:"id" yaml:"id"`
	Source       string `json:"source" yaml:"source"`
	Target       string `json:"target" yaml:"target"`
	SourceHandle string `json:"sourceHandle,omitempty" yaml:"sourceHandle,omitempty"`
	TargetHandle string `json:"targetHandle,omitempty" yaml:"targetHandle,omitempty"`
}

// EdgeID derives an edge identifier from its endpoints and handles.
// Duplicate connections share an id.
func EdgeID(source, sourceHandle, target, targetHandle string) string {
	return "reactflow__edge-" + source + sourceHandle + "-" + target + targetHandle
}
