package draft

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tiendc/go-deepcopy"
)

// MaxGrow is how many slots past the end of an array an Index may reach when setting a field
const MaxGrow = 8

// ErrIndexOutOfRange is returned when a path would grow an array by more than MaxGrow slots
var ErrIndexOutOfRange = errors.New("index out of range")

// Document is the editable receipt draft: a nested JSON object whose nodes are
// map[string]any, []any or scalars. Numbers coming from the network are kept as json.Number.
type Document map[string]any

// Decode parses a JSON object into a Document, keeping numbers as json.Number
func Decode(data []byte) (Document, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var doc Document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decoding draft: %w", err)
	}
	return doc, nil
}

// Clone returns a deep copy of the document
func (d Document) Clone() (Document, error) {
	if d == nil {
		return Document{}, nil
	}
	var out Document
	if err := deepcopy.Copy(&out, d); err != nil {
		return nil, fmt.Errorf("cloning draft: %w", err)
	}
	return out, nil
}

// SetField returns a copy of the document with value stored at path.
// Missing intermediate nodes are created as objects for Key segments and arrays for
// Index segments; a node of the wrong kind is replaced. Indexes past the end of an
// array extend it with nil slots, at most MaxGrow of them. The receiver is never modified.
func (d Document) SetField(path Path, value any) (Document, error) {
	if len(path) == 0 {
		return nil, fmt.Errorf("empty path")
	}
	if _, ok := path[0].(Key); !ok {
		return nil, fmt.Errorf("path %q must start with a field name", path.String())
	}

	out, err := d.Clone()
	if err != nil {
		return nil, err
	}

	root, err := assign(map[string]any(out), path, value)
	if err != nil {
		return nil, fmt.Errorf("path %q: %w", path.String(), err)
	}
	return Document(root.(map[string]any)), nil
}

// assign stores value at path below node and returns the (possibly new) node
func assign(node any, path Path, value any) (any, error) {
	if len(path) == 0 {
		return value, nil
	}

	switch seg := path[0].(type) {
	case Key:
		obj, ok := node.(map[string]any)
		if !ok {
			obj = make(map[string]any)
		}
		child, err := assign(obj[string(seg)], path[1:], value)
		if err != nil {
			return nil, err
		}
		obj[string(seg)] = child
		return obj, nil
	case Index:
		arr, _ := node.([]any)
		idx := int(seg)
		if idx >= len(arr)+MaxGrow {
			return nil, fmt.Errorf("%w: %d with %d elements", ErrIndexOutOfRange, idx, len(arr))
		}
		if idx >= len(arr) {
			grown := make([]any, idx+1)
			copy(grown, arr)
			arr = grown
		}
		child, err := assign(arr[idx], path[1:], value)
		if err != nil {
			return nil, err
		}
		arr[idx] = child
		return arr, nil
	default:
		panic(fmt.Sprintf("draft: unknown path segment %T", seg))
	}
}

// Get returns the value at path and whether every segment resolved
func (d Document) Get(path Path) (any, bool) {
	var node any = map[string]any(d)
	for _, s := range path {
		switch seg := s.(type) {
		case Key:
			obj, ok := node.(map[string]any)
			if !ok {
				return nil, false
			}
			v, ok := obj[string(seg)]
			if !ok {
				return nil, false
			}
			node = v
		case Index:
			arr, ok := node.([]any)
			if !ok || int(seg) >= len(arr) {
				return nil, false
			}
			node = arr[int(seg)]
		}
	}
	return node, true
}

// With returns a shallow copy of the document with the given top-level fields replaced
func (d Document) With(fields map[string]any) Document {
	out := make(Document, len(d)+len(fields))
	for k, v := range d {
		out[k] = v
	}
	for k, v := range fields {
		out[k] = v
	}
	return out
}
