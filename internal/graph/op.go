package graph

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrInvalidValue is returned when a put carries something the graph cannot hold
var ErrInvalidValue = errors.New("invalid graph value")

// Op is one replicated write against a single node.
// Either Fields is merged into the node, or Tombstone clears the node and
// everything below it.
type Op struct {
	Path      Path                       `json:"path"`
	Fields    map[string]json.RawMessage `json:"fields,omitempty"`
	Tombstone bool                       `json:"tombstone,omitempty"`
	State     int64                      `json:"state"`
	Origin    string                     `json:"origin,omitempty"`
}

// Expand turns a put of data at path into node ops.
//
//	null            -> tombstone at path
//	object          -> fields merged into path; nested objects become child nodes
//	scalar          -> field Key() of the parent node
//
// Arrays are rejected; the graph only stores scalars and nodes.
func Expand(path Path, data json.RawMessage) ([]Op, error) {
	if err := path.Validate(); err != nil {
		return nil, err
	}

	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return []Op{{Path: path, Tombstone: true}}, nil
	}

	switch data[0] {
	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(data, &obj); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidValue, err)
		}
		return expandObject(path, obj)
	case '[':
		return nil, fmt.Errorf("%w: arrays are not supported at %s", ErrInvalidValue, path)
	default:
		if !json.Valid(data) {
			return nil, fmt.Errorf("%w: malformed scalar at %s", ErrInvalidValue, path)
		}
		if len(path) < 2 {
			return nil, fmt.Errorf("%w: scalar put needs a parent node (%s)", ErrInvalidValue, path)
		}
		return []Op{{
			Path:   path.Parent(),
			Fields: map[string]json.RawMessage{path.Key(): data},
		}}, nil
	}
}

func expandObject(path Path, obj map[string]json.RawMessage) ([]Op, error) {
	ops := make([]Op, 0, 1)
	fields := make(map[string]json.RawMessage, len(obj))

	for key, raw := range obj {
		if err := path.Child(key).Validate(); err != nil {
			return nil, err
		}
		raw = bytes.TrimSpace(raw)
		switch {
		case len(raw) > 0 && raw[0] == '{':
			child, err := Expand(path.Child(key), raw)
			if err != nil {
				return nil, err
			}
			ops = append(ops, child...)
		case len(raw) > 0 && raw[0] == '[':
			return nil, fmt.Errorf("%w: arrays are not supported at %s", ErrInvalidValue, path.Child(key))
		default:
			fields[key] = raw
		}
	}

	if len(fields) > 0 {
		ops = append([]Op{{Path: path, Fields: fields}}, ops...)
	}
	return ops, nil
}
