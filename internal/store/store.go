// Package store is the client side of the replicated graph: a path-addressed
// document store whose writes propagate to every connected client through a relay.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"strconv"

	"github.com/xelth-com/examroom/internal/graph"
)

// Store is the replication contract the exam domain is written against.
// Writes are fire-and-forget and no method reports transport failures:
// when the relay is unreachable, callbacks simply stop firing.
type Store interface {
	// Put merges value into the node at path. A map writes fields (nested maps
	// become child nodes), a scalar writes the last segment as a field of the
	// parent, nil clears the node and everything below it.
	Put(path graph.Path, value any)
	Get(keys ...string) *Ref
	// SubscribeNode replays the current node and then reports every change to it.
	// A cleared node is delivered as nil.
	SubscribeNode(path graph.Path, fn func(Node)) Subscription
	// SubscribeCollection reports each direct child of path, existing and future,
	// and again whenever that child changes. A removed child is delivered as nil.
	SubscribeCollection(path graph.Path, fn func(key string, n Node)) Subscription
	// Flush blocks until writes issued so far have reached the relay.
	Flush(ctx context.Context) error
	Close() error
}

// Subscription detaches a callback. Events already in flight may still arrive.
type Subscription interface {
	Unsubscribe()
}

// Ref is a chained handle to a path
type Ref struct {
	store Store
	path  graph.Path
}

// NewRef returns a handle to keys below the root of s
func NewRef(s Store, keys ...string) *Ref {
	return &Ref{store: s, path: graph.Path(append([]string(nil), keys...))}
}

// Get descends to a child path
func (r *Ref) Get(keys ...string) *Ref {
	p := r.path
	for _, k := range keys {
		p = p.Child(k)
	}
	return &Ref{store: r.store, path: p}
}

// Path returns the referenced path
func (r *Ref) Path() graph.Path {
	return r.path
}

// Put writes value at the referenced path
func (r *Ref) Put(value any) {
	r.store.Put(r.path, value)
}

// On subscribes to the referenced node
func (r *Ref) On(fn func(Node)) Subscription {
	return r.store.SubscribeNode(r.path, fn)
}

// Map subscribes to every child of the referenced node
func (r *Ref) Map(fn func(key string, n Node)) Subscription {
	return r.store.SubscribeCollection(r.path, fn)
}

// Node is the decoded content of a graph node. Numbers decode as json.Number.
type Node map[string]any

// DecodeNode converts raw field values into a Node; nil stays nil
func DecodeNode(values map[string]json.RawMessage) Node {
	if values == nil {
		return nil
	}
	n := make(Node, len(values))
	for k, raw := range values {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		var v any
		if err := dec.Decode(&v); err != nil {
			continue
		}
		n[k] = v
	}
	return n
}

// decodeData turns an EVENT payload into a Node
func decodeData(data json.RawMessage) Node {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	var values map[string]json.RawMessage
	if err := json.Unmarshal(data, &values); err != nil {
		return nil
	}
	if values == nil {
		return nil
	}
	return DecodeNode(values)
}

// String returns a string field
func (n Node) String(key string) (string, bool) {
	s, ok := n[key].(string)
	return s, ok
}

// Int64 returns an integral numeric field
func (n Node) Int64(key string) (int64, bool) {
	switch v := n[key].(type) {
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i, true
		}
		if f, err := v.Float64(); err == nil {
			return int64(f), true
		}
	case float64:
		return int64(v), true
	case int:
		return int64(v), true
	case int64:
		return v, true
	case string:
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i, true
		}
	}
	return 0, false
}

func encodeValue(value any) (json.RawMessage, error) {
	if value == nil {
		return json.RawMessage("null"), nil
	}
	if raw, ok := value.(json.RawMessage); ok {
		return raw, nil
	}
	return json.Marshal(value)
}
