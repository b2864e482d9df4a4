package graph

import (
	"bytes"
	"encoding/json"
	"sort"
	"strings"
	"sync"
)

// Field is a single value together with the state it was written at
type Field struct {
	Value json.RawMessage `json:"v"`
	State int64           `json:"s"`
}

// Change describes a node that was modified by Apply.
// Fields is nil when the node no longer exists (tombstoned or emptied).
type Change struct {
	Path   Path
	Fields map[string]Field
}

// Removed reports whether the change deleted the node
func (c Change) Removed() bool {
	return c.Fields == nil
}

// Values strips states from the fields
func (c Change) Values() map[string]json.RawMessage {
	return Values(c.Fields)
}

// Values strips states from a field map; nil stays nil
func Values(fields map[string]Field) map[string]json.RawMessage {
	if fields == nil {
		return nil
	}
	out := make(map[string]json.RawMessage, len(fields))
	for k, f := range fields {
		out[k] = f.Value
	}
	return out
}

// Graph is the authoritative, in-memory state held by a relay.
// Writes merge per field: the higher state wins, equal states fall back to
// the lexically greater encoded value so every replica picks the same winner.
type Graph struct {
	mu      sync.RWMutex
	nodes   map[string]map[string]Field
	cleared map[string]int64
}

// New creates an empty graph
func New() *Graph {
	return &Graph{
		nodes:   make(map[string]map[string]Field),
		cleared: make(map[string]int64),
	}
}

// Apply merges one op and returns the nodes it changed
func (g *Graph) Apply(op Op) []Change {
	g.mu.Lock()
	defer g.mu.Unlock()

	if op.Tombstone {
		return g.tombstone(op.Path, op.State)
	}
	return g.merge(op.Path, op.Fields, op.State)
}

func (g *Graph) merge(path Path, values map[string]json.RawMessage, state int64) []Change {
	if len(values) == 0 {
		return nil
	}
	// A write that predates a reset of this node or an ancestor is dropped.
	if state <= g.clearedAt(path) {
		return nil
	}

	key := path.String()
	node := g.nodes[key]
	changed := false

	for name, value := range values {
		current, ok := node[name]
		if ok && !wins(state, value, current) {
			continue
		}
		if node == nil {
			node = make(map[string]Field)
			g.nodes[key] = node
		}
		node[name] = Field{Value: cloneRaw(value), State: state}
		changed = true
	}

	if !changed {
		return nil
	}
	return []Change{{Path: path, Fields: copyFields(node)}}
}

func (g *Graph) tombstone(path Path, state int64) []Change {
	key := path.String()
	if state > g.cleared[key] {
		g.cleared[key] = state
	}

	var changes []Change
	prefix := key + "/"
	for nodeKey, node := range g.nodes {
		if nodeKey != key && !strings.HasPrefix(nodeKey, prefix) {
			continue
		}
		dropped := false
		for name, f := range node {
			if f.State < state {
				delete(node, name)
				dropped = true
			}
		}
		if !dropped {
			continue
		}
		if len(node) == 0 {
			delete(g.nodes, nodeKey)
			changes = append(changes, Change{Path: ParsePath(nodeKey)})
		} else {
			changes = append(changes, Change{Path: ParsePath(nodeKey), Fields: copyFields(node)})
		}
	}

	// Subscribers of the cleared node itself always hear about the reset.
	found := false
	for _, c := range changes {
		if c.Path.Equal(path) {
			found = true
			break
		}
	}
	if !found {
		if node, ok := g.nodes[key]; ok {
			changes = append(changes, Change{Path: path, Fields: copyFields(node)})
		} else {
			changes = append(changes, Change{Path: path})
		}
	}

	sort.Slice(changes, func(i, j int) bool {
		return changes[i].Path.String() < changes[j].Path.String()
	})
	return changes
}

// clearedAt returns the newest tombstone state covering path
func (g *Graph) clearedAt(path Path) int64 {
	var max int64
	for i := 1; i <= len(path); i++ {
		if s := g.cleared[path[:i].String()]; s > max {
			max = s
		}
	}
	return max
}

// Node returns a copy of the fields at path, nil if the node does not exist
func (g *Graph) Node(path Path) map[string]Field {
	g.mu.RLock()
	defer g.mu.RUnlock()

	node, ok := g.nodes[path.String()]
	if !ok {
		return nil
	}
	return copyFields(node)
}

// Children returns the direct children of path keyed by child key.
// A child that only exists through deeper descendants maps to an empty field set.
func (g *Graph) Children(path Path) map[string]map[string]Field {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make(map[string]map[string]Field)
	depth := len(path)
	for nodeKey, node := range g.nodes {
		p := ParsePath(nodeKey)
		if len(p) <= depth || !p.HasPrefix(path) {
			continue
		}
		child := p[depth]
		if len(p) == depth+1 {
			out[child] = copyFields(node)
		} else if _, ok := out[child]; !ok {
			out[child] = map[string]Field{}
		}
	}
	return out
}

// Snapshot returns every node keyed by its path string
func (g *Graph) Snapshot() map[string]map[string]Field {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make(map[string]map[string]Field, len(g.nodes))
	for k, node := range g.nodes {
		out[k] = copyFields(node)
	}
	return out
}

// Tombstones returns the clear-state recorded per node path
func (g *Graph) Tombstones() map[string]int64 {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make(map[string]int64, len(g.cleared))
	for k, s := range g.cleared {
		out[k] = s
	}
	return out
}

// Restore loads persisted state without producing changes
func (g *Graph) Restore(path Path, name string, f Field) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if f.State <= g.clearedAt(path) {
		return
	}
	key := path.String()
	node := g.nodes[key]
	if node == nil {
		node = make(map[string]Field)
		g.nodes[key] = node
	}
	if current, ok := node[name]; ok && !wins(f.State, f.Value, current) {
		return
	}
	node[name] = Field{Value: cloneRaw(f.Value), State: f.State}
}

// RestoreTombstone loads a persisted clear-state
func (g *Graph) RestoreTombstone(path Path, state int64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	key := path.String()
	if state > g.cleared[key] {
		g.cleared[key] = state
	}
}

// Len returns the number of live nodes
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// wins decides whether an incoming write replaces the current field
func wins(state int64, value json.RawMessage, current Field) bool {
	if state != current.State {
		return state > current.State
	}
	return bytes.Compare(value, current.Value) > 0
}

func copyFields(node map[string]Field) map[string]Field {
	out := make(map[string]Field, len(node))
	for k, f := range node {
		out[k] = f
	}
	return out
}

func cloneRaw(v json.RawMessage) json.RawMessage {
	if v == nil {
		return nil
	}
	out := make(json.RawMessage, len(v))
	copy(out, v)
	return out
}
