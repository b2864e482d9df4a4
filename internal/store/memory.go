package store

import (
	"context"
	"log"
	"sort"
	"strconv"
	"sync"

	"github.com/xelth-com/examroom/internal/graph"
	wire "github.com/xelth-com/examroom/internal/websocket"
)

// MemoryRelay is an in-process relay for tests and single-process use.
// Every MemoryStore connected to it shares one graph. Events are queued and
// delivered one at a time, so a callback that writes never re-enters another.
type MemoryRelay struct {
	mu         sync.Mutex
	graph      *graph.Graph
	clock      *graph.Clock
	stores     map[*MemoryStore]struct{}
	pending    []func()
	delivering bool
	manual     bool
	seq        uint64
}

// NewMemoryRelay creates an empty relay delivering events synchronously
func NewMemoryRelay() *MemoryRelay {
	return &MemoryRelay{
		graph:  graph.New(),
		clock:  graph.NewClock(),
		stores: make(map[*MemoryStore]struct{}),
	}
}

// Graph exposes the shared state
func (r *MemoryRelay) Graph() *graph.Graph {
	return r.graph
}

// SetManual switches to manual delivery: events wait until Step or Drain
func (r *MemoryRelay) SetManual(manual bool) {
	r.mu.Lock()
	r.manual = manual
	r.mu.Unlock()
	if !manual {
		r.Drain()
	}
}

// Pending returns the number of undelivered events
func (r *MemoryRelay) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// Step delivers the next queued event, reporting whether there was one
func (r *MemoryRelay) Step() bool {
	r.mu.Lock()
	if len(r.pending) == 0 {
		r.mu.Unlock()
		return false
	}
	fn := r.pending[0]
	r.pending = r.pending[1:]
	r.mu.Unlock()

	fn()
	return true
}

// Drain delivers queued events until none are left, returning how many ran
func (r *MemoryRelay) Drain() int {
	r.mu.Lock()
	if r.delivering {
		r.mu.Unlock()
		return 0
	}
	r.delivering = true
	r.mu.Unlock()

	n := 0
	for {
		r.mu.Lock()
		if len(r.pending) == 0 {
			r.delivering = false
			r.mu.Unlock()
			return n
		}
		fn := r.pending[0]
		r.pending = r.pending[1:]
		r.mu.Unlock()

		fn()
		n++
	}
}

// Connect attaches a new client store
func (r *MemoryRelay) Connect() *MemoryStore {
	s := &MemoryStore{relay: r, subs: make(map[string]*sub)}
	r.mu.Lock()
	r.stores[s] = struct{}{}
	r.mu.Unlock()
	return s
}

func (r *MemoryRelay) nextID() string {
	r.seq++
	return "m" + strconv.FormatUint(r.seq, 36)
}

// applyLocked merges a put into the graph and queues events for every reachable subscriber
func (r *MemoryRelay) applyLocked(path graph.Path, value any) {
	data, err := encodeValue(value)
	if err != nil {
		log.Printf("⚠️ Store: cannot encode value for %s: %v", path, err)
		return
	}
	ops, err := graph.Expand(path, data)
	if err != nil {
		log.Printf("⚠️ Store: rejected put at %s: %v", path, err)
		return
	}

	state := r.clock.Next()
	for _, op := range ops {
		op.State = state
		for _, change := range r.graph.Apply(op) {
			node := DecodeNode(change.Values())
			for s := range r.stores {
				if s.partitioned || s.closed {
					continue
				}
				for _, sb := range s.subs {
					if !sb.matches(change.Path) {
						continue
					}
					sb, key := sb, change.Path.Key()
					r.pending = append(r.pending, func() { sb.deliver(key, node) })
				}
			}
		}
	}
}

// replayLocked queues the current state for one subscription, closing with an end-of-replay marker
func (r *MemoryRelay) replayLocked(sb *sub) {
	r.pending = append(r.pending, sb.beginReplay)

	if sb.mode == wire.ModeNode {
		if fields := r.graph.Node(sb.path); fields != nil {
			node := DecodeNode(graph.Values(fields))
			r.pending = append(r.pending, func() { sb.deliver(sb.path.Key(), node) })
		}
	} else {
		children := r.graph.Children(sb.path)
		keys := make([]string, 0, len(children))
		for k := range children {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			key, node := k, DecodeNode(graph.Values(children[k]))
			r.pending = append(r.pending, func() { sb.deliver(key, node) })
		}
	}

	r.pending = append(r.pending, sb.endReplay)
}

func (r *MemoryRelay) kick() {
	r.mu.Lock()
	manual := r.manual
	r.mu.Unlock()
	if !manual {
		r.Drain()
	}
}

// MemoryStore is one client's view of a MemoryRelay
type MemoryStore struct {
	relay *MemoryRelay

	// guarded by relay.mu
	subs        map[string]*sub
	partitioned bool
	held        []heldPut
	closed      bool
}

type heldPut struct {
	path  graph.Path
	value any
}

// Get returns a handle to keys below the root
func (s *MemoryStore) Get(keys ...string) *Ref {
	return NewRef(s, keys...)
}

// Put writes through the relay, or holds the write while partitioned
func (s *MemoryStore) Put(path graph.Path, value any) {
	r := s.relay
	r.mu.Lock()
	switch {
	case s.closed:
	case s.partitioned:
		s.held = append(s.held, heldPut{path: path, value: value})
	default:
		r.applyLocked(path, value)
	}
	r.mu.Unlock()
	r.kick()
}

// SubscribeNode subscribes to one node
func (s *MemoryStore) SubscribeNode(path graph.Path, fn func(Node)) Subscription {
	r := s.relay
	r.mu.Lock()
	sb := newSub(r.nextID(), path, wire.ModeNode)
	sb.onNode = fn
	s.addLocked(sb)
	r.mu.Unlock()
	r.kick()
	return memorySubscription{s: s, sub: sb}
}

// SubscribeCollection subscribes to the children of a node
func (s *MemoryStore) SubscribeCollection(path graph.Path, fn func(string, Node)) Subscription {
	r := s.relay
	r.mu.Lock()
	sb := newSub(r.nextID(), path, wire.ModeChildren)
	sb.onChild = fn
	s.addLocked(sb)
	r.mu.Unlock()
	r.kick()
	return memorySubscription{s: s, sub: sb}
}

func (s *MemoryStore) addLocked(sb *sub) {
	if s.closed {
		sb.unsubscribe()
		return
	}
	s.subs[sb.id] = sb
	if !s.partitioned {
		s.relay.replayLocked(sb)
	}
}

type memorySubscription struct {
	s   *MemoryStore
	sub *sub
}

func (m memorySubscription) Unsubscribe() {
	m.sub.unsubscribe()
	m.s.relay.mu.Lock()
	delete(m.s.subs, m.sub.id)
	m.s.relay.mu.Unlock()
}

// Partition cuts this store off: its writes are held and it receives nothing
func (s *MemoryStore) Partition() {
	s.relay.mu.Lock()
	s.partitioned = true
	s.relay.mu.Unlock()
}

// Heal reconnects the store: held writes reach the relay and every
// subscription is replayed, reporting anything removed in the meantime
func (s *MemoryStore) Heal() {
	r := s.relay
	r.mu.Lock()
	if !s.partitioned || s.closed {
		r.mu.Unlock()
		return
	}
	s.partitioned = false
	held := s.held
	s.held = nil
	for _, sb := range s.subs {
		r.replayLocked(sb)
	}
	for _, p := range held {
		r.applyLocked(p.path, p.value)
	}
	r.mu.Unlock()
	r.kick()
}

// Flush delivers pending events unless the relay is in manual mode
func (s *MemoryStore) Flush(context.Context) error {
	s.relay.kick()
	return nil
}

// Close detaches the store from the relay
func (s *MemoryStore) Close() error {
	r := s.relay
	r.mu.Lock()
	defer r.mu.Unlock()
	s.closed = true
	for _, sb := range s.subs {
		sb.unsubscribe()
	}
	s.subs = map[string]*sub{}
	delete(r.stores, s)
	return nil
}
