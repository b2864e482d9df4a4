package approval

import (
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xelth-com/examroom/internal/graph"
	"github.com/xelth-com/examroom/internal/store"
	"github.com/xelth-com/examroom/internal/utils"
)

var (
	ErrEmptyName = errors.New("name is required")
	ErrEmptyID   = errors.New("request id is required")
	ErrClosed    = errors.New("registry is closed")
)

// collectionKey is the child of the room node holding the requests
const collectionKey = "approvals"

// Unsubscribe detaches an observer. After it returns the observer callback is not invoked again.
type Unsubscribe func()

// Option customises a Registry
type Option func(*Registry)

// WithClock sets the time source used for request timestamps
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// WithIDGenerator sets the request id generator
func WithIDGenerator(newID func() string) Option {
	return func(r *Registry) { r.newID = newID }
}

// Registry is the access-request domain over a replicated store.
// Every observer is tied to the generation the registry had when it was
// attached; Close bumps the generation so events that arrive afterwards
// are dropped even if the transport keeps delivering them.
type Registry struct {
	store store.Store
	room  string
	now   func() time.Time
	newID func() string

	mu   sync.Mutex
	open bool
	gen  uint64
	subs map[*observer]store.Subscription
}

type observer struct {
	gen  uint64
	live atomic.Bool
}

// NewRegistry creates a closed registry for room
func NewRegistry(s store.Store, room string, opts ...Option) *Registry {
	r := &Registry{
		store: s,
		room:  room,
		now:   time.Now,
		newID: utils.NewID,
		subs:  make(map[*observer]store.Subscription),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Open starts a new registry lifetime
func (r *Registry) Open() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.open {
		return
	}
	r.open = true
	r.gen++
}

// Close detaches every observer and turns further operations into ErrClosed
func (r *Registry) Close() {
	r.mu.Lock()
	if !r.open {
		r.mu.Unlock()
		return
	}
	r.open = false
	r.gen++
	subs := r.subs
	r.subs = make(map[*observer]store.Subscription)
	r.mu.Unlock()

	for obs, sub := range subs {
		obs.live.Store(false)
		sub.Unsubscribe()
	}
}

// Collection is the path of the request collection
func (r *Registry) Collection() graph.Path {
	return graph.Path{r.room, collectionKey}
}

// RequestAccess records a pending request for name and returns its id without
// waiting for the relay to accept the write
func (r *Registry) RequestAccess(name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", ErrEmptyName
	}
	if !r.isOpen() {
		return "", ErrClosed
	}

	req := AccessRequest{
		ID:        r.newID(),
		Name:      name,
		Status:    StatusPending,
		Timestamp: r.now().UnixMilli(),
	}
	r.store.Put(r.Collection().Child(req.ID), req.fields())
	return req.ID, nil
}

// Approve marks a request approved. Repeating it is harmless.
func (r *Registry) Approve(id string) error {
	return r.setStatus(id, StatusApproved)
}

// Reject marks a request rejected
func (r *Registry) Reject(id string) error {
	return r.setStatus(id, StatusRejected)
}

func (r *Registry) setStatus(id string, status Status) error {
	if id == "" {
		return ErrEmptyID
	}
	if !r.isOpen() {
		return ErrClosed
	}
	r.store.Put(r.Collection().Child(id).Child("status"), string(status))
	return nil
}

// ClearAll removes every request in the room. It is global and irreversible.
func (r *Registry) ClearAll() error {
	if !r.isOpen() {
		return ErrClosed
	}
	r.store.Put(r.Collection(), nil)
	return nil
}

// ObserveAll reports the full set of well-formed requests, newest first,
// every time any of them changes
func (r *Registry) ObserveAll(fn func([]AccessRequest)) Unsubscribe {
	var (
		mu    sync.Mutex
		cache = make(map[string]AccessRequest)
	)

	return r.attach(func(obs *observer) store.Subscription {
		return r.store.SubscribeCollection(r.Collection(), func(key string, n store.Node) {
			if !r.alive(obs) {
				return
			}

			mu.Lock()
			if req, err := Decode(key, n); err == nil {
				cache[key] = req
			} else {
				delete(cache, key)
			}
			list := make([]AccessRequest, 0, len(cache))
			for _, req := range cache {
				list = append(list, req)
			}
			mu.Unlock()

			fn(Sorted(list))
		})
	})
}

// ObserveOne reports the status of one request whenever it changes to a new non-empty value
func (r *Registry) ObserveOne(id string, fn func(Status)) Unsubscribe {
	var (
		mu   sync.Mutex
		last Status
	)

	return r.attach(func(obs *observer) store.Subscription {
		return r.store.SubscribeNode(r.Collection().Child(id), func(n store.Node) {
			if !r.alive(obs) {
				return
			}
			if n == nil {
				mu.Lock()
				last = ""
				mu.Unlock()
				return
			}
			s, _ := n.String("status")
			status := Status(s)
			if status == "" {
				return
			}

			mu.Lock()
			changed := status != last
			last = status
			mu.Unlock()

			if changed {
				fn(status)
			}
		})
	})
}

// attach registers an observer for the current generation; on a closed registry it is inert
func (r *Registry) attach(subscribe func(*observer) store.Subscription) Unsubscribe {
	r.mu.Lock()
	if !r.open {
		r.mu.Unlock()
		return func() {}
	}
	obs := &observer{gen: r.gen}
	obs.live.Store(true)
	r.mu.Unlock()

	sub := subscribe(obs)

	r.mu.Lock()
	if r.gen != obs.gen {
		// closed while subscribing
		r.mu.Unlock()
		obs.live.Store(false)
		sub.Unsubscribe()
		return func() {}
	}
	r.subs[obs] = sub
	r.mu.Unlock()

	return func() {
		obs.live.Store(false)
		r.mu.Lock()
		s, ok := r.subs[obs]
		delete(r.subs, obs)
		r.mu.Unlock()
		if ok {
			s.Unsubscribe()
		}
	}
}

func (r *Registry) alive(obs *observer) bool {
	if !obs.live.Load() {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.open && r.gen == obs.gen
}

func (r *Registry) isOpen() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.open
}
