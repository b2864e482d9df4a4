package store

import (
	"sync/atomic"

	"github.com/xelth-com/examroom/internal/graph"
	wire "github.com/xelth-com/examroom/internal/websocket"
)

// sub is one live subscription. Its bookkeeping is only touched by the
// goroutine that delivers events for the owning store.
type sub struct {
	id      string
	path    graph.Path
	mode    string
	onNode  func(Node)
	onChild func(string, Node)

	active atomic.Bool

	known    map[string]bool // children currently believed to exist
	hasValue bool            // node mode: last delivery was non-nil

	replaying bool
	seen      map[string]bool
	sawNode   bool
}

func newSub(id string, path graph.Path, mode string) *sub {
	s := &sub{id: id, path: path, mode: mode, known: make(map[string]bool)}
	s.active.Store(true)
	return s
}

// matches reports whether a change at changed concerns this subscription
func (s *sub) matches(changed graph.Path) bool {
	if s.mode == wire.ModeNode {
		return changed.Equal(s.path)
	}
	return len(changed) == len(s.path)+1 && changed.HasPrefix(s.path)
}

// beginReplay starts a resynchronisation window
func (s *sub) beginReplay() {
	s.replaying = true
	s.seen = make(map[string]bool)
	s.sawNode = false
}

// deliver records and forwards one event
func (s *sub) deliver(key string, n Node) {
	if s.mode == wire.ModeChildren {
		if s.replaying {
			s.seen[key] = true
		}
		if n == nil {
			if !s.known[key] {
				return
			}
			delete(s.known, key)
		} else {
			s.known[key] = true
		}
		if s.active.Load() {
			s.onChild(key, n)
		}
		return
	}

	if s.replaying {
		s.sawNode = true
	}
	s.hasValue = n != nil
	if s.active.Load() {
		s.onNode(n)
	}
}

// endReplay reports whatever disappeared while the subscription was not being served
func (s *sub) endReplay() {
	if !s.replaying {
		return
	}
	s.replaying = false

	if s.mode == wire.ModeChildren {
		for key := range s.known {
			if !s.seen[key] {
				s.deliver(key, nil)
			}
		}
		s.seen = nil
		return
	}
	if s.hasValue && !s.sawNode {
		s.deliver("", nil)
	}
}

func (s *sub) unsubscribe() {
	s.active.Store(false)
}
