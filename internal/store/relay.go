package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/xelth-com/examroom/internal/graph"
	wire "github.com/xelth-com/examroom/internal/websocket"
)

// ErrClosed is returned by Flush once the store has been closed
var ErrClosed = errors.New("store closed")

// RelayOptions configures a RelayStore
type RelayOptions struct {
	// Relay websocket URLs, tried in order
	Peers    []string
	Token    string
	ClientID string
	Dialer   *websocket.Dialer
	// Puts buffered while disconnected; the oldest is dropped on overflow
	QueueSize  int
	MinBackoff time.Duration
	MaxBackoff time.Duration
}

// RelayStore replicates through one relay at a time, failing over between peers.
// It keeps no local copy of the graph: after every reconnect the live
// subscriptions are re-sent and the relay replays the current state.
type RelayStore struct {
	opts RelayOptions

	mu      sync.Mutex
	conn    *websocket.Conn
	subs    map[string]*sub
	queue   [][]byte
	flushes map[string]chan struct{}
	seq     uint64
	closed  bool
	ready   chan struct{} // closed while a connection is up

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewRelayStore starts connecting in the background and returns immediately
func NewRelayStore(opts RelayOptions) *RelayStore {
	if opts.Dialer == nil {
		opts.Dialer = &websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.MinBackoff <= 0 {
		opts.MinBackoff = 500 * time.Millisecond
	}
	if opts.MaxBackoff < opts.MinBackoff {
		opts.MaxBackoff = 30 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &RelayStore{
		opts:    opts,
		subs:    make(map[string]*sub),
		flushes: make(map[string]chan struct{}),
		ready:   make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go s.run()
	return s
}

// Get returns a handle to keys below the root
func (s *RelayStore) Get(keys ...string) *Ref {
	return NewRef(s, keys...)
}

// Put sends a write, or queues it while no relay is reachable
func (s *RelayStore) Put(path graph.Path, value any) {
	data, err := encodeValue(value)
	if err != nil {
		log.Printf("⚠️ Store: cannot encode value for %s: %v", path, err)
		return
	}
	frame, err := json.Marshal(wire.Message{Type: wire.TypePut, MsgID: s.nextID("p"), Path: path.String(), Data: data})
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if s.conn != nil && s.writeLocked(frame) == nil {
		return
	}
	s.enqueueLocked(frame)
}

// SubscribeNode subscribes to one node
func (s *RelayStore) SubscribeNode(path graph.Path, fn func(Node)) Subscription {
	sb := newSub(s.nextID("s"), path, wire.ModeNode)
	sb.onNode = fn
	return s.subscribe(sb)
}

// SubscribeCollection subscribes to the children of a node
func (s *RelayStore) SubscribeCollection(path graph.Path, fn func(string, Node)) Subscription {
	sb := newSub(s.nextID("s"), path, wire.ModeChildren)
	sb.onChild = fn
	return s.subscribe(sb)
}

func (s *RelayStore) subscribe(sb *sub) Subscription {
	sb.beginReplay()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		sb.unsubscribe()
		return relaySubscription{s: s, sub: sb}
	}
	s.subs[sb.id] = sb
	if s.conn != nil {
		s.writeSubLocked(sb)
	}
	return relaySubscription{s: s, sub: sb}
}

type relaySubscription struct {
	s   *RelayStore
	sub *sub
}

func (r relaySubscription) Unsubscribe() {
	r.sub.unsubscribe()

	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.subs[r.sub.id]; !ok {
		return
	}
	delete(r.s.subs, r.sub.id)
	if r.s.conn != nil {
		frame, _ := json.Marshal(wire.Message{Type: wire.TypeUnsub, SubID: r.sub.id})
		r.s.writeLocked(frame)
	}
}

// Flush waits until queued puts have been sent and the relay has processed them
func (s *RelayStore) Flush(ctx context.Context) error {
	for {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return ErrClosed
		}
		ready := s.ready
		s.mu.Unlock()

		select {
		case <-ready:
		case <-ctx.Done():
			return ctx.Err()
		}

		id := s.nextID("f")
		ack := make(chan struct{})
		frame, _ := json.Marshal(wire.Message{Type: wire.TypeHello, MsgID: id, ClientID: s.opts.ClientID})

		s.mu.Lock()
		if s.conn == nil || len(s.queue) > 0 || s.writeLocked(frame) != nil {
			s.mu.Unlock()
			// connection is being torn down; wait for the next one
			if !s.sleep(20 * time.Millisecond) {
				return ErrClosed
			}
			continue
		}
		s.flushes[id] = ack
		s.mu.Unlock()

		select {
		case <-ack:
			return nil
		case <-ctx.Done():
			s.mu.Lock()
			delete(s.flushes, id)
			s.mu.Unlock()
			return ctx.Err()
		case <-s.done:
			return ErrClosed
		}
	}
}

// Connected reports whether a relay connection is currently up
func (s *RelayStore) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

// Close stops reconnecting and drops every subscription
func (s *RelayStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	for _, sb := range s.subs {
		sb.unsubscribe()
	}
	conn := s.conn
	s.mu.Unlock()

	s.cancel()
	if conn != nil {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		conn.Close()
	}
	<-s.done
	return nil
}

func (s *RelayStore) nextID(prefix string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	return prefix + strconv.FormatUint(s.seq, 36)
}

func (s *RelayStore) run() {
	defer close(s.done)

	if len(s.opts.Peers) == 0 {
		log.Println("⚠️ Store: no relay peers configured")
		return
	}

	backoff := s.opts.MinBackoff
	peer := 0
	failures := 0

	for s.ctx.Err() == nil {
		url := s.opts.Peers[peer%len(s.opts.Peers)]
		conn, err := s.dial(url)
		if err != nil {
			log.Printf("⚠️ Store: relay %s unreachable: %v", url, err)
			peer++
			failures++
			// Back off once every peer has failed in a row
			if failures%len(s.opts.Peers) == 0 {
				if !s.sleep(backoff) {
					return
				}
				backoff *= 2
				if backoff > s.opts.MaxBackoff {
					backoff = s.opts.MaxBackoff
				}
			}
			continue
		}

		log.Printf("✅ Store: connected to relay %s", url)
		backoff = s.opts.MinBackoff
		failures = 0
		if !s.attach(conn) {
			conn.Close()
			return
		}
		s.readLoop(conn)
		s.detach(conn)

		if s.ctx.Err() == nil {
			log.Printf("📴 Store: lost relay %s, reconnecting", url)
			peer++
		}
	}
}

func (s *RelayStore) dial(url string) (*websocket.Conn, error) {
	header := http.Header{}
	if s.opts.Token != "" {
		header.Set("Authorization", "Bearer "+s.opts.Token)
	}
	ctx, cancel := context.WithTimeout(s.ctx, s.opts.Dialer.HandshakeTimeout+time.Second)
	defer cancel()

	conn, resp, err := s.opts.Dialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("%w (status %d)", err, resp.StatusCode)
		}
		return nil, err
	}
	return conn, nil
}

// attach makes conn current: greets the relay, re-sends subscriptions and drains the queue
func (s *RelayStore) attach(conn *websocket.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conn = conn

	hello, _ := json.Marshal(wire.Message{Type: wire.TypeHello, MsgID: "hello", ClientID: s.opts.ClientID})
	if s.writeLocked(hello) != nil {
		return true
	}
	for _, sb := range s.subs {
		sb.beginReplay()
		if s.writeSubLocked(sb) != nil {
			return true
		}
	}
	for len(s.queue) > 0 {
		if s.writeLocked(s.queue[0]) != nil {
			return true
		}
		s.queue = s.queue[1:]
	}
	close(s.ready)
	return true
}

func (s *RelayStore) detach(conn *websocket.Conn) {
	conn.Close()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == conn {
		s.conn = nil
	}
	select {
	case <-s.ready:
		s.ready = make(chan struct{})
	default:
	}
}

func (s *RelayStore) readLoop(conn *websocket.Conn) {
	conn.SetReadLimit(wire.MaxMessageSize)
	conn.SetReadDeadline(time.Now().Add(wire.PongWait))
	conn.SetPingHandler(func(appData string) error {
		conn.SetReadDeadline(time.Now().Add(wire.PongWait))
		err := conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(wire.WriteWait))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) && s.ctx.Err() == nil {
				log.Printf("Store: read error: %v", err)
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(wire.PongWait))

		var msg wire.Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}
		s.dispatch(msg)
	}
}

// dispatch runs callbacks on the read goroutine, one event at a time
func (s *RelayStore) dispatch(msg wire.Message) {
	switch msg.Type {
	case wire.TypeEvent:
		s.mu.Lock()
		sb := s.subs[msg.SubID]
		s.mu.Unlock()
		if sb == nil {
			return
		}
		sb.deliver(msg.Key, decodeData(msg.Data))

	case wire.TypeAck:
		s.mu.Lock()
		sb := s.subs[msg.SubID]
		ack, flushing := s.flushes[msg.MsgID]
		if flushing {
			delete(s.flushes, msg.MsgID)
		}
		s.mu.Unlock()

		if flushing {
			close(ack)
		}
		if msg.SubID != "" && sb != nil {
			sb.endReplay()
		}

	case wire.TypeError:
		log.Printf("⚠️ Store: relay rejected %s: %s", msg.MsgID, msg.Error)
	}
}

func (s *RelayStore) writeSubLocked(sb *sub) error {
	frame, _ := json.Marshal(wire.Message{Type: wire.TypeSub, SubID: sb.id, Mode: sb.mode, Path: sb.path.String()})
	return s.writeLocked(frame)
}

// writeLocked sends one frame on the current connection; a failed write
// closes the connection so the read loop reconnects
func (s *RelayStore) writeLocked(frame []byte) error {
	conn := s.conn
	if conn == nil {
		return errors.New("not connected")
	}
	conn.SetWriteDeadline(time.Now().Add(wire.WriteWait))
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		log.Printf("⚠️ Store: write failed: %v", err)
		conn.Close()
		s.conn = nil
		return err
	}
	return nil
}

func (s *RelayStore) enqueueLocked(frame []byte) {
	if len(s.queue) >= s.opts.QueueSize {
		log.Printf("⚠️ Store: offline queue full, dropping oldest write")
		s.queue = s.queue[1:]
	}
	s.queue = append(s.queue, frame)
}

func (s *RelayStore) sleep(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-s.ctx.Done():
		return false
	}
}
