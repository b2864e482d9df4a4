package websocket

import (
	"context"
	"encoding/json"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/xelth-com/examroom/internal/graph"
)

// Journal persists applied ops so a restarted relay can replay its graph
type Journal interface {
	Record(ctx context.Context, op graph.Op, changes []graph.Change) error
}

// Publisher forwards locally accepted ops to peer relays
type Publisher interface {
	Publish(ctx context.Context, op graph.Op) error
}

// HubOptions configures a Hub. Graph and Clock default to fresh instances.
type HubOptions struct {
	InstanceID string
	Graph      *graph.Graph
	Clock      *graph.Clock
	Journal    Journal
	Publisher  Publisher
}

type inbound struct {
	client *Client
	msg    Message
	// set when the frame could not be used; the client gets an ERROR back
	invalid string
}

// PublishTimeout bounds one publish to peer relays
const PublishTimeout = 5 * time.Second

// publishQueue is how many accepted ops may wait for the peer publisher
const publishQueue = 1024

// Hub maintains the set of active clients, owns the graph and fans out changes.
// All graph writes and subscription changes run on the Run goroutine, which gives
// every client the same order of writes for this relay.
type Hub struct {
	instanceID string
	graph      *graph.Graph
	clock      *graph.Clock
	journal    Journal
	publisher  Publisher

	// Registered clients map: ClientID -> Client
	clients map[string]*Client

	register   chan *Client
	unregister chan *Client
	inbound    chan inbound
	remote     chan graph.Op
	outgoing   chan graph.Op

	// Mutex for thread-safe access to clients map
	mu   sync.RWMutex
	done chan struct{}
}

// NewHub creates a new Hub instance
func NewHub(opts HubOptions) *Hub {
	g := opts.Graph
	if g == nil {
		g = graph.New()
	}
	clock := opts.Clock
	if clock == nil {
		clock = graph.NewClock()
	}
	return &Hub{
		instanceID: opts.InstanceID,
		graph:      g,
		clock:      clock,
		journal:    opts.Journal,
		publisher:  opts.Publisher,
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		inbound:    make(chan inbound, 256),
		remote:     make(chan graph.Op, 256),
		outgoing:   make(chan graph.Op, publishQueue),
		done:       make(chan struct{}),
	}
}

// Graph exposes the relay state (read-only use: snapshots, status)
func (h *Hub) Graph() *graph.Graph {
	return h.graph
}

// InstanceID identifies this relay in published ops
func (h *Hub) InstanceID() string {
	return h.instanceID
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Done is closed once Run has returned
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

// ApplyRemote queues an op received from a peer relay
func (h *Hub) ApplyRemote(op graph.Op) {
	select {
	case h.remote <- op:
	case <-h.done:
	}
}

// Run starts the hub's main loop
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	published := make(chan struct{})
	go h.publishLoop(ctx, published)
	defer func() { <-published }()

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for id, client := range h.clients {
				client.send.close()
				delete(h.clients, id)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			// If a client id connects again, close old connection
			if old, ok := h.clients[client.ClientID]; ok {
				old.send.close()
				delete(h.clients, client.ClientID)
			}
			h.clients[client.ClientID] = client
			h.mu.Unlock()
			log.Printf("🔌 Client connected: %s", client.ClientID)

		case client := <-h.unregister:
			h.drop(client)

		case in := <-h.inbound:
			h.handle(ctx, in)

		case op := <-h.remote:
			h.clock.Observe(op.State)
			h.commit(ctx, op, false)
		}
	}
}

func (h *Hub) drop(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if current, ok := h.clients[client.ClientID]; ok && current == client {
		delete(h.clients, client.ClientID)
		client.send.close()
		log.Printf("📴 Client disconnected: %s", client.ClientID)
	}
}

func (h *Hub) handle(ctx context.Context, in inbound) {
	msg := in.msg
	if in.invalid != "" {
		h.reply(in.client, Message{Type: TypeError, MsgID: msg.MsgID, Error: in.invalid})
		return
	}
	switch msg.Type {
	case TypeHello:
		if msg.ClientID != "" {
			log.Printf("👋 %s identified as %s", in.client.ClientID, msg.ClientID)
		}
		h.reply(in.client, Message{Type: TypeAck, MsgID: msg.MsgID, Status: "connected"})

	case TypePut:
		path := graph.ParsePath(msg.Path)
		ops, err := graph.Expand(path, msg.Data)
		if err != nil {
			h.reply(in.client, Message{Type: TypeError, MsgID: msg.MsgID, Error: err.Error()})
			return
		}
		state := h.clock.Next()
		for _, op := range ops {
			op.State = state
			op.Origin = h.instanceID
			h.commit(ctx, op, true)
		}

	case TypeSub:
		path := graph.ParsePath(msg.Path)
		if err := path.Validate(); err != nil || msg.SubID == "" {
			h.reply(in.client, Message{Type: TypeError, MsgID: msg.MsgID, Error: "invalid subscription"})
			return
		}
		mode := msg.Mode
		if mode != ModeChildren {
			mode = ModeNode
		}
		in.client.subs[msg.SubID] = subscription{path: path, mode: mode}
		h.replay(in.client, msg.SubID, path, mode)
		// Marks the end of the replay so a resubscribing client can spot removals it missed
		h.reply(in.client, Message{Type: TypeAck, MsgID: msg.MsgID, SubID: msg.SubID, Status: "subscribed"})

	case TypeUnsub:
		delete(in.client.subs, msg.SubID)
	}
}

// commit applies an op, persists it and notifies subscribers
func (h *Hub) commit(ctx context.Context, op graph.Op, publish bool) {
	changes := h.graph.Apply(op)

	if h.journal != nil && (len(changes) > 0 || op.Tombstone) {
		if err := h.journal.Record(ctx, op, changes); err != nil {
			log.Printf("⚠️ Journal write failed for %s: %v", op.Path, err)
		}
	}
	if publish && h.publisher != nil {
		select {
		case h.outgoing <- op:
		default:
			log.Printf("⚠️ Peer publish queue full, op for %s not forwarded", op.Path)
		}
	}

	h.fanout(changes)
}

// publishLoop forwards accepted ops to peer relays off the hub goroutine,
// so a slow or unreachable Redis never holds up local clients
func (h *Hub) publishLoop(ctx context.Context, done chan<- struct{}) {
	defer close(done)
	if h.publisher == nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case op := <-h.outgoing:
			pctx, cancel := context.WithTimeout(ctx, PublishTimeout)
			if err := h.publisher.Publish(pctx, op); err != nil {
				log.Printf("⚠️ Peer publish failed for %s: %v", op.Path, err)
			}
			cancel()
		}
	}
}

func (h *Hub) fanout(changes []graph.Change) {
	if len(changes) == 0 {
		return
	}

	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, change := range changes {
		data := encodeFields(change.Values())
		for _, client := range clients {
			for subID, sub := range client.subs {
				if !sub.matches(change.Path) {
					continue
				}
				h.reply(client, Message{
					Type:  TypeEvent,
					SubID: subID,
					Path:  change.Path.String(),
					Key:   change.Path.Key(),
					Data:  data,
				})
			}
		}
	}
}

// replay sends the current state to a fresh subscription
func (h *Hub) replay(client *Client, subID string, path graph.Path, mode string) {
	if mode == ModeNode {
		if fields := h.graph.Node(path); fields != nil {
			h.reply(client, Message{Type: TypeEvent, SubID: subID, Path: path.String(), Key: path.Key(), Data: encodeFields(graph.Values(fields))})
		}
		return
	}

	children := h.graph.Children(path)
	keys := make([]string, 0, len(children))
	for k := range children {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		child := path.Child(k)
		h.reply(client, Message{Type: TypeEvent, SubID: subID, Path: child.String(), Key: k, Data: encodeFields(graph.Values(children[k]))})
	}
}

// reply queues a message for one client; a client MaxPending frames behind is dropped
func (h *Hub) reply(client *Client, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("Error marshaling message: %v", err)
		return
	}

	h.mu.RLock()
	current, ok := h.clients[client.ClientID]
	h.mu.RUnlock()
	if !ok || current != client {
		return
	}

	if !client.send.push(data) {
		log.Printf("⚠️ Dropping slow client %s (%d frames pending)", client.ClientID, client.send.len())
		h.drop(client)
	}
}

func encodeFields(values map[string]json.RawMessage) json.RawMessage {
	if values == nil {
		return null
	}
	data, err := json.Marshal(values)
	if err != nil {
		return null
	}
	return data
}

type subscription struct {
	path graph.Path
	mode string
}

func (s subscription) matches(changed graph.Path) bool {
	if s.mode == ModeNode {
		return changed.Equal(s.path)
	}
	return len(changed) == len(s.path)+1 && changed.HasPrefix(s.path)
}
