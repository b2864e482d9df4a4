package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xelth-com/examroom/internal/graph"
)

type recordingJournal struct {
	mu  sync.Mutex
	ops []graph.Op
}

func (j *recordingJournal) Record(_ context.Context, op graph.Op, _ []graph.Change) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.ops = append(j.ops, op)
	return nil
}

func (j *recordingJournal) count() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.ops)
}

type recordingPublisher struct {
	mu  sync.Mutex
	ops []graph.Op
}

func (p *recordingPublisher) Publish(_ context.Context, op graph.Op) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ops = append(p.ops, op)
	return nil
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.ops)
}

// stalledPublisher holds every publish until released or cancelled.
type stalledPublisher struct {
	release chan struct{}
	calls   chan graph.Op
}

func (p *stalledPublisher) Publish(ctx context.Context, op graph.Op) error {
	p.calls <- op
	select {
	case <-p.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func startHub(t *testing.T, opts HubOptions) (*Hub, string) {
	t.Helper()
	hub := NewHub(opts)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeWs(hub, w, r, "test")
	}))
	t.Cleanup(func() {
		cancel()
		<-hub.Done()
		srv.Close()
	})
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, msg Message) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(msg))
}

func next(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestHub_HelloIsAcked(t *testing.T) {
	_, url := startHub(t, HubOptions{InstanceID: "relay-a"})
	conn := dial(t, url)

	send(t, conn, Message{Type: TypeHello, MsgID: "m1", ClientID: "candidate"})
	ack := next(t, conn)
	assert.Equal(t, TypeAck, ack.Type)
	assert.Equal(t, "m1", ack.MsgID)
}

func TestHub_ChildrenSubscriptionSeesNewRecordsAndReset(t *testing.T) {
	journal := &recordingJournal{}
	publisher := &recordingPublisher{}
	hub, url := startHub(t, HubOptions{InstanceID: "relay-a", Journal: journal, Publisher: publisher})

	admin := dial(t, url)
	candidate := dial(t, url)

	send(t, admin, Message{Type: TypeSub, SubID: "s1", Mode: ModeChildren, Path: "room/approvals"})
	ack := next(t, admin)
	require.Equal(t, TypeAck, ack.Type)
	assert.Equal(t, "s1", ack.SubID)

	send(t, candidate, Message{Type: TypePut, Path: "room/approvals/a1", Data: json.RawMessage(`{"id":"a1","name":"ანა","status":"pending","timestamp":1}`)})

	ev := next(t, admin)
	require.Equal(t, TypeEvent, ev.Type)
	assert.Equal(t, "s1", ev.SubID)
	assert.Equal(t, "a1", ev.Key)

	var fields map[string]string
	require.NoError(t, json.Unmarshal(ev.Data, &fields))
	assert.Equal(t, "ანა", fields["name"])
	assert.Equal(t, "pending", fields["status"])

	send(t, admin, Message{Type: TypePut, Path: "room/approvals", Data: json.RawMessage(`null`)})
	ev = next(t, admin)
	assert.Equal(t, "a1", ev.Key)
	assert.True(t, IsNull(ev.Data), "reset should deliver a removed child")

	assert.Equal(t, 0, len(hub.Graph().Children(graph.ParsePath("room/approvals"))))
	assert.Eventually(t, func() bool { return journal.count() == 2 }, time.Second, 10*time.Millisecond)

	assert.Eventually(t, func() bool { return publisher.count() == 2 }, time.Second, 10*time.Millisecond)
	publisher.mu.Lock()
	defer publisher.mu.Unlock()
	assert.Equal(t, "relay-a", publisher.ops[0].Origin)
	assert.True(t, publisher.ops[1].Tombstone)
}

func TestHub_NodeSubscriptionReplaysCurrentState(t *testing.T) {
	_, url := startHub(t, HubOptions{})
	writer := dial(t, url)
	reader := dial(t, url)

	send(t, writer, Message{Type: TypePut, Path: "room/approvals/a1", Data: json.RawMessage(`{"name":"n","status":"approved"}`)})
	send(t, writer, Message{Type: TypeHello, MsgID: "sync"})
	require.Equal(t, TypeAck, next(t, writer).Type)

	send(t, reader, Message{Type: TypeSub, SubID: "one", Mode: ModeNode, Path: "room/approvals/a1"})
	ev := next(t, reader)
	assert.Equal(t, TypeEvent, ev.Type)
	assert.Equal(t, "one", ev.SubID)

	var fields map[string]string
	require.NoError(t, json.Unmarshal(ev.Data, &fields))
	assert.Equal(t, "approved", fields["status"])

	ack := next(t, reader)
	assert.Equal(t, TypeAck, ack.Type, "replay ends with an ack")
	assert.Equal(t, "one", ack.SubID)
}

func TestHub_InvalidPutGetsError(t *testing.T) {
	_, url := startHub(t, HubOptions{})
	conn := dial(t, url)

	send(t, conn, Message{Type: TypePut, MsgID: "bad", Path: "room", Data: json.RawMessage(`[1,2,3]`)})
	msg := next(t, conn)
	assert.Equal(t, TypeError, msg.Type)
	assert.Equal(t, "bad", msg.MsgID)
}

func TestHub_RemoteOpsAreAppliedWithoutRepublish(t *testing.T) {
	publisher := &recordingPublisher{}
	hub, url := startHub(t, HubOptions{InstanceID: "relay-a", Publisher: publisher})
	conn := dial(t, url)

	send(t, conn, Message{Type: TypeSub, SubID: "s", Mode: ModeNode, Path: "room/approvals/x"})
	require.Equal(t, TypeAck, next(t, conn).Type)

	hub.ApplyRemote(graph.Op{
		Path:   graph.ParsePath("room/approvals/x"),
		Fields: map[string]json.RawMessage{"status": json.RawMessage(`"approved"`)},
		State:  42,
		Origin: "relay-b",
	})

	ev := next(t, conn)
	assert.Equal(t, "s", ev.SubID)

	publisher.mu.Lock()
	defer publisher.mu.Unlock()
	assert.Empty(t, publisher.ops, "remote ops must not bounce back to peers")
}

func TestHub_LargeCollectionReplayAndReset(t *testing.T) {
	const children = 3000
	g := graph.New()
	for i := 0; i < children; i++ {
		g.Apply(graph.Op{
			Path:   graph.ParsePath(fmt.Sprintf("room/approvals/r%04d", i)),
			Fields: map[string]json.RawMessage{"name": json.RawMessage(`"x"`), "status": json.RawMessage(`"pending"`)},
			State:  1,
		})
	}
	_, url := startHub(t, HubOptions{Graph: g})
	conn := dial(t, url)

	send(t, conn, Message{Type: TypeSub, SubID: "all", Mode: ModeChildren, Path: "room/approvals"})
	seen := make(map[string]bool, children)
	for i := 0; i < children; i++ {
		ev := next(t, conn)
		require.Equal(t, TypeEvent, ev.Type)
		seen[ev.Key] = true
	}
	assert.Len(t, seen, children)

	ack := next(t, conn)
	require.Equal(t, TypeAck, ack.Type, "client must stay connected through the whole replay")
	assert.Equal(t, "all", ack.SubID)

	send(t, conn, Message{Type: TypePut, Path: "room/approvals", Data: json.RawMessage(`null`)})
	removed := 0
	for i := 0; i < children; i++ {
		ev := next(t, conn)
		if IsNull(ev.Data) {
			removed++
		}
	}
	assert.Equal(t, children, removed)
}

func TestHub_StalledPublisherDoesNotBlockClients(t *testing.T) {
	publisher := &stalledPublisher{release: make(chan struct{}), calls: make(chan graph.Op, 16)}
	defer close(publisher.release)
	_, url := startHub(t, HubOptions{InstanceID: "relay-a", Publisher: publisher})

	reader := dial(t, url)
	writer := dial(t, url)
	send(t, reader, Message{Type: TypeSub, SubID: "s", Mode: ModeChildren, Path: "room/approvals"})
	require.Equal(t, TypeAck, next(t, reader).Type)

	send(t, writer, Message{Type: TypePut, Path: "room/approvals/a1", Data: json.RawMessage(`{"status":"pending"}`)})
	select {
	case <-publisher.calls:
	case <-time.After(2 * time.Second):
		t.Fatal("op was never handed to the publisher")
	}

	// the publisher is now stuck on a1; the hub must keep serving
	send(t, writer, Message{Type: TypePut, Path: "room/approvals/a2", Data: json.RawMessage(`{"status":"pending"}`)})
	send(t, writer, Message{Type: TypeHello, MsgID: "still-there"})

	keys := []string{next(t, reader).Key, next(t, reader).Key}
	assert.ElementsMatch(t, []string{"a1", "a2"}, keys)

	ack := next(t, writer)
	assert.Equal(t, TypeAck, ack.Type)
	assert.Equal(t, "still-there", ack.MsgID)
}

func TestHub_MalformedFrameGetsError(t *testing.T) {
	_, url := startHub(t, HubOptions{})
	conn := dial(t, url)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"PUT","path":`)))
	msg := next(t, conn)
	assert.Equal(t, TypeError, msg.Type)
	assert.Equal(t, "malformed frame", msg.Error)

	send(t, conn, Message{Type: "NOPE", MsgID: "n1"})
	msg = next(t, conn)
	assert.Equal(t, TypeError, msg.Type)
	assert.Equal(t, "n1", msg.MsgID)

	send(t, conn, Message{Type: TypeHello, MsgID: "h1"})
	assert.Equal(t, TypeAck, next(t, conn).Type, "connection survives bad frames")
}
