package websocket

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	WriteWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	PongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than PongWait.
	PingPeriod = (PongWait * 9) / 10

	// Maximum message size allowed from peer.
	MaxMessageSize = 512 * 1024 // 512KB
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Exam tabs and terminals connect from anywhere
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	hub *Hub

	// The websocket connection.
	conn *websocket.Conn

	// Outbound frames, written in order by writePump.
	send *outbox

	// Active subscriptions by subscription id. Only touched by the hub goroutine.
	subs map[string]subscription

	ClientID string
}

// readPump pumps messages from the websocket connection to the hub.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()
	c.conn.SetReadLimit(MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(PongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(PongWait)); return nil })

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WS error: %v", err)
			}
			break
		}

		in := inbound{client: c}
		if err := json.Unmarshal(raw, &in.msg); err != nil {
			log.Printf("⚠️ %s sent a malformed frame: %v", c.ClientID, err)
			in.msg = Message{}
			in.invalid = "malformed frame"
		} else {
			switch in.msg.Type {
			case TypeHello, TypePut, TypeSub, TypeUnsub:
			default:
				log.Printf("⚠️ %s sent unsupported frame %q", c.ClientID, in.msg.Type)
				in.invalid = "unsupported frame type " + strconv.Quote(in.msg.Type)
			}
		}

		select {
		case c.hub.inbound <- in:
		case <-c.hub.done:
			return
		}
	}
}

// writePump pumps messages from the hub to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(PingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.send.wake:
			batch, closed := c.send.drain()
			for _, message := range batch {
				c.conn.SetWriteDeadline(time.Now().Add(WriteWait))
				w, err := c.conn.NextWriter(websocket.TextMessage)
				if err != nil {
					return
				}
				w.Write(message)
				if err := w.Close(); err != nil {
					return
				}
			}
			if closed {
				// The hub closed the outbox.
				c.conn.SetWriteDeadline(time.Now().Add(WriteWait))
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ServeWs handles websocket requests from the peer.
// clientID may be empty; anonymous clients get a generated id.
func ServeWs(hub *Hub, w http.ResponseWriter, r *http.Request, clientID string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println(err)
		return
	}
	if clientID == "" {
		clientID = "anon"
	}
	// Suffix keeps two tabs of the same candidate from evicting each other
	clientID = clientID + "_" + uuid.New().String()[:8]

	client := &Client{
		hub:      hub,
		conn:     conn,
		send:     newOutbox(),
		subs:     make(map[string]subscription),
		ClientID: clientID,
	}

	select {
	case hub.register <- client:
	case <-hub.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}
