// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package streaming

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/gridwork/cluster/pkg/watch"
)

// EventSource is anything that can be watched for keyed state changes.
// The master satisfies this by wrapping a watch.Poller over its job
// table, the same polling-then-diff pattern watch.Poller itself runs.
type EventSource interface {
	Watch(ctx context.Context, opts *watch.Options) (<-chan watch.Event, error)
}

// WebSocketServer pushes job/task-unit events to admin clients over a
// WebSocket, replacing a client-side poll loop with a server push.
type WebSocketServer struct {
	source   EventSource
	upgrader websocket.Upgrader
}

// NewWebSocketServer creates a WebSocket server over the given event
// source.
func NewWebSocketServer(source EventSource) *WebSocketServer {
	return &WebSocketServer{
		source: source,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// StreamMessage is one frame sent to a WebSocket client.
type StreamMessage struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Error     string      `json:"error,omitempty"`
}

// StreamRequest is a client's request to begin streaming, optionally
// restricted to a set of job/task-unit ids.
type StreamRequest struct {
	Keys []string `json:"keys,omitempty"`
}

// HandleWebSocket upgrades the connection and starts streaming events
// until the client disconnects.
func (ws *WebSocketServer) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := ws.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade error: %v", err)
		return
	}
	defer func() {
		if err := conn.Close(); err != nil {
			log.Printf("websocket close error: %v", err)
		}
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go ws.handleIncomingMessages(ctx, conn, cancel)
	ws.keepAlive(ctx, conn)
}

func (ws *WebSocketServer) handleIncomingMessages(ctx context.Context, conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		default:
			var req StreamRequest
			if err := conn.ReadJSON(&req); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					log.Printf("websocket read error: %v", err)
				}
				return
			}
			go ws.streamEvents(ctx, conn, req)
		}
	}
}

func (ws *WebSocketServer) streamEvents(ctx context.Context, conn *websocket.Conn, req StreamRequest) {
	var opts *watch.Options
	if len(req.Keys) > 0 {
		opts = &watch.Options{Keys: req.Keys}
	}

	events, err := ws.source.Watch(ctx, opts)
	if err != nil {
		ws.sendError(conn, "failed to start event stream: "+err.Error())
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				ws.sendMessage(conn, StreamMessage{Type: "stream_closed", Timestamp: time.Now()})
				return
			}
			ws.sendMessage(conn, StreamMessage{Type: "event", Data: ev, Timestamp: time.Now()})
		}
	}
}

func (ws *WebSocketServer) sendMessage(conn *websocket.Conn, msg StreamMessage) {
	if err := conn.WriteJSON(msg); err != nil {
		log.Printf("websocket write error: %v", err)
	}
}

func (ws *WebSocketServer) sendError(conn *websocket.Conn, message string) {
	ws.sendMessage(conn, StreamMessage{Type: "error", Error: message, Timestamp: time.Now()})
}

func (ws *WebSocketServer) keepAlive(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Printf("websocket ping error: %v", err)
				return
			}
		}
	}
}
