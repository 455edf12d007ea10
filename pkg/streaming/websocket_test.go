// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package streaming

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridwork/cluster/pkg/watch"
)

func TestNewWebSocketServer(t *testing.T) {
	source := &mockEventSource{}
	server := NewWebSocketServer(source)

	require.NotNil(t, server)
	assert.Equal(t, source, server.source)
}

func TestHandleWebSocket_Upgrade(t *testing.T) {
	server := NewWebSocketServer(&mockEventSource{})

	ts := httptest.NewServer(http.HandlerFunc(server.HandleWebSocket))
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	assert.NotNil(t, conn)
}

func TestHandleWebSocket_StreamRequest(t *testing.T) {
	eventChan := make(chan watch.Event, 10)

	source := &mockEventSource{
		watchFunc: func(ctx context.Context, opts *watch.Options) (<-chan watch.Event, error) {
			require.NotNil(t, opts)
			assert.Equal(t, []string{"task-1", "task-2"}, opts.Keys)

			go func() {
				eventChan <- watch.Event{
					Type:     "state_change",
					Key:      "task-1",
					OldState: "PENDING",
					NewState: "RUNNING",
					Time:     time.Now(),
				}
				time.Sleep(100 * time.Millisecond)
				close(eventChan)
			}()
			return eventChan, nil
		},
	}
	server := NewWebSocketServer(source)

	ts := httptest.NewServer(http.HandlerFunc(server.HandleWebSocket))
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	req := StreamRequest{Keys: []string{"task-1", "task-2"}}
	err = conn.WriteJSON(req)
	require.NoError(t, err)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg StreamMessage
	err = conn.ReadJSON(&msg)
	require.NoError(t, err)

	assert.Equal(t, "event", msg.Type)
}

func TestHandleWebSocket_StreamClosedEvent(t *testing.T) {
	eventChan := make(chan watch.Event)
	close(eventChan)

	source := &mockEventSource{
		watchFunc: func(ctx context.Context, opts *watch.Options) (<-chan watch.Event, error) {
			return eventChan, nil
		},
	}
	server := NewWebSocketServer(source)

	ts := httptest.NewServer(http.HandlerFunc(server.HandleWebSocket))
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	req := StreamRequest{}
	err = conn.WriteJSON(req)
	require.NoError(t, err)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg StreamMessage
	err = conn.ReadJSON(&msg)
	require.NoError(t, err)

	assert.Equal(t, "stream_closed", msg.Type)
}

func TestHandleWebSocket_WatchError(t *testing.T) {
	source := &mockEventSource{
		watchFunc: func(ctx context.Context, opts *watch.Options) (<-chan watch.Event, error) {
			return nil, fmt.Errorf("watch failed")
		},
	}
	server := NewWebSocketServer(source)

	ts := httptest.NewServer(http.HandlerFunc(server.HandleWebSocket))
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	req := StreamRequest{}
	err = conn.WriteJSON(req)
	require.NoError(t, err)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg StreamMessage
	err = conn.ReadJSON(&msg)
	require.NoError(t, err)

	assert.Equal(t, "error", msg.Type)
	assert.Contains(t, msg.Error, "failed to start event stream")
}

func TestHandleWebSocket_NilKeys(t *testing.T) {
	eventChan := make(chan watch.Event, 10)

	source := &mockEventSource{
		watchFunc: func(ctx context.Context, opts *watch.Options) (<-chan watch.Event, error) {
			assert.Nil(t, opts)
			go func() {
				eventChan <- watch.Event{Type: "state_change", Key: "task-1", Time: time.Now()}
				time.Sleep(100 * time.Millisecond)
				close(eventChan)
			}()
			return eventChan, nil
		},
	}
	server := NewWebSocketServer(source)

	ts := httptest.NewServer(http.HandlerFunc(server.HandleWebSocket))
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	req := StreamRequest{}
	err = conn.WriteJSON(req)
	require.NoError(t, err)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg StreamMessage
	err = conn.ReadJSON(&msg)
	require.NoError(t, err)

	assert.Equal(t, "event", msg.Type)
}

func TestHandleWebSocket_ContextCancellation(t *testing.T) {
	eventChan := make(chan watch.Event)

	source := &mockEventSource{
		watchFunc: func(ctx context.Context, opts *watch.Options) (<-chan watch.Event, error) {
			return eventChan, nil
		},
	}
	server := NewWebSocketServer(source)

	ts := httptest.NewServer(http.HandlerFunc(server.HandleWebSocket))
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)

	req := StreamRequest{}
	err = conn.WriteJSON(req)
	require.NoError(t, err)

	time.Sleep(100 * time.Millisecond)
	conn.Close()
	time.Sleep(100 * time.Millisecond)
}

func BenchmarkWebSocketUpgrade(b *testing.B) {
	server := NewWebSocketServer(&mockEventSource{})

	ts := httptest.NewServer(http.HandlerFunc(server.HandleWebSocket))
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
		if err != nil {
			b.Fatal(err)
		}
		conn.Close()
	}
}

func BenchmarkSendMessage(b *testing.B) {
	source := &mockEventSource{
		watchFunc: func(ctx context.Context, opts *watch.Options) (<-chan watch.Event, error) {
			return make(chan watch.Event, 1000), nil
		},
	}
	server := NewWebSocketServer(source)

	ts := httptest.NewServer(http.HandlerFunc(server.HandleWebSocket))
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		b.Fatal(err)
	}
	defer conn.Close()

	msg := StreamMessage{Type: "event", Data: map[string]string{"key": "value"}, Timestamp: time.Now()}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		server.sendMessage(conn, msg)
	}
}
