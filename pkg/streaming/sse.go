// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package streaming

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/gridwork/cluster/pkg/watch"
)

// SSEServer provides a Server-Sent Events interface over the same
// EventSource the WebSocket server streams from, for clients that
// prefer a plain HTTP long-lived response over a WebSocket upgrade.
type SSEServer struct {
	source EventSource
}

// NewSSEServer creates a Server-Sent Events server over the given
// event source.
func NewSSEServer(source EventSource) *SSEServer {
	return &SSEServer{source: source}
}

// SSEEvent is a single Server-Sent Event frame.
type SSEEvent struct {
	ID    string      `json:"id,omitempty"`
	Event string      `json:"event,omitempty"`
	Data  interface{} `json:"data"`
}

// HandleSSE streams events until the client disconnects. An optional
// "keys" query parameter (comma-separated) restricts the stream.
func (sse *SSEServer) HandleSSE(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	ctx := r.Context()

	var opts *watch.Options
	if keys := parseStringSlice(r.URL.Query().Get("keys")); len(keys) > 0 {
		opts = &watch.Options{Keys: keys}
	}

	events, err := sse.source.Watch(ctx, opts)
	if err != nil {
		sse.writeEvent(w, flusher, SSEEvent{Event: "error", Data: map[string]string{"error": err.Error()}})
		return
	}

	sse.writeEvent(w, flusher, SSEEvent{Event: "connected", Data: map[string]string{"status": "connected"}})

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				sse.writeEvent(w, flusher, SSEEvent{Event: "stream_closed", Data: map[string]string{"status": "closed"}})
				return
			}
			sse.writeEvent(w, flusher, SSEEvent{ID: ev.Key, Event: ev.Type, Data: ev})
		}
	}
}

func (sse *SSEServer) writeEvent(w http.ResponseWriter, flusher http.Flusher, event SSEEvent) {
	if event.ID != "" {
		fmt.Fprintf(w, "id: %s\n", event.ID)
	}
	if event.Event != "" {
		fmt.Fprintf(w, "event: %s\n", event.Event)
	}

	data, err := json.Marshal(event.Data)
	if err != nil {
		fmt.Fprint(w, "data: {\"error\": \"failed to marshal data\"}\n\n")
		flusher.Flush()
		return
	}

	fmt.Fprintf(w, "data: %s\n\n", string(data))
	flusher.Flush()
}

// parseStringSlice splits a comma-separated query parameter into a
// trimmed, non-empty slice.
func parseStringSlice(s string) []string {
	if s == "" {
		return nil
	}

	var result []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
