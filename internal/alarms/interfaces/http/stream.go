package alarmhttp

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	alarms "fieldwatch/internal/alarms/domain"
)

// SSEBroker fans alarm activations out to connected subscribers. Each
// subscriber may filter to a single notification group.
type SSEBroker struct {
	mu   sync.Mutex
	subs map[chan []byte]string
}

// NewSSEBroker constructs a broker.
func NewSSEBroker() *SSEBroker {
	return &SSEBroker{subs: make(map[chan []byte]string)}
}

// Publish implements the evaluator's EventPublisher. Subscribers that cannot
// keep up miss frames rather than stall the evaluation path.
func (b *SSEBroker) Publish(event alarms.Event) {
	if b == nil {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch, groupID := range b.subs {
		if groupID != "" && groupID != event.GroupID {
			continue
		}
		select {
		case ch <- payload:
		default:
		}
	}
}

// Subscribe registers a subscriber. A non-empty groupID limits delivery to
// events routed to that group.
func (b *SSEBroker) Subscribe(groupID string) chan []byte {
	if b == nil {
		return nil
	}
	ch := make(chan []byte, 16)
	b.mu.Lock()
	b.subs[ch] = groupID
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber channel.
func (b *SSEBroker) Unsubscribe(ch chan []byte) {
	if b == nil || ch == nil {
		return
	}
	b.mu.Lock()
	delete(b.subs, ch)
	close(ch)
	b.mu.Unlock()
}

func (b *SSEBroker) subscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// StreamHandler serves the SSE alarm stream. Heartbeat comments keep idle
// connections alive through proxies.
type StreamHandler struct {
	broker    *SSEBroker
	heartbeat time.Duration
}

// NewStreamHandler constructs a stream handler.
func NewStreamHandler(broker *SSEBroker) *StreamHandler {
	return &StreamHandler{broker: broker, heartbeat: 30 * time.Second}
}

// ServeHTTP handles GET /api/v1/alarms/stream?groupId=.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.broker == nil {
		http.Error(w, "stream not ready", http.StatusServiceUnavailable)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "stream unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := h.broker.Subscribe(r.URL.Query().Get("groupId"))
	if ch == nil {
		http.Error(w, "stream not ready", http.StatusServiceUnavailable)
		return
	}
	defer h.broker.Unsubscribe(ch)

	_, _ = w.Write([]byte("event: ready\ndata: {}\n\n"))
	flusher.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	notify := r.Context().Done()
	for {
		select {
		case payload, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write([]byte("event: alarm\n"))
			_, _ = w.Write([]byte("data: "))
			_, _ = w.Write(payload)
			_, _ = w.Write([]byte("\n\n"))
			flusher.Flush()
		case <-ticker.C:
			_, _ = w.Write([]byte(": ping\n\n"))
			flusher.Flush()
		case <-notify:
			return
		}
	}
}
