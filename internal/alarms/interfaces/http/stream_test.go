package alarmhttp

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	alarms "fieldwatch/internal/alarms/domain"
)

// syncRecorder is a flushable response writer safe to inspect while the
// stream handler is still writing.
type syncRecorder struct {
	mu     sync.Mutex
	header http.Header
	buf    bytes.Buffer
}

func newSyncRecorder() *syncRecorder {
	return &syncRecorder{header: make(http.Header)}
}

func (r *syncRecorder) Header() http.Header { return r.header }

func (r *syncRecorder) WriteHeader(int) {}

func (r *syncRecorder) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.buf.Write(p)
}

func (r *syncRecorder) Flush() {}

func (r *syncRecorder) String() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.buf.String()
}

func waitFor(t *testing.T, what string, check func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if check() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestBrokerFiltersByGroup(t *testing.T) {
	broker := NewSSEBroker()
	all := broker.Subscribe("")
	scoped := broker.Subscribe("g1")
	defer broker.Unsubscribe(all)
	defer broker.Unsubscribe(scoped)

	broker.Publish(alarms.Event{ID: "e1", Type: alarms.EventTypeAlarm, GroupID: "g1", Value: 42})
	broker.Publish(alarms.Event{ID: "e2", Type: alarms.EventTypeAlarm, GroupID: "g2", Value: 7})

	if got := len(all); got != 2 {
		t.Fatalf("unfiltered subscriber expected 2 frames, got %d", got)
	}
	if got := len(scoped); got != 1 {
		t.Fatalf("scoped subscriber expected 1 frame, got %d", got)
	}
	frame := <-scoped
	if !strings.Contains(string(frame), `"e1"`) {
		t.Fatalf("scoped subscriber got wrong event: %s", frame)
	}
}

func TestStreamHandlerWritesAlarmFrames(t *testing.T) {
	broker := NewSSEBroker()
	handler := NewStreamHandler(broker)

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/api/v1/alarms/stream?groupId=g1", nil).WithContext(ctx)
	rec := newSyncRecorder()

	done := make(chan struct{})
	go func() {
		defer close(done)
		handler.ServeHTTP(rec, req)
	}()

	waitFor(t, "subscriber registration", func() bool { return broker.subscriberCount() == 1 })
	broker.Publish(alarms.Event{ID: "e1", Type: alarms.EventTypeAlarm, GroupID: "g1", Value: 42})
	waitFor(t, "alarm frame", func() bool { return strings.Contains(rec.String(), "event: alarm") })
	cancel()
	<-done

	body := rec.String()
	if !strings.Contains(body, "event: ready") {
		t.Fatalf("expected ready frame, got %s", body)
	}
	if !strings.Contains(body, `"e1"`) {
		t.Fatalf("expected event payload, got %s", body)
	}
	if rec.Header().Get("Content-Type") != "text/event-stream" {
		t.Fatalf("unexpected content type %q", rec.Header().Get("Content-Type"))
	}
}

func TestStreamHandlerSendsHeartbeats(t *testing.T) {
	broker := NewSSEBroker()
	handler := NewStreamHandler(broker)
	handler.heartbeat = 2 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/api/v1/alarms/stream", nil).WithContext(ctx)
	rec := newSyncRecorder()

	done := make(chan struct{})
	go func() {
		defer close(done)
		handler.ServeHTTP(rec, req)
	}()

	waitFor(t, "heartbeat comment", func() bool { return strings.Contains(rec.String(), ": ping") })
	cancel()
	<-done
}
