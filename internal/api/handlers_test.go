package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"firehose/internal/queue"
	"firehose/internal/usecase"
)

func newTestServer(t *testing.T, capacity int) (*httptest.Server, *queue.Queue) {
	t.Helper()
	q := queue.New(capacity)
	h := NewHandlers(usecase.NewAdmitEvent(q), q, slog.New(slog.NewTextHandler(io.Discard, nil)))
	srv := httptest.NewServer(NewRouter(h, nil, time.Hour))
	t.Cleanup(srv.Close)
	return srv, q
}

func postEvent(t *testing.T, srv *httptest.Server, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(srv.URL+"/event", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

const sampleEvent = `{"user_id": 7, "timestamp": "2026-01-10T10:30:00Z", "metadata": {"page": "/home", "seq": 7}}`

func TestCollectEventAccepted(t *testing.T) {
	srv, q := newTestServer(t, 10)

	resp := postEvent(t, srv, sampleEvent)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status %d, want 202", resp.StatusCode)
	}

	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "accepted" {
		t.Fatalf("body %v", body)
	}

	e, ok := q.TryDequeue()
	if !ok {
		t.Fatalf("event not queued")
	}
	if e.ProducerID != 7 || e.Attributes["page"] != "/home" || !e.OccurredAt.Equal(time.Date(2026, 1, 10, 10, 30, 0, 0, time.UTC)) {
		t.Fatalf("queued event %+v", e)
	}
}

func TestCollectEventQueueFull(t *testing.T) {
	srv, _ := newTestServer(t, 1)

	if resp := postEvent(t, srv, sampleEvent); resp.StatusCode != http.StatusAccepted {
		t.Fatalf("first status %d, want 202", resp.StatusCode)
	}
	resp := postEvent(t, srv, sampleEvent)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("second status %d, want 503", resp.StatusCode)
	}
	if resp.Header.Get("Retry-After") == "" {
		t.Fatalf("missing Retry-After")
	}
}

func TestCollectEventBadBody(t *testing.T) {
	srv, q := newTestServer(t, 1)

	resp := postEvent(t, srv, `{"user_id": "not a number"`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status %d, want 400", resp.StatusCode)
	}
	if q.Len() != 0 {
		t.Fatalf("bad request reached the queue")
	}
}

func TestHealthReportsQueue(t *testing.T) {
	srv, _ := newTestServer(t, 5)
	postEvent(t, srv, sampleEvent)

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	var body struct {
		Depth    int `json:"queue_depth"`
		Capacity int `json:"queue_capacity"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Depth != 1 || body.Capacity != 5 {
		t.Fatalf("health %+v", body)
	}
}

func TestCollectEventKeepsLargeIntegersExact(t *testing.T) {
	srv, q := newTestServer(t, 1)

	resp := postEvent(t, srv, `{"user_id": 1, "timestamp": "2026-01-10T10:30:00Z", "metadata": {"order_id": 9007199254740993, "ratio": 0.25}}`)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status %d, want 202", resp.StatusCode)
	}

	e, ok := q.TryDequeue()
	if !ok {
		t.Fatalf("event not queued")
	}
	text, err := e.MetadataText()
	if err != nil {
		t.Fatalf("metadata text: %v", err)
	}
	if want := `{"order_id":9007199254740993,"ratio":0.25}`; text != want {
		t.Fatalf("stored metadata %s, want %s", text, want)
	}
}
