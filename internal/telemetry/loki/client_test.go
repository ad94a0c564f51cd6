package loki

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"online-status/internal/telemetry/domain"
)

func newCapturingServer(t *testing.T, status int) (*httptest.Server, *PushRequest) {
	t.Helper()
	got := &PushRequest{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/loki/api/v1/push" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, got
}

func TestPushEvent_EmptyBaseURL(t *testing.T) {
	c := NewClient("", nil)
	if err := c.PushEvent(context.Background(), time.Now(), "x", nil); err == nil {
		t.Fatal("PushEvent with empty base URL should fail")
	}
}

func TestPushEvent_LabelsAndTimestamp(t *testing.T) {
	srv, got := newCapturingServer(t, http.StatusNoContent)
	c := NewClient(srv.URL+"/", srv.Client())
	ts := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)

	err := c.PushEvent(context.Background(), ts, "line", map[string]string{"event_type": "presence.login", "bad": "a b/c", "empty": "  "})
	if err != nil {
		t.Fatalf("PushEvent: %v", err)
	}
	if len(got.Streams) != 1 {
		t.Fatalf("streams = %d", len(got.Streams))
	}
	s := got.Streams[0]
	if s.Stream["job"] != jobLabel {
		t.Errorf("job = %q", s.Stream["job"])
	}
	if s.Stream["bad"] != "a_b_c" {
		t.Errorf("sanitized label = %q", s.Stream["bad"])
	}
	if _, ok := s.Stream["empty"]; ok {
		t.Error("blank label should be dropped")
	}
	if s.Values[0][0] != strconv.FormatInt(ts.UnixNano(), 10) || s.Values[0][1] != "line" {
		t.Errorf("values = %v", s.Values)
	}
}

func TestPushEvent_Non2xx(t *testing.T) {
	srv, _ := newCapturingServer(t, http.StatusBadRequest)
	c := NewClient(srv.URL, srv.Client())
	if err := c.PushEvent(context.Background(), time.Now(), "x", nil); err == nil {
		t.Fatal("non-2xx should return error")
	}
}

func TestPushEventJSON_UsesEventFields(t *testing.T) {
	srv, got := newCapturingServer(t, http.StatusNoContent)
	c := NewClient(srv.URL, srv.Client())
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	raw, _ := json.Marshal(domain.NewEvent(domain.EventLogout, 9, nil, at))

	if err := c.PushEventJSON(context.Background(), raw); err != nil {
		t.Fatalf("PushEventJSON: %v", err)
	}
	s := got.Streams[0]
	if s.Stream["event_type"] != "presence.logout" || s.Stream["source"] != domain.SourcePresence {
		t.Errorf("labels = %v", s.Stream)
	}
	if _, ok := s.Stream["user_id"]; ok {
		t.Error("user id must not become a label")
	}
	if s.Values[0][0] != strconv.FormatInt(at.UnixNano(), 10) {
		t.Errorf("timestamp = %s", s.Values[0][0])
	}
	if s.Values[0][1] != string(raw) {
		t.Errorf("line = %s", s.Values[0][1])
	}
}

func TestPushEventJSON_InvalidJSONPushesRawLine(t *testing.T) {
	srv, got := newCapturingServer(t, http.StatusNoContent)
	c := NewClient(srv.URL, srv.Client())
	if err := c.PushEventJSON(context.Background(), []byte("not json")); err != nil {
		t.Fatalf("PushEventJSON: %v", err)
	}
	s := got.Streams[0]
	if len(s.Stream) != 1 || s.Values[0][1] != "not json" {
		t.Errorf("stream = %+v", s)
	}
}
