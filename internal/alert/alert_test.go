package alert

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func TestNotify_DeliversEvent(t *testing.T) {
	var got Event
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := New(srv.URL)
	n.Notify(context.Background(), Event{
		RunID:    "run-1",
		Mode:     "normal",
		Severity: "error",
		Message:  "run failed",
	})

	if got.Message != "run failed" || got.RunID != "run-1" {
		t.Errorf("received event = %+v", got)
	}
	if got.Timestamp.IsZero() {
		t.Error("timestamp not stamped")
	}
}

func TestNotify_RetriesOnServerError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := New(srv.URL)
	n.Notify(context.Background(), Event{Message: "flaky"})

	if got := calls.Load(); got != 3 {
		t.Errorf("calls = %d, want 3", got)
	}
}

func TestNotify_NilNotifierIsNoop(t *testing.T) {
	var n *Notifier
	n.Notify(context.Background(), Event{Message: "ignored"})
}
