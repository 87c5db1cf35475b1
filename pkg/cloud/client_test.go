package cloud

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"verity-health/outpost/pkg/rules"
	"verity-health/outpost/pkg/store"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return NewClient(Config{
		BaseURL:        server.URL,
		ClinicID:       "clinic-1",
		PollTimeout:    2 * time.Second,
		ProbeTimeout:   time.Second,
		DeliverTimeout: time.Second,
	}, server.Client())
}

func TestPollRules_Update(t *testing.T) {
	update := rules.RuleUpdate{
		Version:   "v2",
		Timestamp: time.Now().UTC(),
		Checksum:  "abcd",
	}

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/edge/rules/poll" {
			t.Errorf("path = %q", r.URL.Path)
		}
		var req pollRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("bad poll body: %v", err)
		}
		if req.CurrentVersion != "v1" || req.ClinicID != "clinic-1" {
			t.Errorf("poll request = %+v", req)
		}
		json.NewEncoder(w).Encode(update)
	}))

	got, err := client.PollRules(context.Background(), "v1")
	if err != nil {
		t.Fatalf("PollRules() failed: %v", err)
	}
	if got == nil || got.Version != "v2" {
		t.Errorf("PollRules() = %+v, want v2", got)
	}
}

func TestPollRules_NoUpdate(t *testing.T) {
	for _, status := range []int{http.StatusNoContent, http.StatusNotModified, http.StatusRequestTimeout} {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		}))

		got, err := client.PollRules(context.Background(), "v1")
		if err != nil {
			t.Errorf("status %d: PollRules() failed: %v", status, err)
		}
		if got != nil {
			t.Errorf("status %d: PollRules() = %+v, want nil", status, got)
		}
	}
}

func TestPollRules_ServerError(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))

	_, err := client.PollRules(context.Background(), "v1")
	if !IsTransport(err) {
		t.Errorf("PollRules() error = %v, want transport error", err)
	}
}

func TestPollRules_HardDeadline(t *testing.T) {
	release := make(chan struct{})
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	// Shrink the poll window so the test is quick.
	client.config.PollTimeout = 50 * time.Millisecond
	defer close(release)

	start := time.Now()
	_, err := client.PollRules(context.Background(), "v1")
	if !IsTransport(err) {
		t.Fatalf("PollRules() error = %v, want transport error on deadline", err)
	}
	if elapsed := time.Since(start); elapsed > 10*time.Second {
		t.Errorf("client did not abort the stuck poll: took %v", elapsed)
	}
}

func TestProbe(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/edge/health" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
	}))

	latency, err := client.Probe(context.Background())
	if err != nil {
		t.Fatalf("Probe() failed: %v", err)
	}
	if latency <= 0 {
		t.Error("Probe() did not measure latency")
	}
}

func TestProbe_Unreachable(t *testing.T) {
	client := NewClient(Config{
		BaseURL:      "http://127.0.0.1:1", // nothing listens here
		ClinicID:     "clinic-1",
		ProbeTimeout: 200 * time.Millisecond,
	}, nil)

	if _, err := client.Probe(context.Background()); !IsTransport(err) {
		t.Errorf("Probe() error = %v, want transport error", err)
	}
}

func TestDeliver(t *testing.T) {
	item := store.QueueItem{
		Kind:    store.KindAssuranceEvent,
		ID:      "evt-1",
		Payload: json.RawMessage(`{"id":"evt-1"}`),
	}

	tests := []struct {
		name         string
		status       int
		wantErr      bool
		wantRejected bool
	}{
		{"accepted", http.StatusAccepted, false, false},
		{"rejected", http.StatusUnprocessableEntity, true, true},
		{"server error", http.StatusInternalServerError, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/edge/events/assurance_event" {
					t.Errorf("path = %q", r.URL.Path)
				}
				w.WriteHeader(tt.status)
			}))

			err := client.Deliver(context.Background(), item)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Deliver() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantRejected && !errors.Is(err, ErrRejected) {
				t.Errorf("Deliver() error = %v, want ErrRejected", err)
			}
			if tt.wantErr && !tt.wantRejected && !IsTransport(err) {
				t.Errorf("Deliver() error = %v, want transport error", err)
			}
		})
	}
}
