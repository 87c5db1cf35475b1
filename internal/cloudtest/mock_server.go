// Package cloudtest provides a mock control plane for integration
// tests. It speaks the same wire protocol as the real control plane:
// long-poll rule distribution, health probes and event ingestion.
package cloudtest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"

	"verity-health/outpost/pkg/rules"
)

// Delivery is one event the mock control plane ingested.
type Delivery struct {
	Kind    string
	Payload json.RawMessage
}

// MockControlPlane simulates the control plane's edge API. All methods
// are safe for concurrent use.
type MockControlPlane struct {
	server *httptest.Server

	mu          sync.Mutex
	update      *rules.RuleUpdate
	healthy     bool
	rejectKinds map[string]bool
	deliveries  []Delivery
	pollCount   int
	probeCount  int
}

// NewMockControlPlane starts a mock control plane with no pending rule
// update and a healthy probe endpoint.
func NewMockControlPlane() *MockControlPlane {
	m := &MockControlPlane{
		healthy:     true,
		rejectKinds: make(map[string]bool),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /edge/rules/poll", m.handlePoll)
	mux.HandleFunc("GET /edge/health", m.handleHealth)
	mux.HandleFunc("POST /edge/events/{kind}", m.handleDeliver)
	m.server = httptest.NewServer(mux)
	return m
}

// URL returns the mock control plane's base URL.
func (m *MockControlPlane) URL() string {
	return m.server.URL
}

// Close shuts the server down.
func (m *MockControlPlane) Close() {
	m.server.Close()
}

// SetUpdate stages a rule update. The next poll whose currentVersion
// differs from the update's version receives it; nil clears the stage.
func (m *MockControlPlane) SetUpdate(update *rules.RuleUpdate) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.update = update
}

// SetHealthy controls whether probes and polls succeed. An unhealthy
// control plane answers everything with 503, which the client treats
// as a transport failure.
func (m *MockControlPlane) SetHealthy(healthy bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.healthy = healthy
}

// RejectKind makes deliveries of the given kind fail with 422.
func (m *MockControlPlane) RejectKind(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rejectKinds[kind] = true
}

// Deliveries returns everything ingested so far, in arrival order.
func (m *MockControlPlane) Deliveries() []Delivery {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Delivery, len(m.deliveries))
	copy(out, m.deliveries)
	return out
}

// PollCount returns how many rule polls arrived.
func (m *MockControlPlane) PollCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pollCount
}

// ProbeCount returns how many health probes arrived.
func (m *MockControlPlane) ProbeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.probeCount
}

func (m *MockControlPlane) handlePoll(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CurrentVersion string `json:"currentVersion"`
		ClinicID       string `json:"clinicId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed poll request", http.StatusBadRequest)
		return
	}

	m.mu.Lock()
	m.pollCount++
	healthy := m.healthy
	update := m.update
	m.mu.Unlock()

	if !healthy {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}
	if update == nil || update.Version == req.CurrentVersion {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(update)
}

func (m *MockControlPlane) handleHealth(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	m.probeCount++
	healthy := m.healthy
	m.mu.Unlock()

	if !healthy {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (m *MockControlPlane) handleDeliver(w http.ResponseWriter, r *http.Request) {
	kind := r.PathValue("kind")

	var payload json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "malformed payload", http.StatusBadRequest)
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.healthy {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}
	if m.rejectKinds[kind] {
		http.Error(w, "rejected", http.StatusUnprocessableEntity)
		return
	}

	m.deliveries = append(m.deliveries, Delivery{Kind: kind, Payload: payload})
	w.WriteHeader(http.StatusAccepted)
}
