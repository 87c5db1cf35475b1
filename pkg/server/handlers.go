package server

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"verity-health/outpost/pkg/rules/engine"
	"verity-health/outpost/pkg/store"
	"verity-health/outpost/pkg/sync/distributor"
	"verity-health/outpost/pkg/telemetry/logging"
)

const maxBodyBytes = 1 << 20 // 1MB

// handleEvaluate runs the decision engine against the current snapshot.
// The verdict is always returned, online or offline; persistence and
// audit failures degrade to warnings rather than failing the response.
func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req evaluateRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if req.PatientHash == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "patientHash is required")
		return
	}
	action, err := engine.ParseAction(req.Action)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	snap := s.holder.Load()
	verdict := s.evaluator.Evaluate(action, req.Payload, snap)
	evaluationMs := float64(verdict.EvaluationTime.Microseconds()) / 1000

	if s.metrics != nil {
		s.metrics.Engine.RecordEvaluation(string(action), string(verdict.Color), verdict.EvaluationTime)
		for _, sig := range verdict.Signals {
			s.metrics.Engine.RecordSignal(string(sig.Color))
		}
	}

	requestID := logging.GetRequestID(r.Context())
	inputHash := hashInput(req.Payload, req.InputContextSnapshot)

	signals, err := json.Marshal(verdict.Signals)
	if err != nil {
		signals = []byte("[]")
	}
	event := &store.AssuranceEvent{
		ID:           uuid.New().String(),
		RequestID:    requestID,
		PatientHash:  req.PatientHash,
		Action:       string(action),
		Color:        string(verdict.Color),
		Signals:      signals,
		EvaluationMs: evaluationMs,
		RuleVersion:  verdict.RuleVersion,
	}
	if err := s.store.SaveAssuranceEvent(r.Context(), event); err != nil {
		// The verdict stands; losing the outbound record is an
		// operator problem, not a point-of-care one.
		s.logger.Warn("failed to persist assurance event",
			"request_id", requestID,
			"error", err,
		)
	}

	if s.recorder != nil {
		s.recorder.Record(&store.TrafficLightEntry{
			RequestID:    requestID,
			PatientHash:  req.PatientHash,
			Action:       string(action),
			Color:        string(verdict.Color),
			SignalCount:  len(verdict.Signals),
			EvaluationMs: evaluationMs,
			RuleVersion:  verdict.RuleVersion,
			InputHash:    inputHash,
		})
	}

	writeJSON(w, http.StatusOK, evaluateResponse{
		AssuranceEventID: event.ID,
		Color:            verdict.Color,
		Signals:          verdict.Signals,
		EvaluationMs:     evaluationMs,
		RuleVersion:      verdict.RuleVersion,
	})
}

// handleDecision records a clinician's decision. An override always
// queues a feedback record for the control plane's rule-improvement
// loop; a decision without a linked evaluation is stored standalone.
func (s *Server) handleDecision(w http.ResponseWriter, r *http.Request) {
	var req decisionRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if req.Decision == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "decision is required")
		return
	}
	if req.Override && req.Reason == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "reason is required when overriding")
		return
	}

	resp := decisionResponse{AssuranceEventID: req.AssuranceEventID}

	if req.AssuranceEventID != "" {
		err := s.store.RecordDecision(r.Context(), req.AssuranceEventID, req.Decision, req.Override, req.Reason)
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "no evaluation with that assuranceEventId")
			return
		}
		if err != nil {
			s.logger.Error("failed to record decision",
				"assurance_event_id", req.AssuranceEventID,
				"error", err,
			)
			writeError(w, http.StatusInternalServerError, "storage_error", "failed to record decision")
			return
		}
	}

	if req.Override || req.AssuranceEventID == "" {
		feedback := &store.HumanFeedback{
			ID:               uuid.New().String(),
			AssuranceEventID: req.AssuranceEventID,
			Decision:         req.Decision,
			Override:         req.Override,
			Reason:           req.Reason,
		}
		if err := s.store.SaveHumanFeedback(r.Context(), feedback); err != nil {
			s.logger.Error("failed to queue human feedback",
				"assurance_event_id", req.AssuranceEventID,
				"error", err,
			)
			writeError(w, http.StatusInternalServerError, "storage_error", "failed to record feedback")
			return
		}
		resp.FeedbackID = feedback.ID
	}

	writeJSON(w, http.StatusAccepted, resp)
}

// handleStatus serves the aggregate node status.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.status.Status(r.Context())
	if err != nil {
		s.logger.Error("failed to assemble status", "error", err)
		writeError(w, http.StatusInternalServerError, "storage_error", "failed to read node status")
		return
	}

	if s.metrics != nil {
		s.metrics.Sync.SetConnectivity(status.Connection)
		s.metrics.Queue.SetDepth(status.QueueDepth)
	}
	writeJSON(w, http.StatusOK, status)
}

// handleReload forces a full rule resync.
func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	err := s.reloader.ForceReload(r.Context())
	if errors.Is(err, distributor.ErrPollInFlight) {
		writeError(w, http.StatusConflict, "poll_in_flight", "a rule poll is already running")
		return
	}
	if err != nil {
		s.logger.Error("forced reload failed", "error", err)
		writeError(w, http.StatusBadGateway, "reload_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "reloading"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		writeJSON(w, http.StatusOK, s.health.Liveness())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReady aggregates local component checks. Readiness never
// depends on the control-plane link.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.health == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	status := s.health.Readiness(r.Context())
	code := http.StatusOK
	if status.Status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, status)
}

func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, target any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return false
	}
	return true
}

// hashInput fingerprints what the engine saw, preferring the explicit
// context snapshot when the caller supplied one.
func hashInput(payload map[string]any, snapshot json.RawMessage) string {
	var data []byte
	if len(snapshot) > 0 {
		data = snapshot
	} else {
		data, _ = json.Marshal(payload)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
