package server

import (
	"encoding/json"
	"net/http"

	"verity-health/outpost/pkg/rules/engine"
)

// evaluateRequest is the body of POST /v1/evaluate.
type evaluateRequest struct {
	// PatientHash is the salted identifier hash; never a raw ID.
	PatientHash string `json:"patientHash"`

	// Action is the clinical action being checked.
	Action string `json:"action"`

	// Payload is the action's structured content the rules match on.
	Payload map[string]any `json:"payload"`

	// InputContextSnapshot optionally carries the exact inputs shown
	// to the clinician, hashed into the audit trail.
	InputContextSnapshot json.RawMessage `json:"inputContextSnapshot,omitempty"`
}

// evaluateResponse is the verdict returned to the point of care.
type evaluateResponse struct {
	AssuranceEventID string          `json:"assuranceEventId"`
	Color            engine.Color    `json:"color"`
	Signals          []engine.Signal `json:"signals"`
	EvaluationMs     float64         `json:"evaluationMs"`
	RuleVersion      string          `json:"ruleVersion"`
}

// decisionRequest is the body of POST /v1/decisions.
type decisionRequest struct {
	// AssuranceEventID links the decision to a prior evaluation.
	// Optional; a standalone feedback record is created without it.
	AssuranceEventID string `json:"assuranceEventId,omitempty"`

	// Decision is the clinician's call, e.g. "accepted" or "overridden".
	Decision string `json:"decision"`

	// Override marks the decision as going against the verdict.
	Override bool `json:"override"`

	// Reason is the clinician's stated reason, required on override.
	Reason string `json:"reason,omitempty"`
}

type decisionResponse struct {
	AssuranceEventID string `json:"assuranceEventId,omitempty"`
	FeedbackID       string `json:"feedbackId,omitempty"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: errorBody{Code: code, Message: message}})
}
