package models

import (
	"encoding/json"
	"strconv"
	"time"
)

// Audit actions
const (
	ActionCalculateRisk        = "CALCULATE_RISK"
	ActionTaskCreated          = "TASK_CREATED"
	ActionTaskSuppressedCap    = "TASK_SUPPRESSED_CAP"
	ActionTaskSuppressedDedup  = "TASK_SUPPRESSED_DEDUP"
	ActionTaskCompleted        = "TASK_COMPLETED"
	ActionStreakCelebration    = "STREAK_CELEBRATION"
	ActionNonResponderProtocol = "NON_RESPONDER_PROTOCOL"
	ActionCheckInTransition    = "CHECKIN_TRANSITION"
	ActionGlucoseRecorded      = "GLUCOSE_RECORDED"
)

// Audit actors
const (
	ActorRiskEngine   = "risk_engine"
	ActorDispatcher   = "task_dispatcher"
	ActorEngagement   = "engagement_tracker"
	ActorCheckInFlow  = "checkin_flow"
	ActorNonResponder = "non_responder_monitor"
)

// AuditEntry immutable audit row (audit_log table).
type AuditEntry struct {
	AuditID   string          `json:"audit_id"`
	Actor     string          `json:"actor"`
	Action    string          `json:"action"`
	PatientID string          `json:"patient_id"`
	Details   json.RawMessage `json:"details"`
	CreatedAt time.Time       `json:"created_at"`
}

// NewAuditEntry builds an entry with details marshalled to JSON.
// Unmarshalable details are stored as an empty object.
func NewAuditEntry(actor, action, patientID string, details interface{}) *AuditEntry {
	raw, err := json.Marshal(details)
	if err != nil || details == nil {
		raw = []byte("{}")
	}
	return &AuditEntry{
		Actor:     actor,
		Action:    action,
		PatientID: patientID,
		Details:   raw,
	}
}

// DetailString reads a top-level details key as text; numbers are formatted.
func (e *AuditEntry) DetailString(key string) string {
	var m map[string]interface{}
	if err := json.Unmarshal(e.Details, &m); err != nil {
		return ""
	}
	switch v := m[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	}
	return ""
}
