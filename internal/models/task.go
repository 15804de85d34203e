package models

import "time"

// TaskPriority
type TaskPriority string

const (
	PriorityCritical TaskPriority = "critical"
	PriorityHigh     TaskPriority = "high"
	PriorityNormal   TaskPriority = "normal"
)

// Rank orders priorities for severity comparisons.
func (p TaskPriority) Rank() int {
	switch p {
	case PriorityCritical:
		return 3
	case PriorityHigh:
		return 2
	case PriorityNormal:
		return 1
	}
	return 0
}

// PriorityForLevel maps a non-low risk level onto a task priority.
func PriorityForLevel(level RiskLevel) TaskPriority {
	switch level {
	case RiskCritical:
		return PriorityCritical
	case RiskHigh:
		return PriorityHigh
	default:
		return PriorityNormal
	}
}

// TaskStatus
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskCompleted TaskStatus = "completed"
)

// Task types
const (
	TaskTypeEmergencyAlert   = "emergency_alert"
	TaskTypeRiskReview       = "risk_review"
	TaskTypeRecurringSymptom = "recurring_symptom"
	TaskTypeNonResponder     = "non_responder"
)

// Task follow-up work for a human responder (tasks table).
type Task struct {
	TaskID      string       `json:"task_id"`
	PatientID   string       `json:"patient_id"`
	Type        string       `json:"type"`
	Priority    TaskPriority `json:"priority"`
	Reason      string       `json:"reason"`
	Status      TaskStatus   `json:"status"`
	CreatedAt   time.Time    `json:"created_at"`
	CompletedAt *time.Time   `json:"completed_at,omitempty"`
	CompletedBy *string      `json:"completed_by,omitempty"`
}
