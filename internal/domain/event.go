package domain

import (
	"encoding/json"
	"time"
)

// AlertEvent is one row per raw occurrence. Events are append-only: they are
// never mutated or deleted by the pipeline, and each references the group it
// was folded into.
type AlertEvent struct {
	ID            string `json:"id"`
	WorkspaceID   string `json:"workspace_id"`
	AlertGroupID  string `json:"alert_group_id"`
	Source        string `json:"source"`
	SourceEventID string `json:"source_event_id"`

	// Normalized fields captured at ingestion time.
	Fingerprint string   `json:"fingerprint"`
	Title       string   `json:"title"`
	Severity    Severity `json:"severity"`
	Environment string   `json:"environment"`
	Project     string   `json:"project"`

	// RawPayload is the original source payload, kept verbatim for replay
	// and debugging.
	RawPayload json.RawMessage `json:"raw_payload,omitempty"`

	OccurredAt time.Time `json:"occurred_at"`
	ReceivedAt time.Time `json:"received_at"`
}

// NewAlertEvent builds the append-only event row for a normalized occurrence.
func NewAlertEvent(workspaceID, groupID string, alert *CanonicalAlert, raw json.RawMessage, receivedAt time.Time) *AlertEvent {
	return &AlertEvent{
		WorkspaceID:   workspaceID,
		AlertGroupID:  groupID,
		Source:        alert.Source,
		SourceEventID: alert.SourceEventID,
		Fingerprint:   alert.Fingerprint,
		Title:         alert.Title,
		Severity:      alert.Severity,
		Environment:   alert.Environment,
		Project:       alert.Project,
		RawPayload:    raw,
		OccurredAt:    alert.OccurredAt,
		ReceivedAt:    receivedAt,
	}
}
