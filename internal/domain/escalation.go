package domain

import (
	"time"
)

// MaxEscalationLevel caps how many re-notification rounds fire for an
// unacknowledged group.
const MaxEscalationLevel = 3

// EscalationJob is the payload carried by a delayed escalation check. It is
// ephemeral: it lives in the delayed-job queue plus the durable escalation
// index keyed by AlertGroupID.
type EscalationJob struct {
	WorkspaceID          string    `json:"workspace_id"`
	AlertGroupID         string    `json:"alert_group_id"`
	EscalationLevel      int       `json:"escalation_level"`
	EscalateAfterMinutes int       `json:"escalate_after_minutes"`
	ChannelID            string    `json:"channel_id"`
	MentionHere          bool      `json:"mention_here"`
	ScheduledAt          time.Time `json:"scheduled_at"`
}
