package domain

import (
	"time"
)

// GroupStatus represents the lifecycle state of an alert group.
type GroupStatus string

const (
	// GroupStatusOpen indicates the group is live and unhandled.
	GroupStatusOpen GroupStatus = "OPEN"
	// GroupStatusAck indicates someone has acknowledged the group.
	GroupStatusAck GroupStatus = "ACK"
	// GroupStatusSnoozed indicates the group is muted until SnoozeUntil.
	GroupStatusSnoozed GroupStatus = "SNOOZED"
	// GroupStatusResolved is the terminal state.
	GroupStatusResolved GroupStatus = "RESOLVED"
)

// IsValid returns true if the status is a known value.
func (s GroupStatus) IsValid() bool {
	switch s {
	case GroupStatusOpen, GroupStatusAck, GroupStatusSnoozed, GroupStatusResolved:
		return true
	default:
		return false
	}
}

// IsTerminal returns true for statuses that end the group's lifecycle.
func (s GroupStatus) IsTerminal() bool {
	return s == GroupStatusResolved
}

// AlertGroup is the deduplicated incident record that accumulates occurrences
// of the same fingerprint. At most one non-terminal group exists per
// (workspaceID, fingerprint); the grouping engine owns all mutations.
type AlertGroup struct {
	ID          string      `json:"id"`
	WorkspaceID string      `json:"workspace_id"`
	Fingerprint string      `json:"fingerprint"`
	Title       string      `json:"title"`
	Project     string      `json:"project"`
	Environment string      `json:"environment"`
	Severity    Severity    `json:"severity"`
	Status      GroupStatus `json:"status"`

	// Count is the number of occurrences collapsed into this group.
	Count int `json:"count"`

	FirstSeenAt time.Time  `json:"first_seen_at"`
	LastSeenAt  time.Time  `json:"last_seen_at"`
	SnoozeUntil *time.Time `json:"snooze_until,omitempty"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty"`

	ResolutionNotes string `json:"resolution_notes,omitempty"`
	LastResolvedBy  string `json:"last_resolved_by,omitempty"`

	// AvgResolutionMins is a rolling average of how long occurrences of this
	// fingerprint take to resolve.
	AvgResolutionMins *int `json:"avg_resolution_mins,omitempty"`

	AssigneeUserID string `json:"assignee_user_id,omitempty"`

	// VelocityPerHour is the occurrence rate over the trailing hour, used by
	// dashboards for impact estimation.
	VelocityPerHour *float64 `json:"velocity_per_hour,omitempty"`

	// UserCount is the maximum affected-user count reported across
	// occurrences.
	UserCount *int `json:"user_count,omitempty"`
}

// NewAlertGroup creates an OPEN group from the first occurrence of a
// fingerprint.
func NewAlertGroup(workspaceID string, alert *CanonicalAlert) *AlertGroup {
	return &AlertGroup{
		WorkspaceID: workspaceID,
		Fingerprint: alert.Fingerprint,
		Title:       alert.Title,
		Project:     alert.Project,
		Environment: alert.Environment,
		Severity:    alert.Severity,
		Status:      GroupStatusOpen,
		Count:       1,
		FirstSeenAt: alert.OccurredAt,
		LastSeenAt:  alert.OccurredAt,
		UserCount:   alert.UserCount,
	}
}

// ApplyOccurrence folds a repeat occurrence into the group: bumps the count,
// advances lastSeenAt, wakes a snoozed group, and upgrades severity when the
// incoming occurrence ranks higher.
func (g *AlertGroup) ApplyOccurrence(alert *CanonicalAlert) {
	g.Count++
	if alert.OccurredAt.After(g.LastSeenAt) {
		g.LastSeenAt = alert.OccurredAt
	}
	if g.Status == GroupStatusSnoozed {
		g.Status = GroupStatusOpen
		g.SnoozeUntil = nil
	}
	if alert.Severity.Rank() > g.Severity.Rank() {
		g.Severity = alert.Severity
	}
	if alert.UserCount != nil && (g.UserCount == nil || *alert.UserCount > *g.UserCount) {
		c := *alert.UserCount
		g.UserCount = &c
	}
}

// Acknowledge transitions the group to ACK. Acknowledging an already-handled
// group is a no-op.
func (g *AlertGroup) Acknowledge(userID string) bool {
	if g.Status == GroupStatusAck || g.Status == GroupStatusResolved {
		return false
	}
	g.Status = GroupStatusAck
	if userID != "" {
		g.AssigneeUserID = userID
	}
	return true
}

// Resolve transitions the group to the terminal RESOLVED state, recording
// resolution metadata and folding the resolution time into the rolling
// average.
func (g *AlertGroup) Resolve(now time.Time, notes, resolvedBy string) bool {
	if g.Status == GroupStatusResolved {
		return false
	}
	g.Status = GroupStatusResolved
	g.ResolvedAt = &now
	if notes != "" {
		g.ResolutionNotes = notes
	}
	if resolvedBy != "" {
		g.LastResolvedBy = resolvedBy
	}

	resolutionMins := int(now.Sub(g.LastSeenAt).Minutes() + 0.5)
	if resolutionMins < 0 {
		resolutionMins = 0
	}
	if g.AvgResolutionMins != nil {
		avg := (*g.AvgResolutionMins + resolutionMins + 1) / 2
		g.AvgResolutionMins = &avg
	} else {
		g.AvgResolutionMins = &resolutionMins
	}
	return true
}

// Snooze mutes an OPEN or ACK group until now+duration.
func (g *AlertGroup) Snooze(now time.Time, duration time.Duration) bool {
	if g.Status == GroupStatusResolved {
		return false
	}
	until := now.Add(duration)
	g.Status = GroupStatusSnoozed
	g.SnoozeUntil = &until
	return true
}

// Reopen brings a resolved group back to OPEN for a new occurrence (used when
// the reopen-on-recurrence policy is enabled).
func (g *AlertGroup) Reopen() {
	g.Status = GroupStatusOpen
	g.ResolvedAt = nil
	g.SnoozeUntil = nil
}

// GroupFilter provides filtering options for listing alert groups.
type GroupFilter struct {
	WorkspaceID string
	Status      GroupStatus
	Project     string
	Environment string
	Limit       int
	Offset      int
}
