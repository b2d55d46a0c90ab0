package normalize

import (
	"strings"

	"signalcraft-go/internal/domain"
)

// normalizeDatadog maps a monitor webhook. Tags carry most of the useful
// routing context (project, environment).
func normalizeDatadog(payload map[string]any) (*domain.CanonicalAlert, error) {
	sourceEventID := firstString(payload["id"], payload["event_id"])
	if sourceEventID == "" {
		return nil, &domain.ValidationError{Msg: "missing datadog event id"}
	}

	tags := parseTags(payload["tags"])

	project := tags["project"]
	if project == "" {
		project = tags["service"]
	}
	if project == "" {
		project = "datadog"
	}

	environment := tags["env"]
	if environment == "" {
		environment = tags["environment"]
	}
	if environment == "" {
		environment = "production"
	}

	status := strings.ToLower(firstString(payload["alert_type"], payload["status"]))
	if status == "" {
		status = "info"
	}

	title := firstString(payload["title"], payload["event_title"])
	if title == "" {
		title = "Datadog Alert"
	}

	return &domain.CanonicalAlert{
		Source:        SourceDatadog,
		SourceEventID: sourceEventID,
		Project:       project,
		Environment:   environment,
		Severity:      mapDatadogSeverity(status, strings.ToLower(str(payload["priority"]))),
		Fingerprint:   SourceDatadog + ":" + sourceEventID,
		Title:         title,
		Description:   firstString(payload["body"], payload["text"], payload["message"]),
		Tags:          tags,
		OccurredAt:    parseTimestamp(firstOf(payload["date"], payload["timestamp"])),
		Link:          firstString(payload["link"], payload["url"]),
		Resolved:      isDatadogResolved(status),
	}, nil
}

// mapDatadogSeverity folds the monitor's alert type and priority into one
// severity.
func mapDatadogSeverity(status, priority string) domain.Severity {
	switch {
	case status == "error" || priority == "p1":
		return domain.SeverityCritical
	case status == "warning" || priority == "p2":
		return domain.SeverityHigh
	case status == "success":
		return domain.SeverityLow
	default:
		return domain.SeverityMedium
	}
}

func isDatadogResolved(status string) bool {
	switch status {
	case "success", "recovery", "resolved", "ok":
		return true
	default:
		return false
	}
}
