package normalize

import (
	"strings"

	"signalcraft-go/internal/domain"
)

// normalizeSentry maps an error-tracker webhook. The interesting event body
// may sit at the top level, under "event", or under "data.event" depending on
// the webhook variant.
func normalizeSentry(payload map[string]any) (*domain.CanonicalAlert, error) {
	data := asMap(payload["data"])
	event := payload
	if m, ok := payload["event"].(map[string]any); ok {
		event = m
	} else if m, ok := data["event"].(map[string]any); ok {
		event = m
	}

	sourceEventID := firstString(event["event_id"], payload["event_id"], payload["id"], data["event_id"])
	if sourceEventID == "" {
		return nil, &domain.ValidationError{Msg: "missing sentry event id"}
	}

	project := firstString(payload["project_slug"], payload["project"], payload["project_name"])
	if project == "" {
		project = "unknown"
	}

	tags := parseTags(event["tags"])
	if len(tags) == 0 {
		tags = parseTags(payload["tags"])
	}

	environment := firstString(event["environment"], payload["environment"])
	if environment == "" {
		environment = tags["environment"]
	}
	if environment == "" {
		environment = "unknown"
	}

	title := firstString(event["title"], payload["title"])
	if title == "" {
		title = "Sentry Issue"
	}

	return &domain.CanonicalAlert{
		Source:        SourceSentry,
		SourceEventID: sourceEventID,
		Project:       project,
		Environment:   environment,
		Severity:      mapSentrySeverity(firstString(event["level"], payload["level"])),
		Fingerprint:   sentryFingerprint(event, title, sourceEventID),
		Title:         title,
		Description:   firstString(event["message"], payload["message"], event["culprit"]),
		Tags:          tags,
		OccurredAt:    parseTimestamp(firstOf(event["timestamp"], payload["timestamp"])),
		Link:          str(payload["url"]),
		UserCount:     sentryUserCount(payload, event),
		Resolved:      isSentryResolved(payload, event),
	}, nil
}

// mapSentrySeverity maps the tracker's level token onto the canonical scale.
func mapSentrySeverity(level string) domain.Severity {
	switch strings.ToLower(level) {
	case "fatal":
		return domain.SeverityCritical
	case "error":
		return domain.SeverityHigh
	case "warning":
		return domain.SeverityMedium
	case "info":
		return domain.SeverityLow
	case "debug":
		return domain.SeverityInfo
	default:
		return domain.SeverityInfo
	}
}

// sentryFingerprint prefers the explicit fingerprint the tracker computed;
// an array joins with "|", a scalar passes through, and the fallback is
// title:eventID.
func sentryFingerprint(event map[string]any, title, eventID string) string {
	fp := event["fingerprint"]
	if fp == nil {
		fp = event["fingerprint_hash"]
	}
	if parts, ok := fp.([]any); ok && len(parts) > 0 {
		return joinFingerprint(parts)
	}
	if s := str(fp); s != "" {
		return s
	}
	return title + ":" + eventID
}

// sentryUserCount pulls the affected-user count for impact estimation; the
// tracker reports it in several locations.
func sentryUserCount(payload, event map[string]any) *int {
	for _, v := range []any{payload["user_count"], event["user_count"], payload["userCount"], event["userCount"]} {
		if n := intPtr(v); n != nil {
			return n
		}
	}
	if users, ok := payload["users"].([]any); ok {
		n := len(users)
		return &n
	}
	if users, ok := event["users"].([]any); ok {
		n := len(users)
		return &n
	}
	return nil
}

func isSentryResolved(payload, event map[string]any) bool {
	status := strings.ToLower(firstString(event["status"], payload["status"]))
	return status == "resolved" || status == "closed" || status == "ok"
}

// firstOf returns the first non-nil value, preserving type for timestamp
// parsing.
func firstOf(values ...any) any {
	for _, v := range values {
		if v != nil {
			return v
		}
	}
	return nil
}
