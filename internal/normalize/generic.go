package normalize

import (
	"strings"

	"signalcraft-go/internal/domain"
)

// normalizeGeneric maps a minimal custom webhook. Callers must supply an
// event identifier; everything else degrades to defaults.
func normalizeGeneric(source string, payload map[string]any) (*domain.CanonicalAlert, error) {
	sourceEventID := firstString(payload["id"], payload["event_id"], payload["dedup_key"])
	if sourceEventID == "" {
		return nil, &domain.ValidationError{Msg: "missing event id"}
	}

	if source == "" {
		source = SourceGeneric
	}
	source = strings.ToLower(source)

	title := str(payload["title"])
	if title == "" {
		title = "Alert"
	}

	fingerprint := str(payload["fingerprint"])
	if fingerprint == "" {
		fingerprint = title + ":" + sourceEventID
	}

	project := firstString(payload["project"], payload["service"])
	if project == "" {
		project = "unknown"
	}
	environment := firstString(payload["environment"], payload["env"])
	if environment == "" {
		environment = "unknown"
	}

	return &domain.CanonicalAlert{
		Source:        source,
		SourceEventID: sourceEventID,
		Project:       project,
		Environment:   environment,
		Severity:      domain.SeverityFromToken(str(payload["severity"])),
		Fingerprint:   fingerprint,
		Title:         title,
		Description:   firstString(payload["message"], payload["description"]),
		Tags:          parseTags(payload["tags"]),
		OccurredAt:    parseTimestamp(firstOf(payload["occurred_at"], payload["timestamp"])),
		Link:          firstString(payload["link"], payload["url"]),
		UserCount:     intPtr(payload["user_count"]),
		Resolved:      strings.ToLower(str(payload["status"])) == "resolved",
	}, nil
}
