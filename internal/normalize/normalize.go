// Package normalize maps source-specific webhook payloads into the canonical
// alert shape. Normalizers are pure: no I/O, no shared state, and identical
// input always yields an identical fingerprint and source event ID.
package normalize

import (
	"encoding/json"
	"strings"

	"signalcraft-go/internal/domain"
)

// Canonical source identifiers accepted by the ingest surface.
const (
	SourceSentry     = "sentry"
	SourceDatadog    = "datadog"
	SourceCloudWatch = "aws-cloudwatch"
	SourcePrometheus = "prometheus"
	SourceGrafana    = "grafana"
	SourceGeneric    = "generic"
)

// Normalize maps a raw payload from the named source into a CanonicalAlert.
// It returns a ValidationError only when the source's unique event identifier
// cannot be recovered; every other missing field degrades to a documented
// default. Unknown sources fall through to the generic normalizer.
func Normalize(source string, raw []byte) (*domain.CanonicalAlert, error) {
	payload := map[string]any{}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, &domain.ValidationError{Msg: "payload is not a JSON object"}
	}

	switch strings.ToLower(source) {
	case SourceSentry:
		return normalizeSentry(payload)
	case SourceDatadog:
		return normalizeDatadog(payload)
	case SourceCloudWatch, "cloudwatch":
		return normalizeCloudWatch(payload)
	case SourcePrometheus, "alertmanager":
		return normalizeAlertmanager(payload)
	case SourceGrafana:
		return normalizeGrafana(payload)
	default:
		return normalizeGeneric(source, payload)
	}
}
