// Package domain contains the core business entities and value objects for
// SignalCraft. These models represent the ubiquitous language of the alert
// routing domain.
package domain

import (
	"time"
)

// Severity is the canonical five-level severity scale every source payload is
// mapped onto.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
	SeverityLow      Severity = "LOW"
	SeverityInfo     Severity = "INFO"
)

// severityRank is the fixed total ordering used by ordinal rule comparisons.
// Higher number = more severe.
var severityRank = map[Severity]int{
	SeverityInfo:     1,
	SeverityLow:      2,
	SeverityMedium:   3,
	SeverityHigh:     4,
	SeverityCritical: 5,
}

// Rank returns the numeric rank of the severity, or 0 for unknown values.
func (s Severity) Rank() int {
	return SeverityRank(string(s))
}

// SeverityRank ranks a loosely-cased severity token, returning 0 for tokens
// that are not severities at all. Rule comparators rely on the 0 so that
// nonsense values never compare greater than INFO.
func SeverityRank(token string) int {
	switch upper(token) {
	case "CRITICAL", "FATAL":
		return severityRank[SeverityCritical]
	case "HIGH", "ERROR":
		return severityRank[SeverityHigh]
	case "MEDIUM", "MED", "WARNING":
		return severityRank[SeverityMedium]
	case "LOW":
		return severityRank[SeverityLow]
	case "INFO", "DEBUG":
		return severityRank[SeverityInfo]
	default:
		return 0
	}
}

// IsValid returns true if the severity is a known canonical value.
func (s Severity) IsValid() bool {
	switch s {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow, SeverityInfo:
		return true
	default:
		return false
	}
}

// SeverityFromToken maps loosely-cased severity tokens (including the "med"
// shorthand used by rule values) to a canonical Severity. Unknown tokens map
// to INFO.
func SeverityFromToken(token string) Severity {
	return Severity(normalizeSeverityToken(token))
}

func normalizeSeverityToken(token string) string {
	switch upper(token) {
	case "CRITICAL", "FATAL":
		return string(SeverityCritical)
	case "HIGH", "ERROR":
		return string(SeverityHigh)
	case "MEDIUM", "MED", "WARNING":
		return string(SeverityMedium)
	case "LOW":
		return string(SeverityLow)
	default:
		return string(SeverityInfo)
	}
}

// upper is a tiny ASCII uppercase helper; severity tokens are always ASCII.
func upper(s string) string {
	b := []byte(s)
	for i := range b {
		if b[i] >= 'a' && b[i] <= 'z' {
			b[i] -= 'a' - 'A'
		}
	}
	return string(b)
}

// CanonicalAlert is the single normalized shape every source payload is mapped
// into. It is immutable once produced by a normalizer; exactly one is created
// per raw event and it is discarded after the grouping step consumes it.
type CanonicalAlert struct {
	// Source identifies the integration that produced the raw payload
	// (e.g. "sentry", "datadog", "aws-cloudwatch").
	Source string `json:"source"`

	// SourceEventID is the source's unique identifier for this occurrence.
	// It is the one field normalization cannot degrade: a payload without it
	// is rejected with a ValidationError.
	SourceEventID string `json:"source_event_id"`

	// Project is the service/project the alert belongs to.
	Project string `json:"project"`

	// Environment the alert fired in. Defaults to "unknown".
	Environment string `json:"environment"`

	// Severity on the canonical five-level scale.
	Severity Severity `json:"severity"`

	// Fingerprint is the stable identity used to decide whether two
	// occurrences represent the same problem.
	Fingerprint string `json:"fingerprint"`

	// Title is a human-readable summary.
	Title string `json:"title"`

	// Description carries the longer message body, if any.
	Description string `json:"description"`

	// Tags is a flat key/value map parsed from whichever shape the source
	// uses (delimited string, "k:v" array, pair array, or object).
	Tags map[string]string `json:"tags"`

	// OccurredAt is when the source says the event happened. Unparsable or
	// missing timestamps default to the time of normalization.
	OccurredAt time.Time `json:"occurred_at"`

	// Link points back at the source's own view of the event, if provided.
	Link string `json:"link,omitempty"`

	// UserCount is the number of affected users reported by the source, for
	// impact estimation. Nil when the source does not report one.
	UserCount *int `json:"user_count,omitempty"`

	// Resolved is set when the payload reports a recovery rather than a new
	// problem; the pipeline resolves the matching group instead of routing.
	Resolved bool `json:"resolved,omitempty"`
}
