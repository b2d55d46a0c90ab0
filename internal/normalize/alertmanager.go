package normalize

import (
	"strings"

	"signalcraft-go/internal/domain"
)

// normalizeAlertmanager maps a Prometheus Alertmanager group notification.
// The notification batches several alerts; the first still-firing one is
// normalized (falling back to the first alert when all have resolved).
func normalizeAlertmanager(payload map[string]any) (*domain.CanonicalAlert, error) {
	alert := pickAlert(payload)
	labels := asMap(alert["labels"])
	annotations := asMap(alert["annotations"])

	alertname := firstString(labels["alertname"], payload["groupKey"])
	if alertname == "" {
		return nil, &domain.ValidationError{Msg: "missing alertmanager alert name"}
	}

	sourceEventID := str(alert["fingerprint"])
	if sourceEventID == "" {
		sourceEventID = alertname + ":" + str(alert["startsAt"])
	}

	tags := map[string]string{}
	for k, v := range labels {
		tags[k] = str(v)
	}

	project := firstString(labels["service"], labels["job"])
	if project == "" {
		project = "prometheus"
	}
	environment := firstString(labels["env"], labels["environment"])
	if environment == "" {
		environment = "unknown"
	}

	title := firstString(annotations["summary"], annotations["title"])
	if title == "" {
		title = alertname
	}

	return &domain.CanonicalAlert{
		Source:        SourcePrometheus,
		SourceEventID: sourceEventID,
		Project:       project,
		Environment:   environment,
		Severity:      domain.SeverityFromToken(str(labels["severity"])),
		Fingerprint:   SourcePrometheus + ":" + alertname,
		Title:         title,
		Description:   str(annotations["description"]),
		Tags:          tags,
		OccurredAt:    parseTimestamp(alert["startsAt"]),
		Link:          str(alert["generatorURL"]),
		Resolved:      isAlertmanagerResolved(payload),
	}, nil
}

// pickAlert chooses the first non-resolved alert from the batch, or the
// first alert when every entry has resolved.
func pickAlert(payload map[string]any) map[string]any {
	alerts, ok := payload["alerts"].([]any)
	if !ok || len(alerts) == 0 {
		return payload
	}
	for _, item := range alerts {
		alert := asMap(item)
		if strings.ToLower(str(alert["status"])) != "resolved" {
			return alert
		}
	}
	return asMap(alerts[0])
}

// isAlertmanagerResolved reports a recovery: either the group status says
// resolved, or every batched alert does.
func isAlertmanagerResolved(payload map[string]any) bool {
	if strings.ToLower(str(payload["status"])) == "resolved" {
		return true
	}
	alerts, ok := payload["alerts"].([]any)
	if !ok || len(alerts) == 0 {
		return false
	}
	for _, item := range alerts {
		if strings.ToLower(str(asMap(item)["status"])) != "resolved" {
			return false
		}
	}
	return true
}
