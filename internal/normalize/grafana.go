package normalize

import (
	"strings"

	"signalcraft-go/internal/domain"
)

// normalizeGrafana maps a Grafana alerting webhook, covering both legacy
// (ruleName/state) and unified (alerts/status) payload shapes.
func normalizeGrafana(payload map[string]any) (*domain.CanonicalAlert, error) {
	alert := pickAlert(payload)
	labels := asMap(alert["labels"])
	annotations := asMap(alert["annotations"])

	ruleName := firstString(labels["alertname"], payload["ruleName"], payload["title"])
	if ruleName == "" {
		return nil, &domain.ValidationError{Msg: "missing grafana rule name"}
	}

	sourceEventID := firstString(alert["fingerprint"], payload["id"], payload["ruleId"])
	if sourceEventID == "" {
		sourceEventID = ruleName + ":" + str(alert["startsAt"])
	}

	tags := map[string]string{}
	for k, v := range labels {
		tags[k] = str(v)
	}
	for k, v := range parseTags(payload["tags"]) {
		tags[k] = v
	}

	project := firstString(labels["service"], labels["job"], tags["project"])
	if project == "" {
		project = "grafana"
	}
	environment := firstString(labels["env"], labels["environment"], tags["env"])
	if environment == "" {
		environment = "unknown"
	}

	title := firstString(annotations["summary"], payload["title"], payload["ruleName"])
	if title == "" {
		title = ruleName
	}

	return &domain.CanonicalAlert{
		Source:        SourceGrafana,
		SourceEventID: sourceEventID,
		Project:       project,
		Environment:   environment,
		Severity:      domain.SeverityFromToken(str(labels["severity"])),
		Fingerprint:   SourceGrafana + ":" + ruleName,
		Title:         title,
		Description:   firstString(annotations["description"], payload["message"]),
		Tags:          tags,
		OccurredAt:    parseTimestamp(alert["startsAt"]),
		Link:          firstString(payload["ruleUrl"], payload["externalURL"], alert["generatorURL"]),
		Resolved:      isGrafanaResolved(payload),
	}, nil
}

func isGrafanaResolved(payload map[string]any) bool {
	status := strings.ToLower(firstString(payload["status"], payload["state"]))
	return status == "ok" || status == "resolved"
}
