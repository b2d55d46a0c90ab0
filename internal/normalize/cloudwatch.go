package normalize

import (
	"encoding/json"
	"strings"

	"signalcraft-go/internal/domain"
)

// normalizeCloudWatch maps an alarm notification. Alarms usually arrive
// wrapped in an SNS envelope whose Message field is a JSON string; direct
// alarm JSON is accepted too.
func normalizeCloudWatch(payload map[string]any) (*domain.CanonicalAlert, error) {
	alarm := payload
	if msg, ok := payload["Message"].(string); ok && msg != "" {
		inner := map[string]any{}
		if err := json.Unmarshal([]byte(msg), &inner); err == nil {
			alarm = inner
		}
	}

	alarmName := firstString(alarm["AlarmName"], alarm["alarmName"])
	if alarmName == "" {
		return nil, &domain.ValidationError{Msg: "missing cloudwatch alarm name"}
	}

	stateChange := firstString(alarm["StateChangeTime"], payload["Timestamp"])
	sourceEventID := str(payload["MessageId"])
	if sourceEventID == "" {
		sourceEventID = alarmName + ":" + stateChange
	}

	state := strings.ToUpper(str(alarm["NewStateValue"]))

	project := "aws"
	if trigger, ok := alarm["Trigger"].(map[string]any); ok {
		if ns := str(trigger["Namespace"]); ns != "" {
			project = ns
		}
	}

	tags := map[string]string{}
	if region := str(alarm["Region"]); region != "" {
		tags["region"] = region
	}
	if state != "" {
		tags["state"] = state
	}

	return &domain.CanonicalAlert{
		Source:        SourceCloudWatch,
		SourceEventID: sourceEventID,
		Project:       project,
		Environment:   "unknown",
		Severity:      mapCloudWatchSeverity(state),
		Fingerprint:   SourceCloudWatch + ":" + alarmName,
		Title:         alarmName,
		Description:   str(alarm["NewStateReason"]),
		Tags:          tags,
		OccurredAt:    parseTimestamp(firstOf(alarm["StateChangeTime"], payload["Timestamp"])),
		Resolved:      state == "OK",
	}, nil
}

func mapCloudWatchSeverity(state string) domain.Severity {
	switch state {
	case "ALARM":
		return domain.SeverityHigh
	case "INSUFFICIENT_DATA":
		return domain.SeverityMedium
	case "OK":
		return domain.SeverityLow
	default:
		return domain.SeverityInfo
	}
}
