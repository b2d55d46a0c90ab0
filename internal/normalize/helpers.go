package normalize

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// asMap returns the value as a JSON object, or an empty map.
func asMap(v any) map[string]any {
	if m, ok := v.(map[string]any); ok {
		return m
	}
	return map[string]any{}
}

// str converts a scalar JSON value to its string form. Objects and arrays
// yield an empty string.
func str(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}

// firstString returns the first non-empty string among the values.
func firstString(values ...any) string {
	for _, v := range values {
		if s := str(v); s != "" {
			return s
		}
	}
	return ""
}

// intPtr extracts an integer from a JSON number or numeric string.
func intPtr(v any) *int {
	switch t := v.(type) {
	case float64:
		n := int(t)
		return &n
	case string:
		if n, err := strconv.Atoi(t); err == nil {
			return &n
		}
	}
	return nil
}

// parseTags flattens whichever tag shape the source uses into a string map:
// a delimited string ("env:prod, role:db"), an array of "k:v" strings, an
// array of [key, value] pairs, or a plain object.
func parseTags(v any) map[string]string {
	tags := map[string]string{}

	switch t := v.(type) {
	case string:
		for _, part := range strings.Split(t, ",") {
			addPair(tags, part)
		}
	case []any:
		for _, item := range t {
			switch entry := item.(type) {
			case string:
				addPair(tags, entry)
			case []any:
				if len(entry) >= 2 {
					if key := str(entry[0]); key != "" {
						tags[key] = str(entry[1])
					}
				}
			}
		}
	case map[string]any:
		for key, val := range t {
			tags[key] = str(val)
		}
	}
	return tags
}

func addPair(tags map[string]string, pair string) {
	key, val, ok := strings.Cut(pair, ":")
	if !ok {
		return
	}
	key = strings.TrimSpace(key)
	val = strings.TrimSpace(val)
	if key != "" && val != "" {
		tags[key] = val
	}
}

// parseTimestamp parses timestamps defensively: RFC3339 strings, common date
// layouts, and unix seconds or milliseconds. Anything unparsable yields the
// current time rather than an error.
func parseTimestamp(v any) time.Time {
	switch t := v.(type) {
	case string:
		if t == "" {
			return time.Now().UTC()
		}
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed
			}
		}
		if n, err := strconv.ParseFloat(t, 64); err == nil {
			return unixTime(n)
		}
	case float64:
		return unixTime(t)
	}
	return time.Now().UTC()
}

// unixTime interprets a numeric timestamp as milliseconds when it is too
// large to be seconds.
func unixTime(n float64) time.Time {
	if n > 1e12 {
		return time.UnixMilli(int64(n)).UTC()
	}
	return time.Unix(int64(n), 0).UTC()
}

// joinFingerprint joins explicit fingerprint parts the way error trackers
// send them, e.g. ["db", "timeout"] -> "db|timeout".
func joinFingerprint(parts []any) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, fmt.Sprint(p))
	}
	return strings.Join(out, "|")
}
