package engine

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"provident-certs/internal/models"
)

// TransformKind selects how a raw CRM property value is normalized for
// the merge document. The set is closed; unknown kinds stringify.
type TransformKind string

const (
	TransformNone           TransformKind = "NONE"
	TransformConcatSpace    TransformKind = "CONCAT_SPACE"
	TransformUpper          TransformKind = "UPPER"
	TransformDatetime       TransformKind = "DATETIME_FORMAT"
	TransformTimestamp      TransformKind = "TIMESTAMP_FORMAT"
	TransformDeviceCount    TransformKind = "DEVICE_COUNT"
	TransformItemNumber     TransformKind = "EXTRACT_ITEM_NUMBER"
	TransformName           TransformKind = "EXTRACT_NAME"
	TransformDeviceArray    TransformKind = "DEVICE_ARRAY"
	TransformCommPathLabel  TransformKind = "COMM_PATH_LABEL"
	TransformCommPathPhrase TransformKind = "COMM_PATH_PHRASE"
)

var (
	itemNumberRe    = regexp.MustCompile(`\[(\d+)\]`)
	nameSuffixRe    = regexp.MustCompile(`\s*\[\d+\].*$`)
	leadingDigitsRe = regexp.MustCompile(`^\d+\s+`)
)

// Communication-path code table. Unrecognized codes fall back to the
// substring heuristics below, then to the raw value.
var commPathLabels = map[string]string{
	"01": "BLINK mesh radio",
	"02": "cellular via Alarmnet",
	"03": "cellular via DSC Integration Bridge",
	"04": "analog telephone line",
	"05": "cellular connection",
	"06": "cellular via alarm.com",
	"07": "internet via Alarmnet",
	"08": "internet via DSC",
	"09": "BLINK mesh radio",
	"13": "BLINK mesh radio",
}

var wirelessHints = []string{"blink", "gsm", "cellular"}

// commPathLabel resolves a path code to its human label. Unknown values
// fall back to keyword matching, then pass through untouched.
func commPathLabel(raw string) string {
	code := strings.ToLower(strings.TrimSpace(raw))
	if code == "" {
		return ""
	}
	if label, ok := commPathLabels[code]; ok {
		return label
	}
	switch {
	case strings.Contains(code, "blink"):
		return "BLINK mesh radio"
	case strings.Contains(code, "gsm"), strings.Contains(code, "cellular"):
		return "cellular connection"
	case strings.Contains(code, "phone"), strings.Contains(code, "telephone"):
		return "analog telephone line"
	}
	return raw
}

// Transform applies kind to value using the wall clock for the
// timestamp kind.
func Transform(value any, kind TransformKind) any {
	return TransformAt(value, kind, time.Now())
}

// TransformAt is Transform with an injected clock, keeping callers that
// need reproducible output (and tests) pure.
func TransformAt(value any, kind TransformKind, now time.Time) any {
	// Absence short-circuits before dispatch, whatever the kind.
	if value == nil {
		return ""
	}

	switch kind {
	case TransformNone:
		return stringify(value)

	case TransformConcatSpace:
		if list, ok := toStringList(value); ok {
			var parts []string
			for _, v := range list {
				if v != "" {
					parts = append(parts, v)
				}
			}
			return strings.Join(parts, " ")
		}
		return stringify(value)

	case TransformUpper:
		return strings.ToUpper(stringify(value))

	case TransformDatetime:
		s, ok := value.(string)
		if !ok {
			return stringify(value)
		}
		t, err := parseISODate(s)
		if err != nil {
			return s
		}
		return t.Format("January 2, 2006 3:04 PM")

	case TransformTimestamp:
		return timestampPhrase(now)

	case TransformDeviceCount:
		if n, ok := listLen(value); ok {
			return n
		}
		return 0

	case TransformItemNumber:
		m := itemNumberRe.FindStringSubmatch(stringify(value))
		if m == nil {
			return ""
		}
		return m[1]

	case TransformName:
		return strings.TrimSpace(nameSuffixRe.ReplaceAllString(stringify(value), ""))

	case TransformDeviceArray:
		if _, ok := listLen(value); ok {
			return value
		}
		return []any{}

	case TransformCommPathLabel:
		return commPathLabel(stringify(value))

	case TransformCommPathPhrase:
		// Numeric path codes resolve through the label table first, so
		// "01"/"02" count as wireless the same way their labels do.
		list, ok := toStringList(value)
		if !ok || len(list) < 2 {
			return ""
		}
		path1 := strings.ToLower(commPathLabel(list[0]))
		path2 := strings.ToLower(commPathLabel(list[1]))
		if path1 == "" && path2 == "" {
			return ""
		}
		w1 := containsAny(path1, wirelessHints)
		w2 := containsAny(path2, wirelessHints)
		switch {
		case w1 && w2:
			return "Redundant Wireless"
		case w1 || w2:
			return "GSM Only"
		}
		return ""
	}

	return stringify(value)
}

// timestampPhrase renders "June 3rd, 2025 at 2:05pm" style generation
// timestamps. Days 11-13 take "th" before the last-digit rule applies.
func timestampPhrase(t time.Time) string {
	day := t.Day()
	suffix := "th"
	if day%100 < 11 || day%100 > 13 {
		switch day % 10 {
		case 1:
			suffix = "st"
		case 2:
			suffix = "nd"
		case 3:
			suffix = "rd"
		}
	}
	clock := strings.ToLower(t.Format("3:04PM"))
	return fmt.Sprintf("%s %d%s, %d at %s", t.Month().String(), day, suffix, t.Year(), clock)
}

// parseISODate accepts the date shapes HubSpot emits for date and
// datetime properties.
func parseISODate(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date: %q", s)
}

func stringify(value any) string {
	if value == nil {
		return ""
	}
	if s, ok := value.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", value)
}

func toStringList(value any) ([]string, bool) {
	switch v := value.(type) {
	case []string:
		return v, true
	case []any:
		out := make([]string, len(v))
		for i, e := range v {
			out[i] = stringify(e)
		}
		return out, true
	}
	return nil, false
}

func listLen(value any) (int, bool) {
	switch v := value.(type) {
	case []string:
		return len(v), true
	case []any:
		return len(v), true
	case []models.Device:
		return len(v), true
	case []models.DeviceZone:
		return len(v), true
	}
	return 0, false
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
