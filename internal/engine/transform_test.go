package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"provident-certs/internal/models"
)

func TestTransformNilShortCircuits(t *testing.T) {
	for _, kind := range []TransformKind{
		TransformNone, TransformConcatSpace, TransformUpper, TransformDatetime,
		TransformDeviceCount, TransformItemNumber, TransformName,
		TransformDeviceArray, TransformCommPathLabel, TransformCommPathPhrase,
	} {
		assert.Equal(t, "", Transform(nil, kind), "kind %s", kind)
	}
}

func TestTransformBasicKinds(t *testing.T) {
	tests := []struct {
		name  string
		value any
		kind  TransformKind
		want  any
	}{
		{"none passes through", "Acme Corp", TransformNone, "Acme Corp"},
		{"none stringifies non-string", 42, TransformNone, "42"},
		{"concat joins parts", []string{"John", "Smith"}, TransformConcatSpace, "John Smith"},
		{"concat skips empties", []any{"", "Smith"}, TransformConcatSpace, "Smith"},
		{"concat on scalar stringifies", "solo", TransformConcatSpace, "solo"},
		{"upper", "v6e 2e9", TransformUpper, "V6E 2E9"},
		{"item number extracted", "Services Plan [12] Gold", TransformItemNumber, "12"},
		{"item number absent", "Services Plan", TransformItemNumber, ""},
		{"name strips bracket suffix", "Services Plan [12] Gold", TransformName, "Services Plan"},
		{"name without suffix untouched", "Services Plan", TransformName, "Services Plan"},
		{"unknown kind stringifies", 7, TransformKind("MYSTERY"), "7"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Transform(tt.value, tt.kind))
		})
	}
}

func TestTransformDatetime(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"2025-06-03", "June 3, 2025 12:00 AM"},
		{"2025-06-03T14:05:00", "June 3, 2025 2:05 PM"},
		{"2025-06-03T14:05:00Z", "June 3, 2025 2:05 PM"},
		{"not-a-date", "not-a-date"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Transform(tt.in, TransformDatetime), "input %q", tt.in)
	}
}

func TestTransformTimestampPhrase(t *testing.T) {
	tests := []struct {
		now  time.Time
		want string
	}{
		{time.Date(2025, time.June, 3, 14, 5, 0, 0, time.UTC), "June 3rd, 2025 at 2:05pm"},
		{time.Date(2025, time.June, 1, 9, 0, 0, 0, time.UTC), "June 1st, 2025 at 9:00am"},
		{time.Date(2025, time.June, 2, 12, 0, 0, 0, time.UTC), "June 2nd, 2025 at 12:00pm"},
		{time.Date(2025, time.June, 11, 0, 15, 0, 0, time.UTC), "June 11th, 2025 at 12:15am"},
		{time.Date(2025, time.June, 12, 8, 30, 0, 0, time.UTC), "June 12th, 2025 at 8:30am"},
		{time.Date(2025, time.June, 13, 8, 30, 0, 0, time.UTC), "June 13th, 2025 at 8:30am"},
		{time.Date(2025, time.June, 21, 8, 30, 0, 0, time.UTC), "June 21st, 2025 at 8:30am"},
		{time.Date(2025, time.June, 22, 8, 30, 0, 0, time.UTC), "June 22nd, 2025 at 8:30am"},
		{time.Date(2025, time.December, 24, 23, 59, 0, 0, time.UTC), "December 24th, 2025 at 11:59pm"},
	}
	for _, tt := range tests {
		got := TransformAt("ignored", TransformTimestamp, tt.now)
		assert.Equal(t, tt.want, got)
	}
}

func TestTransformDeviceCount(t *testing.T) {
	assert.Equal(t, 3, Transform([]string{"a", "b", "c"}, TransformDeviceCount))
	assert.Equal(t, 2, Transform([]any{"a", "b"}, TransformDeviceCount))
	assert.Equal(t, 1, Transform([]models.Device{{Description: "Door Contact"}}, TransformDeviceCount))
	assert.Equal(t, 0, Transform([]models.DeviceZone{}, TransformDeviceCount))
	assert.Equal(t, 0, Transform("not a list", TransformDeviceCount))
}

func TestTransformDeviceArray(t *testing.T) {
	list := []any{"a", "b"}
	assert.Equal(t, list, Transform(list, TransformDeviceArray))
	assert.Equal(t, []any{}, Transform("scalar", TransformDeviceArray))
}

func TestTransformCommPathLabel(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"01", "BLINK mesh radio"},
		{"02", "cellular via Alarmnet"},
		{"04", "analog telephone line"},
		{"06", "cellular via alarm.com"},
		{"13", "BLINK mesh radio"},
		{"BLINK radio unit", "BLINK mesh radio"},
		{"GSM backup", "cellular connection"},
		{"Cellular LTE", "cellular connection"},
		{"Telephone line", "analog telephone line"},
		{"POTS phone", "analog telephone line"},
		{"99", "99"},
		{"fiber", "fiber"},
		{"", ""},
		{"  ", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Transform(tt.in, TransformCommPathLabel), "input %q", tt.in)
	}
}

func TestTransformCommPathPhrase(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  string
	}{
		{"both wireless codes", []any{"01", "02"}, "Redundant Wireless"},
		{"one wireless code", []any{"01", "04"}, "GSM Only"},
		{"neither wireless codes", []any{"04", "04"}, ""},
		{"both wireless", []any{"blink radio", "cellular backup"}, "Redundant Wireless"},
		{"one wireless", []any{"gsm module", "phone line"}, "GSM Only"},
		{"one wireless one empty", []any{"blink", ""}, "GSM Only"},
		{"neither wireless", []any{"phone line", "internet"}, ""},
		{"both empty", []any{"", ""}, ""},
		{"single element", []any{"blink"}, ""},
		{"scalar", "blink", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Transform(tt.value, TransformCommPathPhrase))
		})
	}
}

func TestParseISODate(t *testing.T) {
	got, err := parseISODate("2025-06-03")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, time.June, 3, 0, 0, 0, 0, time.UTC), got)

	_, err = parseISODate("06/03/2025")
	require.Error(t, err)
}
