package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"provident-certs/internal/models"
)

func TestClassifyAllCategoriesPresent(t *testing.T) {
	grouped := Classify(nil)
	require.Len(t, grouped, len(Categories()))
	for _, cat := range Categories() {
		devices, ok := grouped[cat]
		require.True(t, ok, "category %s missing", cat)
		assert.Empty(t, devices)
	}
}

func TestClassifySubtypeOverrideWins(t *testing.T) {
	// Equipment type 5 alone would classify as NonRelaySmoke, but the
	// sump subtype is the stronger signal.
	d := models.Device{Description: "Sump Pit", EquipmentType: "5", EquipmentSubtype: "318"}
	grouped := Classify([]models.Device{d})
	assert.Equal(t, []models.Device{d}, grouped[CategorySump])
	assert.Empty(t, grouped[CategoryNonRelaySmoke])
}

func TestClassifyEquipmentTypeRules(t *testing.T) {
	tests := []struct {
		equipType string
		want      Category
	}{
		{"1", CategoryPerimeter},
		{"2", CategoryMotion},
		{"19", CategoryGlassbreak},
		{"54", CategoryShockVibration},
		{"9", CategoryPanicAlert},
		{"34", CategoryPanicAlert},
		{"104", CategoryPanicAlert},
		{"124", CategoryTamper},
		{"5", CategoryNonRelaySmoke},
		{"53", CategoryNonRelaySmoke},
		{"8", CategoryHeat},
		{"6", CategoryCO},
		{"16", CategoryFlood},
	}
	for _, tt := range tests {
		d := models.Device{Description: "Device", EquipmentType: tt.equipType}
		grouped := Classify([]models.Device{d})
		assert.Len(t, grouped[tt.want], 1, "type %s should land in %s", tt.equipType, tt.want)
	}
}

func TestClassifyTrimsCodes(t *testing.T) {
	d := models.Device{Description: "Front Door", EquipmentType: " 1 ", EquipmentSubtype: " "}
	grouped := Classify([]models.Device{d})
	assert.Len(t, grouped[CategoryPerimeter], 1)
}

func TestClassifySmokeExclusions(t *testing.T) {
	tests := []struct {
		name   string
		device models.Device
		want   Category // "" means unclassified
	}{
		{
			"plain smoke stays",
			models.Device{Description: "Smoke Detector", EquipmentType: "5"},
			CategoryNonRelaySmoke,
		},
		{
			"relay smoke excluded",
			models.Device{Description: "Smoke Relay Panel", EquipmentType: "5"},
			"",
		},
		{
			"120v smoke excluded",
			models.Device{Description: "120V Smoke", EquipmentType: "53"},
			"",
		},
		{
			"sensor group 48 smoke falls to sprinkler",
			models.Device{Description: "Smoke Detector", EquipmentType: "5", SensorGroup: "48"},
			CategorySprinkler,
		},
		{
			"sensor group 48 heat falls to sprinkler",
			models.Device{Description: "Heat Detector", EquipmentType: "8", SensorGroup: "48"},
			CategorySprinkler,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			grouped := Classify([]models.Device{tt.device})
			total := 0
			for cat, devices := range grouped {
				total += len(devices)
				if len(devices) > 0 {
					assert.Equal(t, tt.want, cat)
				}
			}
			if tt.want == "" {
				assert.Zero(t, total, "device should be unclassified")
			} else {
				assert.Equal(t, 1, total)
			}
		})
	}
}

func TestClassifySensorGroup48Fallback(t *testing.T) {
	// No subtype and no type rule, but the sprinkler circuit claims it.
	d := models.Device{Description: "Riser Supervisory", EquipmentType: "77", SensorGroup: "48"}
	grouped := Classify([]models.Device{d})
	assert.Len(t, grouped[CategorySprinkler], 1)
}

func TestClassifyUnmatchedDropped(t *testing.T) {
	d := models.Device{Description: "Mystery Widget", EquipmentType: "77"}
	grouped := Classify([]models.Device{d})
	for cat, devices := range grouped {
		assert.Empty(t, devices, "category %s", cat)
	}
}

func TestClassifySortsByDescriptionIgnoringZoneNumber(t *testing.T) {
	devices := []models.Device{
		{Description: "12 Warehouse Door", EquipmentType: "1"},
		{Description: "3 Back Door", EquipmentType: "1"},
		{Description: "front door", EquipmentType: "1"},
	}
	grouped := Classify(devices)
	got := make([]string, 0, 3)
	for _, d := range grouped[CategoryPerimeter] {
		got = append(got, d.Description)
	}
	assert.Equal(t, []string{"3 Back Door", "front door", "12 Warehouse Door"}, got)
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "Front Door", DisplayName(models.Device{Description: "3 Front Door"}))
	assert.Equal(t, "Front Door", DisplayName(models.Device{Description: "Front Door"}))
}
