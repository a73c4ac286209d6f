package engine

import (
	"sort"
	"strings"

	"provident-certs/internal/models"
)

// Category is the inferred certificate grouping for a device. The set is
// closed; every classification result contains all of them as keys.
type Category string

const (
	CategoryPerimeter               Category = "Perimeter"
	CategoryMotion                  Category = "Motion"
	CategoryGlassbreak              Category = "Glassbreak"
	CategoryShockVibration          Category = "ShockVibration"
	CategoryPanicAlert              Category = "PanicAlert"
	CategoryTamper                  Category = "Tamper"
	CategoryNonRelaySmoke           Category = "NonRelaySmoke"
	CategorySprinkler               Category = "Sprinkler"
	CategoryHeat                    Category = "Heat"
	CategoryCO                      Category = "CO"
	CategoryFlood                   Category = "Flood"
	CategorySump                    Category = "Sump"
	Category120vSmoke               Category = "120vSmoke"
	CategoryGas                     Category = "Gas"
	CategoryHumidity                Category = "Humidity"
	CategoryIntegratedEnvironmental Category = "IntegratedEnvironmental"
	CategoryTemperature             Category = "Temperature"
	CategoryWaterflow               Category = "Waterflow"
)

// Categories returns the closed category set in template order.
func Categories() []Category {
	return []Category{
		CategoryPerimeter, CategoryMotion, CategoryGlassbreak,
		CategoryShockVibration, CategoryPanicAlert, CategoryTamper,
		CategoryNonRelaySmoke, CategorySprinkler, CategoryHeat,
		CategoryCO, CategoryFlood, CategorySump,
		Category120vSmoke, CategoryGas, CategoryHumidity,
		CategoryIntegratedEnvironmental, CategoryTemperature, CategoryWaterflow,
	}
}

// Subtype overrides. Subtype is a manually curated, more specific signal
// than the equipment-type code, so a subtype match wins outright.
var subtypeOverrides = map[string]Category{
	"318": CategorySump, "438": CategorySump, "439": CategorySump,
	"197": CategorySprinkler, "198": CategorySprinkler, "322": CategorySprinkler,
	"119": CategoryFlood, "120": CategoryFlood,
	"187": CategoryHeat, "188": CategoryHeat,
	"108": CategoryGlassbreak, "109": CategoryGlassbreak,
	"110": CategoryPerimeter, "111": CategoryPerimeter,
	"194": CategoryPerimeter, "195": CategoryPerimeter,
	"221": CategoryPerimeter, "222": CategoryPerimeter,
	"223": CategoryPerimeter, "224": CategoryPerimeter,
	"225": CategoryPerimeter,
	"159": CategoryCO, "167": CategoryCO,
}

// Equipment-type fallback rules. Raw equipment taxonomies are
// inconsistent across installation eras, so these only apply when no
// subtype override matched.
var equipmentTypeRules = map[string]Category{
	"1":   CategoryPerimeter,
	"2":   CategoryMotion,
	"19":  CategoryGlassbreak,
	"54":  CategoryShockVibration,
	"9":   CategoryPanicAlert,
	"34":  CategoryPanicAlert,
	"104": CategoryPanicAlert,
	"124": CategoryTamper,
	"5":   CategoryNonRelaySmoke,
	"53":  CategoryNonRelaySmoke,
	"8":   CategoryHeat,
	"6":   CategoryCO,
	"16":  CategoryFlood,
}

// sprinklerSensorGroup marks sprinkler supervisory circuits regardless
// of how the panel typed the device.
const sprinklerSensorGroup = "48"

// Classify groups devices into certificate categories. Every category
// key is present in the result, possibly empty. Devices that survive no
// rule are left out entirely.
func Classify(devices []models.Device) map[Category][]models.Device {
	grouped := make(map[Category][]models.Device, len(Categories()))
	for _, cat := range Categories() {
		grouped[cat] = []models.Device{}
	}

	for _, device := range devices {
		subtype := strings.TrimSpace(device.EquipmentSubtype)
		if cat, ok := subtypeOverrides[subtype]; ok {
			grouped[cat] = append(grouped[cat], device)
			continue
		}

		equipType := strings.TrimSpace(device.EquipmentType)
		matched := false
		if cat, ok := equipmentTypeRules[equipType]; ok && !excluded(cat, device) {
			grouped[cat] = append(grouped[cat], device)
			matched = true
		}

		if !matched && device.SensorGroup == sprinklerSensorGroup {
			grouped[CategorySprinkler] = append(grouped[CategorySprinkler], device)
		}
	}

	for cat := range grouped {
		sortByDescription(grouped[cat])
	}
	return grouped
}

// excluded reports devices a type rule matched but must not claim:
// relay-driven or 120v smokes are not "non-relay smoke", and sensor
// group 48 belongs to the sprinkler circuit whatever the type code says.
func excluded(cat Category, device models.Device) bool {
	switch cat {
	case CategoryNonRelaySmoke:
		desc := strings.ToLower(device.Description)
		return strings.Contains(desc, "relay") ||
			strings.Contains(desc, "120v") ||
			device.SensorGroup == sprinklerSensorGroup
	case CategoryHeat:
		return device.SensorGroup == sprinklerSensorGroup
	}
	return false
}

func sortByDescription(devices []models.Device) {
	sort.SliceStable(devices, func(i, j int) bool {
		return sortKey(devices[i]) < sortKey(devices[j])
	})
}

// sortKey drops the leading zone number ("3 Front Door" sorts as "front
// door") so the certificate lists read alphabetically.
func sortKey(d models.Device) string {
	return strings.ToLower(leadingDigitsRe.ReplaceAllString(d.Description, ""))
}

// DisplayName is the device name printed on the certificate: the
// description with its leading zone number stripped.
func DisplayName(d models.Device) string {
	return leadingDigitsRe.ReplaceAllString(d.Description, "")
}
