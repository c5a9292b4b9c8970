package numeric

import "strings"

// Canonical unit tables. Mass converts to mg, volume to ml, time to days;
// scalar multipliers collapse to a bare count.
var (
	massToMg = map[string]float64{
		"mcg": 0.001, "ug": 0.001, "µg": 0.001, "microgram": 0.001,
		"mg": 1, "milligram": 1,
		"g": 1000, "gram": 1000,
		"kg": 1e6, "kilogram": 1e6,
	}

	volumeToMl = map[string]float64{
		"ml": 1, "milliliter": 1, "cc": 1,
		"l": 1000, "liter": 1000, "litre": 1000,
		"dl": 100, "deciliter": 100,
	}

	timeToDays = map[string]float64{
		"day": 1, "week": 7, "month": 30, "year": 365,
	}

	multipliers = map[string]float64{
		"k": 1e3, "thousand": 1e3,
		"m": 1e6, "million": 1e6, "mm": 1e6, // financial shorthand: MM = million
		"b": 1e9, "billion": 1e9, "bn": 1e9,
		"t": 1e12, "trillion": 1e12, "tn": 1e12,
	}
)

// Normalize converts a value+unit to canonical form. Unrecognized units
// pass through lowercased.
func Normalize(value float64, unit string) (float64, string) {
	u := strings.TrimSpace(strings.ToLower(unit))
	u = strings.TrimRight(u, "s.")

	if f, ok := massToMg[u]; ok {
		return value * f, "mg"
	}
	if f, ok := volumeToMl[u]; ok {
		return value * f, "ml"
	}
	if f, ok := timeToDays[u]; ok {
		return value * f, "days"
	}
	if f, ok := multipliers[u]; ok {
		return value * f, "units"
	}
	if u == "%" || u == "percent" || u == "pct" {
		return value, "%"
	}
	return value, u
}
