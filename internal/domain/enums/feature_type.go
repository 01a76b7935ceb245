package enums

import "strings"

// FeatureType identifies a metered premium feature. Every credit
// balance and ledger entry is keyed by one of these values.
type FeatureType string

const (
	FeatureCompatibility FeatureType = "compatibility"
	FeatureBirthChart    FeatureType = "birth_chart"
	FeatureMoonReading   FeatureType = "moon_reading"
)

// AllFeatureTypes lists every metered feature in a stable order.
func AllFeatureTypes() []FeatureType {
	return []FeatureType{FeatureCompatibility, FeatureBirthChart, FeatureMoonReading}
}

// ParseFeatureType accepts the canonical value and the URL spellings
// used by the reading routes ("birth-chart", "moon").
func ParseFeatureType(raw string) (FeatureType, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(FeatureCompatibility):
		return FeatureCompatibility, true
	case string(FeatureBirthChart), "birth-chart":
		return FeatureBirthChart, true
	case string(FeatureMoonReading), "moon":
		return FeatureMoonReading, true
	default:
		return "", false
	}
}
