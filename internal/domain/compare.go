package domain

import (
	"math"

	"github.com/verdantio/greenhouse-backend/internal/models"
)

// Tolerance is the half-width of the "close enough" band around a target
// setpoint, in the metric's native unit (°C, %RH, lux).
const Tolerance = 1.5

// Classification of an actual reading against its target.
const (
	WithinTolerance = "within-tolerance"
	Above           = "above"
	Below           = "below"
)

// Classify compares an actual reading against a target setpoint.
// Returns "" when either value is absent; no classification is emitted
// for an unconfigured target or a metric the module has never reported.
func Classify(target, actual *float64) string {
	if target == nil || actual == nil {
		return ""
	}
	diff := *actual - *target
	switch {
	case math.Abs(diff) <= Tolerance:
		return WithinTolerance
	case diff > 0:
		return Above
	default:
		return Below
	}
}

// CompareReadings classifies each of a module's tracked metrics against
// its setpoint. Metrics without both a target and a reading are omitted.
func CompareReadings(m *models.Module) map[string]string {
	out := make(map[string]string)
	if s := Classify(m.TargetTemperature, m.LastTemperature); s != "" {
		out["temperature"] = s
	}
	if s := Classify(m.TargetHumidity, m.LastHumidity); s != "" {
		out["humidity"] = s
	}
	if s := Classify(m.TargetLighting, m.LastLight); s != "" {
		out["light"] = s
	}
	return out
}

// ValidateSettings checks a partial settings update. Humidity is a
// percentage, lighting cannot be negative.
func ValidateSettings(s models.ModuleSettings) error {
	if s.TargetHumidity != nil && (*s.TargetHumidity < 0 || *s.TargetHumidity > 100) {
		return Validationf("target humidity must be between 0 and 100, got %v", *s.TargetHumidity)
	}
	if s.TargetLighting != nil && *s.TargetLighting < 0 {
		return Validationf("target lighting must not be negative, got %v", *s.TargetLighting)
	}
	return nil
}

// MaxSecondaryModules caps a greenhouse at one main plus three
// secondary modules.
const MaxSecondaryModules = 3

// ValidateComposition checks a greenhouse creation request shape: name
// present, secondary list within the cap, no duplicates, main not listed
// among secondaries. Ownership and attachment are checked transactionally
// by the store.
func ValidateComposition(name string, mainModuleID int64, secondaryModuleIDs []int64) error {
	if name == "" {
		return Validationf("greenhouse name must not be empty")
	}
	if len(secondaryModuleIDs) > MaxSecondaryModules {
		return Validationf("at most %d secondary modules allowed, got %d", MaxSecondaryModules, len(secondaryModuleIDs))
	}
	seen := make(map[int64]struct{}, len(secondaryModuleIDs))
	for _, id := range secondaryModuleIDs {
		if id == mainModuleID {
			return Validationf("module %d cannot be both main and secondary", id)
		}
		if _, dup := seen[id]; dup {
			return Validationf("duplicate secondary module %d", id)
		}
		seen[id] = struct{}{}
	}
	return nil
}
