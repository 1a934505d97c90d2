// Package recommend maps anomaly events to operational recommendations
// through an ordered, declarative rule table. The first rule (by ascending
// priority) whose condition holds wins; rule ordering is a load-bearing
// contract. The engine always produces output for a valid event — when no
// rule matches, a generic investigate fallback is returned.
package recommend

import (
	"github.com/fieldwatch/fieldwatch/internal/types"
)

// Cond is a tagged-variant predicate over an anomaly event. Zero-valued
// fields are unset and match anything; set fields are ANDed together. A
// single interpreter (matches) evaluates every variant, keeping the rule
// table declarative and independently testable.
type Cond struct {
	// SensorType restricts the rule to one sensor stream.
	SensorType types.SensorType `yaml:"sensor_type,omitempty"`

	// Severities restricts to a set of severity buckets.
	Severities []types.Severity `yaml:"severities,omitempty"`

	// MinConfidence / MaxConfidence bound the event confidence.
	MinConfidence *float64 `yaml:"min_confidence,omitempty"`
	MaxConfidence *float64 `yaml:"max_confidence,omitempty"`

	// ValueBelow / ValueAbove test the triggering reading's value against
	// agronomic thresholds.
	ValueBelow *float64 `yaml:"value_below,omitempty"`
	ValueAbove *float64 `yaml:"value_above,omitempty"`

	// MeanBelow / MeanAbove test the window mean.
	MeanBelow *float64 `yaml:"mean_below,omitempty"`
	MeanAbove *float64 `yaml:"mean_above,omitempty"`

	// ChangeBelow / ChangeAbove test the percent change across the window.
	ChangeBelow *float64 `yaml:"change_below,omitempty"`
	ChangeAbove *float64 `yaml:"change_above,omitempty"`

	// Trend requires a specific window direction.
	Trend types.Trend `yaml:"trend,omitempty"`
}

// RuleEntry is one row of the rule table. Static configuration, loaded once
// at process start and read-only thereafter.
type RuleEntry struct {
	// Name labels the rule in logs and tests.
	Name string `yaml:"name"`

	// Priority orders evaluation; lower evaluates first.
	Priority int `yaml:"priority"`

	Cond Cond `yaml:"condition"`

	// Action is the recommended operational action.
	Action string `yaml:"action"`

	// Explanation is a template; event fields substitute into
	// {placeholder} slots, missing fields render as a placeholder rather
	// than failing.
	Explanation string `yaml:"explanation"`

	// ConfidenceBoost is added to the event confidence for the resulting
	// recommendation, clamped to [0, 1]. Negative values discount.
	ConfidenceBoost float64 `yaml:"confidence_boost,omitempty"`

	// ResultPriority is the severity attached to the recommendation.
	ResultPriority types.Severity `yaml:"result_priority"`
}

func fp(v float64) *float64 { return &v }

// DefaultRules returns the built-in agronomic rule table. Critical
// thresholds follow the ranges the plots are operated in: moisture normal
// 45-75% (critical 35/80), temperature 18-28°C (critical 10/32), humidity
// 45-75% (critical 30/85).
func DefaultRules() []RuleEntry {
	return []RuleEntry{
		{
			Name:     "moisture-drought-stress",
			Priority: 10,
			Cond:     Cond{SensorType: types.SensorMoisture, ValueBelow: fp(35)},
			Action:   "URGENT: Immediate irrigation required - crops under severe drought stress",
			Explanation: "Soil moisture critically low at {value}% on plot {plot_id} " +
				"(normal range 45-75%). Detected {timestamp} with confidence {confidence}, severity {severity}. " +
				"Crops are experiencing severe drought stress and may suffer permanent damage.",
			ConfidenceBoost: 0.15,
			ResultPriority:  types.SeverityHigh,
		},
		{
			Name:     "moisture-rapid-drop",
			Priority: 20,
			Cond:     Cond{SensorType: types.SensorMoisture, ChangeBelow: fp(-10)},
			Action:   "Check irrigation system immediately - possible failure or leak detected",
			Explanation: "Soil moisture on plot {plot_id} dropped {change_rate}% across the last window " +
				"(now {value}%). A decline this sudden indicates possible irrigation failure, pipe leak, " +
				"or pump malfunction. Confidence {confidence}, severity {severity}.",
			ConfidenceBoost: 0.1,
			ResultPriority:  types.SeverityHigh,
		},
		{
			Name:     "moisture-gradual-decline",
			Priority: 30,
			Cond:     Cond{SensorType: types.SensorMoisture, Trend: types.TrendDecreasing, ChangeBelow: fp(-5)},
			Action:   "Adjust irrigation schedule - gradual moisture loss detected",
			Explanation: "Gradual moisture decline on plot {plot_id} ({change_rate}% over the recent window, " +
				"now {value}%). Consider increasing irrigation frequency or duration.",
			ResultPriority: types.SeverityMedium,
		},
		{
			Name:     "moisture-overwatering",
			Priority: 40,
			Cond:     Cond{SensorType: types.SensorMoisture, ValueAbove: fp(80)},
			Action:   "Reduce irrigation immediately - overwatering detected",
			Explanation: "Soil moisture excessive at {value}% on plot {plot_id} (above 80%). " +
				"Risk of root rot, fungal disease, and oxygen deprivation. Reduce watering and improve drainage.",
			ResultPriority: types.SeverityMedium,
		},
		{
			Name:     "temperature-heat-stress",
			Priority: 50,
			Cond:     Cond{SensorType: types.SensorTemperature, ValueAbove: fp(32)},
			Action:   "URGENT: Heat stress mitigation - increase irrigation immediately and provide shade",
			Explanation: "Extreme temperature of {value}°C on plot {plot_id} (normal range 18-28°C), " +
				"trend {trend}. Crops at high risk of heat stress, wilting, and reduced yield. " +
				"Confidence {confidence}, severity {severity}.",
			ConfidenceBoost: 0.15,
			ResultPriority:  types.SeverityHigh,
		},
		{
			Name:     "temperature-frost-risk",
			Priority: 60,
			Cond:     Cond{SensorType: types.SensorTemperature, ValueBelow: fp(10)},
			Action:   "URGENT: Cold protection required - risk of frost damage",
			Explanation: "Low temperature of {value}°C on plot {plot_id}. Risk of cold stress and frost " +
				"damage. Consider row covers, heaters, or frost protection sprinklers.",
			ConfidenceBoost: 0.15,
			ResultPriority:  types.SeverityHigh,
		},
		{
			Name:     "temperature-sudden-spike",
			Priority: 70,
			Cond:     Cond{SensorType: types.SensorTemperature, ChangeAbove: fp(15)},
			Action:   "Monitor crops closely - sudden temperature increase detected",
			Explanation: "Temperature on plot {plot_id} rose {change_rate}% across the last window " +
				"(now {value}°C). Monitor crop response and increase irrigation if needed.",
			ResultPriority: types.SeverityMedium,
		},
		{
			Name:     "temperature-sudden-drop",
			Priority: 80,
			Cond:     Cond{SensorType: types.SensorTemperature, ChangeBelow: fp(-15)},
			Action:   "Monitor for cold stress - sudden temperature drop detected",
			Explanation: "Temperature on plot {plot_id} fell {change_rate}% across the last window " +
				"(now {value}°C). Monitor for signs of cold stress.",
			ResultPriority: types.SeverityMedium,
		},
		{
			Name:     "humidity-dry-air",
			Priority: 90,
			Cond:     Cond{SensorType: types.SensorHumidity, ValueBelow: fp(30)},
			Action:   "Increase humidity or irrigation - risk of plant stress from dry air",
			Explanation: "Very low humidity of {value}% on plot {plot_id} (normal range 45-75%). " +
				"Dry air increases transpiration and risks water stress and leaf damage. " +
				"Consider misting or increasing irrigation.",
			ResultPriority: types.SeverityMedium,
		},
		{
			Name:     "humidity-disease-risk",
			Priority: 100,
			Cond:     Cond{SensorType: types.SensorHumidity, ValueAbove: fp(85)},
			Action:   "Improve ventilation urgently - high humidity increases disease risk",
			Explanation: "High humidity of {value}% on plot {plot_id} (above 85%). Elevated risk of " +
				"fungal disease, mold, and bacterial infection. Improve air circulation and monitor " +
				"for disease symptoms.",
			ResultPriority: types.SeverityMedium,
		},
		{
			Name:     "any-high-severity",
			Priority: 200,
			Cond:     Cond{Severities: []types.Severity{types.SeverityHigh}},
			Action:   "Investigate anomaly urgently - high severity detected",
			Explanation: "High severity {sensor_type} anomaly on plot {plot_id} at {timestamp} " +
				"(confidence {confidence}, current value {value}). Immediate investigation recommended.",
			ResultPriority: types.SeverityHigh,
		},
		{
			Name:     "low-confidence-verify",
			Priority: 210,
			Cond:     Cond{MaxConfidence: fp(0.6)},
			Action:   "Verify with manual inspection - anomaly detected with moderate confidence",
			Explanation: "{sensor_type} anomaly on plot {plot_id} detected with moderate confidence " +
				"({confidence}). Manual inspection recommended to confirm sensor readings.",
			ResultPriority: types.SeverityLow,
		},
		{
			Name:     "any-medium-severity",
			Priority: 220,
			Cond:     Cond{Severities: []types.Severity{types.SeverityMedium}},
			Action:   "Monitor conditions closely and prepare adjustments",
			Explanation: "Medium severity {sensor_type} anomaly on plot {plot_id} (current value {value}, " +
				"trend {trend}). Monitor the situation and be ready to adjust if it worsens.",
			ResultPriority: types.SeverityMedium,
		},
	}
}
