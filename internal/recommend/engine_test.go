package recommend

import (
	"strings"
	"testing"
	"time"

	"github.com/fieldwatch/fieldwatch/internal/types"
)

func baseEvent() types.AnomalyEvent {
	return types.AnomalyEvent{
		ID:              "evt-1",
		PlotID:          7,
		SensorType:      types.SensorMoisture,
		Timestamp:       time.Date(2025, time.July, 10, 14, 30, 0, 0, time.UTC),
		RawScore:        0.72,
		Confidence:      0.9,
		Severity:        types.SeverityHigh,
		TriggeringValue: 5,
		Features:        types.FeatureVector{Mean: 48.5, StdDev: 14.2, Min: 5, Max: 61, Range: 56},
		ChangeRate:      -28.4,
		Trend:           types.TrendDecreasing,
	}
}

func TestRecommendDroughtStress(t *testing.T) {
	engine := NewEngine(DefaultRules(), nil)
	rec := engine.Recommend(baseEvent())

	if !strings.Contains(rec.Action, "irrigation") {
		t.Errorf("expected irrigation-related action, got %q", rec.Action)
	}
	if rec.Priority != types.SeverityHigh {
		t.Errorf("expected high priority, got %s", rec.Priority)
	}
	if rec.Confidence != 1.0 {
		t.Errorf("expected boosted confidence clamped to 1.0, got %v", rec.Confidence)
	}
	if !strings.Contains(rec.Explanation, "5.0") {
		t.Errorf("explanation should include the triggering value: %q", rec.Explanation)
	}
	if !strings.Contains(rec.Explanation, "plot 7") {
		t.Errorf("explanation should name the plot: %q", rec.Explanation)
	}
}

func TestRecommendIsPure(t *testing.T) {
	engine := NewEngine(DefaultRules(), nil)
	ev := baseEvent()

	first := engine.Recommend(ev)
	for i := 0; i < 5; i++ {
		if got := engine.Recommend(ev); got != first {
			t.Fatalf("recommendation differs between identical calls: %+v vs %+v", got, first)
		}
	}
}

func TestFirstMatchPolicy(t *testing.T) {
	// A broad higher-priority rule must beat a narrower lower-priority one
	// that also matches.
	rules := []RuleEntry{
		{
			Name:           "narrow-but-late",
			Priority:       50,
			Cond:           Cond{SensorType: types.SensorMoisture, ValueBelow: fp(10)},
			Action:         "narrow",
			ResultPriority: types.SeverityHigh,
		},
		{
			Name:           "broad-and-early",
			Priority:       10,
			Cond:           Cond{SensorType: types.SensorMoisture},
			Action:         "broad",
			ResultPriority: types.SeverityLow,
		},
	}
	engine := NewEngine(rules, nil)

	rec := engine.Recommend(baseEvent())
	if rec.Action != "broad" {
		t.Errorf("expected first rule by priority to win, got %q", rec.Action)
	}
}

func TestRuleOrderStableForEqualPriority(t *testing.T) {
	rules := []RuleEntry{
		{Name: "first", Priority: 10, Action: "first"},
		{Name: "second", Priority: 10, Action: "second"},
	}
	engine := NewEngine(rules, nil)

	if rec := engine.Recommend(baseEvent()); rec.Action != "first" {
		t.Errorf("equal-priority rules must keep configured order, got %q", rec.Action)
	}
}

func TestFallbackWhenNoRuleMatches(t *testing.T) {
	rules := []RuleEntry{
		{
			Name:     "humidity-only",
			Priority: 10,
			Cond:     Cond{SensorType: types.SensorHumidity},
			Action:   "ventilate",
		},
	}
	engine := NewEngine(rules, nil)

	rec := engine.Recommend(baseEvent())
	if rec.Action != FallbackAction {
		t.Errorf("expected fallback action %q, got %q", FallbackAction, rec.Action)
	}
	if rec.Confidence != fallbackConfidence {
		t.Errorf("expected fixed fallback confidence %v, got %v", fallbackConfidence, rec.Confidence)
	}
	if rec.Priority != types.SeverityLow {
		t.Errorf("expected low fallback priority, got %s", rec.Priority)
	}
}

func TestCondInterpreter(t *testing.T) {
	ev := baseEvent()

	tests := []struct {
		name string
		cond Cond
		want bool
	}{
		{"empty matches anything", Cond{}, true},
		{"sensor match", Cond{SensorType: types.SensorMoisture}, true},
		{"sensor mismatch", Cond{SensorType: types.SensorHumidity}, false},
		{"severity in set", Cond{Severities: []types.Severity{types.SeverityMedium, types.SeverityHigh}}, true},
		{"severity not in set", Cond{Severities: []types.Severity{types.SeverityLow}}, false},
		{"min confidence pass", Cond{MinConfidence: fp(0.85)}, true},
		{"min confidence fail", Cond{MinConfidence: fp(0.95)}, false},
		{"max confidence fail", Cond{MaxConfidence: fp(0.6)}, false},
		{"value below pass", Cond{ValueBelow: fp(35)}, true},
		{"value below fail", Cond{ValueBelow: fp(5)}, false},
		{"value above fail", Cond{ValueAbove: fp(80)}, false},
		{"mean below pass", Cond{MeanBelow: fp(50)}, true},
		{"change below pass", Cond{ChangeBelow: fp(-10)}, true},
		{"change below fail", Cond{ChangeBelow: fp(-30)}, false},
		{"trend match", Cond{Trend: types.TrendDecreasing}, true},
		{"trend mismatch", Cond{Trend: types.TrendIncreasing}, false},
		{
			"conjunction",
			Cond{SensorType: types.SensorMoisture, ValueBelow: fp(35), Trend: types.TrendDecreasing},
			true,
		},
		{
			"conjunction with one failing leg",
			Cond{SensorType: types.SensorMoisture, ValueBelow: fp(35), Trend: types.TrendIncreasing},
			false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := matches(&tt.cond, &ev); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestRenderTemplate(t *testing.T) {
	ev := baseEvent()

	tests := []struct {
		name     string
		template string
		want     string
	}{
		{
			"known fields",
			"plot {plot_id} {sensor_type} at {value}",
			"plot 7 moisture at 5.0",
		},
		{
			"missing field becomes placeholder",
			"sector {sector_id} alert",
			"sector n/a alert",
		},
		{
			"no placeholders",
			"plain text",
			"plain text",
		},
		{
			"unclosed brace passes through",
			"broken {plot_id",
			"broken {plot_id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := render(tt.template, &ev); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}
