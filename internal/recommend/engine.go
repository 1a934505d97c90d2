package recommend

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/fieldwatch/fieldwatch/internal/types"
)

// FallbackAction is returned when no rule in the table matches an event.
const FallbackAction = "investigate"

// fallbackConfidence is the fixed confidence of the generic fallback.
const fallbackConfidence = 0.3

// missingField substitutes for template placeholders the event cannot fill.
const missingField = "n/a"

// Engine evaluates the rule table against anomaly events. It is stateless
// after construction: the same event always yields the same recommendation.
type Engine struct {
	rules  []RuleEntry
	logger *zap.SugaredLogger
}

// NewEngine builds an engine over the given rules, sorted by ascending
// priority. The sort is stable so equal-priority rules keep their
// configured order. A nil or empty rule slice leaves only the fallback.
func NewEngine(rules []RuleEntry, logger *zap.SugaredLogger) *Engine {
	sorted := make([]RuleEntry, len(rules))
	copy(sorted, rules)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority < sorted[j].Priority
	})
	return &Engine{rules: sorted, logger: logger}
}

// Recommend maps an anomaly event to a recommendation using first-match
// policy. It never fails for a valid event: when no rule matches, the
// generic investigate fallback is returned.
func (e *Engine) Recommend(ev types.AnomalyEvent) types.Recommendation {
	for i := range e.rules {
		rule := &e.rules[i]
		if !matches(&rule.Cond, &ev) {
			continue
		}

		if e.logger != nil {
			e.logger.Debugw("rule matched",
				"rule", rule.Name,
				"event", ev.ID,
				"sensor_type", ev.SensorType,
				"severity", ev.Severity)
		}

		return types.Recommendation{
			AnomalyEventID: ev.ID,
			Action:         rule.Action,
			Explanation:    render(rule.Explanation, &ev),
			Confidence:     clamp01(ev.Confidence + rule.ConfidenceBoost),
			Priority:       rule.ResultPriority,
			CreatedAt:      ev.Timestamp,
		}
	}

	if e.logger != nil {
		e.logger.Debugw("no rule matched, using fallback", "event", ev.ID)
	}
	return types.Recommendation{
		AnomalyEventID: ev.ID,
		Action:         FallbackAction,
		Explanation: render("Anomaly detected in {sensor_type} readings on plot {plot_id} at {timestamp}. "+
			"No specific rule applies; further investigation recommended to identify the cause.", &ev),
		Confidence: fallbackConfidence,
		Priority:   types.SeverityLow,
		CreatedAt:  ev.Timestamp,
	}
}

// matches is the single interpreter for every predicate variant. Unset
// fields match anything; set fields are conjunctive.
func matches(c *Cond, ev *types.AnomalyEvent) bool {
	if c.SensorType != "" && c.SensorType != ev.SensorType {
		return false
	}
	if len(c.Severities) > 0 {
		found := false
		for _, s := range c.Severities {
			if s == ev.Severity {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if c.MinConfidence != nil && ev.Confidence < *c.MinConfidence {
		return false
	}
	if c.MaxConfidence != nil && ev.Confidence > *c.MaxConfidence {
		return false
	}
	if c.ValueBelow != nil && ev.TriggeringValue >= *c.ValueBelow {
		return false
	}
	if c.ValueAbove != nil && ev.TriggeringValue <= *c.ValueAbove {
		return false
	}
	if c.MeanBelow != nil && ev.Features.Mean >= *c.MeanBelow {
		return false
	}
	if c.MeanAbove != nil && ev.Features.Mean <= *c.MeanAbove {
		return false
	}
	if c.ChangeBelow != nil && ev.ChangeRate >= *c.ChangeBelow {
		return false
	}
	if c.ChangeAbove != nil && ev.ChangeRate <= *c.ChangeAbove {
		return false
	}
	if c.Trend != "" && c.Trend != ev.Trend {
		return false
	}
	return true
}

// render substitutes event fields into {placeholder} slots. Unknown
// placeholders render as a fixed marker; rendering never fails.
func render(template string, ev *types.AnomalyEvent) string {
	fields := map[string]string{
		"plot_id":     fmt.Sprintf("%d", ev.PlotID),
		"sensor_type": string(ev.SensorType),
		"severity":    string(ev.Severity),
		"confidence":  fmt.Sprintf("%.2f", ev.Confidence),
		"score":       fmt.Sprintf("%.4f", ev.RawScore),
		"value":       fmt.Sprintf("%.1f", ev.TriggeringValue),
		"mean":        fmt.Sprintf("%.1f", ev.Features.Mean),
		"std":         fmt.Sprintf("%.2f", ev.Features.StdDev),
		"min":         fmt.Sprintf("%.1f", ev.Features.Min),
		"max":         fmt.Sprintf("%.1f", ev.Features.Max),
		"range":       fmt.Sprintf("%.1f", ev.Features.Range),
		"change_rate": fmt.Sprintf("%+.1f", ev.ChangeRate),
		"trend":       string(ev.Trend),
		"timestamp":   ev.Timestamp.Format("2006-01-02 15:04"),
	}

	var b strings.Builder
	rest := template
	for {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			b.WriteString(rest)
			break
		}
		end := strings.IndexByte(rest[open:], '}')
		if end < 0 {
			b.WriteString(rest)
			break
		}
		b.WriteString(rest[:open])
		name := rest[open+1 : open+end]
		if v, ok := fields[name]; ok {
			b.WriteString(v)
		} else {
			b.WriteString(missingField)
		}
		rest = rest[open+end+1:]
	}
	return b.String()
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
