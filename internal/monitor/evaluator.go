// Package monitor implements the portfolio alert monitoring engine: a
// scheduled evaluation loop that polls market data through the resilient
// access layer, detects threshold breaches, and drives at-most-once
// notification delivery per breach episode.
package monitor

import (
	"math"

	"portfolio-sentry/internal/errors"
	"portfolio-sentry/internal/models"
)

// Evaluate determines whether a rule's condition is satisfied by the
// current value. It is a pure function of its inputs: all data fetching
// happens in the caller. The scheduler never passes PAUSED or DISABLED
// rules here.
func Evaluate(rule models.AlertRule, current float64) (bool, error) {
	switch rule.Condition {
	case models.ConditionPriceAbove:
		return current > rule.Threshold, nil

	case models.ConditionPriceBelow:
		return current < rule.Threshold, nil

	case models.ConditionPercentChange:
		if rule.Baseline == 0 {
			return false, errors.NewEvaluationError(rule.ID, rule.Symbol,
				"percent_change rule requires a non-zero baseline", nil)
		}
		change := (current - rule.Baseline) / rule.Baseline * 100
		return math.Abs(change) >= rule.Threshold, nil

	case models.ConditionPortfolioValue:
		// Direction is derived from which side of the threshold the
		// baseline sits on: the rule fires when the value crosses over.
		if rule.Baseline <= rule.Threshold {
			return current > rule.Threshold, nil
		}
		return current < rule.Threshold, nil

	default:
		return false, errors.NewEvaluationError(rule.ID, rule.Symbol,
			"unknown condition: "+string(rule.Condition), nil)
	}
}
