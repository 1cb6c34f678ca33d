package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"portfolio-sentry/internal/models"
)

func TestValidateRule(t *testing.T) {
	cases := []struct {
		name string
		rule models.AlertRule
		ok   bool
	}{
		{"price_above with symbol", models.AlertRule{Condition: models.ConditionPriceAbove, Symbol: "BTC"}, true},
		{"price_above without symbol", models.AlertRule{Condition: models.ConditionPriceAbove}, false},
		{"price_below without symbol", models.AlertRule{Condition: models.ConditionPriceBelow}, false},
		{"percent_change complete", models.AlertRule{Condition: models.ConditionPercentChange, Symbol: "ETH", Baseline: 3200}, true},
		{"percent_change zero baseline", models.AlertRule{Condition: models.ConditionPercentChange, Symbol: "ETH"}, false},
		{"portfolio_value no symbol needed", models.AlertRule{Condition: models.ConditionPortfolioValue}, true},
		{"unknown condition", models.AlertRule{Condition: "volume_spike", Symbol: "BTC"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := validateRule(&tc.rule)
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestShortID(t *testing.T) {
	assert.Equal(t, "12345678", shortID("123456789abcdef"))
	assert.Equal(t, "abc", shortID("abc"))
}
