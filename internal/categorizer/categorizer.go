// Package categorizer maps free-text merchant strings to the closed set
// of obligation categories using ordered keyword rules. Classification is
// deterministic and total: it always returns a category and never errors.
package categorizer

import (
	"strings"

	"fintrack/billrecon/internal/logging"
	"fintrack/billrecon/internal/models"
)

// RuleStore loads custom keyword rules, typically from a YAML file.
type RuleStore interface {
	LoadRules() ([]models.RuleConfig, error)
}

// Categorizer classifies merchant text by running ordered keyword rules
// against a lower-cased, whitespace-normalized copy of the text. Custom
// rules from the store are tried before the built-in defaults; within a
// rule set the first match wins.
type Categorizer struct {
	rules  []models.RuleConfig
	logger logging.Logger
}

// New creates a Categorizer. The store may be nil, in which case only the
// built-in default rules apply. Store load failures are logged and the
// defaults are used; classification itself never fails.
func New(store RuleStore, logger logging.Logger) *Categorizer {
	c := &Categorizer{logger: logger}

	var custom []models.RuleConfig
	if store != nil {
		loaded, err := store.LoadRules()
		if err != nil {
			logger.WithError(err).Warn("Failed to load custom categorization rules, using defaults only")
		} else {
			custom = loaded
		}
	}

	c.rules = append(append([]models.RuleConfig{}, custom...), defaultRules()...)
	return c
}

// Classify maps merchant text to an obligation category. If no keyword
// rule matches, hintCategory ("" when absent) is mapped through the
// secondary hint table; failing that, CategoryOther is returned.
func (c *Categorizer) Classify(merchantText, hintCategory string) models.Category {
	normalized := models.NormalizeText(merchantText)

	for _, rule := range c.rules {
		for _, keyword := range rule.Keywords {
			if keyword == "" {
				continue
			}
			if strings.Contains(normalized, strings.ToLower(keyword)) {
				c.logger.WithFields(
					logging.Field{Key: "merchant", Value: merchantText},
					logging.Field{Key: "keyword", Value: keyword},
					logging.Field{Key: "category", Value: rule.Category},
				).Debug("Merchant classified by keyword rule")
				return rule.Category
			}
		}
	}

	if hintCategory != "" {
		if category, ok := hintCategories[models.NormalizeText(hintCategory)]; ok {
			c.logger.WithFields(
				logging.Field{Key: "merchant", Value: merchantText},
				logging.Field{Key: "hint", Value: hintCategory},
				logging.Field{Key: "category", Value: category},
			).Debug("Merchant classified by category hint")
			return category
		}
	}

	return models.CategoryOther
}

// defaultRules is the built-in ordered rule set. More specific rules come
// before generic ones so that e.g. "gas cylinder" wins over a later rule
// that also mentions "bill".
func defaultRules() []models.RuleConfig {
	return []models.RuleConfig{
		{Category: models.CategoryElectricity, Keywords: []string{"electric", "power", "discom", "energy board", "bseb", "mseb"}},
		{Category: models.CategoryWater, Keywords: []string{"water", "jal board", "aqua"}},
		{Category: models.CategoryGas, Keywords: []string{"gas", "lpg", "cylinder", "indane", "bharatgas"}},
		{Category: models.CategoryInternet, Keywords: []string{"internet", "broadband", "fiber", "fibre", "wifi"}},
		{Category: models.CategoryMobile, Keywords: []string{"mobile", "prepaid", "postpaid", "recharge", "airtel", "jio", "vodafone"}},
		{Category: models.CategoryRent, Keywords: []string{"rent", "landlord", "lease"}},
		{Category: models.CategoryInsurance, Keywords: []string{"insurance", "premium", "policy", "lic"}},
		{Category: models.CategorySubscription, Keywords: []string{"subscription", "netflix", "spotify", "prime", "hotstar"}},
		{Category: models.CategoryLoan, Keywords: []string{"emi", "loan", "installment", "instalment", "mortgage"}},
		{Category: models.CategoryEducation, Keywords: []string{"school", "college", "tuition", "fees", "academy"}},
	}
}

// hintCategories maps transaction-source category hints to obligation
// categories. It is consulted only when no keyword rule matched.
var hintCategories = map[string]models.Category{
	"utilities":     models.CategoryElectricity,
	"utility":       models.CategoryElectricity,
	"bills":         models.CategoryOther,
	"rent":          models.CategoryRent,
	"housing":       models.CategoryRent,
	"insurance":     models.CategoryInsurance,
	"emi":           models.CategoryLoan,
	"loan":          models.CategoryLoan,
	"education":     models.CategoryEducation,
	"subscriptions": models.CategorySubscription,
	"subscription":  models.CategorySubscription,
	"telecom":       models.CategoryMobile,
	"internet":      models.CategoryInternet,
}
