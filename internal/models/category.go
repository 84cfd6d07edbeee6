package models

// Category is the closed set of obligation categories assigned by the
// categorizer. The zero value is not a valid category; use CategoryOther
// for anything the rules cannot place.
type Category string

const (
	CategoryElectricity  Category = "Electricity"
	CategoryWater        Category = "Water"
	CategoryGas          Category = "Gas"
	CategoryInternet     Category = "Internet"
	CategoryMobile       Category = "Mobile"
	CategoryRent         Category = "Rent"
	CategoryInsurance    Category = "Insurance"
	CategorySubscription Category = "Subscription"
	CategoryLoan         Category = "Loan"
	CategoryEducation    Category = "Education"
	CategoryOther        Category = "Other"
)

// RuleConfig is one keyword rule loaded from the rules YAML file.
// Rules are evaluated in file order; the first rule whose keyword set
// hits the merchant text wins.
type RuleConfig struct {
	Category Category `yaml:"category"`
	Keywords []string `yaml:"keywords"`
}

// RulesConfig is the top-level structure of the rules YAML file.
type RulesConfig struct {
	Rules []RuleConfig `yaml:"rules"`
}
