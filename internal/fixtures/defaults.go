package fixtures

import (
	"time"

	"github.com/spboyer/rmbsgrade/internal/portfolio"
	"github.com/spboyer/rmbsgrade/internal/rating"
)

// DefaultSetName names the built-in fixture battery.
const DefaultSetName = "default"

// DefaultTiers are the built-in performance tiers. large_1000 uses the
// 0.1s "excellent" threshold of the legacy performance check.
func DefaultTiers() []Tier {
	return []Tier{
		{Name: "small_100", Size: 100, Reference: 20 * time.Millisecond},
		{Name: "medium_500", Size: 500, Reference: 60 * time.Millisecond},
		{Name: "large_1000", Size: 1000, Reference: 100 * time.Millisecond},
	}
}

// DefaultFixtures returns the built-in correctness battery.
func DefaultFixtures() []Fixture {
	return []Fixture{
		{
			Name:     "basic",
			Expected: rating.BBB,
			Weight:   1,
			Portfolio: portfolio.New("basic", []portfolio.MortgageRecord{
				{Principal: 200000, InterestRate: 0.045, CreditScore: 750, AnnualIncome: 60000, DebtAmount: 20000, PropertyValue: 250000, LoanType: "fixed", PropertyType: "single_family"},
				{Principal: 150000, InterestRate: 0.052, CreditScore: 680, AnnualIncome: 45000, DebtAmount: 10000, PropertyValue: 175000, LoanType: "adjustable", PropertyType: "condo"},
			}),
		},
		{
			Name:     "high_risk",
			Expected: rating.C,
			Weight:   1,
			Portfolio: portfolio.New("high_risk", []portfolio.MortgageRecord{
				{Principal: 180000, InterestRate: 0.089, CreditScore: 600, DelinquencyFlag: true, AnnualIncome: 40000, DebtAmount: 25000, PropertyValue: 190000, LoanType: "adjustable", PropertyType: "condo"},
				{Principal: 270000, InterestRate: 0.094, CreditScore: 620, DelinquencyFlag: true, AnnualIncome: 55000, DebtAmount: 30000, PropertyValue: 290000, LoanType: "adjustable", PropertyType: "condo"},
			}),
		},
		{
			Name:     "low_risk",
			Expected: rating.AAA,
			Weight:   1,
			Portfolio: portfolio.New("low_risk", []portfolio.MortgageRecord{
				{Principal: 150000, InterestRate: 0.031, CreditScore: 790, AnnualIncome: 100000, DebtAmount: 10000, PropertyValue: 300000, LoanType: "fixed", PropertyType: "single_family"},
				{Principal: 200000, InterestRate: 0.033, CreditScore: 760, AnnualIncome: 120000, DebtAmount: 15000, PropertyValue: 450000, LoanType: "fixed", PropertyType: "single_family"},
			}),
		},
		{
			Name:      "empty",
			Expected:  rating.None,
			Weight:    1,
			Portfolio: portfolio.New("empty", nil),
		},
	}
}

// Default builds the built-in fixture set.
func Default() *Set {
	s, err := NewSet(DefaultSetName, DefaultDistanceScale, DefaultFixtures(), DefaultTiers())
	if err != nil {
		panic("built-in fixture set is invalid: " + err.Error())
	}
	return s
}
