// Package portfolio holds the mortgage pools that candidate rating algorithms
// are run against.
package portfolio

import (
	"encoding/json"
	"math"
)

// MortgageRecord is one loan in a pool. Values are immutable once the record
// is part of a Portfolio.
type MortgageRecord struct {
	Principal       float64 `yaml:"principal" json:"principal"`
	InterestRate    float64 `yaml:"interest_rate" json:"interest_rate"`
	LoanToValue     float64 `yaml:"loan_to_value" json:"loan_to_value"`
	CreditScore     float64 `yaml:"credit_score" json:"credit_score"`
	DelinquencyFlag bool    `yaml:"delinquency_flag" json:"delinquency_flag"`
	AnnualIncome    float64 `yaml:"annual_income,omitempty" json:"annual_income"`
	DebtAmount      float64 `yaml:"debt_amount,omitempty" json:"debt_amount"`
	PropertyValue   float64 `yaml:"property_value,omitempty" json:"property_value"`
	LoanType        string  `yaml:"loan_type,omitempty" json:"loan_type"`
	PropertyType    string  `yaml:"property_type,omitempty" json:"property_type"`
}

// MarshalJSON encodes the record in the shape handed to candidate code. It
// carries the legacy field names (loan_amount, ltv, delinquent) next to the
// descriptive ones so submissions written against either convention can read it.
func (m MortgageRecord) MarshalJSON() ([]byte, error) {
	type plain MortgageRecord
	w := struct {
		plain
		LoanAmount   float64 `json:"loan_amount"`
		LTV          float64 `json:"ltv"`
		Delinquent   bool    `json:"delinquent"`
		DebtToIncome float64 `json:"debt_to_income"`
	}{
		plain:        plain(m),
		LoanAmount:   m.Principal,
		LTV:          m.LoanToValue,
		Delinquent:   m.DelinquencyFlag,
		DebtToIncome: m.debtToIncome(),
	}
	return json.Marshal(w)
}

func (m MortgageRecord) debtToIncome() float64 {
	if m.AnnualIncome <= 0 {
		return 0
	}
	return round4(m.DebtAmount / m.AnnualIncome)
}

// WithDerivedFields fills LoanToValue from Principal and PropertyValue when it
// was not given explicitly.
func (m MortgageRecord) WithDerivedFields() MortgageRecord {
	if m.LoanToValue == 0 && m.PropertyValue > 0 {
		m.LoanToValue = round4(m.Principal / m.PropertyValue)
	}
	return m
}

// Portfolio is a named, ordered pool of mortgages. The order carries no rating
// meaning but is fixed so runs are reproducible.
type Portfolio struct {
	name    string
	records []MortgageRecord
}

// New creates a Portfolio, copying records so later changes to the caller's
// slice are not observed.
func New(name string, records []MortgageRecord) Portfolio {
	cp := make([]MortgageRecord, len(records))
	for i, r := range records {
		cp[i] = r.WithDerivedFields()
	}
	return Portfolio{name: name, records: cp}
}

func (p Portfolio) Name() string { return p.name }
func (p Portfolio) Len() int     { return len(p.records) }

// Records returns a copy of the pool's records.
func (p Portfolio) Records() []MortgageRecord {
	cp := make([]MortgageRecord, len(p.records))
	copy(cp, p.records)
	return cp
}

// MarshalJSON encodes the portfolio as {"mortgages": [...]}, the input shape
// the original grader passed to candidate entry points.
func (p Portfolio) MarshalJSON() ([]byte, error) {
	records := p.records
	if records == nil {
		records = []MortgageRecord{}
	}
	return json.Marshal(struct {
		Mortgages []MortgageRecord `json:"mortgages"`
	}{Mortgages: records})
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
