package portfolio

import "fmt"

// Generate builds a deterministic synthetic pool of size records, used for
// performance tiers. The same size always yields the same records.
func Generate(name string, size int) Portfolio {
	if size < 0 {
		size = 0
	}
	records := make([]MortgageRecord, size)
	for i := range size {
		loanType := "adjustable"
		if i%2 == 0 {
			loanType = "fixed"
		}
		propertyType := "condo"
		if i%3 == 0 {
			propertyType = "single_family"
		}
		principal := 150000 + float64(i)*1000
		value := 200000 + float64(i)*2000
		records[i] = MortgageRecord{
			Principal:       principal,
			InterestRate:    0.03 + float64(i%40)*0.001,
			LoanToValue:     round4(principal / value),
			CreditScore:     float64(700 + i%150),
			DelinquencyFlag: i%17 == 0,
			AnnualIncome:    50000 + float64(i)*500,
			DebtAmount:      10000 + float64(i)*100,
			PropertyValue:   value,
			LoanType:        loanType,
			PropertyType:    propertyType,
		}
	}
	return Portfolio{name: name, records: records}
}

// GeneratedName is the conventional portfolio name for a tier of the given size.
func GeneratedName(size int) string {
	return fmt.Sprintf("synthetic_%d", size)
}
