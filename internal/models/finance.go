package models

// FinancialProfile holds a party's inputs to the affordability calculator.
// Profiles are ephemeral: they are built per request and never persisted.
type FinancialProfile struct {
	MonthlyIncome   float64 `json:"monthly_income"`
	MonthlyExpenses float64 `json:"monthly_expenses"`
	Savings         float64 `json:"savings"`
	CreditScore     int     `json:"credit_score"`
}

// Recommendation classifies whether a party should rent, buy, or could do either.
type Recommendation string

const (
	RecommendRent Recommendation = "rent"
	RecommendBuy  Recommendation = "buy"
	RecommendBoth Recommendation = "both"
)

// AffordabilityResult is the derived, immutable output of a rental
// affordability calculation. All currency amounts are floored to whole units.
type AffordabilityResult struct {
	MaxMonthlyRent          float64        `json:"max_monthly_rent"`
	MaxPurchasePrice        float64        `json:"max_purchase_price"`
	MonthlyMortgageEstimate float64        `json:"monthly_mortgage_estimate"`
	DownPayment             float64        `json:"down_payment"`
	DisposableIncome        float64        `json:"disposable_income"`
	Recommendation          Recommendation `json:"recommendation"`
	CanAfford               bool           `json:"can_afford"`
}

// AffordabilityVerdict classifies how comfortably a listing fits an income.
type AffordabilityVerdict string

const (
	VerdictComfortable  AffordabilityVerdict = "comfortable"
	VerdictStretch      AffordabilityVerdict = "stretch"
	VerdictUnaffordable AffordabilityVerdict = "unaffordable"
)

// ListingAffordability relates a listing's monthly cost to an income.
type ListingAffordability struct {
	MonthlyCost          float64              `json:"monthly_cost"`
	PaymentToIncomeRatio float64              `json:"payment_to_income_ratio"`
	Verdict              AffordabilityVerdict `json:"verdict"`
}

// ValuePoint is a projected property value at a year offset from now.
type ValuePoint struct {
	Year  int     `json:"year"`
	Value float64 `json:"value"`
}

// InvestmentMetrics summarizes a listing's quality as an investment.
type InvestmentMetrics struct {
	RentalYield      float64      `json:"rental_yield"`
	GrossAnnualRent  float64      `json:"gross_annual_rent"`
	AppreciationRate float64      `json:"appreciation_rate"`
	Projections      []ValuePoint `json:"projections"`
}
