package calculator

import (
	"math"

	"homematch/server/internal/models"
)

// Policy holds the financial policy constants behind every calculation.
// Defaults mirror long-standing product behavior; deployments may override
// them through configuration.
type Policy struct {
	// Fraction of gross monthly income available for rent
	RentBudgetFraction float64

	// Fraction of savings kept back as an emergency buffer
	SavingsReserveFraction float64

	// Fraction of disposable income available for mortgage payments
	MortgageBudgetFraction float64

	// Amortization term and annual rate for the purchase-price conversion
	MortgageTermYears  int
	MortgageAnnualRate float64

	// Payment-to-income ratio thresholds for the listing verdict
	ComfortableRatio float64
	StretchRatio     float64

	// Savings/credit thresholds for the rent-vs-buy recommendation.
	// Comparisons are strict (>), not >=.
	BuySavingsThreshold  float64
	BuyCreditThreshold   int
	BothSavingsThreshold float64
	BothCreditThreshold  int
}

// DefaultPolicy returns the standard policy constants.
func DefaultPolicy() Policy {
	return Policy{
		RentBudgetFraction:     0.30,
		SavingsReserveFraction: 0.20,
		MortgageBudgetFraction: 0.35,
		MortgageTermYears:      30,
		MortgageAnnualRate:     0.06,
		ComfortableRatio:       0.28,
		StretchRatio:           0.36,
		BuySavingsThreshold:    50000,
		BuyCreditThreshold:     680,
		BothSavingsThreshold:   20000,
		BothCreditThreshold:    650,
	}
}

// Calculator derives affordability and investment figures from financial
// inputs. All methods are pure and safe for concurrent use.
type Calculator struct {
	policy Policy
}

// New creates a calculator with the given policy.
func New(policy Policy) *Calculator {
	return &Calculator{policy: policy}
}

// Policy returns the policy constants in effect.
func (c *Calculator) Policy() Policy {
	return c.policy
}

// clamp coerces malformed numeric input to zero. Negative, NaN and infinite
// values all become 0 so every calculation is total; the UI always gets a
// number back.
func clamp(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}

// monthlyPaymentFactor is the standard annuity factor for the policy's rate
// and term: r(1+r)^n / ((1+r)^n - 1) with monthly rate r over n months.
func (c *Calculator) monthlyPaymentFactor() float64 {
	r := c.policy.MortgageAnnualRate / 12
	n := float64(c.policy.MortgageTermYears * 12)
	if r <= 0 || n <= 0 {
		return 0
	}
	pow := math.Pow(1+r, n)
	return r * pow / (pow - 1)
}

// RentalAffordability turns a financial profile into budget ceilings and a
// rent-vs-buy recommendation. Currency outputs are floored to whole units.
func (c *Calculator) RentalAffordability(profile models.FinancialProfile) models.AffordabilityResult {
	income := clamp(profile.MonthlyIncome)
	expenses := clamp(profile.MonthlyExpenses)
	savings := clamp(profile.Savings)
	creditScore := profile.CreditScore
	if creditScore < 0 {
		creditScore = 0
	}

	disposable := income - expenses

	maxRent := math.Floor(c.policy.RentBudgetFraction * income)
	downPayment := math.Floor((1 - c.policy.SavingsReserveFraction) * savings)

	mortgageBudget := c.policy.MortgageBudgetFraction * disposable
	if mortgageBudget < 0 {
		mortgageBudget = 0
	}

	principal := 0.0
	if factor := c.monthlyPaymentFactor(); factor > 0 {
		principal = mortgageBudget / factor
	}
	maxPurchase := math.Floor(principal + downPayment)

	canAfford := disposable > 0

	recommendation := models.RecommendRent
	switch {
	case !canAfford:
		// A party that cannot cover expenses is always steered to renting.
	case savings > c.policy.BuySavingsThreshold && creditScore > c.policy.BuyCreditThreshold:
		recommendation = models.RecommendBuy
	case savings > c.policy.BothSavingsThreshold && creditScore > c.policy.BothCreditThreshold:
		recommendation = models.RecommendBoth
	}

	return models.AffordabilityResult{
		MaxMonthlyRent:          maxRent,
		MaxPurchasePrice:        maxPurchase,
		MonthlyMortgageEstimate: math.Floor(mortgageBudget),
		DownPayment:             downPayment,
		DisposableIncome:        disposable,
		Recommendation:          recommendation,
		CanAfford:               canAfford,
	}
}

// ListingAffordability classifies how comfortably a listing's monthly rent
// fits a given income.
func (c *Calculator) ListingAffordability(listing models.Listing, monthlyIncome float64) models.ListingAffordability {
	income := clamp(monthlyIncome)
	cost := clamp(float64(listing.MonthlyRent))

	var ratio float64
	if income > 0 {
		ratio = cost / income
	}

	verdict := models.VerdictComfortable
	switch {
	case cost > 0 && income <= 0:
		verdict = models.VerdictUnaffordable
	case ratio > c.policy.StretchRatio:
		verdict = models.VerdictUnaffordable
	case ratio > c.policy.ComfortableRatio:
		verdict = models.VerdictStretch
	}

	return models.ListingAffordability{
		MonthlyCost:          cost,
		PaymentToIncomeRatio: ratio,
		Verdict:              verdict,
	}
}

// InvestmentMetrics computes rental yield and a compounding price projection
// over horizonYears at the given historical appreciation rate.
func (c *Calculator) InvestmentMetrics(listing models.Listing, appreciationRate float64, horizonYears int) models.InvestmentMetrics {
	price := clamp(float64(listing.Price))
	annualRent := clamp(float64(listing.MonthlyRent)) * 12
	rate := appreciationRate
	if math.IsNaN(rate) || math.IsInf(rate, 0) {
		rate = 0
	}
	if horizonYears < 0 {
		horizonYears = 0
	}

	var yield float64
	if price > 0 {
		yield = annualRent / price
	}

	projections := make([]models.ValuePoint, 0, horizonYears)
	for year := 1; year <= horizonYears; year++ {
		projections = append(projections, models.ValuePoint{
			Year:  year,
			Value: math.Floor(price * math.Pow(1+rate, float64(year))),
		})
	}

	return models.InvestmentMetrics{
		RentalYield:      yield,
		GrossAnnualRent:  annualRent,
		AppreciationRate: rate,
		Projections:      projections,
	}
}
