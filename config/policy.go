package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"homematch/server/internal/calculator"
)

var (
	activePolicy *calculator.Policy
	policyLock   sync.RWMutex
	policyPath   = "config/calculator_policy.json"
)

// policyOverrides mirrors calculator.Policy with optional fields so the file
// only needs to name the constants a deployment actually changes.
type policyOverrides struct {
	RentBudgetFraction     *float64 `json:"rent_budget_fraction"`
	SavingsReserveFraction *float64 `json:"savings_reserve_fraction"`
	MortgageBudgetFraction *float64 `json:"mortgage_budget_fraction"`
	MortgageTermYears      *int     `json:"mortgage_term_years"`
	MortgageAnnualRate     *float64 `json:"mortgage_annual_rate"`
	ComfortableRatio       *float64 `json:"comfortable_ratio"`
	StretchRatio           *float64 `json:"stretch_ratio"`
	BuySavingsThreshold    *float64 `json:"buy_savings_threshold"`
	BuyCreditThreshold     *int     `json:"buy_credit_threshold"`
	BothSavingsThreshold   *float64 `json:"both_savings_threshold"`
	BothCreditThreshold    *int     `json:"both_credit_threshold"`
}

// LoadPolicyConfig loads calculator policy overrides from file. A missing file
// is not an error; the defaults stay in effect.
func LoadPolicyConfig() error {
	policyLock.Lock()
	defer policyLock.Unlock()

	absPath, err := filepath.Abs(policyPath)
	if err != nil {
		return fmt.Errorf("failed to get absolute path: %v", err)
	}

	data, err := os.ReadFile(absPath)
	if os.IsNotExist(err) {
		policy := calculator.DefaultPolicy()
		activePolicy = &policy
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read policy file: %v", err)
	}

	var overrides policyOverrides
	if err := json.Unmarshal(data, &overrides); err != nil {
		return fmt.Errorf("failed to parse policy file: %v", err)
	}

	policy := calculator.DefaultPolicy()
	applyOverrides(&policy, overrides)
	activePolicy = &policy
	return nil
}

func applyOverrides(policy *calculator.Policy, o policyOverrides) {
	if o.RentBudgetFraction != nil {
		policy.RentBudgetFraction = *o.RentBudgetFraction
	}
	if o.SavingsReserveFraction != nil {
		policy.SavingsReserveFraction = *o.SavingsReserveFraction
	}
	if o.MortgageBudgetFraction != nil {
		policy.MortgageBudgetFraction = *o.MortgageBudgetFraction
	}
	if o.MortgageTermYears != nil {
		policy.MortgageTermYears = *o.MortgageTermYears
	}
	if o.MortgageAnnualRate != nil {
		policy.MortgageAnnualRate = *o.MortgageAnnualRate
	}
	if o.ComfortableRatio != nil {
		policy.ComfortableRatio = *o.ComfortableRatio
	}
	if o.StretchRatio != nil {
		policy.StretchRatio = *o.StretchRatio
	}
	if o.BuySavingsThreshold != nil {
		policy.BuySavingsThreshold = *o.BuySavingsThreshold
	}
	if o.BuyCreditThreshold != nil {
		policy.BuyCreditThreshold = *o.BuyCreditThreshold
	}
	if o.BothSavingsThreshold != nil {
		policy.BothSavingsThreshold = *o.BothSavingsThreshold
	}
	if o.BothCreditThreshold != nil {
		policy.BothCreditThreshold = *o.BothCreditThreshold
	}
}

// GetPolicy returns the calculator policy in effect.
func GetPolicy() calculator.Policy {
	policyLock.RLock()
	defer policyLock.RUnlock()

	if activePolicy == nil {
		return calculator.DefaultPolicy()
	}
	return *activePolicy
}
