// Package insights derives the dashboard's budget summary from a profile.
package insights

import (
	"github.com/shopspring/decimal"

	"findost/internal/domain"
)

const emergencyFundMonths = 6

var (
	hundred = decimal.NewFromInt(100)
	// assumedExpenseRatio is used when the user has not entered monthly expenses.
	assumedExpenseRatio = decimal.RequireFromString("0.6")
)

// spendingSplit is the default allocation of monthly expenses across categories.
var spendingSplit = []struct {
	category string
	percent  int64
}{
	{"Housing", 35},
	{"Food", 20},
	{"Transport", 15},
	{"Entertainment", 10},
	{"Utilities", 10},
	{"Other", 10},
}

type Category struct {
	Name    string          `json:"name"`
	Percent int64           `json:"percent"`
	Amount  decimal.Decimal `json:"amount"`
}

type Summary struct {
	MonthlyIncome      decimal.Decimal `json:"monthly_income"`
	MonthlyExpenses    decimal.Decimal `json:"monthly_expenses"`
	ExpensesEstimated  bool            `json:"expenses_estimated"`
	MonthlySavings     decimal.Decimal `json:"monthly_savings"`
	SavingsRatePercent decimal.Decimal `json:"savings_rate_percent"`
	EmergencyFundGoal  decimal.Decimal `json:"emergency_fund_goal"`
	LoanBurdenPercent  decimal.Decimal `json:"loan_burden_percent"`
	SpendingByCategory []Category      `json:"spending_by_category"`
	OnboardingComplete bool            `json:"onboarding_complete"`
}

// Summarize computes savings, emergency fund and spending figures. Money is
// rounded to whole rupees and percentages to whole numbers.
func Summarize(p domain.Profile) Summary {
	income := p.MonthlySalaryINR.Or(decimal.Zero)
	if income.IsNegative() {
		income = decimal.Zero
	}

	expenses := p.MonthlyExpenses.Or(decimal.Zero)
	estimated := !p.MonthlyExpenses.Positive()
	if estimated {
		expenses = income.Mul(assumedExpenseRatio).Round(0)
	}

	savings := decimal.Max(decimal.Zero, income.Sub(expenses))

	s := Summary{
		MonthlyIncome:      income,
		MonthlyExpenses:    expenses,
		ExpensesEstimated:  estimated,
		MonthlySavings:     savings,
		SavingsRatePercent: percentOf(savings, income),
		EmergencyFundGoal:  expenses.Mul(decimal.NewFromInt(emergencyFundMonths)),
		LoanBurdenPercent:  decimal.Zero,
		OnboardingComplete: p.Complete(),
	}
	if p.HasLoans {
		s.LoanBurdenPercent = percentOf(p.MonthlyLoanPayments.Or(decimal.Zero), income)
	}

	s.SpendingByCategory = make([]Category, 0, len(spendingSplit))
	for _, c := range spendingSplit {
		s.SpendingByCategory = append(s.SpendingByCategory, Category{
			Name:    c.category,
			Percent: c.percent,
			Amount:  expenses.Mul(decimal.NewFromInt(c.percent)).Div(hundred).Round(0),
		})
	}
	return s
}

func percentOf(part, whole decimal.Decimal) decimal.Decimal {
	if !whole.IsPositive() {
		return decimal.Zero
	}
	return part.Div(whole).Mul(hundred).Round(0)
}
