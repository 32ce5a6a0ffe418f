package domain

import "strings"

// Profile mirrors the profiles row written by the onboarding wizard.
type Profile struct {
	ID                      string   `json:"id,omitempty"`
	FullName                string   `json:"full_name"`
	Age                     Figure   `json:"age"`
	Gender                  string   `json:"gender"`
	Profession              string   `json:"profession"`
	MonthlySalaryINR        Figure   `json:"monthly_salary_inr"`
	EmploymentType          string   `json:"employment_type"`
	MonthlyExpenses         Figure   `json:"monthly_expenses"`
	FinancialGoals          []string `json:"financial_goals"`
	RiskTolerance           string   `json:"risk_tolerance"`
	InvestmentExperience    string   `json:"investment_experience"`
	HasLoans                bool     `json:"has_loans"`
	LoanTypes               []string `json:"loan_types"`
	MonthlyLoanPayments     Figure   `json:"monthly_loan_payments"`
	CommunicationPreference string   `json:"communication_preference"`
	NotificationFrequency   string   `json:"notification_frequency"`
}

// OnboardingSteps is the number of pages in the onboarding wizard.
const OnboardingSteps = 4

// MissingFields lists the required fields of an onboarding step that are not
// filled in. Steps outside the wizard have no requirements.
func (p Profile) MissingFields(step int) []string {
	var missing []string
	require := func(name string, ok bool) {
		if !ok {
			missing = append(missing, name)
		}
	}

	switch step {
	case 1:
		require("full_name", filled(p.FullName))
		require("age", p.Age.Positive())
		require("gender", filled(p.Gender))
		require("profession", filled(p.Profession))
	case 2:
		require("monthly_salary_inr", p.MonthlySalaryINR.Positive())
		require("employment_type", filled(p.EmploymentType))
		require("monthly_expenses", p.MonthlyExpenses.Positive())
	case 3:
		require("financial_goals", anyFilled(p.FinancialGoals))
		require("risk_tolerance", filled(p.RiskTolerance))
		require("investment_experience", filled(p.InvestmentExperience))
	case 4:
		if p.HasLoans {
			require("loan_types", anyFilled(p.LoanTypes))
			require("monthly_loan_payments", p.MonthlyLoanPayments.Positive())
		}
	}
	return missing
}

// Complete reports whether every onboarding step is satisfied.
func (p Profile) Complete() bool {
	for step := 1; step <= OnboardingSteps; step++ {
		if len(p.MissingFields(step)) > 0 {
			return false
		}
	}
	return true
}

func filled(s string) bool {
	return strings.TrimSpace(s) != ""
}

func anyFilled(values []string) bool {
	for _, v := range values {
		if filled(v) {
			return true
		}
	}
	return false
}
