package usecase

import (
	"fmt"
	"strings"

	"findost/internal/domain"
)

const (
	notProvided = "Not provided"
	disclaimer  = "Remember, I'm an AI assistant. It's a good idea to consult with a qualified financial advisor for major decisions."
)

// refusals are sent instead of a model reply when a message is not about personal finance.
var refusals = [...]string{
	"As FinDost, my focus is solely on personal finance. I can't answer that, but I'm ready to help with any money-related questions you have!",
	"My purpose is to help you with your finances. I can't provide information on other topics, but I can help you with budgeting, saving, or investing.",
	"That's outside of my area of expertise. I am FinDost, your personal finance assistant. How can I help you with your financial goals today?",
}

// Refusals returns a copy of the canned off-topic replies.
func Refusals() []string {
	return append([]string(nil), refusals[:]...)
}

func buildModerationPrompt(message string) string {
	return fmt.Sprintf(
		`Is the following question about personal finance (budgeting, saving, investing, debt, salary, etc.)? Answer with only "yes" or "no". Question: "%s"`,
		message,
	)
}

// isOnTopic reads the moderation answer. Any answer mentioning "yes" counts.
func isOnTopic(verdict string) bool {
	return strings.Contains(strings.ToLower(strings.TrimSpace(verdict)), "yes")
}

func buildPersonaPrompt(p domain.Profile) string {
	lines := []string{
		"**CRITICAL RULE: You are FinDost, a financial AI assistant. Your ONLY function is to answer questions about personal finance.**",
		"**Persona for Financial Questions:**",
		"- You are an empathetic, encouraging, and clear financial coach for young adults in India.",
		"- Explain complex topics simply, without jargon.",
		"- Your goal is to build the user's confidence.",
		"- Personalize your advice using the user's profile:",
	}
	lines = append(lines, profileLines(p)...)
	if tone := toneRule(p.CommunicationPreference); tone != "" {
		lines = append(lines, tone)
	}
	lines = append(lines,
		"**MANDATORY DISCLAIMER:**",
		fmt.Sprintf("- For ALL financial-related answers, you MUST end your response with this exact disclaimer: %q", disclaimer),
	)
	return strings.Join(lines, "\n")
}

func profileLines(p domain.Profile) []string {
	lines := []string{
		"    - Name: " + orNotProvided(p.FullName),
		"    - Age: " + orNotProvided(p.Age.String()),
		"    - Profession: " + orNotProvided(p.Profession),
		"    - Monthly Salary: " + rupees(p.MonthlySalaryINR),
	}
	if p.MonthlyExpenses.Valid {
		lines = append(lines, "    - Monthly Expenses: "+rupees(p.MonthlyExpenses))
	}
	if goals := joinFilled(p.FinancialGoals); goals != "" {
		lines = append(lines, "    - Financial Goals: "+goals)
	}
	if s := strings.TrimSpace(p.RiskTolerance); s != "" {
		lines = append(lines, "    - Risk Tolerance: "+s)
	}
	if s := strings.TrimSpace(p.InvestmentExperience); s != "" {
		lines = append(lines, "    - Investment Experience: "+s)
	}
	if p.HasLoans {
		loans := orNotProvided(joinFilled(p.LoanTypes))
		if p.MonthlyLoanPayments.Valid {
			loans += " (" + rupees(p.MonthlyLoanPayments) + " per month)"
		}
		lines = append(lines, "    - Existing Loans: "+loans)
	}
	return lines
}

func toneRule(pref string) string {
	switch strings.ToLower(strings.TrimSpace(pref)) {
	case "casual":
		return "- Keep the tone friendly and conversational."
	case "formal":
		return "- Keep the tone professional and straightforward."
	default:
		return ""
	}
}

// rupees always carries the ₹ prefix, even for "₹Not provided".
func rupees(f domain.Figure) string {
	return "₹" + orNotProvided(f.String())
}

func orNotProvided(s string) string {
	if s = strings.TrimSpace(s); s == "" {
		return notProvided
	}
	return s
}

func joinFilled(values []string) string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return strings.Join(out, ", ")
}

// buildHistory turns client chat rows into model turns. The web client
// appends the message being sent to its history, so a trailing copy of the
// current message is dropped. The result opens with a user turn.
func buildHistory(entries []domain.HistoryEntry, current string, limit int) []domain.ChatMessage {
	kept := make([]domain.HistoryEntry, 0, len(entries))
	for _, e := range entries {
		if strings.TrimSpace(e.Message) == "" {
			continue
		}
		kept = append(kept, e)
	}

	if n := len(kept); n > 0 && kept[n-1].FromUser() && strings.TrimSpace(kept[n-1].Message) == strings.TrimSpace(current) {
		kept = kept[:n-1]
	}
	if limit > 0 && len(kept) > limit {
		kept = kept[len(kept)-limit:]
	}
	for len(kept) > 0 && !kept[0].FromUser() {
		kept = kept[1:]
	}

	messages := make([]domain.ChatMessage, 0, len(kept))
	for _, e := range kept {
		role := domain.RoleModel
		if e.FromUser() {
			role = domain.RoleUser
		}
		messages = append(messages, domain.ChatMessage{Role: role, Content: e.Message})
	}
	return messages
}

// historyFromExchanges rebuilds chat rows from stored exchanges, skipping refusals.
func historyFromExchanges(exchanges []domain.Exchange) []domain.HistoryEntry {
	var entries []domain.HistoryEntry
	for _, ex := range exchanges {
		if !ex.OnTopic {
			continue
		}
		entries = append(entries, ex.HistoryEntries()...)
	}
	return entries
}
