package usecase

import (
	"regexp"
	"strings"

	"commission-intake/internal/domain"
)

var summaryTagPattern = regexp.MustCompile(`\[REQUEST:\s*(.*?)\]`)

func buildPromptMessages(transcript []domain.Message, categories []string) []domain.ChatMessage {
	messages := []domain.ChatMessage{
		{Role: "system", Content: buildInstructionPrompt(categories)},
	}
	// The instruction takes the place of the greeting.
	for i, m := range transcript {
		if i == 0 {
			continue
		}
		content := strings.TrimSpace(m.Content)
		if content == "" {
			continue
		}
		messages = append(messages, domain.ChatMessage{Role: providerRole(m.Role), Content: content})
	}
	return messages
}

func buildInstructionPrompt(categories []string) string {
	return strings.Join([]string{
		"Role:",
		"You are a friendly assistant helping customers commission work from an artisan who creates " + describeCategories(categories) + ".",
		"",
		"Behavior Rules:",
		behaviorRules(),
		"",
		"Output Contract:",
		outputContract(),
	}, "\n")
}

func behaviorRules() string {
	return strings.Join([]string{
		"1) Keep every reply short and friendly: 2-3 sentences at most.",
		"2) Help the customer describe what they want made.",
		"3) Do not ask for extremely detailed specs; the maker will interpret the request creatively.",
		"4) Do not ask for payment or shipping details.",
	}, "\n")
}

func outputContract() string {
	return "End every reply with a single short phrase summarizing the current request, using exactly the format " +
		"[REQUEST: <summary of what they want>]. " +
		"Example: [REQUEST: Blue ceramic coffee mug with mountain design]"
}

func describeCategories(categories []string) string {
	var cleaned []string
	for _, c := range categories {
		if c = joinFields(c); c != "" {
			cleaned = append(cleaned, c)
		}
	}
	if len(cleaned) == 0 {
		return "handmade pieces"
	}
	return strings.Join(cleaned, " and ")
}

func providerRole(r domain.Role) string {
	if r == domain.RoleCustomer {
		return "user"
	}
	return "assistant"
}

// parseSummaryTag strips every [REQUEST: ...] tag from raw and returns the
// visible reply plus the last non-empty tagged phrase.
func parseSummaryTag(raw string) (reply, summary string, tagged bool) {
	for _, m := range summaryTagPattern.FindAllStringSubmatch(raw, -1) {
		if phrase := joinFields(m[1]); phrase != "" {
			summary = phrase
			tagged = true
		}
	}
	reply = strings.TrimSpace(summaryTagPattern.ReplaceAllString(raw, ""))
	return reply, summary, tagged
}

func joinFields(s string) string {
	return strings.Join(strings.Fields(strings.TrimSpace(s)), " ")
}
