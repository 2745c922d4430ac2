package gate

import (
	"fmt"
	"strings"

	"github.com/synapse-market/synapse-core/internal/domain"
)

// contentPreviewLimit bounds how much plan content goes into a prompt
const contentPreviewLimit = 4000

func truncateContent(content string) string {
	if len(content) <= contentPreviewLimit {
		return content
	}
	return content[:contentPreviewLimit] + "\n[truncated]"
}

// qualityPrompt builds the scoring rubric for one submission
func qualityPrompt(input domain.StorePlanInput) string {
	var b strings.Builder
	b.WriteString(`You are reviewing a knowledge plan submitted to a marketplace. Score its quality from 0 to 100.

Hard-reject rules (any match means the submission must be rejected outright):
- contains credentials, API keys, tokens or other secrets
- contains absolute filesystem paths or machine-specific configuration
- is generic boilerplate with no substantive insight

Score the remaining submissions on six weighted criteria:
- actionability (25): can a reader apply this directly
- specificity (20): concrete versions, commands, numbers over vague advice
- correctness (20): technically sound, no misleading claims
- completeness (15): covers the stated topic without major gaps
- clarity (10): well structured, readable
- originality (10): insight beyond what official docs already say

Reply with only a JSON object:
{"score": <0-100>, "hard_reject": <true|false>, "reasons": ["<short reason>", ...]}

Submission:
`)
	fmt.Fprintf(&b, "Title: %s\n", input.Title)
	if input.Domain != "" {
		fmt.Fprintf(&b, "Domain: %s\n", input.Domain)
	}
	if len(input.Tags) > 0 {
		fmt.Fprintf(&b, "Tags: %s\n", strings.Join(input.Tags, ", "))
	}
	fmt.Fprintf(&b, "Content:\n%s\n", truncateContent(input.Content))
	return b.String()
}

// similarityPrompt builds a pairwise semantic comparison for one candidate
func similarityPrompt(input domain.StorePlanInput, candidate *domain.Plan) string {
	var b strings.Builder
	b.WriteString(`Compare the two knowledge plans below and rate how semantically similar they are from 0 to 100, where 100 means they teach the same thing and one makes the other redundant.

Reply with only a JSON object:
{"score": <0-100>, "rationale": "<one line>"}

Plan A:
`)
	fmt.Fprintf(&b, "Title: %s\n", input.Title)
	fmt.Fprintf(&b, "Content:\n%s\n\n", truncateContent(input.Content))
	b.WriteString("Plan B:\n")
	fmt.Fprintf(&b, "Title: %s\n", candidate.Title)
	fmt.Fprintf(&b, "Content:\n%s\n", truncateContent(candidate.Content))
	return b.String()
}
