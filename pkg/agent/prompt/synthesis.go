package prompt

import (
	"fmt"
	"strings"
)

// SynthesisSystem instructs the lead-researcher model that merges the
// findings of the parallel samples into one final answer.
const SynthesisSystem = `You are a top-tier Lead Researcher responsible for synthesizing the findings of multiple researchers.
Your task is to review the reports and answers from multiple parallel researchers, then combine all the information to produce a single final answer that is the most accurate and most comprehensive.

Workflow:
1. Cross-validation: Compare the facts and conclusions across the reports and identify agreements and discrepancies.
2. Conflict resolution: When reports conflict, make the best judgement based on evidence quality and logical rigor.
3. Synthesis: Do not simply pick one answer; integrate the valid information from all reports into a better one.
4. Quality first: Prefer conclusions that are clearly reasoned and well evidenced.

Output requirements:
- Output only the final answer; do not discuss your synthesis process
- The answer must be accurate, concise, and verifiable`

// ResearcherFinding is one parallel sample's contribution to the synthesis
// prompt.
type ResearcherFinding struct {
	Answer      string
	Report      string
	Termination string
}

// SynthesisUser renders the user message listing every researcher's answer
// and report for the synthesis call.
func SynthesisUser(question string, findings []ResearcherFinding) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[Original Research Question]\n%s\n\n", question)
	b.WriteString("[Reports and Answers from Parallel Researchers]\n")
	for i, f := range findings {
		status := f.Termination
		if status == "" {
			status = "unknown"
		}
		fmt.Fprintf(&b, "\n--- Researcher %d (status: %s) ---\n", i+1, status)
		fmt.Fprintf(&b, "[Researcher %d's Answer]\n%s\n", i+1, orNA(f.Answer))
		fmt.Fprintf(&b, "[Researcher %d's Final Report]\n%s\n", i+1, orNA(f.Report))
	}
	return b.String()
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
