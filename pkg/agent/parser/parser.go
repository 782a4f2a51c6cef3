// Package parser extracts the labeled blocks the agent protocol expects from
// free-form LLM text: <plan>, <report>, <tool_call>, <answer>, <terminate>,
// <write> and <write_outline>.
//
// The parser is deliberately forgiving. Models rehearse blocks earlier in a
// response before committing, so the last non-empty occurrence of each label
// wins. No JSON validation happens here; tool-call payloads are handed to
// the dispatcher as-is.
package parser

import (
	"regexp"
	"strings"
)

var (
	planRe         = regexp.MustCompile(`(?s)<plan>(.*?)</plan>`)
	reportRe       = regexp.MustCompile(`(?s)<report>(.*?)</report>`)
	toolCallRe     = regexp.MustCompile(`(?s)<tool_call>(.*?)</tool_call>`)
	answerRe       = regexp.MustCompile(`(?s)<answer>(.*?)</answer>`)
	terminateRe    = regexp.MustCompile(`(?s)<terminate>(.*?)</terminate>`)
	terminateTagRe = regexp.MustCompile(`<terminate\s*/?>`)
	writeRe        = regexp.MustCompile(`(?s)<write>(.*?)</write>`)
	writeOutlineRe = regexp.MustCompile(`(?s)<write_outline>(.*?)</write_outline>`)
)

// Output is the structured view of one iterative-agent response.
type Output struct {
	Plan            string
	Report          string
	ToolCall        string
	Answer          string
	Terminate       bool
	TerminateReason string
}

// HasAction reports whether the response carried any actionable signal.
func (o Output) HasAction() bool {
	return o.ToolCall != "" || o.Answer != "" || o.Terminate
}

// Parse extracts the iterative-agent blocks from an assistant response.
// <terminate> is a presence signal: an empty body still sets Terminate.
func Parse(text string) Output {
	out := Output{
		Plan:     lastNonEmpty(planRe, text),
		Report:   lastNonEmpty(reportRe, text),
		ToolCall: lastNonEmpty(toolCallRe, text),
		Answer:   lastNonEmpty(answerRe, text),
	}
	if terminateRe.MatchString(text) || terminateTagRe.MatchString(text) {
		out.Terminate = true
		out.TerminateReason = lastNonEmpty(terminateRe, text)
	}
	return out
}

// ActionKind classifies a planner or writer step.
type ActionKind string

const (
	ActionToolCall     ActionKind = "tool_call"
	ActionWriteOutline ActionKind = "write_outline"
	ActionWrite        ActionKind = "write"
	ActionTerminate    ActionKind = "terminate"
	ActionError        ActionKind = "error"
)

// StepOutput is the structured view of one planner or writer response.
type StepOutput struct {
	Plan    string
	Kind    ActionKind
	Payload string
}

// ParsePlannerStep extracts <plan> plus one of <tool_call>, <write_outline>
// or <terminate>. Terminate takes priority, then write_outline, then
// tool_call; a response with none of them yields ActionError with a
// human-readable diagnostic in Payload.
func ParsePlannerStep(text string) StepOutput {
	out := StepOutput{Plan: lastNonEmpty(planRe, text)}
	switch {
	case terminateRe.MatchString(text) || terminateTagRe.MatchString(text):
		out.Kind = ActionTerminate
	case writeOutlineRe.MatchString(text):
		out.Kind = ActionWriteOutline
		out.Payload = lastNonEmpty(writeOutlineRe, text)
	case toolCallRe.MatchString(text):
		out.Kind = ActionToolCall
		out.Payload = lastNonEmpty(toolCallRe, text)
	default:
		out.Kind = ActionError
		out.Payload = "No valid action tag found. Must use <tool_call>, <write_outline>, or <terminate>."
	}
	return out
}

// ParseWriterStep extracts <plan> plus one of <tool_call>, <write> or
// <terminate>, with the same priority scheme as ParsePlannerStep.
func ParseWriterStep(text string) StepOutput {
	out := StepOutput{Plan: lastNonEmpty(planRe, text)}
	switch {
	case terminateRe.MatchString(text) || terminateTagRe.MatchString(text):
		out.Kind = ActionTerminate
	case writeRe.MatchString(text):
		out.Kind = ActionWrite
		out.Payload = lastNonEmpty(writeRe, text)
	case toolCallRe.MatchString(text):
		out.Kind = ActionToolCall
		out.Payload = lastNonEmpty(toolCallRe, text)
	default:
		out.Kind = ActionError
		out.Payload = "No valid action tag found. Must use <tool_call> (retrieve), <write>, or <terminate>."
	}
	return out
}

// ParseFinal is the multi-turn variant's terminal check: <answer> wins over
// <terminate>; a terminate body doubles as the answer.
func ParseFinal(text string) (answer string, terminate bool) {
	if a := lastNonEmpty(answerRe, text); a != "" {
		return a, true
	}
	if terminateRe.MatchString(text) || terminateTagRe.MatchString(text) {
		return lastNonEmpty(terminateRe, text), true
	}
	return "", false
}

func lastNonEmpty(re *regexp.Regexp, text string) string {
	matches := re.FindAllStringSubmatch(text, -1)
	for i := len(matches) - 1; i >= 0; i-- {
		if m := strings.TrimSpace(matches[i][1]); m != "" {
			return m
		}
	}
	return ""
}
