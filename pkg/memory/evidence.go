package memory

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/webresearcher/webresearcher/pkg/tools"
)

// evidenceTool wraps a base tool for the planner loop: the tool output is
// chunked into evidence, stored in the bank, and the observation returned to
// the planner is the list of citation IDs with summaries instead of the raw
// result.
type evidenceTool struct {
	base        tools.Tool
	bank        *Bank
	description string
	chunk       func(args map[string]any, result string) []Evidence
}

func (t *evidenceTool) Name() string               { return t.base.Name() }
func (t *evidenceTool) Description() string        { return t.description }
func (t *evidenceTool) Parameters() map[string]any { return t.base.Parameters() }

func (t *evidenceTool) Call(ctx context.Context, args map[string]any) (string, error) {
	result, err := t.base.Call(ctx, args)
	if err != nil {
		return "", err
	}

	chunks := t.chunk(args, result)
	if len(chunks) == 0 {
		chunks = []Evidence{{Content: result, Summary: clipSummary(result, 300)}}
	}
	observations := make([]string, 0, len(chunks))
	for _, ev := range chunks {
		observations = append(observations, t.bank.AddEvidence(ev.Content, ev.Summary))
	}
	return strings.Join(observations, "\n"), nil
}

// WrapSearch adapts the web search tool: each numbered result becomes one
// evidence chunk keyed by title and URL.
func WrapSearch(bank *Bank, base tools.Tool) tools.Tool {
	return &evidenceTool{
		base:        base,
		bank:        bank,
		description: "Searches the web for information, extracts evidence from results, and saves it to the memory bank with citation IDs.",
		chunk: func(_ map[string]any, result string) []Evidence {
			return chunkNumberedResults(result, "Snippet", 10, true)
		},
	}
}

// WrapScholar adapts the Google Scholar tool: each paper becomes one
// evidence chunk.
func WrapScholar(bank *Bank, base tools.Tool) tools.Tool {
	return &evidenceTool{
		base:        base,
		bank:        bank,
		description: "Searches Google Scholar for academic papers, extracts evidence, and saves it to the memory bank with citation IDs.",
		chunk: func(_ map[string]any, result string) []Evidence {
			return chunkNumberedResults(result, "Content", 15, false)
		},
	}
}

// WrapVisit adapts the page visit tool: each visited page report is stored
// as one evidence chunk.
func WrapVisit(bank *Bank, base tools.Tool) tools.Tool {
	return &evidenceTool{
		base:        base,
		bank:        bank,
		description: "Visits webpage(s), extracts the useful content, and saves it to the memory bank with citation IDs.",
		chunk: func(_ map[string]any, result string) []Evidence {
			var out []Evidence
			for _, section := range strings.Split(result, "\n=======\n") {
				section = strings.TrimSpace(section)
				if section == "" {
					continue
				}
				out = append(out, Evidence{Content: section, Summary: clipSummary(section, 300)})
			}
			return out
		},
	}
}

// WrapPython adapts the code sandbox: the code plus its execution result is
// stored as one evidence chunk.
func WrapPython(bank *Bank, base tools.Tool) tools.Tool {
	return &evidenceTool{
		base:        base,
		bank:        bank,
		description: "Executes Python code in a sandbox and saves the execution result to the memory bank with a citation ID.",
		chunk: func(args map[string]any, result string) []Evidence {
			code, _ := args["code"].(string)
			if strings.TrimSpace(result) == "" {
				return []Evidence{{
					Content: fmt.Sprintf("Python Code:\n```python\n%s\n```\n\nExecution Result: No output", code),
					Summary: "Python code executed with no output",
				}}
			}
			return []Evidence{{
				Content: fmt.Sprintf("Python Code:\n```python\n%s\n```\n\nExecution Result:\n%s", code, result),
				Summary: "Python execution result: " + clipSummary(result, 200),
			}}
		},
	}
}

// WrapFile adapts the file parser: the parsed content of the batch is stored
// as one evidence chunk.
func WrapFile(bank *Bank, base tools.Tool) tools.Tool {
	return &evidenceTool{
		base:        base,
		bank:        bank,
		description: "Parses files (PDF, DOCX, etc.) and saves content to the memory bank with citation IDs.",
		chunk: func(args map[string]any, result string) []Evidence {
			files, _ := args["files"].([]any)
			names := make([]string, 0, len(files))
			for _, f := range files {
				if s, ok := f.(string); ok {
					names = append(names, s)
				}
			}
			joined := strings.Join(names, ", ")
			if strings.TrimSpace(result) == "" {
				return []Evidence{{
					Content: fmt.Sprintf("Files: %s\nContent: No content extracted", joined),
					Summary: fmt.Sprintf("No content found in %d file(s)", len(names)),
				}}
			}
			return []Evidence{{
				Content: fmt.Sprintf("Files: %s\nContent: %s", joined, result),
				Summary: fmt.Sprintf("File content from %d file(s): %s", len(names), clipSummary(result, 200)),
			}}
		},
	}
}

var numberedResultRe = regexp.MustCompile(`^\d+\. \[(.*)\]\((.*)\)$`)

// chunkNumberedResults parses the "N. [Title](URL)" blocks that the search
// and scholar tools produce. The lines following each heading up to the next
// numbered result form the body; metadata lines (Date published, Source) are
// skipped for search results.
func chunkNumberedResults(result, bodyLabel string, lookahead int, skipMeta bool) []Evidence {
	var out []Evidence
	for _, section := range strings.Split(result, "\n=======\n") {
		lines := strings.Split(section, "\n")
		for i, line := range lines {
			m := numberedResultRe.FindStringSubmatch(strings.TrimSpace(line))
			if m == nil {
				continue
			}
			title, url := m[1], m[2]

			var body []string
			for j := i + 1; j < len(lines) && j <= i+lookahead; j++ {
				next := strings.TrimSpace(lines[j])
				if numberedResultRe.MatchString(next) {
					break
				}
				if next == "" {
					continue
				}
				if skipMeta && (strings.HasPrefix(next, "Date published:") || strings.HasPrefix(next, "Source:")) {
					continue
				}
				body = append(body, next)
			}
			text := strings.TrimSpace(strings.Join(body, " "))
			if text == "" {
				continue
			}
			out = append(out, Evidence{
				Content: fmt.Sprintf("Title: %s\nURL: %s\n%s: %s", title, url, bodyLabel, text),
				Summary: fmt.Sprintf("[%s] %s", title, clipSummary(text, 200)),
			})
		}
	}
	return out
}

func clipSummary(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}
