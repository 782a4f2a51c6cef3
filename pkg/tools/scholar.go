package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
)

// ScholarTool searches Google Scholar through the Serper API.
type ScholarTool struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewScholarTool builds a Google Scholar search tool backed by the Serper API.
func NewScholarTool(apiKey string) *ScholarTool {
	return &ScholarTool{
		apiKey:  apiKey,
		baseURL: DefaultSerperBaseURL,
		client:  http.DefaultClient,
	}
}

// WithHTTPClient overrides the HTTP client and base URL, for tests.
func (t *ScholarTool) WithHTTPClient(client *http.Client, baseURL string) *ScholarTool {
	t.client = client
	t.baseURL = baseURL
	return t
}

func (t *ScholarTool) Name() string { return "google_scholar" }

func (t *ScholarTool) Description() string {
	return "Searches Google Scholar for academic publications: supply an array 'query' to retrieve papers with citation counts, publication venues and PDF links."
}

func (t *ScholarTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "string"},
				"description": "Array of academic search queries.",
			},
		},
		"required": []any{"query"},
	}
}

func (t *ScholarTool) Call(ctx context.Context, args map[string]any) (string, error) {
	queries, err := stringSlice(args["query"])
	if err != nil || len(queries) == 0 {
		return "", fmt.Errorf("[Scholar] Invalid request format: Input must be a JSON object containing 'query' field")
	}
	if t.apiKey == "" {
		return "Error: SERPER_API_KEY environment variable is not set.", nil
	}

	results := make([]string, len(queries))
	sem := make(chan struct{}, searchConcurrency)
	var wg sync.WaitGroup
	for i, q := range queries {
		wg.Add(1)
		go func(i int, q string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results[i] = t.searchOne(ctx, q)
		}(i, q)
	}
	wg.Wait()

	return strings.Join(results, "\n=======\n"), nil
}

func (t *ScholarTool) searchOne(ctx context.Context, query string) string {
	post := &SearchTool{apiKey: t.apiKey, baseURL: t.baseURL, client: t.client}
	resp, err := post.post(ctx, "/scholar", map[string]any{"q": query})
	if err != nil {
		slog.Error("Serper scholar request failed", "query", query, "error", err)
		return fmt.Sprintf("Google Scholar search failed for query: '%s'. Please try again later.", query)
	}

	var parsed struct {
		Organic []scholarOrganic `json:"organic"`
	}
	if err := json.Unmarshal(resp, &parsed); err != nil {
		slog.Error("Serper scholar response unparsable", "query", query, "error", err)
		return fmt.Sprintf("Google Scholar search failed for query: '%s'. Please try again later.", query)
	}
	if len(parsed.Organic) == 0 {
		return fmt.Sprintf("No results found for query: '%s'. Try using a more general query.", query)
	}

	entries := make([]string, 0, len(parsed.Organic))
	for i, paper := range parsed.Organic {
		link := paper.PDFURL
		if link == "" {
			link = "no available link"
		}
		var b strings.Builder
		fmt.Fprintf(&b, "%d. [%s](%s)", i+1, paper.Title, link)
		if paper.Publication != "" {
			fmt.Fprintf(&b, "\nPublication: %s", paper.Publication)
		}
		if paper.Year != 0 {
			fmt.Fprintf(&b, "\nYear: %d", paper.Year)
		}
		if paper.CitedBy != 0 {
			fmt.Fprintf(&b, "\nCited by: %d", paper.CitedBy)
		}
		if paper.Snippet != "" {
			fmt.Fprintf(&b, "\n\n%s", strings.TrimSpace(paper.Snippet))
		}
		entries = append(entries, b.String())
	}

	header := fmt.Sprintf("Google Scholar search for '%s' found %d results:\n\n## Scholar Results\n", query, len(entries))
	return header + strings.Join(entries, "\n\n")
}

type scholarOrganic struct {
	Title       string `json:"title"`
	PDFURL      string `json:"pdfUrl"`
	Publication string `json:"publicationInfo"`
	Year        int    `json:"year"`
	CitedBy     int    `json:"citedBy"`
	Snippet     string `json:"snippet"`
}
