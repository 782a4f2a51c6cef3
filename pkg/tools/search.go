package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"unicode"
)

const (
	// DefaultSerperBaseURL is the production Serper endpoint. Tests point
	// it at an httptest server instead.
	DefaultSerperBaseURL = "https://google.serper.dev"

	searchConcurrency = 3
)

// SearchTool performs Google web searches through the Serper API. Multiple
// queries are searched concurrently and the formatted snippet blocks are
// joined in query order.
type SearchTool struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewSearchTool builds a web search tool backed by the Serper API. An empty
// key is allowed; calls then report that no results could be fetched.
func NewSearchTool(apiKey string) *SearchTool {
	return &SearchTool{
		apiKey:  apiKey,
		baseURL: DefaultSerperBaseURL,
		client:  http.DefaultClient,
	}
}

// WithHTTPClient overrides the HTTP client and base URL, for tests.
func (t *SearchTool) WithHTTPClient(client *http.Client, baseURL string) *SearchTool {
	t.client = client
	t.baseURL = baseURL
	return t
}

func (t *SearchTool) Name() string { return "search" }

func (t *SearchTool) Description() string {
	return "Performs batched web searches: supply an array 'query'; the tool retrieves the top 10 results for each query in one call."
}

func (t *SearchTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "string"},
				"description": "Array of query strings. Include multiple complementary search queries in a single call.",
			},
		},
		"required": []any{"query"},
	}
}

// Call searches every query and joins the formatted result blocks with a
// "=======" separator line.
func (t *SearchTool) Call(ctx context.Context, args map[string]any) (string, error) {
	queries, err := stringSlice(args["query"])
	if err != nil || len(queries) == 0 {
		return "", fmt.Errorf("[Search] Invalid request format: Input must be a JSON object containing 'query' field")
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

func (t *SearchTool) searchOne(ctx context.Context, query string) string {
	if t.apiKey == "" {
		slog.Warn("SERPER_API_KEY is not set, web search is unavailable")
		return noResultsMessage(query)
	}

	payload := map[string]any{"q": query}
	if containsChinese(query) {
		payload["location"] = "China"
		payload["gl"] = "cn"
		payload["hl"] = "zh-cn"
	} else {
		payload["location"] = "United States"
		payload["gl"] = "us"
		payload["hl"] = "en"
	}

	resp, err := t.post(ctx, "/search", payload)
	if err != nil {
		slog.Error("Serper search request failed", "query", query, "error", err)
		return noResultsMessage(query)
	}

	var parsed struct {
		Organic []serperOrganic `json:"organic"`
	}
	if err := json.Unmarshal(resp, &parsed); err != nil {
		slog.Error("Serper search response unparsable", "query", query, "error", err)
		return noResultsMessage(query)
	}
	if len(parsed.Organic) == 0 {
		return noResultsMessage(query)
	}

	snippets := make([]string, 0, len(parsed.Organic))
	for i, page := range parsed.Organic {
		var b strings.Builder
		fmt.Fprintf(&b, "%d. [%s](%s)", i+1, page.Title, page.Link)
		if page.Date != "" {
			fmt.Fprintf(&b, "\nDate published: %s", page.Date)
		}
		if page.Source != "" {
			fmt.Fprintf(&b, "\nSource: %s", page.Source)
		}
		if page.Snippet != "" {
			snippet := strings.ReplaceAll(page.Snippet, "Your browser can't play this video.", "")
			fmt.Fprintf(&b, "\n\n%s", strings.TrimSpace(snippet))
		}
		snippets = append(snippets, b.String())
	}

	header := fmt.Sprintf("A Google search for '%s' found %d results:\n\n## Web Results\n", query, len(snippets))
	return header + strings.Join(snippets, "\n\n")
}

func (t *SearchTool) post(ctx context.Context, path string, payload map[string]any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("X-API-KEY", t.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

type serperOrganic struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet"`
	Date    string `json:"date"`
	Source  string `json:"source"`
}

func noResultsMessage(query string) string {
	return fmt.Sprintf("No results found for query: '%s'. Try using a less specific query.", query)
}

// containsChinese reports whether the query holds at least one Han character,
// which switches the search locale to China.
func containsChinese(s string) bool {
	for _, r := range s {
		if unicode.Is(unicode.Han, r) {
			return true
		}
	}
	return false
}

// stringSlice coerces a decoded JSON value into a list of strings. A bare
// string becomes a single-element list.
func stringSlice(v any) ([]string, error) {
	switch val := v.(type) {
	case nil:
		return nil, fmt.Errorf("missing value")
	case string:
		return []string{val}, nil
	case []string:
		return val, nil
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("expected string element, got %T", item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected string or array of strings, got %T", v)
	}
}
