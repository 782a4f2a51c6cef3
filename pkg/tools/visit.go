package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/webresearcher/webresearcher/pkg/agent/prompt"
	"github.com/webresearcher/webresearcher/pkg/llm"
)

const (
	// DefaultJinaBaseURL is the Jina reader endpoint; the target URL is
	// appended to the path.
	DefaultJinaBaseURL = "https://r.jina.ai/"

	localFetchUserAgent = "Mozilla/5.0 (compatible; URLCrawler/1.0; +https://example.com/bot)"

	// visitMaxTokens bounds the webpage content handed to the extractor
	// model, counted with the cl100k_base encoding.
	visitMaxTokens = 95000

	// visitBatchBudget bounds the total wall time spent on a multi-URL
	// visit; URLs past the budget are reported as inaccessible.
	visitBatchBudget = 15 * time.Minute

	pageFetchFailed = "[visit] Failed to read page."
)

// VisitOptions configures a VisitTool.
type VisitOptions struct {
	JinaAPIKey  string
	JinaBaseURL string
	// Extractor distills fetched pages; it should run the summary model.
	Extractor    llm.Client
	HTTPClient   *http.Client
	FetchTimeout time.Duration
	// MaxContentLength caps the fetched page content in characters before
	// token truncation. Zero means 150000.
	MaxContentLength int
}

// VisitTool fetches webpages (through the Jina reader service, falling back
// to a local fetch) and distills them against a user goal with the summary
// model.
type VisitTool struct {
	jinaKey       string
	jinaBaseURL   string
	extractor     llm.Client
	client        *http.Client
	fetchTimeout  time.Duration
	maxContentLen int
}

func NewVisitTool(opts VisitOptions) *VisitTool {
	t := &VisitTool{
		jinaKey:       opts.JinaAPIKey,
		jinaBaseURL:   opts.JinaBaseURL,
		extractor:     opts.Extractor,
		client:        opts.HTTPClient,
		fetchTimeout:  opts.FetchTimeout,
		maxContentLen: opts.MaxContentLength,
	}
	if t.jinaBaseURL == "" {
		t.jinaBaseURL = DefaultJinaBaseURL
	}
	if t.client == nil {
		t.client = http.DefaultClient
	}
	if t.fetchTimeout == 0 {
		t.fetchTimeout = 50 * time.Second
	}
	if t.maxContentLen == 0 {
		t.maxContentLen = 150000
	}
	return t
}

func (t *VisitTool) Name() string { return "visit" }

func (t *VisitTool) Description() string {
	return "Visit webpage(s) and return the summary of the content."
}

func (t *VisitTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":        []any{"string", "array"},
				"items":       map[string]any{"type": "string"},
				"minItems":    1,
				"description": "The URL(s) of the webpage(s) to visit. Can be a single URL or an array of URLs.",
			},
			"goal": map[string]any{
				"type":        "string",
				"description": "The goal of the visit for webpage(s).",
			},
		},
		"required": []any{"url", "goal"},
	}
}

// Call visits every URL in order and joins the per-page reports with a
// "=======" separator line. URLs past the batch time budget are reported as
// inaccessible without being fetched.
func (t *VisitTool) Call(ctx context.Context, args map[string]any) (string, error) {
	goal, _ := args["goal"].(string)
	urls, err := stringSlice(args["url"])
	if err != nil || len(urls) == 0 || goal == "" {
		return "", fmt.Errorf("[Visit] Invalid request format: Input must be a JSON object containing 'url' and 'goal' fields")
	}

	start := time.Now()
	reports := make([]string, 0, len(urls))
	for _, u := range urls {
		if time.Since(start) > visitBatchBudget {
			reports = append(reports, inaccessibleReport(u, goal))
			continue
		}
		reports = append(reports, t.readPage(ctx, u, goal))
	}
	return strings.TrimSpace(strings.Join(reports, "\n=======\n")), nil
}

// readPage fetches one page and runs the extractor model over its content.
func (t *VisitTool) readPage(ctx context.Context, url, goal string) string {
	content := t.fetch(ctx, url)
	if content == "" || strings.HasPrefix(content, pageFetchFailed) || strings.HasPrefix(content, "[visit]") || strings.HasPrefix(content, "[document_parser]") {
		return inaccessibleReport(url, goal)
	}

	if runes := []rune(content); len(runes) > t.maxContentLen {
		content = string(runes[:t.maxContentLen])
	}
	content = llm.TruncateToTokens(content, visitMaxTokens, "")
	extraction, ok := t.extract(ctx, content, goal)
	if !ok {
		return inaccessibleReport(url, goal)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "The useful information in %s for user goal %s as follows: \n\n", url, goal)
	fmt.Fprintf(&b, "Evidence in page: \n%s\n\n", extraction.Evidence)
	fmt.Fprintf(&b, "Summary: \n%s\n\n", extraction.Summary)
	return b.String()
}

type pageExtraction struct {
	Rational string `json:"rational"`
	Evidence string `json:"evidence"`
	Summary  string `json:"summary"`
}

// extract asks the summary model for a JSON extraction of the content. A
// too-short answer triggers one retry with the content cut to 70% and a
// final one at 25000 characters; an unparsable answer is retried twice.
func (t *VisitTool) extract(ctx context.Context, content, goal string) (pageExtraction, bool) {
	temp := float32(0.7)
	ask := func(c string) string {
		msgs := []llm.Message{{Role: llm.RoleUser, Content: prompt.Extractor(c, goal)}}
		resp, err := t.extractor.Complete(ctx, msgs, llm.Options{
			Temperature:     &temp,
			MaxTries:        2,
			FailureSentinel: "",
		})
		if err != nil || resp == nil || resp.Failed {
			return ""
		}
		return extractJSONObject(resp.Content)
	}

	raw := ask(content)
	for retries := 1; len(raw) < 10 && retries >= 0; retries-- {
		limit := int(0.7 * float64(len(content)))
		if retries == 0 {
			limit = 25000
		}
		if limit < len(content) {
			content = content[:limit]
		}
		raw = ask(content)
	}

	raw = strings.TrimSpace(strings.ReplaceAll(strings.ReplaceAll(raw, "```json", ""), "```", ""))
	var out pageExtraction
	for attempt := 1; attempt < 3; attempt++ {
		if err := json.Unmarshal([]byte(raw), &out); err == nil {
			return out, true
		}
		raw = ask(content)
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		slog.Warn("visit extraction unparsable after retries", "goal", goal)
		return pageExtraction{}, false
	}
	return out, true
}

// fetch reads a URL through Jina when a key is configured, falling back to a
// direct local fetch on any failure.
func (t *VisitTool) fetch(ctx context.Context, url string) string {
	if strings.TrimSpace(t.jinaKey) == "" {
		return t.localFetch(ctx, url)
	}

	reqCtx, cancel := context.WithTimeout(ctx, t.fetchTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, t.jinaBaseURL+url, nil)
	if err != nil {
		return t.localFetch(ctx, url)
	}
	req.Header.Set("Authorization", "Bearer "+t.jinaKey)

	resp, err := t.client.Do(req)
	if err != nil {
		slog.Debug("Jina fetch failed, falling back to local fetch", "url", url, "error", err)
		return t.localFetch(ctx, url)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		slog.Debug("Jina fetch failed, falling back to local fetch", "url", url, "status", resp.StatusCode)
		return t.localFetch(ctx, url)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return t.localFetch(ctx, url)
	}
	return string(body)
}

func (t *VisitTool) localFetch(ctx context.Context, url string) string {
	reqCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Sprintf("[visit] Failed to fetch page: %v", err)
	}
	req.Header.Set("User-Agent", localFetchUserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	resp, err := t.client.Do(req)
	if err != nil {
		if reqCtx.Err() == context.DeadlineExceeded {
			return fmt.Sprintf("[visit] Timeout while fetching %s", url)
		}
		return fmt.Sprintf("[visit] Failed to fetch page: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Sprintf("[visit] HTTP error: %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	contentType := strings.ToLower(resp.Header.Get("Content-Type"))
	if !strings.Contains(contentType, "text") && !strings.Contains(contentType, "html") && !strings.Contains(contentType, "xml") {
		slog.Warn("unsupported content type for visit", "url", url, "content_type", contentType)
		return fmt.Sprintf("[visit] Unsupported content type: %s", contentType)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Sprintf("[visit] Failed to fetch page: %v", err)
	}
	return htmlToMarkdown(string(body))
}

func inaccessibleReport(url, goal string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "The useful information in %s for user goal %s as follows: \n\n", url, goal)
	b.WriteString("Evidence in page: \nThe provided webpage content could not be accessed. Please check the URL or file format.\n\n")
	b.WriteString("Summary: \nThe webpage content could not be processed, and therefore, no information is available.\n\n")
	return b.String()
}

// extractJSONObject trims a model answer to the outermost brace pair so that
// prose around the JSON object does not break decoding.
func extractJSONObject(s string) string {
	if s == "" {
		return s
	}
	if json.Valid([]byte(s)) {
		return s
	}
	left := strings.Index(s, "{")
	right := strings.LastIndex(s, "}")
	if left != -1 && right != -1 && left <= right {
		return s[left : right+1]
	}
	return s
}

var blankLinesRe = regexp.MustCompile(`\n{3,}`)

// skippedElements are stripped wholesale when converting HTML to text.
var skippedElements = map[string]bool{
	"script": true, "style": true, "noscript": true,
	"nav": true, "footer": true, "aside": true,
	"form": true, "figure": true, "header": true,
}

// htmlToMarkdown renders an HTML document as lightweight markdown: headings
// keep their level, links keep their target, boilerplate elements are
// dropped.
func htmlToMarkdown(source string) string {
	doc, err := html.Parse(strings.NewReader(source))
	if err != nil {
		return source
	}

	var title string
	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			name := n.Data
			if skippedElements[name] {
				return
			}
			switch name {
			case "title":
				if n.FirstChild != nil && title == "" {
					title = strings.TrimSpace(n.FirstChild.Data)
				}
				return
			case "h1", "h2", "h3", "h4", "h5", "h6":
				b.WriteString("\n\n" + strings.Repeat("#", int(name[1]-'0')) + " ")
			case "p", "div", "section", "article", "li", "tr", "br":
				b.WriteString("\n")
			case "a":
				if href := attrValue(n, "href"); href != "" {
					b.WriteString("[")
					for c := n.FirstChild; c != nil; c = c.NextSibling {
						walk(c)
					}
					b.WriteString("](" + href + ")")
					return
				}
			}
		}
		if n.Type == html.TextNode {
			if text := strings.TrimSpace(n.Data); text != "" {
				b.WriteString(text + " ")
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	text := blankLinesRe.ReplaceAllString(strings.ReplaceAll(b.String(), "\r\n", "\n"), "\n\n")
	text = strings.TrimSpace(text)
	if title != "" && !strings.HasPrefix(text, "# ") {
		text = "# " + title + "\n\n" + text
	}
	return text
}

func attrValue(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
