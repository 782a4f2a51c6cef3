package tools

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/xuri/excelize/v2"
)

// FileTool extracts text from local documents. Paths are resolved relative
// to the configured file directory and may not escape it.
type FileTool struct {
	fileDir string
}

func NewFileTool(fileDir string) *FileTool {
	return &FileTool{fileDir: fileDir}
}

func (t *FileTool) Name() string { return "parse_file" }

func (t *FileTool) Description() string {
	return "Parses local files (PDF, DOCX, XLSX, CSV, TXT and other plain text formats) and returns their text content."
}

func (t *FileTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"files": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "string"},
				"description": "Array of file names to parse.",
			},
		},
		"required": []any{"files"},
	}
}

// Call parses every requested file and joins the per-file sections. A file
// that cannot be parsed yields an error line instead of failing the batch.
func (t *FileTool) Call(ctx context.Context, args map[string]any) (string, error) {
	files, err := stringSlice(args["files"])
	if err != nil || len(files) == 0 {
		return "Error: 'files' parameter is required and cannot be empty.", nil
	}

	sections := make([]string, 0, len(files))
	for _, name := range files {
		select {
		case <-ctx.Done():
			return strings.Join(sections, "\n\n"), ctx.Err()
		default:
		}
		content, err := t.parseOne(ctx, name)
		if err != nil {
			sections = append(sections, fmt.Sprintf("[document_parser] Failed to parse %s: %v", name, err))
			continue
		}
		sections = append(sections, fmt.Sprintf("File: %s\n%s", name, content))
	}
	return strings.Join(sections, "\n\n"), nil
}

func (t *FileTool) parseOne(ctx context.Context, name string) (string, error) {
	path, err := t.resolve(name)
	if err != nil {
		return "", err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return parsePDF(ctx, path)
	case ".docx":
		return parseDocx(path)
	case ".xlsx":
		return parseExcel(ctx, path)
	case ".csv":
		return parseCSV(path)
	default:
		data, err := os.ReadFile(path)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
}

// resolve joins the name onto the file directory and rejects paths that
// escape it.
func (t *FileTool) resolve(name string) (string, error) {
	base, err := filepath.Abs(t.fileDir)
	if err != nil {
		return "", err
	}
	path := filepath.Clean(filepath.Join(base, name))
	if path != base && !strings.HasPrefix(path, base+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes file directory: %s", name)
	}
	return path, nil
}

func parsePDF(ctx context.Context, path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	reader, err := pdf.NewReader(f, info.Size())
	if err != nil {
		return "", fmt.Errorf("failed to parse PDF: %w", err)
	}

	var pages []string
	for pageNum := 1; pageNum <= reader.NumPage(); pageNum++ {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}
		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			pages = append(pages, fmt.Sprintf("--- Page %d (extraction failed: %v) ---", pageNum, err))
			continue
		}
		if strings.TrimSpace(text) != "" {
			pages = append(pages, fmt.Sprintf("--- Page %d ---\n%s", pageNum, text))
		}
	}
	return strings.Join(pages, "\n\n"), nil
}

func parseDocx(path string) (string, error) {
	doc, err := docx.ReadDocxFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to parse DOCX: %w", err)
	}
	defer doc.Close()
	return doc.Editable().GetContent(), nil
}

func parseExcel(ctx context.Context, path string) (string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to parse XLSX: %w", err)
	}
	defer f.Close()

	var sheetsOut []string
	for _, sheet := range f.GetSheetList() {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}
		rows, err := f.GetRows(sheet)
		if err != nil {
			sheetsOut = append(sheetsOut, fmt.Sprintf("--- Sheet: %s ---\nError reading sheet: %v", sheet, err))
			continue
		}
		var b strings.Builder
		fmt.Fprintf(&b, "--- Sheet: %s ---\n", sheet)
		for _, row := range rows {
			b.WriteString(strings.Join(row, "\t") + "\n")
		}
		sheetsOut = append(sheetsOut, strings.TrimSpace(b.String()))
	}
	return strings.Join(sheetsOut, "\n\n"), nil
}

func parseCSV(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return "", fmt.Errorf("failed to parse CSV: %w", err)
	}
	lines := make([]string, 0, len(records))
	for _, rec := range records {
		lines = append(lines, strings.Join(rec, "\t"))
	}
	return strings.Join(lines, "\n"), nil
}
