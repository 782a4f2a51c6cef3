package memory

import (
	"context"
	"fmt"
)

// RetrieveTool is the writer's only tool: it fetches stored evidence from
// the bank by citation IDs.
type RetrieveTool struct {
	bank *Bank
}

func NewRetrieveTool(bank *Bank) *RetrieveTool {
	return &RetrieveTool{bank: bank}
}

func (t *RetrieveTool) Name() string { return "retrieve" }

func (t *RetrieveTool) Description() string {
	return "Retrieves the full evidence content from the memory bank for the given citation IDs."
}

func (t *RetrieveTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"citation_ids": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "string"},
				"description": "The citation IDs (e.g. [\"id_1\", \"id_2\"]) of the evidence to retrieve.",
			},
		},
		"required": []any{"citation_ids"},
	}
}

func (t *RetrieveTool) Call(_ context.Context, args map[string]any) (string, error) {
	ids, err := stringIDs(args["citation_ids"])
	if err != nil || len(ids) == 0 {
		return "Error: 'citation_ids' parameter is required and cannot be empty.", nil
	}
	return t.bank.Retrieve(ids), nil
}

func stringIDs(v any) ([]string, error) {
	switch val := v.(type) {
	case string:
		return []string{val}, nil
	case []string:
		return val, nil
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("expected string citation ID, got %T", item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected array of citation IDs, got %T", v)
	}
}
