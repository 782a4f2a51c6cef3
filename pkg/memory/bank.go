// Package memory implements the evidence memory bank shared by the planner
// and writer loops: gathered evidence is stored under citation IDs that the
// outline references and the writer retrieves while drafting sections.
package memory

import (
	"fmt"
	"strings"
	"sync"
)

// Evidence is one stored chunk: the full content plus a short summary that
// is echoed back to the planner as the observation.
type Evidence struct {
	ID      string
	Content string
	Summary string
}

// Bank stores evidence under sequential citation IDs (id_1, id_2, ...).
// It is safe for concurrent use; the planner tools may add evidence from
// parallel fetches.
type Bank struct {
	mu    sync.Mutex
	items []Evidence
	byID  map[string]int
}

func NewBank() *Bank {
	return &Bank{byID: make(map[string]int)}
}

// AddEvidence stores one chunk and returns the observation line shown to
// the planner: the assigned citation ID plus the summary.
func (b *Bank) AddEvidence(content, summary string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := fmt.Sprintf("id_%d", len(b.items)+1)
	b.byID[id] = len(b.items)
	b.items = append(b.items, Evidence{ID: id, Content: content, Summary: summary})
	return fmt.Sprintf("Evidence added with id='%s'. Summary: %s", id, summary)
}

// Retrieve renders the full content for each citation ID. Unknown IDs
// produce a per-ID not-found line instead of failing the whole call.
func (b *Bank) Retrieve(ids []string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	blocks := make([]string, 0, len(ids))
	for _, id := range ids {
		idx, ok := b.byID[id]
		if !ok {
			blocks = append(blocks, fmt.Sprintf("Evidence with id '%s' not found in memory bank.", id))
			continue
		}
		blocks = append(blocks, fmt.Sprintf("[%s]\n%s", id, b.items[idx].Content))
	}
	return strings.Join(blocks, "\n\n")
}

// Get returns one stored chunk by citation ID.
func (b *Bank) Get(id string) (Evidence, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	idx, ok := b.byID[id]
	if !ok {
		return Evidence{}, false
	}
	return b.items[idx], true
}

// Size reports the number of stored chunks.
func (b *Bank) Size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

// IDs returns the citation IDs in insertion order.
func (b *Bank) IDs() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.items))
	for i, ev := range b.items {
		out[i] = ev.ID
	}
	return out
}

// Clear drops all stored evidence.
func (b *Bank) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items = nil
	b.byID = make(map[string]int)
}
