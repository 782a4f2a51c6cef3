package llm

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// fallbackEncoding is used when a model has no registered encoding.
const fallbackEncoding = "cl100k_base"

var (
	encoderOnce sync.Once
	encoderMu   sync.Mutex
	encoders    map[string]*tiktoken.Tiktoken
)

func encoderFor(model string) *tiktoken.Tiktoken {
	encoderOnce.Do(func() { encoders = make(map[string]*tiktoken.Tiktoken) })

	encoderMu.Lock()
	defer encoderMu.Unlock()
	if enc, ok := encoders[model]; ok {
		return enc
	}

	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding(fallbackEncoding)
		if err != nil {
			encoders[model] = nil
			return nil
		}
	}
	encoders[model] = enc
	return enc
}

// CountTokens returns the token count of text for the given model, falling
// back to a whitespace split when no tokenizer is available (e.g. offline).
func CountTokens(text, model string) int {
	if enc := encoderFor(model); enc != nil {
		return len(enc.Encode(text, nil, nil))
	}
	slog.Warn("No tokenizer available, using whitespace count", "model", model)
	return len(strings.Fields(text))
}

// CountMessages counts the tokens of a rendered conversation, including a
// small per-message framing overhead.
func CountMessages(msgs []Message, model string) int {
	var b strings.Builder
	for _, m := range msgs {
		b.WriteString(m.Role)
		b.WriteString("\n")
		b.WriteString(m.Content)
		b.WriteString("\n")
	}
	return CountTokens(b.String(), model) + 4*len(msgs)
}

// TruncateToTokens cuts text down to at most maxTokens tokens, preserving a
// valid prefix. Text already under the limit is returned unchanged.
func TruncateToTokens(text string, maxTokens int, model string) string {
	enc := encoderFor(model)
	if enc == nil {
		fields := strings.Fields(text)
		if len(fields) <= maxTokens {
			return text
		}
		return strings.Join(fields[:maxTokens], " ")
	}
	ids := enc.Encode(text, nil, nil)
	if len(ids) <= maxTokens {
		return text
	}
	return enc.Decode(ids[:maxTokens])
}
