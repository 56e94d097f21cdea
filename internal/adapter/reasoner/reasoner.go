// Package reasoner adapts hosted language models to domain.Reasoner.
package reasoner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"bytemomo/narwhal/internal/config"
	"bytemomo/narwhal/internal/domain"
	"bytemomo/narwhal/internal/schema"

	log "github.com/sirupsen/logrus"
)

// New builds the reasoner for the configured provider.
func New(ctx context.Context, opts config.LLMOpts, l *log.Entry) (domain.Reasoner, error) {
	switch opts.Provider {
	case "openai":
		return NewOpenAI(opts, l)
	case "gemini":
		return NewGemini(ctx, opts, l)
	}
	return nil, fmt.Errorf("unknown llm provider %q", opts.Provider)
}

// systemPrompt appends the JSON shape of the requested schema.
func systemPrompt(req domain.ReasoningRequest) string {
	doc, ok := schema.Docs[req.Schema]
	if req.Schema == "" || !ok {
		return req.System
	}
	return strings.TrimSpace(req.System) +
		"\n\nRespond with a single JSON object and nothing else, shaped like:\n" + doc
}

// toolText renders a tool result as a user turn. Neither provider accepts
// free-standing tool messages without a matching call id.
func toolText(content string) string {
	return "Tool output:\n" + content
}

func response(text string, structured bool) domain.ReasoningResponse {
	resp := domain.ReasoningResponse{Text: text}
	if structured {
		trimmed := strings.TrimSpace(text)
		if json.Valid([]byte(trimmed)) {
			resp.Structured = json.RawMessage(trimmed)
		}
	}
	return resp
}

func logger(l *log.Entry) *log.Entry {
	if l == nil {
		return log.NewEntry(log.StandardLogger())
	}
	return l
}
