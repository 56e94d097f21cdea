package reasoner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bytemomo/narwhal/internal/config"
	"bytemomo/narwhal/internal/domain"

	log "github.com/sirupsen/logrus"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

type generator interface {
	GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error)
}

// OpenAI talks to any OpenAI-compatible chat endpoint.
type OpenAI struct {
	model       generator
	name        string
	temperature float64
	log         *log.Entry
}

func NewOpenAI(opts config.LLMOpts, l *log.Entry) (*OpenAI, error) {
	if opts.APIKey == "" {
		return nil, errors.New("openai: api key is required")
	}
	clientOpts := []openai.Option{
		openai.WithToken(opts.APIKey),
		openai.WithModel(opts.Model),
	}
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, openai.WithBaseURL(opts.BaseURL))
	}
	client, err := openai.New(clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("openai: %w", err)
	}
	return &OpenAI{model: client, name: opts.Model, temperature: opts.Temperature, log: logger(l)}, nil
}

func (o *OpenAI) Invoke(ctx context.Context, req domain.ReasoningRequest) (domain.ReasoningResponse, error) {
	messages := make([]llms.MessageContent, 0, len(req.Transcript)+1)
	if sys := systemPrompt(req); sys != "" {
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, sys))
	}
	for _, m := range req.Transcript {
		switch m.Role {
		case domain.RoleSystem:
			messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, m.Content))
		case domain.RoleAssistant:
			messages = append(messages, llms.TextParts(llms.ChatMessageTypeAI, m.Content))
		case domain.RoleTool:
			messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, toolText(m.Content)))
		default:
			messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, m.Content))
		}
	}

	var callOpts []llms.CallOption
	if o.temperature > 0 {
		callOpts = append(callOpts, llms.WithTemperature(o.temperature))
	}
	if req.Schema != "" {
		callOpts = append(callOpts, llms.WithJSONMode())
	}

	start := time.Now()
	resp, err := o.model.GenerateContent(ctx, messages, callOpts...)
	if err != nil {
		return domain.ReasoningResponse{}, fmt.Errorf("openai %s: %w", req.Role, err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return domain.ReasoningResponse{}, fmt.Errorf("openai %s: empty response", req.Role)
	}

	o.log.WithFields(log.Fields{
		"role":     req.Role,
		"model":    o.name,
		"schema":   req.Schema,
		"duration": time.Since(start).Round(time.Millisecond),
	}).Debug("Reasoning call complete")
	return response(resp.Choices[0].Content, req.Schema != ""), nil
}
