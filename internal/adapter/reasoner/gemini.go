package reasoner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bytemomo/narwhal/internal/config"
	"bytemomo/narwhal/internal/domain"

	log "github.com/sirupsen/logrus"
	"google.golang.org/genai"
)

type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

type Gemini struct {
	models      contentGenerator
	name        string
	temperature float64
	log         *log.Entry
}

func NewGemini(ctx context.Context, opts config.LLMOpts, l *log.Entry) (*Gemini, error) {
	if opts.APIKey == "" {
		return nil, errors.New("gemini: api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: opts.APIKey})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &Gemini{models: client.Models, name: opts.Model, temperature: opts.Temperature, log: logger(l)}, nil
}

func (g *Gemini) Invoke(ctx context.Context, req domain.ReasoningRequest) (domain.ReasoningResponse, error) {
	contents := make([]*genai.Content, 0, len(req.Transcript))
	for _, m := range req.Transcript {
		switch m.Role {
		case domain.RoleAssistant:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		case domain.RoleTool:
			contents = append(contents, genai.NewContentFromText(toolText(m.Content), genai.RoleUser))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}

	cfg := &genai.GenerateContentConfig{}
	if sys := systemPrompt(req); sys != "" {
		cfg.SystemInstruction = genai.NewContentFromText(sys, genai.RoleUser)
	}
	if g.temperature > 0 {
		cfg.Temperature = genai.Ptr(float32(g.temperature))
	}
	if req.Schema != "" {
		cfg.ResponseMIMEType = "application/json"
	}

	start := time.Now()
	resp, err := g.models.GenerateContent(ctx, g.name, contents, cfg)
	if err != nil {
		return domain.ReasoningResponse{}, fmt.Errorf("gemini %s: %w", req.Role, err)
	}
	if resp == nil {
		return domain.ReasoningResponse{}, fmt.Errorf("gemini %s: empty response", req.Role)
	}

	g.log.WithFields(log.Fields{
		"role":     req.Role,
		"model":    g.name,
		"schema":   req.Schema,
		"duration": time.Since(start).Round(time.Millisecond),
	}).Debug("Reasoning call complete")
	return response(resp.Text(), req.Schema != ""), nil
}
