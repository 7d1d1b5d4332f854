package services

import (
	"context"
	"fmt"
	"log"

	"google.golang.org/genai"
)

const defaultGeminiModel = "gemini-2.5-flash"

// GeminiService generates JSON artifacts through the Gen AI SDK.
type GeminiService struct {
	client *genai.Client
	model  string
}

var _ Completer = (*GeminiService)(nil)

// NewGeminiService builds a Gemini API client. baseURL is optional and only
// overrides the SDK endpoint when set.
func NewGeminiService(ctx context.Context, apiKey, model, baseURL string) (*GeminiService, error) {
	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	if model == "" {
		model = defaultGeminiModel
	}
	return &GeminiService{client: client, model: model}, nil
}

func (s *GeminiService) Name() string { return "Gemini" }

func (s *GeminiService) Complete(ctx context.Context, p Prompt) (string, error) {
	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(p.System, genai.RoleUser),
		ResponseMIMEType:  "application/json",
	}

	resp, err := s.client.Models.GenerateContent(ctx, s.model, genai.Text(p.User), config)
	if err != nil {
		return "", fmt.Errorf("gemini request failed: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("no text in gemini response")
	}
	log.Printf("[Gemini] completion received (model=%s, %d chars)", s.model, len(text))
	return text, nil
}
