// Package genai wraps the Gemini API behind a small interface so callers can
// be tested against a mock.
package genai

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// Client defines the single operation the engine needs from a generative
// model: send text and/or image parts, get text back.
type Client interface {
	GenerateContent(ctx context.Context, model string, parts []Part, config *GenerateConfig) (string, error)
}

// Part represents a content part for a request. Exactly one of Text or Data
// should be set.
type Part struct {
	Text     string
	Data     []byte
	MIMEType string
}

// GenerateConfig holds per-request generation settings.
type GenerateConfig struct {
	Temperature      *float32
	ResponseMIMEType string
}

type geminiClient struct {
	client *genai.Client
}

// New creates a Gemini-backed Client using the provided API key.
func New(ctx context.Context, apiKey string) (Client, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &geminiClient{client: client}, nil
}

func (c *geminiClient) GenerateContent(ctx context.Context, model string, parts []Part, config *GenerateConfig) (string, error) {
	var genaiParts []*genai.Part
	for _, p := range parts {
		if p.Text != "" {
			genaiParts = append(genaiParts, genai.NewPartFromText(p.Text))
		} else if p.Data != nil {
			genaiParts = append(genaiParts, genai.NewPartFromBytes(p.Data, p.MIMEType))
		}
	}

	var genConfig *genai.GenerateContentConfig
	if config != nil {
		genConfig = &genai.GenerateContentConfig{}
		if config.Temperature != nil {
			genConfig.Temperature = genai.Ptr(*config.Temperature)
		}
		if config.ResponseMIMEType != "" {
			genConfig.ResponseMIMEType = config.ResponseMIMEType
		}
	}

	resp, err := c.client.Models.GenerateContent(ctx, model, []*genai.Content{
		genai.NewContentFromParts(genaiParts, "user"),
	}, genConfig)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}

	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", nil
	}
	return resp.Candidates[0].Content.Parts[0].Text, nil
}
