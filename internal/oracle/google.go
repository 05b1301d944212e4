package oracle

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"jobboard/matching-service/internal/apperr"
)

const googleProvider = "gemini"

// genaiModels is the part of *genai.Models the Google variant needs.
type genaiModels interface {
	EmbedContent(ctx context.Context, model string, contents []*genai.Content, config *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error)
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Google calls the Gemini API through the GenAI SDK.
type Google struct {
	models          genaiModels
	embeddingModel  string
	generationModel string
}

// NewGoogle creates a Gemini-backed oracle.
func NewGoogle(ctx context.Context, apiKey, embeddingModel, generationModel string) (*Google, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return newGoogle(client.Models, embeddingModel, generationModel), nil
}

func newGoogle(models genaiModels, embeddingModel, generationModel string) *Google {
	return &Google{models: models, embeddingModel: embeddingModel, generationModel: generationModel}
}

func (g *Google) Model() string { return g.embeddingModel }

func (g *Google) Embed(ctx context.Context, text string) ([]float32, error) {
	text, err := normalizeText(text)
	if err != nil {
		return nil, err
	}

	dims := int32(Dimensions)
	resp, err := g.models.EmbedContent(ctx, g.embeddingModel, genai.Text(text), &genai.EmbedContentConfig{
		TaskType:             "RETRIEVAL_DOCUMENT",
		OutputDimensionality: &dims,
	})
	if err != nil {
		return nil, apperr.Unavailable(googleProvider, fmt.Errorf("embed content: %w", err))
	}
	if resp == nil || len(resp.Embeddings) == 0 || resp.Embeddings[0] == nil || len(resp.Embeddings[0].Values) == 0 {
		return nil, apperr.Unavailable(googleProvider, errors.New("empty embedding response"))
	}
	return resp.Embeddings[0].Values, nil
}

func (g *Google) GenerateJSON(ctx context.Context, prompt string, schema *Schema) (map[string]any, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, apperr.Validation("prompt must not be empty")
	}

	cfg := &genai.GenerateContentConfig{ResponseMIMEType: "application/json"}
	if schema != nil {
		cfg.ResponseSchema = toGenaiSchema(schema)
	}

	resp, err := g.models.GenerateContent(ctx, g.generationModel, genai.Text(prompt), cfg)
	if err != nil {
		return nil, apperr.Unavailable(googleProvider, fmt.Errorf("generate content: %w", err))
	}

	out, err := decodeObject(responseText(resp))
	if err != nil {
		return nil, apperr.Unavailable(googleProvider, fmt.Errorf("decode generated json: %w", err))
	}
	return out, nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	var b strings.Builder
	for _, c := range resp.Candidates {
		if c == nil || c.Content == nil {
			continue
		}
		for _, part := range c.Content.Parts {
			if part != nil {
				b.WriteString(part.Text)
			}
		}
	}
	return b.String()
}

var genaiTypes = map[string]genai.Type{
	TypeObject:  genai.TypeObject,
	TypeArray:   genai.TypeArray,
	TypeString:  genai.TypeString,
	TypeNumber:  genai.TypeNumber,
	TypeInteger: genai.TypeInteger,
	TypeBoolean: genai.TypeBoolean,
}

func toGenaiSchema(s *Schema) *genai.Schema {
	if s == nil {
		return nil
	}
	out := &genai.Schema{
		Type:        genaiTypes[s.Type],
		Description: s.Description,
		Required:    s.Required,
		Items:       toGenaiSchema(s.Items),
	}
	if len(s.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for name, p := range s.Properties {
			out.Properties[name] = toGenaiSchema(p)
		}
	}
	return out
}
