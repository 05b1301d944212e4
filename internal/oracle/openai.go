package oracle

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"

	"jobboard/matching-service/internal/apperr"
)

const openAIProvider = "openai"

type openAIClient interface {
	CreateEmbeddings(ctx context.Context, conv openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error)
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAI calls the OpenAI embeddings and chat completion endpoints.
type OpenAI struct {
	client          openAIClient
	embeddingModel  string
	generationModel string
}

// NewOpenAI creates an OpenAI-backed oracle. Gemini model names left over
// from the defaults are replaced with OpenAI equivalents.
func NewOpenAI(apiKey, embeddingModel, generationModel string) (*OpenAI, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("openai api key is required")
	}
	return newOpenAI(openai.NewClient(apiKey), embeddingModel, generationModel), nil
}

func newOpenAI(client openAIClient, embeddingModel, generationModel string) *OpenAI {
	if embeddingModel == "" || strings.HasPrefix(embeddingModel, "text-embedding-004") {
		embeddingModel = string(openai.SmallEmbedding3)
	}
	if generationModel == "" || strings.HasPrefix(generationModel, "gemini") {
		generationModel = openai.GPT4oMini
	}
	return &OpenAI{client: client, embeddingModel: embeddingModel, generationModel: generationModel}
}

func (o *OpenAI) Model() string { return o.embeddingModel }

func (o *OpenAI) Embed(ctx context.Context, text string) ([]float32, error) {
	text, err := normalizeText(text)
	if err != nil {
		return nil, err
	}

	resp, err := o.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input:      []string{text},
		Model:      openai.EmbeddingModel(o.embeddingModel),
		Dimensions: Dimensions,
	})
	if err != nil {
		return nil, apperr.Unavailable(openAIProvider, fmt.Errorf("create embeddings: %w", err))
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, apperr.Unavailable(openAIProvider, errors.New("empty embedding response"))
	}
	return resp.Data[0].Embedding, nil
}

func (o *OpenAI) GenerateJSON(ctx context.Context, prompt string, schema *Schema) (map[string]any, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, apperr.Validation("prompt must not be empty")
	}

	format := &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	if schema != nil {
		format = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   "result",
				Schema: schema,
			},
		}
	}

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.generationModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		ResponseFormat: format,
	})
	if err != nil {
		return nil, apperr.Unavailable(openAIProvider, fmt.Errorf("create chat completion: %w", err))
	}
	if len(resp.Choices) == 0 {
		return nil, apperr.Unavailable(openAIProvider, errors.New("empty completion"))
	}

	out, err := decodeObject(resp.Choices[0].Message.Content)
	if err != nil {
		return nil, apperr.Unavailable(openAIProvider, fmt.Errorf("decode generated json: %w", err))
	}
	return out, nil
}
