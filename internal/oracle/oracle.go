// Package oracle adapts external embedding and generation providers.
//
// Every provider failure is reported as apperr.KindProviderUnavailable so
// callers can drop the semantic dimension and carry on.
package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
)

// Dimensions is the embedding width stored in the persistent cache.
const Dimensions = 768

// ErrEmptyText is returned by Embed for blank input.
var ErrEmptyText = errors.New("oracle: empty text")

// Oracle turns text into embedding vectors and prompts into JSON objects.
type Oracle interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	GenerateJSON(ctx context.Context, prompt string, schema *Schema) (map[string]any, error)
	// Model names the embedding model, recorded next to semantic scores.
	Model() string
}

// Schema type names.
const (
	TypeObject  = "object"
	TypeArray   = "array"
	TypeString  = "string"
	TypeNumber  = "number"
	TypeInteger = "integer"
	TypeBoolean = "boolean"
)

// Schema is a provider-neutral subset of JSON Schema used to constrain
// generated output.
type Schema struct {
	Type        string             `json:"type"`
	Description string             `json:"description,omitempty"`
	Properties  map[string]*Schema `json:"properties,omitempty"`
	Items       *Schema            `json:"items,omitempty"`
	Required    []string           `json:"required,omitempty"`
}

// MarshalJSON lets a Schema travel as a json.Marshaler.
func (s *Schema) MarshalJSON() ([]byte, error) {
	type plain Schema
	return json.Marshal((*plain)(s))
}

func normalizeText(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyText
	}
	return text, nil
}

func decodeObject(raw string) (map[string]any, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")

	var out map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &out); err != nil {
		return nil, err
	}
	if out == nil {
		return nil, errors.New("response is not a JSON object")
	}
	return out, nil
}
