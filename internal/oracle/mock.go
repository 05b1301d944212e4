package oracle

import (
	"context"
	"errors"
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	"jobboard/matching-service/internal/apperr"
)

// Disabled is the oracle used when no provider is configured.
type Disabled struct{}

func (Disabled) Model() string { return "" }

func (Disabled) Embed(context.Context, string) ([]float32, error) {
	return nil, apperr.Unavailable("oracle", errDisabled)
}

func (Disabled) GenerateJSON(context.Context, string, *Schema) (map[string]any, error) {
	return nil, apperr.Unavailable("oracle", errDisabled)
}

var errDisabled = errors.New("no embedding provider configured")

// IsDisabled reports whether o never produces results.
func IsDisabled(o Oracle) bool {
	_, ok := o.(Disabled)
	return ok
}

// Mock is a deterministic offline oracle. Embed hashes words into buckets,
// so texts sharing vocabulary have a positive cosine similarity.
type Mock struct{}

func (Mock) Model() string { return "mock-hash-768" }

func (Mock) Embed(_ context.Context, text string) ([]float32, error) {
	text, err := normalizeText(text)
	if err != nil {
		return nil, err
	}

	vec := make([]float32, Dimensions)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		vec[h.Sum32()%Dimensions]++
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec, nil
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec, nil
}

// GenerateJSON returns the zero value of every schema property.
func (Mock) GenerateJSON(_ context.Context, _ string, schema *Schema) (map[string]any, error) {
	if schema == nil || schema.Type != TypeObject {
		return map[string]any{}, nil
	}
	out, _ := zeroValue(schema).(map[string]any)
	return out, nil
}

func zeroValue(s *Schema) any {
	switch s.Type {
	case TypeObject:
		m := make(map[string]any, len(s.Properties))
		for name, p := range s.Properties {
			m[name] = zeroValue(p)
		}
		return m
	case TypeArray:
		return []any{}
	case TypeString:
		return ""
	case TypeNumber, TypeInteger:
		return float64(0)
	case TypeBoolean:
		return false
	}
	return nil
}
