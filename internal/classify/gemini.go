// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/havenmap/resource-engine/pkg/types"
)

const (
	defaultGeminiModel = "gemini-2.0-flash"
	geminiCallTimeout  = 15 * time.Second
	geminiMaxInput     = 10000
)

// GeminiEngine classifies analysis text with a Gemini model. Responses are
// requested as JSON matching the Result contract and validated against the
// taxonomy before use.
type GeminiEngine struct {
	client *genai.Client
	model  string
}

// NewGeminiEngine builds the remote engine. The model falls back to the
// package default when empty.
func NewGeminiEngine(ctx context.Context, apiKey, model string) (*GeminiEngine, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini engine requires an API key")
	}
	if model == "" {
		model = defaultGeminiModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	return &GeminiEngine{client: client, model: model}, nil
}

// Name identifies the engine in classification metadata.
func (g *GeminiEngine) Name() string { return "gemini" }

// Classify sends the analysis text to the model and decodes the JSON reply.
func (g *GeminiEngine) Classify(ctx context.Context, text string) (Result, error) {
	if len(text) > geminiMaxInput {
		text = text[:geminiMaxInput]
	}

	ctx, cancel := context.WithTimeout(ctx, geminiCallTimeout)
	defer cancel()

	resp, err := g.client.Models.GenerateContent(ctx, g.model,
		genai.Text(buildPrompt(text)),
		&genai.GenerateContentConfig{ResponseMIMEType: "application/json"})
	if err != nil {
		return Result{}, fmt.Errorf("gemini call: %w", err)
	}

	raw := resp.Text()
	if strings.TrimSpace(raw) == "" {
		return Result{}, fmt.Errorf("gemini returned no text")
	}

	var result Result
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return Result{}, fmt.Errorf("decoding gemini response: %w", err)
	}

	if !types.ValidCategory(result.Category) {
		result.QualityFlags = append(result.QualityFlags, "unknown_category")
		result.Category = types.CategoryGeneralAssistance
	}
	if result.ConfidenceScore < 0 {
		result.ConfidenceScore = 0
	}
	if result.ConfidenceScore > 100 {
		result.ConfidenceScore = 100
	}
	return result, nil
}

func buildPrompt(text string) string {
	var b strings.Builder
	b.WriteString("Classify this social-service listing into exactly one category from: ")
	for i, c := range types.AllCategories {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(string(c))
	}
	b.WriteString(`.
Respond with JSON: {"category", "subcategory", "target_groups", "services",
"access_requirements", "eligibility_criteria", "confidence_score" (0-100),
"keywords_found", "alternative_categories" ([{"category","confidence"}]),
"quality_flags"}.

Listing:
`)
	b.WriteString(text)
	return b.String()
}
