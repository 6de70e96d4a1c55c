package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// GeminiProvider implements PromptParser using Google's Gemini models.
type GeminiProvider struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// NewGeminiProvider initializes a new Gemini client for the given model name.
func NewGeminiProvider(ctx context.Context, apiKey, modelName string) (*GeminiProvider, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := client.GenerativeModel(modelName)

	// Force JSON response for structured parsing.
	model.ResponseMIMEType = "application/json"

	// Extraction, not generation.
	model.SetTemperature(0.1)

	return &GeminiProvider{
		client: client,
		model:  model,
	}, nil
}

// Close cleans up the Gemini client resources.
func (p *GeminiProvider) Close() error {
	return p.client.Close()
}

// ParseSearchPrompt asks the model to extract ride search filters from prompt.
func (p *GeminiProvider) ParseSearchPrompt(ctx context.Context, prompt string, now time.Time) (*SearchIntent, error) {
	fullPrompt := fmt.Sprintf("%s\n\nUser Message: %s", buildSystemPrompt(now), prompt)

	resp, err := p.model.GenerateContent(ctx, genai.Text(fullPrompt))
	if err != nil {
		return nil, fmt.Errorf("gemini generation error: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("no response candidates from Gemini")
	}

	var responseText strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			responseText.WriteString(string(txt))
		}
	}
	return decodeIntent(responseText.String())
}

func decodeIntent(raw string) (*SearchIntent, error) {
	clean := cleanJSONString(raw)
	var result SearchIntent
	if err := json.Unmarshal([]byte(clean), &result); err != nil {
		return nil, fmt.Errorf("failed to parse JSON response: %w. Raw: %s", err, clean)
	}
	return &result, nil
}

// buildSystemPrompt constructs the extraction instructions.
func buildSystemPrompt(now time.Time) string {
	return fmt.Sprintf(`Role: You extract search filters for a carpool marketplace where drivers publish rides with a pickup, a dropoff, a departure time, a per-seat price and a number of free seats.
Context:
- Current Date and Time (UTC): %s

RULES:
1. "pickup" is where the passenger starts, "dropoff" where they want to go. Use the place name as written by the user. Omit when not mentioned.
2. "date" is the departure date as YYYY-MM-DD. Resolve relative words ("tomorrow", "this Friday") against the current date. Omit when not mentioned.
3. "max_price" is the highest acceptable price per seat as a number. Omit when not mentioned.
4. "min_seats" is the number of seats needed ("for 3 of us" -> 3). Omit when not mentioned.
5. "sort_by" is one of "departureTime", "price", "distance" when the user asks for earliest, cheapest or shortest. "sort_order" is "asc" or "desc".
6. Never invent values. Output only the JSON object.

Output JSON Schema:
{
  "pickup": "string or omitted",
  "dropoff": "string or omitted",
  "date": "YYYY-MM-DD or omitted",
  "max_price": number or omitted,
  "min_seats": integer or omitted,
  "sort_by": "departureTime" | "price" | "distance" | omitted,
  "sort_order": "asc" | "desc" | omitted
}
`, now.UTC().Format(time.RFC3339))
}

// cleanJSONString removes markdown code blocks if present (e.g. ```json ... ```)
func cleanJSONString(input string) string {
	input = strings.TrimSpace(input)
	input = strings.TrimPrefix(input, "```json")
	input = strings.TrimPrefix(input, "```")
	input = strings.TrimSuffix(input, "```")
	return strings.TrimSpace(input)
}
