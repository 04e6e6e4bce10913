// Package ai implements the field-guessing collaborator on Gemini.
package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/joblens/harvester/internal/harvest"
)

const defaultModel = "gemini-1.5-flash"

// maxPromptBytes keeps page bodies inside the model context window.
const maxPromptBytes = 60_000

// Guesser asks Gemini to fill fields the deterministic extractors could
// not resolve. Callers cap the returned confidence; Guesser only reports
// what the model claimed.
type Guesser struct {
	client *genai.Client
	model  string
	logger *zap.Logger
}

// New builds a Guesser. The API key is required; model falls back to the
// default when empty.
func New(ctx context.Context, apiKey, model string, logger *zap.Logger) (*Guesser, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if model == "" {
		model = defaultModel
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	return &Guesser{client: client, model: model, logger: logger}, nil
}

// Close releases the underlying client.
func (g *Guesser) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

type guessedField struct {
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
	Snippet    string  `json:"snippet"`
}

// GuessFields implements harvest.FieldGuesser.
func (g *Guesser) GuessFields(ctx context.Context, html string, fields []harvest.FieldKey) (map[harvest.FieldKey]harvest.FieldResult, error) {
	if len(fields) == 0 {
		return nil, nil
	}
	if len(html) > maxPromptBytes {
		html = html[:maxPromptBytes]
	}

	model := g.client.GenerativeModel(g.model)
	model.SetTemperature(0.1)
	model.ResponseMIMEType = "application/json"

	resp, err := model.GenerateContent(ctx, genai.Text(g.prompt(html, fields)))
	if err != nil {
		return nil, fmt.Errorf("gemini generate: %w", err)
	}

	text, err := responseText(resp)
	if err != nil {
		return nil, err
	}

	var parsed map[string]guessedField
	if err := json.Unmarshal([]byte(cleanJSONBlock(text)), &parsed); err != nil {
		return nil, fmt.Errorf("parsing gemini response: %w", err)
	}

	out := make(map[harvest.FieldKey]harvest.FieldResult, len(parsed))
	for _, key := range fields {
		gf, ok := parsed[string(key)]
		if !ok || strings.TrimSpace(gf.Value) == "" {
			continue
		}
		out[key] = harvest.StringField(strings.TrimSpace(gf.Value), harvest.ProvAI, gf.Confidence, gf.Snippet)
	}
	g.logger.Debug("gemini guessed fields",
		zap.Int("requested", len(fields)),
		zap.Int("returned", len(out)),
	)
	return out, nil
}

func (g *Guesser) prompt(html string, fields []harvest.FieldKey) string {
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = string(f)
	}
	var b strings.Builder
	b.WriteString("You extract job posting fields from HTML.\n")
	b.WriteString("Return a JSON object keyed by field name. Each value is an object ")
	b.WriteString(`{"value": string, "confidence": number between 0 and 1, "snippet": short supporting quote}.` + "\n")
	b.WriteString("Omit fields you cannot find. Never invent values.\n")
	b.WriteString("Fields: " + strings.Join(names, ", ") + "\n\nHTML:\n")
	b.WriteString(html)
	return b.String()
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("no candidates in gemini response")
	}
	content := resp.Candidates[0].Content
	if content == nil || len(content.Parts) == 0 {
		return "", fmt.Errorf("no content in gemini response")
	}
	var parts []string
	for _, part := range content.Parts {
		if text, ok := part.(genai.Text); ok {
			parts = append(parts, string(text))
		}
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("no text parts in gemini response")
	}
	return strings.Join(parts, ""), nil
}

func cleanJSONBlock(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}
