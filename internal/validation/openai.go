package validation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"

	"medparse/internal/logger"
	"medparse/pkg/models"
)

const maxPromptChars = 6000

// OpenAIAnalyzer summarizes text with a chat completion. It makes a single
// attempt; the gate falls back to the heuristic analyzer on error.
type OpenAIAnalyzer struct {
	client *openai.Client
	model  string
	log    zerolog.Logger
}

type analysisResponse struct {
	Summary      string   `json:"summary"`
	KeyFindings  []string `json:"key_findings"`
	MedicalTerms []string `json:"medical_terms"`
}

// NewOpenAIAnalyzer creates an analyzer for the given API key and model.
func NewOpenAIAnalyzer(apiKey, model string) *OpenAIAnalyzer {
	return NewOpenAIAnalyzerWithClient(openai.NewClient(apiKey), model)
}

// NewOpenAIAnalyzerWithClient creates an analyzer with an existing client.
func NewOpenAIAnalyzerWithClient(client *openai.Client, model string) *OpenAIAnalyzer {
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAIAnalyzer{
		client: client,
		model:  model,
		log:    logger.WithComponent("analyzer-openai"),
	}
}

// Name implements Analyzer.
func (a *OpenAIAnalyzer) Name() string { return "openai" }

// Analyze implements Analyzer.
func (a *OpenAIAnalyzer) Analyze(ctx context.Context, text string) (*models.EnhancedAnalysis, error) {
	const op = "Analyze"

	text = clip(text, maxPromptChars)

	a.log.Debug().
		Str("model", a.model).
		Int("text_length", len(text)).
		Msg("Sending analysis request to OpenAI")

	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       a.model,
		Temperature: 0.1,
		MaxTokens:   800,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: systemPrompt,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: text,
			},
		},
	})
	if err != nil {
		return nil, WrapValidationError(op, ErrAnalysisFailed, err.Error())
	}
	if len(resp.Choices) == 0 {
		return nil, WrapValidationError(op, ErrEmptyResponse, "no choices")
	}

	content := stripCodeFence(resp.Choices[0].Message.Content)
	if content == "" {
		return nil, WrapValidationError(op, ErrEmptyResponse, "empty content")
	}

	var parsed analysisResponse
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		a.log.Warn().
			Err(err).
			Str("response", content).
			Msg("Failed to parse OpenAI response as JSON")
		return nil, WrapValidationError(op, ErrInvalidResponse, err.Error())
	}
	if strings.TrimSpace(parsed.Summary) == "" {
		return nil, WrapValidationError(op, ErrEmptyResponse, "missing summary")
	}

	return &models.EnhancedAnalysis{
		Summary:      parsed.Summary,
		KeyFindings:  parsed.KeyFindings,
		MedicalTerms: parsed.MedicalTerms,
		Analyzer:     fmt.Sprintf("%s:%s", a.Name(), a.model),
		Confidence:   openAIConfidence,
	}, nil
}

// stripCodeFence removes a markdown code block around a JSON answer.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```json") {
		s = strings.TrimPrefix(s, "```json")
	} else if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
	} else {
		return s
	}
	return strings.TrimSpace(strings.TrimSuffix(s, "```"))
}

const systemPrompt = `You read text recovered from a medical document (lab report, clinical note or prescription).
Structured extraction found no lab values, test results or diagnoses in it.
Summarize what the text contains. Do not invent values that are not in the text.

Answer with JSON only, in this exact shape:
{
  "summary": "one or two sentences",
  "key_findings": ["short statements taken from the text"],
  "medical_terms": ["medical terms that appear in the text"]
}`
