package validation_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medparse/internal/extractor"
	"medparse/internal/normalizer"
	"medparse/internal/validation"
	"medparse/pkg/models"
)

func heuristic(t *testing.T) *validation.HeuristicAnalyzer {
	t.Helper()
	lex, err := extractor.DefaultLexicon()
	require.NoError(t, err)
	n, err := normalizer.NewDefault()
	require.NoError(t, err)
	return validation.NewHeuristicAnalyzer(lex, n)
}

type failingAnalyzer struct{}

func (failingAnalyzer) Name() string { return "failing" }

func (failingAnalyzer) Analyze(context.Context, string) (*models.EnhancedAnalysis, error) {
	return nil, validation.ErrAnalysisFailed
}

func nativeText(s string) *models.AcquiredText {
	return &models.AcquiredText{Text: s, Method: models.AcquisitionNative, QualityScore: 0.6}
}

func TestGate_PassesResultsWithData(t *testing.T) {
	gate := validation.NewGate(0, heuristic(t), nil)
	assert.Equal(t, validation.DefaultThreshold, gate.Threshold())

	result := &models.ParsingResult{
		Confidence:    0.40,
		ParsingMethod: "structured",
		ExtractedData: models.ExtractedMedicalData{
			Diagnoses: []models.Diagnosis{{Condition: "Hypertension"}},
		},
	}

	assert.False(t, gate.Apply(context.Background(), result, nativeText("Hypertension")))
	assert.False(t, result.FallbackMethod)
	assert.Equal(t, 0.40, result.Confidence)
	assert.Nil(t, result.EnhancedAnalysis)
}

func TestGate_PassesConfidentEmptyResults(t *testing.T) {
	gate := validation.NewGate(0.70, heuristic(t), nil)
	result := &models.ParsingResult{Confidence: 0.70, ParsingMethod: "narrative"}

	assert.False(t, gate.Apply(context.Background(), result, nativeText("Patient feels well")))
	assert.Equal(t, "narrative", result.ParsingMethod)
}

func TestGate_DegradesEmptyLowConfidence(t *testing.T) {
	gate := validation.NewGate(0.70, heuristic(t), nil)
	result := &models.ParsingResult{Confidence: 0.55, ParsingMethod: "narrative"}
	text := nativeText("Patient complains of fatigue and chest pain.\nHbA1c pending.")

	require.True(t, gate.Apply(context.Background(), result, text))

	assert.True(t, result.FallbackMethod)
	assert.Equal(t, validation.MessageEnhanced, result.Message)
	assert.Equal(t, models.ParsingMethodEnhancedText, result.ParsingMethod)
	require.NotNil(t, result.EnhancedAnalysis)
	assert.Equal(t, "heuristic", result.EnhancedAnalysis.Analyzer)
	assert.Equal(t, []string{"Fatigue", "Chest Pain", "HbA1c"}, result.EnhancedAnalysis.MedicalTerms)
	assert.Len(t, result.EnhancedAnalysis.KeyFindings, 2)
	assert.InDelta(t, 0.29, result.Confidence, 1e-9)
	assert.LessOrEqual(t, result.Confidence, 0.50)

	require.Len(t, result.Traceability, 1)
	assert.Equal(t, "validation-gate", result.Traceability[0].Source)
}

func TestGate_FallbackTextIsCapped(t *testing.T) {
	gate := validation.NewGate(0.70, heuristic(t), nil)
	result := &models.ParsingResult{Confidence: 0.10, ParsingMethod: models.ParsingMethodIntelligentFallback}
	text := &models.AcquiredText{
		Text:   "Lipid profile placeholder: cholesterol, HDL, LDL, triglycerides, glucose, hemoglobin, creatinine, urea",
		Method: models.AcquisitionIntelligentFallback,
	}

	require.True(t, gate.Apply(context.Background(), result, text))
	assert.Equal(t, models.ParsingMethodIntelligentFallback, result.ParsingMethod)
	assert.Equal(t, validation.MessageFallbackText, result.Message)
	assert.LessOrEqual(t, result.Confidence, 0.30)
	assert.Equal(t, result.Confidence, result.EnhancedAnalysis.Confidence)
}

func TestGate_AnalyzerFailureUsesHeuristic(t *testing.T) {
	gate := validation.NewGate(0.70, heuristic(t), failingAnalyzer{})
	result := &models.ParsingResult{Confidence: 0.2}

	require.True(t, gate.Apply(context.Background(), result, nativeText("nothing useful here")))
	assert.Equal(t, "heuristic", result.EnhancedAnalysis.Analyzer)
	assert.Equal(t, 0.20, result.Confidence)
	assert.Empty(t, result.EnhancedAnalysis.MedicalTerms)
}

func chatServer(t *testing.T, status int, content string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			_, _ = w.Write([]byte(`{"error":{"message":"upstream failure","type":"server_error"}}`))
			return
		}
		_ = json.NewEncoder(w).Encode(openai.ChatCompletionResponse{
			ID:     "chatcmpl-1",
			Object: "chat.completion",
			Choices: []openai.ChatCompletionChoice{{
				Index:        0,
				Message:      openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: content},
				FinishReason: openai.FinishReasonStop,
			}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func openAIAnalyzer(srv *httptest.Server) *validation.OpenAIAnalyzer {
	cfg := openai.DefaultConfig("test-key")
	cfg.BaseURL = srv.URL + "/v1"
	return validation.NewOpenAIAnalyzerWithClient(openai.NewClientWithConfig(cfg), "")
}

func TestOpenAIAnalyzer_Analyze(t *testing.T) {
	srv := chatServer(t, http.StatusOK, "```json\n{\"summary\":\"Follow-up note for a diabetic patient.\",\"key_findings\":[\"sugar uncontrolled\"],\"medical_terms\":[\"diabetes\"]}\n```")

	analysis, err := openAIAnalyzer(srv).Analyze(context.Background(), "diabetic, sugar uncontrolled")
	require.NoError(t, err)

	assert.Equal(t, "Follow-up note for a diabetic patient.", analysis.Summary)
	assert.Equal(t, []string{"sugar uncontrolled"}, analysis.KeyFindings)
	assert.Equal(t, []string{"diabetes"}, analysis.MedicalTerms)
	assert.Equal(t, "openai:gpt-4o-mini", analysis.Analyzer)
	assert.Equal(t, 0.55, analysis.Confidence)
}

func TestOpenAIAnalyzer_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		content string
		want    error
	}{
		{"server error", http.StatusInternalServerError, "", validation.ErrAnalysisFailed},
		{"not json", http.StatusOK, "I cannot help with that.", validation.ErrInvalidResponse},
		{"empty content", http.StatusOK, "  ", validation.ErrEmptyResponse},
		{"missing summary", http.StatusOK, `{"key_findings":[]}`, validation.ErrEmptyResponse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := chatServer(t, tt.status, tt.content)
			_, err := openAIAnalyzer(srv).Analyze(context.Background(), "text")
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), err.Error())
		})
	}
}

func TestGate_OpenAIConfidence(t *testing.T) {
	srv := chatServer(t, http.StatusOK, `{"summary":"Discharge note without measurements."}`)
	gate := validation.NewGate(0.70, heuristic(t), openAIAnalyzer(srv))
	result := &models.ParsingResult{Confidence: 0.55}

	require.True(t, gate.Apply(context.Background(), result, nativeText("Discharged in stable condition.")))
	assert.Equal(t, 0.55, result.Confidence)
	assert.Equal(t, models.ParsingMethodEnhancedText, result.ParsingMethod)
}

func TestHeuristicAnalyzer_LongFindingStaysValidUTF8(t *testing.T) {
	line := "Impression:" + strings.Repeat("é", 200)

	analysis, err := heuristic(t).Analyze(context.Background(), line)
	require.NoError(t, err)
	require.Len(t, analysis.KeyFindings, 1)

	finding := analysis.KeyFindings[0]
	assert.True(t, utf8.ValidString(finding), finding)
	assert.True(t, strings.HasSuffix(finding, "é..."), finding)
	assert.Equal(t, len("Impression:")+2*74+len("..."), len(finding))
}
