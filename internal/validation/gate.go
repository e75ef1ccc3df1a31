// Package validation implements the confidence gate. A result with no lab
// values, test results or diagnoses and a confidence under the threshold is
// not an error: it is routed once through an enhanced text analysis and
// flagged as a fallback.
package validation

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"medparse/internal/logger"
	"medparse/pkg/models"
)

const (
	// DefaultThreshold is the confidence under which an empty result degrades.
	DefaultThreshold = 0.70

	// fallbackTextCeiling caps results built on generated placeholder text.
	fallbackTextCeiling = 0.30

	gateSource = "validation-gate"
)

// Gate messages
const (
	MessageEnhanced     = "No lab values, test results or diagnoses were found; returning an enhanced text analysis instead."
	MessageFallbackText = "The document text could not be recovered; the analysis is based on a filename-derived placeholder and must not be relied upon."
)

// Gate inspects an extraction result once and degrades it when needed.
type Gate struct {
	threshold float64
	analyzer  Analyzer
	heuristic Analyzer
	log       zerolog.Logger
}

// NewGate creates a gate. A threshold outside (0, 1] uses DefaultThreshold.
// A nil analyzer uses the heuristic one, which is also the fallback when the
// analyzer fails.
func NewGate(threshold float64, heuristic *HeuristicAnalyzer, analyzer Analyzer) *Gate {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultThreshold
	}
	if heuristic == nil {
		heuristic = NewHeuristicAnalyzer(nil, nil)
	}
	if analyzer == nil {
		analyzer = heuristic
	}
	return &Gate{
		threshold: threshold,
		analyzer:  analyzer,
		heuristic: heuristic,
		log:       logger.WithComponent("validation-gate"),
	}
}

// Threshold returns the gate threshold.
func (g *Gate) Threshold() float64 { return g.threshold }

// NeedsFallback reports whether a result must take the degraded path.
func (g *Gate) NeedsFallback(data *models.ExtractedMedicalData, confidence float64) bool {
	return !data.HasRealData() && confidence < g.threshold
}

// Apply degrades result in place when NeedsFallback holds and reports
// whether it did. text is the acquired text the result was extracted from.
func (g *Gate) Apply(ctx context.Context, result *models.ParsingResult, text *models.AcquiredText) bool {
	if !g.NeedsFallback(&result.ExtractedData, result.Confidence) {
		return false
	}

	analysis, err := g.analyzer.Analyze(ctx, text.Text)
	if err != nil {
		g.log.Warn().
			Err(err).
			Str("analyzer", g.analyzer.Name()).
			Msg("Text analysis failed, using heuristic analysis")
		analysis, _ = g.heuristic.Analyze(ctx, text.Text)
	}

	confidence := analysis.Confidence
	result.Message = MessageEnhanced
	if text.IsFallback() {
		if confidence > fallbackTextCeiling {
			confidence = fallbackTextCeiling
		}
		result.Message = MessageFallbackText
		result.ParsingMethod = models.ParsingMethodIntelligentFallback
	} else {
		result.ParsingMethod = models.ParsingMethodEnhancedText
	}
	analysis.Confidence = confidence

	result.FallbackMethod = true
	result.EnhancedAnalysis = analysis
	result.Confidence = confidence
	result.Traceability = append(result.Traceability, models.TraceabilityRecord{
		Claim:             "result degraded to enhanced text analysis",
		Source:            gateSource,
		Confidence:        confidence,
		ReferenceDatabase: models.ParsingMethodEnhancedText,
		ReferenceVersion:  analysis.Analyzer,
		RecordedAt:        time.Now().UTC(),
	})

	g.log.Info().
		Str("analyzer", analysis.Analyzer).
		Float64("confidence", confidence).
		Bool("fallback_text", text.IsFallback()).
		Msg("Confidence gate degraded result")

	return true
}
