package pipeline

import (
	"context"
	"io"

	"medparse/internal/acquisition"
	"medparse/internal/augment"
	"medparse/internal/benchmark"
	"medparse/internal/config"
	"medparse/internal/extractor"
	"medparse/internal/logger"
	"medparse/internal/normalizer"
	"medparse/internal/ocr"
	"medparse/internal/validation"
)

// NewFromConfig wires the production stages selected by cfg. The returned
// pipeline owns the OCR pool; call Close when done.
func NewFromConfig(ctx context.Context, cfg *config.Config) (*Pipeline, error) {
	const op = "NewFromConfig"

	log := logger.WithComponent("pipeline")

	table, err := loadRuleTable(cfg.RulesFile)
	if err != nil {
		return nil, WrapPipelineError(op, err, "rule table")
	}
	n, err := normalizer.New(table)
	if err != nil {
		return nil, WrapPipelineError(op, err, "normalizer")
	}
	lex, err := extractor.DefaultLexicon()
	if err != nil {
		return nil, WrapPipelineError(op, err, "lexicon")
	}

	refFile, err := loadReferenceFile(cfg.ReferenceFile)
	if err != nil {
		return nil, WrapPipelineError(op, err, "reference datasets")
	}

	heuristic := validation.NewHeuristicAnalyzer(lex, n)
	var analyzer validation.Analyzer = heuristic
	if cfg.Analyzer == config.AnalyzerOpenAI {
		analyzer = validation.NewOpenAIAnalyzer(cfg.OpenAIAPIKey, cfg.OpenAIModel)
	}

	pool, err := ocr.NewPoolFromConfig(ctx, cfg)
	if err != nil {
		log.Warn().
			Err(err).
			Str("engine", cfg.OCREngine).
			Msg("OCR engine unavailable, images will use fallback text")
		pool = ocr.NewPool(ocr.NewNoneOCRService(), cfg.OCRWorkers, cfg.OCRTimeout())
	}

	log.Info().
		Str("ocr_engine", pool.Engine()).
		Int("ocr_workers", pool.Size()).
		Str("analyzer", analyzer.Name()).
		Str("rules_version", n.Version()).
		Str("reference_version", refFile.Version).
		Str("region", cfg.DefaultRegion).
		Msg("Pipeline configured")

	return New(Deps{
		Acquirer:   acquisition.NewChain(pool),
		Extractors: extractor.NewSet(n, lex),
		Gate:       validation.NewGate(cfg.ConfidenceThreshold, heuristic, analyzer),
		Benchmark:  benchmark.NewEngine(benchmark.NewStore(refFile), cfg.DefaultRegion),
		Augmenter:  augment.New(),
		Workers:    cfg.Workers(),
		Closers:    []io.Closer{pool},
	})
}

func loadRuleTable(path string) (*normalizer.RuleTable, error) {
	if path == "" {
		return normalizer.DefaultRuleTable()
	}
	return normalizer.LoadRuleTable(path)
}

func loadReferenceFile(path string) (*benchmark.ReferenceFile, error) {
	if path == "" {
		return benchmark.DefaultReferenceFile()
	}
	return benchmark.LoadReferenceFile(path)
}
