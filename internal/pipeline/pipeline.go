// Package pipeline runs one document through acquisition, classification,
// extraction, the confidence gate, benchmarking and augmentation. Stages
// are injected; the pipeline holds no per-document state, so one Pipeline
// may process many documents concurrently.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"medparse/internal/acquisition"
	"medparse/internal/augment"
	"medparse/internal/classifier"
	"medparse/internal/extractor"
	"medparse/internal/logger"
	"medparse/internal/validation"
	"medparse/pkg/models"
	"medparse/pkg/services"
)

var _ services.DocumentParser = (*Pipeline)(nil)

// Acquirer produces text for a raw document.
type Acquirer interface {
	Acquire(ctx context.Context, doc models.RawDocument) (*models.AcquiredText, error)
}

// Benchmarker compares extracted lab values with reference data.
type Benchmarker interface {
	Benchmark(data *models.ExtractedMedicalData, patient *models.PatientContext) ([]models.BenchmarkRecord, []models.TraceabilityRecord)
}

// Deps are the stages of a Pipeline. Benchmark and Augmenter are optional.
type Deps struct {
	Acquirer   Acquirer
	Extractors *extractor.Set
	Gate       *validation.Gate
	Benchmark  Benchmarker
	Augmenter  *augment.Augmenter

	// Workers is the default batch size; values below 1 mean 1.
	Workers int

	// Closers are released by Close, e.g. the OCR pool.
	Closers []io.Closer
}

// Pipeline is the document processing pipeline.
type Pipeline struct {
	acquirer   Acquirer
	extractors *extractor.Set
	gate       *validation.Gate
	bench      Benchmarker
	augmenter  *augment.Augmenter
	workers    int
	closers    []io.Closer
	log        zerolog.Logger
}

// New creates a pipeline from its stages.
func New(deps Deps) (*Pipeline, error) {
	const op = "New"

	switch {
	case deps.Acquirer == nil:
		return nil, WrapPipelineError(op, ErrMissingDependency, "acquirer")
	case deps.Extractors == nil:
		return nil, WrapPipelineError(op, ErrMissingDependency, "extractors")
	case deps.Gate == nil:
		return nil, WrapPipelineError(op, ErrMissingDependency, "gate")
	}

	workers := deps.Workers
	if workers < 1 {
		workers = 1
	}

	return &Pipeline{
		acquirer:   deps.Acquirer,
		extractors: deps.Extractors,
		gate:       deps.Gate,
		bench:      deps.Benchmark,
		augmenter:  deps.Augmenter,
		workers:    workers,
		closers:    deps.Closers,
		log:        logger.WithComponent("pipeline"),
	}, nil
}

// Workers is the default batch worker count.
func (p *Pipeline) Workers() int { return p.workers }

// Close releases the resources handed over in Deps.Closers.
func (p *Pipeline) Close() error {
	var first error
	for _, c := range p.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Process runs doc through every stage. It fails only when the document is
// rejected or ctx is done; every other problem degrades the result.
func (p *Pipeline) Process(ctx context.Context, doc models.RawDocument) (*models.ParsingResult, error) {
	const op = "Process"

	start := time.Now()
	id := uuid.NewString()
	log := logger.WithDocument(ctx, "pipeline", id, doc.Filename)

	if err := ctx.Err(); err != nil {
		return nil, WrapPipelineError(op, err, "before acquisition")
	}

	text, err := p.acquirer.Acquire(ctx, doc)
	if err != nil {
		return nil, WrapPipelineError(op, fmt.Errorf("%w: %w", ErrRejected, err), doc.Filename)
	}
	if err := ctx.Err(); err != nil {
		return nil, WrapPipelineError(op, err, "after acquisition")
	}

	mediaType, _ := acquisition.ResolveMediaType(doc.MediaType, doc.Filename, doc.Content)
	cls := classifier.Classify(text, classifier.Metadata{MediaType: mediaType, Filename: doc.Filename})

	result := &models.ParsingResult{
		ID: id,
		SourceMetadata: models.SourceMetadata{
			Filename:          doc.Filename,
			MediaType:         mediaType,
			Layout:            cls.Layout,
			Category:          cls.Category,
			Quality:           text.QualityScore,
			Language:          text.Language,
			Specialty:         cls.Specialty,
			AcquisitionMethod: text.Method,
			OCREngine:         text.Engine,
			Warnings:          text.Warnings,
		},
	}

	if text.IsFallback() {
		result.ParsingMethod = models.ParsingMethodIntelligentFallback
		result.Confidence = min(Confidence(extractor.BaselineStructured, text.QualityScore, &result.ExtractedData), fallbackConfidence)
	} else {
		ex := p.extractors.Select(cls.Category)
		outcome := ex.Extract(text.Text)
		result.ExtractedData = outcome.Data
		result.ParsingMethod = ex.Name()
		result.Traceability = outcome.Traceability
		result.Confidence = Confidence(outcome.Confidence, text.QualityScore, &result.ExtractedData)
	}

	log.Debug().
		Str("category", string(cls.Category)).
		Str("method", result.ParsingMethod).
		Int("items", result.ExtractedData.ItemCount()).
		Float64("confidence", result.Confidence).
		Msg("Extraction completed")

	if err := ctx.Err(); err != nil {
		return nil, WrapPipelineError(op, err, "after extraction")
	}
	p.gate.Apply(ctx, result, text)

	if err := ctx.Err(); err != nil {
		return nil, WrapPipelineError(op, err, "after validation")
	}
	if p.bench != nil {
		records, trace := p.bench.Benchmark(&result.ExtractedData, doc.Patient)
		result.Benchmarks = records
		result.Traceability = append(result.Traceability, trace...)
	}

	if p.augmenter != nil {
		if out := p.augmenter.Augment(text.Text, cls.Category, &result.ExtractedData, result.Benchmarks); out != text.Text {
			result.AugmentedText = out
		}
	}

	result.ProcessedAt = time.Now().UTC()
	result.ProcessingDuration = time.Since(start).String()

	log.Info().
		Str("method", result.ParsingMethod).
		Str("category", string(cls.Category)).
		Float64("confidence", result.Confidence).
		Bool("fallback", result.FallbackMethod).
		Int("lab_values", len(result.ExtractedData.LabValues)).
		Int("benchmarks", len(result.Benchmarks)).
		Dur("duration", time.Since(start)).
		Msg("Document processed")

	return result, nil
}
