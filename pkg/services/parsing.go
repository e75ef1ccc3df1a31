package services

import (
	"context"

	"medparse/pkg/models"
)

// DocumentParser turns one raw medical document into a parsing result.
type DocumentParser interface {
	// Process runs acquisition, extraction, validation and benchmarking.
	// It returns an error only when the document is rejected or the
	// context ends.
	Process(ctx context.Context, doc models.RawDocument) (*models.ParsingResult, error)
}
