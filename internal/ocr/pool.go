package ocr

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"medparse/internal/logger"
)

// Pool bounds concurrent recognitions and guarantees slot release.
type Pool struct {
	service OCRService
	sem     *semaphore.Weighted
	size    int
	timeout time.Duration
	log     zerolog.Logger
}

// NewPool wraps service with size slots and a per-call timeout.
func NewPool(service OCRService, size int, timeout time.Duration) *Pool {
	if size < 1 {
		size = 1
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Pool{
		service: service,
		sem:     semaphore.NewWeighted(int64(size)),
		size:    size,
		timeout: timeout,
		log:     logger.WithComponent("ocr-pool"),
	}
}

// Size returns the number of OCR slots.
func (p *Pool) Size() int {
	return p.size
}

// Engine returns the wrapped engine name.
func (p *Pool) Engine() string {
	return p.service.Name()
}

// Recognize runs the engine inside a pool slot.
func (p *Pool) Recognize(ctx context.Context, data io.Reader, mediaType string) (*OCRResult, error) {
	var result *OCRResult
	err := p.WithWorker(ctx, func(ctx context.Context, svc OCRService) error {
		r, err := svc.Recognize(ctx, data, mediaType)
		result = r
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// WithWorker acquires a slot, runs fn under the pool timeout and releases the
// slot on every exit path. A panic in fn is returned as an error.
func (p *Pool) WithWorker(ctx context.Context, fn func(ctx context.Context, svc OCRService) error) error {
	const op = "WithWorker"

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.sem.Acquire(ctx, 1); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return WrapOCRError(op, ErrWorkerUnavailable, fmt.Sprintf("waited %s", p.timeout))
		}
		return WrapOCRError(op, ErrContextCanceled, err.Error())
	}
	defer p.sem.Release(1)

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				p.log.Error().Interface("panic", r).Str("engine", p.service.Name()).Msg("OCR worker panicked")
				done <- WrapOCRError(op, ErrOCRFailed, fmt.Sprintf("panic: %v", r))
			}
		}()
		done <- fn(ctx, p.service)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			p.log.Warn().Dur("timeout", p.timeout).Str("engine", p.service.Name()).Msg("OCR timed out")
			return WrapOCRError(op, ErrOCRTimeout, fmt.Sprintf("after %s", p.timeout))
		}
		return WrapOCRError(op, ErrContextCanceled, ctx.Err().Error())
	}
}

// Close closes the wrapped engine.
func (p *Pool) Close() error {
	return p.service.Close()
}
