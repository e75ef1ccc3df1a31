package ocr_test

import (
	"bytes"
	"context"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medparse/internal/ocr"
)

type stubService struct {
	recognize func(ctx context.Context) (*ocr.OCRResult, error)
}

func (s stubService) Name() string { return "stub" }

func (s stubService) Close() error { return nil }

func (s stubService) Recognize(ctx context.Context, data io.Reader, mediaType string) (*ocr.OCRResult, error) {
	return s.recognize(ctx)
}

func okService(text string) stubService {
	return stubService{recognize: func(context.Context) (*ocr.OCRResult, error) {
		return &ocr.OCRResult{Text: text, PageCount: 1, Engine: "stub"}, nil
	}}
}

func TestPool_Recognize(t *testing.T) {
	pool := ocr.NewPool(okService("Hemoglobin 13.2 g/dL"), 2, time.Second)

	result, err := pool.Recognize(context.Background(), bytes.NewReader([]byte("img")), "image/png")

	require.NoError(t, err)
	assert.Equal(t, "Hemoglobin 13.2 g/dL", result.Text)
	assert.Equal(t, 2, pool.Size())
	assert.Equal(t, "stub", pool.Engine())
}

func TestPool_TimeoutReleasesSlot(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	pool := ocr.NewPool(okService("after timeout"), 1, 50*time.Millisecond)

	err := pool.WithWorker(context.Background(), func(ctx context.Context, svc ocr.OCRService) error {
		<-release
		return nil
	})
	assert.ErrorIs(t, err, ocr.ErrOCRTimeout)

	result, err := pool.Recognize(context.Background(), bytes.NewReader([]byte("img")), "image/png")
	require.NoError(t, err)
	assert.Equal(t, "after timeout", result.Text)
}

func TestPool_PanicReleasesSlot(t *testing.T) {
	pool := ocr.NewPool(okService("after panic"), 1, time.Second)

	err := pool.WithWorker(context.Background(), func(ctx context.Context, svc ocr.OCRService) error {
		panic("engine crashed")
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ocr.ErrOCRFailed)
	assert.Contains(t, err.Error(), "engine crashed")

	result, err := pool.Recognize(context.Background(), bytes.NewReader([]byte("img")), "image/png")
	require.NoError(t, err)
	assert.Equal(t, "after panic", result.Text)
}

func TestPool_ErrorReleasesSlot(t *testing.T) {
	failing := stubService{recognize: func(context.Context) (*ocr.OCRResult, error) {
		return nil, ocr.ErrEmptyDocument
	}}
	pool := ocr.NewPool(failing, 1, time.Second)

	for i := 0; i < 3; i++ {
		_, err := pool.Recognize(context.Background(), bytes.NewReader([]byte("img")), "image/png")
		assert.ErrorIs(t, err, ocr.ErrEmptyDocument)
	}
}

func TestPool_WorkerUnavailable(t *testing.T) {
	pool := ocr.NewPool(okService("unused"), 1, 2*time.Second)

	started := make(chan struct{})
	release := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = pool.WithWorker(context.Background(), func(ctx context.Context, svc ocr.OCRService) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := pool.Recognize(ctx, bytes.NewReader([]byte("img")), "image/png")
	assert.ErrorIs(t, err, ocr.ErrWorkerUnavailable)

	close(release)
	wg.Wait()
}

func TestPool_BoundsConcurrency(t *testing.T) {
	var active, peak int32
	svc := stubService{recognize: func(context.Context) (*ocr.OCRResult, error) {
		n := atomic.AddInt32(&active, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		atomic.AddInt32(&active, -1)
		return &ocr.OCRResult{Text: "ok"}, nil
	}}
	pool := ocr.NewPool(svc, 2, time.Second)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := pool.Recognize(context.Background(), bytes.NewReader([]byte("img")), "image/png")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}

func TestNoneService(t *testing.T) {
	svc := ocr.NewNoneOCRService()

	_, err := svc.Recognize(context.Background(), bytes.NewReader([]byte("img")), "image/png")

	assert.ErrorIs(t, err, ocr.ErrOCRUnavailable)
	assert.Equal(t, "none", svc.Name())
	assert.NoError(t, svc.Close())
}
