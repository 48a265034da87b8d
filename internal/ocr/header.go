package ocr

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/otiai10/gosseract/v2"
	"github.com/rs/zerolog"

	"radar-ingest/internal/domain/capture"
	"radar-ingest/internal/imaging"
)

// ErrCriticalFieldsMissing means the header pass ran but could not read the
// date and/or time, which are mandatory for a usable header.
var ErrCriticalFieldsMissing = errors.New("critical header fields missing")

// Recognizer turns an encoded image into raw text. The production
// implementation wraps a single shared Tesseract worker; tests use fakes.
type Recognizer interface {
	Recognize(ctx context.Context, png []byte) (string, error)
	Close() error
}

// TesseractRecognizer lazily initializes one process-wide Tesseract client
// and serializes access to it. Close tears the worker down on shutdown.
type TesseractRecognizer struct {
	lang string

	mu      sync.Mutex
	once    sync.Once
	client  *gosseract.Client
	initErr error
}

func NewTesseractRecognizer(lang string) *TesseractRecognizer {
	return &TesseractRecognizer{lang: lang}
}

func (t *TesseractRecognizer) Recognize(ctx context.Context, png []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	t.once.Do(func() {
		client := gosseract.NewClient()
		if err := client.SetLanguage(t.lang); err != nil {
			_ = client.Close()
			t.initErr = fmt.Errorf("init tesseract worker: %w", err)
			return
		}
		t.client = client
	})
	if t.initErr != nil {
		return "", t.initErr
	}

	// The underlying client is not safe for concurrent recognition.
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.client.SetImageFromBytes(png); err != nil {
		return "", fmt.Errorf("set image: %w", err)
	}
	text, err := t.client.Text()
	if err != nil {
		return "", fmt.Errorf("recognize text: %w", err)
	}
	return text, nil
}

func (t *TesseractRecognizer) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.client == nil {
		return nil
	}
	err := t.client.Close()
	t.client = nil
	return err
}

// HeaderExtractor crops the header band, recognizes it and parses the
// structured fields, retrying a bounded number of times with a fixed delay.
// On exhaustion it propagates the last error; it never returns a partial
// result.
type HeaderExtractor struct {
	rec        Recognizer
	crop       imaging.HeaderOptions
	patterns   *PatternSet
	maxRetries int
	retryDelay time.Duration
	log        zerolog.Logger
}

func NewHeaderExtractor(rec Recognizer, crop imaging.HeaderOptions, maxRetries int, retryDelay time.Duration, log zerolog.Logger) *HeaderExtractor {
	if maxRetries < 1 {
		maxRetries = 1
	}
	return &HeaderExtractor{
		rec:        rec,
		crop:       crop,
		patterns:   SpanishPatterns(),
		maxRetries: maxRetries,
		retryDelay: retryDelay,
		log:        log,
	}
}

func (e *HeaderExtractor) Extract(ctx context.Context, imagePath string) (capture.HeaderFields, error) {
	var lastErr error
	for attempt := 1; attempt <= e.maxRetries; attempt++ {
		fields, err := e.attempt(ctx, imagePath)
		if err == nil {
			e.log.Debug().Str("file", imagePath).Int("attempt", attempt).Msg("header OCR succeeded")
			return fields, nil
		}
		lastErr = err
		e.log.Warn().
			Err(err).
			Str("file", imagePath).
			Int("attempt", attempt).
			Msg("header OCR attempt failed")

		if attempt < e.maxRetries {
			if err := sleepCtx(ctx, e.retryDelay); err != nil {
				return capture.HeaderFields{}, err
			}
		}
	}
	return capture.HeaderFields{}, fmt.Errorf("header OCR failed after %d attempts: %w", e.maxRetries, lastErr)
}

func (e *HeaderExtractor) attempt(ctx context.Context, imagePath string) (capture.HeaderFields, error) {
	img, err := imaging.Load(imagePath)
	if err != nil {
		return capture.HeaderFields{}, err
	}

	band := imaging.HeaderBand(img, e.crop)
	encoded, err := imaging.EncodePNG(band)
	if err != nil {
		return capture.HeaderFields{}, err
	}

	text, err := e.rec.Recognize(ctx, encoded)
	if err != nil {
		return capture.HeaderFields{}, err
	}

	fields := ParseHeader(text, e.patterns)

	var missing []string
	if fields.Date == "" {
		missing = append(missing, "date")
	}
	if fields.Time == "" {
		missing = append(missing, "time")
	}
	if len(missing) > 0 {
		return capture.HeaderFields{}, fmt.Errorf("%w: %s", ErrCriticalFieldsMissing, strings.Join(missing, ", "))
	}
	return fields, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
