package vision

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"radar-ingest/internal/domain/capture"
	"radar-ingest/internal/imaging"
	"radar-ingest/internal/ocr"
)

// PlateExtractor crops and compresses the plate region, submits it to the
// vision model and validates the answer against the plate grammars. It
// retries a bounded number of times with a fixed delay and then settles on a
// terminal empty result carrying the aggregated error text — unlike the
// header extractor, it never returns an error to the caller.
type PlateExtractor struct {
	client     *Client
	crop       imaging.PlateOptions
	maxRetries int
	retryDelay time.Duration
	log        zerolog.Logger
}

func NewPlateExtractor(client *Client, crop imaging.PlateOptions, maxRetries int, retryDelay time.Duration, log zerolog.Logger) *PlateExtractor {
	if maxRetries < 1 {
		maxRetries = 1
	}
	return &PlateExtractor{
		client:     client,
		crop:       crop,
		maxRetries: maxRetries,
		retryDelay: retryDelay,
		log:        log,
	}
}

type plateResponse struct {
	Vehicle struct {
		Plate string `json:"plate"`
	} `json:"vehicle"`
}

func (p *PlateExtractor) Extract(ctx context.Context, imagePath string) (capture.PlateResult, string) {
	var attemptErrs []string
	for attempt := 1; attempt <= p.maxRetries; attempt++ {
		result, err := p.attempt(ctx, imagePath)
		if err == nil {
			p.log.Info().
				Str("file", imagePath).
				Str("plate", result.Plate).
				Str("class", string(result.Class)).
				Int("attempt", attempt).
				Msg("plate recognized")
			return result, ""
		}

		attemptErrs = append(attemptErrs, err.Error())
		p.log.Warn().
			Err(err).
			Str("file", imagePath).
			Int("attempt", attempt).
			Msg("plate OCR attempt failed")

		if attempt < p.maxRetries {
			select {
			case <-ctx.Done():
				attemptErrs = append(attemptErrs, ctx.Err().Error())
				return capture.PlateResult{}, aggregateErrors(attempt, attemptErrs)
			case <-time.After(p.retryDelay):
			}
		}
	}
	return capture.PlateResult{}, aggregateErrors(p.maxRetries, attemptErrs)
}

func (p *PlateExtractor) attempt(ctx context.Context, imagePath string) (capture.PlateResult, error) {
	img, err := imaging.Load(imagePath)
	if err != nil {
		return capture.PlateResult{}, err
	}

	region := imaging.PlateRegion(img, p.crop)
	encoded, err := imaging.EncodeJPEG(region, p.crop.JPEGQuality)
	if err != nil {
		return capture.PlateResult{}, err
	}

	content, err := p.client.ChatImage(ctx, base64.StdEncoding.EncodeToString(encoded))
	if err != nil {
		return capture.PlateResult{}, err
	}

	var resp plateResponse
	if err := ExtractJSON(content, &resp); err != nil {
		return capture.PlateResult{}, err
	}

	plateText := strings.TrimSpace(resp.Vehicle.Plate)
	if plateText == "" {
		return capture.PlateResult{}, fmt.Errorf("plate not found in response")
	}

	result := ocr.ClassifyPlate(plateText)
	if !result.Valid {
		return capture.PlateResult{}, fmt.Errorf("invalid plate format: %s", plateText)
	}
	return result, nil
}

func aggregateErrors(attempts int, errs []string) string {
	return fmt.Sprintf("error after %d attempts: %s", attempts, strings.Join(errs, "; "))
}
