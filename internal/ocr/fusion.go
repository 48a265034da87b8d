package ocr

import (
	"context"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"

	"radar-ingest/internal/domain/capture"
)

// HeaderSource extracts the structured header fields or fails with an error
// once its retries are exhausted.
type HeaderSource interface {
	Extract(ctx context.Context, imagePath string) (capture.HeaderFields, error)
}

// PlateSource always returns a plate result; on exhausted retries the result
// is empty and errText carries the aggregated failure text.
type PlateSource interface {
	Extract(ctx context.Context, imagePath string) (result capture.PlateResult, errText string)
}

// outcome normalizes the two sources' different failure styles into one
// shape, so the fusion step applies a single rule to both.
type outcome[T any] struct {
	value   T
	ok      bool
	errText string
}

// Fusion runs both extraction engines concurrently for one photo and merges
// their outcomes into a single record. The engines are independent failure
// domains: neither one's failure discards the other's result.
type Fusion struct {
	header HeaderSource
	plate  PlateSource
	log    zerolog.Logger
}

func NewFusion(header HeaderSource, plate PlateSource, log zerolog.Logger) *Fusion {
	return &Fusion{header: header, plate: plate, log: log}
}

func (f *Fusion) Run(ctx context.Context, imagePath string) capture.FusedRecord {
	var (
		headerOut outcome[capture.HeaderFields]
		plateOut  outcome[capture.PlateResult]
		wg        sync.WaitGroup
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		fields, err := f.header.Extract(ctx, imagePath)
		if err != nil {
			headerOut = outcome[capture.HeaderFields]{errText: err.Error()}
			return
		}
		headerOut = outcome[capture.HeaderFields]{value: fields, ok: true}
	}()
	go func() {
		defer wg.Done()
		result, errText := f.plate.Extract(ctx, imagePath)
		plateOut = outcome[capture.PlateResult]{value: result, ok: result.Plate != "", errText: errText}
	}()
	wg.Wait()

	record := capture.FusedRecord{
		FileName: filepath.Base(imagePath),
	}

	if headerOut.ok {
		record.HeaderFields = headerOut.value
		record.Processing.HeaderSuccess = true
	} else {
		record.Processing.Errors = append(record.Processing.Errors, "Header OCR: "+headerOut.errText)
	}

	if plateOut.ok {
		record.Vehicle = plateOut.value
		record.Processing.PlateSuccess = true
	} else if plateOut.errText != "" {
		record.Processing.Errors = append(record.Processing.Errors, "Plate OCR: "+plateOut.errText)
	} else {
		record.Processing.Errors = append(record.Processing.Errors, "Plate OCR: no plate found")
	}

	f.log.Info().
		Str("file", record.FileName).
		Bool("header_success", record.Processing.HeaderSuccess).
		Bool("plate_success", record.Processing.PlateSuccess).
		Bool("valid", record.IsValid()).
		Msg("hybrid OCR completed")

	return record
}
