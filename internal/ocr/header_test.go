package ocr

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"radar-ingest/internal/imaging"
)

type scriptedRecognizer struct {
	responses []string
	errs      []error
	calls     int
}

func (r *scriptedRecognizer) Recognize(_ context.Context, _ []byte) (string, error) {
	i := r.calls
	r.calls++
	if i >= len(r.responses) {
		i = len(r.responses) - 1
	}
	if r.errs != nil && r.errs[i] != nil {
		return "", r.errs[i]
	}
	return r.responses[i], nil
}

func (r *scriptedRecognizer) Close() error { return nil }

func writeTestPhoto(t *testing.T) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 40, 40))
	for y := 0; y < 40; y++ {
		for x := 0; x < 40; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 200, B: 200, A: 255})
		}
	}
	path := filepath.Join(t.TempDir(), "photo.png")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
	return path
}

func testHeaderExtractor(rec Recognizer, retries int) *HeaderExtractor {
	return NewHeaderExtractor(rec, imaging.HeaderOptions{CropPct: 0.5}, retries, time.Millisecond, zerolog.Nop())
}

func TestHeaderExtractorSuccess(t *testing.T) {
	rec := &scriptedRecognizer{responses: []string{"Fecha: 16/03/2024 Hora: 09:17:46 Auto Loc1: SITE_A"}}
	e := testHeaderExtractor(rec, 2)

	fields, err := e.Extract(context.Background(), writeTestPhoto(t))
	if err != nil {
		t.Fatalf("Extract error: %v", err)
	}
	if fields.Date != "16/03/2024" || fields.Time != "09:17:46" {
		t.Errorf("unexpected fields: %+v", fields)
	}
	if rec.calls != 1 {
		t.Errorf("recognizer calls = %d, want 1", rec.calls)
	}
}

func TestHeaderExtractorRetriesThenSucceeds(t *testing.T) {
	rec := &scriptedRecognizer{
		responses: []string{"", "Fecha: 16/03/2024 Hora: 09:17:46"},
	}
	e := testHeaderExtractor(rec, 3)

	fields, err := e.Extract(context.Background(), writeTestPhoto(t))
	if err != nil {
		t.Fatalf("Extract error: %v", err)
	}
	if fields.Date != "16/03/2024" {
		t.Errorf("Date = %q", fields.Date)
	}
	if rec.calls != 2 {
		t.Errorf("recognizer calls = %d, want 2", rec.calls)
	}
}

func TestHeaderExtractorNamesMissingFields(t *testing.T) {
	rec := &scriptedRecognizer{responses: []string{"Fecha: 16/03/2024 no time here"}}
	e := testHeaderExtractor(rec, 1)

	_, err := e.Extract(context.Background(), writeTestPhoto(t))
	if !errors.Is(err, ErrCriticalFieldsMissing) {
		t.Fatalf("error = %v, want ErrCriticalFieldsMissing", err)
	}
	if want := "time"; !strings.Contains(err.Error(), want) {
		t.Errorf("error %q should name %q", err, want)
	}
}

func TestHeaderExtractorExhaustsRetries(t *testing.T) {
	rec := &scriptedRecognizer{
		responses: []string{"", ""},
		errs:      []error{errors.New("engine crashed"), errors.New("engine crashed again")},
	}
	e := testHeaderExtractor(rec, 2)

	_, err := e.Extract(context.Background(), writeTestPhoto(t))
	if err == nil {
		t.Fatal("expected error after exhausted retries")
	}
	if !strings.Contains(err.Error(), "engine crashed again") {
		t.Errorf("error %q should carry the last attempt's cause", err)
	}
	if rec.calls != 2 {
		t.Errorf("recognizer calls = %d, want 2", rec.calls)
	}
}
