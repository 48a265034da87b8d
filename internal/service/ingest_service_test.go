package service

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"radar-ingest/internal/domain/capture"
	"radar-ingest/internal/pathmeta"
)

type insertedPhoto struct {
	dateISO   string
	cruiseID  uuid.UUID
	photoName string
	relPath   string
	payload   []byte
}

type fakeStore struct {
	cruises  map[string]uuid.UUID
	created  []string
	inserted []insertedPhoto

	findErr   error
	insertErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{cruises: map[string]uuid.UUID{}}
}

func (f *fakeStore) FindCruiseIDByName(_ context.Context, name string) (uuid.UUID, bool, error) {
	if f.findErr != nil {
		return uuid.Nil, false, f.findErr
	}
	id, ok := f.cruises[name]
	return id, ok, nil
}

func (f *fakeStore) CreateCruise(_ context.Context, name string) (uuid.UUID, error) {
	id := uuid.New()
	f.cruises[name] = id
	f.created = append(f.created, name)
	return id, nil
}

func (f *fakeStore) InsertPhoto(_ context.Context, dateISO string, cruiseID uuid.UUID, photoName, relativePath string, payload []byte) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.inserted = append(f.inserted, insertedPhoto{dateISO, cruiseID, photoName, relativePath, payload})
	return nil
}

type fakeFusion struct {
	record capture.FusedRecord
	calls  int
}

func (f *fakeFusion) Run(_ context.Context, imagePath string) capture.FusedRecord {
	f.calls++
	rec := f.record
	rec.FileName = filepath.Base(imagePath)
	return rec
}

type fakeArchiver struct {
	sites []string
	err   error
}

func (f *fakeArchiver) Move(src, site string) (string, string, error) {
	if f.err != nil {
		return "", "", f.err
	}
	f.sites = append(f.sites, site)
	rel := filepath.Join(site, filepath.Base(src))
	return filepath.Join("/archive", rel), rel, nil
}

type fakeMirror struct {
	keys []string
	err  error
}

func (f *fakeMirror) UploadFile(_ context.Context, key, _ string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.keys = append(f.keys, key)
	return "https://mirror.example/" + key, nil
}

func fullyFused() capture.FusedRecord {
	return capture.FusedRecord{
		HeaderFields: capture.HeaderFields{
			Date:     "16/03/2024",
			Time:     "09:17:46",
			Location: "CALLE_10_Z1",
		},
		Vehicle:    capture.PlateResult{Plate: "P123ABC", Class: capture.PlateParticular, Valid: true},
		Processing: capture.ProcessingInfo{HeaderSuccess: true, PlateSuccess: true},
	}
}

func testService(store *fakeStore, fusion *fakeFusion, arch *fakeArchiver, mirror Mirror) *IngestService {
	return NewIngestService(store, fusion, arch, mirror, zerolog.Nop())
}

func photoPath(site, date string) string {
	return filepath.Join("/watch", site, date, "16-03-2024-09-17-46-0.jpg")
}

func TestProcessFileFullSuccess(t *testing.T) {
	store := newFakeStore()
	fusion := &fakeFusion{record: fullyFused()}
	arch := &fakeArchiver{}
	mirror := &fakeMirror{}

	svc := testService(store, fusion, arch, mirror)
	if err := svc.ProcessFile(context.Background(), photoPath("SiteX", "16032024")); err != nil {
		t.Fatalf("ProcessFile: %v", err)
	}

	if len(store.inserted) != 1 {
		t.Fatalf("inserted %d photos, want 1", len(store.inserted))
	}
	row := store.inserted[0]
	if row.dateISO != "2024-03-16" {
		t.Errorf("dateISO = %q, want header-derived date", row.dateISO)
	}
	if row.photoName != "16-03-2024-09-17-46-0.jpg" {
		t.Errorf("photoName = %q", row.photoName)
	}
	if row.relPath != filepath.Join("CALLE_10_Z1", row.photoName) {
		t.Errorf("relPath = %q, want archive path under header location", row.relPath)
	}

	if len(store.created) != 1 || store.created[0] != "CALLE_10_Z1" {
		t.Errorf("created cruises = %v, want new CALLE_10_Z1 registration", store.created)
	}
	if row.cruiseID != store.cruises["CALLE_10_Z1"] {
		t.Errorf("photo linked to cruise %s, want %s", row.cruiseID, store.cruises["CALLE_10_Z1"])
	}

	if len(mirror.keys) != 1 || strings.Contains(mirror.keys[0], "\\") {
		t.Errorf("mirror keys = %v, want one forward-slash key", mirror.keys)
	}

	var payload capture.FusedRecord
	if err := json.Unmarshal(row.payload, &payload); err != nil {
		t.Fatalf("payload not valid JSON: %v", err)
	}
	if payload.Vehicle.Plate != "P123ABC" || !payload.Processing.HeaderSuccess {
		t.Errorf("payload = %+v, lost fused fields", payload)
	}
}

func TestProcessFileFallbackKeyReconciliation(t *testing.T) {
	store := newFakeStore()
	existing := uuid.New()
	store.cruises["SiteX"] = existing

	fusion := &fakeFusion{record: fullyFused()}
	arch := &fakeArchiver{}

	svc := testService(store, fusion, arch, nil)
	if err := svc.ProcessFile(context.Background(), photoPath("SiteX", "16032024")); err != nil {
		t.Fatalf("ProcessFile: %v", err)
	}

	// The header location is unknown but the path site is registered: the
	// photo must attach to the existing row under the registered name.
	if len(store.created) != 0 {
		t.Fatalf("created cruises = %v, want none", store.created)
	}
	row := store.inserted[0]
	if row.cruiseID != existing {
		t.Errorf("cruiseID = %s, want existing SiteX row", row.cruiseID)
	}
	if arch.sites[0] != "SiteX" {
		t.Errorf("archived under %q, want registry name SiteX", arch.sites[0])
	}

	var payload capture.FusedRecord
	if err := json.Unmarshal(row.payload, &payload); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if payload.Location != "SiteX" {
		t.Errorf("payload location = %q, want overwritten registry name", payload.Location)
	}
}

func TestProcessFileHeaderFailureFallsBackToPath(t *testing.T) {
	store := newFakeStore()
	fusion := &fakeFusion{record: capture.FusedRecord{
		Vehicle:    capture.PlateResult{Plate: "M456DEF", Class: capture.PlateMoto, Valid: true},
		Processing: capture.ProcessingInfo{PlateSuccess: true, Errors: []string{"Header OCR: failed after 3 attempts"}},
	}}

	svc := testService(store, fusion, &fakeArchiver{}, nil)
	if err := svc.ProcessFile(context.Background(), photoPath("SiteX", "16032024")); err != nil {
		t.Fatalf("ProcessFile: %v", err)
	}

	row := store.inserted[0]
	if row.dateISO != "2024-03-16" {
		t.Errorf("dateISO = %q, want path-derived date", row.dateISO)
	}
	if store.created[0] != "SiteX" {
		t.Errorf("created cruise %q, want path site", store.created[0])
	}

	var payload capture.FusedRecord
	if err := json.Unmarshal(row.payload, &payload); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if payload.Processing.HeaderSuccess {
		t.Error("payload must record the header failure")
	}
	if payload.IsValid() {
		t.Error("record without header date and time must not be valid")
	}
}

func TestProcessFilePlateExhaustionStillPersists(t *testing.T) {
	store := newFakeStore()
	fusion := &fakeFusion{record: capture.FusedRecord{
		HeaderFields: capture.HeaderFields{Date: "16/03/2024", Time: "09:17:46", Location: "CALLE_10_Z1"},
		Processing: capture.ProcessingInfo{
			HeaderSuccess: true,
			Errors:        []string{"Plate OCR: error after 3 attempts: timeout; timeout; timeout"},
		},
	}}

	svc := testService(store, fusion, &fakeArchiver{}, nil)
	if err := svc.ProcessFile(context.Background(), photoPath("SiteX", "16032024")); err != nil {
		t.Fatalf("ProcessFile: %v", err)
	}

	var payload capture.FusedRecord
	if err := json.Unmarshal(store.inserted[0].payload, &payload); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if payload.Processing.PlateSuccess || payload.Vehicle.Plate != "" {
		t.Errorf("payload vehicle = %+v, want empty terminal result", payload.Vehicle)
	}
	if len(payload.Processing.Errors) != 1 {
		t.Errorf("payload errors = %v, want the aggregated plate error", payload.Processing.Errors)
	}
}

func TestProcessFileMalformedPath(t *testing.T) {
	store := newFakeStore()
	fusion := &fakeFusion{record: fullyFused()}

	svc := testService(store, fusion, &fakeArchiver{}, nil)
	err := svc.ProcessFile(context.Background(), "/watch/loose-file.jpg")
	if !errors.Is(err, pathmeta.ErrMalformedPath) {
		t.Fatalf("err = %v, want ErrMalformedPath", err)
	}
	if fusion.calls != 0 {
		t.Error("OCR must not run for an unresolvable path")
	}
	if len(store.inserted) != 0 {
		t.Error("nothing must be persisted for an unresolvable path")
	}
}

func TestProcessFileRelocationFailureBlocksPersistence(t *testing.T) {
	store := newFakeStore()
	fusion := &fakeFusion{record: fullyFused()}
	arch := &fakeArchiver{err: errors.New("disk full")}

	svc := testService(store, fusion, arch, nil)
	if err := svc.ProcessFile(context.Background(), photoPath("SiteX", "16032024")); err == nil {
		t.Fatal("expected relocation error")
	}
	if len(store.inserted) != 0 {
		t.Error("persistence must not run after relocation failure")
	}
}

func TestProcessFileMirrorFailureIsNonFatal(t *testing.T) {
	store := newFakeStore()
	fusion := &fakeFusion{record: fullyFused()}
	mirror := &fakeMirror{err: errors.New("bucket unavailable")}

	svc := testService(store, fusion, &fakeArchiver{}, mirror)
	if err := svc.ProcessFile(context.Background(), photoPath("SiteX", "16032024")); err != nil {
		t.Fatalf("ProcessFile: %v", err)
	}
	if len(store.inserted) != 1 {
		t.Error("photo must persist despite mirror failure")
	}
}

func TestProcessFilePersistenceErrorPropagates(t *testing.T) {
	store := newFakeStore()
	store.insertErr = errors.New("connection reset")
	fusion := &fakeFusion{record: fullyFused()}

	svc := testService(store, fusion, &fakeArchiver{}, nil)
	if err := svc.ProcessFile(context.Background(), photoPath("SiteX", "16032024")); err == nil {
		t.Fatal("expected persistence error")
	}
}
