package service

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"radar-ingest/internal/domain/capture"
	"radar-ingest/internal/pathmeta"
)

// PhotoStore is the persistence surface the pipeline needs.
type PhotoStore interface {
	FindCruiseIDByName(ctx context.Context, name string) (uuid.UUID, bool, error)
	CreateCruise(ctx context.Context, name string) (uuid.UUID, error)
	InsertPhoto(ctx context.Context, dateISO string, cruiseID uuid.UUID, photoName, relativePath string, payload []byte) error
}

// FusionRunner runs both OCR engines for one photo.
type FusionRunner interface {
	Run(ctx context.Context, imagePath string) capture.FusedRecord
}

// Archiver moves a processed photo into the per-site archive.
type Archiver interface {
	Move(src, site string) (dest, rel string, err error)
}

// Mirror uploads an archived photo to remote storage. Mirroring is best
// effort; failures never fail the pipeline.
type Mirror interface {
	UploadFile(ctx context.Context, key, path string) (string, error)
}

// IngestService runs the full per-file pipeline: path resolution, hybrid
// OCR, fallback merge, cruise reconciliation, relocation and persistence.
type IngestService struct {
	store    PhotoStore
	fusion   FusionRunner
	archiver Archiver
	mirror   Mirror
	log      zerolog.Logger
}

func NewIngestService(store PhotoStore, fusion FusionRunner, archiver Archiver, mirror Mirror, log zerolog.Logger) *IngestService {
	return &IngestService{store: store, fusion: fusion, archiver: archiver, mirror: mirror, log: log}
}

// ProcessFile ingests one photo end to end. Any returned error is fatal for
// this file only.
func (s *IngestService) ProcessFile(ctx context.Context, path string) error {
	meta, err := pathmeta.Resolve(path)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", path, err)
	}

	fused := s.fusion.Run(ctx, path)
	merged := MergeWithFallback(meta, fused)

	cruiseID, cruiseName, err := s.reconcileCruise(ctx, merged.Cruise, meta.SiteID)
	if err != nil {
		return err
	}
	if cruiseName != merged.Cruise {
		// The registry knows this site under the path-derived name; keep
		// the stored record consistent with the registry row.
		merged.Cruise = cruiseName
		merged.Payload.Location = cruiseName
	}

	dest, rel, err := s.archiver.Move(path, merged.Cruise)
	if err != nil {
		return err
	}

	s.mirrorUpload(ctx, rel, dest)

	payload, err := json.Marshal(merged.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload for %s: %w", merged.PhotoName, err)
	}
	if err := s.store.InsertPhoto(ctx, merged.Date, cruiseID, merged.PhotoName, rel, payload); err != nil {
		return err
	}

	s.log.Info().
		Str("photo", merged.PhotoName).
		Str("cruise", merged.Cruise).
		Str("date", merged.Date).
		Bool("valid", merged.Payload.IsValid()).
		Msg("photo ingested")
	return nil
}

// reconcileCruise resolves the cruise row for a photo. The merged name is
// tried first; when unknown, the path-derived site acts as an alternate
// lookup key. A photo from a genuinely new site registers it under the
// merged name.
func (s *IngestService) reconcileCruise(ctx context.Context, name, altName string) (uuid.UUID, string, error) {
	id, found, err := s.store.FindCruiseIDByName(ctx, name)
	if err != nil {
		return uuid.Nil, "", err
	}
	if found {
		return id, name, nil
	}

	if altName != "" && altName != name {
		id, found, err = s.store.FindCruiseIDByName(ctx, altName)
		if err != nil {
			return uuid.Nil, "", err
		}
		if found {
			return id, altName, nil
		}
	}

	id, err = s.store.CreateCruise(ctx, name)
	if err != nil {
		return uuid.Nil, "", err
	}
	s.log.Info().Str("cruise", name).Str("id", id.String()).Msg("registered new cruise")
	return id, name, nil
}

func (s *IngestService) mirrorUpload(ctx context.Context, rel, dest string) {
	if s.mirror == nil {
		return
	}
	key := filepath.ToSlash(rel)
	if _, err := s.mirror.UploadFile(ctx, key, dest); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("mirror upload failed")
		return
	}
	s.log.Debug().Str("key", key).Msg("photo mirrored")
}
