package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ErrPersistence wraps any statement failure. Fatal for the affected file
// only; the queue keeps going.
var ErrPersistence = errors.New("persistence failed")

type PhotoRepository struct {
	db *gorm.DB
}

func NewPhotoRepository(db *gorm.DB) *PhotoRepository {
	return &PhotoRepository{db: db}
}

func (Cruise) TableName() string {
	return "cruise"
}

func (Photo) TableName() string {
	return "photo"
}

type Cruise struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey;default:uuid_generate_v4()"`
	Name      string    `gorm:"column:cruise_name;not null;uniqueIndex"`
	CreatedAt time.Time
}

type Photo struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey;default:uuid_generate_v4()"`
	PhotoDate time.Time `gorm:"column:photo_date;type:date;not null"`
	CruiseID  uuid.UUID `gorm:"column:id_cruise;type:uuid;not null"`
	PhotoName string    `gorm:"not null"`
	PhotoPath string    `gorm:"not null"`
	PhotoInfo datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt time.Time
}

// FindCruiseIDByName looks up a cruise by exact name. Name matching is
// deliberately case and whitespace sensitive.
func (r *PhotoRepository) FindCruiseIDByName(ctx context.Context, name string) (uuid.UUID, bool, error) {
	var cruise Cruise
	err := r.db.WithContext(ctx).Where("cruise_name = ?", name).First(&cruise).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("%w: find cruise: %v", ErrPersistence, err)
	}
	return cruise.ID, true, nil
}

// CreateCruise inserts a new cruise. If the insert loses a race against a
// concurrent first sighting, the unique index rejects it and the existing
// row is looked up instead.
func (r *PhotoRepository) CreateCruise(ctx context.Context, name string) (uuid.UUID, error) {
	cruise := Cruise{
		ID:        uuid.New(),
		Name:      name,
		CreatedAt: time.Now(),
	}
	if err := r.db.WithContext(ctx).Create(&cruise).Error; err != nil {
		id, found, lookupErr := r.FindCruiseIDByName(ctx, name)
		if lookupErr == nil && found {
			return id, nil
		}
		return uuid.Nil, fmt.Errorf("%w: create cruise %q: %v", ErrPersistence, name, err)
	}
	return cruise.ID, nil
}

// InsertPhoto stores one ingested photo row. dateISO must be YYYY-MM-DD.
func (r *PhotoRepository) InsertPhoto(ctx context.Context, dateISO string, cruiseID uuid.UUID, photoName, relativePath string, payload []byte) error {
	photoDate, err := time.Parse("2006-01-02", dateISO)
	if err != nil {
		return fmt.Errorf("%w: invalid photo date %q: %v", ErrPersistence, dateISO, err)
	}

	photo := Photo{
		ID:        uuid.New(),
		PhotoDate: photoDate,
		CruiseID:  cruiseID,
		PhotoName: photoName,
		PhotoPath: relativePath,
		PhotoInfo: datatypes.JSON(payload),
		CreatedAt: time.Now(),
	}
	if err := r.db.WithContext(ctx).Create(&photo).Error; err != nil {
		return fmt.Errorf("%w: insert photo %q: %v", ErrPersistence, photoName, err)
	}
	return nil
}

// CountPhotos reports how many photos have been persisted, for the status
// endpoint.
func (r *PhotoRepository) CountPhotos(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&Photo{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("%w: count photos: %v", ErrPersistence, err)
	}
	return count, nil
}
