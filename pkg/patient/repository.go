package patient

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

// ErrNotFound means the identifier has no row in the local store. It says
// nothing about the third-party store.
var ErrNotFound = errors.New("patient not found in local store")

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&Record{})
}

func (r *Repository) Create(ctx context.Context, rec *Record) error {
	now := time.Now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now
	return r.db.WithContext(ctx).Create(rec).Error
}

func (r *Repository) SetThirdPartyID(ctx context.Context, id, thirdPartyID string) error {
	return r.db.WithContext(ctx).Model(&Record{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"third_party_id": thirdPartyID,
			"updated_at":     time.Now().UTC(),
		}).Error
}

func (r *Repository) GetByID(ctx context.Context, id string) (*Record, error) {
	var rec Record
	err := r.db.WithContext(ctx).First(&rec, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *Repository) GetByThirdPartyID(ctx context.Context, thirdPartyID string) (*Record, error) {
	if thirdPartyID == "" {
		return nil, ErrNotFound
	}
	var rec Record
	err := r.db.WithContext(ctx).First(&rec, "third_party_id = ?", thirdPartyID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListAll returns every local row, newest first, matching the ordering of the
// combined list view.
func (r *Repository) ListAll(ctx context.Context) ([]Record, error) {
	var recs []Record
	err := r.db.WithContext(ctx).Order("created_at DESC").Find(&recs).Error
	return recs, err
}

func (r *Repository) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Delete(&Record{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
