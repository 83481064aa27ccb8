package audit

import (
	"context"
	"time"

	"github.com/careloop/patientsync/pkg/common/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Entry is one recorded mutation. Entries are append-only; the trail is the
// replayable history of every create, copy, and delete.
type Entry struct {
	ID         string            `gorm:"primaryKey" json:"id"`
	EventType  string            `gorm:"index" json:"event_type"`
	Source     string            `json:"source"`
	PatientID  string            `gorm:"index" json:"patient_id"`
	Payload    datatypes.JSONMap `json:"payload"`
	OccurredAt time.Time         `json:"occurred_at"`
	RecordedAt time.Time         `gorm:"index" json:"recorded_at"`
}

func (Entry) TableName() string {
	return "audit_entries"
}

type Recorder struct {
	db *gorm.DB
}

func NewRecorder(db *gorm.DB) *Recorder {
	return &Recorder{db: db}
}

func (r *Recorder) AutoMigrate() error {
	return r.db.AutoMigrate(&Entry{})
}

// Record persists one mutation event. Re-delivered events overwrite their own
// entry, so consuming at-least-once stays idempotent.
func (r *Recorder) Record(ctx context.Context, event models.Event) error {
	patientID, _ := event.Data["patient_id"].(string)

	entry := &Entry{
		ID:         event.ID,
		EventType:  event.Type,
		Source:     event.Source,
		PatientID:  patientID,
		Payload:    datatypes.JSONMap(event.Data),
		OccurredAt: event.Timestamp,
		RecordedAt: time.Now().UTC(),
	}
	return r.db.WithContext(ctx).Save(entry).Error
}

// ListRecent returns the newest entries first, optionally scoped to a patient.
func (r *Recorder) ListRecent(ctx context.Context, patientID string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	query := r.db.WithContext(ctx).Order("recorded_at DESC").Limit(limit)
	if patientID != "" {
		query = query.Where("patient_id = ?", patientID)
	}

	var entries []Entry
	if err := query.Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}
