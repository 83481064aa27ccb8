package patient

import (
	"time"

	"github.com/careloop/patientsync/pkg/common/models"
)

// Source says where a patient record currently lives. It is deliberately a
// closed set: every provenance decision below switches exhaustively so a new
// variant forces a review of each rule.
type Source string

const (
	SourceLocal      Source = "local"
	SourceThirdParty Source = "third_party"
	SourceBoth       Source = "both"
)

func (s Source) Valid() bool {
	switch s {
	case SourceLocal, SourceThirdParty, SourceBoth:
		return true
	}
	return false
}

// CanDelete reports whether the record has a local half that deletion can
// remove. Deleting never touches the third-party store.
func CanDelete(s Source) bool {
	switch s {
	case SourceLocal, SourceBoth:
		return true
	case SourceThirdParty:
		return false
	}
	return false
}

// CanProcess reports whether the record may be submitted for processing.
// Third-party-only records have no local identity to process under.
func CanProcess(s Source) bool {
	switch s {
	case SourceLocal, SourceBoth:
		return true
	case SourceThirdParty:
		return false
	}
	return false
}

// Record is the local store's row. A row always has a local id; a non-empty
// ThirdPartyID marks it as the local half of an upstream record.
type Record struct {
	ID               string    `json:"id" gorm:"primaryKey;column:id"`
	ThirdPartyID     string    `json:"third_party_id" gorm:"column:third_party_id;uniqueIndex:idx_patients_third_party_id,where:third_party_id <> ''"`
	FirstName        string    `json:"first_name" gorm:"column:first_name"`
	LastName         string    `json:"last_name" gorm:"column:last_name"`
	DOB              time.Time `json:"dob" gorm:"column:dob"`
	Sex              string    `json:"sex" gorm:"column:sex"`
	EthnicBackground string    `json:"ethnic_background" gorm:"column:ethnic_background"`
	CreatedAt        time.Time `json:"created_at" gorm:"column:created_at"`
	UpdatedAt        time.Time `json:"updated_at" gorm:"column:updated_at"`
}

func (Record) TableName() string {
	return "patients"
}

// Source derives provenance from the reconciliation key: a local row with a
// third-party link exists in both stores.
func (r *Record) Source() Source {
	if r.ThirdPartyID != "" {
		return SourceBoth
	}
	return SourceLocal
}

// ToAPI maps the stored row to the unified client view.
func (r *Record) ToAPI() models.Patient {
	createdAt := r.CreatedAt
	source := r.Source()
	return models.Patient{
		ID:               r.ID,
		ThirdPartyID:     r.ThirdPartyID,
		FirstName:        r.FirstName,
		LastName:         r.LastName,
		DOB:              r.DOB.UTC().Format(time.RFC3339),
		Sex:              r.Sex,
		EthnicBackground: r.EthnicBackground,
		Source:           string(source),
		CanDelete:        CanDelete(source),
		CreatedAt:        &createdAt,
	}
}

// FromUpstream synthesizes the unified view of a record that exists only in
// the third-party store. It has no local id, no created_at, and nothing on it
// can be deleted or processed.
func FromUpstream(id, firstName, lastName, dob, sex, ethnicBackground string) models.Patient {
	return models.Patient{
		ID:               id,
		ThirdPartyID:     id,
		FirstName:        firstName,
		LastName:         lastName,
		DOB:              dob,
		Sex:              sex,
		EthnicBackground: ethnicBackground,
		Source:           string(SourceThirdParty),
		CanDelete:        false,
	}
}
