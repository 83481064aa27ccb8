package models

import "time"

// Patient is the unified record returned to clients regardless of where the
// underlying data lives. ID carries the local UUID for local/both records and
// the upstream identifier for third_party-only records, so detail links keep
// working across provenance transitions.
type Patient struct {
	ID               string     `json:"id"`
	ThirdPartyID     string     `json:"third_party_id,omitempty"`
	FirstName        string     `json:"first_name"`
	LastName         string     `json:"last_name"`
	DOB              string     `json:"dob"`
	Sex              string     `json:"sex"`
	EthnicBackground string     `json:"ethnic_background"`
	Source           string     `json:"source"`
	CanDelete        bool       `json:"can_delete"`
	CreatedAt        *time.Time `json:"created_at,omitempty"`
}

type CreatePatientRequest struct {
	FirstName        string `json:"first_name" validate:"required"`
	LastName         string `json:"last_name" validate:"required"`
	DOB              string `json:"dob" validate:"required"`
	Sex              string `json:"sex" validate:"required,oneof=male female other"`
	EthnicBackground string `json:"ethnic_background" validate:"required"`
}

// CreatePatientResponse carries the created record plus the outcome of the
// best-effort upstream sync. A failed sync still yields a 201: the local row
// exists and can be re-synced later.
type CreatePatientResponse struct {
	Patient
	ThirdPartySync  *bool  `json:"third_party_sync,omitempty"`
	ThirdPartyError string `json:"third_party_error,omitempty"`
}

type CopyPatientRequest struct {
	ThirdPartyID string `json:"third_party_id"`
}

type Measurement struct {
	Value float64 `json:"value"`
	Unit  string  `json:"unit"`
}

type ProcessRequest struct {
	Weight Measurement `json:"weight"`
	Height Measurement `json:"height"`
}

type ProcessResult struct {
	Success bool `json:"success"`
	Patient struct {
		Weight Measurement `json:"weight"`
		Height Measurement `json:"height"`
	} `json:"patient"`
	Results [][2]float64 `json:"results"`
}

type SourcesSummary struct {
	LocalCount      int  `json:"local_count"`
	ThirdPartyCount int  `json:"third_party_count"`
	ThirdPartyError bool `json:"third_party_error"`
}

type PatientListResponse struct {
	Patients []Patient      `json:"patients"`
	Total    int            `json:"total"`
	Page     int            `json:"page"`
	PerPage  int            `json:"per_page"`
	Sources  SourcesSummary `json:"sources"`
}

type DeleteResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type PatientStats struct {
	TotalPatients   int `json:"total_patients"`
	LocalCount      int `json:"local_count"`
	ThirdPartyCount int `json:"third_party_count"`
	LocalOnlyCount  int `json:"local_only_count"`
	SyncedCount     int `json:"synced_count"`
}

// Event bus models
type Event struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"` // patient.created, patient.deleted, patient.copied
	Source    string                 `json:"source"`
	Data      map[string]interface{} `json:"data"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]string      `json:"metadata,omitempty"`
}

const (
	EventPatientCreated = "patient.created"
	EventPatientDeleted = "patient.deleted"
	EventPatientCopied  = "patient.copied"
)
