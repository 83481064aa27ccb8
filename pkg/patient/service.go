package patient

import (
	"context"
	"errors"
	"fmt"

	"github.com/careloop/patientsync/pkg/common/logger"
	"github.com/careloop/patientsync/pkg/common/models"
	"github.com/careloop/patientsync/pkg/observability/metrics"
	"github.com/careloop/patientsync/pkg/upstream"
	"github.com/google/uuid"
)

var (
	// ErrUnsupportedOperation marks a mutation attempted against a record
	// that only exists in the third-party store. It is raised before any
	// network call is made.
	ErrUnsupportedOperation = errors.New("operation not supported for third-party records")

	// ErrRateLimited rejects a process call over the per-minute budget.
	ErrRateLimited = errors.New("rate limit exceeded")
)

// Store is the local half of the reconciliation model.
type Store interface {
	Create(ctx context.Context, rec *Record) error
	SetThirdPartyID(ctx context.Context, id, thirdPartyID string) error
	GetByID(ctx context.Context, id string) (*Record, error)
	GetByThirdPartyID(ctx context.Context, thirdPartyID string) (*Record, error)
	ListAll(ctx context.Context) ([]Record, error)
	Delete(ctx context.Context, id string) error
}

// Upstream is the read-mostly third-party half.
type Upstream interface {
	ListPatients(ctx context.Context, page int) (*upstream.ListResponse, error)
	GetPatient(ctx context.Context, id string) (*upstream.Patient, error)
	CreatePatient(ctx context.Context, req models.CreatePatientRequest) (*upstream.Patient, error)
	ProcessPatient(ctx context.Context, id string, req models.ProcessRequest) (*models.ProcessResult, error)
}

// Cache is the session cache with mutation-driven invalidation.
type Cache interface {
	GetList(ctx context.Context, page int, out *models.PatientListResponse) bool
	SetList(ctx context.Context, page int, value *models.PatientListResponse)
	InvalidateLists(ctx context.Context)
	GetDetail(ctx context.Context, id string, out *models.Patient) bool
	SetDetail(ctx context.Context, id string, value *models.Patient)
	EvictDetail(ctx context.Context, id string)
	GetProcess(ctx context.Context, id string, payload models.ProcessRequest, out *models.ProcessResult) bool
	SetProcess(ctx context.Context, id string, payload models.ProcessRequest, value *models.ProcessResult)
	ProcessKey(id string, payload models.ProcessRequest) string
}

// DurableCache survives restarts; misses and failures are indistinguishable.
type DurableCache interface {
	Get(ctx context.Context, key string, out interface{}) bool
	Set(ctx context.Context, key string, value interface{})
}

// Events publishes mutation events for the audit trail.
type Events interface {
	PublishEvent(ctx context.Context, eventType, source string, data map[string]interface{}) error
}

// Limiter budgets the expensive process calls.
type Limiter interface {
	Allow(ctx context.Context) bool
}

const eventSource = "patient-service"

type Service struct {
	store     Store
	upstream  Upstream
	cache     Cache
	durable   DurableCache
	events    Events
	limiter   Limiter
	validator *Validator
}

func NewService(store Store, up Upstream, cache Cache, durable DurableCache, events Events, limiter Limiter, validator *Validator) *Service {
	return &Service{
		store:     store,
		upstream:  up,
		cache:     cache,
		durable:   durable,
		events:    events,
		limiter:   limiter,
		validator: validator,
	}
}

// List returns one page of the combined local + third-party view. An
// unreachable third-party store degrades to a partial result: the local
// partition is authoritative and still rendered, with the error flagged in
// the sources summary.
func (s *Service) List(ctx context.Context, page int) (*models.PatientListResponse, error) {
	if page < 1 {
		page = 1
	}
	metrics.ListRequest()

	var cached models.PatientListResponse
	if s.cache.GetList(ctx, page, &cached) {
		return &cached, nil
	}

	locals, err := s.store.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing local patients: %w", err)
	}

	localViews := make([]models.Patient, 0, len(locals))
	copied := make(map[string]struct{}, len(locals))
	for i := range locals {
		localViews = append(localViews, locals[i].ToAPI())
		if locals[i].ThirdPartyID != "" {
			copied[locals[i].ThirdPartyID] = struct{}{}
		}
	}

	resp := &models.PatientListResponse{
		Page:    page,
		PerPage: len(localViews),
	}

	var external []models.Patient
	upstreamPage, upErr := s.upstream.ListPatients(ctx, page)
	if upErr != nil {
		metrics.UpstreamError()
		logger.Log.WithError(upErr).Warn("third-party list fetch failed, rendering local partition only")
		resp.Sources.ThirdPartyError = true
	} else {
		resp.Page = upstreamPage.Page
		resp.PerPage = upstreamPage.PerPage
		for _, tp := range upstreamPage.Patients {
			// Already copied: the local row carries source=both and
			// supersedes the external entry.
			if _, ok := copied[tp.ID]; ok {
				continue
			}
			external = append(external, FromUpstream(tp.ID, tp.FirstName, tp.LastName, tp.DOB, tp.Sex, tp.EthnicBackground))
		}
	}

	resp.Patients = append(localViews, external...)
	resp.Total = len(resp.Patients)
	resp.Sources.LocalCount = len(localViews)
	resp.Sources.ThirdPartyCount = len(external)

	s.cache.SetList(ctx, page, resp)
	return resp, nil
}

// Get resolves an identifier against the local store first (by local id, then
// by third-party id) and falls back to the third-party store.
func (s *Service) Get(ctx context.Context, id string) (*models.Patient, error) {
	var cached models.Patient
	if s.cache.GetDetail(ctx, id, &cached) {
		return &cached, nil
	}

	if _, err := uuid.Parse(id); err == nil {
		if rec, err := s.store.GetByID(ctx, id); err == nil {
			view := rec.ToAPI()
			s.cache.SetDetail(ctx, id, &view)
			return &view, nil
		} else if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}

	if rec, err := s.store.GetByThirdPartyID(ctx, id); err == nil {
		view := rec.ToAPI()
		s.cache.SetDetail(ctx, id, &view)
		return &view, nil
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	tp, err := s.upstream.GetPatient(ctx, id)
	if err != nil {
		if errors.Is(err, upstream.ErrNotFound) {
			return nil, ErrNotFound
		}
		metrics.UpstreamError()
		return nil, err
	}

	view := FromUpstream(tp.ID, tp.FirstName, tp.LastName, tp.DOB, tp.Sex, tp.EthnicBackground)
	s.cache.SetDetail(ctx, id, &view)
	return &view, nil
}

// Create inserts a local record, then best-effort syncs it to the third-party
// store. A failed sync leaves a plain local record and is reported in the
// response rather than failing the create.
func (s *Service) Create(ctx context.Context, req models.CreatePatientRequest) (*models.CreatePatientResponse, error) {
	dob, err := s.validator.ValidateCreate(req)
	if err != nil {
		return nil, err
	}

	rec := &Record{
		ID:               uuid.New().String(),
		FirstName:        req.FirstName,
		LastName:         req.LastName,
		DOB:              dob,
		Sex:              req.Sex,
		EthnicBackground: req.EthnicBackground,
	}
	if err := s.store.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("creating local patient: %w", err)
	}

	synced := true
	resp := &models.CreatePatientResponse{}
	if tp, upErr := s.upstream.CreatePatient(ctx, req); upErr != nil {
		metrics.UpstreamError()
		logger.Log.WithError(upErr).WithField("patient_id", rec.ID).Warn("third-party sync failed on create")
		synced = false
		resp.ThirdPartyError = upErr.Error()
	} else {
		if err := s.store.SetThirdPartyID(ctx, rec.ID, tp.ID); err != nil {
			logger.Log.WithError(err).WithField("patient_id", rec.ID).Error("failed to persist third-party link")
		} else {
			rec.ThirdPartyID = tp.ID
		}
	}
	resp.Patient = rec.ToAPI()
	resp.ThirdPartySync = &synced

	s.publish(ctx, models.EventPatientCreated, rec)
	s.cache.InvalidateLists(ctx)
	s.cache.SetDetail(ctx, rec.ID, &resp.Patient)
	metrics.PatientCreated()
	return resp, nil
}

// Delete removes the local half of a record. Third-party identities have no
// local half; deleting one is rejected without touching the network.
func (s *Service) Delete(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		// Not a local identifier, so this can only be a third-party record.
		return ErrUnsupportedOperation
	}

	rec, err := s.store.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !CanDelete(rec.Source()) {
		return ErrUnsupportedOperation
	}

	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}

	s.publish(ctx, models.EventPatientDeleted, rec)
	s.cache.InvalidateLists(ctx)
	s.cache.EvictDetail(ctx, id)
	if rec.ThirdPartyID != "" {
		// The detail scope may also hold this record under its external
		// identifier.
		s.cache.EvictDetail(ctx, rec.ThirdPartyID)
	}
	metrics.PatientDeleted()
	return nil
}

// Copy materializes a third-party record into the local store. The operation
// is idempotent: if the identity was copied before, the existing local
// counterpart is returned and no second row is created.
func (s *Service) Copy(ctx context.Context, thirdPartyID string) (*models.Patient, error) {
	if thirdPartyID == "" {
		return nil, ValidationError{Field: "third_party_id", reason: errors.New("required")}
	}

	if existing, err := s.store.GetByThirdPartyID(ctx, thirdPartyID); err == nil {
		view := existing.ToAPI()
		return &view, nil
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	tp, err := s.upstream.GetPatient(ctx, thirdPartyID)
	if err != nil {
		if errors.Is(err, upstream.ErrNotFound) {
			return nil, ErrNotFound
		}
		metrics.UpstreamError()
		return nil, err
	}

	dob, err := ParseDOB(tp.DOB)
	if err != nil {
		return nil, fmt.Errorf("third-party record has invalid date of birth: %w", err)
	}

	rec := &Record{
		ID:               uuid.New().String(),
		ThirdPartyID:     tp.ID,
		FirstName:        tp.FirstName,
		LastName:         tp.LastName,
		DOB:              dob,
		Sex:              tp.Sex,
		EthnicBackground: tp.EthnicBackground,
	}
	if err := s.store.Create(ctx, rec); err != nil {
		// A concurrent copy may have won the unique index race; the
		// surviving row is the answer either way.
		if existing, lookupErr := s.store.GetByThirdPartyID(ctx, thirdPartyID); lookupErr == nil {
			view := existing.ToAPI()
			return &view, nil
		}
		return nil, fmt.Errorf("creating local copy: %w", err)
	}

	view := rec.ToAPI()
	s.publish(ctx, models.EventPatientCopied, rec)
	s.cache.InvalidateLists(ctx)
	// The record is reachable under both halves of the reconciliation key;
	// a pre-copy read may have cached the third_party view under the
	// external identifier.
	s.cache.SetDetail(ctx, rec.ID, &view)
	s.cache.SetDetail(ctx, rec.ThirdPartyID, &view)
	metrics.PatientCopied()
	return &view, nil
}

// Process submits a point-in-time computation for a locally owned patient.
// Results are content-addressed by (patient, payload), so identical inputs
// are served from cache without re-invoking the store.
func (s *Service) Process(ctx context.Context, id string, req models.ProcessRequest) (*models.ProcessResult, error) {
	if err := s.validator.ValidateProcess(req); err != nil {
		return nil, err
	}

	if _, err := uuid.Parse(id); err != nil {
		// Third-party-only records cannot be processed; reject before any
		// network call.
		return nil, ErrUnsupportedOperation
	}

	rec, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanProcess(rec.Source()) {
		return nil, ErrUnsupportedOperation
	}

	var cached models.ProcessResult
	if s.cache.GetProcess(ctx, id, req, &cached) {
		return &cached, nil
	}
	if s.durable != nil && s.durable.Get(ctx, s.cache.ProcessKey(id, req), &cached) {
		s.cache.SetProcess(ctx, id, req, &cached)
		return &cached, nil
	}

	if !s.limiter.Allow(ctx) {
		metrics.ProcessRateLimited()
		return nil, ErrRateLimited
	}

	// Process under the third-party identity when one exists; a plain local
	// record is processed under its own id.
	processID := rec.ID
	if rec.ThirdPartyID != "" {
		processID = rec.ThirdPartyID
	}

	result, err := s.upstream.ProcessPatient(ctx, processID, req)
	if err != nil {
		metrics.UpstreamError()
		return nil, err
	}

	s.cache.SetProcess(ctx, id, req, result)
	if s.durable != nil {
		s.durable.Set(ctx, s.cache.ProcessKey(id, req), result)
	}
	return result, nil
}

// Stats aggregates provenance counts over the combined view.
func (s *Service) Stats(ctx context.Context) (*models.PatientStats, error) {
	list, err := s.List(ctx, 1)
	if err != nil {
		return nil, err
	}

	stats := &models.PatientStats{
		TotalPatients:   len(list.Patients),
		LocalCount:      list.Sources.LocalCount,
		ThirdPartyCount: list.Sources.ThirdPartyCount,
	}
	for _, p := range list.Patients {
		switch Source(p.Source) {
		case SourceLocal:
			stats.LocalOnlyCount++
		case SourceBoth:
			stats.SyncedCount++
		case SourceThirdParty:
		}
	}
	return stats, nil
}

// publish reports a mutation to the event stream. The mutation has already
// committed; a publish failure is logged, not surfaced.
func (s *Service) publish(ctx context.Context, eventType string, rec *Record) {
	if s.events == nil {
		return
	}
	data := map[string]interface{}{
		"patient_id":     rec.ID,
		"third_party_id": rec.ThirdPartyID,
		"source":         string(rec.Source()),
	}
	if err := s.events.PublishEvent(ctx, eventType, eventSource, data); err != nil {
		logger.Log.WithError(err).WithField("event_type", eventType).Warn("failed to publish mutation event")
	}
}
