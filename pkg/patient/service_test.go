package patient

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/careloop/patientsync/pkg/common/logger"
	"github.com/careloop/patientsync/pkg/common/models"
	"github.com/careloop/patientsync/pkg/units"
	"github.com/careloop/patientsync/pkg/upstream"
)

func TestMain(m *testing.M) {
	logger.Init()
	os.Exit(m.Run())
}

type fakeStore struct {
	records   []*Record
	createErr error
	deletes   int
}

func (s *fakeStore) Create(ctx context.Context, rec *Record) error {
	if s.createErr != nil {
		return s.createErr
	}
	rec.CreatedAt = time.Now().UTC()
	rec.UpdatedAt = rec.CreatedAt
	clone := *rec
	s.records = append(s.records, &clone)
	return nil
}

func (s *fakeStore) SetThirdPartyID(ctx context.Context, id, thirdPartyID string) error {
	for _, r := range s.records {
		if r.ID == id {
			r.ThirdPartyID = thirdPartyID
			return nil
		}
	}
	return ErrNotFound
}

func (s *fakeStore) GetByID(ctx context.Context, id string) (*Record, error) {
	for _, r := range s.records {
		if r.ID == id {
			clone := *r
			return &clone, nil
		}
	}
	return nil, ErrNotFound
}

func (s *fakeStore) GetByThirdPartyID(ctx context.Context, thirdPartyID string) (*Record, error) {
	if thirdPartyID == "" {
		return nil, ErrNotFound
	}
	for _, r := range s.records {
		if r.ThirdPartyID == thirdPartyID {
			clone := *r
			return &clone, nil
		}
	}
	return nil, ErrNotFound
}

func (s *fakeStore) ListAll(ctx context.Context) ([]Record, error) {
	out := make([]Record, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, *r)
	}
	return out, nil
}

func (s *fakeStore) Delete(ctx context.Context, id string) error {
	for i, r := range s.records {
		if r.ID == id {
			s.records = append(s.records[:i], s.records[i+1:]...)
			s.deletes++
			return nil
		}
	}
	return ErrNotFound
}

type fakeUpstream struct {
	listResp    *upstream.ListResponse
	listErr     error
	patients    map[string]*upstream.Patient
	createResp  *upstream.Patient
	createErr   error
	processResp *models.ProcessResult
	processErr  error
	processedID string
	calls       int
}

func (u *fakeUpstream) ListPatients(ctx context.Context, page int) (*upstream.ListResponse, error) {
	u.calls++
	if u.listErr != nil {
		return nil, u.listErr
	}
	return u.listResp, nil
}

func (u *fakeUpstream) GetPatient(ctx context.Context, id string) (*upstream.Patient, error) {
	u.calls++
	if p, ok := u.patients[id]; ok {
		return p, nil
	}
	return nil, upstream.ErrNotFound
}

func (u *fakeUpstream) CreatePatient(ctx context.Context, req models.CreatePatientRequest) (*upstream.Patient, error) {
	u.calls++
	if u.createErr != nil {
		return nil, u.createErr
	}
	return u.createResp, nil
}

func (u *fakeUpstream) ProcessPatient(ctx context.Context, id string, req models.ProcessRequest) (*models.ProcessResult, error) {
	u.calls++
	u.processedID = id
	if u.processErr != nil {
		return nil, u.processErr
	}
	return u.processResp, nil
}

type fakeCache struct {
	lists         map[int]*models.PatientListResponse
	details       map[string]*models.Patient
	process       map[string]*models.ProcessResult
	invalidations int
}

func newFakeCache() *fakeCache {
	return &fakeCache{
		lists:   map[int]*models.PatientListResponse{},
		details: map[string]*models.Patient{},
		process: map[string]*models.ProcessResult{},
	}
}

func (c *fakeCache) GetList(ctx context.Context, page int, out *models.PatientListResponse) bool {
	if v, ok := c.lists[page]; ok {
		*out = *v
		return true
	}
	return false
}

func (c *fakeCache) SetList(ctx context.Context, page int, value *models.PatientListResponse) {
	clone := *value
	c.lists[page] = &clone
}

func (c *fakeCache) InvalidateLists(ctx context.Context) {
	c.lists = map[int]*models.PatientListResponse{}
	c.invalidations++
}

func (c *fakeCache) GetDetail(ctx context.Context, id string, out *models.Patient) bool {
	if v, ok := c.details[id]; ok {
		*out = *v
		return true
	}
	return false
}

func (c *fakeCache) SetDetail(ctx context.Context, id string, value *models.Patient) {
	clone := *value
	c.details[id] = &clone
}

func (c *fakeCache) EvictDetail(ctx context.Context, id string) {
	delete(c.details, id)
}

func (c *fakeCache) GetProcess(ctx context.Context, id string, payload models.ProcessRequest, out *models.ProcessResult) bool {
	if v, ok := c.process[c.ProcessKey(id, payload)]; ok {
		*out = *v
		return true
	}
	return false
}

func (c *fakeCache) SetProcess(ctx context.Context, id string, payload models.ProcessRequest, value *models.ProcessResult) {
	clone := *value
	c.process[c.ProcessKey(id, payload)] = &clone
}

func (c *fakeCache) ProcessKey(id string, payload models.ProcessRequest) string {
	return fmt.Sprintf("%s:%v", id, payload)
}

type fakeDurable struct {
	entries map[string]*models.ProcessResult
}

func (d *fakeDurable) Get(ctx context.Context, key string, out interface{}) bool {
	if v, ok := d.entries[key]; ok {
		*(out.(*models.ProcessResult)) = *v
		return true
	}
	return false
}

func (d *fakeDurable) Set(ctx context.Context, key string, value interface{}) {
	if v, ok := value.(*models.ProcessResult); ok {
		clone := *v
		d.entries[key] = &clone
	}
}

type fakeEvents struct {
	types []string
}

func (e *fakeEvents) PublishEvent(ctx context.Context, eventType, source string, data map[string]interface{}) error {
	e.types = append(e.types, eventType)
	return nil
}

type fakeLimiter struct {
	allow bool
	calls int
}

func (l *fakeLimiter) Allow(ctx context.Context) bool {
	l.calls++
	return l.allow
}

type fixture struct {
	store    *fakeStore
	upstream *fakeUpstream
	cache    *fakeCache
	durable  *fakeDurable
	events   *fakeEvents
	limiter  *fakeLimiter
	service  *Service
}

func newFixture() *fixture {
	f := &fixture{
		store:    &fakeStore{},
		upstream: &fakeUpstream{patients: map[string]*upstream.Patient{}},
		cache:    newFakeCache(),
		durable:  &fakeDurable{entries: map[string]*models.ProcessResult{}},
		events:   &fakeEvents{},
		limiter:  &fakeLimiter{allow: true},
	}
	f.service = NewService(f.store, f.upstream, f.cache, f.durable, f.events, f.limiter, NewValidator(units.DefaultCatalog()))
	return f
}

func createRequest() models.CreatePatientRequest {
	return models.CreatePatientRequest{
		FirstName:        "Ada",
		LastName:         "Lovelace",
		DOB:              "1815-12-10",
		Sex:              "female",
		EthnicBackground: "british",
	}
}

func TestCreateSyncsToThirdParty(t *testing.T) {
	f := newFixture()
	f.upstream.createResp = &upstream.Patient{ID: "ext-1"}

	resp, err := f.service.Create(context.Background(), createRequest())
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if resp.ThirdPartySync == nil || !*resp.ThirdPartySync {
		t.Fatal("expected third_party_sync true")
	}
	if resp.Source != string(SourceBoth) {
		t.Fatalf("expected source both, got %q", resp.Source)
	}
	if resp.ThirdPartyID != "ext-1" {
		t.Fatalf("expected third party link, got %q", resp.ThirdPartyID)
	}
	if !resp.CanDelete || resp.CreatedAt == nil || resp.ID == "" {
		t.Fatalf("unexpected created view: %+v", resp.Patient)
	}
	if len(f.store.records) != 1 || f.store.records[0].ThirdPartyID != "ext-1" {
		t.Fatal("expected persisted third party link")
	}
	if len(f.events.types) != 1 || f.events.types[0] != models.EventPatientCreated {
		t.Fatalf("expected created event, got %v", f.events.types)
	}
	if f.cache.invalidations != 1 {
		t.Fatalf("expected one list invalidation, got %d", f.cache.invalidations)
	}
}

func TestCreateSurvivesThirdPartyFailure(t *testing.T) {
	f := newFixture()
	f.upstream.createErr = upstream.ErrUnavailable

	resp, err := f.service.Create(context.Background(), createRequest())
	if err != nil {
		t.Fatalf("create should not fail on sync error: %v", err)
	}
	if resp.ThirdPartySync == nil || *resp.ThirdPartySync {
		t.Fatal("expected third_party_sync false")
	}
	if resp.ThirdPartyError == "" {
		t.Fatal("expected third_party_error to be reported")
	}
	if resp.Source != string(SourceLocal) {
		t.Fatalf("expected source local, got %q", resp.Source)
	}
	if len(f.store.records) != 1 {
		t.Fatal("expected local record despite sync failure")
	}
}

func TestCreateRejectsInvalidInput(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*models.CreatePatientRequest)
	}{
		{"bad sex", func(r *models.CreatePatientRequest) { r.Sex = "unknown" }},
		{"numeric name", func(r *models.CreatePatientRequest) { r.FirstName = "Ada123" }},
		{"future dob", func(r *models.CreatePatientRequest) { r.DOB = time.Now().AddDate(1, 0, 0).Format("2006-01-02") }},
		{"garbage dob", func(r *models.CreatePatientRequest) { r.DOB = "not-a-date" }},
		{"missing last name", func(r *models.CreatePatientRequest) { r.LastName = "" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture()
			req := createRequest()
			tc.mutate(&req)

			if _, err := f.service.Create(context.Background(), req); !IsValidationError(err) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if len(f.store.records) != 0 {
				t.Fatal("invalid input must not reach the store")
			}
		})
	}
}

func TestCopyMaterializesThirdPartyRecord(t *testing.T) {
	f := newFixture()
	f.upstream.patients["ext-7"] = &upstream.Patient{
		ID:        "ext-7",
		FirstName: "Grace",
		LastName:  "Hopper",
		DOB:       "1906-12-09",
		Sex:       "female",
	}

	patient, err := f.service.Copy(context.Background(), "ext-7")
	if err != nil {
		t.Fatalf("copy failed: %v", err)
	}
	if patient.Source != string(SourceBoth) {
		t.Fatalf("expected source both, got %q", patient.Source)
	}
	if patient.ThirdPartyID != "ext-7" {
		t.Fatalf("expected third party link, got %q", patient.ThirdPartyID)
	}
	if !patient.CanDelete {
		t.Fatal("copied record must be deletable")
	}
	if len(f.events.types) != 1 || f.events.types[0] != models.EventPatientCopied {
		t.Fatalf("expected copied event, got %v", f.events.types)
	}
}

func TestCopyIsIdempotent(t *testing.T) {
	f := newFixture()
	f.upstream.patients["ext-7"] = &upstream.Patient{
		ID: "ext-7", FirstName: "Grace", LastName: "Hopper", DOB: "1906-12-09", Sex: "female",
	}

	first, err := f.service.Copy(context.Background(), "ext-7")
	if err != nil {
		t.Fatalf("first copy failed: %v", err)
	}
	networkCalls := f.upstream.calls

	second, err := f.service.Copy(context.Background(), "ext-7")
	if err != nil {
		t.Fatalf("second copy failed: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("second copy returned a different record: %q vs %q", second.ID, first.ID)
	}
	if len(f.store.records) != 1 {
		t.Fatalf("expected one local record, got %d", len(f.store.records))
	}
	if f.upstream.calls != networkCalls {
		t.Fatal("repeat copy must not call the third-party store")
	}
}

func TestCopyUnknownIdentity(t *testing.T) {
	f := newFixture()
	if _, err := f.service.Copy(context.Background(), "ext-missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestDeleteThirdPartyRecordRejectedBeforeNetwork(t *testing.T) {
	f := newFixture()
	err := f.service.Delete(context.Background(), "ext-7")
	if !errors.Is(err, ErrUnsupportedOperation) {
		t.Fatalf("expected unsupported operation, got %v", err)
	}
	if f.upstream.calls != 0 {
		t.Fatal("rejection must happen before any network call")
	}
}

func TestDeleteLocalRecord(t *testing.T) {
	f := newFixture()
	f.upstream.createResp = &upstream.Patient{ID: "ext-1"}
	resp, err := f.service.Create(context.Background(), createRequest())
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if err := f.service.Delete(context.Background(), resp.ID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if len(f.store.records) != 0 {
		t.Fatal("expected local record removed")
	}
	if f.events.types[len(f.events.types)-1] != models.EventPatientDeleted {
		t.Fatalf("expected deleted event, got %v", f.events.types)
	}
	if _, ok := f.cache.details[resp.ID]; ok {
		t.Fatal("expected detail entry evicted")
	}
}

func TestDeleteUnknownLocalID(t *testing.T) {
	f := newFixture()
	err := f.service.Delete(context.Background(), "0b607868-7bd1-4756-a242-1d4d0e1ab94e")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func processRequest() models.ProcessRequest {
	return models.ProcessRequest{
		Weight: models.Measurement{Value: 70, Unit: "kg"},
		Height: models.Measurement{Value: 1.8, Unit: "m"},
	}
}

func TestProcessThirdPartyRecordRejectedBeforeNetwork(t *testing.T) {
	f := newFixture()
	_, err := f.service.Process(context.Background(), "ext-7", processRequest())
	if !errors.Is(err, ErrUnsupportedOperation) {
		t.Fatalf("expected unsupported operation, got %v", err)
	}
	if f.upstream.calls != 0 {
		t.Fatal("rejection must happen before any network call")
	}
	if f.limiter.calls != 0 {
		t.Fatal("rejection must not consume rate limit budget")
	}
}

func TestProcessUsesThirdPartyIdentity(t *testing.T) {
	f := newFixture()
	f.upstream.createResp = &upstream.Patient{ID: "ext-1"}
	f.upstream.processResp = &models.ProcessResult{Success: true}

	created, err := f.service.Create(context.Background(), createRequest())
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	result, err := f.service.Process(context.Background(), created.ID, processRequest())
	if err != nil {
		t.Fatalf("process failed: %v", err)
	}
	if !result.Success {
		t.Fatal("expected successful result")
	}
	if f.upstream.processedID != "ext-1" {
		t.Fatalf("expected process under third-party identity, got %q", f.upstream.processedID)
	}
	if len(f.durable.entries) != 1 {
		t.Fatal("expected result written to durable cache")
	}
}

func TestProcessServedFromCacheSkipsLimiter(t *testing.T) {
	f := newFixture()
	f.upstream.createResp = &upstream.Patient{ID: "ext-1"}
	f.upstream.processResp = &models.ProcessResult{Success: true}

	created, err := f.service.Create(context.Background(), createRequest())
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if _, err := f.service.Process(context.Background(), created.ID, processRequest()); err != nil {
		t.Fatalf("first process failed: %v", err)
	}
	networkCalls := f.upstream.calls
	limiterCalls := f.limiter.calls

	if _, err := f.service.Process(context.Background(), created.ID, processRequest()); err != nil {
		t.Fatalf("second process failed: %v", err)
	}
	if f.upstream.calls != networkCalls {
		t.Fatal("identical payload must be served from cache")
	}
	if f.limiter.calls != limiterCalls {
		t.Fatal("cache hit must not consume rate limit budget")
	}
}

func TestProcessDifferentPayloadMissesCache(t *testing.T) {
	f := newFixture()
	f.upstream.createResp = &upstream.Patient{ID: "ext-1"}
	f.upstream.processResp = &models.ProcessResult{Success: true}

	created, err := f.service.Create(context.Background(), createRequest())
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if _, err := f.service.Process(context.Background(), created.ID, processRequest()); err != nil {
		t.Fatalf("first process failed: %v", err)
	}
	networkCalls := f.upstream.calls

	other := processRequest()
	other.Weight.Value = 80
	if _, err := f.service.Process(context.Background(), created.ID, other); err != nil {
		t.Fatalf("second process failed: %v", err)
	}
	if f.upstream.calls != networkCalls+1 {
		t.Fatal("different payload must bypass the cache")
	}
}

func TestProcessRateLimited(t *testing.T) {
	f := newFixture()
	f.upstream.createResp = &upstream.Patient{ID: "ext-1"}
	f.limiter.allow = false

	created, err := f.service.Create(context.Background(), createRequest())
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if _, err := f.service.Process(context.Background(), created.ID, processRequest()); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected rate limit error, got %v", err)
	}
	if f.upstream.processedID != "" {
		t.Fatal("throttled call must not reach the third-party store")
	}
}

func TestProcessRejectsUnknownUnit(t *testing.T) {
	f := newFixture()
	req := processRequest()
	req.Weight.Unit = "stone"

	if _, err := f.service.Process(context.Background(), "0b607868-7bd1-4756-a242-1d4d0e1ab94e", req); !IsValidationError(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestListCombinesSourcesAndSkipsCopied(t *testing.T) {
	f := newFixture()
	f.upstream.createResp = &upstream.Patient{ID: "ext-1"}
	if _, err := f.service.Create(context.Background(), createRequest()); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	f.upstream.listResp = &upstream.ListResponse{
		Patients: []upstream.Patient{
			{ID: "ext-1", FirstName: "Ada", LastName: "Lovelace", DOB: "1815-12-10", Sex: "female"},
			{ID: "ext-2", FirstName: "Alan", LastName: "Turing", DOB: "1912-06-23", Sex: "male"},
		},
		Total: 2, Page: 1, PerPage: 20,
	}

	list, err := f.service.List(context.Background(), 1)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(list.Patients) != 2 {
		t.Fatalf("expected 2 patients (copied entry skipped), got %d", len(list.Patients))
	}
	if list.Sources.LocalCount != 1 || list.Sources.ThirdPartyCount != 1 {
		t.Fatalf("unexpected source counts: %+v", list.Sources)
	}
	if list.Sources.ThirdPartyError {
		t.Fatal("unexpected third party error flag")
	}
	for _, p := range list.Patients {
		if p.ThirdPartyID == "ext-1" && p.Source != string(SourceBoth) {
			t.Fatalf("copied entry must surface as both, got %q", p.Source)
		}
	}
}

func TestListDegradesWhenThirdPartyUnavailable(t *testing.T) {
	f := newFixture()
	f.upstream.createErr = upstream.ErrUnavailable
	if _, err := f.service.Create(context.Background(), createRequest()); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	f.upstream.listErr = upstream.ErrUnavailable

	list, err := f.service.List(context.Background(), 1)
	if err != nil {
		t.Fatalf("list must not fail when third party is down: %v", err)
	}
	if !list.Sources.ThirdPartyError {
		t.Fatal("expected third party error flag")
	}
	if list.Sources.LocalCount != 1 || len(list.Patients) != 1 {
		t.Fatal("expected local partition to survive")
	}
}

func TestListServedFromCache(t *testing.T) {
	f := newFixture()
	f.upstream.listResp = &upstream.ListResponse{Page: 1, PerPage: 20}

	if _, err := f.service.List(context.Background(), 1); err != nil {
		t.Fatalf("list failed: %v", err)
	}
	calls := f.upstream.calls
	if _, err := f.service.List(context.Background(), 1); err != nil {
		t.Fatalf("cached list failed: %v", err)
	}
	if f.upstream.calls != calls {
		t.Fatal("second list must be served from cache")
	}
}

func TestMutationInvalidatesListCache(t *testing.T) {
	f := newFixture()
	f.upstream.createResp = &upstream.Patient{ID: "ext-1"}
	f.upstream.listResp = &upstream.ListResponse{Page: 1, PerPage: 20}

	if _, err := f.service.List(context.Background(), 1); err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if _, err := f.service.Create(context.Background(), createRequest()); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	list, err := f.service.List(context.Background(), 1)
	if err != nil {
		t.Fatalf("list after create failed: %v", err)
	}
	if len(list.Patients) != 1 {
		t.Fatal("list after create must reflect the mutation")
	}
}

func TestGetFallsBackToThirdParty(t *testing.T) {
	f := newFixture()
	f.upstream.patients["ext-9"] = &upstream.Patient{
		ID: "ext-9", FirstName: "Alan", LastName: "Turing", DOB: "1912-06-23", Sex: "male",
	}

	patient, err := f.service.Get(context.Background(), "ext-9")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if patient.Source != string(SourceThirdParty) {
		t.Fatalf("expected source third_party, got %q", patient.Source)
	}
	if patient.CanDelete {
		t.Fatal("third-party-only record must not be deletable")
	}
}

func TestGetResolvesThirdPartyIDToLocalCounterpart(t *testing.T) {
	f := newFixture()
	f.upstream.patients["ext-7"] = &upstream.Patient{
		ID: "ext-7", FirstName: "Grace", LastName: "Hopper", DOB: "1906-12-09", Sex: "female",
	}
	copied, err := f.service.Copy(context.Background(), "ext-7")
	if err != nil {
		t.Fatalf("copy failed: %v", err)
	}

	patient, err := f.service.Get(context.Background(), "ext-7")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if patient.ID != copied.ID {
		t.Fatalf("expected the local counterpart, got %q", patient.ID)
	}
	if patient.Source != string(SourceBoth) {
		t.Fatalf("expected source both, got %q", patient.Source)
	}
}

func TestCopyRefreshesDetailCachedUnderThirdPartyID(t *testing.T) {
	f := newFixture()
	f.upstream.patients["ext-7"] = &upstream.Patient{
		ID: "ext-7", FirstName: "Grace", LastName: "Hopper", DOB: "1906-12-09", Sex: "female",
	}

	// Warm the detail cache under the external identifier.
	before, err := f.service.Get(context.Background(), "ext-7")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if before.Source != string(SourceThirdParty) {
		t.Fatalf("expected third_party before copy, got %q", before.Source)
	}

	copied, err := f.service.Copy(context.Background(), "ext-7")
	if err != nil {
		t.Fatalf("copy failed: %v", err)
	}

	after, err := f.service.Get(context.Background(), "ext-7")
	if err != nil {
		t.Fatalf("get after copy failed: %v", err)
	}
	if after.Source != string(SourceBoth) || !after.CanDelete {
		t.Fatalf("read after copy must see the upgraded view, got %+v", after)
	}
	if after.ID != copied.ID {
		t.Fatalf("expected the local counterpart, got %q", after.ID)
	}
}

func TestDeleteEvictsDetailCachedUnderThirdPartyID(t *testing.T) {
	f := newFixture()
	f.upstream.patients["ext-7"] = &upstream.Patient{
		ID: "ext-7", FirstName: "Grace", LastName: "Hopper", DOB: "1906-12-09", Sex: "female",
	}

	copied, err := f.service.Copy(context.Background(), "ext-7")
	if err != nil {
		t.Fatalf("copy failed: %v", err)
	}
	// Warm both halves of the reconciliation key.
	if _, err := f.service.Get(context.Background(), copied.ID); err != nil {
		t.Fatalf("get by id failed: %v", err)
	}
	if _, err := f.service.Get(context.Background(), "ext-7"); err != nil {
		t.Fatalf("get by third party id failed: %v", err)
	}

	if err := f.service.Delete(context.Background(), copied.ID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	// The local row is gone, so a read by the external identifier must fall
	// through to the third-party store, not a stale cached view.
	after, err := f.service.Get(context.Background(), "ext-7")
	if err != nil {
		t.Fatalf("get after delete failed: %v", err)
	}
	if after.Source != string(SourceThirdParty) || after.CanDelete {
		t.Fatalf("read after delete must see the third_party view, got %+v", after)
	}
}

func TestGetUnknown(t *testing.T) {
	f := newFixture()
	if _, err := f.service.Get(context.Background(), "ext-missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestStats(t *testing.T) {
	f := newFixture()
	f.upstream.createResp = &upstream.Patient{ID: "ext-1"}
	if _, err := f.service.Create(context.Background(), createRequest()); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	f.upstream.listResp = &upstream.ListResponse{
		Patients: []upstream.Patient{
			{ID: "ext-1", FirstName: "Ada", LastName: "Lovelace", DOB: "1815-12-10", Sex: "female"},
			{ID: "ext-2", FirstName: "Alan", LastName: "Turing", DOB: "1912-06-23", Sex: "male"},
		},
		Total: 2, Page: 1, PerPage: 20,
	}

	stats, err := f.service.Stats(context.Background())
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if stats.TotalPatients != 2 {
		t.Fatalf("expected 2 total, got %d", stats.TotalPatients)
	}
	if stats.SyncedCount != 1 {
		t.Fatalf("expected 1 synced, got %d", stats.SyncedCount)
	}
	if stats.LocalOnlyCount != 0 {
		t.Fatalf("expected 0 local-only, got %d", stats.LocalOnlyCount)
	}
}
