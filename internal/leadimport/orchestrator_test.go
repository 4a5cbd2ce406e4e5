package leadimport

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore is an in-memory LeadStore.
type fakeStore struct {
	mu        sync.Mutex
	lists     []*LeadList
	leads     map[string][]LeadRecord
	createErr error
	insertErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{leads: make(map[string][]LeadRecord)}
}

func (s *fakeStore) CreateLeadList(_ context.Context, list *LeadList) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	s.lists = append(s.lists, list)
	return nil
}

func (s *fakeStore) BulkInsertLeads(_ context.Context, listID, _ string, leads []LeadRecord) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return 0, s.insertErr
	}
	inserted := 0
	for _, l := range leads {
		if l.ProfileURL == "" {
			continue
		}
		s.leads[listID] = append(s.leads[listID], l)
		inserted++
	}
	return inserted, nil
}

// fakeRemover records deletions of temp uploads.
type fakeRemover struct {
	mu      sync.Mutex
	deleted []string
	err     error
}

func (r *fakeRemover) Delete(_ context.Context, path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleted = append(r.deleted, path)
	return r.err
}

// fakeProgress records state transitions in order.
type fakeProgress struct {
	mu     sync.Mutex
	states []State
	errs   []string
}

func (p *fakeProgress) ReportState(_ context.Context, _ string, state State) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.states = append(p.states, state)
}

func (p *fakeProgress) ReportCounts(_ context.Context, _ string, _, _, _ int) {}

func (p *fakeProgress) ReportError(_ context.Context, _ string, msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.errs = append(p.errs, msg)
}

func newTestOrchestrator(store LeadStore, files FileRemover, progress ProgressReporter) *Orchestrator {
	return NewOrchestrator(DefaultClassifierConfig(), store, files, progress)
}

const fourRowCSV = `Full Name,LinkedIn,Org
Jane Doe,linkedin.com/in/janedoe,Acme
John Roe,linkedin.com/in/johnroe,Initech
Mary Major,https://www.linkedin.com/in/marymajor,Globex
Pete Minor,linkedin.com/in/peteminor,Umbrella
`

func TestImportEndToEnd(t *testing.T) {
	store := newFakeStore()
	progress := &fakeProgress{}
	o := newTestOrchestrator(store, nil, progress)

	result, err := o.Import(context.Background(), ImportRequest{
		SessionID:      "s1",
		OrganizationID: "org1",
		ListName:       "Q3 prospects",
		FileData:       []byte(fourRowCSV),
	})
	require.NoError(t, err)

	assert.Equal(t, StatePersisted, result.State)
	assert.True(t, result.DurablySaved)
	assert.Equal(t, 4, result.TotalRows)
	assert.Equal(t, 4, result.AcceptedCount)
	assert.Equal(t, 0, result.RejectedCount)
	assert.Equal(t, 4, result.Report.ValidURLCount)

	types := mappingTypes(result.Mappings)
	assert.Equal(t, TypeProfileURL, types["LinkedIn"])

	require.Len(t, store.lists, 1)
	assert.Equal(t, 4, store.lists[0].TotalLeads)
	assert.Equal(t, "Q3 prospects", store.lists[0].Name)
	assert.True(t, store.lists[0].IsActive)
	assert.Len(t, store.leads[store.lists[0].ID], 4)

	assert.Equal(t, []State{
		StateUploaded, StateParsed, StateMapped, StateVerified, StateFiltered, StatePersisted,
	}, progress.states)
}

func TestImportWithExistingMapping(t *testing.T) {
	store := newFakeStore()
	o := newTestOrchestrator(store, nil, nil)

	result, err := o.Import(context.Background(), ImportRequest{
		OrganizationID: "org1",
		ListName:       "edited",
		FileData:       []byte("colA,colB\nJane,linkedin.com/in/janedoe\n"),
		ExistingMapping: []ColumnMapping{
			{ColumnName: "colA", MappedType: TypeFirstName},
			{ColumnName: "colB", MappedType: TypeProfileURL},
		},
	})
	require.NoError(t, err)

	require.Len(t, result.Leads, 1)
	assert.Equal(t, "Jane", result.Leads[0].FirstName)
}

func TestImportWithOutOfOrderExistingMapping(t *testing.T) {
	store := newFakeStore()
	o := newTestOrchestrator(store, nil, nil)

	// Edited mappings arrive keyed by column name; the entry order need
	// not match the file's header order.
	result, err := o.Import(context.Background(), ImportRequest{
		OrganizationID: "org1",
		ListName:       "edited",
		FileData:       []byte("Name,URL\nJane,linkedin.com/in/janedoe\n"),
		ExistingMapping: []ColumnMapping{
			{ColumnName: "URL", MappedType: TypeProfileURL},
			{ColumnName: "Name", MappedType: TypeFirstName},
		},
	})
	require.NoError(t, err)

	require.Len(t, result.Leads, 1)
	assert.Equal(t, "Jane", result.Leads[0].FirstName)
	assert.Equal(t, "https://linkedin.com/in/janedoe", result.Leads[0].ProfileURL)
	assert.Equal(t, 1, result.Report.ValidURLCount)
}

func TestImportMappingMayOmitColumns(t *testing.T) {
	store := newFakeStore()
	o := newTestOrchestrator(store, nil, nil)

	result, err := o.Import(context.Background(), ImportRequest{
		OrganizationID: "org1",
		FileData:       []byte("Name,URL,Notes\nJane,linkedin.com/in/janedoe,hi\n"),
		ExistingMapping: []ColumnMapping{
			{ColumnName: "URL", MappedType: TypeProfileURL},
		},
	})
	require.NoError(t, err)

	require.Len(t, result.Leads, 1)
	assert.Empty(t, result.Leads[0].FirstName)
	assert.Empty(t, result.Leads[0].CustomFields)
}

func TestImportRejectsMappingForUnknownColumn(t *testing.T) {
	o := newTestOrchestrator(newFakeStore(), nil, nil)

	_, err := o.Import(context.Background(), ImportRequest{
		OrganizationID: "org1",
		FileData:       []byte("Name,URL\nJane,linkedin.com/in/janedoe\n"),
		ExistingMapping: []ColumnMapping{
			{ColumnName: "Profile", MappedType: TypeProfileURL},
		},
	})
	assert.ErrorIs(t, err, ErrUnknownColumn)
}

func TestImportRejectsConflictingMapping(t *testing.T) {
	o := newTestOrchestrator(newFakeStore(), nil, nil)

	_, err := o.Import(context.Background(), ImportRequest{
		OrganizationID: "org1",
		FileData:       []byte("a,b\nx,linkedin.com/in/janedoe\n"),
		ExistingMapping: []ColumnMapping{
			{ColumnName: "a", MappedType: TypeProfileURL},
			{ColumnName: "b", MappedType: TypeProfileURL},
		},
	})
	assert.ErrorIs(t, err, ErrMappingConflict)
}

func TestImportEmptyFile(t *testing.T) {
	progress := &fakeProgress{}
	o := newTestOrchestrator(newFakeStore(), nil, progress)

	_, err := o.Import(context.Background(), ImportRequest{
		SessionID:      "s1",
		OrganizationID: "org1",
		FileData:       []byte(""),
	})
	assert.ErrorIs(t, err, ErrEmptyCSV)
	assert.Contains(t, progress.states, StateFailed)
	assert.NotEmpty(t, progress.errs)
}

func TestImportNoValidURLs(t *testing.T) {
	store := newFakeStore()
	o := newTestOrchestrator(store, nil, nil)

	_, err := o.Import(context.Background(), ImportRequest{
		OrganizationID: "org1",
		FileData:       []byte("profile_url\nnot-a-url\n"),
	})
	assert.ErrorIs(t, err, ErrNoValidURLs)
	// Fatal before persistence: nothing written.
	assert.Empty(t, store.lists)
}

func TestImportRejectedRowsAreCounted(t *testing.T) {
	store := newFakeStore()
	o := newTestOrchestrator(store, nil, nil)

	result, err := o.Import(context.Background(), ImportRequest{
		OrganizationID: "org1",
		ListName:       "mixed",
		FileData:       []byte("profile_url\nlinkedin.com/in/a\nnot-a-url\nlinkedin.com/in/c\n"),
	})
	require.NoError(t, err)

	assert.Equal(t, 3, result.TotalRows)
	assert.Equal(t, 2, result.AcceptedCount)
	assert.Equal(t, 1, result.RejectedCount)
	assert.Equal(t, 0, result.SkippedCount)
}

func TestImportPersistenceFailureFallsBackToClientLocal(t *testing.T) {
	store := newFakeStore()
	store.createErr = errors.New("connection refused")
	progress := &fakeProgress{}
	o := newTestOrchestrator(store, nil, progress)

	result, err := o.Import(context.Background(), ImportRequest{
		SessionID:      "s1",
		OrganizationID: "org1",
		ListName:       "fallback",
		FileData:       []byte(fourRowCSV),
	})
	// A server-side write fault is not fatal: the verified data survives.
	require.NoError(t, err)

	assert.False(t, result.DurablySaved)
	assert.Empty(t, result.LeadListID)
	assert.Equal(t, StateFiltered, result.State)
	assert.Len(t, result.Leads, 4)
	assert.Contains(t, result.Warning, "could not be durably saved")
	assert.NotEmpty(t, progress.errs)
}

func TestImportCleansUpTempFileOnSuccessAndFailure(t *testing.T) {
	remover := &fakeRemover{}
	o := newTestOrchestrator(newFakeStore(), remover, nil)

	_, err := o.Import(context.Background(), ImportRequest{
		OrganizationID: "org1",
		FileData:       []byte(fourRowCSV),
		TempPath:       "uploads/ok.csv",
	})
	require.NoError(t, err)

	_, err = o.Import(context.Background(), ImportRequest{
		OrganizationID: "org1",
		FileData:       []byte(""),
		TempPath:       "uploads/bad.csv",
	})
	require.Error(t, err)

	assert.Equal(t, []string{"uploads/ok.csv", "uploads/bad.csv"}, remover.deleted)
}

func TestImportCancelledBeforePersistence(t *testing.T) {
	store := newFakeStore()
	o := newTestOrchestrator(store, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := o.Import(ctx, ImportRequest{
		OrganizationID: "org1",
		FileData:       []byte(fourRowCSV),
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, store.lists)
}

func TestSuggestDoesNotPersist(t *testing.T) {
	store := newFakeStore()
	o := newTestOrchestrator(store, nil, nil)

	table, mappings, err := o.Suggest([]byte(fourRowCSV))
	require.NoError(t, err)

	assert.Equal(t, 4, table.RowCount())
	assert.Equal(t, TypeProfileURL, mappingTypes(mappings)["LinkedIn"])
	assert.Empty(t, store.lists)
}
