package leadimport

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/leadforge/outreach/internal/pkg/logger"
)

// State is one step of the import pipeline's linear state machine.
type State string

const (
	StateUploaded  State = "uploaded"
	StateParsed    State = "parsed"
	StateMapped    State = "mapped"
	StateVerified  State = "verified"
	StateFiltered  State = "filtered"
	StatePersisted State = "persisted"
	StateFailed    State = "failed"
)

// ErrPersistenceFailed marks a server-side write fault. The orchestrator
// does not fail the import on it; the verified data is returned as a
// client-local fallback instead of being discarded.
var ErrPersistenceFailed = errors.New("lead list could not be durably saved")

// LeadStore is the persistence collaborator. Both calls must re-check the
// non-empty profile URL invariant rather than trust the caller.
type LeadStore interface {
	CreateLeadList(ctx context.Context, list *LeadList) error
	BulkInsertLeads(ctx context.Context, listID, orgID string, leads []LeadRecord) (int, error)
}

// FileRemover signals the file-storage collaborator that a temporary
// upload can go away. The orchestrator never deletes files itself.
type FileRemover interface {
	Delete(ctx context.Context, path string) error
}

// ProgressReporter receives state transitions for an import session, so
// the browser half can poll authoritative progress. Implementations must
// tolerate a missing session.
type ProgressReporter interface {
	ReportState(ctx context.Context, sessionID string, state State)
	ReportCounts(ctx context.Context, sessionID string, total, accepted, rejected int)
	ReportError(ctx context.Context, sessionID, msg string)
}

// ImportRequest carries one import session's inputs.
type ImportRequest struct {
	SessionID       string
	OrganizationID  string
	ListName        string
	FileData        []byte
	TempPath        string          // file-storage key to release when done
	ExistingMapping []ColumnMapping // resume path: skip auto-classification
}

// ImportResult is the orchestrator's output. On a persistence fault it
// still carries the full normalized lead set, with DurablySaved false and
// Warning set, so the caller keeps the user's verified data.
type ImportResult struct {
	LeadListID    string              `json:"lead_list_id,omitempty"`
	State         State               `json:"state"`
	TotalRows     int                 `json:"total_rows"`
	AcceptedCount int                 `json:"accepted_count"`
	RejectedCount int                 `json:"rejected_count"`
	SkippedCount  int                 `json:"skipped_count"`
	Mappings      []ColumnMapping     `json:"mappings"`
	Leads         []LeadRecord        `json:"leads"`
	Report        *VerificationReport `json:"report,omitempty"`
	DurablySaved  bool                `json:"durably_saved"`
	Warning       string              `json:"warning,omitempty"`
}

// Orchestrator sequences parse → map → verify → filter → normalize →
// persist for one uploaded file. It holds no per-session state; two
// imports for the same organization can run concurrently.
type Orchestrator struct {
	classifier *Classifier
	verifier   *Verifier
	normalizer *Normalizer
	store      LeadStore
	files      FileRemover
	progress   ProgressReporter
}

// NewOrchestrator wires the pipeline components. files and progress may
// be nil when no temp storage or session tracking is in play.
func NewOrchestrator(cfg ClassifierConfig, store LeadStore, files FileRemover, progress ProgressReporter) *Orchestrator {
	return &Orchestrator{
		classifier: NewClassifier(cfg),
		verifier:   NewVerifier(),
		normalizer: NewNormalizer(),
		store:      store,
		files:      files,
		progress:   progress,
	}
}

// Import runs the full pipeline for one uploaded file. Fatal conditions
// (ErrEmptyCSV, ErrNoMappedURLColumn, ErrNoValidURLs, ErrMappingConflict)
// return an error and leave zero durable writes. A persistence fault is
// NOT fatal: the result comes back with DurablySaved=false and the
// normalized leads intact.
func (o *Orchestrator) Import(ctx context.Context, req ImportRequest) (*ImportResult, error) {
	o.report(ctx, req.SessionID, StateUploaded)

	// Temp upload cleanup happens on success and failure alike. A failed
	// delete is logged and does not change the user-visible outcome.
	if req.TempPath != "" && o.files != nil {
		defer func() {
			if err := o.files.Delete(context.WithoutCancel(ctx), req.TempPath); err != nil {
				logger.Warn("temp upload cleanup failed", "path", req.TempPath, "error", err)
			}
		}()
	}

	// UPLOADED -> PARSED
	table, err := ParseCSV(bytes.NewReader(req.FileData))
	if err != nil {
		return nil, o.fail(ctx, req.SessionID, err)
	}
	o.report(ctx, req.SessionID, StateParsed)

	// PARSED -> MAPPED (auto-classify, or resume with a supplied mapping)
	mapping := req.ExistingMapping
	if mapping == nil {
		mapping = o.classifier.Classify(table.Headers, table.SampleRows(o.classifier.cfg.SampleLimit))
	} else {
		// Edited mappings arrive keyed by column name and in whatever
		// order the client sent them; reconcile against the file's
		// header order before any positional lookup.
		aligned, err := AlignMapping(table.Headers, mapping)
		if err != nil {
			return nil, o.fail(ctx, req.SessionID, err)
		}
		mapping = aligned
	}
	if err := ValidateMapping(mapping); err != nil {
		return nil, o.fail(ctx, req.SessionID, err)
	}
	o.report(ctx, req.SessionID, StateMapped)

	// MAPPED -> VERIFIED
	report, err := o.verifier.Verify(table, mapping)
	if err != nil {
		return nil, o.fail(ctx, req.SessionID, err)
	}
	o.report(ctx, req.SessionID, StateVerified)

	// VERIFIED -> FILTERED
	reject := report.RejectedRows()
	leads := o.normalizer.Normalize(table, mapping, reject)
	result := &ImportResult{
		State:         StateFiltered,
		TotalRows:     table.RowCount(),
		AcceptedCount: len(leads),
		RejectedCount: len(reject),
		SkippedCount:  table.RowCount() - len(leads) - len(reject),
		Mappings:      mapping,
		Leads:         leads,
		Report:        report,
	}
	o.report(ctx, req.SessionID, StateFiltered)
	if o.progress != nil {
		o.progress.ReportCounts(ctx, req.SessionID, result.TotalRows, result.AcceptedCount, result.RejectedCount)
	}

	// Caller-driven cancellation: bail before the only step with durable
	// side effects, so no partial LeadList is ever created.
	if err := ctx.Err(); err != nil {
		return nil, o.fail(ctx, req.SessionID, err)
	}

	// FILTERED -> PERSISTED, with client-local fallback on failure. No
	// store configured is the same fallback: the caller keeps the data.
	if o.store == nil {
		result.Warning = ErrPersistenceFailed.Error() + ": no lead store configured"
		return result, nil
	}
	list := &LeadList{
		ID:             uuid.New().String(),
		OrganizationID: req.OrganizationID,
		Name:           req.ListName,
		TotalLeads:     len(leads),
		MappedHeaders:  mapping,
		IsActive:       true,
	}
	if err := o.persist(ctx, list, leads); err != nil {
		logger.Error("lead list persistence failed, returning client-local fallback",
			"org_id", req.OrganizationID, "list_name", req.ListName, "error", err)
		result.Warning = fmt.Sprintf("%v: %v", ErrPersistenceFailed, err)
		if o.progress != nil {
			o.progress.ReportError(ctx, req.SessionID, result.Warning)
		}
		return result, nil
	}

	result.LeadListID = list.ID
	result.State = StatePersisted
	result.DurablySaved = true
	o.report(ctx, req.SessionID, StatePersisted)
	logger.Info("lead list imported",
		"list_id", list.ID, "org_id", req.OrganizationID,
		"total_rows", result.TotalRows, "accepted", result.AcceptedCount, "rejected", result.RejectedCount)
	return result, nil
}

// Suggest runs classification only, for the mapping review UI: no
// verification, no writes.
func (o *Orchestrator) Suggest(fileData []byte) (*RawTable, []ColumnMapping, error) {
	table, err := ParseCSV(bytes.NewReader(fileData))
	if err != nil {
		return nil, nil, err
	}
	mapping := o.classifier.Classify(table.Headers, table.SampleRows(o.classifier.cfg.SampleLimit))
	return table, mapping, nil
}

func (o *Orchestrator) persist(ctx context.Context, list *LeadList, leads []LeadRecord) error {
	if err := o.store.CreateLeadList(ctx, list); err != nil {
		return fmt.Errorf("create lead list: %w", err)
	}
	inserted, err := o.store.BulkInsertLeads(ctx, list.ID, list.OrganizationID, leads)
	if err != nil {
		return fmt.Errorf("bulk insert leads: %w", err)
	}
	if inserted != len(leads) {
		logger.Warn("persistence dropped records failing the profile URL invariant",
			"list_id", list.ID, "expected", len(leads), "inserted", inserted)
	}
	return nil
}

func (o *Orchestrator) report(ctx context.Context, sessionID string, state State) {
	if o.progress != nil && sessionID != "" {
		o.progress.ReportState(ctx, sessionID, state)
	}
}

func (o *Orchestrator) fail(ctx context.Context, sessionID string, err error) error {
	o.report(ctx, sessionID, StateFailed)
	if o.progress != nil && sessionID != "" {
		o.progress.ReportError(ctx, sessionID, err.Error())
	}
	return err
}
