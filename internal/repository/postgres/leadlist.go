package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/leadforge/outreach/internal/leadimport"
)

// ErrNotFound is returned when a lead list does not exist for the caller's
// organization.
var ErrNotFound = errors.New("lead list not found")

// LeadListRepo implements leadimport.LeadStore against PostgreSQL.
type LeadListRepo struct{ db *sql.DB }

// NewLeadListRepo creates a Postgres-backed lead list repository.
func NewLeadListRepo(db *sql.DB) *LeadListRepo { return &LeadListRepo{db: db} }

// CreateLeadList inserts the lead list container. The mapped headers
// snapshot is stored as JSONB alongside it.
func (r *LeadListRepo) CreateLeadList(ctx context.Context, list *leadimport.LeadList) error {
	if list.ID == "" {
		list.ID = uuid.New().String()
	}
	mappedJSON, err := json.Marshal(list.MappedHeaders)
	if err != nil {
		return fmt.Errorf("marshal mapped headers: %w", err)
	}

	err = r.db.QueryRowContext(ctx, `
		INSERT INTO lead_lists (id, organization_id, name, total_leads, mapped_headers, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		RETURNING created_at
	`, list.ID, list.OrganizationID, list.Name, list.TotalLeads, mappedJSON, list.IsActive).Scan(&list.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert lead list: %w", err)
	}
	return nil
}

// BulkInsertLeads inserts the normalized records in one transaction.
// Records with an empty profile URL are re-checked and skipped here even
// though the normalizer already filters them; persistence does not trust
// its caller with the invariant.
func (r *LeadListRepo) BulkInsertLeads(ctx context.Context, listID, orgID string, leads []leadimport.LeadRecord) (int, error) {
	if len(leads) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	inserted := 0
	for _, lead := range leads {
		if lead.ProfileURL == "" {
			continue
		}
		customJSON := []byte("{}")
		if len(lead.CustomFields) > 0 {
			customJSON, err = json.Marshal(lead.CustomFields)
			if err != nil {
				return 0, fmt.Errorf("marshal custom fields: %w", err)
			}
		}
		res, err := tx.ExecContext(ctx, `
			INSERT INTO lead_entries (id, list_id, organization_id, profile_url, first_name, last_name, company, title, custom_fields, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
			ON CONFLICT (list_id, profile_url) DO NOTHING
		`, uuid.New(), listID, orgID, lead.ProfileURL,
			lead.FirstName, lead.LastName, lead.Company, lead.Title, customJSON)
		if err != nil {
			return 0, fmt.Errorf("insert lead: %w", err)
		}
		// Duplicate profile URLs within the list land on ON CONFLICT DO
		// NOTHING; only rows actually written count.
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("insert lead: %w", err)
		}
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit leads: %w", err)
	}
	return inserted, nil
}

// GetLeadList fetches one list with its leads.
func (r *LeadListRepo) GetLeadList(ctx context.Context, orgID, id string) (*leadimport.LeadList, error) {
	list := &leadimport.LeadList{}
	var mappedJSON []byte
	err := r.db.QueryRowContext(ctx, `
		SELECT id, organization_id, name, total_leads, mapped_headers, is_active, created_at
		FROM lead_lists
		WHERE id = $1 AND organization_id = $2
	`, id, orgID).Scan(&list.ID, &list.OrganizationID, &list.Name, &list.TotalLeads, &mappedJSON, &list.IsActive, &list.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get lead list: %w", err)
	}
	if len(mappedJSON) > 0 {
		if err := json.Unmarshal(mappedJSON, &list.MappedHeaders); err != nil {
			return nil, fmt.Errorf("unmarshal mapped headers: %w", err)
		}
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT profile_url, COALESCE(first_name,''), COALESCE(last_name,''),
		       COALESCE(company,''), COALESCE(title,''), custom_fields
		FROM lead_entries
		WHERE list_id = $1
		ORDER BY created_at
	`, id)
	if err != nil {
		return nil, fmt.Errorf("list leads: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var lead leadimport.LeadRecord
		var customJSON []byte
		if err := rows.Scan(&lead.ProfileURL, &lead.FirstName, &lead.LastName, &lead.Company, &lead.Title, &customJSON); err != nil {
			return nil, fmt.Errorf("scan lead: %w", err)
		}
		if len(customJSON) > 0 && string(customJSON) != "{}" {
			if err := json.Unmarshal(customJSON, &lead.CustomFields); err != nil {
				return nil, fmt.Errorf("unmarshal custom fields: %w", err)
			}
		}
		list.Leads = append(list.Leads, lead)
	}
	return list, rows.Err()
}

// ListLeadLists returns an organization's lists, newest first, without
// their leads.
func (r *LeadListRepo) ListLeadLists(ctx context.Context, orgID string, limit, offset int) ([]leadimport.LeadList, int, error) {
	if limit <= 0 {
		limit = 50
	}

	var total int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM lead_lists WHERE organization_id = $1`, orgID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count lead lists: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, total_leads, is_active, created_at
		FROM lead_lists
		WHERE organization_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, orgID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list lead lists: %w", err)
	}
	defer rows.Close()

	var out []leadimport.LeadList
	for rows.Next() {
		var l leadimport.LeadList
		if err := rows.Scan(&l.ID, &l.Name, &l.TotalLeads, &l.IsActive, &l.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan lead list: %w", err)
		}
		l.OrganizationID = orgID
		out = append(out, l)
	}
	return out, total, rows.Err()
}

// DeleteLeadList removes a list and, through ON DELETE CASCADE on
// lead_entries.list_id, every lead it owns.
func (r *LeadListRepo) DeleteLeadList(ctx context.Context, orgID, id string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM lead_lists WHERE id = $1 AND organization_id = $2`, id, orgID)
	if err != nil {
		return fmt.Errorf("delete lead list: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetLeadListActive toggles the soft is_active flag. The only mutation a
// list sees after creation.
func (r *LeadListRepo) SetLeadListActive(ctx context.Context, orgID, id string, active bool) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE lead_lists SET is_active = $3 WHERE id = $1 AND organization_id = $2`, id, orgID, active)
	if err != nil {
		return fmt.Errorf("set lead list active: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ImportJob tracks one import run for auditability.
type ImportJob struct {
	ID             string
	OrganizationID string
	ListID         string
	Filename       string
	Status         string
	TotalRows      int
	AcceptedCount  int
	RejectedCount  int
	Error          string
	StartedAt      time.Time
	CompletedAt    sql.NullTime
}

// CreateImportJob records the start of an import run.
func (r *LeadListRepo) CreateImportJob(ctx context.Context, orgID, filename string) (string, error) {
	id := uuid.New().String()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO lead_import_jobs (id, organization_id, filename, status, started_at)
		VALUES ($1, $2, $3, 'processing', NOW())
	`, id, orgID, filename)
	if err != nil {
		return "", fmt.Errorf("create import job: %w", err)
	}
	return id, nil
}

// CompleteImportJob records the outcome of an import run.
func (r *LeadListRepo) CompleteImportJob(ctx context.Context, jobID, listID, status string, total, accepted, rejected int, errMsg string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE lead_import_jobs
		SET list_id = NULLIF($2,''), status = $3, total_rows = $4,
		    accepted_count = $5, rejected_count = $6, error = NULLIF($7,''),
		    completed_at = NOW()
		WHERE id = $1
	`, jobID, listID, status, total, accepted, rejected, errMsg)
	if err != nil {
		return fmt.Errorf("complete import job: %w", err)
	}
	return nil
}
