package postgres

import (
	"context"
	"fmt"
)

// EnsureSchema creates the lead import tables if they do not exist yet.
// Safe to call on every startup.
func (r *LeadListRepo) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS lead_lists (
			id UUID PRIMARY KEY,
			organization_id VARCHAR(100) NOT NULL,
			name VARCHAR(500) NOT NULL,
			total_leads INT DEFAULT 0,
			mapped_headers JSONB DEFAULT '[]',
			is_active BOOLEAN DEFAULT TRUE,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_lead_lists_org ON lead_lists(organization_id, created_at DESC)`,
		`CREATE TABLE IF NOT EXISTS lead_entries (
			id UUID PRIMARY KEY,
			list_id UUID NOT NULL REFERENCES lead_lists(id) ON DELETE CASCADE,
			organization_id VARCHAR(100) NOT NULL,
			profile_url TEXT NOT NULL,
			first_name VARCHAR(255),
			last_name VARCHAR(255),
			company VARCHAR(500),
			title VARCHAR(500),
			custom_fields JSONB DEFAULT '{}',
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			UNIQUE (list_id, profile_url)
		)`,
		`CREATE TABLE IF NOT EXISTS lead_import_jobs (
			id UUID PRIMARY KEY,
			organization_id VARCHAR(100) NOT NULL,
			list_id UUID,
			filename VARCHAR(500),
			status VARCHAR(50) DEFAULT 'processing',
			total_rows INT DEFAULT 0,
			accepted_count INT DEFAULT 0,
			rejected_count INT DEFAULT 0,
			error TEXT,
			started_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			completed_at TIMESTAMP WITH TIME ZONE
		)`,
	}
	for _, stmt := range stmts {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
