package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/deskflow/kernel/internal/logging"
	"github.com/deskflow/kernel/internal/store"
)

// SuggestionAuditRepo, GuardrailAuditRepo and DraftAuditRepo record the
// advisor subsystem's audit trail. They are fail-safe writers: a dropped
// audit row never blocks an otherwise valid advisory response from
// reaching the caller.

type SuggestionAuditRepo struct{ db *sql.DB }

func (r *SuggestionAuditRepo) Record(ctx context.Context, a store.SuggestionAudit) {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	if _, err := r.db.ExecContext(ctx,
		`INSERT INTO ai_suggestion_audit (suggestion_id, context, type, confidence, created_at) VALUES (?, ?, ?, ?, ?)`,
		a.SuggestionID, a.Context, a.Type, a.Confidence, a.CreatedAt,
	); err != nil {
		logging.Error("ai_suggestion_audit: insert failed: %v", err)
	}
}

type GuardrailAuditRepo struct{ db *sql.DB }

func (r *GuardrailAuditRepo) Record(ctx context.Context, a store.GuardrailAudit) {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	if _, err := r.db.ExecContext(ctx,
		`INSERT INTO ai_guardrail_audit (subject_id, kind, reason, created_at) VALUES (?, ?, ?, ?)`,
		a.SubjectID, a.Kind, a.Reason, a.CreatedAt,
	); err != nil {
		logging.Error("ai_guardrail_audit: insert failed: %v", err)
	}
}

func (r *GuardrailAuditRepo) Get(ctx context.Context, subjectID string) (*store.GuardrailAudit, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, subject_id, kind, reason, created_at FROM ai_guardrail_audit WHERE subject_id = ? ORDER BY id DESC LIMIT 1`, subjectID)
	var a store.GuardrailAudit
	var reason sql.NullString
	if err := row.Scan(&a.ID, &a.SubjectID, &a.Kind, &reason, &a.CreatedAt); err != nil {
		return nil, err
	}
	a.Reason = reason.String
	return &a, nil
}

type DraftAuditRepo struct{ db *sql.DB }

func (r *DraftAuditRepo) Record(ctx context.Context, a store.DraftAudit) {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	if _, err := r.db.ExecContext(ctx,
		`INSERT INTO ai_draft_audit (draft_id, kind, content_hash, created_at) VALUES (?, ?, ?, ?)`,
		a.DraftID, a.Kind, a.ContentHash, a.CreatedAt,
	); err != nil {
		logging.Error("ai_draft_audit: insert failed: %v", err)
	}
}
