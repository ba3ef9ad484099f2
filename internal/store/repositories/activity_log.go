package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/deskflow/kernel/internal/logging"
	"github.com/deskflow/kernel/internal/store"
)

// ActivityLogRepo persists structured events. Fail-safe: a failed write
// is logged and never bubbles up to the caller.
type ActivityLogRepo struct {
	db *sql.DB
}

func (r *ActivityLogRepo) Record(ctx context.Context, e store.ActivityLogEntry) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	if _, err := r.db.ExecContext(ctx,
		`INSERT INTO activity_log (timestamp, action, entity_type, entity_id, severity, module, short_message, metadata)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Timestamp, e.Action, e.EntityType, e.EntityID, e.Severity, e.Module, e.ShortMessage, e.Metadata,
	); err != nil {
		logging.Error("activity_log: insert failed (action=%s): %v", e.Action, err)
	}
}

func (r *ActivityLogRepo) List(ctx context.Context, limit int) []store.ActivityLogEntry {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, timestamp, action, entity_type, entity_id, severity, module, short_message, metadata
		 FROM activity_log ORDER BY timestamp DESC LIMIT ?`, limit)
	if err != nil {
		logging.Error("activity_log: list query failed: %v", err)
		return []store.ActivityLogEntry{}
	}
	defer rows.Close()

	var out []store.ActivityLogEntry
	for rows.Next() {
		var e store.ActivityLogEntry
		var entityType, entityID, module, shortMessage, metadata sql.NullString
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.Action, &entityType, &entityID, &e.Severity, &module, &shortMessage, &metadata); err != nil {
			logging.Error("activity_log: row scan failed: %v", err)
			continue
		}
		e.EntityType = entityType.String
		e.EntityID = entityID.String
		e.Module = module.String
		e.ShortMessage = shortMessage.String
		e.Metadata = metadata.String
		out = append(out, e)
	}
	if out == nil {
		out = []store.ActivityLogEntry{}
	}
	return out
}
