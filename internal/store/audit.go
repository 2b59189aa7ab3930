package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/memcore/memcore/internal/model"
)

// AuditTrail returns the audit entries for a record, oldest first. The
// log is append-only; entries survive even a hard delete of the record.
func (s *SQLiteStore) AuditTrail(ctx context.Context, recordID string) ([]model.AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, memory_id, action, actor_type, diff, created_at
		 FROM memory_audit_logs WHERE memory_id = ? ORDER BY created_at ASC, id ASC`,
		recordID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []model.AuditEntry
	for rows.Next() {
		var e model.AuditEntry
		var action, actor, createdAt string
		var diffJSON sql.NullString
		if err := rows.Scan(&e.ID, &e.RecordID, &action, &actor, &diffJSON, &createdAt); err != nil {
			return nil, err
		}
		e.Action = model.AuditAction(action)
		e.Actor = model.ActorType(actor)
		if diffJSON.Valid {
			var d model.AuditDiff
			if err := json.Unmarshal([]byte(diffJSON.String), &d); err == nil {
				e.Diff = &d
			}
		}
		e.CreatedAt, _ = time.Parse(timeFormat, createdAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
