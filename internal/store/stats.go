package store

import (
	"context"
	"os"
)

// Stats holds database statistics.
type Stats struct {
	DBPath        string      `json:"db_path"`
	DBSizeBytes   int64       `json:"db_size_bytes"`
	TotalRecords  int         `json:"total_records"`
	ActiveRecords int         `json:"active_records"`
	AuditEntries  int         `json:"audit_entries"`
	Types         []TypeStats `json:"types"`
}

// TypeStats holds per-record-type counts.
type TypeStats struct {
	Type   string `json:"record_type"`
	Count  int    `json:"count"`
	Active int    `json:"active"`
}

// Stats returns database statistics for one owner.
func (s *SQLiteStore) Stats(ctx context.Context, dbPath, ownerID string) (*Stats, error) {
	st := &Stats{DBPath: dbPath}

	if info, err := os.Stat(dbPath); err == nil {
		st.DBSizeBytes = info.Size()
	}

	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM memories WHERE owner_id = ?`, ownerID).Scan(&st.TotalRecords)
	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM memories WHERE owner_id = ? AND valid_to IS NULL`, ownerID).Scan(&st.ActiveRecords)
	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM memory_audit_logs a
		WHERE EXISTS (SELECT 1 FROM memories m WHERE m.id = a.memory_id AND m.owner_id = ?)`, ownerID).Scan(&st.AuditEntries)

	rows, err := s.db.QueryContext(ctx, `
		SELECT record_type, COUNT(*) as cnt, SUM(CASE WHEN valid_to IS NULL THEN 1 ELSE 0 END) as active
		FROM memories WHERE owner_id = ?
		GROUP BY record_type ORDER BY cnt DESC`, ownerID)
	if err != nil {
		return st, err
	}
	defer rows.Close()

	for rows.Next() {
		var ts TypeStats
		rows.Scan(&ts.Type, &ts.Count, &ts.Active)
		st.Types = append(st.Types, ts)
	}

	return st, rows.Err()
}
