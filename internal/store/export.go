package store

import (
	"context"
	"strings"

	"github.com/memcore/memcore/internal/model"
)

// ExportAll returns every record for one owner, inactive versions
// included, ordered by creation so supersede chains read top to bottom.
func (s *SQLiteStore) ExportAll(ctx context.Context, ownerID string, activeOnly bool) ([]model.Record, error) {
	where := []string{"owner_id = ?"}
	args := []any{ownerID}

	if activeOnly {
		where = append(where, "valid_to IS NULL")
	}

	query := `SELECT ` + recordCols + ` FROM memories WHERE ` +
		strings.Join(where, " AND ") + ` ORDER BY created_at ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []model.Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *r)
	}
	return records, rows.Err()
}
