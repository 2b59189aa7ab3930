package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/memcore/memcore/internal/model"
)

// Search lists active records for one owner, most recent first. Scope
// resolution follows visibility rules: agent-scoped searches include
// global records unless IncludeGlobal is false; everything else sees
// global records only.
func (s *SQLiteStore) Search(ctx context.Context, p SearchParams) ([]model.Record, error) {
	limit := p.Limit
	if limit <= 0 {
		limit = 50
	}

	where := []string{"valid_to IS NULL", "owner_id = ?"}
	args := []any{p.OwnerID}

	if p.Scope == model.ScopeAgent && p.AgentID != "" {
		if p.IncludeGlobal {
			where = append(where, "(scope = 'global' OR (scope = 'agent' AND agent_id = ?))")
		} else {
			where = append(where, "scope = 'agent' AND agent_id = ?")
		}
		args = append(args, p.AgentID)
	} else {
		where = append(where, "scope = 'global'")
	}

	if p.Type != "" {
		where = append(where, "record_type = ?")
		args = append(args, string(p.Type))
	}
	for _, tag := range p.Tags {
		where = append(where, "tags LIKE ?")
		args = append(args, "%\""+tag+"\"%")
	}

	query := fmt.Sprintf(`
		SELECT `+recordCols+`
		FROM memories
		WHERE %s
		ORDER BY created_at DESC
		LIMIT ?`, strings.Join(where, " AND "))
	args = append(args, limit)

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
