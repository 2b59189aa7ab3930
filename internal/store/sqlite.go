package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"github.com/memcore/memcore/internal/embedding"
	"github.com/memcore/memcore/internal/memerr"
	"github.com/memcore/memcore/internal/model"
)

// timeFormat keeps sub-second precision so two writes in the same
// second still order deterministically.
const timeFormat = time.RFC3339Nano

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB

	mu      sync.Mutex
	entropy *rand.Rand
}

// NewSQLiteStore opens or creates a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	s := &SQLiteStore{
		db:      db,
		entropy: rand.New(rand.NewSource(time.Now().UnixNano())),
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) newID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String()
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS memories (
		id            TEXT PRIMARY KEY,
		owner_id      TEXT NOT NULL,
		content       TEXT NOT NULL,
		content_hash  TEXT NOT NULL,
		embedding     BLOB,
		record_type   TEXT NOT NULL,
		tags          TEXT,
		scope         TEXT NOT NULL DEFAULT 'global',
		agent_id      TEXT NOT NULL DEFAULT '',
		importance    INTEGER NOT NULL DEFAULT 3,
		confidence    REAL NOT NULL DEFAULT 0.7,
		source        TEXT,
		input_channel TEXT NOT NULL DEFAULT 'api',
		valid_from    TEXT NOT NULL,
		valid_to      TEXT,
		supersedes_id TEXT,
		created_at    TEXT NOT NULL,
		updated_at    TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_memories_hash ON memories(owner_id, scope, agent_id, content_hash);
	CREATE INDEX IF NOT EXISTS idx_memories_partition ON memories(owner_id, scope, agent_id, record_type);
	CREATE INDEX IF NOT EXISTS idx_memories_created ON memories(created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_memories_valid ON memories(valid_to);

	CREATE TABLE IF NOT EXISTS memory_audit_logs (
		id         TEXT PRIMARY KEY,
		memory_id  TEXT NOT NULL,
		action     TEXT NOT NULL,
		actor_type TEXT NOT NULL DEFAULT 'system',
		diff       TEXT,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_audit_memory ON memory_audit_logs(memory_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

const recordCols = `id, owner_id, content, content_hash, embedding, record_type, tags, scope, agent_id,
	importance, confidence, source, input_channel, valid_from, valid_to, supersedes_id, created_at, updated_at`

func (s *SQLiteStore) Insert(ctx context.Context, rec *model.Record, actor model.ActorType) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := s.insertTx(ctx, tx, rec); err != nil {
		return err
	}
	if err := s.auditTx(ctx, tx, rec.ID, model.AuditCreate, actor, nil); err != nil {
		return err
	}
	return tx.Commit()
}

// insertTx writes the row and stamps the record's id and timestamps.
func (s *SQLiteStore) insertTx(ctx context.Context, tx *sql.Tx, rec *model.Record) error {
	now := time.Now().UTC()
	rec.ID = s.newID()
	rec.ValidFrom = now
	rec.CreatedAt = now
	rec.UpdatedAt = now

	var tagsJSON *string
	if len(rec.Tags) > 0 {
		b, _ := json.Marshal(rec.Tags)
		t := string(b)
		tagsJSON = &t
	}

	_, err := tx.ExecContext(ctx,
		`INSERT INTO memories (id, owner_id, content, content_hash, embedding, record_type, tags, scope, agent_id,
			importance, confidence, source, input_channel, valid_from, valid_to, supersedes_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL, ?, ?, ?)`,
		rec.ID, rec.OwnerID, rec.Content, rec.ContentHash, embedding.Encode(rec.Embedding),
		string(rec.Type), tagsJSON, string(rec.Scope), rec.AgentID,
		rec.Importance, rec.Confidence, nullable(rec.Source), string(rec.InputChannel),
		now.Format(timeFormat), nullable(rec.SupersedesID),
		now.Format(timeFormat), now.Format(timeFormat))
	if err != nil {
		return fmt.Errorf("insert memory: %w", err)
	}
	return nil
}

func (s *SQLiteStore) auditTx(ctx context.Context, tx *sql.Tx, recordID string, action model.AuditAction, actor model.ActorType, diff *model.AuditDiff) error {
	var diffJSON *string
	if diff != nil {
		b, err := json.Marshal(diff)
		if err != nil {
			return fmt.Errorf("marshal audit diff: %w", err)
		}
		d := string(b)
		diffJSON = &d
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO memory_audit_logs (id, memory_id, action, actor_type, diff, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		s.newID(), recordID, string(action), string(actor), diffJSON,
		time.Now().UTC().Format(timeFormat))
	if err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}

func (s *SQLiteStore) FindActiveByHash(ctx context.Context, ownerID string, scope model.Scope, agentID, hash string) (*model.Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+recordCols+` FROM memories
		 WHERE owner_id = ? AND scope = ? AND agent_id = ? AND content_hash = ? AND valid_to IS NULL
		 LIMIT 1`,
		ownerID, string(scope), agentID, hash)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, memerr.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *SQLiteStore) NearestActive(ctx context.Context, ownerID string, scope model.Scope, agentID string, typ model.RecordType, vec embedding.Vector) (*model.Record, float64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recordCols+` FROM memories
		 WHERE owner_id = ? AND scope = ? AND agent_id = ? AND record_type = ?
		   AND valid_to IS NULL AND embedding IS NOT NULL`,
		ownerID, string(scope), agentID, string(typ))
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	// Brute-force scan over the active partition. Partitions are small
	// (one owner, one agent, one type) so a linear pass beats index
	// maintenance here.
	var best *model.Record
	bestSim := -1.0
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, 0, err
		}
		sim := embedding.CosineSimilarity(vec, rec.Embedding)
		if sim > bestSim {
			best = rec
			bestSim = sim
		}
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	if best == nil {
		return nil, 0, memerr.ErrNotFound
	}
	return best, bestSim, nil
}

func (s *SQLiteStore) Supersede(ctx context.Context, oldID string, successor *model.Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var oldContent string
	err = tx.QueryRowContext(ctx, `SELECT content FROM memories WHERE id = ?`, oldID).Scan(&oldContent)
	if errors.Is(err, sql.ErrNoRows) {
		return memerr.ErrConflict
	}
	if err != nil {
		return err
	}

	now := time.Now().UTC().Format(timeFormat)

	// Compare-and-swap on valid_to: a concurrent supersede of the same
	// record leaves zero rows affected here and the loser retries.
	res, err := tx.ExecContext(ctx,
		`UPDATE memories SET valid_to = ?, updated_at = ? WHERE id = ? AND valid_to IS NULL`,
		now, now, oldID)
	if err != nil {
		return fmt.Errorf("invalidate memory: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return memerr.ErrConflict
	}

	successor.SupersedesID = oldID
	if err := s.insertTx(ctx, tx, successor); err != nil {
		return err
	}

	diff := &model.AuditDiff{
		Before: map[string]any{"content": oldContent},
		After:  map[string]any{"content": successor.Content},
	}
	if err := s.auditTx(ctx, tx, oldID, model.AuditUpdate, model.ActorSystem, diff); err != nil {
		return err
	}
	if err := s.auditTx(ctx, tx, successor.ID, model.AuditCreate, model.ActorSystem, nil); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) Get(ctx context.Context, id, ownerID string) (*model.Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+recordCols+` FROM memories WHERE id = ? AND owner_id = ?`, id, ownerID)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, memerr.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *SQLiteStore) Update(ctx context.Context, p UpdateParams) (*model.Record, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx,
		`SELECT `+recordCols+` FROM memories WHERE id = ? AND owner_id = ?`, p.ID, p.OwnerID)
	current, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, memerr.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	sets := []string{}
	args := []any{}
	diff := &model.AuditDiff{Before: map[string]any{}, After: map[string]any{}}

	if p.Content != nil && *p.Content != current.Content {
		sets = append(sets, "content = ?", "content_hash = ?", "embedding = ?")
		args = append(args, *p.Content, p.ContentHash, embedding.Encode(p.Embedding))
		diff.Before["content"] = current.Content
		diff.After["content"] = *p.Content
		current.Content = *p.Content
		current.ContentHash = p.ContentHash
		current.Embedding = p.Embedding
	}
	if p.Tags != nil {
		b, _ := json.Marshal(p.Tags)
		sets = append(sets, "tags = ?")
		args = append(args, string(b))
		diff.Before["tags"] = current.Tags
		diff.After["tags"] = p.Tags
		current.Tags = p.Tags
	}
	if p.Importance != nil && *p.Importance != current.Importance {
		sets = append(sets, "importance = ?")
		args = append(args, *p.Importance)
		diff.Before["importance"] = current.Importance
		diff.After["importance"] = *p.Importance
		current.Importance = *p.Importance
	}
	if p.Confidence != nil && *p.Confidence != current.Confidence {
		sets = append(sets, "confidence = ?")
		args = append(args, *p.Confidence)
		diff.Before["confidence"] = current.Confidence
		diff.After["confidence"] = *p.Confidence
		current.Confidence = *p.Confidence
	}

	if len(sets) == 0 {
		return current, nil
	}

	now := time.Now().UTC()
	sets = append(sets, "updated_at = ?")
	args = append(args, now.Format(timeFormat), p.ID, p.OwnerID)

	query := "UPDATE memories SET " + strings.Join(sets, ", ") + " WHERE id = ? AND owner_id = ?"
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("update memory: %w", err)
	}
	if err := s.auditTx(ctx, tx, p.ID, model.AuditUpdate, model.ActorUser, diff); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	current.UpdatedAt = now
	return current, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, id, ownerID string, hard bool) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	var res sql.Result
	if hard {
		// Audit rows are left in place; their retention is the
		// caller's policy, not the store's.
		res, err = tx.ExecContext(ctx,
			`DELETE FROM memories WHERE id = ? AND owner_id = ?`, id, ownerID)
	} else {
		now := time.Now().UTC().Format(timeFormat)
		res, err = tx.ExecContext(ctx,
			`UPDATE memories SET valid_to = ?, updated_at = ? WHERE id = ? AND owner_id = ? AND valid_to IS NULL`,
			now, now, id, ownerID)
	}
	if err != nil {
		return false, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return false, nil
	}
	if err := s.auditTx(ctx, tx, id, model.AuditDelete, model.ActorUser, nil); err != nil {
		return false, err
	}
	return true, tx.Commit()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func nullable(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*model.Record, error) {
	var r model.Record
	var embBlob []byte
	var tagsJSON, source, validTo, supersedes sql.NullString
	var typ, scope, channel, validFrom, createdAt, updatedAt string

	err := row.Scan(
		&r.ID, &r.OwnerID, &r.Content, &r.ContentHash, &embBlob, &typ, &tagsJSON,
		&scope, &r.AgentID, &r.Importance, &r.Confidence, &source, &channel,
		&validFrom, &validTo, &supersedes, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	r.Type = model.RecordType(typ)
	r.Scope = model.Scope(scope)
	r.InputChannel = model.InputChannel(channel)
	if r.Embedding, err = embedding.Decode(embBlob); err != nil {
		return nil, err
	}
	if tagsJSON.Valid {
		json.Unmarshal([]byte(tagsJSON.String), &r.Tags)
	}
	if source.Valid {
		r.Source = source.String
	}
	if supersedes.Valid {
		r.SupersedesID = supersedes.String
	}
	r.ValidFrom, _ = time.Parse(timeFormat, validFrom)
	if validTo.Valid {
		t, _ := time.Parse(timeFormat, validTo.String)
		r.ValidTo = &t
	}
	r.CreatedAt, _ = time.Parse(timeFormat, createdAt)
	r.UpdatedAt, _ = time.Parse(timeFormat, updatedAt)

	return &r, nil
}
