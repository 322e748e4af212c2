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
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"github.com/rcliao/opshistory/internal/model"
)

// ErrNotFound is returned when no live session matches.
var ErrNotFound = errors.New("session not found")

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db      *sql.DB
	entropy *rand.Rand
	enc     *zstd.Encoder
	dec     *zstd.Decoder
}

// NewSQLiteStore opens or creates a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=foreign_keys(on)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		db.Close()
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}

	s := &SQLiteStore{
		db:      db,
		entropy: rand.New(rand.NewSource(time.Now().UnixNano())),
		enc:     enc,
		dec:     dec,
	}

	if err := s.migrate(); err != nil {
		s.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) newID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String()
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id                TEXT PRIMARY KEY,
		name              TEXT NOT NULL,
		version           INTEGER NOT NULL DEFAULT 1,
		supersedes        TEXT,
		source_path       TEXT,
		file_version      TEXT NOT NULL,
		codec             TEXT NOT NULL,
		payloads_embedded INTEGER NOT NULL DEFAULT 0,
		saved_at          TEXT NOT NULL,
		imported_at       TEXT NOT NULL,
		deleted_at        TEXT,
		undo_count        INTEGER NOT NULL DEFAULT 0,
		redo_count        INTEGER NOT NULL DEFAULT 0,
		memory_mb         REAL NOT NULL DEFAULT 0,
		stats             TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_name ON sessions(name, version);
	CREATE INDEX IF NOT EXISTS idx_sessions_imported ON sessions(imported_at DESC);
	CREATE INDEX IF NOT EXISTS idx_sessions_deleted ON sessions(deleted_at);

	CREATE TABLE IF NOT EXISTS operations (
		session_id       TEXT NOT NULL REFERENCES sessions(id),
		stack            TEXT NOT NULL,
		seq              INTEGER NOT NULL,
		operation_id     TEXT NOT NULL,
		kind             TEXT NOT NULL,
		timestamp        TEXT NOT NULL,
		description      TEXT NOT NULL,
		user_description TEXT NOT NULL,
		entity_ids       TEXT,
		levels           TEXT,
		duration_ms      REAL NOT NULL DEFAULT 0,
		memory_mb        REAL NOT NULL DEFAULT 0,
		record           BLOB NOT NULL,
		PRIMARY KEY (session_id, stack, seq)
	);
	CREATE INDEX IF NOT EXISTS idx_operations_kind ON operations(kind);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) Import(ctx context.Context, p ImportParams) (*model.Session, error) {
	if p.File == nil {
		return nil, errors.New("import: nil history file")
	}
	if p.Name == "" {
		return nil, errors.New("import: session name is required")
	}
	f := p.File
	now := time.Now().UTC()
	id := s.newID()

	statsJSON, err := json.Marshal(f.Stats)
	if err != nil {
		return nil, fmt.Errorf("marshal stats: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	// Check for existing latest version
	var prevID string
	var prevVersion int
	err = tx.QueryRowContext(ctx,
		`SELECT id, version FROM sessions
		 WHERE name = ? AND deleted_at IS NULL
		 ORDER BY version DESC LIMIT 1`, p.Name).Scan(&prevID, &prevVersion)

	version := 1
	var supersedes *string
	if err == nil {
		version = prevVersion + 1
		supersedes = &prevID
	}

	var sourcePath *string
	if p.SourcePath != "" {
		sourcePath = &p.SourcePath
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO sessions (id, name, version, supersedes, source_path, file_version, codec,
		                       payloads_embedded, saved_at, imported_at, undo_count, redo_count, memory_mb, stats)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, p.Name, version, supersedes, sourcePath, f.Version, f.Codec,
		f.PayloadsEmbedded, f.SavedAt.UTC().Format(time.RFC3339Nano), now.Format(time.RFC3339Nano),
		len(f.Undo), len(f.Redo), f.Stats.MemoryUsageMB, string(statsJSON))
	if err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}

	for _, stack := range []struct {
		name string
		recs []model.OperationRecord
	}{{model.StackUndo, f.Undo}, {model.StackRedo, f.Redo}} {
		for i := range stack.recs {
			if err := s.insertOperation(ctx, tx, id, stack.name, i, &stack.recs[i]); err != nil {
				return nil, err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	sess := &model.Session{
		ID:               id,
		Name:             p.Name,
		Version:          version,
		SourcePath:       p.SourcePath,
		FileVersion:      f.Version,
		Codec:            f.Codec,
		PayloadsEmbedded: f.PayloadsEmbedded,
		SavedAt:          f.SavedAt.UTC(),
		ImportedAt:       now,
		UndoCount:        len(f.Undo),
		RedoCount:        len(f.Redo),
		MemoryMB:         f.Stats.MemoryUsageMB,
		Stats:            f.Stats,
	}
	if supersedes != nil {
		sess.Supersedes = *supersedes
	}
	return sess, nil
}

func (s *SQLiteStore) insertOperation(ctx context.Context, tx *sql.Tx, sessionID, stack string, seq int, rec *model.OperationRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal operation %s: %w", rec.ID, err)
	}
	var entities, levels *string
	if len(rec.EntityIDs) > 0 {
		b, _ := json.Marshal(rec.EntityIDs)
		v := string(b)
		entities = &v
	}
	if len(rec.Levels) > 0 {
		b, _ := json.Marshal(rec.Levels)
		v := string(b)
		levels = &v
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO operations (session_id, stack, seq, operation_id, kind, timestamp, description,
		                         user_description, entity_ids, levels, duration_ms, memory_mb, record)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sessionID, stack, seq, rec.ID, string(rec.Kind), rec.Timestamp.UTC().Format(time.RFC3339Nano),
		rec.Description, rec.UserDescription, entities, levels, rec.DurationMS, rec.MemoryMB,
		s.enc.EncodeAll(raw, nil))
	if err != nil {
		return fmt.Errorf("insert operation %s: %w", rec.ID, err)
	}
	return nil
}

const sessionColumns = `id, name, version, supersedes, source_path, file_version, codec,
	payloads_embedded, saved_at, imported_at, deleted_at, undo_count, redo_count, memory_mb, stats`

func (s *SQLiteStore) Get(ctx context.Context, p GetParams) ([]model.Session, error) {
	var query string
	var args []interface{}

	if p.History {
		query = `SELECT ` + sessionColumns + ` FROM sessions
				 WHERE name = ? AND deleted_at IS NULL
				 ORDER BY version DESC`
		args = []interface{}{p.Name}
	} else if p.Version > 0 {
		query = `SELECT ` + sessionColumns + ` FROM sessions
				 WHERE name = ? AND version = ? AND deleted_at IS NULL
				 LIMIT 1`
		args = []interface{}{p.Name, p.Version}
	} else {
		query = `SELECT ` + sessionColumns + ` FROM sessions
				 WHERE name = ? AND deleted_at IS NULL
				 ORDER BY version DESC LIMIT 1`
		args = []interface{}{p.Name}
	}

	sessions, err := s.querySessions(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	if len(sessions) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, p.Name)
	}
	return sessions, nil
}

func (s *SQLiteStore) List(ctx context.Context, p ListParams) ([]model.Session, error) {
	limit := p.Limit
	if limit <= 0 {
		limit = 20
	}

	where := []string{"s.deleted_at IS NULL"}
	var args []interface{}
	if p.Codec != "" {
		where = append(where, "s.codec = ?")
		args = append(args, p.Codec)
	}

	query := fmt.Sprintf(`
		SELECT s.id, s.name, s.version, s.supersedes, s.source_path, s.file_version, s.codec,
		       s.payloads_embedded, s.saved_at, s.imported_at, s.deleted_at, s.undo_count,
		       s.redo_count, s.memory_mb, s.stats
		FROM sessions s
		INNER JOIN (
			SELECT name, MAX(version) AS max_ver
			FROM sessions WHERE deleted_at IS NULL
			GROUP BY name
		) latest ON s.name = latest.name AND s.version = latest.max_ver
		WHERE %s
		ORDER BY s.imported_at DESC
		LIMIT ?`, strings.Join(where, " AND "))
	args = append(args, limit)

	return s.querySessions(ctx, query, args...)
}

func (s *SQLiteStore) querySessions(ctx context.Context, query string, args ...interface{}) ([]model.Session, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []model.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

func (s *SQLiteStore) Operations(ctx context.Context, p OperationsParams) ([]model.ArchivedOperation, error) {
	where := []string{"session_id = ?"}
	args := []interface{}{p.SessionID}
	if p.Stack != "" {
		where = append(where, "stack = ?")
		args = append(args, p.Stack)
	}
	if p.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, string(p.Kind))
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, stack, seq, record FROM operations
		 WHERE `+strings.Join(where, " AND ")+`
		 ORDER BY CASE stack WHEN 'undo' THEN 0 ELSE 1 END, seq`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ops []model.ArchivedOperation
	for rows.Next() {
		op, err := s.scanOperation(rows)
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
	return ops, rows.Err()
}

func (s *SQLiteStore) Rm(ctx context.Context, p RmParams) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var ids []string
	if p.AllVersions {
		rows, err := tx.QueryContext(ctx, `SELECT id FROM sessions WHERE name = ? AND deleted_at IS NULL`, p.Name)
		if err != nil {
			return err
		}
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return err
			}
			ids = append(ids, id)
		}
		rows.Close()
	} else {
		var id string
		err := tx.QueryRowContext(ctx,
			`SELECT id FROM sessions WHERE name = ? AND deleted_at IS NULL ORDER BY version DESC LIMIT 1`,
			p.Name).Scan(&id)
		if err == nil {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, p.Name)
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	for _, id := range ids {
		if p.Hard {
			if _, err := tx.ExecContext(ctx, `DELETE FROM operations WHERE session_id = ?`, id); err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `UPDATE sessions SET supersedes = NULL WHERE supersedes = ?`, id); err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id); err != nil {
				return err
			}
			continue
		}
		if _, err := tx.ExecContext(ctx, `UPDATE sessions SET deleted_at = ? WHERE id = ?`, now, id); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) Close() error {
	if s.enc != nil {
		s.enc.Close()
	}
	if s.dec != nil {
		s.dec.Close()
	}
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row scanner) (model.Session, error) {
	var m model.Session
	var supersedes, sourcePath, deletedAt, stats sql.NullString
	var savedAt, importedAt string

	err := row.Scan(
		&m.ID, &m.Name, &m.Version, &supersedes, &sourcePath, &m.FileVersion, &m.Codec,
		&m.PayloadsEmbedded, &savedAt, &importedAt, &deletedAt, &m.UndoCount,
		&m.RedoCount, &m.MemoryMB, &stats,
	)
	if err != nil {
		return m, err
	}

	m.SavedAt, _ = time.Parse(time.RFC3339Nano, savedAt)
	m.ImportedAt, _ = time.Parse(time.RFC3339Nano, importedAt)
	if supersedes.Valid {
		m.Supersedes = supersedes.String
	}
	if sourcePath.Valid {
		m.SourcePath = sourcePath.String
	}
	if deletedAt.Valid {
		t, _ := time.Parse(time.RFC3339Nano, deletedAt.String)
		m.DeletedAt = &t
	}
	if stats.Valid {
		json.Unmarshal([]byte(stats.String), &m.Stats)
	}
	return m, nil
}

func (s *SQLiteStore) scanOperation(row scanner) (model.ArchivedOperation, error) {
	var op model.ArchivedOperation
	var blob []byte
	if err := row.Scan(&op.SessionID, &op.Stack, &op.Seq, &blob); err != nil {
		return op, err
	}
	return op, s.decodeRecord(blob, &op)
}

// decodeRecord fills op.OperationRecord from a compressed record column.
func (s *SQLiteStore) decodeRecord(blob []byte, op *model.ArchivedOperation) error {
	raw, err := s.dec.DecodeAll(blob, nil)
	if err != nil {
		return fmt.Errorf("decompress operation %s/%s/%d: %w", op.SessionID, op.Stack, op.Seq, err)
	}
	if err := json.Unmarshal(raw, &op.OperationRecord); err != nil {
		return fmt.Errorf("decode operation %s/%s/%d: %w", op.SessionID, op.Stack, op.Seq, err)
	}
	return nil
}
