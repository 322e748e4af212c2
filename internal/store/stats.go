package store

import (
	"context"
	"os"
)

// Stats holds database statistics.
type Stats struct {
	DBPath           string       `json:"db_path"`
	DBSizeBytes      int64        `json:"db_size_bytes"`
	TotalSessions    int          `json:"total_sessions"`
	ActiveSessions   int          `json:"active_sessions"`
	TotalOperations  int          `json:"total_operations"`
	StoredBytes      int64        `json:"stored_bytes"`
	EmbeddedSessions int          `json:"embedded_sessions"`
	Kinds            []KindStats  `json:"operation_kinds"`
	Codecs           []CodecStats `json:"codecs"`
}

// KindStats holds per-kind operation counts over live sessions.
type KindStats struct {
	Kind  string `json:"kind"`
	Count int    `json:"count"`
}

// CodecStats holds per-codec session counts.
type CodecStats struct {
	Codec    string `json:"codec"`
	Sessions int    `json:"sessions"`
}

// Stats returns database statistics.
func (s *SQLiteStore) Stats(ctx context.Context, dbPath string) (*Stats, error) {
	st := &Stats{DBPath: dbPath}

	// DB file size
	if info, err := os.Stat(dbPath); err == nil {
		st.DBSizeBytes = info.Size()
	}

	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions`).Scan(&st.TotalSessions)
	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions WHERE deleted_at IS NULL`).Scan(&st.ActiveSessions)
	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions WHERE deleted_at IS NULL AND payloads_embedded = 1`).Scan(&st.EmbeddedSessions)
	s.db.QueryRowContext(ctx, `SELECT COUNT(*), COALESCE(SUM(LENGTH(record)), 0) FROM operations`).Scan(&st.TotalOperations, &st.StoredBytes)

	rows, err := s.db.QueryContext(ctx, `
		SELECT o.kind, COUNT(*) AS cnt
		FROM operations o INNER JOIN sessions s ON s.id = o.session_id
		WHERE s.deleted_at IS NULL
		GROUP BY o.kind ORDER BY cnt DESC, o.kind`)
	if err != nil {
		return st, err
	}
	for rows.Next() {
		var k KindStats
		rows.Scan(&k.Kind, &k.Count)
		st.Kinds = append(st.Kinds, k)
	}
	rows.Close()

	rows, err = s.db.QueryContext(ctx, `
		SELECT codec, COUNT(*) AS cnt
		FROM sessions WHERE deleted_at IS NULL
		GROUP BY codec ORDER BY cnt DESC, codec`)
	if err != nil {
		return st, err
	}
	defer rows.Close()
	for rows.Next() {
		var c CodecStats
		rows.Scan(&c.Codec, &c.Sessions)
		st.Codecs = append(st.Codecs, c)
	}

	return st, nil
}
