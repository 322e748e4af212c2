package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/rcliao/opshistory/internal/model"
)

// SearchParams holds parameters for searching archived operations.
type SearchParams struct {
	Query string
	Name  string
	Kind  model.OperationKind
	Limit int
}

// SearchResult is an operation match with the session it belongs to.
type SearchResult struct {
	SessionName    string `json:"session_name"`
	SessionVersion int    `json:"session_version"`
	model.ArchivedOperation
}

// Search finds operations in the latest version of each live session whose
// descriptions or entity ids contain the query substring.
func (s *SQLiteStore) Search(ctx context.Context, p SearchParams) ([]SearchResult, error) {
	limit := p.Limit
	if limit <= 0 {
		limit = 20
	}

	query := "%" + p.Query + "%"

	where := []string{"s.deleted_at IS NULL"}
	var args []interface{}

	if p.Name != "" {
		where = append(where, "s.name = ?")
		args = append(args, p.Name)
	}
	if p.Kind != "" {
		where = append(where, "o.kind = ?")
		args = append(args, string(p.Kind))
	}

	sql := fmt.Sprintf(`
		SELECT s.name, s.version, o.session_id, o.stack, o.seq, o.record
		FROM operations o
		INNER JOIN sessions s ON s.id = o.session_id
		INNER JOIN (
			SELECT name, MAX(version) AS max_ver
			FROM sessions WHERE deleted_at IS NULL
			GROUP BY name
		) latest ON s.name = latest.name AND s.version = latest.max_ver
		WHERE %s AND (o.description LIKE ? OR o.user_description LIKE ? OR o.entity_ids LIKE ?)
		ORDER BY o.timestamp DESC
		LIMIT ?`, strings.Join(where, " AND "))

	args = append(args, query, query, query, limit)

	rows, err := s.db.QueryContext(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		var blob []byte
		if err := rows.Scan(&r.SessionName, &r.SessionVersion, &r.SessionID, &r.Stack, &r.Seq, &blob); err != nil {
			return nil, err
		}
		if err := s.decodeRecord(blob, &r.ArchivedOperation); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}
