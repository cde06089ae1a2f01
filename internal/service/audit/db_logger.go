package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"saas-billing/internal/domain/audit"

	"github.com/lib/pq"
	"github.com/oklog/ulid/v2"
)

// DBLogger writes audit entries to PostgreSQL over database/sql.
type DBLogger struct {
	db  *sql.DB
	now func() time.Time
}

func NewDBLogger(db *sql.DB) (*DBLogger, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	return &DBLogger{db: db, now: time.Now}, nil
}

// Log appends e, filling in its id and timestamp.
func (l *DBLogger) Log(ctx context.Context, e *audit.Entry) error {
	oldJSON, err := marshalValues(e.OldValues)
	if err != nil {
		return fmt.Errorf("failed to marshal old values: %w", err)
	}
	newJSON, err := marshalValues(e.NewValues)
	if err != nil {
		return fmt.Errorf("failed to marshal new values: %w", err)
	}

	if e.ID == "" {
		e.ID = ulid.Make().String()
	}
	e.CreatedAt = l.now()

	query := `
		INSERT INTO audit_logs (
			id, action, entity, entity_id, user_id,
			old_values, new_values, ip_address, user_agent, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err = l.db.ExecContext(ctx, query,
		e.ID, e.Action, e.Entity, e.EntityID, e.UserID,
		oldJSON, newJSON, e.IPAddress, e.UserAgent, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}
	return nil
}

func marshalValues(v map[string]interface{}) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

// Filter narrows a Query. Zero values match everything.
type Filter struct {
	UserID   string
	Entity   string
	EntityID string
	Actions  []string
	Since    *time.Time
	Limit    int
}

// Query returns matching entries, newest first.
func (l *DBLogger) Query(ctx context.Context, f Filter) ([]*audit.Entry, error) {
	conditions := []string{}
	args := []interface{}{}
	argPos := 1

	if f.UserID != "" {
		conditions = append(conditions, fmt.Sprintf("user_id = $%d", argPos))
		args = append(args, f.UserID)
		argPos++
	}
	if f.Entity != "" {
		conditions = append(conditions, fmt.Sprintf("entity = $%d", argPos))
		args = append(args, f.Entity)
		argPos++
	}
	if f.EntityID != "" {
		conditions = append(conditions, fmt.Sprintf("entity_id = $%d", argPos))
		args = append(args, f.EntityID)
		argPos++
	}
	if len(f.Actions) > 0 {
		conditions = append(conditions, fmt.Sprintf("action = ANY($%d)", argPos))
		args = append(args, pq.Array(f.Actions))
		argPos++
	}
	if f.Since != nil {
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", argPos))
		args = append(args, *f.Since)
		argPos++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	limit := f.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	query := fmt.Sprintf(`
		SELECT id, action, entity, entity_id, user_id, old_values, new_values,
		       ip_address, user_agent, created_at
		FROM audit_logs
		%s
		ORDER BY created_at DESC
		LIMIT $%d
	`, whereClause, argPos)
	args = append(args, limit)

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit logs: %w", err)
	}
	defer rows.Close()

	entries := []*audit.Entry{}
	for rows.Next() {
		var e audit.Entry
		var userID sql.NullString
		var oldJSON, newJSON []byte

		if err := rows.Scan(&e.ID, &e.Action, &e.Entity, &e.EntityID, &userID,
			&oldJSON, &newJSON, &e.IPAddress, &e.UserAgent, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		if userID.Valid {
			e.UserID = &userID.String
		}
		if len(oldJSON) > 0 {
			if err := json.Unmarshal(oldJSON, &e.OldValues); err != nil {
				return nil, fmt.Errorf("failed to unmarshal old values: %w", err)
			}
		}
		if len(newJSON) > 0 {
			if err := json.Unmarshal(newJSON, &e.NewValues); err != nil {
				return nil, fmt.Errorf("failed to unmarshal new values: %w", err)
			}
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}
