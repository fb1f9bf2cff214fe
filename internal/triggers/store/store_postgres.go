package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"autoflow/internal/triggers/models"
	"autoflow/pkg/platform/sentinel"
)

// PostgresStore reads triggers and writes their execution statistics.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed trigger store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const triggerColumns = `
	id, tenant_id, name, event, conditions, actions, is_active, priority,
	execution_count, last_executed_at, avg_execution_time_ms, created_at
`

// Create inserts a trigger. CreatedAt defaults to now.
func (s *PostgresStore) Create(ctx context.Context, t *models.Trigger) error {
	if t == nil {
		return fmt.Errorf("trigger is required")
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	actions := []byte(t.Actions)
	if len(actions) == 0 {
		actions = []byte("[]")
	}
	conditions := []byte(t.Conditions)
	if len(conditions) == 0 {
		conditions = []byte("{}")
	}

	query := `
		INSERT INTO automation_triggers (` + triggerColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := s.db.ExecContext(ctx, query,
		t.ID,
		nullUUID(t.TenantID),
		t.Name,
		t.Event,
		string(conditions),
		string(actions),
		t.Active,
		t.Priority,
		t.ExecutionCount,
		t.LastExecutedAt,
		t.AvgExecutionTimeMs,
		t.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return fmt.Errorf("insert trigger %s: %w", t.ID, sentinel.ErrConflict)
		}
		return fmt.Errorf("insert trigger: %w", err)
	}
	return nil
}

// FindByID loads one trigger regardless of its active flag.
func (s *PostgresStore) FindByID(ctx context.Context, id uuid.UUID) (*models.Trigger, error) {
	query := `SELECT ` + triggerColumns + ` FROM automation_triggers WHERE id = $1`
	t, err := scanTrigger(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("trigger %s: %w", id, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find trigger: %w", err)
	}
	return t, nil
}

// FindMatching returns the active triggers for eventType that belong to tenantID or
// are global.
func (s *PostgresStore) FindMatching(ctx context.Context, eventType string, tenantID uuid.UUID, order models.MatchOrder) ([]*models.Trigger, error) {
	orderBy := "created_at ASC, id ASC"
	if order == models.MatchOrderPriority {
		orderBy = "priority DESC, created_at ASC, id ASC"
	}
	query := `
		SELECT ` + triggerColumns + `
		FROM automation_triggers
		WHERE event = $1
		  AND is_active = TRUE
		  AND (tenant_id = $2 OR tenant_id IS NULL)
		ORDER BY ` + orderBy

	rows, err := s.db.QueryContext(ctx, query, eventType, tenantID)
	if err != nil {
		return nil, fmt.Errorf("query matching triggers: %w", err)
	}
	defer rows.Close()

	var triggers []*models.Trigger
	for rows.Next() {
		t, err := scanTrigger(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trigger: %w", err)
		}
		triggers = append(triggers, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate triggers: %w", err)
	}
	return triggers, nil
}

// RecordExecution bumps the execution count, stamps the last run and folds duration
// into the running average, all in one statement.
func (s *PostgresStore) RecordExecution(ctx context.Context, id uuid.UUID, at time.Time, duration time.Duration) error {
	query := `
		UPDATE automation_triggers
		SET execution_count = execution_count + 1,
		    last_executed_at = $2,
		    avg_execution_time_ms = CASE
		        WHEN avg_execution_time_ms IS NULL OR execution_count = 0 THEN $3::double precision
		        ELSE (avg_execution_time_ms * execution_count + $3::double precision) / (execution_count + 1)
		    END
		WHERE id = $1
	`
	res, err := s.db.ExecContext(ctx, query, id, at, durationMs(duration))
	if err != nil {
		return fmt.Errorf("record trigger execution: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("record trigger execution: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("trigger %s: %w", id, sentinel.ErrNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTrigger(row rowScanner) (*models.Trigger, error) {
	var (
		t              models.Trigger
		tenantID       uuid.NullUUID
		conditions     []byte
		actions        []byte
		lastExecutedAt sql.NullTime
		avgMs          sql.NullFloat64
	)
	if err := row.Scan(
		&t.ID,
		&tenantID,
		&t.Name,
		&t.Event,
		&conditions,
		&actions,
		&t.Active,
		&t.Priority,
		&t.ExecutionCount,
		&lastExecutedAt,
		&avgMs,
		&t.CreatedAt,
	); err != nil {
		return nil, err
	}
	if tenantID.Valid {
		id := tenantID.UUID
		t.TenantID = &id
	}
	t.Conditions = models.Conditions(conditions)
	t.Actions = actions
	if lastExecutedAt.Valid {
		at := lastExecutedAt.Time
		t.LastExecutedAt = &at
	}
	if avgMs.Valid {
		avg := avgMs.Float64
		t.AvgExecutionTimeMs = &avg
	}
	return &t, nil
}

func nullUUID(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}

func durationMs(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000.0
}
