package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"autoflow/internal/events/models"
	"autoflow/pkg/platform/sentinel"
	txcontext "autoflow/pkg/platform/tx"
)

// PostgresStore persists domain events in the automation_events table.
// It is pure I/O: validation and timestamps belong to the emitter.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed event store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// Insert appends an event row. When the context carries a transaction the row is
// written inside it.
func (s *PostgresStore) Insert(ctx context.Context, event *models.DomainEvent) error {
	if event == nil {
		return fmt.Errorf("event is required")
	}
	data, err := json.Marshal(nonNilMap(event.Payload))
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}
	// nil stays a SQL NULL
	var metadata any
	if event.Metadata != nil {
		raw, err := json.Marshal(event.Metadata)
		if err != nil {
			return fmt.Errorf("marshal event metadata: %w", err)
		}
		metadata = raw
	}

	query := `
		INSERT INTO automation_events (
			id, tenant_id, event_name, event_data, metadata,
			entity_type, entity_id, processed, triggered_at, processed_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err = s.execer(ctx).ExecContext(ctx, query,
		event.ID,
		event.TenantID,
		event.EventType,
		data,
		metadata,
		event.EntityType,
		event.EntityID,
		event.Processed,
		event.TriggeredAt,
		event.ProcessedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return fmt.Errorf("insert event %s: %w", event.ID, sentinel.ErrConflict)
		}
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// MarkProcessed flips every matching unprocessed row and returns how many changed.
// Marking an already processed event affects zero rows.
func (s *PostgresStore) MarkProcessed(ctx context.Context, tenantID uuid.UUID, eventType string, entityID uuid.UUID, at time.Time) (int64, error) {
	query := `
		UPDATE automation_events
		SET processed = TRUE, processed_at = $4
		WHERE tenant_id = $1
		  AND event_name = $2
		  AND entity_id = $3
		  AND processed = FALSE
	`
	res, err := s.execer(ctx).ExecContext(ctx, query, tenantID, eventType, entityID, at)
	if err != nil {
		return 0, fmt.Errorf("mark event processed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("mark event processed: %w", err)
	}
	return n, nil
}

// FindByID loads one event.
func (s *PostgresStore) FindByID(ctx context.Context, id uuid.UUID) (*models.DomainEvent, error) {
	query := `
		SELECT id, tenant_id, event_name, event_data, metadata, entity_type,
		       entity_id, processed, triggered_at, processed_at
		FROM automation_events
		WHERE id = $1
	`
	event, err := scanEvent(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("event %s: %w", id, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find event: %w", err)
	}
	return event, nil
}

// ListUnprocessed returns unprocessed events triggered before olderThan, oldest first.
func (s *PostgresStore) ListUnprocessed(ctx context.Context, olderThan time.Time, limit int) ([]*models.DomainEvent, error) {
	query := `
		SELECT id, tenant_id, event_name, event_data, metadata, entity_type,
		       entity_id, processed, triggered_at, processed_at
		FROM automation_events
		WHERE processed = FALSE
		  AND triggered_at < $1
		ORDER BY triggered_at ASC
		LIMIT $2
	`
	rows, err := s.db.QueryContext(ctx, query, olderThan, limit)
	if err != nil {
		return nil, fmt.Errorf("query unprocessed events: %w", err)
	}
	defer rows.Close()

	var events []*models.DomainEvent
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*models.DomainEvent, error) {
	var (
		event       models.DomainEvent
		data        []byte
		metadata    []byte
		processedAt sql.NullTime
	)
	if err := row.Scan(
		&event.ID,
		&event.TenantID,
		&event.EventType,
		&data,
		&metadata,
		&event.EntityType,
		&event.EntityID,
		&event.Processed,
		&event.TriggeredAt,
		&processedAt,
	); err != nil {
		return nil, err
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &event.Payload); err != nil {
			return nil, fmt.Errorf("decode event data: %w", err)
		}
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &event.Metadata); err != nil {
			return nil, fmt.Errorf("decode event metadata: %w", err)
		}
	}
	if processedAt.Valid {
		t := processedAt.Time
		event.ProcessedAt = &t
	}
	return &event, nil
}

func nonNilMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
