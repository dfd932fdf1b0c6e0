package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/djbooking/funnel/internal/domain"
	"github.com/djbooking/funnel/pkg/database"
)

const (
	progressTable = "booking_step_progress"

	upsertQuery = `
		INSERT INTO booking_step_progress (flow_id, step_id, is_complete, payload, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (flow_id, step_id) DO UPDATE SET
			is_complete = EXCLUDED.is_complete,
			payload     = EXCLUDED.payload,
			updated_at  = EXCLUDED.updated_at
		RETURNING flow_id, step_id, is_complete, payload, created_at, updated_at`

	listByFlowQuery = `
		SELECT flow_id, step_id, is_complete, payload, created_at, updated_at
		FROM booking_step_progress
		WHERE flow_id = $1
		ORDER BY updated_at ASC, created_at ASC, step_id ASC`
)

// ProgressRepository implements repository.ProgressRepository using PostgreSQL.
type ProgressRepository struct {
	db  database.DBTX
	now func() time.Time
}

// NewProgressRepository creates a new PostgreSQL-backed progress repository.
func NewProgressRepository(db database.DBTX) *ProgressRepository {
	return &ProgressRepository{
		db:  db,
		now: func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
	}
}

// Upsert writes the step progress with a single INSERT ... ON CONFLICT, so
// concurrent submissions of the same step never lose an update.
func (r *ProgressRepository) Upsert(ctx context.Context, p domain.StepProgress) (*domain.StepProgress, error) {
	payload := p.Payload
	if payload == nil {
		payload = domain.Payload{}
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal step payload: %w", err)
	}

	ctx, end := database.TraceQuery(ctx, database.Query{
		Name:      "UpsertStepProgress",
		Table:     progressTable,
		Statement: upsertQuery,
		FlowID:    p.FlowID,
	})
	row := r.db.QueryRow(ctx, upsertQuery, p.FlowID, p.StepID, p.IsComplete, payloadJSON, r.now())
	rec, err := scanProgress(row)
	end(err)
	if err != nil {
		return nil, fmt.Errorf("upsert step progress %s/%s: %w", p.FlowID, p.StepID, err)
	}

	return rec, nil
}

// ListByFlow returns the flow's progress ordered by updated_at ascending.
func (r *ProgressRepository) ListByFlow(ctx context.Context, flowID string) ([]domain.StepProgress, error) {
	ctx, end := database.TraceQuery(ctx, database.Query{
		Name:      "ListStepProgress",
		Table:     progressTable,
		Statement: listByFlowQuery,
		FlowID:    flowID,
	})
	rows, err := r.db.Query(ctx, listByFlowQuery, flowID)
	if err != nil {
		end(err)
		return nil, fmt.Errorf("list step progress for flow %s: %w", flowID, err)
	}
	defer rows.Close()

	progress := make([]domain.StepProgress, 0)
	for rows.Next() {
		rec, err := scanProgress(rows)
		if err != nil {
			end(err)
			return nil, fmt.Errorf("scan step progress: %w", err)
		}
		progress = append(progress, *rec)
	}
	err = rows.Err()
	end(err)
	if err != nil {
		return nil, fmt.Errorf("iterate step progress: %w", err)
	}

	return progress, nil
}

// Durable implements repository.ProgressRepository.
func (r *ProgressRepository) Durable() bool { return true }

// Backend implements repository.ProgressRepository.
func (r *ProgressRepository) Backend() string { return "postgres" }

func scanProgress(row pgx.Row) (*domain.StepProgress, error) {
	var (
		rec         domain.StepProgress
		payloadJSON []byte
	)
	if err := row.Scan(
		&rec.FlowID,
		&rec.StepID,
		&rec.IsComplete,
		&payloadJSON,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	); err != nil {
		return nil, err
	}

	rec.Payload = domain.Payload{}
	if len(payloadJSON) > 0 {
		if err := json.Unmarshal(payloadJSON, &rec.Payload); err != nil {
			return nil, fmt.Errorf("unmarshal step payload: %w", err)
		}
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.UpdatedAt = rec.UpdatedAt.UTC()

	return &rec, nil
}
