package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	appErrors "github.com/unclebandit/oudcrm-automation/internal/errors"
	"github.com/unclebandit/oudcrm-automation/internal/model"
)

// Breakdown dimensions.
const (
	DimensionSegment = "segment"
	DimensionRegion  = "region"
)

// DeliveryTrackingWindow bounds how long a sent execution is polled for a
// delivery receipt.
const DeliveryTrackingWindow = 72 * time.Hour

type ExecutionRepositoryInterface interface {
	// Create inserts a pending execution. It returns
	// appErrors.ErrDuplicateExecution when a non-failed execution already
	// exists for the same campaign, customer and firing date.
	Create(ctx context.Context, e *model.CampaignExecution) error
	GetByID(ctx context.Context, id string) (*model.CampaignExecution, error)
	// UpdateStatus persists the status, channel, provider outcome and error of e.
	UpdateStatus(ctx context.Context, e *model.CampaignExecution) error
	// UpdateDelivery moves a sent execution to a new delivery status. It
	// reports false when the status was already final or unchanged.
	UpdateDelivery(ctx context.Context, id string, status model.DeliveryStatus) (bool, error)
	// ListAwaitingDelivery returns sent executions of the given providers
	// still without a final delivery status, least recently polled first.
	ListAwaitingDelivery(ctx context.Context, providers []string, limit int) ([]model.CampaignExecution, error)
	// MarkPolled records that the executions were just checked with their provider.
	MarkPolled(ctx context.Context, ids []string) error
	FindByProviderMessageID(ctx context.Context, providerMessageID string) (*model.CampaignExecution, error)
	StatsByCampaign(ctx context.Context, campaignID int) (map[string]int, error)
	Breakdown(ctx context.Context, campaignID int, dimension string) ([]model.BreakdownRow, error)
}

type ExecutionRepository struct {
	DB *sql.DB
}

const executionColumns = `id, campaign_id, customer_id, firing_date, status, channel, provider,
	provider_message_id, delivery_status, cost, segments, error, created_at, updated_at`

func scanExecution(row rowScanner) (model.CampaignExecution, error) {
	var e model.CampaignExecution
	err := row.Scan(
		&e.ID, &e.CampaignID, &e.CustomerID, &e.FiringDate, &e.Status, &e.Channel, &e.Provider,
		&e.ProviderMessageID, &e.DeliveryStatus, &e.Cost, &e.Segments, &e.Error, &e.CreatedAt, &e.UpdatedAt,
	)
	return e, err
}

// Create relies on the partial unique index over (campaign_id, customer_id,
// firing_date) so concurrent runs cannot both insert.
func (r *ExecutionRepository) Create(ctx context.Context, e *model.CampaignExecution) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	e.Status = model.ExecutionPending
	e.CreatedAt = now
	e.UpdatedAt = now

	query := `
		INSERT INTO campaign_executions (id, campaign_id, customer_id, firing_date, status, channel, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (campaign_id, customer_id, firing_date) WHERE status <> 'failed' DO NOTHING
		RETURNING id
	`
	err := r.DB.QueryRowContext(ctx, query,
		e.ID, e.CampaignID, e.CustomerID, e.FiringDate, e.Status, e.Channel, e.CreatedAt, e.UpdatedAt,
	).Scan(&e.ID)
	if err != nil {
		var pqErr *pq.Error
		if errors.Is(err, sql.ErrNoRows) || (errors.As(err, &pqErr) && pqErr.Code == "23505") {
			return appErrors.ErrDuplicateExecution
		}
		return err
	}
	return nil
}

func (r *ExecutionRepository) GetByID(ctx context.Context, id string) (*model.CampaignExecution, error) {
	query := `SELECT ` + executionColumns + ` FROM campaign_executions WHERE id=$1`
	e, err := scanExecution(r.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("execution %s: %w", id, appErrors.ErrExecutionNotFound)
		}
		return nil, err
	}
	return &e, nil
}

func (r *ExecutionRepository) UpdateStatus(ctx context.Context, e *model.CampaignExecution) error {
	e.UpdatedAt = time.Now().UTC()
	query := `
		UPDATE campaign_executions
		SET status=$1, channel=$2, provider=$3, provider_message_id=$4, delivery_status=$5,
			cost=$6, segments=$7, error=$8, updated_at=$9
		WHERE id=$10
	`
	res, err := r.DB.ExecContext(ctx, query,
		e.Status, e.Channel, e.Provider, e.ProviderMessageID, e.DeliveryStatus,
		e.Cost, e.Segments, e.Error, e.UpdatedAt, e.ID,
	)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("execution %s: %w", e.ID, appErrors.ErrExecutionNotFound)
	}
	return nil
}

func (r *ExecutionRepository) UpdateDelivery(ctx context.Context, id string, status model.DeliveryStatus) (bool, error) {
	query := `
		UPDATE campaign_executions
		SET delivery_status=$1, updated_at=NOW()
		WHERE id=$2 AND status='sent' AND delivery_status NOT IN ('delivered', 'failed') AND delivery_status <> $1
	`
	res, err := r.DB.ExecContext(ctx, query, status, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *ExecutionRepository) ListAwaitingDelivery(ctx context.Context, providers []string, limit int) ([]model.CampaignExecution, error) {
	query := `SELECT ` + executionColumns + ` FROM campaign_executions
		WHERE status='sent' AND delivery_status IN ('queued', 'sent') AND provider_message_id <> ''
			AND provider = ANY($1) AND created_at > $2
		ORDER BY polled_at NULLS FIRST, created_at LIMIT $3`
	rows, err := r.DB.QueryContext(ctx, query, pq.Array(providers), time.Now().UTC().Add(-DeliveryTrackingWindow), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.CampaignExecution{}
	for rows.Next() {
		e, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *ExecutionRepository) MarkPolled(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.DB.ExecContext(ctx, `UPDATE campaign_executions SET polled_at=NOW() WHERE id = ANY($1)`, pq.Array(ids))
	return err
}

func (r *ExecutionRepository) FindByProviderMessageID(ctx context.Context, providerMessageID string) (*model.CampaignExecution, error) {
	query := `SELECT ` + executionColumns + ` FROM campaign_executions WHERE provider_message_id=$1 LIMIT 1`
	e, err := scanExecution(r.DB.QueryRowContext(ctx, query, providerMessageID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("provider message %s: %w", providerMessageID, appErrors.ErrExecutionNotFound)
		}
		return nil, err
	}
	return &e, nil
}

func (r *ExecutionRepository) StatsByCampaign(ctx context.Context, campaignID int) (map[string]int, error) {
	query := `SELECT status, COUNT(*) FROM campaign_executions WHERE campaign_id=$1 GROUP BY status`
	rows, err := r.DB.QueryContext(ctx, query, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := map[string]int{"pending": 0, "sent": 0, "failed": 0}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

func (r *ExecutionRepository) Breakdown(ctx context.Context, campaignID int, dimension string) ([]model.BreakdownRow, error) {
	if dimension != DimensionSegment && dimension != DimensionRegion {
		return nil, fmt.Errorf("unknown breakdown dimension %q", dimension)
	}
	query := fmt.Sprintf(`
		SELECT c.%[1]s,
			COUNT(*),
			COUNT(*) FILTER (WHERE e.status='sent'),
			COUNT(*) FILTER (WHERE e.status='failed')
		FROM campaign_executions e
		JOIN customers c ON c.id = e.customer_id
		WHERE e.campaign_id=$1
		GROUP BY c.%[1]s
		ORDER BY c.%[1]s
	`, dimension)
	rows, err := r.DB.QueryContext(ctx, query, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.BreakdownRow{}
	for rows.Next() {
		var row model.BreakdownRow
		if err := rows.Scan(&row.Key, &row.Total, &row.Sent, &row.Failed); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

var _ ExecutionRepositoryInterface = (*ExecutionRepository)(nil)
