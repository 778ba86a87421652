package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	appErrors "github.com/unclebandit/oudcrm-automation/internal/errors"
	"github.com/unclebandit/oudcrm-automation/internal/model"
)

type CampaignRepositoryInterface interface {
	Create(ctx context.Context, c *model.Campaign) error
	GetByID(ctx context.Context, id int) (*model.Campaign, error)
	// GetStatus re-reads only the status column; the executor polls it between customers.
	GetStatus(ctx context.Context, id int) (model.CampaignStatus, error)
	UpdateStatus(ctx context.Context, id int, status model.CampaignStatus) error
	ListCampaigns(ctx context.Context, offset, limit int, campaignType, status string) ([]*model.Campaign, int, error)
	// ListRunningTriggered returns running campaigns whose trigger type is not "none".
	ListRunningTriggered(ctx context.Context) ([]*model.Campaign, error)
	// IncrementCounter adds one to a counter in a single statement.
	IncrementCounter(ctx context.Context, id int, counter model.Counter) error
}

type CampaignRepository struct {
	DB *sql.DB
}

const campaignColumns = `id, name, type, trigger_type, status, segment_filter, subject_en, subject_ar,
	content_en, content_ar, trigger_value, sender_id, sent_count, delivered_count, opened_count,
	clicked_count, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCampaign(row rowScanner) (*model.Campaign, error) {
	var c model.Campaign
	err := row.Scan(
		&c.ID, &c.Name, &c.Type, &c.TriggerType, &c.Status, &c.SegmentFilter,
		&c.Subject.En, &c.Subject.Ar, &c.Content.En, &c.Content.Ar, &c.TriggerValue, &c.SenderID,
		&c.Counters.Sent, &c.Counters.Delivered, &c.Counters.Opened, &c.Counters.Clicked,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *CampaignRepository) Create(ctx context.Context, c *model.Campaign) error {
	c.CreatedAt = time.Now()
	if c.Status == "" {
		c.Status = model.CampaignDraft
	}
	if c.TriggerType == "" {
		c.TriggerType = model.TriggerNone
	}
	query := `
		INSERT INTO campaigns (name, type, trigger_type, status, segment_filter, subject_en, subject_ar,
			content_en, content_ar, trigger_value, sender_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id
	`
	return r.DB.QueryRowContext(ctx, query,
		c.Name, c.Type, c.TriggerType, c.Status, c.SegmentFilter, c.Subject.En, c.Subject.Ar,
		c.Content.En, c.Content.Ar, c.TriggerValue, c.SenderID, c.CreatedAt,
	).Scan(&c.ID)
}

func (r *CampaignRepository) GetByID(ctx context.Context, id int) (*model.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE id=$1`
	c, err := scanCampaign(r.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewCampaignNotFound(id)
		}
		return nil, err
	}
	return c, nil
}

func (r *CampaignRepository) GetStatus(ctx context.Context, id int) (model.CampaignStatus, error) {
	var status model.CampaignStatus
	err := r.DB.QueryRowContext(ctx, `SELECT status FROM campaigns WHERE id=$1`, id).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", appErrors.NewCampaignNotFound(id)
		}
		return "", err
	}
	return status, nil
}

func (r *CampaignRepository) UpdateStatus(ctx context.Context, id int, status model.CampaignStatus) error {
	query := `UPDATE campaigns SET status=$1, updated_at=$2 WHERE id=$3`
	res, err := r.DB.ExecContext(ctx, query, status, time.Now(), id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return appErrors.NewCampaignNotFound(id)
	}
	return nil
}

func (r *CampaignRepository) ListCampaigns(ctx context.Context, offset, limit int, campaignType, status string) ([]*model.Campaign, int, error) {
	where := ` WHERE 1=1`
	args := []any{}
	argPos := 1

	if campaignType != "" {
		where += fmt.Sprintf(" AND type=$%d", argPos)
		args = append(args, campaignType)
		argPos++
	}
	if status != "" {
		where += fmt.Sprintf(" AND status=$%d", argPos)
		args = append(args, status)
		argPos++
	}

	var total int
	if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM campaigns`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + campaignColumns + ` FROM campaigns` + where +
		fmt.Sprintf(" ORDER BY id DESC LIMIT $%d OFFSET $%d", argPos, argPos+1)
	rows, err := r.DB.QueryContext(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	campaigns := []*model.Campaign{}
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, 0, err
		}
		campaigns = append(campaigns, c)
	}
	return campaigns, total, rows.Err()
}

func (r *CampaignRepository) ListRunningTriggered(ctx context.Context) ([]*model.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE status=$1 AND trigger_type <> $2 ORDER BY id`
	rows, err := r.DB.QueryContext(ctx, query, model.CampaignRunning, model.TriggerNone)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	campaigns := []*model.Campaign{}
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		campaigns = append(campaigns, c)
	}
	return campaigns, rows.Err()
}

func (r *CampaignRepository) IncrementCounter(ctx context.Context, id int, counter model.Counter) error {
	if !counter.Valid() {
		return fmt.Errorf("unknown counter %q", counter)
	}
	// column name comes from the closed Counter set above
	query := fmt.Sprintf(`UPDATE campaigns SET %[1]s_count = %[1]s_count + 1, updated_at=NOW() WHERE id=$1`, counter)
	res, err := r.DB.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return appErrors.NewCampaignNotFound(id)
	}
	return nil
}

var _ CampaignRepositoryInterface = (*CampaignRepository)(nil)
