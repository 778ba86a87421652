package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	appErrors "github.com/unclebandit/oudcrm-automation/internal/errors"
	"github.com/unclebandit/oudcrm-automation/internal/model"
)

// CustomerRepositoryInterface defines methods used by service
type CustomerRepositoryInterface interface {
	GetByID(ctx context.Context, id int) (*model.CustomerSnapshot, error)
	// ListActive returns active customers. The filter may be applied as a
	// coarse pre-filter only; callers still run segment.Matches.
	ListActive(ctx context.Context, filter *model.SegmentFilter) ([]model.CustomerSnapshot, error)
	Create(ctx context.Context, c *model.CustomerSnapshot) error
}

// CustomerRepository is the concrete implementation
type CustomerRepository struct {
	DB *sql.DB
}

const customerColumns = `id, name, phone, email, preferred_language, date_of_birth, created_at,
	last_interaction_at, segment, lifetime_value, loyalty_tier, loyalty_points, region, last_order_at`

func scanCustomer(row rowScanner) (model.CustomerSnapshot, error) {
	var c model.CustomerSnapshot
	err := row.Scan(
		&c.ID, &c.Name, &c.Phone, &c.Email, &c.PreferredLanguage, &c.DateOfBirth, &c.CreatedAt,
		&c.LastInteractionAt, &c.Segment, &c.LifetimeValue, &c.LoyaltyTier, &c.LoyaltyPoints,
		&c.Region, &c.LastOrderAt,
	)
	return c, err
}

// GetByID fetches a customer by ID
func (r *CustomerRepository) GetByID(ctx context.Context, id int) (*model.CustomerSnapshot, error) {
	query := `SELECT ` + customerColumns + ` FROM customers WHERE id = $1`
	c, err := scanCustomer(r.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("customer %d: %w", id, appErrors.ErrCustomerNotFound)
		}
		return nil, err
	}
	return &c, nil
}

// ListActive pushes the set and range dimensions of the filter into SQL.
func (r *CustomerRepository) ListActive(ctx context.Context, filter *model.SegmentFilter) ([]model.CustomerSnapshot, error) {
	query := `SELECT ` + customerColumns + ` FROM customers WHERE active`
	args := []any{}
	add := func(clause string, arg any) {
		args = append(args, arg)
		query += fmt.Sprintf(clause, len(args))
	}

	if filter != nil {
		if len(filter.Segments) > 0 {
			add(" AND lower(segment) = ANY($%d)", pq.Array(lowerAll(filter.Segments)))
		}
		if len(filter.Regions) > 0 {
			add(" AND lower(region) = ANY($%d)", pq.Array(lowerAll(filter.Regions)))
		}
		if len(filter.LoyaltyTiers) > 0 {
			add(" AND (loyalty_tier IS NULL OR lower(loyalty_tier) = ANY($%d))", pq.Array(lowerAll(filter.LoyaltyTiers)))
		}
		if filter.MinLifetimeValue != nil {
			add(" AND lifetime_value >= $%d", *filter.MinLifetimeValue)
		}
		if filter.MaxLifetimeValue != nil {
			add(" AND lifetime_value <= $%d", *filter.MaxLifetimeValue)
		}
	}
	query += " ORDER BY id"

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	customers := []model.CustomerSnapshot{}
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, err
		}
		customers = append(customers, c)
	}
	return customers, rows.Err()
}

func (r *CustomerRepository) Create(ctx context.Context, c *model.CustomerSnapshot) error {
	query := `
		INSERT INTO customers (name, phone, email, preferred_language, date_of_birth, created_at,
			last_interaction_at, segment, lifetime_value, loyalty_tier, loyalty_points, region, last_order_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id
	`
	return r.DB.QueryRowContext(ctx, query,
		c.Name, c.Phone, c.Email, c.PreferredLanguage, c.DateOfBirth, c.CreatedAt,
		c.LastInteractionAt, c.Segment, c.LifetimeValue, c.LoyaltyTier, c.LoyaltyPoints, c.Region, c.LastOrderAt,
	).Scan(&c.ID)
}

func lowerAll(values []string) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = strings.ToLower(v)
	}
	return out
}

var _ CustomerRepositoryInterface = (*CustomerRepository)(nil)
