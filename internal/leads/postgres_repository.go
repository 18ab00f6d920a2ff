package leads

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// pgxQuerier is the pool surface the repository needs. Satisfied by
// *pgxpool.Pool and by pgxmock in tests.
type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository stores leads in the relational database. The
// relational copy is the durable audit record; conversation-time decisions
// read Redis, not this table.
type PostgresRepository struct {
	pool pgxQuerier
}

// NewPostgresRepository initializes a repo backed by pgxpool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	if pool == nil {
		panic("leads: pgx pool required")
	}
	return &PostgresRepository{pool: pool}
}

const leadColumns = `id, name, email, phone, address, postcode, project_type,
	project_description, timeline, budget_range, property_type,
	lead_score, lead_tier, source, channel, crm_contact_id, created_at, updated_at`

// Upsert inserts or updates the lead row keyed by phone. An unscored lead
// writes NULL for lead_score so set-ness survives the round trip.
func (r *PostgresRepository) Upsert(ctx context.Context, lead *Lead) error {
	if lead.ID == "" {
		lead.ID = uuid.NewString()
	}
	var score *int
	if lead.ScoreSet {
		score = &lead.Score
	}
	query := `
		INSERT INTO leads (id, name, email, phone, address, postcode, project_type,
			project_description, timeline, budget_range, property_type,
			lead_score, lead_tier, source, channel, crm_contact_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (phone) DO UPDATE SET
			name = EXCLUDED.name,
			email = CASE WHEN EXCLUDED.email = '' THEN leads.email ELSE EXCLUDED.email END,
			address = EXCLUDED.address,
			postcode = EXCLUDED.postcode,
			project_type = EXCLUDED.project_type,
			project_description = EXCLUDED.project_description,
			timeline = EXCLUDED.timeline,
			budget_range = EXCLUDED.budget_range,
			property_type = EXCLUDED.property_type,
			lead_score = COALESCE(EXCLUDED.lead_score, leads.lead_score),
			lead_tier = EXCLUDED.lead_tier,
			crm_contact_id = CASE WHEN EXCLUDED.crm_contact_id = '' THEN leads.crm_contact_id ELSE EXCLUDED.crm_contact_id END,
			updated_at = now()
	`
	if _, err := r.pool.Exec(ctx, query,
		lead.ID,
		lead.Name,
		lead.Email,
		lead.Phone,
		lead.Address,
		lead.Postcode,
		lead.ProjectType,
		lead.Description,
		lead.Timeline,
		lead.BudgetRange,
		lead.PropertyType,
		score,
		lead.Tier,
		lead.Source,
		lead.Channel,
		lead.CRMContactID,
	); err != nil {
		return fmt.Errorf("leads: upsert failed: %w", err)
	}
	return nil
}

// GetByPhone fetches the lead for a phone number.
func (r *PostgresRepository) GetByPhone(ctx context.Context, phone string) (*Lead, error) {
	query := fmt.Sprintf(`SELECT %s FROM leads WHERE phone = $1`, leadColumns)
	return r.scanLead(r.pool.QueryRow(ctx, query, phone))
}

// GetByID fetches a lead by id.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*Lead, error) {
	query := fmt.Sprintf(`SELECT %s FROM leads WHERE id = $1`, leadColumns)
	return r.scanLead(r.pool.QueryRow(ctx, query, id))
}

// List returns the most recently updated leads.
func (r *PostgresRepository) List(ctx context.Context, limit int) ([]*Lead, error) {
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf(`SELECT %s FROM leads ORDER BY updated_at DESC LIMIT $1`, leadColumns)
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("leads: list failed: %w", err)
	}
	defer rows.Close()

	var out []*Lead
	for rows.Next() {
		lead, err := r.scanLead(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, lead)
	}
	return out, rows.Err()
}

// Create inserts a directly submitted lead.
func (r *PostgresRepository) Create(ctx context.Context, req *CreateLeadRequest) (*Lead, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	id := uuid.New()
	query := `
		INSERT INTO leads (id, name, email, phone, source)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`
	var createdAt time.Time
	if err := r.pool.QueryRow(ctx, query,
		id,
		req.Name,
		req.Email,
		req.Phone,
		req.Source,
	).Scan(&createdAt); err != nil {
		return nil, fmt.Errorf("leads: insert failed: %w", err)
	}

	return &Lead{
		ID:        id.String(),
		Name:      req.Name,
		Email:     req.Email,
		Phone:     req.Phone,
		Source:    req.Source,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}, nil
}

func (r *PostgresRepository) scanLead(row pgx.Row) (*Lead, error) {
	var lead Lead
	var score *int
	if err := row.Scan(
		&lead.ID,
		&lead.Name,
		&lead.Email,
		&lead.Phone,
		&lead.Address,
		&lead.Postcode,
		&lead.ProjectType,
		&lead.Description,
		&lead.Timeline,
		&lead.BudgetRange,
		&lead.PropertyType,
		&score,
		&lead.Tier,
		&lead.Source,
		&lead.Channel,
		&lead.CRMContactID,
		&lead.CreatedAt,
		&lead.UpdatedAt,
	); err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrLeadNotFound
		}
		return nil, fmt.Errorf("leads: select failed: %w", err)
	}
	if score != nil {
		lead.Score = *score
		lead.ScoreSet = true
	}
	return &lead, nil
}

var _ Repository = (*PostgresRepository)(nil)
