package leads

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for lead storage keyed by phone number.
type Repository interface {
	Upsert(ctx context.Context, lead *Lead) error
	GetByPhone(ctx context.Context, phone string) (*Lead, error)
	GetByID(ctx context.Context, id string) (*Lead, error)
	List(ctx context.Context, limit int) ([]*Lead, error)
	Create(ctx context.Context, req *CreateLeadRequest) (*Lead, error)
}

// InMemoryRepository is a Repository backed by a map, used in development
// and tests.
type InMemoryRepository struct {
	mu      sync.RWMutex
	byID    map[string]*Lead
	byPhone map[string]string
}

// NewInMemoryRepository creates a new in-memory repository
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		byID:    make(map[string]*Lead),
		byPhone: make(map[string]string),
	}
}

// Upsert stores the lead, keyed by phone when present.
func (r *InMemoryRepository) Upsert(ctx context.Context, lead *Lead) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if lead.ID == "" {
		if existingID, ok := r.byPhone[lead.Phone]; ok {
			lead.ID = existingID
		} else {
			lead.ID = uuid.NewString()
		}
	}
	clone := *lead
	r.byID[lead.ID] = &clone
	if lead.Phone != "" {
		r.byPhone[lead.Phone] = lead.ID
	}
	return nil
}

// GetByPhone retrieves a lead by phone number.
func (r *InMemoryRepository) GetByPhone(ctx context.Context, phone string) (*Lead, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byPhone[phone]
	if !ok {
		return nil, ErrLeadNotFound
	}
	clone := *r.byID[id]
	return &clone, nil
}

// GetByID retrieves a lead by ID
func (r *InMemoryRepository) GetByID(ctx context.Context, id string) (*Lead, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	lead, ok := r.byID[id]
	if !ok {
		return nil, ErrLeadNotFound
	}
	clone := *lead
	return &clone, nil
}

// List returns up to limit leads, most recently updated first not
// guaranteed; callers needing ordering should use the relational repo.
func (r *InMemoryRepository) List(ctx context.Context, limit int) ([]*Lead, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Lead, 0, len(r.byID))
	for _, lead := range r.byID {
		clone := *lead
		out = append(out, &clone)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// Create registers a lead from a direct submission.
func (r *InMemoryRepository) Create(ctx context.Context, req *CreateLeadRequest) (*Lead, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	lead := &Lead{
		ID:        uuid.NewString(),
		Name:      req.Name,
		Email:     req.Email,
		Phone:     req.Phone,
		Source:    req.Source,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	if err := r.Upsert(ctx, lead); err != nil {
		return nil, err
	}
	return lead, nil
}

var _ Repository = (*InMemoryRepository)(nil)
