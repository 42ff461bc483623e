// Package registry implements the cross-chain grant-tracking registry:
// CRUD over grant records with schema-validated metadata. Identity fields
// (id, owner, chain) are immutable after creation; the rest may change, each
// change bumping the record's revision.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	ErrGrantNotFound  = errors.New("grant not found")
	ErrImmutableField = errors.New("immutable field changed")
)

// Grant is one tracked grant record.
type Grant struct {
	ID        string          `json:"id"`
	Owner     string          `json:"owner"`
	ChainID   string          `json:"chain_id"`
	Recipient string          `json:"recipient"`
	Title     string          `json:"title"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	Revision  int             `json:"revision"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Store persists grant records.
type Store interface {
	Create(ctx context.Context, g *Grant) error
	Get(ctx context.Context, id string) (*Grant, error)
	Update(ctx context.Context, g *Grant) error
	List(ctx context.Context, limit int) ([]*Grant, error)
	Delete(ctx context.Context, id string) error
}

// Registry is the service layer: it assigns identities, validates metadata,
// and enforces field immutability before delegating persistence to a Store.
type Registry struct {
	store     Store
	validator *MetadataValidator
	clock     func() time.Time
}

// NewRegistry creates a registry over the given store.
func NewRegistry(store Store) (*Registry, error) {
	v, err := NewMetadataValidator()
	if err != nil {
		return nil, err
	}
	return &Registry{store: store, validator: v, clock: time.Now}, nil
}

// WithClock overrides the clock for testing.
func (r *Registry) WithClock(clock func() time.Time) *Registry {
	r.clock = clock
	return r
}

// Create registers a new grant. ID, revision, and timestamps are assigned
// here; the caller supplies owner, chain, recipient, title, and metadata.
func (r *Registry) Create(ctx context.Context, g *Grant) (*Grant, error) {
	if g.Owner == "" || g.ChainID == "" || g.Title == "" {
		return nil, errors.New("owner, chain_id, and title are required")
	}
	if len(g.Metadata) > 0 {
		if err := r.validator.Validate(g.Metadata); err != nil {
			return nil, err
		}
	}
	now := r.clock().UTC()
	created := *g
	created.ID = uuid.NewString()
	created.Revision = 1
	created.CreatedAt = now
	created.UpdatedAt = now
	if err := r.store.Create(ctx, &created); err != nil {
		return nil, fmt.Errorf("failed to persist grant: %w", err)
	}
	return &created, nil
}

// Get fetches a grant by id.
func (r *Registry) Get(ctx context.Context, id string) (*Grant, error) {
	return r.store.Get(ctx, id)
}

// List returns up to limit grants, newest first.
func (r *Registry) List(ctx context.Context, limit int) ([]*Grant, error) {
	return r.store.List(ctx, limit)
}

// Update applies mutable-field changes. Owner and chain are fixed at
// creation; an update naming different values fails with ErrImmutableField.
func (r *Registry) Update(ctx context.Context, g *Grant) (*Grant, error) {
	existing, err := r.store.Get(ctx, g.ID)
	if err != nil {
		return nil, err
	}
	if g.Owner != "" && g.Owner != existing.Owner {
		return nil, fmt.Errorf("%w: owner", ErrImmutableField)
	}
	if g.ChainID != "" && g.ChainID != existing.ChainID {
		return nil, fmt.Errorf("%w: chain_id", ErrImmutableField)
	}
	if len(g.Metadata) > 0 {
		if err := r.validator.Validate(g.Metadata); err != nil {
			return nil, err
		}
		existing.Metadata = g.Metadata
	}
	if g.Title != "" {
		existing.Title = g.Title
	}
	if g.Recipient != "" {
		existing.Recipient = g.Recipient
	}
	existing.Revision++
	existing.UpdatedAt = r.clock().UTC()
	if err := r.store.Update(ctx, existing); err != nil {
		return nil, fmt.Errorf("failed to persist update: %w", err)
	}
	return existing, nil
}

// Delete removes a grant record.
func (r *Registry) Delete(ctx context.Context, id string) error {
	return r.store.Delete(ctx, id)
}
