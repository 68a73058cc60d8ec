package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/plexica/plexica-sub002/internal/domain"
)

// SlugAvailability answers a slug pre-check.
type SlugAvailability struct {
	Slug      string
	Valid     bool
	Available bool
}

// UniquenessGuard gives tenant slugs one-winner semantics. Claim is the only
// correctness mechanism: it inserts and lets the store's unique constraint
// pick the winner. Check is an advisory pre-check and may be stale by the
// time the caller acts on it.
type UniquenessGuard struct {
	repo domain.TenantRepository
}

// NewUniquenessGuard returns a guard over repo.
func NewUniquenessGuard(repo domain.TenantRepository) *UniquenessGuard {
	return &UniquenessGuard{repo: repo}
}

// Claim inserts t. Every losing racer gets a *domain.ConflictError.
func (g *UniquenessGuard) Claim(ctx context.Context, t domain.Tenant) error {
	err := g.repo.Create(ctx, t)
	if err == nil {
		return nil
	}

	var conflict *domain.ConflictError
	if errors.As(err, &conflict) {
		return &domain.ConflictError{Resource: "tenant", Key: t.Slug}
	}
	return fmt.Errorf("creating tenant: %w", err)
}

// Check reports whether slug is well-formed and currently unused.
func (g *UniquenessGuard) Check(ctx context.Context, slug string) (SlugAvailability, error) {
	out := SlugAvailability{Slug: slug, Valid: domain.ValidSlug(slug)}
	if !out.Valid {
		return out, nil
	}

	_, err := g.repo.GetBySlug(ctx, slug)
	switch {
	case errors.Is(err, domain.ErrTenantNotFound):
		out.Available = true
	case err != nil:
		return SlugAvailability{}, fmt.Errorf("checking slug %q: %w", slug, err)
	}
	return out, nil
}
