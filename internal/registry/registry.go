// Package registry answers the two questions the engine asks before
// matching: does this bond exist and trade, and does this user exist.
// Lookups read through a short TTL cache so the hot path rarely touches
// the store.
package registry

import (
	"context"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/tejuiceB/FractionFi/internal/common"
	"github.com/tejuiceB/FractionFi/internal/store"
)

const (
	defaultTTL      = 30 * time.Second
	cleanupInterval = 5 * time.Minute
)

type Registry struct {
	store store.Store
	bonds *gocache.Cache
	users *gocache.Cache
}

func New(st store.Store) *Registry {
	return &Registry{
		store: st,
		bonds: gocache.New(defaultTTL, cleanupInterval),
		users: gocache.New(defaultTTL, cleanupInterval),
	}
}

// Bond resolves a bond ID, failing with ErrUnknownInstrument when the
// bond does not exist. Tradability is the caller's check; the registry
// only resolves.
func (r *Registry) Bond(ctx context.Context, id string) (*common.Bond, error) {
	if cached, ok := r.bonds.Get(id); ok {
		return cached.(*common.Bond), nil
	}
	bond, err := r.store.Bond(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("lookup bond %s: %w", id, err)
	}
	if bond == nil {
		return nil, fmt.Errorf("bond %s: %w", id, common.ErrUnknownInstrument)
	}
	r.bonds.Set(id, bond, gocache.DefaultExpiration)
	return bond, nil
}

// User resolves a user ID, failing with ErrUnknownUser when absent.
func (r *Registry) User(ctx context.Context, id string) (*common.User, error) {
	if cached, ok := r.users.Get(id); ok {
		return cached.(*common.User), nil
	}
	user, err := r.store.User(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("lookup user %s: %w", id, err)
	}
	if user == nil {
		return nil, fmt.Errorf("user %s: %w", id, common.ErrUnknownUser)
	}
	r.users.Set(id, user, gocache.DefaultExpiration)
	return user, nil
}

// Invalidate drops a bond from the cache, for when its lifecycle
// changes out of band (e.g. activation or maturity).
func (r *Registry) Invalidate(bondID string) {
	r.bonds.Delete(bondID)
}
