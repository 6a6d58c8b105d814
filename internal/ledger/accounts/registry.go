package accounts

import (
	"context"
	"fmt"
	"sync"
)

// Loader supplies the active chart of accounts for indexing.
type Loader interface {
	ListActive(ctx context.Context) ([]Account, error)
}

// Registry resolves accounts by role from an in-memory index. Resolve never
// fails for a missing role; the boolean lets callers apply their own
// degrade-gracefully policy instead of unwinding.
type Registry struct {
	mu     sync.RWMutex
	byRole map[Role]Account
	loader Loader
}

// NewRegistry constructs an empty registry; call Reload before first use.
func NewRegistry(loader Loader) *Registry {
	return &Registry{byRole: make(map[Role]Account), loader: loader}
}

// Reload rebuilds the role index from the active chart of accounts. A chart
// with two active accounts on the same role is rejected wholesale so the
// previous index keeps serving.
func (r *Registry) Reload(ctx context.Context) error {
	list, err := r.loader.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("accounts: reload registry: %w", err)
	}
	index := make(map[Role]Account, len(list))
	for _, account := range list {
		if account.Role == "" {
			continue
		}
		if existing, ok := index[account.Role]; ok {
			return fmt.Errorf("%w: %q held by %s and %s", ErrDuplicateRole, account.Role, existing.Code, account.Code)
		}
		index[account.Role] = account
	}
	r.mu.Lock()
	r.byRole = index
	r.mu.Unlock()
	return nil
}

// Resolve returns the active account for a role.
func (r *Registry) Resolve(role Role) (Account, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	account, ok := r.byRole[role]
	return account, ok
}

// Snapshot returns the current role index, for diagnostics.
func (r *Registry) Snapshot() map[Role]Account {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[Role]Account, len(r.byRole))
	for role, account := range r.byRole {
		out[role] = account
	}
	return out
}
