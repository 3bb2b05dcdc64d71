package scope

import (
	"context"
	"sync"

	"github.com/clinicore/clinic-platform/internal/models"
)

type contextKey string

const (
	holderKey    contextKey = "access_scope_holder"
	principalKey contextKey = "resolved_principal"
)

// Holder carries the access scope for one logical unit of work (one inbound
// request or one explicitly-scoped background task). Each unit of work gets
// its own holder, so concurrent requests never observe each other's scope
// even when the runtime reuses pooled goroutines.
//
// Set replaces the whole scope atomically; there is no partial mutation.
type Holder struct {
	mu    sync.RWMutex
	scope Scope
}

// NewHolder returns an empty holder. Reads before Set see the fail-closed
// zero scope.
func NewHolder() *Holder {
	return &Holder{}
}

// Set atomically replaces the held scope. Last write wins.
func (h *Holder) Set(s Scope) {
	h.mu.Lock()
	h.scope = s
	h.mu.Unlock()
}

// Clear resets the holder to the fail-closed zero scope.
func (h *Holder) Clear() {
	h.mu.Lock()
	h.scope = Scope{}
	h.mu.Unlock()
}

// Current returns the held scope.
func (h *Holder) Current() Scope {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.scope
}

// WithHolder installs a holder into the context.
func WithHolder(ctx context.Context, h *Holder) context.Context {
	return context.WithValue(ctx, holderKey, h)
}

// HolderFromContext returns the holder installed by the resolution
// middleware, or nil when the request never had one (public endpoints).
func HolderFromContext(ctx context.Context) *Holder {
	h, _ := ctx.Value(holderKey).(*Holder)
	return h
}

// FromContext returns the active scope. A context without a holder, or a
// holder that was cleared, yields the fail-closed zero scope.
func FromContext(ctx context.Context) Scope {
	if h := HolderFromContext(ctx); h != nil {
		return h.Current()
	}
	return Scope{}
}

// RunAs executes fn under an explicit scope, for background work that must
// run as a specific tenant. The holder is cleared before RunAs returns, so
// nothing after it retains the elevated scope.
func RunAs(ctx context.Context, s Scope, fn func(ctx context.Context) error) error {
	h := NewHolder()
	h.Set(s)
	defer h.Clear()
	return fn(WithHolder(ctx, h))
}

// WithPrincipal installs the resolved principal into the context so the
// audit trail can attach a user id to denials and bypasses.
func WithPrincipal(ctx context.Context, p *models.Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromContext returns the resolved principal, or nil for an
// unresolved request.
func PrincipalFromContext(ctx context.Context) *models.Principal {
	p, _ := ctx.Value(principalKey).(*models.Principal)
	return p
}
