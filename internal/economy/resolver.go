// Package economy implements the core access and voucher semantics: the
// resolver (can this owner enter this content unit, and by which method), the
// consumption engine (commit one entry, deducting whatever the winning method
// costs), the voucher lifecycle (issue, redeem, find-or-issue), and the
// referral orchestrator. Services are stateless over injected stores; all
// mutation atomicity lives in the repository transactions.
package economy

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/flotilla-games/entitlement-service/internal/telemetry"
)

// Method names the rung of the priority chain that granted (or denied)
// access. The chain is strict: purchase > voucher > exclusive > passes > free.
type Method string

const (
	MethodPurchase Method = "purchase"
	MethodVoucher  Method = "voucher"
	MethodPasses   Method = "passes"
	MethodFree     Method = "free"
	// MethodExclusive is the denial rung: the unit admits only purchase or
	// voucher holders, so pass balance was never consulted.
	MethodExclusive Method = "exclusive"
	MethodNone      Method = "none"
)

// Denial reasons carried in Decision.Reason.
const (
	ReasonExclusive    = "requires_voucher"
	ReasonInsufficient = "insufficient_balance"
)

// Decision is the outcome of resolving one (owner, unit) pair. It is
// advisory: consumption re-derives everything inside a transaction and never
// trusts a Decision that crossed the cache.
type Decision struct {
	Authorized bool   `json:"authorized"`
	Method     Method `json:"method"`
	// Remaining is the owner's pass balance when passes decided the outcome,
	// -1 when passes were not consulted.
	Remaining int `json:"remaining"`
	// Required is the unit's pass cost, 0 when not relevant.
	Required int `json:"required"`
	// ExpiresAt is set when a time-boxed grant won.
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	// Reason explains a denial.
	Reason string `json:"reason,omitempty"`

	// GrantID and GrantUnlimited identify the matched voucher grant row for
	// the consumer. Never cached or exposed to clients.
	GrantID        string `json:"-"`
	GrantUnlimited bool   `json:"-"`
}

// Resolver answers access questions for (owner, unit) pairs.
type Resolver struct {
	entitlements EntitlementStore
	policies     PolicySource
	cache        *ResolveCache
	now          func() time.Time
}

// NewResolver creates a Resolver. cache may be nil.
func NewResolver(entitlements EntitlementStore, policies PolicySource, cache *ResolveCache) *Resolver {
	return &Resolver{
		entitlements: entitlements,
		policies:     policies,
		cache:        cache,
		now:          time.Now,
	}
}

// Resolve answers "may this owner enter this unit, and how" for read-only
// callers, serving from the bounded-staleness cache when possible.
func (r *Resolver) Resolve(ctx context.Context, ownerID, unit string) (*Decision, error) {
	if d, ok := r.cache.Get(ctx, ownerID, unit); ok {
		telemetry.ResolvesTotal.WithLabelValues(string(d.Method), strconv.FormatBool(d.Authorized)).Inc()
		return d, nil
	}

	d, err := r.resolveFresh(ctx, ownerID, unit)
	if err != nil {
		return nil, err
	}

	r.cache.Set(ctx, ownerID, unit, d)
	telemetry.ResolvesTotal.WithLabelValues(string(d.Method), strconv.FormatBool(d.Authorized)).Inc()
	return d, nil
}

// resolveFresh walks the priority chain against live storage. The consumer
// calls this directly so mutations never act on cached state.
func (r *Resolver) resolveFresh(ctx context.Context, ownerID, unit string) (*Decision, error) {
	now := r.now()

	grants, err := r.entitlements.FindEraGrants(ctx, ownerID, unit, now)
	if err != nil {
		return nil, fmt.Errorf("failed to look up era grants: %w", err)
	}

	// Purchases outrank everything and never expire or deplete.
	for _, g := range grants {
		if g.PurchaseRef != nil {
			return &Decision{Authorized: true, Method: MethodPurchase, Remaining: -1}, nil
		}
	}

	// Any remaining usable grant came from a voucher. Oldest first, so
	// consumption drains grants in acquisition order.
	if len(grants) > 0 {
		g := grants[0]
		return &Decision{
			Authorized:     true,
			Method:         MethodVoucher,
			Remaining:      -1,
			ExpiresAt:      g.ExpiresAt,
			GrantID:        g.ID,
			GrantUnlimited: g.Unlimited(),
		}, nil
	}

	pol := r.policies.Get(unit)

	if pol.Exclusive {
		return &Decision{
			Authorized: false,
			Method:     MethodExclusive,
			Remaining:  -1,
			Required:   pol.PassesRequired,
			Reason:     ReasonExclusive,
		}, nil
	}

	if pol.PassesRequired == 0 {
		return &Decision{Authorized: true, Method: MethodFree, Remaining: -1}, nil
	}

	balance, err := r.entitlements.PassBalance(ctx, ownerID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to look up pass balance: %w", err)
	}

	if balance >= pol.PassesRequired {
		return &Decision{
			Authorized: true,
			Method:     MethodPasses,
			Remaining:  balance,
			Required:   pol.PassesRequired,
		}, nil
	}

	return &Decision{
		Authorized: false,
		Method:     MethodNone,
		Remaining:  balance,
		Required:   pol.PassesRequired,
		Reason:     ReasonInsufficient,
	}, nil
}
