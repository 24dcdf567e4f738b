package economy

import (
	"context"
	"errors"
	"time"

	"github.com/flotilla-games/entitlement-service/internal/db/repositories"
	"github.com/flotilla-games/entitlement-service/internal/telemetry"
)

// maxConsumeAttempts bounds the re-resolve loop when a concurrent consumer
// exhausts the matched grant between resolve and decrement.
const maxConsumeAttempts = 3

// Receipt reports what one committed consumption cost.
type Receipt struct {
	Method Method `json:"method"`
	// Remaining is the pass balance after deduction, -1 when the winning
	// method costs nothing.
	Remaining int `json:"remaining"`
}

// Consumer commits entries into content units. It never trusts a cached
// decision: every attempt resolves fresh, and pass deduction happens in a
// single storage transaction.
type Consumer struct {
	resolver     *Resolver
	entitlements EntitlementStore
	cache        *ResolveCache
	now          func() time.Time
}

// NewConsumer creates a Consumer sharing the resolver's stores. cache may be
// nil.
func NewConsumer(resolver *Resolver, entitlements EntitlementStore, cache *ResolveCache) *Consumer {
	return &Consumer{
		resolver:     resolver,
		entitlements: entitlements,
		cache:        cache,
		now:          time.Now,
	}
}

// Consume authorizes and commits one entry for (owner, unit). Purchase and
// free entries cost nothing. A finite voucher grant is decremented by one; an
// unlimited grant is untouched. Pass entries deduct the unit's cost FIFO in
// one transaction. When a racing consumer drains the matched grant first, the
// attempt is retried from a fresh resolve up to maxConsumeAttempts times.
func (c *Consumer) Consume(ctx context.Context, ownerID, unit string) (*Receipt, error) {
	var lastErr error

	for attempt := 0; attempt < maxConsumeAttempts; attempt++ {
		d, err := c.resolver.resolveFresh(ctx, ownerID, unit)
		if err != nil {
			return nil, err
		}

		if !d.Authorized {
			if d.Method == MethodExclusive {
				return nil, ErrExclusiveLocked
			}
			return nil, repositories.ErrInsufficientBalance
		}

		switch d.Method {
		case MethodPurchase, MethodFree:
			telemetry.ConsumptionsTotal.WithLabelValues(string(d.Method)).Inc()
			return &Receipt{Method: d.Method, Remaining: -1}, nil

		case MethodVoucher:
			if d.GrantUnlimited {
				telemetry.ConsumptionsTotal.WithLabelValues(string(MethodVoucher)).Inc()
				return &Receipt{Method: MethodVoucher, Remaining: -1}, nil
			}
			err := c.entitlements.DecrementUse(ctx, d.GrantID)
			if errors.Is(err, repositories.ErrGrantExhausted) {
				// Lost the race on this grant; resolve again in case another
				// grant or method still authorizes the entry.
				lastErr = err
				continue
			}
			if err != nil {
				return nil, err
			}
			c.cache.Invalidate(ctx, ownerID, unit)
			telemetry.ConsumptionsTotal.WithLabelValues(string(MethodVoucher)).Inc()
			return &Receipt{Method: MethodVoucher, Remaining: -1}, nil

		case MethodPasses:
			remaining, err := c.entitlements.ConsumePasses(ctx, ownerID, d.Required, c.now())
			if errors.Is(err, repositories.ErrInsufficientBalance) {
				// Balance shrank between resolve and the locked deduction.
				return nil, err
			}
			if err != nil {
				return nil, err
			}
			c.cache.Invalidate(ctx, ownerID, unit)
			telemetry.ConsumptionsTotal.WithLabelValues(string(MethodPasses)).Inc()
			telemetry.PassesConsumedTotal.Add(float64(d.Required))
			return &Receipt{Method: MethodPasses, Remaining: remaining}, nil
		}
	}

	return nil, lastErr
}
