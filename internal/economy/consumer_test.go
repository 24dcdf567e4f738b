package economy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flotilla-games/entitlement-service/internal/db/models"
	"github.com/flotilla-games/entitlement-service/internal/db/repositories"
	"github.com/flotilla-games/entitlement-service/internal/policy"
)

func newTestConsumer(ents *fakeEntitlements, pols *fakePolicies) *Consumer {
	return NewConsumer(NewResolver(ents, pols, nil), ents, nil)
}

func TestConsume_PurchaseCostsNothing(t *testing.T) {
	ents := &fakeEntitlements{grants: []*models.Entitlement{
		{ID: "p", UsesRemaining: models.UnlimitedUses, PurchaseRef: strptr("order-1")},
	}}
	c := newTestConsumer(ents, &fakePolicies{})

	rec, err := c.Consume(context.Background(), "owner-1", "pirates")
	require.NoError(t, err)
	assert.Equal(t, MethodPurchase, rec.Method)
	assert.Empty(t, ents.decremented)
	assert.Empty(t, ents.consumed)
}

func TestConsume_FreeCostsNothing(t *testing.T) {
	ents := &fakeEntitlements{}
	pols := &fakePolicies{fallback: policy.UnitPolicy{PassesRequired: 0}}
	c := newTestConsumer(ents, pols)

	rec, err := c.Consume(context.Background(), "owner-1", "golden_age")
	require.NoError(t, err)
	assert.Equal(t, MethodFree, rec.Method)
	assert.Empty(t, ents.decremented)
}

func TestConsume_FiniteVoucherDecrements(t *testing.T) {
	ents := &fakeEntitlements{grants: []*models.Entitlement{
		{ID: "v1", UsesRemaining: 2, VoucherRef: strptr("pass-2-x")},
	}}
	c := newTestConsumer(ents, &fakePolicies{})

	rec, err := c.Consume(context.Background(), "owner-1", "pirates")
	require.NoError(t, err)
	assert.Equal(t, MethodVoucher, rec.Method)
	assert.Equal(t, []string{"v1"}, ents.decremented)
}

func TestConsume_UnlimitedVoucherUntouched(t *testing.T) {
	ents := &fakeEntitlements{grants: []*models.Entitlement{
		{ID: "v1", UsesRemaining: models.UnlimitedUses, VoucherRef: strptr("pirates-days7-x")},
	}}
	c := newTestConsumer(ents, &fakePolicies{})

	rec, err := c.Consume(context.Background(), "owner-1", "pirates")
	require.NoError(t, err)
	assert.Equal(t, MethodVoucher, rec.Method)
	assert.Empty(t, ents.decremented)
}

func TestConsume_RetriesOnExhaustedGrant(t *testing.T) {
	// First resolve matches v1, which a racing consumer drains; the retry
	// resolves v2 and succeeds.
	ents := &fakeEntitlements{
		grantsQueue: [][]*models.Entitlement{
			{{ID: "v1", UsesRemaining: 1, VoucherRef: strptr("a")}},
			{{ID: "v2", UsesRemaining: 1, VoucherRef: strptr("b")}},
		},
		decrementErrs: []error{repositories.ErrGrantExhausted},
	}
	c := newTestConsumer(ents, &fakePolicies{})

	rec, err := c.Consume(context.Background(), "owner-1", "pirates")
	require.NoError(t, err)
	assert.Equal(t, MethodVoucher, rec.Method)
	assert.Equal(t, []string{"v1", "v2"}, ents.decremented)
}

func TestConsume_GivesUpAfterBoundedRetries(t *testing.T) {
	ents := &fakeEntitlements{
		grants: []*models.Entitlement{{ID: "v1", UsesRemaining: 1, VoucherRef: strptr("a")}},
		decrementErrs: []error{
			repositories.ErrGrantExhausted,
			repositories.ErrGrantExhausted,
			repositories.ErrGrantExhausted,
		},
	}
	c := newTestConsumer(ents, &fakePolicies{})

	_, err := c.Consume(context.Background(), "owner-1", "pirates")
	assert.ErrorIs(t, err, repositories.ErrGrantExhausted)
	assert.Len(t, ents.decremented, maxConsumeAttempts)
}

func TestConsume_PassesDeductRequiredAmount(t *testing.T) {
	ents := &fakeEntitlements{balance: 5, consumeRemaining: 3}
	pols := &fakePolicies{fallback: policy.UnitPolicy{PassesRequired: 2}}
	c := newTestConsumer(ents, pols)

	rec, err := c.Consume(context.Background(), "owner-1", "pirates")
	require.NoError(t, err)
	assert.Equal(t, MethodPasses, rec.Method)
	assert.Equal(t, 3, rec.Remaining)
	assert.Equal(t, []int{2}, ents.consumed)
}

func TestConsume_ExclusiveLocked(t *testing.T) {
	ents := &fakeEntitlements{balance: 100}
	pols := &fakePolicies{fallback: policy.UnitPolicy{PassesRequired: 1, Exclusive: true}}
	c := newTestConsumer(ents, pols)

	_, err := c.Consume(context.Background(), "owner-1", "founders")
	assert.ErrorIs(t, err, ErrExclusiveLocked)
}

func TestConsume_InsufficientBalance(t *testing.T) {
	ents := &fakeEntitlements{balance: 1}
	pols := &fakePolicies{fallback: policy.UnitPolicy{PassesRequired: 2}}
	c := newTestConsumer(ents, pols)

	_, err := c.Consume(context.Background(), "owner-1", "pirates")
	assert.ErrorIs(t, err, repositories.ErrInsufficientBalance)
	assert.Empty(t, ents.consumed)
}

func TestConsume_BalanceShrankUnderLock(t *testing.T) {
	// Resolve saw enough balance, but the locked deduction found less.
	ents := &fakeEntitlements{balance: 5, consumeErr: repositories.ErrInsufficientBalance}
	pols := &fakePolicies{fallback: policy.UnitPolicy{PassesRequired: 2}}
	c := newTestConsumer(ents, pols)

	_, err := c.Consume(context.Background(), "owner-1", "pirates")
	assert.ErrorIs(t, err, repositories.ErrInsufficientBalance)
}
