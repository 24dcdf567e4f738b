package economy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flotilla-games/entitlement-service/internal/db/models"
)

func newTestReferral(vs *fakeVouchers) *Referral {
	return NewReferral(vs, NewLifecycle(vs, nil))
}

func invitation(code, referrer string, bonus int) *models.Voucher {
	return &models.Voucher{
		Code:        code,
		Kind:        models.EntitlementKindPass,
		Value:       PassKind,
		Uses:        5,
		Purpose:     "invite",
		IssuedBy:    &referrer,
		AddressedTo: strptr("friend@example.com"),
		SignupBonus: bonus,
	}
}

func TestOnAccountCreated_NoContact(t *testing.T) {
	vs := &fakeVouchers{}
	r := newTestReferral(vs)

	res, err := r.OnAccountCreated(context.Background(), "new-1", "")
	require.NoError(t, err)
	assert.False(t, res.Rewarded)
	assert.Empty(t, vs.claims)
}

func TestOnAccountCreated_NoInvitation(t *testing.T) {
	vs := &fakeVouchers{}
	r := newTestReferral(vs)

	res, err := r.OnAccountCreated(context.Background(), "new-1", "friend@example.com")
	require.NoError(t, err)
	assert.False(t, res.Rewarded)
	assert.Empty(t, vs.claims)
}

func TestOnAccountCreated_ClaimLostRace(t *testing.T) {
	vs := &fakeVouchers{
		openInvitation: invitation("pass-5-inv", "referrer-1", 5),
		claimResults:   []bool{false},
	}
	r := newTestReferral(vs)

	res, err := r.OnAccountCreated(context.Background(), "new-1", "friend@example.com")
	require.NoError(t, err)
	assert.False(t, res.Rewarded)
	// The losing event must not mint anything.
	assert.Empty(t, vs.inserted)
}

func TestOnAccountCreated_PaysBothSides(t *testing.T) {
	vs := &fakeVouchers{openInvitation: invitation("pass-5-inv", "referrer-1", 5)}
	r := newTestReferral(vs)

	res, err := r.OnAccountCreated(context.Background(), "new-1", "friend@example.com")
	require.NoError(t, err)

	assert.True(t, res.Rewarded)
	assert.Equal(t, "pass-5-inv", res.InvitationCode)
	assert.Equal(t, "referrer-1", res.ReferrerID)
	assert.Equal(t, 5, res.Bonus)

	// Claim happened before any payout.
	assert.Equal(t, []string{"pass-5-inv"}, vs.claims)

	// One bonus voucher per side, reserved for its recipient, and redeemed.
	require.Len(t, vs.inserted, 2)
	recipients := []string{*vs.inserted[0].CreatedFor, *vs.inserted[1].CreatedFor}
	assert.ElementsMatch(t, []string{"referrer-1", "new-1"}, recipients)
	for _, v := range vs.inserted {
		assert.Equal(t, ReferralBonusPurpose, v.Purpose)
		assert.Equal(t, 5, v.Uses)
		require.NotNil(t, v.RewardFor)
		assert.Equal(t, "referral:pass-5-inv", *v.RewardFor)
	}
	assert.Len(t, vs.redeemed, 2)
}

func TestOnAccountCreated_ZeroBonusClaimsWithoutPayout(t *testing.T) {
	vs := &fakeVouchers{openInvitation: invitation("pass-5-inv", "referrer-1", 0)}
	r := newTestReferral(vs)

	res, err := r.OnAccountCreated(context.Background(), "new-1", "friend@example.com")
	require.NoError(t, err)
	assert.True(t, res.Rewarded)
	assert.Equal(t, []string{"pass-5-inv"}, vs.claims)
	assert.Empty(t, vs.inserted)
}

func TestOnAccountCreated_InsertFailureSurfaces(t *testing.T) {
	vs := &fakeVouchers{
		openInvitation: invitation("pass-5-inv", "referrer-1", 5),
		insertErr:      assert.AnError,
	}
	r := newTestReferral(vs)

	res, err := r.OnAccountCreated(context.Background(), "new-1", "friend@example.com")
	assert.Error(t, err)
	// The claim already happened; the result still reports it.
	require.NotNil(t, res)
	assert.True(t, res.Rewarded)
}

func TestOnAccountCreated_RetryFinishesPartialPayout(t *testing.T) {
	inv := invitation("pass-5-inv", "referrer-1", 5)
	vs := &fakeVouchers{
		openInvitation: inv,
		// Referrer's bonus voucher persists; the new account's insert fails.
		insertErrs: []error{nil, assert.AnError},
	}
	r := newTestReferral(vs)

	_, err := r.OnAccountCreated(context.Background(), "new-1", "friend@example.com")
	require.Error(t, err)
	require.Len(t, vs.inserted, 1)
	assert.Equal(t, "referrer-1", *vs.inserted[0].CreatedFor)

	// The platform redelivers the event. The invitation is no longer open,
	// only claimed by this owner.
	vs.openInvitation = nil
	vs.claimedInvitation = inv

	res, err := r.OnAccountCreated(context.Background(), "new-1", "friend@example.com")
	require.NoError(t, err)
	assert.True(t, res.Rewarded)
	assert.Equal(t, "pass-5-inv", res.InvitationCode)
	assert.Equal(t, "referrer-1", res.ReferrerID)
	assert.Equal(t, 5, res.Bonus)

	// Exactly one voucher per side across both deliveries, each redeemed by
	// its recipient; the referrer's was not paid a second time.
	require.Len(t, vs.inserted, 2)
	recipients := []string{*vs.inserted[0].CreatedFor, *vs.inserted[1].CreatedFor}
	assert.ElementsMatch(t, []string{"referrer-1", "new-1"}, recipients)
	for _, v := range vs.inserted {
		require.NotNil(t, v.RedeemedAt)
		assert.Equal(t, *v.CreatedFor, *v.RedeemedBy)
	}
}

func TestOnAccountCreated_ReplayAfterFullPayoutIsNoOp(t *testing.T) {
	inv := invitation("pass-5-inv", "referrer-1", 5)
	vs := &fakeVouchers{openInvitation: inv}
	r := newTestReferral(vs)

	res, err := r.OnAccountCreated(context.Background(), "new-1", "friend@example.com")
	require.NoError(t, err)
	require.True(t, res.Rewarded)
	require.Len(t, vs.inserted, 2)

	vs.openInvitation = nil
	vs.claimedInvitation = inv

	res, err = r.OnAccountCreated(context.Background(), "new-1", "friend@example.com")
	require.NoError(t, err)
	assert.False(t, res.Rewarded)
	assert.Len(t, vs.inserted, 2)
}

func TestOnAccountCreated_LostRaceToAnotherOwnerPaysNothing(t *testing.T) {
	inv := invitation("pass-5-inv", "referrer-1", 5)
	vs := &fakeVouchers{
		openInvitation: inv,
		claimResults:   []bool{false},
		// The winning claim belongs to a different account, so the lookup by
		// (contact, this owner) comes back empty.
		claimedInvitation: nil,
	}
	r := newTestReferral(vs)

	res, err := r.OnAccountCreated(context.Background(), "new-2", "friend@example.com")
	require.NoError(t, err)
	assert.False(t, res.Rewarded)
	assert.Empty(t, vs.inserted)
}
