package economy

import (
	"context"
	"time"

	"github.com/flotilla-games/entitlement-service/internal/db/models"
	"github.com/flotilla-games/entitlement-service/internal/db/repositories"
	"github.com/flotilla-games/entitlement-service/internal/policy"
)

// In-memory store fakes. Fields configure responses; call records let tests
// assert on what the services did.

type fakeEntitlements struct {
	grants      []*models.Entitlement
	grantsQueue [][]*models.Entitlement
	findErr     error

	balance    int
	balanceErr error

	decremented   []string
	decrementErrs []error

	consumed         []int
	consumeRemaining int
	consumeErr       error

	inserted []*models.Entitlement
}

func (f *fakeEntitlements) Insert(_ context.Context, e *models.Entitlement) error {
	f.inserted = append(f.inserted, e)
	return nil
}

func (f *fakeEntitlements) FindEraGrants(_ context.Context, _, _ string, _ time.Time) ([]*models.Entitlement, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	if len(f.grantsQueue) > 0 {
		g := f.grantsQueue[0]
		f.grantsQueue = f.grantsQueue[1:]
		return g, nil
	}
	return f.grants, nil
}

func (f *fakeEntitlements) PassBalance(_ context.Context, _ string, _ time.Time) (int, error) {
	return f.balance, f.balanceErr
}

func (f *fakeEntitlements) DecrementUse(_ context.Context, grantID string) error {
	f.decremented = append(f.decremented, grantID)
	if len(f.decrementErrs) > 0 {
		err := f.decrementErrs[0]
		f.decrementErrs = f.decrementErrs[1:]
		return err
	}
	return nil
}

func (f *fakeEntitlements) ConsumePasses(_ context.Context, _ string, need int, _ time.Time) (int, error) {
	f.consumed = append(f.consumed, need)
	if f.consumeErr != nil {
		return 0, f.consumeErr
	}
	return f.consumeRemaining, nil
}

type fakeVouchers struct {
	inserted  []*models.Voucher
	insertErr error
	// insertErrs, when set, is consumed one entry per Insert call; a nil
	// entry means that call succeeds.
	insertErrs []error

	byCode            map[string]*models.Voucher
	issuerRecipient   *models.Voucher
	rewardTags        map[string]*models.Voucher
	openInvitation    *models.Voucher
	claimedInvitation *models.Voucher

	redeemed  []string
	redeemErr error

	claims       []string
	claimResults []bool
	claimErr     error
}

func (f *fakeVouchers) Insert(_ context.Context, v *models.Voucher) error {
	if len(f.insertErrs) > 0 {
		err := f.insertErrs[0]
		f.insertErrs = f.insertErrs[1:]
		if err != nil {
			return err
		}
	} else if f.insertErr != nil {
		return f.insertErr
	}
	f.inserted = append(f.inserted, v)
	return nil
}

func (f *fakeVouchers) lookup(code string) *models.Voucher {
	if v, ok := f.byCode[code]; ok {
		return v
	}
	for _, v := range f.inserted {
		if v.Code == code {
			return v
		}
	}
	return nil
}

func (f *fakeVouchers) GetByCode(_ context.Context, code string) (*models.Voucher, error) {
	return f.lookup(code), nil
}

func (f *fakeVouchers) FindByIssuerAndRecipient(_ context.Context, _, _ string) (*models.Voucher, error) {
	return f.issuerRecipient, nil
}

func (f *fakeVouchers) FindByRewardTag(_ context.Context, createdFor, rewardFor string) (*models.Voucher, error) {
	if v, ok := f.rewardTags[createdFor+"|"+rewardFor]; ok {
		return v, nil
	}
	// Vouchers minted earlier in the same test count too.
	for _, v := range f.inserted {
		if v.CreatedFor != nil && *v.CreatedFor == createdFor &&
			v.RewardFor != nil && *v.RewardFor == rewardFor {
			return v, nil
		}
	}
	return nil, nil
}

func (f *fakeVouchers) FindOpenInvitation(_ context.Context, _ string) (*models.Voucher, error) {
	return f.openInvitation, nil
}

func (f *fakeVouchers) FindClaimedInvitation(_ context.Context, _, _ string) (*models.Voucher, error) {
	return f.claimedInvitation, nil
}

func (f *fakeVouchers) Redeem(_ context.Context, code, ownerID string, now time.Time) (*models.Entitlement, error) {
	f.redeemed = append(f.redeemed, code)
	if f.redeemErr != nil {
		return nil, f.redeemErr
	}
	v := f.lookup(code)
	if v == nil {
		return nil, repositories.ErrVoucherNotFound
	}
	if v.RedeemedAt != nil {
		return nil, repositories.ErrAlreadyRedeemed
	}
	redeemedAt := now
	v.RedeemedAt = &redeemedAt
	v.RedeemedBy = &ownerID

	ent := &models.Entitlement{
		ID:            "ent-" + code,
		OwnerID:       ownerID,
		Kind:          v.Kind,
		UsesRemaining: v.Uses,
		VoucherRef:    &v.Code,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if v.Kind == models.EntitlementKindPass {
		ent.Value = v.Purpose
	} else {
		ent.Value = v.Value
	}
	return ent, nil
}

func (f *fakeVouchers) ClaimInvitation(_ context.Context, code, _ string, _ time.Time) (bool, error) {
	f.claims = append(f.claims, code)
	if f.claimErr != nil {
		return false, f.claimErr
	}
	if len(f.claimResults) > 0 {
		r := f.claimResults[0]
		f.claimResults = f.claimResults[1:]
		return r, nil
	}
	return true, nil
}

type fakePolicies struct {
	units    map[string]policy.UnitPolicy
	fallback policy.UnitPolicy
}

func (f *fakePolicies) Get(unit string) policy.UnitPolicy {
	if p, ok := f.units[unit]; ok {
		return p
	}
	return f.fallback
}

func strptr(s string) *string { return &s }
