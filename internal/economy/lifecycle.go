package economy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/flotilla-games/entitlement-service/internal/db/models"
	"github.com/flotilla-games/entitlement-service/internal/db/repositories"
	"github.com/flotilla-games/entitlement-service/internal/telemetry"
	"github.com/flotilla-games/entitlement-service/internal/vouchercode"
)

// PassKind is the codec type part for consumable pass vouchers; anything else
// is a content-unit identifier.
const PassKind = "pass"

// IssueParams describes a voucher to mint. Exactly one of Uses/Duration must
// be positive, mirroring the codec grammar.
type IssueParams struct {
	// Kind is PassKind or a content-unit id.
	Kind     string
	Uses     int
	Duration time.Duration
	// Purpose tags why the voucher exists (invite, promo, referral_bonus,
	// achievement reward, ...).
	Purpose     string
	IssuedBy    *string
	AddressedTo *string
	// CreatedFor reserves redemption for one owner.
	CreatedFor *string
	// RewardFor de-duplicates reward issuance: at most one voucher ever
	// exists per (CreatedFor, RewardFor) pair.
	RewardFor   *string
	SignupBonus int
	// ExpiresAt is an optional redemption deadline.
	ExpiresAt *time.Time
}

// FindOrIssue statuses.
const (
	InviteStatusCreated         = "created"
	InviteStatusReused          = "reused"
	InviteStatusAlreadyRedeemed = "already_redeemed"
)

// Lifecycle manages vouchers from issuance to their terminal redeemed state.
type Lifecycle struct {
	vouchers VoucherStore
	cache    *ResolveCache
	now      func() time.Time
}

// NewLifecycle creates a Lifecycle. cache may be nil.
func NewLifecycle(vouchers VoucherStore, cache *ResolveCache) *Lifecycle {
	return &Lifecycle{
		vouchers: vouchers,
		cache:    cache,
		now:      time.Now,
	}
}

// Issue mints and persists a voucher. The grant shape is validated by
// encoding it; a malformed IssueParams surfaces as ErrInvalidFormat before
// anything is written. Reward-tagged issuance is idempotent: an existing
// voucher for the same (CreatedFor, RewardFor) pair is returned instead of
// minting a second one.
func (l *Lifecycle) Issue(ctx context.Context, p IssueParams) (*models.Voucher, error) {
	if p.Uses == 0 && p.Duration > 0 {
		p.Uses = models.UnlimitedUses
	}

	code, err := vouchercode.Encode(vouchercode.Grant{
		Kind:     p.Kind,
		Uses:     p.Uses,
		Duration: p.Duration,
		ID:       uuid.NewString(),
	})
	if err != nil {
		return nil, err
	}

	if p.RewardFor != nil && p.CreatedFor != nil {
		existing, err := l.vouchers.FindByRewardTag(ctx, *p.CreatedFor, *p.RewardFor)
		if err != nil {
			return nil, fmt.Errorf("failed to check reward tag: %w", err)
		}
		if existing != nil {
			return existing, nil
		}
	}

	kind := models.EntitlementKindEra
	value := p.Kind
	if p.Kind == PassKind {
		kind = models.EntitlementKindPass
		value = PassKind
	}

	v := &models.Voucher{
		Code:        code,
		Kind:        kind,
		Value:       value,
		Uses:        p.Uses,
		DurationMS:  p.Duration.Milliseconds(),
		Purpose:     p.Purpose,
		IssuedBy:    p.IssuedBy,
		AddressedTo: p.AddressedTo,
		CreatedFor:  p.CreatedFor,
		RewardFor:   p.RewardFor,
		SignupBonus: p.SignupBonus,
		ExpiresAt:   p.ExpiresAt,
	}

	if err := l.vouchers.Insert(ctx, v); err != nil {
		return nil, fmt.Errorf("failed to persist voucher: %w", err)
	}

	telemetry.VouchersIssuedTotal.WithLabelValues(p.Purpose).Inc()
	return v, nil
}

// Redeem converts a voucher code into an entitlement for ownerID. The code
// must decode before storage is consulted; the redemption itself is the
// repository's transaction. A successful redemption invalidates the owner's
// cached resolve decision for the granted unit.
func (l *Lifecycle) Redeem(ctx context.Context, code, ownerID string) (*models.Entitlement, error) {
	if _, err := vouchercode.Decode(code); err != nil {
		telemetry.RedemptionFailuresTotal.WithLabelValues("invalid_format").Inc()
		return nil, err
	}

	ent, err := l.vouchers.Redeem(ctx, code, ownerID, l.now())
	if err != nil {
		telemetry.RedemptionFailuresTotal.WithLabelValues(redemptionFailureReason(err)).Inc()
		return nil, err
	}

	if ent.Kind == models.EntitlementKindEra {
		l.cache.Invalidate(ctx, ownerID, ent.Value)
	}

	telemetry.VouchersRedeemedTotal.WithLabelValues(string(ent.Kind)).Inc()
	return ent, nil
}

// Preflight reports a voucher's current status without mutating anything:
// the decoded grant plus whether the voucher exists, is redeemed, or expired.
func (l *Lifecycle) Preflight(ctx context.Context, code string) (*models.Voucher, vouchercode.Grant, error) {
	g, err := vouchercode.Decode(code)
	if err != nil {
		return nil, vouchercode.Grant{}, err
	}

	v, err := l.vouchers.GetByCode(ctx, code)
	if err != nil {
		return nil, g, fmt.Errorf("failed to look up voucher: %w", err)
	}
	if v == nil {
		return nil, g, repositories.ErrVoucherNotFound
	}

	return v, g, nil
}

// FindOrIssue returns the issuer's existing invitation for a contact, or
// mints a new one. The status reports which happened: an open invitation is
// reused, a spent one is reported as already redeemed (no re-issue), and
// otherwise a fresh voucher is created.
func (l *Lifecycle) FindOrIssue(ctx context.Context, issuerID, contact string, p IssueParams) (*models.Voucher, string, error) {
	existing, err := l.vouchers.FindByIssuerAndRecipient(ctx, issuerID, contact)
	if err != nil {
		return nil, "", fmt.Errorf("failed to look up existing invitation: %w", err)
	}
	if existing != nil {
		if existing.Redeemed() {
			return existing, InviteStatusAlreadyRedeemed, nil
		}
		return existing, InviteStatusReused, nil
	}

	p.IssuedBy = &issuerID
	p.AddressedTo = &contact

	v, err := l.Issue(ctx, p)
	if err != nil {
		return nil, "", err
	}
	return v, InviteStatusCreated, nil
}

// redemptionFailureReason maps storage sentinels onto metric labels. The
// label set is closed to keep cardinality bounded.
func redemptionFailureReason(err error) string {
	switch {
	case errors.Is(err, repositories.ErrVoucherNotFound):
		return "not_found"
	case errors.Is(err, repositories.ErrAlreadyRedeemed):
		return "already_redeemed"
	case errors.Is(err, repositories.ErrExpired):
		return "expired"
	case errors.Is(err, repositories.ErrPermissionDenied):
		return "permission_denied"
	default:
		return "storage_error"
	}
}
