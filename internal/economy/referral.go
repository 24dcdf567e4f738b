package economy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/flotilla-games/entitlement-service/internal/db/models"
	"github.com/flotilla-games/entitlement-service/internal/db/repositories"
	"github.com/flotilla-games/entitlement-service/internal/telemetry"
)

// ReferralBonusPurpose tags the pass vouchers minted by a claimed invitation.
const ReferralBonusPurpose = "referral_bonus"

// ReferralResult reports what an account-created event triggered.
type ReferralResult struct {
	Rewarded       bool   `json:"rewarded"`
	InvitationCode string `json:"invitation_code,omitempty"`
	ReferrerID     string `json:"referrer_id,omitempty"`
	Bonus          int    `json:"bonus,omitempty"`
}

// Referral pays both sides of a claimed invitation.
type Referral struct {
	vouchers  VoucherStore
	lifecycle *Lifecycle
	now       func() time.Time
}

// NewReferral creates a Referral orchestrator.
func NewReferral(vouchers VoucherStore, lifecycle *Lifecycle) *Referral {
	return &Referral{
		vouchers:  vouchers,
		lifecycle: lifecycle,
		now:       time.Now,
	}
}

// OnAccountCreated runs the referral flow for a new account: find the open
// invitation addressed to the signup contact, claim it atomically, then mint
// and immediately redeem one signup-bonus pass voucher for each side. The
// claim is the linearization point — concurrent events for the same contact
// race on it and exactly one proceeds to payout, so the flow is idempotent
// per contact even when the event is delivered more than once.
func (r *Referral) OnAccountCreated(ctx context.Context, newOwnerID, contact string) (*ReferralResult, error) {
	if contact == "" {
		return &ReferralResult{}, nil
	}

	inv, err := r.vouchers.FindOpenInvitation(ctx, contact)
	if err != nil {
		return nil, fmt.Errorf("failed to look up invitation: %w", err)
	}
	if inv == nil {
		// No open invitation. This owner may still hold a claimed one from an
		// earlier delivery whose payout failed after the claim committed.
		return r.resumeClaimed(ctx, newOwnerID, contact)
	}

	claimed, err := r.vouchers.ClaimInvitation(ctx, inv.Code, newOwnerID, r.now())
	if err != nil {
		return nil, fmt.Errorf("failed to claim invitation: %w", err)
	}
	if !claimed {
		// Another event got here first. If its winner was this same owner
		// (a redelivery racing itself), any unpaid side is finished here;
		// a different winner pays its own way.
		return r.resumeClaimed(ctx, newOwnerID, contact)
	}

	result := &ReferralResult{
		Rewarded:       true,
		InvitationCode: inv.Code,
		Bonus:          inv.SignupBonus,
	}
	if inv.IssuedBy != nil {
		result.ReferrerID = *inv.IssuedBy
	}

	if inv.SignupBonus <= 0 {
		return result, nil
	}

	for _, owner := range bonusRecipients(inv, newOwnerID) {
		if _, err := r.payBonus(ctx, owner, inv.Code, inv.SignupBonus); err != nil {
			// The invitation stays claimed: re-running the event must not
			// double-pay the side that already got its bonus. The retry lands
			// in resumeClaimed, which finishes the unpaid side.
			slog.Error("referral bonus payout failed",
				"owner_id", owner, "invitation", inv.Code, "error", err)
			return result, fmt.Errorf("failed to pay referral bonus: %w", err)
		}
	}

	telemetry.ReferralPayoutsTotal.Inc()
	slog.Info("referral invitation claimed and rewarded",
		"invitation", inv.Code, "referrer_id", result.ReferrerID,
		"new_owner_id", newOwnerID, "bonus", inv.SignupBonus)
	return result, nil
}

// resumeClaimed finishes the payout of an invitation this owner claimed on an
// earlier delivery. Both payBonus calls are replay-safe, so re-running them
// pays exactly the sides the failed attempt left unpaid. A fully paid claim
// replays as a no-op and reports rewarded=false.
func (r *Referral) resumeClaimed(ctx context.Context, newOwnerID, contact string) (*ReferralResult, error) {
	inv, err := r.vouchers.FindClaimedInvitation(ctx, contact, newOwnerID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up claimed invitation: %w", err)
	}
	if inv == nil || inv.SignupBonus <= 0 {
		return &ReferralResult{}, nil
	}

	paidNow := false
	for _, owner := range bonusRecipients(inv, newOwnerID) {
		paid, err := r.payBonus(ctx, owner, inv.Code, inv.SignupBonus)
		if err != nil {
			slog.Error("referral bonus payout retry failed",
				"owner_id", owner, "invitation", inv.Code, "error", err)
			return nil, fmt.Errorf("failed to pay referral bonus: %w", err)
		}
		paidNow = paidNow || paid
	}

	if !paidNow {
		return &ReferralResult{}, nil
	}

	result := &ReferralResult{
		Rewarded:       true,
		InvitationCode: inv.Code,
		Bonus:          inv.SignupBonus,
	}
	if inv.IssuedBy != nil {
		result.ReferrerID = *inv.IssuedBy
	}

	telemetry.ReferralPayoutsTotal.Inc()
	slog.Info("referral payout completed on retry",
		"invitation", inv.Code, "referrer_id", result.ReferrerID,
		"new_owner_id", newOwnerID, "bonus", inv.SignupBonus)
	return result, nil
}

// bonusRecipients lists the sides an invitation pays: the referrer (when the
// issuer is known) and the new account.
func bonusRecipients(inv *models.Voucher, newOwnerID string) []string {
	recipients := make([]string, 0, 2)
	if inv.IssuedBy != nil {
		recipients = append(recipients, *inv.IssuedBy)
	}
	return append(recipients, newOwnerID)
}

// payBonus mints a reserved pass voucher for one owner and redeems it on the
// spot. Reward tagging keys on the invitation code, so a replayed payout
// finds the existing voucher and redemption of an already-spent one is a
// no-op. The returned bool reports whether this call actually paid, as
// opposed to replaying a side that was already settled.
func (r *Referral) payBonus(ctx context.Context, ownerID, invitationCode string, bonus int) (bool, error) {
	owner := ownerID
	tag := "referral:" + invitationCode

	v, err := r.lifecycle.Issue(ctx, IssueParams{
		Kind:       PassKind,
		Uses:       bonus,
		Purpose:    ReferralBonusPurpose,
		CreatedFor: &owner,
		RewardFor:  &tag,
	})
	if err != nil {
		return false, err
	}

	_, err = r.lifecycle.Redeem(ctx, v.Code, ownerID)
	if errors.Is(err, repositories.ErrAlreadyRedeemed) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
