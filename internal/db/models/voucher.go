package models

import "time"

// Voucher represents an issuable, redeemable grant code. A voucher is never
// deleted; redemption state is permanent history. The lifecycle is
// Issued → Redeemed (terminal), guarded by ownership and expiry checks at
// redemption time.
//
// Exactly one of Uses/DurationMS is meaningful: a use-count voucher has
// Uses > 0 and DurationMS = 0; a time-boxed voucher has Uses = UnlimitedUses
// and DurationMS > 0. The absolute validity window of a time-boxed voucher is
// only fixed at redemption (now + duration); ExpiresAt on the voucher itself
// is an optional issuance deadline.
type Voucher struct {
	Code        string          `db:"code" json:"code"`
	Kind        EntitlementKind `db:"kind" json:"kind"`
	Value       string          `db:"value" json:"value"`
	Uses        int             `db:"uses" json:"uses"`
	DurationMS  int64           `db:"duration_ms" json:"duration_ms"`
	Purpose     string          `db:"purpose" json:"purpose"`
	IssuedBy    *string         `db:"issued_by" json:"issued_by,omitempty"`
	AddressedTo *string         `db:"addressed_to" json:"addressed_to,omitempty"`
	CreatedFor  *string         `db:"created_for" json:"created_for,omitempty"`
	RewardFor   *string         `db:"reward_for" json:"reward_for,omitempty"`
	SignupBonus int             `db:"signup_bonus" json:"signup_bonus"`
	ExpiresAt   *time.Time      `db:"expires_at" json:"expires_at,omitempty"`
	RedeemedAt  *time.Time      `db:"redeemed_at" json:"redeemed_at,omitempty"`
	RedeemedBy  *string         `db:"redeemed_by" json:"redeemed_by,omitempty"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updated_at"`
}

// Redeemed reports whether the voucher has reached its terminal state.
func (v *Voucher) Redeemed() bool {
	return v.RedeemedAt != nil
}

// Expired reports whether the voucher carried an issuance deadline that has
// passed. Unredeemed time-boxed vouchers without a deadline never expire —
// their window starts at redemption.
func (v *Voucher) Expired(now time.Time) bool {
	return v.ExpiresAt != nil && !v.ExpiresAt.After(now)
}

// Duration returns the decoded validity window of a time-boxed voucher,
// or zero for use-count vouchers.
func (v *Voucher) Duration() time.Duration {
	return time.Duration(v.DurationMS) * time.Millisecond
}
