// Package models defines the database model types for the entitlement service.
// Each type corresponds to a database table and uses struct tags for both JSON
// serialization and sqlx row scanning. Models are pure data types — business
// logic belongs in the economy services, query logic belongs in the
// repositories layer.
package models

import "time"

// EntitlementKind distinguishes the two grant shapes a row can carry.
type EntitlementKind string

const (
	// EntitlementKindEra grants access to one named content unit (an "era").
	EntitlementKindEra EntitlementKind = "era"
	// EntitlementKindPass is a fungible consumable credit balance.
	EntitlementKindPass EntitlementKind = "pass"
)

// UnlimitedUses is the sentinel for "unlimited while valid". It is never used
// arithmetically — balances and requirements are non-negative integers.
const UnlimitedUses = -1

// Entitlement represents one grant of access or credit.
//
// For Kind=era, Value is the content-unit identifier. For Kind=pass, Value is
// a provenance tag describing where the credits came from (e.g. the issuing
// voucher's purpose), not a quantity.
//
// At most one of PurchaseRef/VoucherRef is expected to be set in normal
// operation, but the schema does not forbid both.
type Entitlement struct {
	ID            string          `db:"id" json:"id"`
	OwnerID       string          `db:"owner_id" json:"owner_id"`
	Kind          EntitlementKind `db:"kind" json:"kind"`
	Value         string          `db:"value" json:"value"`
	UsesRemaining int             `db:"uses_remaining" json:"uses_remaining"`
	ExpiresAt     *time.Time      `db:"expires_at" json:"expires_at,omitempty"`
	PurchaseRef   *string         `db:"purchase_ref" json:"purchase_ref,omitempty"`
	VoucherRef    *string         `db:"voucher_ref" json:"voucher_ref,omitempty"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updated_at"`
}

// Usable reports whether the row still authorizes anything at the given
// instant: not exhausted and not expired. Rows never resurrect — once this
// returns false for a past instant it stays false.
func (e *Entitlement) Usable(now time.Time) bool {
	if e.UsesRemaining == 0 {
		return false
	}
	if e.ExpiresAt != nil && !e.ExpiresAt.After(now) {
		return false
	}
	return true
}

// Unlimited reports whether the row carries the unlimited-use sentinel.
func (e *Entitlement) Unlimited() bool {
	return e.UsesRemaining == UnlimitedUses
}
