// voucher_repository.go implements VoucherRepository, providing voucher
// lookup, issuance persistence, the transactional redemption that converts a
// voucher into an entitlement row, and the atomic invitation claim used by
// the referral flow.
package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/flotilla-games/entitlement-service/internal/db/models"
)

// VoucherRepository handles voucher database operations
type VoucherRepository struct {
	db *sqlx.DB
}

// NewVoucherRepository creates a new VoucherRepository
func NewVoucherRepository(db *sqlx.DB) *VoucherRepository {
	return &VoucherRepository{db: db}
}

const voucherColumns = `code, kind, value, uses, duration_ms, purpose, issued_by, addressed_to, created_for, reward_for, signup_bonus, expires_at, redeemed_at, redeemed_by, created_at, updated_at`

// Insert persists a newly issued voucher. The code is the primary key, so a
// duplicate issuance fails at the database rather than silently overwriting.
func (r *VoucherRepository) Insert(ctx context.Context, v *models.Voucher) error {
	v.CreatedAt = time.Now()
	v.UpdatedAt = v.CreatedAt

	query := `
		INSERT INTO vouchers (code, kind, value, uses, duration_ms, purpose, issued_by, addressed_to, created_for, reward_for, signup_bonus, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	_, err := r.db.ExecContext(ctx, query,
		v.Code,
		v.Kind,
		v.Value,
		v.Uses,
		v.DurationMS,
		v.Purpose,
		v.IssuedBy,
		v.AddressedTo,
		v.CreatedFor,
		v.RewardFor,
		v.SignupBonus,
		v.ExpiresAt,
		v.CreatedAt,
		v.UpdatedAt,
	)

	return err
}

// GetByCode retrieves a voucher by its code. Returns (nil, nil) when absent.
func (r *VoucherRepository) GetByCode(ctx context.Context, code string) (*models.Voucher, error) {
	query := `SELECT ` + voucherColumns + ` FROM vouchers WHERE code = $1`

	v := &models.Voucher{}
	err := r.db.GetContext(ctx, v, query, code)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return v, nil
}

// FindByIssuerAndRecipient returns the newest voucher the issuer already
// holds for the recipient, redeemed or not, or nil. Backs findOrIssue:
// the caller distinguishes an open invitation from a spent one.
func (r *VoucherRepository) FindByIssuerAndRecipient(ctx context.Context, issuedBy, addressedTo string) (*models.Voucher, error) {
	query := `
		SELECT ` + voucherColumns + `
		FROM vouchers
		WHERE issued_by = $1 AND addressed_to = $2
		ORDER BY created_at DESC
		LIMIT 1
	`

	v := &models.Voucher{}
	err := r.db.GetContext(ctx, v, query, issuedBy, addressedTo)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return v, nil
}

// FindByRewardTag returns the voucher already minted for a (recipient, reward)
// pair, or nil. Backs achievement-grant idempotency: one reward tag per owner
// is ever issued.
func (r *VoucherRepository) FindByRewardTag(ctx context.Context, createdFor, rewardFor string) (*models.Voucher, error) {
	query := `
		SELECT ` + voucherColumns + `
		FROM vouchers
		WHERE created_for = $1 AND reward_for = $2
		ORDER BY created_at DESC
		LIMIT 1
	`

	v := &models.Voucher{}
	err := r.db.GetContext(ctx, v, query, createdFor, rewardFor)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return v, nil
}

// FindOpenInvitation returns the newest unredeemed user-issued voucher
// addressed to the given contact, or nil. System-minted vouchers carry a NULL
// issued_by and are never invitations.
func (r *VoucherRepository) FindOpenInvitation(ctx context.Context, addressedTo string) (*models.Voucher, error) {
	query := `
		SELECT ` + voucherColumns + `
		FROM vouchers
		WHERE addressed_to = $1 AND issued_by IS NOT NULL AND redeemed_at IS NULL
		ORDER BY created_at DESC
		LIMIT 1
	`

	v := &models.Voucher{}
	err := r.db.GetContext(ctx, v, query, addressedTo)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return v, nil
}

// FindClaimedInvitation returns the user-issued voucher addressed to the
// contact that was already claimed by redeemedBy, or nil. The referral flow
// uses it to finish a payout whose first attempt failed after the claim
// committed.
func (r *VoucherRepository) FindClaimedInvitation(ctx context.Context, addressedTo, redeemedBy string) (*models.Voucher, error) {
	query := `
		SELECT ` + voucherColumns + `
		FROM vouchers
		WHERE addressed_to = $1 AND redeemed_by = $2 AND issued_by IS NOT NULL
		ORDER BY redeemed_at DESC
		LIMIT 1
	`

	v := &models.Voucher{}
	err := r.db.GetContext(ctx, v, query, addressedTo, redeemedBy)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return v, nil
}

// Redeem converts a voucher into an entitlement for ownerID inside one
// transaction. The voucher row is locked FOR UPDATE, re-checked under the
// lock (existence, redemption state, deadline, ownership reservation), marked
// redeemed, and the resulting entitlement inserted. Concurrent redeemers of
// the same code serialize on the row lock; exactly one commits, the rest see
// ErrAlreadyRedeemed.
func (r *VoucherRepository) Redeem(ctx context.Context, code, ownerID string, now time.Time) (*models.Entitlement, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	lock := `SELECT ` + voucherColumns + ` FROM vouchers WHERE code = $1 FOR UPDATE`

	v := &models.Voucher{}
	err = tx.GetContext(ctx, v, lock, code)
	if err == sql.ErrNoRows {
		return nil, ErrVoucherNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock voucher: %w", err)
	}

	if v.Redeemed() {
		return nil, ErrAlreadyRedeemed
	}
	if v.Expired(now) {
		return nil, ErrExpired
	}
	if v.CreatedFor != nil && *v.CreatedFor != ownerID {
		return nil, ErrPermissionDenied
	}

	mark := `UPDATE vouchers SET redeemed_at = $2, redeemed_by = $3, updated_at = $2 WHERE code = $1`
	if _, err := tx.ExecContext(ctx, mark, code, now, ownerID); err != nil {
		return nil, fmt.Errorf("failed to mark voucher redeemed: %w", err)
	}

	ent := entitlementFromVoucher(v, ownerID, now)

	insert := `
		INSERT INTO entitlements (id, owner_id, kind, value, uses_remaining, expires_at, purchase_ref, voucher_ref, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err = tx.ExecContext(ctx, insert,
		ent.ID,
		ent.OwnerID,
		ent.Kind,
		ent.Value,
		ent.UsesRemaining,
		ent.ExpiresAt,
		ent.PurchaseRef,
		ent.VoucherRef,
		ent.CreatedAt,
		ent.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert entitlement: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit redemption: %w", err)
	}

	return ent, nil
}

// entitlementFromVoucher shapes the grant a redemption produces. Era vouchers
// carry the content unit in value; pass vouchers carry a provenance tag
// (their purpose). Duration vouchers get an absolute expiry stamped here.
func entitlementFromVoucher(v *models.Voucher, ownerID string, now time.Time) *models.Entitlement {
	ent := &models.Entitlement{
		ID:            uuid.New().String(),
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

	if v.DurationMS > 0 {
		exp := now.Add(v.Duration())
		ent.ExpiresAt = &exp
	}

	return ent
}

// ClaimInvitation marks an invitation redeemed if and only if it is still
// open. The conditional UPDATE is the linearization point of the referral
// flow: of any number of concurrent account-created events for the same
// contact, exactly one observes a claimed row.
func (r *VoucherRepository) ClaimInvitation(ctx context.Context, code, newOwnerID string, now time.Time) (bool, error) {
	query := `
		UPDATE vouchers
		SET redeemed_at = $2, redeemed_by = $3, updated_at = $2
		WHERE code = $1 AND redeemed_at IS NULL
	`

	result, err := r.db.ExecContext(ctx, query, code, now, newOwnerID)
	if err != nil {
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return affected == 1, nil
}

// VoucherFilter narrows the admin listing. Zero values mean "any".
type VoucherFilter struct {
	Purpose  string
	IssuedBy string
	Limit    int
}

// List returns vouchers matching the filter, newest first. Read-only support
// tooling; capped at 100 rows unless the filter asks for fewer.
func (r *VoucherRepository) List(ctx context.Context, filter VoucherFilter) ([]*models.Voucher, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 100 {
		limit = 100
	}

	query := `
		SELECT ` + voucherColumns + `
		FROM vouchers
		WHERE ($1 = '' OR purpose = $1)
		  AND ($2 = '' OR issued_by = $2)
		ORDER BY created_at DESC
		LIMIT $3
	`

	vouchers := make([]*models.Voucher, 0)
	err := r.db.SelectContext(ctx, &vouchers, query, filter.Purpose, filter.IssuedBy, limit)
	if err != nil {
		return nil, err
	}

	return vouchers, nil
}

// InvitationStats is the snapshot exported by the stats job.
type InvitationStats struct {
	Outstanding int `db:"outstanding"`
	Redeemed    int `db:"redeemed"`
}

// Stats counts open and claimed invitations (user-issued vouchers).
func (r *VoucherRepository) Stats(ctx context.Context) (*InvitationStats, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE redeemed_at IS NULL) AS outstanding,
			COUNT(*) FILTER (WHERE redeemed_at IS NOT NULL) AS redeemed
		FROM vouchers
		WHERE issued_by IS NOT NULL
	`

	s := &InvitationStats{}
	if err := r.db.GetContext(ctx, s, query); err != nil {
		return nil, err
	}

	return s, nil
}
