// entitlement_repository.go implements EntitlementRepository, providing
// database queries for grant lookup, pass balances, and the transactional
// FIFO pass consumption that backs the consumption engine.
package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/flotilla-games/entitlement-service/internal/db/models"
)

// EntitlementRepository handles entitlement database operations
type EntitlementRepository struct {
	db *sql.DB
}

// NewEntitlementRepository creates a new EntitlementRepository
func NewEntitlementRepository(db *sql.DB) *EntitlementRepository {
	return &EntitlementRepository{db: db}
}

const entitlementColumns = `id, owner_id, kind, value, uses_remaining, expires_at, purchase_ref, voucher_ref, created_at, updated_at`

// Insert persists a new entitlement row, assigning its id and timestamps.
func (r *EntitlementRepository) Insert(ctx context.Context, e *models.Entitlement) error {
	e.ID = uuid.New().String()
	e.CreatedAt = time.Now()
	e.UpdatedAt = e.CreatedAt

	query := `
		INSERT INTO entitlements (id, owner_id, kind, value, uses_remaining, expires_at, purchase_ref, voucher_ref, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.db.ExecContext(ctx, query,
		e.ID,
		e.OwnerID,
		e.Kind,
		e.Value,
		e.UsesRemaining,
		e.ExpiresAt,
		e.PurchaseRef,
		e.VoucherRef,
		e.CreatedAt,
		e.UpdatedAt,
	)

	return err
}

// FindEraGrants returns the owner's usable era grants for one content unit,
// oldest first. Exhausted and expired rows are filtered in SQL so the resolver
// only ever sees live grants.
func (r *EntitlementRepository) FindEraGrants(ctx context.Context, ownerID, unit string, now time.Time) ([]*models.Entitlement, error) {
	query := `
		SELECT ` + entitlementColumns + `
		FROM entitlements
		WHERE owner_id = $1
		  AND kind = 'era'
		  AND value = $2
		  AND uses_remaining != 0
		  AND (expires_at IS NULL OR expires_at > $3)
		ORDER BY created_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, ownerID, unit, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEntitlements(rows)
}

// PassBalance returns the sum of the owner's usable pass credits. Unlimited
// rows are excluded from the sum; passes are always finite.
func (r *EntitlementRepository) PassBalance(ctx context.Context, ownerID string, now time.Time) (int, error) {
	query := `
		SELECT COALESCE(SUM(uses_remaining), 0)
		FROM entitlements
		WHERE owner_id = $1
		  AND kind = 'pass'
		  AND uses_remaining > 0
		  AND (expires_at IS NULL OR expires_at > $2)
	`

	var balance int
	err := r.db.QueryRowContext(ctx, query, ownerID, now).Scan(&balance)
	if err != nil {
		return 0, err
	}

	return balance, nil
}

// DecrementUse decrements a single finite grant by one. The guard clause makes
// concurrent decrements safe: a row that hits zero under a racing consumer
// yields ErrGrantExhausted instead of going negative.
func (r *EntitlementRepository) DecrementUse(ctx context.Context, grantID string) error {
	query := `
		UPDATE entitlements
		SET uses_remaining = uses_remaining - 1, updated_at = $2
		WHERE id = $1 AND uses_remaining > 0
	`

	result, err := r.db.ExecContext(ctx, query, grantID, time.Now())
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrGrantExhausted
	}

	return nil
}

// ConsumePasses deducts need pass credits across the owner's usable pass rows,
// oldest first, inside one transaction. The rows are locked with FOR UPDATE so
// concurrent consumers serialize; if the total cannot cover the need the whole
// transaction rolls back with ErrInsufficientBalance and nothing is deducted.
// Returns the remaining balance after deduction.
func (r *EntitlementRepository) ConsumePasses(ctx context.Context, ownerID string, need int, now time.Time) (int, error) {
	if need <= 0 {
		return 0, fmt.Errorf("consume amount must be positive, got %d", need)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		SELECT id, uses_remaining
		FROM entitlements
		WHERE owner_id = $1
		  AND kind = 'pass'
		  AND uses_remaining > 0
		  AND (expires_at IS NULL OR expires_at > $2)
		ORDER BY created_at ASC
		FOR UPDATE
	`

	rows, err := tx.QueryContext(ctx, query, ownerID, now)
	if err != nil {
		return 0, fmt.Errorf("failed to lock pass rows: %w", err)
	}

	type passRow struct {
		id   string
		uses int
	}
	var locked []passRow
	total := 0
	for rows.Next() {
		var p passRow
		if err := rows.Scan(&p.id, &p.uses); err != nil {
			rows.Close()
			return 0, err
		}
		locked = append(locked, p)
		total += p.uses
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, err
	}
	rows.Close()

	if total < need {
		return 0, ErrInsufficientBalance
	}

	update := `UPDATE entitlements SET uses_remaining = $2, updated_at = $3 WHERE id = $1`
	remaining := need
	for _, p := range locked {
		if remaining == 0 {
			break
		}
		take := p.uses
		if take > remaining {
			take = remaining
		}
		if _, err := tx.ExecContext(ctx, update, p.id, p.uses-take, now); err != nil {
			return 0, fmt.Errorf("failed to deduct from grant %s: %w", p.id, err)
		}
		remaining -= take
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit pass consumption: %w", err)
	}

	return total - need, nil
}

// scanEntitlements drains a result set of full entitlement rows.
func scanEntitlements(rows *sql.Rows) ([]*models.Entitlement, error) {
	grants := make([]*models.Entitlement, 0)
	for rows.Next() {
		e := &models.Entitlement{}
		err := rows.Scan(
			&e.ID,
			&e.OwnerID,
			&e.Kind,
			&e.Value,
			&e.UsesRemaining,
			&e.ExpiresAt,
			&e.PurchaseRef,
			&e.VoucherRef,
			&e.CreatedAt,
			&e.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		grants = append(grants, e)
	}

	return grants, rows.Err()
}
