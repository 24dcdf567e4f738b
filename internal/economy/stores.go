// stores.go declares the storage and policy interfaces the economy services
// consume. The concrete implementations live in internal/db/repositories and
// internal/policy; tests substitute in-memory fakes.
package economy

import (
	"context"
	"time"

	"github.com/flotilla-games/entitlement-service/internal/db/models"
	"github.com/flotilla-games/entitlement-service/internal/policy"
)

// EntitlementStore is the slice of the entitlement repository the resolver
// and consumer need.
type EntitlementStore interface {
	Insert(ctx context.Context, e *models.Entitlement) error
	FindEraGrants(ctx context.Context, ownerID, unit string, now time.Time) ([]*models.Entitlement, error)
	PassBalance(ctx context.Context, ownerID string, now time.Time) (int, error)
	DecrementUse(ctx context.Context, grantID string) error
	ConsumePasses(ctx context.Context, ownerID string, need int, now time.Time) (int, error)
}

// VoucherStore is the slice of the voucher repository the lifecycle manager
// and referral orchestrator need.
type VoucherStore interface {
	Insert(ctx context.Context, v *models.Voucher) error
	GetByCode(ctx context.Context, code string) (*models.Voucher, error)
	FindByIssuerAndRecipient(ctx context.Context, issuedBy, addressedTo string) (*models.Voucher, error)
	FindByRewardTag(ctx context.Context, createdFor, rewardFor string) (*models.Voucher, error)
	FindOpenInvitation(ctx context.Context, addressedTo string) (*models.Voucher, error)
	FindClaimedInvitation(ctx context.Context, addressedTo, redeemedBy string) (*models.Voucher, error)
	Redeem(ctx context.Context, code, ownerID string, now time.Time) (*models.Entitlement, error)
	ClaimInvitation(ctx context.Context, code, newOwnerID string, now time.Time) (bool, error)
}

// PolicySource yields the access policy for a content unit.
type PolicySource interface {
	Get(unit string) policy.UnitPolicy
}
