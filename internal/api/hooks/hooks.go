// Package hooks implements the system-caller endpoints: the account platform's
// account-created event (which drives referral payouts) and purchase recording
// from the payment processor. Both are reachable only with the service key.
package hooks

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/flotilla-games/entitlement-service/internal/db/models"
	"github.com/flotilla-games/entitlement-service/internal/economy"
)

// ReferralService runs the two-sided referral flow.
type ReferralService interface {
	OnAccountCreated(ctx context.Context, newOwnerID, contact string) (*economy.ReferralResult, error)
}

// GrantStore persists purchase entitlements.
type GrantStore interface {
	Insert(ctx context.Context, e *models.Entitlement) error
}

// CacheInvalidator drops a cached resolve decision after a grant lands.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, ownerID, unit string)
}

// Handler handles platform hook requests
type Handler struct {
	referral ReferralService
	grants   GrantStore
	cache    CacheInvalidator
}

// NewHandler creates a new hooks handler
func NewHandler(referral ReferralService, grants GrantStore, cache CacheInvalidator) *Handler {
	return &Handler{
		referral: referral,
		grants:   grants,
		cache:    cache,
	}
}

// AccountCreatedRequest is the account platform's signup event payload.
type AccountCreatedRequest struct {
	OwnerID string `json:"owner_id" binding:"required"`
	// Contact is the email (or similar) the account signed up with. Empty
	// when the platform has nothing to match invitations against.
	Contact string `json:"contact"`
}

// @Summary      Account created event
// @Description  Matches the new account's contact against open invitations and, on a claim, pays the signup bonus to both the referrer and the new owner. Safe to deliver more than once.
// @Tags         Hooks
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        request  body  AccountCreatedRequest  true  "New account"
// @Success      200  {object}  economy.ReferralResult
// @Failure      400  {object}  map[string]interface{}  "Missing owner_id"
// @Failure      500  {object}  map[string]interface{}  "Referral flow failed"
// @Router       /api/v1/hooks/account-created [post]
func (h *Handler) AccountCreated(c *gin.Context) {
	var req AccountCreatedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	result, err := h.referral.OnAccountCreated(c.Request.Context(), req.OwnerID, req.Contact)
	if err != nil {
		// The claim may already have landed; the platform retries and the
		// payout path is idempotent per invitation.
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Referral processing failed"})
		return
	}

	c.JSON(http.StatusOK, result)
}

// PurchaseRequest records one completed storefront purchase.
type PurchaseRequest struct {
	OwnerID string `json:"owner_id" binding:"required"`
	Unit    string `json:"unit" binding:"required"`
	// PurchaseRef is the payment processor's transaction identifier.
	PurchaseRef string `json:"purchase_ref" binding:"required"`
}

// @Summary      Record a purchase
// @Description  Grants permanent access to the content unit. Purchase grants never expire, never deplete, and outrank every other access method.
// @Tags         Hooks
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        request  body  PurchaseRequest  true  "Completed purchase"
// @Success      201  {object}  models.Entitlement
// @Failure      400  {object}  map[string]interface{}  "Missing fields"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/grants/purchase [post]
func (h *Handler) RecordPurchase(c *gin.Context) {
	var req PurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	ref := req.PurchaseRef
	ent := &models.Entitlement{
		OwnerID:       req.OwnerID,
		Kind:          models.EntitlementKindEra,
		Value:         req.Unit,
		UsesRemaining: models.UnlimitedUses,
		PurchaseRef:   &ref,
	}

	if err := h.grants.Insert(c.Request.Context(), ent); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record purchase"})
		return
	}

	// The owner may have a cached denial for this unit.
	h.cache.Invalidate(c.Request.Context(), req.OwnerID, req.Unit)

	c.JSON(http.StatusCreated, ent)
}
