// Package access implements the access resolution and consumption endpoints:
// "may this owner enter this content unit" and "commit one entry, deducting
// whatever it costs".
package access

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/flotilla-games/entitlement-service/internal/db/repositories"
	"github.com/flotilla-games/entitlement-service/internal/economy"
	"github.com/flotilla-games/entitlement-service/internal/middleware"
)

// AccessResolver answers read-only access questions.
type AccessResolver interface {
	Resolve(ctx context.Context, ownerID, unit string) (*economy.Decision, error)
}

// EntryConsumer commits a single entry.
type EntryConsumer interface {
	Consume(ctx context.Context, ownerID, unit string) (*economy.Receipt, error)
}

// BalanceSource reports an owner's usable pass balance.
type BalanceSource interface {
	PassBalance(ctx context.Context, ownerID string, now time.Time) (int, error)
}

// Handler handles access-related API requests
type Handler struct {
	resolver AccessResolver
	consumer EntryConsumer
	balances BalanceSource
}

// NewHandler creates a new access handler
func NewHandler(resolver AccessResolver, consumer EntryConsumer, balances BalanceSource) *Handler {
	return &Handler{
		resolver: resolver,
		consumer: consumer,
		balances: balances,
	}
}

// @Summary      Resolve access
// @Description  Reports whether the authenticated owner may enter the content unit and by which method (purchase, voucher, passes, or free). Read-only: nothing is deducted.
// @Tags         Access
// @Security     Bearer
// @Produce      json
// @Param        unit  path  string  true  "Content unit identifier"
// @Success      200  {object}  economy.Decision
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/access/{unit} [get]
func (h *Handler) Resolve(c *gin.Context) {
	ownerID, ok := middleware.OwnerID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
		return
	}

	unit := c.Param("unit")
	if unit == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Content unit is required"})
		return
	}

	decision, err := h.resolver.Resolve(c.Request.Context(), ownerID, unit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to resolve access"})
		return
	}

	// A denial is still a successful resolution; the decision payload carries
	// the reason and what it would cost to get in.
	c.JSON(http.StatusOK, decision)
}

// @Summary      Consume an entry
// @Description  Authorizes and commits one entry into the content unit. Pass-funded entries deduct the unit's cost atomically; purchase, unlimited-voucher, and free entries cost nothing.
// @Tags         Access
// @Security     Bearer
// @Produce      json
// @Param        unit  path  string  true  "Content unit identifier"
// @Success      200  {object}  economy.Receipt
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      402  {object}  map[string]interface{}  "Insufficient pass balance"
// @Failure      403  {object}  map[string]interface{}  "Unit is exclusive"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/access/{unit}/consume [post]
func (h *Handler) Consume(c *gin.Context) {
	ownerID, ok := middleware.OwnerID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
		return
	}

	unit := c.Param("unit")
	if unit == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Content unit is required"})
		return
	}

	receipt, err := h.consumer.Consume(c.Request.Context(), ownerID, unit)
	switch {
	case errors.Is(err, economy.ErrExclusiveLocked):
		c.JSON(http.StatusForbidden, gin.H{
			"error":  "Unit requires a purchase or voucher",
			"reason": economy.ReasonExclusive,
		})
		return
	case errors.Is(err, repositories.ErrInsufficientBalance):
		c.JSON(http.StatusPaymentRequired, gin.H{
			"error":  "Not enough passes",
			"reason": economy.ReasonInsufficient,
		})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to consume entry"})
		return
	}

	c.JSON(http.StatusOK, receipt)
}

// @Summary      Pass balance
// @Description  Returns the authenticated owner's total usable pass balance across all unexpired pass grants.
// @Tags         Access
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "balance: integer"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/passes/balance [get]
func (h *Handler) Balance(c *gin.Context) {
	ownerID, ok := middleware.OwnerID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
		return
	}

	balance, err := h.balances.PassBalance(c.Request.Context(), ownerID, time.Now())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load pass balance"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"balance": balance})
}
