// Package vouchers implements the voucher lifecycle endpoints: administrative
// issuance, preflight inspection, redemption, player invitations, and the
// support listing.
package vouchers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/flotilla-games/entitlement-service/internal/db/models"
	"github.com/flotilla-games/entitlement-service/internal/db/repositories"
	"github.com/flotilla-games/entitlement-service/internal/economy"
	"github.com/flotilla-games/entitlement-service/internal/middleware"
	"github.com/flotilla-games/entitlement-service/internal/vouchercode"
)

// VoucherLifecycle is the slice of the economy service these handlers use.
type VoucherLifecycle interface {
	Issue(ctx context.Context, p economy.IssueParams) (*models.Voucher, error)
	Redeem(ctx context.Context, code, ownerID string) (*models.Entitlement, error)
	Preflight(ctx context.Context, code string) (*models.Voucher, vouchercode.Grant, error)
	FindOrIssue(ctx context.Context, issuerID, contact string, p economy.IssueParams) (*models.Voucher, string, error)
}

// VoucherDirectory serves the read-only support queries.
type VoucherDirectory interface {
	List(ctx context.Context, filter repositories.VoucherFilter) ([]*models.Voucher, error)
}

// InviteSettings are the server-side values stamped onto every player
// invitation. They come from config, never from the request body.
type InviteSettings struct {
	PassGrant   int
	SignupBonus int
}

// Handler handles voucher-related API requests
type Handler struct {
	lifecycle VoucherLifecycle
	directory VoucherDirectory
	invites   InviteSettings
}

// NewHandler creates a new voucher handler
func NewHandler(lifecycle VoucherLifecycle, directory VoucherDirectory, invites InviteSettings) *Handler {
	return &Handler{
		lifecycle: lifecycle,
		directory: directory,
		invites:   invites,
	}
}

// IssueRequest is the administrative issuance payload.
type IssueRequest struct {
	// Kind is "pass" for consumable passes or a content-unit identifier.
	Kind string `json:"kind" binding:"required"`
	// Exactly one of Uses / DurationMS must be positive.
	Uses       int    `json:"uses"`
	DurationMS int64  `json:"duration_ms"`
	Purpose    string `json:"purpose" binding:"required"`
	// AddressedTo is the contact the voucher is delivered to.
	AddressedTo *string `json:"addressed_to"`
	// CreatedFor reserves redemption for one owner.
	CreatedFor *string `json:"created_for"`
	// RewardFor tags reward issuance (e.g. "achievement:first_win"); at most
	// one voucher is ever minted per (created_for, reward_for) pair, so
	// reward callers can retry safely.
	RewardFor *string `json:"reward_for"`
	// SignupBonus is the referral credit attached to invitation vouchers.
	SignupBonus int        `json:"signup_bonus"`
	ExpiresAt   *time.Time `json:"expires_at"`
}

// @Summary      Issue a voucher
// @Description  Mints a new voucher. The code embeds the grant (kind, uses or duration) and a random UUID; the voucher starts in the issued state. Reward-tagged requests (created_for + reward_for) are idempotent: a repeat returns the voucher already minted for that pair.
// @Tags         Vouchers
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        request  body  IssueRequest  true  "Voucher to mint"
// @Success      201  {object}  models.Voucher
// @Failure      400  {object}  map[string]interface{}  "Malformed grant"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/vouchers [post]
func (h *Handler) Issue(c *gin.Context) {
	var req IssueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	issuer, _ := middleware.OwnerID(c)

	v, err := h.lifecycle.Issue(c.Request.Context(), economy.IssueParams{
		Kind:        req.Kind,
		Uses:        req.Uses,
		Duration:    time.Duration(req.DurationMS) * time.Millisecond,
		Purpose:     req.Purpose,
		IssuedBy:    &issuer,
		AddressedTo: req.AddressedTo,
		CreatedFor:  req.CreatedFor,
		RewardFor:   req.RewardFor,
		SignupBonus: req.SignupBonus,
		ExpiresAt:   req.ExpiresAt,
	})
	if errors.Is(err, vouchercode.ErrInvalidFormat) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Grant must carry either a positive use count or a whole-day duration"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to issue voucher"})
		return
	}

	c.JSON(http.StatusCreated, v)
}

// @Summary      Inspect a voucher
// @Description  Decodes the voucher code and reports its current status without redeeming it.
// @Tags         Vouchers
// @Security     Bearer
// @Produce      json
// @Param        code  path  string  true  "Voucher code"
// @Success      200  {object}  map[string]interface{}  "status, grant, voucher"
// @Failure      400  {object}  map[string]interface{}  "Malformed code"
// @Failure      404  {object}  map[string]interface{}  "Unknown code"
// @Router       /api/v1/vouchers/{code} [get]
func (h *Handler) Preflight(c *gin.Context) {
	code := c.Param("code")

	v, g, err := h.lifecycle.Preflight(c.Request.Context(), code)
	switch {
	case errors.Is(err, vouchercode.ErrInvalidFormat):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Malformed voucher code"})
		return
	case errors.Is(err, repositories.ErrVoucherNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Voucher not found"})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to look up voucher"})
		return
	}

	status := "valid"
	switch {
	case v.Redeemed():
		status = "redeemed"
	case v.Expired(time.Now()):
		status = "expired"
	}

	c.JSON(http.StatusOK, gin.H{
		"status": status,
		"grant": gin.H{
			"kind":        g.Kind,
			"uses":        g.Uses,
			"duration_ms": g.Duration.Milliseconds(),
		},
		"voucher": v,
	})
}

// RedeemRequest carries the code to redeem for the authenticated owner.
type RedeemRequest struct {
	Code string `json:"code" binding:"required"`
}

// @Summary      Redeem a voucher
// @Description  Converts the voucher into an entitlement for the authenticated owner. Redemption is terminal: the voucher can never be redeemed again.
// @Tags         Vouchers
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        request  body  RedeemRequest  true  "Code to redeem"
// @Success      200  {object}  models.Entitlement
// @Failure      400  {object}  map[string]interface{}  "Malformed code"
// @Failure      403  {object}  map[string]interface{}  "Reserved for another owner"
// @Failure      404  {object}  map[string]interface{}  "Unknown code"
// @Failure      409  {object}  map[string]interface{}  "Already redeemed"
// @Failure      410  {object}  map[string]interface{}  "Voucher expired"
// @Router       /api/v1/vouchers/redeem [post]
func (h *Handler) Redeem(c *gin.Context) {
	ownerID, ok := middleware.OwnerID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
		return
	}

	var req RedeemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	ent, err := h.lifecycle.Redeem(c.Request.Context(), req.Code, ownerID)
	switch {
	case errors.Is(err, vouchercode.ErrInvalidFormat):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Malformed voucher code"})
		return
	case errors.Is(err, repositories.ErrVoucherNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Voucher not found"})
		return
	case errors.Is(err, repositories.ErrAlreadyRedeemed):
		c.JSON(http.StatusConflict, gin.H{"error": "Voucher already redeemed"})
		return
	case errors.Is(err, repositories.ErrExpired):
		c.JSON(http.StatusGone, gin.H{"error": "Voucher expired"})
		return
	case errors.Is(err, repositories.ErrPermissionDenied):
		c.JSON(http.StatusForbidden, gin.H{"error": "Voucher is reserved for another owner"})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to redeem voucher"})
		return
	}

	c.JSON(http.StatusOK, ent)
}

// InviteRequest names the contact (email or similar) being invited.
type InviteRequest struct {
	Contact string `json:"contact" binding:"required"`
}

// @Summary      Invite a friend
// @Description  Returns the caller's invitation voucher for the contact, minting one if none exists. Re-inviting the same contact reuses the open invitation; a claimed invitation is reported but never re-issued.
// @Tags         Vouchers
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        request  body  InviteRequest  true  "Contact to invite"
// @Success      200  {object}  map[string]interface{}  "status: created|reused|already_redeemed, voucher"
// @Failure      400  {object}  map[string]interface{}  "Missing contact"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/invites [post]
func (h *Handler) Invite(c *gin.Context) {
	ownerID, ok := middleware.OwnerID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
		return
	}

	var req InviteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	v, status, err := h.lifecycle.FindOrIssue(c.Request.Context(), ownerID, req.Contact, economy.IssueParams{
		Kind:        economy.PassKind,
		Uses:        h.invites.PassGrant,
		Purpose:     "invite",
		SignupBonus: h.invites.SignupBonus,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create invitation"})
		return
	}

	code := http.StatusOK
	if status == economy.InviteStatusCreated {
		code = http.StatusCreated
	}
	c.JSON(code, gin.H{
		"status":  status,
		"voucher": v,
	})
}

// @Summary      List vouchers
// @Description  Returns vouchers matching the filter, newest first. Support tooling; capped at 100 rows.
// @Tags         Vouchers
// @Security     Bearer
// @Produce      json
// @Param        purpose    query  string  false  "Filter by purpose"
// @Param        issued_by  query  string  false  "Filter by issuer"
// @Param        limit      query  int     false  "Row cap (default and max 100)"
// @Success      200  {object}  map[string]interface{}  "vouchers: array"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/vouchers [get]
func (h *Handler) List(c *gin.Context) {
	filter := repositories.VoucherFilter{
		Purpose:  c.Query("purpose"),
		IssuedBy: c.Query("issued_by"),
	}
	if limit := c.Query("limit"); limit != "" {
		// Bad limits fall back to the repository default rather than erroring.
		if n, err := strconv.Atoi(limit); err == nil {
			filter.Limit = n
		}
	}

	vouchers, err := h.directory.List(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list vouchers"})
		return
	}
	if vouchers == nil {
		vouchers = []*models.Voucher{}
	}

	c.JSON(http.StatusOK, gin.H{"vouchers": vouchers})
}
