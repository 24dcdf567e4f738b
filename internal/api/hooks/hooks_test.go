package hooks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/flotilla-games/entitlement-service/internal/db/models"
	"github.com/flotilla-games/entitlement-service/internal/economy"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeReferral struct {
	result  *economy.ReferralResult
	err     error
	ownerID string
	contact string
}

func (f *fakeReferral) OnAccountCreated(ctx context.Context, newOwnerID, contact string) (*economy.ReferralResult, error) {
	f.ownerID = newOwnerID
	f.contact = contact
	return f.result, f.err
}

type fakeGrants struct {
	inserted *models.Entitlement
	err      error
}

func (f *fakeGrants) Insert(ctx context.Context, e *models.Entitlement) error {
	f.inserted = e
	return f.err
}

type fakeCache struct {
	invalidated []string
}

func (f *fakeCache) Invalidate(ctx context.Context, ownerID, unit string) {
	f.invalidated = append(f.invalidated, ownerID+":"+unit)
}

func newRouter(h *Handler) *gin.Engine {
	r := gin.New()
	r.POST("/api/v1/hooks/account-created", h.AccountCreated)
	r.POST("/api/v1/grants/purchase", h.RecordPurchase)
	return r
}

func doJSON(r *gin.Engine, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	_ = json.NewEncoder(&buf).Encode(body)
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

// ---------------------------------------------------------------------------
// AccountCreated
// ---------------------------------------------------------------------------

func TestAccountCreated_Rewarded(t *testing.T) {
	ref := &fakeReferral{result: &economy.ReferralResult{
		Rewarded:       true,
		InvitationCode: "pass-5-inv",
		ReferrerID:     "referrer-1",
		Bonus:          5,
	}}
	h := NewHandler(ref, &fakeGrants{}, &fakeCache{})

	w := doJSON(newRouter(h), "/api/v1/hooks/account-created", AccountCreatedRequest{
		OwnerID: "owner-9",
		Contact: "new@example.com",
	})

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if ref.ownerID != "owner-9" || ref.contact != "new@example.com" {
		t.Errorf("referral called with (%s, %s)", ref.ownerID, ref.contact)
	}
	var result economy.ReferralResult
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !result.Rewarded || result.Bonus != 5 {
		t.Errorf("result = %+v, want rewarded with bonus 5", result)
	}
}

func TestAccountCreated_NoInvitation(t *testing.T) {
	h := NewHandler(&fakeReferral{result: &economy.ReferralResult{}}, &fakeGrants{}, &fakeCache{})

	w := doJSON(newRouter(h), "/api/v1/hooks/account-created", AccountCreatedRequest{
		OwnerID: "owner-9",
		Contact: "nobody@example.com",
	})

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 even with no invitation", w.Code)
	}
	var result economy.ReferralResult
	_ = json.Unmarshal(w.Body.Bytes(), &result)
	if result.Rewarded {
		t.Error("result.Rewarded = true, want false")
	}
}

func TestAccountCreated_MissingOwnerID(t *testing.T) {
	h := NewHandler(&fakeReferral{}, &fakeGrants{}, &fakeCache{})
	w := doJSON(newRouter(h), "/api/v1/hooks/account-created", map[string]string{"contact": "x@example.com"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestAccountCreated_ReferralError(t *testing.T) {
	h := NewHandler(&fakeReferral{err: errors.New("payout failed")}, &fakeGrants{}, &fakeCache{})
	w := doJSON(newRouter(h), "/api/v1/hooks/account-created", AccountCreatedRequest{OwnerID: "owner-9", Contact: "x@example.com"})
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500 so the platform retries", w.Code)
	}
}

// ---------------------------------------------------------------------------
// RecordPurchase
// ---------------------------------------------------------------------------

func TestRecordPurchase_Success(t *testing.T) {
	grants := &fakeGrants{}
	cache := &fakeCache{}
	h := NewHandler(&fakeReferral{}, grants, cache)

	w := doJSON(newRouter(h), "/api/v1/grants/purchase", PurchaseRequest{
		OwnerID:     "owner-3",
		Unit:        "golden_age",
		PurchaseRef: "order-555",
	})

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201; body = %s", w.Code, w.Body.String())
	}

	e := grants.inserted
	if e == nil {
		t.Fatal("no entitlement inserted")
	}
	if e.Kind != models.EntitlementKindEra || e.Value != "golden_age" {
		t.Errorf("entitlement = %+v, want era grant for golden_age", e)
	}
	if e.UsesRemaining != models.UnlimitedUses {
		t.Errorf("uses_remaining = %d, want unlimited sentinel", e.UsesRemaining)
	}
	if e.PurchaseRef == nil || *e.PurchaseRef != "order-555" {
		t.Error("purchase_ref not stamped")
	}
	if e.ExpiresAt != nil {
		t.Error("purchase grants must never expire")
	}

	if len(cache.invalidated) != 1 || cache.invalidated[0] != "owner-3:golden_age" {
		t.Errorf("cache invalidations = %v, want [owner-3:golden_age]", cache.invalidated)
	}
}

func TestRecordPurchase_MissingFields(t *testing.T) {
	h := NewHandler(&fakeReferral{}, &fakeGrants{}, &fakeCache{})
	w := doJSON(newRouter(h), "/api/v1/grants/purchase", map[string]string{"owner_id": "owner-3"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestRecordPurchase_StorageError(t *testing.T) {
	h := NewHandler(&fakeReferral{}, &fakeGrants{err: errors.New("db down")}, &fakeCache{})
	w := doJSON(newRouter(h), "/api/v1/grants/purchase", PurchaseRequest{
		OwnerID:     "owner-3",
		Unit:        "golden_age",
		PurchaseRef: "order-555",
	})
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}
