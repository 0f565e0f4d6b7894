package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/groupescapehouses/escape-backend/api/middleware"
	"github.com/groupescapehouses/escape-backend/internal/entitlements"
	"github.com/groupescapehouses/escape-backend/internal/planpurchases"
	"github.com/groupescapehouses/escape-backend/internal/plans"
	"github.com/groupescapehouses/escape-backend/internal/reconcile"
	"github.com/groupescapehouses/escape-backend/pkg/config"
	"github.com/groupescapehouses/escape-backend/pkg/db/models"
	"github.com/groupescapehouses/escape-backend/pkg/enums"
	pkgerrors "github.com/groupescapehouses/escape-backend/pkg/errors"
	"github.com/groupescapehouses/escape-backend/pkg/pagination"
)

var controllerNow = time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return controllerNow }

type stubUnusedPlans struct {
	rows   []models.PlanPurchase
	err    error
	userID string
}

func (s *stubUnusedPlans) ListUnusedEntitlements(ctx context.Context, userID string) ([]models.PlanPurchase, error) {
	s.userID = userID
	return s.rows, s.err
}

type stubConsumer struct {
	input  entitlements.ConsumeInput
	result *entitlements.ConsumeResult
	err    error
	calls  int
}

func (s *stubConsumer) ConsumeEntitlement(ctx context.Context, input entitlements.ConsumeInput) (*entitlements.ConsumeResult, error) {
	s.calls++
	s.input = input
	return s.result, s.err
}

type stubPurchaseLister struct {
	params planpurchases.ListPurchasesParams
	rows   []models.PlanPurchase
	next   *pagination.Cursor
	err    error
}

func (s *stubPurchaseLister) ListAllPurchases(ctx context.Context, params planpurchases.ListPurchasesParams) ([]models.PlanPurchase, *pagination.Cursor, error) {
	s.params = params
	return s.rows, s.next, s.err
}

type stubSessionReconciler struct {
	ids      []string
	limit    int
	report   *reconcile.BatchReport
	sweepErr error
}

func (s *stubSessionReconciler) ReconcileSessions(ctx context.Context, sessionIDs []string) *reconcile.BatchReport {
	s.ids = sessionIDs
	return s.report
}

func (s *stubSessionReconciler) SweepRecent(ctx context.Context, limit int) (*reconcile.BatchReport, error) {
	s.limit = limit
	return s.report, s.sweepErr
}

type stubCheckoutStarter struct {
	input plans.CheckoutInput
	calls int
	err   error
}

func (s *stubCheckoutStarter) StartCheckout(ctx context.Context, input plans.CheckoutInput) (*plans.CheckoutSession, error) {
	s.calls++
	s.input = input
	if s.err != nil {
		return nil, s.err
	}
	return &plans.CheckoutSession{SessionID: "cs_new", URL: "https://checkout.stripe.com/c/cs_new", PlanID: enums.PlanTierGold}, nil
}

type stubPinger struct{ err error }

func (p stubPinger) Ping(ctx context.Context) error { return p.err }

func purchaseRow(id int64, purchasedAt time.Time) models.PlanPurchase {
	pi := "pi_" + strings.Repeat("x", int(id))
	return models.PlanPurchase{
		ID:                    id,
		UserID:                "owner-1",
		PlanID:                enums.PlanTierSilver,
		StripePaymentIntentID: &pi,
		Amount:                14999,
		PurchasedAt:           purchasedAt,
		ExpiresAt:             purchasedAt.AddDate(1, 0, 0),
		CreatedAt:             purchasedAt,
	}
}

func withOwner(req *http.Request, userID string) *http.Request {
	return req.WithContext(middleware.WithUserID(req.Context(), userID))
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, dest any) {
	t.Helper()
	envelope := struct {
		Data json.RawMessage `json:"data"`
	}{}
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if err := json.Unmarshal(envelope.Data, dest); err != nil {
		t.Fatalf("decode data: %v", err)
	}
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode error envelope: %v", err)
	}
	return envelope.Error.Code
}

func TestPlansCatalogListsTiersWithDisplayAmounts(t *testing.T) {
	catalog, err := plans.NewCatalog(
		plans.Plan{ID: enums.PlanTierBronze, Name: "Bronze", YearlyAmount: 9999, MonthlyAmount: 999, Currency: "gbp"},
		plans.Plan{ID: enums.PlanTierSilver, Name: "Silver", YearlyAmount: 14999, MonthlyAmount: 1499, Currency: "gbp", Features: []string{"featured"}},
	)
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}

	rec := httptest.NewRecorder()
	PlansCatalog(catalog, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/plans", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}

	var body struct {
		Plans []planResponse `json:"plans"`
	}
	decodeData(t, rec, &body)
	if len(body.Plans) != 2 {
		t.Fatalf("expected 2 plans, got %d", len(body.Plans))
	}
	if body.Plans[0].ID != "bronze" || body.Plans[1].ID != "silver" {
		t.Fatalf("unexpected order: %+v", body.Plans)
	}
	if body.Plans[1].YearlyAmountDisplay != "149.99" || body.Plans[1].MonthlyAmountDisplay != "14.99" {
		t.Fatalf("unexpected display amounts: %+v", body.Plans[1])
	}
	if body.Plans[0].Features == nil {
		t.Fatalf("features should serialise as an empty list")
	}
}

func TestOwnerUnusedPlans(t *testing.T) {
	svc := &stubUnusedPlans{rows: []models.PlanPurchase{purchaseRow(2, controllerNow.AddDate(0, -1, 0))}}
	handler := OwnerUnusedPlans(svc, nil, fixedClock)

	req := withOwner(httptest.NewRequest(http.MethodGet, "/api/v1/owner/plans/unused", nil), "owner-1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if svc.userID != "owner-1" {
		t.Fatalf("expected lookup for owner-1, got %q", svc.userID)
	}

	var body unusedPlansResponse
	decodeData(t, rec, &body)
	if !body.HasUnusedPlan || len(body.Plans) != 1 {
		t.Fatalf("unexpected body: %+v", body)
	}
	if body.Plans[0].AmountDisplay != "149.99" || body.Plans[0].Expired {
		t.Fatalf("unexpected plan: %+v", body.Plans[0])
	}
}

func TestOwnerUnusedPlansEmpty(t *testing.T) {
	handler := OwnerUnusedPlans(&stubUnusedPlans{}, nil, fixedClock)
	req := withOwner(httptest.NewRequest(http.MethodGet, "/api/v1/owner/plans/unused", nil), "owner-1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	var body unusedPlansResponse
	decodeData(t, rec, &body)
	if body.HasUnusedPlan || body.Plans == nil || len(body.Plans) != 0 {
		t.Fatalf("expected empty non-nil list, got %+v", body)
	}
}

func TestOwnerUnusedPlansRequiresUser(t *testing.T) {
	rec := httptest.NewRecorder()
	OwnerUnusedPlans(&stubUnusedPlans{}, nil, fixedClock).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rec.Code)
	}
}

func TestOwnerConsumePlanSuccess(t *testing.T) {
	purchaseID := int64(7)
	svc := &stubConsumer{result: &entitlements.ConsumeResult{
		PlanPurchaseID: purchaseID,
		PlanID:         enums.PlanTierSilver,
		PropertyID:     42,
		UsedAt:         controllerNow,
	}}
	body := []byte(`{"property_id":42,"plan_purchase_id":7,"plan_id":" silver "}`)
	req := withOwner(httptest.NewRequest(http.MethodPost, "/api/v1/owner/plans/consume", bytes.NewReader(body)), "owner-1")
	rec := httptest.NewRecorder()
	OwnerConsumePlan(svc, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d (%s)", rec.Code, rec.Body.String())
	}
	if svc.input.UserID != "owner-1" || svc.input.PropertyID != 42 || svc.input.PlanID != "silver" {
		t.Fatalf("unexpected input: %+v", svc.input)
	}
	if svc.input.PlanPurchaseID == nil || *svc.input.PlanPurchaseID != purchaseID {
		t.Fatalf("expected plan purchase id 7, got %v", svc.input.PlanPurchaseID)
	}

	var result entitlements.ConsumeResult
	decodeData(t, rec, &result)
	if result.PlanPurchaseID != purchaseID || result.PropertyID != 42 {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestOwnerConsumePlanValidation(t *testing.T) {
	cases := map[string]string{
		"missing property": `{}`,
		"zero property":    `{"property_id":0}`,
		"negative id":      `{"property_id":3,"plan_purchase_id":-1}`,
		"unknown field":    `{"property_id":3,"extra":true}`,
		"malformed":        `{"property_id":`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			svc := &stubConsumer{}
			req := withOwner(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)), "owner-1")
			rec := httptest.NewRecorder()
			OwnerConsumePlan(svc, nil).ServeHTTP(rec, req)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400 got %d", rec.Code)
			}
			if svc.calls != 0 {
				t.Fatalf("service should not be called")
			}
		})
	}
}

func TestOwnerConsumePlanMapsDomainErrors(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{pkgerrors.New(pkgerrors.CodeNoEligibleEntitlement, "no unused plan"), http.StatusConflict, string(pkgerrors.CodeNoEligibleEntitlement)},
		{pkgerrors.New(pkgerrors.CodeAlreadyConsumed, "plan already used"), http.StatusConflict, string(pkgerrors.CodeAlreadyConsumed)},
		{pkgerrors.New(pkgerrors.CodeNotFound, "plan purchase not found"), http.StatusNotFound, string(pkgerrors.CodeNotFound)},
		{errors.New("boom"), http.StatusInternalServerError, string(pkgerrors.CodeInternal)},
	}
	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			svc := &stubConsumer{err: tc.err}
			req := withOwner(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"property_id":9}`)), "owner-1")
			rec := httptest.NewRecorder()
			OwnerConsumePlan(svc, nil).ServeHTTP(rec, req)
			if rec.Code != tc.status {
				t.Fatalf("expected %d got %d", tc.status, rec.Code)
			}
			if got := errorCode(t, rec); got != tc.code {
				t.Fatalf("expected code %s got %s", tc.code, got)
			}
		})
	}
}

func TestOwnerStartPlanCheckout(t *testing.T) {
	svc := &stubCheckoutStarter{}
	body := `{"plan_id":"gold","property_id":42,"interval":"monthly"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/owner/plans/checkout", strings.NewReader(body))
	req = req.WithContext(middleware.WithEmail(middleware.WithUserID(req.Context(), "owner-1"), "owner@example.com"))
	rec := httptest.NewRecorder()
	OwnerStartPlanCheckout(svc, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d (%s)", rec.Code, rec.Body.String())
	}
	in := svc.input
	if in.UserID != "owner-1" || in.Email != "owner@example.com" || in.PlanID != "gold" || in.Interval != "monthly" {
		t.Fatalf("unexpected input %+v", in)
	}
	if in.PropertyID == nil || *in.PropertyID != 42 {
		t.Fatalf("expected property 42, got %v", in.PropertyID)
	}
	var session plans.CheckoutSession
	decodeData(t, rec, &session)
	if session.SessionID != "cs_new" || session.URL == "" {
		t.Fatalf("unexpected session %+v", session)
	}
}

func TestOwnerStartPlanCheckoutValidation(t *testing.T) {
	cases := map[string]string{
		"missing plan":  `{}`,
		"unknown plan":  `{"plan_id":"platinum"}`,
		"bad interval":  `{"plan_id":"gold","interval":"weekly"}`,
		"zero property": `{"plan_id":"gold","property_id":0}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			svc := &stubCheckoutStarter{}
			req := withOwner(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)), "owner-1")
			rec := httptest.NewRecorder()
			OwnerStartPlanCheckout(svc, nil).ServeHTTP(rec, req)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400 got %d", rec.Code)
			}
			if svc.calls != 0 {
				t.Fatal("service should not be called")
			}
		})
	}
}

func TestOwnerStartPlanCheckoutDependencyFailure(t *testing.T) {
	svc := &stubCheckoutStarter{err: pkgerrors.Wrap(pkgerrors.CodeDependency, errors.New("stripe down"), "create checkout session")}
	req := withOwner(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"plan_id":"gold"}`)), "owner-1")
	rec := httptest.NewRecorder()
	OwnerStartPlanCheckout(svc, nil).ServeHTTP(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d", rec.Code)
	}
	if got := errorCode(t, rec); got != string(pkgerrors.CodeDependency) {
		t.Fatalf("expected dependency code, got %s", got)
	}
}

func TestAdminListPlanPurchasesPassesFilters(t *testing.T) {
	next := &pagination.Cursor{SortAt: controllerNow, ID: 5}
	svc := &stubPurchaseLister{rows: []models.PlanPurchase{purchaseRow(5, controllerNow.AddDate(-2, 0, 0))}, next: next}
	req := httptest.NewRequest(http.MethodGet, "/api/admin/v1/plan-purchases?limit=10&used=false&user_id=owner-1&plan_id=silver&cursor=abc", nil)
	rec := httptest.NewRecorder()
	AdminListPlanPurchases(svc, nil, fixedClock).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d (%s)", rec.Code, rec.Body.String())
	}
	p := svc.params
	if p.Limit != 10 || p.UserID != "owner-1" || p.PlanID != "silver" || p.Cursor != "abc" {
		t.Fatalf("unexpected params: %+v", p)
	}
	if p.Used == nil || *p.Used {
		t.Fatalf("expected used=false filter, got %v", p.Used)
	}

	var body purchaseListResponse
	decodeData(t, rec, &body)
	if body.NextCursor != pagination.EncodeCursor(*next) {
		t.Fatalf("unexpected cursor %q", body.NextCursor)
	}
	if len(body.Purchases) != 1 || !body.Purchases[0].Expired {
		t.Fatalf("expected one expired purchase, got %+v", body.Purchases)
	}
}

func TestAdminListPlanPurchasesRejectsBadQuery(t *testing.T) {
	for _, query := range []string{"limit=0", "limit=1000", "limit=abc", "used=maybe"} {
		svc := &stubPurchaseLister{}
		rec := httptest.NewRecorder()
		AdminListPlanPurchases(svc, nil, fixedClock).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/?"+query, nil))
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400 got %d", query, rec.Code)
		}
	}
}

func TestAdminReconcileSessions(t *testing.T) {
	svc := &stubSessionReconciler{report: &reconcile.BatchReport{Scanned: 2}}
	body := `{"session_id":" cs_1 ","session_ids":["cs_2"]}`
	rec := httptest.NewRecorder()
	AdminReconcileSessions(svc, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d (%s)", rec.Code, rec.Body.String())
	}
	if len(svc.ids) != 2 || svc.ids[0] != "cs_1" || svc.ids[1] != "cs_2" {
		t.Fatalf("unexpected ids: %v", svc.ids)
	}
	var report reconcile.BatchReport
	decodeData(t, rec, &report)
	if report.Scanned != 2 {
		t.Fatalf("unexpected report: %+v", report)
	}
}

func TestAdminReconcileSessionsRequiresIDs(t *testing.T) {
	svc := &stubSessionReconciler{}
	rec := httptest.NewRecorder()
	AdminReconcileSessions(svc, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
	if svc.ids != nil {
		t.Fatalf("reconciler should not be called")
	}
}

func TestAdminReconcileSessionsRejectsNonSessionIDs(t *testing.T) {
	for name, body := range map[string]string{
		"single id": `{"session_id":"pi_123"}`,
		"id list":   `{"session_ids":["cs_ok","sub_123"]}`,
	} {
		t.Run(name, func(t *testing.T) {
			svc := &stubSessionReconciler{}
			rec := httptest.NewRecorder()
			AdminReconcileSessions(svc, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)))
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400 got %d", rec.Code)
			}
			if svc.ids != nil {
				t.Fatalf("reconciler should not be called")
			}
		})
	}
}

func TestAdminSweepRecent(t *testing.T) {
	t.Run("default limit on empty body", func(t *testing.T) {
		svc := &stubSessionReconciler{report: &reconcile.BatchReport{}}
		rec := httptest.NewRecorder()
		AdminSweepRecent(svc, 50, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200 got %d", rec.Code)
		}
		if svc.limit != 50 {
			t.Fatalf("expected default limit 50, got %d", svc.limit)
		}
	})

	t.Run("explicit limit", func(t *testing.T) {
		svc := &stubSessionReconciler{report: &reconcile.BatchReport{}}
		rec := httptest.NewRecorder()
		AdminSweepRecent(svc, 50, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"limit":5}`)))
		if svc.limit != 5 {
			t.Fatalf("expected limit 5, got %d", svc.limit)
		}
	})

	t.Run("stripe failure", func(t *testing.T) {
		svc := &stubSessionReconciler{sweepErr: pkgerrors.New(pkgerrors.CodeDependency, "list checkout sessions")}
		rec := httptest.NewRecorder()
		AdminSweepRecent(svc, 50, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
		if rec.Code != http.StatusServiceUnavailable {
			t.Fatalf("expected 503 got %d", rec.Code)
		}
	})
}

func TestHealthReady(t *testing.T) {
	cfg := &config.Config{App: config.AppConfig{Env: "test"}}

	rec := httptest.NewRecorder()
	HealthReady(cfg, nil, map[string]Pinger{"db": stubPinger{}, "redis": stubPinger{}}).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if rec.Header().Get("X-GEH-Env") != "test" {
		t.Fatalf("missing env header")
	}

	rec = httptest.NewRecorder()
	HealthReady(cfg, nil, map[string]Pinger{"redis": stubPinger{err: errors.New("refused")}}).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	HealthLive(cfg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
}
