package controllers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/groupescapehouses/escape-backend/api/responses"
	"github.com/groupescapehouses/escape-backend/api/validators"
	"github.com/groupescapehouses/escape-backend/internal/planpurchases"
	"github.com/groupescapehouses/escape-backend/internal/reconcile"
	"github.com/groupescapehouses/escape-backend/pkg/db/models"
	pkgerrors "github.com/groupescapehouses/escape-backend/pkg/errors"
	"github.com/groupescapehouses/escape-backend/pkg/logger"
	"github.com/groupescapehouses/escape-backend/pkg/pagination"
)

// PurchaseLister pages through plan purchases for operators.
type PurchaseLister interface {
	ListAllPurchases(ctx context.Context, params planpurchases.ListPurchasesParams) ([]models.PlanPurchase, *pagination.Cursor, error)
}

// SessionReconciler replays Stripe checkout sessions through reconciliation.
type SessionReconciler interface {
	ReconcileSessions(ctx context.Context, sessionIDs []string) *reconcile.BatchReport
	SweepRecent(ctx context.Context, limit int) (*reconcile.BatchReport, error)
}

type purchaseListResponse struct {
	Purchases  []planpurchases.PurchaseDTO `json:"purchases"`
	NextCursor string                      `json:"next_cursor,omitempty"`
}

type reconcileRequest struct {
	SessionID  string   `json:"session_id" validate:"omitempty,max=255,checkout_session"`
	SessionIDs []string `json:"session_ids" validate:"omitempty,max=100,dive,required,max=255,checkout_session"`
}

type sweepRequest struct {
	Limit int `json:"limit" validate:"omitempty,gt=0"`
}

// AdminListPlanPurchases lists purchases filtered by user, plan and usage.
func AdminListPlanPurchases(svc PurchaseLister, logg *logger.Logger, now func() time.Time) http.HandlerFunc {
	if now == nil {
		now = time.Now
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "plan purchase service unavailable"))
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		used, err := validators.ParseQueryBool(r, "used")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		query := r.URL.Query()

		rows, next, err := svc.ListAllPurchases(ctx, planpurchases.ListPurchasesParams{
			UserID: validators.SanitizeString(query.Get("user_id"), 128),
			PlanID: validators.SanitizeString(query.Get("plan_id"), 32),
			Used:   used,
			Limit:  limit,
			Cursor: strings.TrimSpace(query.Get("cursor")),
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		resp := purchaseListResponse{Purchases: planpurchases.ToDTOs(rows, now())}
		if next != nil {
			resp.NextCursor = pagination.EncodeCursor(*next)
		}
		responses.WriteSuccess(w, resp)
	}
}

// AdminReconcileSessions re-reads the named checkout sessions and records any missing purchases.
func AdminReconcileSessions(svc SessionReconciler, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reconciler unavailable"))
			return
		}

		var req reconcileRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		ids := req.SessionIDs
		if id := strings.TrimSpace(req.SessionID); id != "" {
			ids = append([]string{id}, ids...)
		}
		if len(ids) == 0 {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "session_id is required").
				WithDetails(map[string]string{"session_id": "is required"}))
			return
		}

		report := svc.ReconcileSessions(ctx, ids)
		responses.WriteSuccess(w, report)
	}
}

// AdminSweepRecent reconciles the most recent checkout sessions.
func AdminSweepRecent(svc SessionReconciler, defaultLimit int, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reconciler unavailable"))
			return
		}

		var req sweepRequest
		if err := validators.DecodeOptionalJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		limit := req.Limit
		if limit <= 0 {
			limit = defaultLimit
		}

		report, err := svc.SweepRecent(ctx, limit)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, report)
	}
}
