package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/groupescapehouses/escape-backend/api/middleware"
	"github.com/groupescapehouses/escape-backend/api/responses"
	"github.com/groupescapehouses/escape-backend/api/validators"
	"github.com/groupescapehouses/escape-backend/internal/entitlements"
	"github.com/groupescapehouses/escape-backend/internal/planpurchases"
	"github.com/groupescapehouses/escape-backend/internal/plans"
	"github.com/groupescapehouses/escape-backend/pkg/db/models"
	pkgerrors "github.com/groupescapehouses/escape-backend/pkg/errors"
	"github.com/groupescapehouses/escape-backend/pkg/logger"
)

// UnusedPlansService lists an owner's live plans.
type UnusedPlansService interface {
	ListUnusedEntitlements(ctx context.Context, userID string) ([]models.PlanPurchase, error)
}

// EntitlementConsumer attaches one of the owner's plans to a property.
type EntitlementConsumer interface {
	ConsumeEntitlement(ctx context.Context, input entitlements.ConsumeInput) (*entitlements.ConsumeResult, error)
}

// PlanCheckoutStarter opens a Stripe checkout for a listing plan.
type PlanCheckoutStarter interface {
	StartCheckout(ctx context.Context, input plans.CheckoutInput) (*plans.CheckoutSession, error)
}

type unusedPlansResponse struct {
	HasUnusedPlan bool                        `json:"has_unused_plan"`
	Plans         []planpurchases.PurchaseDTO `json:"plans"`
}

type consumeRequest struct {
	PropertyID     int64  `json:"property_id" validate:"required,gt=0"`
	PlanPurchaseID *int64 `json:"plan_purchase_id" validate:"omitempty,gt=0"`
	PlanID         string `json:"plan_id" validate:"omitempty,max=32"`
}

type checkoutRequest struct {
	PlanID     string `json:"plan_id" validate:"required,oneof=bronze silver gold"`
	PropertyID *int64 `json:"property_id" validate:"omitempty,gt=0"`
	Interval   string `json:"interval" validate:"omitempty,oneof=yearly monthly"`
}

// OwnerUnusedPlans returns the caller's unused, unexpired plans, newest first.
func OwnerUnusedPlans(svc UnusedPlansService, logg *logger.Logger, now func() time.Time) http.HandlerFunc {
	if now == nil {
		now = time.Now
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "plan purchase service unavailable"))
			return
		}
		userID := middleware.UserIDFromContext(ctx)
		if userID == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing"))
			return
		}

		rows, err := svc.ListUnusedEntitlements(ctx, userID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, unusedPlansResponse{
			HasUnusedPlan: len(rows) > 0,
			Plans:         planpurchases.ToDTOs(rows, now()),
		})
	}
}

// OwnerConsumePlan attaches a live plan to one of the caller's properties.
func OwnerConsumePlan(svc EntitlementConsumer, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "entitlement service unavailable"))
			return
		}
		userID := middleware.UserIDFromContext(ctx)
		if userID == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing"))
			return
		}

		var req consumeRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		result, err := svc.ConsumeEntitlement(ctx, entitlements.ConsumeInput{
			UserID:         userID,
			PropertyID:     req.PropertyID,
			PlanPurchaseID: req.PlanPurchaseID,
			PlanID:         validators.SanitizeString(req.PlanID, 32),
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// OwnerStartPlanCheckout opens a checkout for a plan, optionally bound to an
// existing listing. The client redirects to the returned url.
func OwnerStartPlanCheckout(svc PlanCheckoutStarter, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}
		userID := middleware.UserIDFromContext(ctx)
		if userID == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing"))
			return
		}

		var req checkoutRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		session, err := svc.StartCheckout(ctx, plans.CheckoutInput{
			UserID:     userID,
			Email:      middleware.EmailFromContext(ctx),
			PlanID:     req.PlanID,
			PropertyID: req.PropertyID,
			Interval:   req.Interval,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, session)
	}
}
