package controllers

import (
	"net/http"

	"github.com/groupescapehouses/escape-backend/api/responses"
	"github.com/groupescapehouses/escape-backend/internal/planpurchases"
	"github.com/groupescapehouses/escape-backend/internal/plans"
	pkgerrors "github.com/groupescapehouses/escape-backend/pkg/errors"
	"github.com/groupescapehouses/escape-backend/pkg/logger"
)

type planResponse struct {
	ID                   string   `json:"id"`
	Name                 string   `json:"name"`
	Currency             string   `json:"currency"`
	YearlyAmount         int64    `json:"yearly_amount"`
	YearlyAmountDisplay  string   `json:"yearly_amount_display"`
	MonthlyAmount        int64    `json:"monthly_amount"`
	MonthlyAmountDisplay string   `json:"monthly_amount_display"`
	YearlyPriceID        string   `json:"yearly_price_id,omitempty"`
	MonthlyPriceID       string   `json:"monthly_price_id,omitempty"`
	Features             []string `json:"features"`
}

// PlansCatalog serves the purchasable listing tiers.
func PlansCatalog(catalog *plans.Catalog, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if catalog == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "plan catalog unavailable"))
			return
		}
		out := make([]planResponse, 0, len(catalog.Plans()))
		for _, p := range catalog.Plans() {
			features := p.Features
			if features == nil {
				features = []string{}
			}
			out = append(out, planResponse{
				ID:                   p.ID.String(),
				Name:                 p.Name,
				Currency:             p.Currency,
				YearlyAmount:         p.YearlyAmount,
				YearlyAmountDisplay:  planpurchases.FormatAmount(p.YearlyAmount),
				MonthlyAmount:        p.MonthlyAmount,
				MonthlyAmountDisplay: planpurchases.FormatAmount(p.MonthlyAmount),
				YearlyPriceID:        p.YearlyPriceID,
				MonthlyPriceID:       p.MonthlyPriceID,
				Features:             features,
			})
		}
		responses.WriteSuccess(w, map[string]any{"plans": out})
	}
}
