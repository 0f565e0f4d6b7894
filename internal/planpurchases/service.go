package planpurchases

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/groupescapehouses/escape-backend/pkg/db/models"
	"github.com/groupescapehouses/escape-backend/pkg/enums"
	pkgerrors "github.com/groupescapehouses/escape-backend/pkg/errors"
	"github.com/groupescapehouses/escape-backend/pkg/pagination"
)

type ServiceParams struct {
	Repo Repository
	Now  func() time.Time
}

// Service answers read-side questions about plan purchases.
type Service struct {
	repo Repository
	now  func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, errors.New("repo is required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Service{repo: params.Repo, now: now}, nil
}

// ListUnusedEntitlements returns the user's live plans, newest purchase first.
func (s *Service) ListUnusedEntitlements(ctx context.Context, userID string) ([]models.PlanPurchase, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	rows, err := s.repo.ListUnusedByUser(ctx, userID, UnusedFilter{NewestFirst: true})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list unused plan purchases")
	}
	return FilterAvailable(rows, s.now()), nil
}

type ListPurchasesParams struct {
	UserID string
	PlanID string
	Used   *bool
	Limit  int
	Cursor string
}

// ListAllPurchases pages through every purchase for operators.
func (s *Service) ListAllPurchases(ctx context.Context, params ListPurchasesParams) ([]models.PlanPurchase, *pagination.Cursor, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	query := ListQuery{
		UserID: strings.TrimSpace(params.UserID),
		Used:   params.Used,
		Limit:  params.Limit,
		Cursor: cursor,
	}
	if strings.TrimSpace(params.PlanID) != "" {
		tier, err := enums.ParsePlanTier(params.PlanID)
		if err != nil {
			return nil, nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid plan id")
		}
		query.PlanID = &tier
	}

	rows, next, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list plan purchases")
	}
	return rows, next, nil
}

// Summary is the store-wide usage breakdown. Expired counts unused rows whose window has closed.
type Summary struct {
	Total     int64 `json:"total"`
	Used      int64 `json:"used"`
	Available int64 `json:"available"`
	Expired   int64 `json:"expired"`
}

func (s *Service) Summarize(ctx context.Context) (Summary, error) {
	counts, err := s.repo.CountByUsage(ctx)
	if err != nil {
		return Summary{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count plan purchases")
	}
	unused, err := s.repo.ListUnused(ctx)
	if err != nil {
		return Summary{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list unused plan purchases")
	}

	now := s.now()
	summary := Summary{Total: counts.Used + counts.Unused, Used: counts.Used}
	for _, p := range unused {
		if IsExpired(p.PurchasedAt, now) {
			summary.Expired++
		} else {
			summary.Available++
		}
	}
	return summary, nil
}
