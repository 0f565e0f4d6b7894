package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/groupescapehouses/escape-backend/pkg/enums"
	"github.com/groupescapehouses/escape-backend/pkg/logger"
	"go.uber.org/multierr"
)

const defaultEventTimeout = 15 * time.Second

// EventSource reads checkout sessions from the payment processor.
type EventSource interface {
	RetrieveCheckoutSession(ctx context.Context, sessionID string) (PaymentEvent, error)
	ListRecentCheckoutSessions(ctx context.Context, limit int) ([]PaymentEvent, error)
}

// Reconciler is the single-event operation the sweeper fans out to.
type Reconciler interface {
	ReconcilePaymentEvent(ctx context.Context, event PaymentEvent) (Outcome, error)
}

// SessionResult is one line of a batch report.
type SessionResult struct {
	SessionID      string                 `json:"session_id"`
	Outcome        enums.ReconcileOutcome `json:"outcome,omitempty"`
	PlanPurchaseID int64                  `json:"plan_purchase_id,omitempty"`
	Error          string                 `json:"error,omitempty"`
}

// BatchReport summarises a multi-session run. Failed sessions do not stop the batch.
type BatchReport struct {
	Scanned  int                            `json:"scanned"`
	Counts   map[enums.ReconcileOutcome]int `json:"counts"`
	Created  []int64                        `json:"created"`
	Failed   int                            `json:"failed"`
	Sessions []SessionResult                `json:"sessions"`

	errs error
}

func newBatchReport() *BatchReport {
	return &BatchReport{Counts: map[enums.ReconcileOutcome]int{}, Created: []int64{}}
}

func (r *BatchReport) add(sessionID string, out Outcome, err error) {
	r.Scanned++
	res := SessionResult{SessionID: sessionID}
	if err != nil {
		r.Failed++
		res.Error = err.Error()
		r.errs = multierr.Append(r.errs, fmt.Errorf("session %s: %w", sessionID, err))
		r.Sessions = append(r.Sessions, res)
		return
	}
	res.Outcome, res.PlanPurchaseID = out.Kind, out.PlanPurchaseID
	r.Counts[out.Kind]++
	if out.Kind == enums.ReconcileOutcomeCreated {
		r.Created = append(r.Created, out.PlanPurchaseID)
	}
	r.Sessions = append(r.Sessions, res)
}

// Err combines every per-session failure, or nil when all succeeded.
func (r *BatchReport) Err() error {
	if r == nil {
		return nil
	}
	return r.errs
}

type SweeperParams struct {
	Source       EventSource
	Reconciler   Reconciler
	Logger       *logger.Logger
	EventTimeout time.Duration
	MaxLimit     int
}

// Sweeper re-reads checkout sessions from Stripe and reconciles each one.
type Sweeper struct {
	source       EventSource
	reconciler   Reconciler
	logg         *logger.Logger
	eventTimeout time.Duration
	maxLimit     int
}

func NewSweeper(params SweeperParams) (*Sweeper, error) {
	if params.Source == nil {
		return nil, errors.New("event source is required")
	}
	if params.Reconciler == nil {
		return nil, errors.New("reconciler is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	timeout := params.EventTimeout
	if timeout <= 0 {
		timeout = defaultEventTimeout
	}
	maxLimit := params.MaxLimit
	if maxLimit <= 0 {
		maxLimit = 100
	}
	return &Sweeper{
		source:       params.Source,
		reconciler:   params.Reconciler,
		logg:         params.Logger,
		eventTimeout: timeout,
		maxLimit:     maxLimit,
	}, nil
}

// SweepRecent reconciles the last limit checkout sessions. The returned error
// covers listing only; per-session failures live in the report.
func (s *Sweeper) SweepRecent(ctx context.Context, limit int) (*BatchReport, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}
	if limit > s.maxLimit {
		limit = s.maxLimit
	}
	ctx = s.logg.WithField(ctx, "limit", limit)

	listCtx, cancel := context.WithTimeout(ctx, s.eventTimeout)
	events, err := s.source.ListRecentCheckoutSessions(listCtx, limit)
	cancel()
	if err != nil {
		s.logg.Error(ctx, "list recent checkout sessions failed", err)
		return nil, err
	}

	report := newBatchReport()
	for _, ev := range events {
		if ctx.Err() != nil {
			report.add(ev.SessionID, Outcome{}, ctx.Err())
			continue
		}
		ev.Source = SourceSweep
		out, err := s.reconcileOne(ctx, ev)
		report.add(ev.SessionID, out, err)
	}
	s.logSummary(ctx, report)
	return report, nil
}

// ReconcileSessions retrieves and reconciles each named session independently.
func (s *Sweeper) ReconcileSessions(ctx context.Context, sessionIDs []string) *BatchReport {
	report := newBatchReport()
	seen := make(map[string]struct{}, len(sessionIDs))
	for _, id := range sessionIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if ctx.Err() != nil {
			report.add(id, Outcome{}, ctx.Err())
			continue
		}
		out, err := s.retrieveAndReconcile(ctx, id)
		report.add(id, out, err)
	}
	s.logSummary(ctx, report)
	return report
}

func (s *Sweeper) retrieveAndReconcile(ctx context.Context, sessionID string) (Outcome, error) {
	ctx, cancel := context.WithTimeout(ctx, s.eventTimeout)
	defer cancel()

	ev, err := s.source.RetrieveCheckoutSession(ctx, sessionID)
	if err != nil {
		s.logg.Error(s.logg.WithSessionID(ctx, sessionID), "retrieve checkout session failed", err)
		return Outcome{}, err
	}
	ev.Source = SourceManual
	return s.reconciler.ReconcilePaymentEvent(ctx, ev)
}

func (s *Sweeper) reconcileOne(ctx context.Context, ev PaymentEvent) (Outcome, error) {
	ctx, cancel := context.WithTimeout(ctx, s.eventTimeout)
	defer cancel()
	return s.reconciler.ReconcilePaymentEvent(ctx, ev)
}

func (s *Sweeper) logSummary(ctx context.Context, report *BatchReport) {
	fields := map[string]any{
		"scanned": report.Scanned,
		"created": len(report.Created),
		"failed":  report.Failed,
	}
	for kind, n := range report.Counts {
		fields[kind.String()] = n
	}
	s.logg.Info(s.logg.WithFields(ctx, fields), "checkout session batch reconciled")
}
