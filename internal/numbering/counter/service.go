package counter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/numera-app/numera/internal/numbering"
	"github.com/numera-app/numera/internal/shared"
)

var (
	// ErrSellerUnknown indicates the audited seller does not exist.
	ErrSellerUnknown = errors.New("counter: unknown seller")
	// ErrInvalidPeriodKey indicates a malformed period key.
	ErrInvalidPeriodKey = errors.New("counter: invalid period key")
)

// Store is the persistence surface the service needs. The concrete
// *Repository also exposes tx-scoped methods consumed by the issuance
// path directly.
type Store interface {
	Increment(ctx context.Context, sellerID int64, resetPeriod numbering.ResetPeriod, periodKey string) (int64, error)
	Get(ctx context.Context, sellerID int64, periodKey string) (*Counter, error)
	ListBySeller(ctx context.Context, sellerID int64) ([]Counter, error)
	ListSellerIDs(ctx context.Context) ([]int64, error)
	InvoiceCounts(ctx context.Context, sellerID int64) (map[string]int64, error)
	RaiseTo(ctx context.Context, sellerID int64, periodKey string, value int64) (int64, error)
}

// SellerDirectory is the slice of the seller registry the audit needs.
type SellerDirectory interface {
	Exists(ctx context.Context, sellerID int64) (bool, error)
}

// TemplateSource yields the template currently in force for a seller.
type TemplateSource interface {
	CurrentTemplate(ctx context.Context, sellerID int64) (string, error)
}

// Auditor records administrative counter mutations.
type Auditor interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service owns sequence allocation and the drift audit.
type Service struct {
	logger  *slog.Logger
	store   Store
	sellers SellerDirectory
	schemes TemplateSource
	auditor Auditor
	auditSF singleflight.Group
}

func NewService(logger *slog.Logger, store Store, sellers SellerDirectory, schemes TemplateSource, auditor Auditor) *Service {
	return &Service{logger: logger, store: store, sellers: sellers, schemes: schemes, auditor: auditor}
}

// NextSequence allocates the next value for (seller, period bucket) and
// returns it. Exactly-once and strictly increasing per bucket; callers
// that abandon the issuance afterwards leave a gap, which is deliberate.
func (s *Service) NextSequence(ctx context.Context, sellerID int64, resetPeriod numbering.ResetPeriod, issueDate time.Time) (int64, error) {
	key, err := numbering.PeriodKeyFor(resetPeriod, issueDate)
	if err != nil {
		return 0, err
	}
	value, err := s.store.Increment(ctx, sellerID, resetPeriod, key)
	if err != nil {
		return 0, fmt.Errorf("counter increment for seller %d period %s: %w", sellerID, key, err)
	}
	return value, nil
}

// Peek returns the value the next issuance would receive, without
// consuming it. Advisory only: a concurrent issuance can take the value
// between the peek and the caller's own issuance.
func (s *Service) Peek(ctx context.Context, sellerID int64, resetPeriod numbering.ResetPeriod, issueDate time.Time) (int64, error) {
	key, err := numbering.PeriodKeyFor(resetPeriod, issueDate)
	if err != nil {
		return 0, err
	}
	c, err := s.store.Get(ctx, sellerID, key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return 1, nil
		}
		return 0, err
	}
	return c.LastValue + 1, nil
}

// ListSellerIDs returns every seller owning at least one counter.
func (s *Service) ListSellerIDs(ctx context.Context) ([]int64, error) {
	return s.store.ListSellerIDs(ctx)
}

// AuditCounters builds the drift report for a seller: every counter
// bucket with its expected value derived from the invoice records.
// Reads take no lock; a row observed mid-issuance may report transient
// drift, which is acceptable for diagnostic output. Concurrent audits
// for the same seller are collapsed to one query via singleflight.
func (s *Service) AuditCounters(ctx context.Context, sellerID int64) (*AuditReport, error) {
	v, err, _ := s.auditSF.Do(strconv.FormatInt(sellerID, 10), func() (any, error) {
		return s.buildAudit(ctx, sellerID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*AuditReport), nil
}

func (s *Service) buildAudit(ctx context.Context, sellerID int64) (*AuditReport, error) {
	ok, err := s.sellers.Exists(ctx, sellerID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: seller %d", ErrSellerUnknown, sellerID)
	}

	counters, err := s.store.ListBySeller(ctx, sellerID)
	if err != nil {
		return nil, err
	}
	counts, err := s.store.InvoiceCounts(ctx, sellerID)
	if err != nil {
		return nil, err
	}

	rows := make([]AuditRow, 0, len(counters))
	for _, c := range counters {
		expected := counts[c.PeriodKey] + c.BaseOffset
		rows = append(rows, AuditRow{
			PeriodKey:         c.PeriodKey,
			ResetPeriod:       c.ResetPeriod,
			LastValue:         c.LastValue,
			InvoiceCount:      counts[c.PeriodKey],
			ExpectedValue:     expected,
			LastInvoiceNumber: c.LastInvoiceNumber,
			UpdatedAt:         c.UpdatedAt,
			HasDrift:          expected != c.LastValue,
		})
	}
	// Drifting buckets first so they surface at the top of the report,
	// then newest period first.
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].HasDrift != rows[j].HasDrift {
			return rows[i].HasDrift
		}
		return rows[i].PeriodKey > rows[j].PeriodKey
	})

	template, err := s.schemes.CurrentTemplate(ctx, sellerID)
	if err != nil {
		s.logger.Warn("current template lookup failed", slog.Any("error", err), slog.Int64("seller_id", sellerID))
	}
	return &AuditReport{SellerID: sellerID, CurrentTemplate: template, Counters: rows}, nil
}

// Reconcile lifts a drifted counter up to its expected value. Forward
// only: when the counter is already at or past the expected value the
// call is a no-op, so a reconcile can waste sequence numbers but never
// reissue one. Drift is otherwise never corrected automatically.
func (s *Service) Reconcile(ctx context.Context, actor string, sellerID int64, periodKey string) (*AuditRow, error) {
	if !numbering.ValidPeriodKey(periodKey) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPeriodKey, periodKey)
	}
	c, err := s.store.Get(ctx, sellerID, periodKey)
	if err != nil {
		return nil, err
	}
	counts, err := s.store.InvoiceCounts(ctx, sellerID)
	if err != nil {
		return nil, err
	}
	expected := counts[periodKey] + c.BaseOffset

	newValue, err := s.store.RaiseTo(ctx, sellerID, periodKey, expected)
	if err != nil {
		return nil, err
	}
	s.logger.Info("counter reconciled",
		slog.Int64("seller_id", sellerID), slog.String("period_key", periodKey),
		slog.Int64("from", c.LastValue), slog.Int64("to", newValue))
	if s.auditor != nil {
		err := s.auditor.Record(ctx, shared.AuditLog{
			Actor:    actor,
			Action:   "counter.reconcile",
			Entity:   "invoice_counter",
			EntityID: fmt.Sprintf("%d/%s", sellerID, periodKey),
			Meta: map[string]any{
				"from":     c.LastValue,
				"to":       newValue,
				"expected": expected,
			},
		})
		if err != nil {
			s.logger.Error("audit record failed", slog.Any("error", err), slog.String("action", "counter.reconcile"))
		}
	}

	return &AuditRow{
		PeriodKey:         periodKey,
		ResetPeriod:       c.ResetPeriod,
		LastValue:         newValue,
		InvoiceCount:      counts[periodKey],
		ExpectedValue:     expected,
		LastInvoiceNumber: c.LastInvoiceNumber,
		UpdatedAt:         time.Now().UTC(),
		HasDrift:          expected != newValue,
	}, nil
}
