package invoicing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/numera-app/numera/internal/numbering"
	"github.com/numera-app/numera/internal/numbering/scheme"
	"github.com/numera-app/numera/internal/sellers"
	"github.com/numera-app/numera/internal/shared"
)

var (
	// ErrInvalidRequest indicates a malformed issuance payload.
	ErrInvalidRequest = errors.New("invoicing: invalid request")
	// ErrSellerUnknown indicates the seller does not exist.
	ErrSellerUnknown = errors.New("invoicing: unknown seller")
	// ErrSellerInactive indicates the seller is deactivated.
	ErrSellerInactive = errors.New("invoicing: seller deactivated")
	// ErrNoScheme indicates no numbering scheme covers the issue date.
	ErrNoScheme = errors.New("invoicing: no numbering scheme")
	// ErrDuplicateRequest indicates an idempotency key replay.
	ErrDuplicateRequest = errors.New("invoicing: duplicate request")
)

const idempotencyModule = "invoicing"

// issuanceStore is the persistence surface the service needs.
type issuanceStore interface {
	IssueAtomic(ctx context.Context, draft *Invoice, resetPeriod numbering.ResetPeriod, render func(sequence int64) (string, error)) (*Invoice, error)
	GetByReference(ctx context.Context, reference uuid.UUID) (*Invoice, error)
	ListBySeller(ctx context.Context, sellerID int64, limit int) ([]Invoice, error)
}

// SellerDirectory is the slice of the seller registry issuance needs.
type SellerDirectory interface {
	Get(ctx context.Context, id int64) (*sellers.Seller, error)
}

// SchemeSource resolves the numbering scheme for an issue date.
type SchemeSource interface {
	Effective(ctx context.Context, sellerID int64, date time.Time) (*scheme.Scheme, error)
}

// SequencePeeker previews the next sequence value without consuming it.
type SequencePeeker interface {
	Peek(ctx context.Context, sellerID int64, resetPeriod numbering.ResetPeriod, issueDate time.Time) (int64, error)
}

// IdempotencyGuard deduplicates issuance requests by client-supplied key.
type IdempotencyGuard interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// Meter records issuance metrics.
type Meter interface {
	InvoiceIssued(sellerID int64)
}

// Auditor records issuance events.
type Auditor interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service owns the invoice issuance workflow.
type Service struct {
	logger   *slog.Logger
	store    issuanceStore
	sellers  SellerDirectory
	schemes  SchemeSource
	peeker   SequencePeeker
	idem     IdempotencyGuard
	auditor  Auditor
	meter    Meter
	validate *validator.Validate
}

func NewService(logger *slog.Logger, store issuanceStore, sellerDir SellerDirectory, schemes SchemeSource, peeker SequencePeeker, idem IdempotencyGuard, auditor Auditor, meter Meter) *Service {
	return &Service{
		logger:   logger,
		store:    store,
		sellers:  sellerDir,
		schemes:  schemes,
		peeker:   peeker,
		idem:     idem,
		auditor:  auditor,
		meter:    meter,
		validate: validator.New(),
	}
}

func (s *Service) department(code, name *string) *numbering.Department {
	if code == nil || *code == "" {
		return nil
	}
	dept := &numbering.Department{Code: *code}
	if name != nil {
		dept.Name = *name
	}
	return dept
}

func (s *Service) resolve(ctx context.Context, sellerID int64, issueDate time.Time) (*scheme.Scheme, string, error) {
	sch, err := s.schemes.Effective(ctx, sellerID, issueDate)
	if err != nil {
		if errors.Is(err, scheme.ErrNoEffectiveScheme) {
			return nil, "", fmt.Errorf("%w: seller %d on %s", ErrNoScheme, sellerID, issueDate.Format("2006-01-02"))
		}
		return nil, "", err
	}
	periodKey, err := numbering.PeriodKeyFor(sch.ResetPeriod, issueDate)
	if err != nil {
		return nil, "", err
	}
	return sch, periodKey, nil
}

// Issue finalizes an invoice: allocates the next sequence value for the
// seller's period bucket, renders the number under the scheme in force on
// the issue date and persists the invoice, all in one transaction. An
// abandoned issuance after commit leaves a numbering gap; a gap is
// acceptable, a duplicate number is not.
func (s *Service) Issue(ctx context.Context, actor, idempotencyKey string, req IssueInvoiceRequest) (*Invoice, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidRequest, err)
	}
	issueDate, err := time.Parse("2006-01-02", req.IssueDate)
	if err != nil {
		return nil, fmt.Errorf("%w: issue_date must be YYYY-MM-DD", ErrInvalidRequest)
	}

	seller, err := s.sellers.Get(ctx, req.SellerID)
	if err != nil {
		if errors.Is(err, sellers.ErrNotFound) {
			return nil, fmt.Errorf("%w: seller %d", ErrSellerUnknown, req.SellerID)
		}
		return nil, err
	}
	if !seller.IsActive {
		return nil, fmt.Errorf("%w: seller %d", ErrSellerInactive, req.SellerID)
	}

	sch, periodKey, err := s.resolve(ctx, req.SellerID, issueDate)
	if err != nil {
		return nil, err
	}

	if idempotencyKey != "" {
		if err := s.idem.CheckAndInsert(ctx, idempotencyKey, idempotencyModule); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				return nil, fmt.Errorf("%w: key %q", ErrDuplicateRequest, idempotencyKey)
			}
			return nil, err
		}
	}

	dept := s.department(req.DepartmentCode, req.DepartmentName)
	draft := &Invoice{
		Reference:      uuid.New(),
		SellerID:       req.SellerID,
		PeriodKey:      periodKey,
		IssueDate:      issueDate,
		DepartmentCode: req.DepartmentCode,
		DepartmentName: req.DepartmentName,
		CustomerName:   req.CustomerName,
		TotalCents:     req.TotalCents,
		Currency:       req.Currency,
	}

	issued, err := s.store.IssueAtomic(ctx, draft, sch.ResetPeriod, func(sequence int64) (string, error) {
		// Year and month always come from the issue date, never from the
		// counter bucket: a YEARLY or NEVER counter carries zero sentinels
		// that must not leak into the rendered number.
		return numbering.Render(sch.Template, numbering.RenderContext{
			Sequence:   int(sequence),
			Year:       issueDate.Year(),
			Month:      int(issueDate.Month()),
			Department: dept,
		})
	})
	if err != nil {
		if idempotencyKey != "" {
			if delErr := s.idem.Delete(ctx, idempotencyKey); delErr != nil {
				s.logger.Error("idempotency rollback failed", slog.Any("error", delErr), slog.String("key", idempotencyKey))
			}
		}
		return nil, fmt.Errorf("issue invoice for seller %d: %w", req.SellerID, err)
	}

	s.logger.Info("invoice issued",
		slog.Int64("seller_id", issued.SellerID),
		slog.String("number", issued.Number),
		slog.String("period_key", issued.PeriodKey),
		slog.Int64("sequence", issued.SequenceNumber))
	if s.meter != nil {
		s.meter.InvoiceIssued(issued.SellerID)
	}
	if s.auditor != nil {
		err := s.auditor.Record(ctx, shared.AuditLog{
			Actor:    actor,
			Action:   "invoice.issue",
			Entity:   "invoice",
			EntityID: issued.Reference.String(),
			Meta: map[string]any{
				"seller_id":  issued.SellerID,
				"number":     issued.Number,
				"period_key": issued.PeriodKey,
				"sequence":   issued.SequenceNumber,
			},
		})
		if err != nil {
			s.logger.Error("audit record failed", slog.Any("error", err), slog.String("action", "invoice.issue"))
		}
	}
	return issued, nil
}

// NextNumber previews the number the next issuance would produce for the
// seller and date. Advisory: a concurrent issuance can claim the value
// before the caller does.
func (s *Service) NextNumber(ctx context.Context, sellerID int64, issueDate time.Time, deptCode, deptName *string) (*NextNumberResponse, error) {
	seller, err := s.sellers.Get(ctx, sellerID)
	if err != nil {
		if errors.Is(err, sellers.ErrNotFound) {
			return nil, fmt.Errorf("%w: seller %d", ErrSellerUnknown, sellerID)
		}
		return nil, err
	}
	if !seller.IsActive {
		return nil, fmt.Errorf("%w: seller %d", ErrSellerInactive, sellerID)
	}

	sch, _, err := s.resolve(ctx, sellerID, issueDate)
	if err != nil {
		return nil, err
	}
	sequence, err := s.peeker.Peek(ctx, sellerID, sch.ResetPeriod, issueDate)
	if err != nil {
		return nil, err
	}
	number, err := numbering.Render(sch.Template, numbering.RenderContext{
		Sequence:   int(sequence),
		Year:       issueDate.Year(),
		Month:      int(issueDate.Month()),
		Department: s.department(deptCode, deptName),
	})
	if err != nil {
		return nil, err
	}
	return &NextNumberResponse{
		SellerID:   sellerID,
		IssueDate:  issueDate.Format("2006-01-02"),
		NextNumber: number,
		Sequence:   sequence,
	}, nil
}

func (s *Service) GetByReference(ctx context.Context, reference uuid.UUID) (*Invoice, error) {
	return s.store.GetByReference(ctx, reference)
}

func (s *Service) ListBySeller(ctx context.Context, sellerID int64, limit int) ([]Invoice, error) {
	return s.store.ListBySeller(ctx, sellerID, limit)
}
