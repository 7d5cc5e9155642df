package scheme

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/numera-app/numera/internal/numbering"
	"github.com/numera-app/numera/internal/shared"
)

var (
	// ErrInvalidRequest indicates a malformed or invalid scheme payload.
	ErrInvalidRequest = errors.New("scheme: invalid request")
	// ErrSellerUnknown indicates the referenced seller does not exist.
	ErrSellerUnknown = errors.New("scheme: unknown seller")
	// ErrNoEffectiveScheme indicates no scheme covers the issue date.
	ErrNoEffectiveScheme = errors.New("scheme: no effective scheme")
)

// SellerDirectory is the slice of the seller registry the scheme service
// needs.
type SellerDirectory interface {
	Exists(ctx context.Context, sellerID int64) (bool, error)
}

// Auditor records configuration changes.
type Auditor interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service owns scheme lifecycle and effective-scheme resolution.
type Service struct {
	logger   *slog.Logger
	repo     Repository
	sellers  SellerDirectory
	cache    *Cache
	auditor  Auditor
	validate *validator.Validate
}

func NewService(logger *slog.Logger, repo Repository, sellers SellerDirectory, cache *Cache, auditor Auditor) *Service {
	return &Service{
		logger:   logger,
		repo:     repo,
		sellers:  sellers,
		cache:    cache,
		auditor:  auditor,
		validate: validator.New(),
	}
}

// Create validates and activates a new scheme revision. The previously
// active revision is archived, never deleted. A constraint collision with
// a concurrent activation is retried once; the second loser surfaces the
// conflict to the caller.
func (s *Service) Create(ctx context.Context, actor string, req CreateSchemeRequest) (*Scheme, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidRequest, err)
	}
	if err := numbering.ValidateTemplate(req.Template); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidRequest, err)
	}
	resetPeriod := numbering.ResetPeriod(req.ResetPeriod)
	if !resetPeriod.Valid() {
		return nil, fmt.Errorf("%w: unknown reset period %q", ErrInvalidRequest, req.ResetPeriod)
	}

	ok, err := s.sellers.Exists(ctx, req.SellerID)
	if err != nil {
		return nil, fmt.Errorf("scheme create: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: seller %d", ErrSellerUnknown, req.SellerID)
	}

	effectiveFrom := time.Now().UTC().Truncate(24 * time.Hour)
	if req.EffectiveFrom != nil {
		effectiveFrom = req.EffectiveFrom.UTC().Truncate(24 * time.Hour)
	}

	var id int64
	for attempt := 0; attempt < 2; attempt++ {
		id, err = s.repo.CreateAndActivate(ctx, req.SellerID, req.Template, resetPeriod, effectiveFrom)
		if err == nil {
			break
		}
		if !errors.Is(err, ErrConflict) {
			return nil, fmt.Errorf("scheme create: %w", err)
		}
		s.logger.Warn("scheme activation collided, retrying",
			slog.Int64("seller_id", req.SellerID), slog.Int("attempt", attempt+1))
	}
	if err != nil {
		return nil, err
	}

	if err := s.cache.Purge(ctx, req.SellerID); err != nil {
		s.logger.Warn("scheme cache purge failed", slog.Any("error", err), slog.Int64("seller_id", req.SellerID))
	}
	s.audit(ctx, actor, "scheme.activate", id, map[string]any{
		"seller_id":      req.SellerID,
		"template":       req.Template,
		"reset_period":   req.ResetPeriod,
		"effective_from": effectiveFrom.Format("2006-01-02"),
	})

	return s.repo.Get(ctx, id)
}

// Effective resolves the scheme governing invoices issued on date,
// consulting the cache first.
func (s *Service) Effective(ctx context.Context, sellerID int64, date time.Time) (*Scheme, error) {
	if cached, err := s.cache.Get(ctx, sellerID, date); err != nil {
		s.logger.Warn("scheme cache read failed", slog.Any("error", err), slog.Int64("seller_id", sellerID))
	} else if cached != nil {
		return cached, nil
	}

	scheme, err := s.repo.FindEffective(ctx, sellerID, date)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%w: seller %d has no scheme effective on %s", ErrNoEffectiveScheme, sellerID, date.Format("2006-01-02"))
		}
		return nil, err
	}

	if err := s.cache.Set(ctx, sellerID, date, scheme); err != nil {
		s.logger.Warn("scheme cache write failed", slog.Any("error", err), slog.Int64("seller_id", sellerID))
	}
	return scheme, nil
}

// CurrentTemplate returns the template in force today, or "" when the
// seller has no effective scheme.
func (s *Service) CurrentTemplate(ctx context.Context, sellerID int64) (string, error) {
	scheme, err := s.Effective(ctx, sellerID, time.Now().UTC())
	if err != nil {
		if errors.Is(err, ErrNoEffectiveScheme) {
			return "", nil
		}
		return "", err
	}
	return scheme.Template, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*Scheme, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, sellerID int64) ([]Scheme, error) {
	return s.repo.ListBySeller(ctx, sellerID)
}

func (s *Service) ListActive(ctx context.Context, sellerID int64) ([]Scheme, error) {
	return s.repo.ListActiveBySeller(ctx, sellerID)
}

// Archive retires a scheme without activating a replacement. The seller
// has no effective scheme for new dates afterwards unless an older
// revision still covers them.
func (s *Service) Archive(ctx context.Context, actor string, id int64) error {
	scheme, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Archive(ctx, id); err != nil {
		return err
	}
	if err := s.cache.Purge(ctx, scheme.SellerID); err != nil {
		s.logger.Warn("scheme cache purge failed", slog.Any("error", err), slog.Int64("seller_id", scheme.SellerID))
	}
	s.audit(ctx, actor, "scheme.archive", id, map[string]any{"seller_id": scheme.SellerID})
	return nil
}

// Preview validates a candidate template and renders it with example
// values.
func (s *Service) Preview(template string) (PreviewResponse, error) {
	example, err := numbering.Preview(template)
	if err != nil {
		return PreviewResponse{}, fmt.Errorf("%w: %s", ErrInvalidRequest, err)
	}
	return PreviewResponse{Template: template, Example: example}, nil
}

func (s *Service) audit(ctx context.Context, actor, action string, schemeID int64, meta map[string]any) {
	if s.auditor == nil {
		return
	}
	err := s.auditor.Record(ctx, shared.AuditLog{
		Actor:    actor,
		Action:   action,
		Entity:   "numbering_scheme",
		EntityID: strconv.FormatInt(schemeID, 10),
		Meta:     meta,
	})
	if err != nil {
		s.logger.Error("audit record failed", slog.Any("error", err), slog.String("action", action))
	}
}
