package scheme

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/numera-app/numera/internal/numbering"
	"github.com/numera-app/numera/internal/shared"
)

type memoryRepo struct {
	mu      sync.Mutex
	nextID  int64
	schemes map[int64]*Scheme

	conflictsLeft int
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{nextID: 1, schemes: make(map[int64]*Scheme)}
}

func (m *memoryRepo) Get(_ context.Context, id int64) (*Scheme, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.schemes[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *s
	return &copied, nil
}

func (m *memoryRepo) FindEffective(_ context.Context, sellerID int64, date time.Time) (*Scheme, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var candidates []*Scheme
	for _, s := range m.schemes {
		if s.SellerID == sellerID && s.IsEffectiveOn(date) {
			candidates = append(candidates, s)
		}
	}
	if len(candidates) == 0 {
		return nil, ErrNotFound
	}
	sort.Slice(candidates, func(i, j int) bool {
		if !candidates[i].EffectiveFrom.Equal(candidates[j].EffectiveFrom) {
			return candidates[i].EffectiveFrom.After(candidates[j].EffectiveFrom)
		}
		return candidates[i].Version > candidates[j].Version
	})
	copied := *candidates[0]
	return &copied, nil
}

func (m *memoryRepo) list(sellerID int64, activeOnly bool) []Scheme {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Scheme
	for _, s := range m.schemes {
		if s.SellerID != sellerID {
			continue
		}
		if activeOnly && s.Status != StatusActive {
			continue
		}
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].EffectiveFrom.Equal(out[j].EffectiveFrom) {
			return out[i].EffectiveFrom.After(out[j].EffectiveFrom)
		}
		return out[i].Version > out[j].Version
	})
	return out
}

func (m *memoryRepo) ListBySeller(_ context.Context, sellerID int64) ([]Scheme, error) {
	return m.list(sellerID, false), nil
}

func (m *memoryRepo) ListActiveBySeller(_ context.Context, sellerID int64) ([]Scheme, error) {
	return m.list(sellerID, true), nil
}

func (m *memoryRepo) CreateAndActivate(_ context.Context, sellerID int64, template string, resetPeriod numbering.ResetPeriod, effectiveFrom time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conflictsLeft > 0 {
		m.conflictsLeft--
		return 0, ErrConflict
	}
	version := 0
	for _, s := range m.schemes {
		if s.SellerID == sellerID && s.Status == StatusActive {
			s.Status = StatusArchived
		}
		if s.SellerID == sellerID && s.EffectiveFrom.Equal(effectiveFrom) && s.Version > version {
			version = s.Version
		}
	}
	id := m.nextID
	m.nextID++
	now := time.Now()
	m.schemes[id] = &Scheme{
		ID: id, SellerID: sellerID, Template: template, ResetPeriod: resetPeriod,
		EffectiveFrom: effectiveFrom, Version: version + 1, Status: StatusActive,
		CreatedAt: now, UpdatedAt: now,
	}
	return id, nil
}

func (m *memoryRepo) Archive(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.schemes[id]
	if !ok || s.Status == StatusArchived {
		return ErrNotFound
	}
	s.Status = StatusArchived
	return nil
}

type staticSellers struct{ known map[int64]bool }

func (s staticSellers) Exists(_ context.Context, id int64) (bool, error) {
	return s.known[id], nil
}

type recordingAuditor struct {
	mu   sync.Mutex
	logs []shared.AuditLog
}

func (a *recordingAuditor) Record(_ context.Context, log shared.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.logs = append(a.logs, log)
	return nil
}

func newTestService(repo *memoryRepo) (*Service, *recordingAuditor) {
	auditor := &recordingAuditor{}
	sellers := staticSellers{known: map[int64]bool{1: true, 2: true}}
	svc := NewService(slog.New(slog.DiscardHandler), repo, sellers, NewCache(nil, 0), auditor)
	return svc, auditor
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestCreateActivatesAndArchivesPredecessor(t *testing.T) {
	repo := newMemoryRepo()
	svc, auditor := newTestService(repo)
	ctx := context.Background()

	first, err := svc.Create(ctx, "admin", CreateSchemeRequest{
		SellerID: 1, Template: "INV-{YYYY}-{SEQ:4}", ResetPeriod: "YEARLY",
	})
	require.NoError(t, err)
	require.Equal(t, StatusActive, first.Status)
	require.Equal(t, 1, first.Version)

	second, err := svc.Create(ctx, "admin", CreateSchemeRequest{
		SellerID: 1, Template: "{YYYY}/{MM}/{SEQ:5}", ResetPeriod: "MONTHLY",
	})
	require.NoError(t, err)
	require.Equal(t, StatusActive, second.Status)

	reloaded, err := svc.Get(ctx, first.ID)
	require.NoError(t, err)
	require.Equal(t, StatusArchived, reloaded.Status)

	require.Len(t, auditor.logs, 2)
	require.Equal(t, "scheme.activate", auditor.logs[0].Action)
	require.Equal(t, "admin", auditor.logs[0].Actor)
}

func TestCreateRejectsBadTemplate(t *testing.T) {
	repo := newMemoryRepo()
	svc, _ := newTestService(repo)

	cases := []CreateSchemeRequest{
		{SellerID: 1, Template: "INV-{YYYY}", ResetPeriod: "YEARLY"},         // no SEQ
		{SellerID: 1, Template: "INV-{SEQ:0}", ResetPeriod: "YEARLY"},        // zero padding
		{SellerID: 1, Template: "INV-{SEQ:11}", ResetPeriod: "YEARLY"},       // padding too wide
		{SellerID: 1, Template: "INV-{BOGUS}-{SEQ:3}", ResetPeriod: "NEVER"}, // unknown token
		{SellerID: 1, Template: "INV-{SEQ:4}", ResetPeriod: "WEEKLY"},        // unknown period
	}
	for _, req := range cases {
		_, err := svc.Create(context.Background(), "admin", req)
		require.ErrorIs(t, err, ErrInvalidRequest, "template %q period %q", req.Template, req.ResetPeriod)
	}
}

func TestCreateUnknownSeller(t *testing.T) {
	repo := newMemoryRepo()
	svc, _ := newTestService(repo)

	_, err := svc.Create(context.Background(), "admin", CreateSchemeRequest{
		SellerID: 99, Template: "INV-{SEQ:4}", ResetPeriod: "NEVER",
	})
	require.ErrorIs(t, err, ErrSellerUnknown)
}

func TestCreateRetriesOnceOnConflict(t *testing.T) {
	repo := newMemoryRepo()
	repo.conflictsLeft = 1
	svc, _ := newTestService(repo)

	s, err := svc.Create(context.Background(), "admin", CreateSchemeRequest{
		SellerID: 1, Template: "INV-{SEQ:4}", ResetPeriod: "NEVER",
	})
	require.NoError(t, err)
	require.Equal(t, StatusActive, s.Status)
}

func TestCreateGivesUpAfterSecondConflict(t *testing.T) {
	repo := newMemoryRepo()
	repo.conflictsLeft = 2
	svc, _ := newTestService(repo)

	_, err := svc.Create(context.Background(), "admin", CreateSchemeRequest{
		SellerID: 1, Template: "INV-{SEQ:4}", ResetPeriod: "NEVER",
	})
	require.ErrorIs(t, err, ErrConflict)
}

func TestEffectiveResolvesBackdatedScheme(t *testing.T) {
	repo := newMemoryRepo()
	svc, _ := newTestService(repo)
	ctx := context.Background()

	jan := date(2026, time.January, 1)
	jun := date(2026, time.June, 1)

	_, err := svc.Create(ctx, "admin", CreateSchemeRequest{
		SellerID: 1, Template: "OLD-{SEQ:4}", ResetPeriod: "YEARLY", EffectiveFrom: &jan,
	})
	require.NoError(t, err)
	_, err = svc.Create(ctx, "admin", CreateSchemeRequest{
		SellerID: 1, Template: "NEW-{SEQ:4}", ResetPeriod: "YEARLY", EffectiveFrom: &jun,
	})
	require.NoError(t, err)

	// A backdated invoice from March still renders with the scheme that
	// was in force then, even though that revision is archived now.
	got, err := svc.Effective(ctx, 1, date(2026, time.March, 15))
	require.NoError(t, err)
	require.Equal(t, "OLD-{SEQ:4}", got.Template)
	require.Equal(t, StatusArchived, got.Status)

	got, err = svc.Effective(ctx, 1, date(2026, time.July, 1))
	require.NoError(t, err)
	require.Equal(t, "NEW-{SEQ:4}", got.Template)
}

func TestEffectiveNoScheme(t *testing.T) {
	repo := newMemoryRepo()
	svc, _ := newTestService(repo)

	_, err := svc.Effective(context.Background(), 2, date(2026, time.March, 1))
	require.ErrorIs(t, err, ErrNoEffectiveScheme)
}

func TestCurrentTemplateEmptyWithoutScheme(t *testing.T) {
	repo := newMemoryRepo()
	svc, _ := newTestService(repo)

	tmpl, err := svc.CurrentTemplate(context.Background(), 2)
	require.NoError(t, err)
	require.Empty(t, tmpl)
}

func TestArchiveAuditsAndHides(t *testing.T) {
	repo := newMemoryRepo()
	svc, auditor := newTestService(repo)
	ctx := context.Background()

	s, err := svc.Create(ctx, "admin", CreateSchemeRequest{
		SellerID: 1, Template: "INV-{SEQ:4}", ResetPeriod: "NEVER",
	})
	require.NoError(t, err)

	require.NoError(t, svc.Archive(ctx, "admin", s.ID))

	active, err := svc.ListActive(ctx, 1)
	require.NoError(t, err)
	require.Empty(t, active)

	require.Equal(t, "scheme.archive", auditor.logs[len(auditor.logs)-1].Action)
}

func TestPreview(t *testing.T) {
	repo := newMemoryRepo()
	svc, _ := newTestService(repo)

	got, err := svc.Preview("{SEQ:3}-{MM}-{YYYY}")
	require.NoError(t, err)
	require.Equal(t, "001-02-2026", got.Example)

	_, err = svc.Preview("no-sequence-here")
	require.ErrorIs(t, err, ErrInvalidRequest)
}
