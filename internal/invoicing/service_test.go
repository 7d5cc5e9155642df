package invoicing

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/numera-app/numera/internal/numbering"
	"github.com/numera-app/numera/internal/numbering/scheme"
	"github.com/numera-app/numera/internal/sellers"
	"github.com/numera-app/numera/internal/shared"
)

type memoryStore struct {
	mu       sync.Mutex
	nextID   int64
	counters map[string]int64
	invoices []Invoice

	failInsert bool
}

func newMemoryStore() *memoryStore {
	return &memoryStore{nextID: 1, counters: make(map[string]int64)}
}

func (m *memoryStore) IssueAtomic(_ context.Context, draft *Invoice, _ numbering.ResetPeriod, render func(sequence int64) (string, error)) (*Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := fmt.Sprintf("%d/%s", draft.SellerID, draft.PeriodKey)
	sequence := m.counters[key] + 1

	number, err := render(sequence)
	if err != nil {
		return nil, err
	}
	if m.failInsert {
		return nil, fmt.Errorf("store unavailable")
	}

	m.counters[key] = sequence
	issued := *draft
	issued.ID = m.nextID
	m.nextID++
	issued.SequenceNumber = sequence
	issued.Number = number
	issued.CreatedAt = time.Now()
	m.invoices = append(m.invoices, issued)
	return &issued, nil
}

func (m *memoryStore) GetByReference(_ context.Context, reference uuid.UUID) (*Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.invoices {
		if m.invoices[i].Reference == reference {
			copied := m.invoices[i]
			return &copied, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memoryStore) ListBySeller(_ context.Context, sellerID int64, _ int) ([]Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Invoice
	for _, inv := range m.invoices {
		if inv.SellerID == sellerID {
			out = append(out, inv)
		}
	}
	return out, nil
}

type staticSellers struct{ byID map[int64]*sellers.Seller }

func (s staticSellers) Get(_ context.Context, id int64) (*sellers.Seller, error) {
	seller, ok := s.byID[id]
	if !ok {
		return nil, sellers.ErrNotFound
	}
	return seller, nil
}

// dated scheme source: templates keyed by effective-from, newest wins.
type staticSchemes struct {
	schemes []scheme.Scheme
}

func (s staticSchemes) Effective(_ context.Context, sellerID int64, date time.Time) (*scheme.Scheme, error) {
	var best *scheme.Scheme
	for i := range s.schemes {
		sch := &s.schemes[i]
		if sch.SellerID != sellerID || date.Before(sch.EffectiveFrom) {
			continue
		}
		if best == nil || sch.EffectiveFrom.After(best.EffectiveFrom) {
			best = sch
		}
	}
	if best == nil {
		return nil, scheme.ErrNoEffectiveScheme
	}
	return best, nil
}

type storePeeker struct{ store *memoryStore }

func (p storePeeker) Peek(_ context.Context, sellerID int64, resetPeriod numbering.ResetPeriod, issueDate time.Time) (int64, error) {
	key, err := numbering.PeriodKeyFor(resetPeriod, issueDate)
	if err != nil {
		return 0, err
	}
	p.store.mu.Lock()
	defer p.store.mu.Unlock()
	return p.store.counters[fmt.Sprintf("%d/%s", sellerID, key)] + 1, nil
}

type memoryIdem struct {
	mu   sync.Mutex
	keys map[string]bool
}

func newMemoryIdem() *memoryIdem { return &memoryIdem{keys: make(map[string]bool)} }

func (m *memoryIdem) CheckAndInsert(_ context.Context, key, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.keys[key] {
		return shared.ErrIdempotencyConflict
	}
	m.keys[key] = true
	return nil
}

func (m *memoryIdem) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, key)
	return nil
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

type countingMeter struct {
	mu     sync.Mutex
	issued map[int64]int
}

func (m *countingMeter) InvoiceIssued(sellerID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.issued == nil {
		m.issued = make(map[int64]int)
	}
	m.issued[sellerID]++
}

type fixture struct {
	store   *memoryStore
	idem    *memoryIdem
	auditor *recordingAuditor
	meter   *countingMeter
	service *Service
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func newFixture(schemes ...scheme.Scheme) *fixture {
	f := &fixture{
		store:   newMemoryStore(),
		idem:    newMemoryIdem(),
		auditor: &recordingAuditor{},
		meter:   &countingMeter{},
	}
	sellerDir := staticSellers{byID: map[int64]*sellers.Seller{
		1: {ID: 1, Name: "Acme GmbH", IsActive: true},
		2: {ID: 2, Name: "Globex Ltd", IsActive: false},
	}}
	f.service = NewService(
		slog.New(slog.DiscardHandler),
		f.store,
		sellerDir,
		staticSchemes{schemes: schemes},
		storePeeker{store: f.store},
		f.idem,
		f.auditor,
		f.meter,
	)
	return f
}

func monthlyScheme(template string) scheme.Scheme {
	return scheme.Scheme{
		ID: 1, SellerID: 1, Template: template,
		ResetPeriod: numbering.ResetMonthly,
		EffectiveFrom: date(2020, time.January, 1), Status: scheme.StatusActive,
	}
}

func issueRequest(day string) IssueInvoiceRequest {
	return IssueInvoiceRequest{
		SellerID:     1,
		IssueDate:    day,
		CustomerName: "Initech",
		TotalCents:   125000,
		Currency:     "EUR",
	}
}

func TestIssueRendersNumberFromIssueDate(t *testing.T) {
	f := newFixture(monthlyScheme("{YYYY}/{MM}/{SEQ:5}"))

	inv, err := f.service.Issue(context.Background(), "service", "", issueRequest("2026-02-10"))
	require.NoError(t, err)
	require.Equal(t, "2026/02/00001", inv.Number)
	require.Equal(t, int64(1), inv.SequenceNumber)
	require.Equal(t, "2026-02", inv.PeriodKey)
	require.NotEqual(t, uuid.Nil, inv.Reference)
}

func TestIssueSequencesWithinAndAcrossBuckets(t *testing.T) {
	f := newFixture(monthlyScheme("INV-{YYYY}{MM}-{SEQ:4}"))
	ctx := context.Background()

	first, err := f.service.Issue(ctx, "service", "", issueRequest("2026-02-10"))
	require.NoError(t, err)
	second, err := f.service.Issue(ctx, "service", "", issueRequest("2026-02-11"))
	require.NoError(t, err)
	march, err := f.service.Issue(ctx, "service", "", issueRequest("2026-03-01"))
	require.NoError(t, err)

	require.Equal(t, "INV-202602-0001", first.Number)
	require.Equal(t, "INV-202602-0002", second.Number)
	require.Equal(t, "INV-202603-0001", march.Number)
}

func TestIssueYearlySchemeRendersIssueMonth(t *testing.T) {
	// The YEARLY counter bucket carries a zero month sentinel; the
	// rendered number must still show the real issue month.
	f := newFixture(scheme.Scheme{
		ID: 1, SellerID: 1, Template: "{YY}-{MM}-{SEQ:3}",
		ResetPeriod:   numbering.ResetYearly,
		EffectiveFrom: date(2020, time.January, 1), Status: scheme.StatusActive,
	})

	inv, err := f.service.Issue(context.Background(), "service", "", issueRequest("2026-08-05"))
	require.NoError(t, err)
	require.Equal(t, "26-08-001", inv.Number)
	require.Equal(t, "2026", inv.PeriodKey)
}

func TestIssueBackdatedUsesSchemeInForceThen(t *testing.T) {
	old := scheme.Scheme{
		ID: 1, SellerID: 1, Template: "OLD-{SEQ:4}",
		ResetPeriod:   numbering.ResetNever,
		EffectiveFrom: date(2020, time.January, 1), Status: scheme.StatusArchived,
	}
	current := scheme.Scheme{
		ID: 2, SellerID: 1, Template: "NEW-{SEQ:4}",
		ResetPeriod:   numbering.ResetNever,
		EffectiveFrom: date(2026, time.June, 1), Status: scheme.StatusActive,
	}
	f := newFixture(old, current)
	ctx := context.Background()

	backdated, err := f.service.Issue(ctx, "service", "", issueRequest("2026-03-15"))
	require.NoError(t, err)
	require.Equal(t, "OLD-0001", backdated.Number)

	today, err := f.service.Issue(ctx, "service", "", issueRequest("2026-07-01"))
	require.NoError(t, err)
	require.Equal(t, "NEW-0002", today.Number)
}

func TestIssueDepartmentTokens(t *testing.T) {
	f := newFixture(monthlyScheme("{DEPT}-{SEQ:4}"))
	ctx := context.Background()

	code := "ops"
	withDept := issueRequest("2026-02-10")
	withDept.DepartmentCode = &code
	inv, err := f.service.Issue(ctx, "service", "", withDept)
	require.NoError(t, err)
	require.Equal(t, "OPS-0001", inv.Number)

	// Absent department drops the token and its separator.
	inv, err = f.service.Issue(ctx, "service", "", issueRequest("2026-02-11"))
	require.NoError(t, err)
	require.Equal(t, "0002", inv.Number)
}

func TestIssueUnknownSeller(t *testing.T) {
	f := newFixture(monthlyScheme("INV-{SEQ:4}"))
	req := issueRequest("2026-02-10")
	req.SellerID = 99

	_, err := f.service.Issue(context.Background(), "service", "", req)
	require.ErrorIs(t, err, ErrSellerUnknown)
}

func TestIssueInactiveSeller(t *testing.T) {
	f := newFixture(monthlyScheme("INV-{SEQ:4}"))
	req := issueRequest("2026-02-10")
	req.SellerID = 2

	_, err := f.service.Issue(context.Background(), "service", "", req)
	require.ErrorIs(t, err, ErrSellerInactive)
}

func TestIssueNoEffectiveScheme(t *testing.T) {
	f := newFixture() // no schemes at all

	_, err := f.service.Issue(context.Background(), "service", "", issueRequest("2026-02-10"))
	require.ErrorIs(t, err, ErrNoScheme)
}

func TestIssueRejectsMalformedRequest(t *testing.T) {
	f := newFixture(monthlyScheme("INV-{SEQ:4}"))
	ctx := context.Background()

	bad := issueRequest("2026-02-10")
	bad.Currency = "EURO"
	_, err := f.service.Issue(ctx, "service", "", bad)
	require.ErrorIs(t, err, ErrInvalidRequest)

	bad = issueRequest("10.02.2026")
	_, err = f.service.Issue(ctx, "service", "", bad)
	require.ErrorIs(t, err, ErrInvalidRequest)
}

func TestIssueIdempotencyReplay(t *testing.T) {
	f := newFixture(monthlyScheme("INV-{SEQ:4}"))
	ctx := context.Background()

	_, err := f.service.Issue(ctx, "service", "req-1", issueRequest("2026-02-10"))
	require.NoError(t, err)

	_, err = f.service.Issue(ctx, "service", "req-1", issueRequest("2026-02-10"))
	require.ErrorIs(t, err, ErrDuplicateRequest)

	// Only one invoice and one consumed sequence value.
	list, err := f.service.ListBySeller(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestIssueFailureReleasesIdempotencyKey(t *testing.T) {
	f := newFixture(monthlyScheme("INV-{SEQ:4}"))
	ctx := context.Background()

	f.store.failInsert = true
	_, err := f.service.Issue(ctx, "service", "req-1", issueRequest("2026-02-10"))
	require.Error(t, err)

	// The key is usable again after the failed attempt.
	f.store.failInsert = false
	inv, err := f.service.Issue(ctx, "service", "req-1", issueRequest("2026-02-10"))
	require.NoError(t, err)
	require.Equal(t, "INV-0001", inv.Number)
}

func TestIssueRecordsAuditAndMetrics(t *testing.T) {
	f := newFixture(monthlyScheme("INV-{SEQ:4}"))

	inv, err := f.service.Issue(context.Background(), "service", "", issueRequest("2026-02-10"))
	require.NoError(t, err)

	require.Equal(t, 1, f.meter.issued[1])
	require.Len(t, f.auditor.logs, 1)
	require.Equal(t, "invoice.issue", f.auditor.logs[0].Action)
	require.Equal(t, inv.Reference.String(), f.auditor.logs[0].EntityID)
}

func TestNextNumberDoesNotConsume(t *testing.T) {
	f := newFixture(monthlyScheme("INV-{YYYY}{MM}-{SEQ:4}"))
	ctx := context.Background()
	day := date(2026, time.February, 10)

	preview, err := f.service.NextNumber(ctx, 1, day, nil, nil)
	require.NoError(t, err)
	require.Equal(t, "INV-202602-0001", preview.NextNumber)
	require.Equal(t, int64(1), preview.Sequence)

	inv, err := f.service.Issue(ctx, "service", "", issueRequest("2026-02-10"))
	require.NoError(t, err)
	require.Equal(t, preview.NextNumber, inv.Number)

	preview, err = f.service.NextNumber(ctx, 1, day, nil, nil)
	require.NoError(t, err)
	require.Equal(t, "INV-202602-0002", preview.NextNumber)
}

func TestGetByReference(t *testing.T) {
	f := newFixture(monthlyScheme("INV-{SEQ:4}"))
	ctx := context.Background()

	issued, err := f.service.Issue(ctx, "service", "", issueRequest("2026-02-10"))
	require.NoError(t, err)

	got, err := f.service.GetByReference(ctx, issued.Reference)
	require.NoError(t, err)
	require.Equal(t, issued.Number, got.Number)

	_, err = f.service.GetByReference(ctx, uuid.New())
	require.ErrorIs(t, err, ErrNotFound)
}
