package numbering

import (
	"errors"
	"testing"
	"time"
)

func date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func TestPeriodKeyForMonthly(t *testing.T) {
	feb, err := PeriodKeyFor(ResetMonthly, date(2026, time.February, 10))
	if err != nil {
		t.Fatalf("PeriodKeyFor returned error: %v", err)
	}
	if feb != "2026-02" {
		t.Fatalf("expected 2026-02 got %s", feb)
	}
	mar, err := PeriodKeyFor(ResetMonthly, date(2026, time.March, 1))
	if err != nil {
		t.Fatalf("PeriodKeyFor returned error: %v", err)
	}
	if feb == mar {
		t.Fatalf("distinct months must produce distinct keys, both %s", feb)
	}
}

func TestPeriodKeyForYearly(t *testing.T) {
	key, err := PeriodKeyFor(ResetYearly, date(2026, time.July, 4))
	if err != nil {
		t.Fatalf("PeriodKeyFor returned error: %v", err)
	}
	if key != "2026" {
		t.Fatalf("expected 2026 got %s", key)
	}
}

func TestPeriodKeyForNeverIsConstant(t *testing.T) {
	a, err := PeriodKeyFor(ResetNever, date(1999, time.January, 1))
	if err != nil {
		t.Fatalf("PeriodKeyFor returned error: %v", err)
	}
	b, err := PeriodKeyFor(ResetNever, date(2026, time.December, 31))
	if err != nil {
		t.Fatalf("PeriodKeyFor returned error: %v", err)
	}
	if a != b || a != "NEVER" {
		t.Fatalf("NEVER key must be constant, got %s and %s", a, b)
	}
}

func TestPeriodForComponents(t *testing.T) {
	monthly, err := PeriodFor(ResetMonthly, date(2026, time.February, 15))
	if err != nil {
		t.Fatalf("PeriodFor returned error: %v", err)
	}
	if monthly.Year != 2026 || monthly.Month != 2 {
		t.Fatalf("unexpected MONTHLY components %+v", monthly)
	}
	yearly, err := PeriodFor(ResetYearly, date(2026, time.February, 15))
	if err != nil {
		t.Fatalf("PeriodFor returned error: %v", err)
	}
	if yearly.Year != 2026 || yearly.Month != 0 {
		t.Fatalf("unexpected YEARLY components %+v", yearly)
	}
	never, err := PeriodFor(ResetNever, date(2026, time.February, 15))
	if err != nil {
		t.Fatalf("PeriodFor returned error: %v", err)
	}
	if never.Year != 0 || never.Month != 0 {
		t.Fatalf("unexpected NEVER components %+v", never)
	}
}

func TestPeriodKeyMonthlyGuard(t *testing.T) {
	if _, err := PeriodKey(ResetMonthly, PeriodComponents{Year: 2026}); !errors.Is(err, ErrInvalidPeriod) {
		t.Fatalf("MONTHLY with month=0 must fail, got %v", err)
	}
}

func TestPeriodKeysSortLexicographically(t *testing.T) {
	older, _ := PeriodKeyFor(ResetMonthly, date(2025, time.December, 1))
	newer, _ := PeriodKeyFor(ResetMonthly, date(2026, time.January, 1))
	if !(older < newer) {
		t.Fatalf("expected %s < %s", older, newer)
	}
}

func TestParsePeriodKey(t *testing.T) {
	c, err := ParsePeriodKey(ResetMonthly, "2026-02")
	if err != nil {
		t.Fatalf("ParsePeriodKey returned error: %v", err)
	}
	if c.Year != 2026 || c.Month != 2 {
		t.Fatalf("unexpected components %+v", c)
	}
	c, err = ParsePeriodKey(ResetYearly, "2026")
	if err != nil {
		t.Fatalf("ParsePeriodKey returned error: %v", err)
	}
	if c.Year != 2026 || c.Month != 0 {
		t.Fatalf("unexpected components %+v", c)
	}
	if _, err := ParsePeriodKey(ResetMonthly, "2026"); !errors.Is(err, ErrInvalidPeriod) {
		t.Fatalf("expected ErrInvalidPeriod got %v", err)
	}
	if _, err := ParsePeriodKey(ResetNever, "2026"); !errors.Is(err, ErrInvalidPeriod) {
		t.Fatalf("expected ErrInvalidPeriod got %v", err)
	}
}

func TestResetPeriodValid(t *testing.T) {
	for _, p := range []ResetPeriod{ResetNever, ResetMonthly, ResetYearly} {
		if !p.Valid() {
			t.Fatalf("%s should be valid", p)
		}
	}
	if ResetPeriod("DAILY").Valid() {
		t.Fatalf("DAILY is not a supported reset period")
	}
}
