// Package numbering implements the invoice number template language and the
// period bucketing used by sequence counters.
package numbering

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ResetPeriod defines when invoice sequence numbers reset to 1.
type ResetPeriod string

const (
	// ResetNever keeps one continuous sequence forever.
	ResetNever ResetPeriod = "NEVER"
	// ResetMonthly restarts the sequence every calendar month.
	ResetMonthly ResetPeriod = "MONTHLY"
	// ResetYearly restarts the sequence every calendar year.
	ResetYearly ResetPeriod = "YEARLY"
)

// ErrInvalidPeriod indicates a reset period or period key outside the contract.
var ErrInvalidPeriod = errors.New("numbering: invalid period")

// Valid reports whether the reset period is one of the known values.
func (p ResetPeriod) Valid() bool {
	switch p {
	case ResetNever, ResetMonthly, ResetYearly:
		return true
	}
	return false
}

// PeriodComponents are the counter bucket coordinates derived from an issue
// date. Month is 1-12 for MONTHLY and 0 otherwise; NEVER uses (0, 0).
// The zero sentinels exist so the unique counter scope never contains NULLs.
type PeriodComponents struct {
	Year  int
	Month int
}

// PeriodFor derives counter components from the issue date.
func PeriodFor(p ResetPeriod, issueDate time.Time) (PeriodComponents, error) {
	switch p {
	case ResetMonthly:
		return PeriodComponents{Year: issueDate.Year(), Month: int(issueDate.Month())}, nil
	case ResetYearly:
		return PeriodComponents{Year: issueDate.Year()}, nil
	case ResetNever:
		return PeriodComponents{}, nil
	}
	return PeriodComponents{}, fmt.Errorf("%w: unknown reset period %q", ErrInvalidPeriod, p)
}

// PeriodKey builds the stable bucket key for a counter scope:
// MONTHLY "2026-02", YEARLY "2026", NEVER the literal "NEVER".
// Keys within one reset period sort lexicographically in date order.
func PeriodKey(p ResetPeriod, c PeriodComponents) (string, error) {
	switch p {
	case ResetMonthly:
		if c.Month < 1 || c.Month > 12 {
			return "", fmt.Errorf("%w: MONTHLY requires month 1-12, got %d", ErrInvalidPeriod, c.Month)
		}
		return fmt.Sprintf("%04d-%02d", c.Year, c.Month), nil
	case ResetYearly:
		return fmt.Sprintf("%04d", c.Year), nil
	case ResetNever:
		return string(ResetNever), nil
	}
	return "", fmt.Errorf("%w: unknown reset period %q", ErrInvalidPeriod, p)
}

// PeriodKeyFor combines PeriodFor and PeriodKey for an issue date.
func PeriodKeyFor(p ResetPeriod, issueDate time.Time) (string, error) {
	components, err := PeriodFor(p, issueDate)
	if err != nil {
		return "", err
	}
	return PeriodKey(p, components)
}

// ParsePeriodKey reverses PeriodKey. The audit view uses it to locate the
// invoices belonging to a counter bucket.
func ParsePeriodKey(p ResetPeriod, key string) (PeriodComponents, error) {
	switch p {
	case ResetMonthly:
		parts := strings.SplitN(key, "-", 2)
		if len(parts) != 2 {
			return PeriodComponents{}, fmt.Errorf("%w: malformed MONTHLY key %q", ErrInvalidPeriod, key)
		}
		year, err := strconv.Atoi(parts[0])
		if err != nil {
			return PeriodComponents{}, fmt.Errorf("%w: malformed MONTHLY key %q", ErrInvalidPeriod, key)
		}
		month, err := strconv.Atoi(parts[1])
		if err != nil || month < 1 || month > 12 {
			return PeriodComponents{}, fmt.Errorf("%w: malformed MONTHLY key %q", ErrInvalidPeriod, key)
		}
		return PeriodComponents{Year: year, Month: month}, nil
	case ResetYearly:
		year, err := strconv.Atoi(key)
		if err != nil {
			return PeriodComponents{}, fmt.Errorf("%w: malformed YEARLY key %q", ErrInvalidPeriod, key)
		}
		return PeriodComponents{Year: year}, nil
	case ResetNever:
		if key != string(ResetNever) {
			return PeriodComponents{}, fmt.Errorf("%w: malformed NEVER key %q", ErrInvalidPeriod, key)
		}
		return PeriodComponents{}, nil
	}
	return PeriodComponents{}, fmt.Errorf("%w: unknown reset period %q", ErrInvalidPeriod, p)
}

// ValidPeriodKey reports whether key matches any reset period's key shape.
// Used where a key arrives without its reset period, e.g. admin requests.
func ValidPeriodKey(key string) bool {
	for _, p := range []ResetPeriod{ResetNever, ResetYearly, ResetMonthly} {
		if _, err := ParsePeriodKey(p, key); err == nil {
			return true
		}
	}
	return false
}
