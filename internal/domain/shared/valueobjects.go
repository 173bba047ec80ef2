package shared

import (
	"fmt"
	"math"
	"strings"
)

// ═══════════════════════════════════════════════════════════════════════════
// Money Value Object
// ═══════════════════════════════════════════════════════════════════════════

// Money is an amount in minor currency units (cents).
type Money int64

// MoneyFromFloat converts a major-unit amount (12.34) to Money, rounding
// half away from zero.
func MoneyFromFloat(amount float64) Money {
	return Money(math.Round(amount * 100))
}

func (m Money) Cents() int64     { return int64(m) }
func (m Money) Float() float64   { return float64(m) / 100 }
func (m Money) IsPositive() bool { return m > 0 }

// String renders major units with two decimals, e.g. "-12.05".
func (m Money) String() string {
	v, sign := int64(m), ""
	if v < 0 {
		v, sign = -v, "-"
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

// Percent returns pct percent of m, rounded half away from zero.
func (m Money) Percent(pct int) Money {
	return Money(math.Round(float64(m) * float64(pct) / 100))
}

// Sum adds amounts.
func Sum(amounts ...Money) Money {
	var total Money
	for _, a := range amounts {
		total += a
	}
	return total
}

// ═══════════════════════════════════════════════════════════════════════════
// Email Value Object
// ═══════════════════════════════════════════════════════════════════════════

// Email is a normalized (trimmed, lower-cased) email address. Comparing two
// Email values is the case-insensitive comparison used for uniqueness.
type Email string

// NormalizeEmail trims and lower-cases raw.
func NormalizeEmail(raw string) Email {
	return Email(strings.ToLower(strings.TrimSpace(raw)))
}

func (e Email) String() string { return string(e) }
func (e Email) IsEmpty() bool  { return e == "" }

// LooksLikeEmail is a cheap check used to tell an email user reference from
// a UUID one. Full syntax validation lives in the step validator.
func LooksLikeEmail(s string) bool {
	at := strings.IndexByte(s, '@')
	return at > 0 && at < len(s)-1
}

// ═══════════════════════════════════════════════════════════════════════════
// Paging
// ═══════════════════════════════════════════════════════════════════════════

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Pagination is a 1-based page request. Out-of-range values are clamped
// rather than rejected.
type Pagination struct {
	Page     int
	PageSize int
}

func NewPagination(page, pageSize int) Pagination {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return Pagination{Page: max(page, 1), PageSize: min(pageSize, MaxPageSize)}
}

func DefaultPagination() Pagination { return NewPagination(1, DefaultPageSize) }

// Limit and Offset clamp a hand-built Pagination the same way NewPagination
// does.
func (p Pagination) Limit() int { return NewPagination(p.Page, p.PageSize).PageSize }

func (p Pagination) Offset() int {
	n := NewPagination(p.Page, p.PageSize)
	return (n.Page - 1) * n.PageSize
}

// Page is a slice of items plus the total count for the unpaged query.
type Page[T any] struct {
	Items      []T
	TotalCount int
	Pagination Pagination
}

// HasMore reports whether more items exist after this page.
func (p Page[T]) HasMore() bool {
	return p.Pagination.Offset()+len(p.Items) < p.TotalCount
}
