package course

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campus-enroll/registration-hub/internal/domain/shared"
)

func equalFeeCourses(n int, fee shared.Money) []Course {
	out := make([]Course, n)
	for i := range out {
		out[i] = Course{ID: uuid.New(), Name: "c", Fee: fee}
	}
	return out
}

func TestPrice_BundleTiers(t *testing.T) {
	const fee = shared.Money(25000)

	tests := []struct {
		name    string
		count   int
		wantPct int
	}{
		{"single course", 1, 0},
		{"three courses", 3, 0},
		{"four courses get 10%", 4, 10},
		{"six courses still get 10%", 6, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Price(equalFeeCourses(tt.count, fee))
			subtotal := fee * shared.Money(tt.count)

			assert.Equal(t, subtotal, got.Subtotal)
			assert.Equal(t, tt.wantPct, got.DiscountPercentage)
			assert.Equal(t, subtotal*shared.Money(100-tt.wantPct)/100, got.Total)
			assert.Equal(t, got.Subtotal-got.Discount, got.Total)
		})
	}
}

func TestPrice_FourCoursesIsNinetyPercent(t *testing.T) {
	got := Price(equalFeeCourses(4, 10000))
	assert.Equal(t, shared.Money(36000), got.Total)
	assert.Equal(t, shared.Money(4000), got.Discount)
}

func TestPrice_UsesDiscountedFees(t *testing.T) {
	courses := []Course{
		{Fee: 10000, DiscountPercentage: 25},
		{Fee: 3333, DiscountPercentage: 50},
	}
	got := Price(courses)
	// 3333 at 50% off is 3333 - round(1666.5) = 1666.
	assert.Equal(t, shared.Money(9166), got.Subtotal)
	assert.Equal(t, 0, got.DiscountPercentage)
	assert.Equal(t, shared.Money(9166), got.Total)
}

func TestDiscountedFee_Monotonic(t *testing.T) {
	for _, fee := range []shared.Money{0, 1, 999, 12345, 1000000} {
		prev := DiscountedFee(fee, 0)
		assert.Equal(t, fee, prev)
		for pct := 1; pct <= 100; pct++ {
			cur := DiscountedFee(fee, pct)
			assert.LessOrEqual(t, cur, prev, "fee=%d pct=%d", fee, pct)
			prev = cur
		}
		assert.Equal(t, shared.Money(0), prev)
	}
}

func TestNewCourse_Validation(t *testing.T) {
	now := time.Now()

	_, err := NewCourse(Params{Name: " ", Fee: -1, DiscountPercentage: 101}, now)
	fields, ok := shared.ValidationFieldsOf(err)
	require.True(t, ok)
	assert.Contains(t, fields, "name")
	assert.Contains(t, fields, "fee")
	assert.Contains(t, fields, "discount_percentage")

	c, err := NewCourse(Params{Name: " Algorithms ", Fee: 50000, DiscountPercentage: 10, IsActive: true}, now)
	require.NoError(t, err)
	assert.Equal(t, "Algorithms", c.Name)
	assert.Equal(t, shared.Money(45000), c.DiscountedFee())

	c.Deactivate(now)
	assert.False(t, c.IsActive)
}

func TestNewSelection(t *testing.T) {
	courses := equalFeeCourses(4, 10000)
	s := NewSelection(uuid.New(), courses, 12, time.Now())

	assert.Len(t, s.CourseIDs, 4)
	assert.Equal(t, PaymentPending, s.PaymentStatus)
	assert.Equal(t, shared.Money(36000), s.TotalFee())
	assert.False(t, s.IsPaid())
}
