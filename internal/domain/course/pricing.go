package course

import (
	"github.com/campus-enroll/registration-hub/internal/domain/shared"
)

// Bundle tiers. The > 5 tier is evaluated after the > 3 tier and therefore
// never applies; pricing keeps that order.
const (
	bundleTierSmallMin = 3
	bundleTierLargeMin = 5

	BundleDiscountSmall = 10
	BundleDiscountLarge = 20
)

// PriceBreakdown is the computed fee of a selection.
type PriceBreakdown struct {
	Subtotal           shared.Money `json:"subtotal"`
	DiscountPercentage int          `json:"discount_percentage"`
	Discount           shared.Money `json:"discount"`
	Total              shared.Money `json:"total"`
}

// BundleDiscountPercentage returns the bundle discount for count courses.
func BundleDiscountPercentage(count int) int {
	if count > bundleTierSmallMin {
		return BundleDiscountSmall
	} else if count > bundleTierLargeMin {
		return BundleDiscountLarge
	}
	return 0
}

// Price sums discounted course fees and applies the bundle discount.
func Price(courses []Course) PriceBreakdown {
	var subtotal shared.Money
	for i := range courses {
		subtotal += courses[i].DiscountedFee()
	}

	pct := BundleDiscountPercentage(len(courses))
	discount := subtotal.Percent(pct)

	return PriceBreakdown{
		Subtotal:           subtotal,
		DiscountPercentage: pct,
		Discount:           discount,
		Total:              subtotal - discount,
	}
}
