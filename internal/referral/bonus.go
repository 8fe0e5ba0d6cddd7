// Package referral computes referral bonuses.
package referral

import "storefront-service/internal/models"

// Bonus returns the referrer's credit in cents for a purchase of totalPrice.
// Integer arithmetic with truncation toward zero keeps the result exact and
// repeatable on identical inputs. Returns 0 when there is no referrer or the
// configured percentage is not positive.
func Bonus(totalPrice int64, referrer *models.User) int64 {
	if referrer == nil || referrer.BonusPercent <= 0 {
		return 0
	}
	return totalPrice * int64(referrer.BonusPercent) / 100
}
