// Package pricing computes the unit price of a product from its expiration
// date. Prices drop in steps as the date approaches so near-expiry stock
// clears before it has to be thrown away.
package pricing

import "time"

// Discount tiers by days until expiry, applied to the base price.
const (
	pctExpiringToday = 25 // under one day left
	pctExpiringSoon  = 50 // one to three days
	pctNearExpiry    = 80 // four to seven days
)

// DaysToExpiry returns the calendar-day difference between today and the
// expiration date, both truncated to date-only UTC. Negative means expired.
func DaysToExpiry(today, expiration time.Time) int {
	t := dateUTC(today)
	e := dateUTC(expiration)
	return int(e.Sub(t).Hours() / 24)
}

// UnitPriceCents returns the current unit price for a product with the given
// base price and expiration date. A product without an expiration date is
// always sold at base price.
func UnitPriceCents(basePriceCents int64, expiration *time.Time, today time.Time) int64 {
	if expiration == nil {
		return basePriceCents
	}
	d := DaysToExpiry(today, *expiration)
	switch {
	case d < 1:
		return percentOf(basePriceCents, pctExpiringToday)
	case d <= 3:
		return percentOf(basePriceCents, pctExpiringSoon)
	case d <= 7:
		return percentOf(basePriceCents, pctNearExpiry)
	default:
		return basePriceCents
	}
}

// Discounted reports whether the curve currently prices the product below
// its base price.
func Discounted(basePriceCents int64, expiration *time.Time, today time.Time) bool {
	return UnitPriceCents(basePriceCents, expiration, today) < basePriceCents
}

func percentOf(cents int64, pct int64) int64 {
	return (cents*pct + 50) / 100
}

func dateUTC(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
