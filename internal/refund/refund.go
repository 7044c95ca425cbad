// Package refund computes cancellation refunds from the time remaining
// before departure. All amounts are paise.
package refund

import "time"

// Mode selects how the refundable fraction is determined.
type Mode int

const (
	// ModeTiered applies the days-to-departure tiers.
	ModeTiered Mode = iota
	// ModeFull refunds the entire amount regardless of timing, used when
	// the operator cancels a departure.
	ModeFull
)

const day = 24 * time.Hour

// Refund tiers in percent of the paid amount.
const (
	earlyPercent = 90 // more than 7 days out
	latePercent  = 50 // 3 to 7 days out
	lastPercent  = 0  // under 3 days
)

// DaysUntil counts calendar-free whole days between now and departure,
// rounding any partial day up. Departure in the past yields zero or a
// negative count.
func DaysUntil(now, departure time.Time) int {
	d := departure.Sub(now)
	days := int(d / day)
	if d%day > 0 {
		days++
	}
	return days
}

// Percent returns the refundable percentage for a cancellation at now
// against the given departure.
func Percent(now, departure time.Time) int64 {
	days := DaysUntil(now, departure)
	switch {
	case days > 7:
		return earlyPercent
	case days >= 3:
		return latePercent
	default:
		return lastPercent
	}
}

// Amount returns the refund due on the given paid amount. Rounding is half
// up to the paisa so the customer never loses more than half a paisa to
// truncation.
func Amount(mode Mode, paid int64, now, departure time.Time) int64 {
	if paid <= 0 {
		return 0
	}
	if mode == ModeFull {
		return paid
	}
	pct := Percent(now, departure)
	return (paid*pct + 50) / 100
}

// Split divides a booking amount across n participants. Shares are equal
// with the last participant absorbing the remainder, so the shares always
// sum to the total.
func Split(total int64, n int) []int64 {
	if n <= 0 {
		return nil
	}
	shares := make([]int64, n)
	each := total / int64(n)
	for i := range shares {
		shares[i] = each
	}
	shares[n-1] += total - each*int64(n)
	return shares
}
