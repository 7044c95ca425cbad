package service

import (
	"fmt"
	"strings"
	"time"

	"trekbook/internal/models"
)

// Quote is the price breakdown for a booking, all amounts in paise.
type Quote struct {
	Base          int64
	AddOns        int64
	Discount      int64
	Tax           int64
	Total         int64
	InitialAmount int64
	Remaining     int64
	DueDate       *time.Time
}

// roundPercent applies pct to amount with half-up rounding at the paisa.
func roundPercent(amount, pct int64) int64 {
	return (amount*pct + 50) / 100
}

// ComputeQuote prices a booking: batch price per seat, booking-level
// add-ons, coupon discount on the subtotal, then tax on the discounted
// amount. Partial mode splits the total per the trek's policy.
func ComputeQuote(trek *models.Trek, batch *models.Batch, participants int, addOnKeys []string, couponCode, paymentMode string) (*Quote, error) {
	if participants <= 0 {
		return nil, ErrInvalidParticipants
	}

	q := &Quote{
		Base: batch.Price * int64(participants),
	}

	for _, key := range addOnKeys {
		found := false
		for _, a := range trek.AddOns {
			if a.Key == key {
				q.AddOns += a.Price
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("%w: %s", ErrUnknownAddOn, key)
		}
	}

	subtotal := q.Base + q.AddOns

	if couponCode != "" {
		var pct int64 = -1
		for _, c := range trek.Coupons {
			if strings.EqualFold(c.Code, couponCode) {
				pct = c.Percent
				break
			}
		}
		if pct < 0 {
			return nil, fmt.Errorf("%w: %s", ErrInvalidCoupon, couponCode)
		}
		q.Discount = roundPercent(subtotal, pct)
	}

	discounted := subtotal - q.Discount
	q.Tax = roundPercent(discounted, trek.TaxPercent)
	q.Total = discounted + q.Tax

	switch paymentMode {
	case models.PaymentModePartial:
		if !trek.PartialPayment.Enabled {
			return nil, ErrPartialNotAllowed
		}
		switch trek.PartialPayment.Type {
		case models.PartialTypeFixed:
			q.InitialAmount = trek.PartialPayment.Value
		default:
			q.InitialAmount = roundPercent(q.Total, trek.PartialPayment.Value)
		}
		if q.InitialAmount > q.Total {
			q.InitialAmount = q.Total
		}
		q.Remaining = q.Total - q.InitialAmount
		if q.Remaining > 0 {
			due := remainderDueDate(batch.StartDate, time.Now())
			q.DueDate = &due
		}
	default:
		q.InitialAmount = q.Total
	}

	return q, nil
}

// remainderDueDate is a week before departure, clamped to now for
// last-minute bookings.
func remainderDueDate(startDate, now time.Time) time.Time {
	due := startDate.AddDate(0, 0, -7)
	if due.Before(now) {
		return now
	}
	return due
}
