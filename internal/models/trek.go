package models

import "time"

// Trek is a catalog entry for a multi-day guided trek. Treks and their
// batches are declared in configs/treks.yaml and synced into the database
// on startup.
type Trek struct {
	ID             int64                `json:"id" yaml:"id"`
	Name           string               `json:"name" yaml:"name"`
	Region         string               `json:"region" yaml:"region"`
	DurationDays   int                  `json:"duration_days" yaml:"duration_days"`
	IsActive       bool                 `json:"is_active" yaml:"is_active"`
	PartialPayment PartialPaymentPolicy `json:"partial_payment" yaml:"partial_payment"`
	AddOns         []AddOn              `json:"add_ons" yaml:"add_ons"`
	TaxPercent     int64                `json:"tax_percent" yaml:"tax_percent"`
	Coupons        []Coupon             `json:"coupons" yaml:"coupons"`
	Batches        []Batch              `json:"batches" yaml:"batches"`
}

// PartialPaymentPolicy controls whether a booking may be confirmed on a
// fraction of the total price. Type is "percentage" or "fixed"; Value is a
// percent (0-100) or a fixed amount in rupees respectively.
type PartialPaymentPolicy struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Type    string `json:"type" yaml:"type"`
	Value   int64  `json:"value" yaml:"value"`
}

// AddOn is an optional extra priced per booking (rupees in the catalog,
// converted to paise at load).
type AddOn struct {
	Key   string `json:"key" yaml:"key"`
	Name  string `json:"name" yaml:"name"`
	Price int64  `json:"price" yaml:"price"`
}

// Coupon grants a percentage discount on the pre-tax total.
type Coupon struct {
	Code    string `json:"code" yaml:"code"`
	Percent int64  `json:"percent" yaml:"percent"`
}

// Batch is one dated departure of a trek. CurrentParticipants against
// MaxParticipants is the capacity ledger; it is only ever mutated through
// the conditional updates in the database package.
type Batch struct {
	ID                  int64     `json:"id" yaml:"id"`
	TrekID              int64     `json:"trek_id" yaml:"trek_id"`
	StartDate           time.Time `json:"start_date" yaml:"start_date"`
	EndDate             time.Time `json:"end_date" yaml:"end_date"`
	Price               int64     `json:"price" yaml:"price"`
	MaxParticipants     int       `json:"max_participants" yaml:"max_participants"`
	CurrentParticipants int       `json:"current_participants" yaml:"-"`
	Status              string    `json:"status" yaml:"status"`
}

// Remaining reports unreserved seats.
func (b *Batch) Remaining() int {
	r := b.MaxParticipants - b.CurrentParticipants
	if r < 0 {
		return 0
	}
	return r
}

// Availability is the per-batch view returned by the availability endpoint.
type Availability struct {
	BatchID   int64     `json:"batch_id"`
	TrekID    int64     `json:"trek_id"`
	StartDate time.Time `json:"start_date"`
	Booked    int       `json:"booked"`
	Available int       `json:"available"`
	Total     int       `json:"total"`
}
