package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trekbook/internal/models"
)

func testTrek() *models.Trek {
	return &models.Trek{
		ID:         1,
		Name:       "Hampta Pass",
		IsActive:   true,
		TaxPercent: 5,
		AddOns: []models.AddOn{
			{Key: "porter", Name: "Porter", Price: 150000},
			{Key: "rental", Name: "Gear rental", Price: 80000},
		},
		Coupons: []models.Coupon{
			{Code: "EARLY10", Percent: 10},
		},
		PartialPayment: models.PartialPaymentPolicy{
			Enabled: true,
			Type:    models.PartialTypePercentage,
			Value:   30,
		},
	}
}

func testBatch() *models.Batch {
	return &models.Batch{
		ID:        10,
		TrekID:    1,
		StartDate: time.Now().Add(30 * 24 * time.Hour),
		Price:     500000,
	}
}

func TestComputeQuoteFull(t *testing.T) {
	q, err := ComputeQuote(testTrek(), testBatch(), 2, nil, "", models.PaymentModeFull)
	require.NoError(t, err)

	assert.Equal(t, int64(1000000), q.Base)
	assert.Equal(t, int64(0), q.Discount)
	// 5% tax on 10,00,000
	assert.Equal(t, int64(50000), q.Tax)
	assert.Equal(t, int64(1050000), q.Total)
	assert.Equal(t, q.Total, q.InitialAmount)
	assert.Equal(t, int64(0), q.Remaining)
	assert.Nil(t, q.DueDate)
}

func TestComputeQuoteAddOnsAndCoupon(t *testing.T) {
	q, err := ComputeQuote(testTrek(), testBatch(), 2, []string{"porter", "rental"}, "early10", models.PaymentModeFull)
	require.NoError(t, err)

	assert.Equal(t, int64(1000000), q.Base)
	assert.Equal(t, int64(230000), q.AddOns)
	// 10% of 12,30,000
	assert.Equal(t, int64(123000), q.Discount)
	// 5% of 11,07,000
	assert.Equal(t, int64(55350), q.Tax)
	assert.Equal(t, int64(1162350), q.Total)
}

func TestComputeQuotePartialPercentage(t *testing.T) {
	q, err := ComputeQuote(testTrek(), testBatch(), 1, nil, "", models.PaymentModePartial)
	require.NoError(t, err)

	assert.Equal(t, int64(525000), q.Total)
	// 30% up front
	assert.Equal(t, int64(157500), q.InitialAmount)
	assert.Equal(t, int64(367500), q.Remaining)
	require.NotNil(t, q.DueDate)
	assert.True(t, q.DueDate.Before(testBatch().StartDate))
}

func TestComputeQuotePartialFixed(t *testing.T) {
	trek := testTrek()
	trek.PartialPayment.Type = models.PartialTypeFixed
	trek.PartialPayment.Value = 100000

	q, err := ComputeQuote(trek, testBatch(), 1, nil, "", models.PaymentModePartial)
	require.NoError(t, err)
	assert.Equal(t, int64(100000), q.InitialAmount)
	assert.Equal(t, q.Total-100000, q.Remaining)
}

func TestComputeQuotePartialFixedClamped(t *testing.T) {
	trek := testTrek()
	trek.PartialPayment.Type = models.PartialTypeFixed
	trek.PartialPayment.Value = 99999999

	q, err := ComputeQuote(trek, testBatch(), 1, nil, "", models.PaymentModePartial)
	require.NoError(t, err)
	assert.Equal(t, q.Total, q.InitialAmount)
	assert.Equal(t, int64(0), q.Remaining)
	assert.Nil(t, q.DueDate)
}

func TestComputeQuoteErrors(t *testing.T) {
	trek := testTrek()
	batch := testBatch()

	_, err := ComputeQuote(trek, batch, 0, nil, "", models.PaymentModeFull)
	assert.ErrorIs(t, err, ErrInvalidParticipants)

	_, err = ComputeQuote(trek, batch, 1, []string{"helicopter"}, "", models.PaymentModeFull)
	assert.ErrorIs(t, err, ErrUnknownAddOn)

	_, err = ComputeQuote(trek, batch, 1, nil, "NOPE", models.PaymentModeFull)
	assert.ErrorIs(t, err, ErrInvalidCoupon)

	trek.PartialPayment.Enabled = false
	_, err = ComputeQuote(trek, batch, 1, nil, "", models.PaymentModePartial)
	assert.ErrorIs(t, err, ErrPartialNotAllowed)
}

func TestRemainderDueDateClamped(t *testing.T) {
	now := time.Now()
	// Departure in 3 days: a week before is already past, due now.
	due := remainderDueDate(now.Add(3*24*time.Hour), now)
	assert.Equal(t, now, due)

	due = remainderDueDate(now.Add(30*24*time.Hour), now)
	assert.True(t, due.After(now))
}
