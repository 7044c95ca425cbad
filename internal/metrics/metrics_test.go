package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	// Register should be safe to call multiple times
	Register()
	Register()

	assert.NotPanics(t, func() {
		IncHTTP("create_booking")
		IncBookingCreated()
		IncPaymentConfirmation("success")
		IncPaymentConfirmation("verification_failed")
		IncCancellation("booking")
		IncCancellation("participant")
		IncRefund("success")
		IncSweep(3)
	})
}
