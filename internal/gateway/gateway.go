// Package gateway talks to the payment provider: order creation, local
// signature verification and refunds.
package gateway

import (
	"context"
	"errors"

	"trekbook/internal/models"
)

var (
	// ErrVerificationFailed means the returned signature does not match the
	// order and payment references. The payment must not be trusted.
	ErrVerificationFailed = errors.New("payment signature verification failed")

	// ErrGatewayUnavailable wraps transport failures and 5xx responses from
	// the provider. The operation may be retried.
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")

	// ErrGatewayRejected means the provider refused the request outright,
	// for example a refund on an uncaptured or already refunded payment.
	// Retrying is pointless.
	ErrGatewayRejected = errors.New("request rejected by gateway")
)

// PaymentGateway is the provider port used by the booking service.
type PaymentGateway interface {
	CreateOrder(ctx context.Context, amount int64, currency, receipt string) (*models.PaymentOrder, error)
	VerifySignature(orderRef, paymentRef, signature string) error
	CreateRefund(ctx context.Context, paymentRef string, amount int64) (*models.PaymentRefund, error)
}
