package models

// PaymentOrder is a gateway order created for a booking's payment.
type PaymentOrder struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

// PaymentRefund is the gateway's record of a refund issued against a
// captured payment.
type PaymentRefund struct {
	ID         string `json:"id"`
	PaymentRef string `json:"payment_id"`
	Amount     int64  `json:"amount"`
	Status     string `json:"status"`
}
