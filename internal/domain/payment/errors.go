package payment

import "errors"

var (
	ErrNotFound               = errors.New("payment: not found")
	ErrConflict               = errors.New("payment: concurrent update conflict")
	ErrInvalidMethod          = errors.New("payment: unknown payment method")
	ErrOrderAlreadyPaid       = errors.New("payment: order already paid")
	ErrInvalidStateTransition = errors.New("payment: invalid state transition")
	ErrCancelNotAllowed       = errors.New("payment: cancellation is only allowed while pending")
	ErrRefundNotSupported     = errors.New("payment: method does not support refunds")

	// Gateway error classes. Unavailable is transient and safe for the caller
	// to retry; Rejected is terminal for the submitted request.
	ErrGatewayUnavailable = errors.New("payment: gateway unavailable")
	ErrGatewayRejected    = errors.New("payment: gateway rejected request")

	ErrInvalidSignature = errors.New("payment: invalid webhook signature")
	ErrMalformedPayload = errors.New("payment: malformed webhook payload")
)
