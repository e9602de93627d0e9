package notify

import (
	"context"
	"errors"
	"fmt"
	"net"

	"craiseek/models"
)

// Sender delivers one formatted message to one address on one channel.
// Implementations classify failures so dispatch can decide between a retry
// and a durable permanent_failure record.
type Sender interface {
	Channel() models.Channel
	Send(ctx context.Context, address, message string) error
}

type ErrorKind string

const (
	KindInvalidAddress   ErrorKind = "invalid_address"
	KindTransportTimeout ErrorKind = "transport_timeout"
	KindProviderError    ErrorKind = "provider_error"
)

// DeliveryError is a classified send failure. StatusCode is zero for
// non-HTTP transports.
type DeliveryError struct {
	Kind       ErrorKind
	StatusCode int
	Cause      error
}

func (e *DeliveryError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("delivery failed: %s (HTTP %d)", e.Kind, e.StatusCode)
	}
	if e.Cause != nil {
		return fmt.Sprintf("delivery failed: %s: %v", e.Kind, e.Cause)
	}
	return fmt.Sprintf("delivery failed: %s", e.Kind)
}

func (e *DeliveryError) Unwrap() error { return e.Cause }

// Transient reports whether retrying the same send could plausibly
// succeed. Invalid addresses and provider rejections never heal on their
// own; timeouts, rate limits and provider 5xx might.
func (e *DeliveryError) Transient() bool {
	switch e.Kind {
	case KindInvalidAddress:
		return false
	case KindTransportTimeout:
		return true
	case KindProviderError:
		return e.StatusCode == 0 || e.StatusCode == 429 || e.StatusCode >= 500
	}
	return false
}

// AsDeliveryError unwraps err to a DeliveryError when possible.
func AsDeliveryError(err error) (*DeliveryError, bool) {
	var de *DeliveryError
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// classifyTransport maps a raw transport error onto the taxonomy. Anything
// that isn't clearly a timeout counts as a provider problem.
func classifyTransport(err error) *DeliveryError {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &DeliveryError{Kind: KindTransportTimeout, Cause: err}
	}
	return &DeliveryError{Kind: KindProviderError, Cause: err}
}

// classifyStatus maps an HTTP provider response onto the taxonomy. 4xx
// other than 429 means the provider understood us and said no.
func classifyStatus(status int) *DeliveryError {
	de := &DeliveryError{Kind: KindProviderError, StatusCode: status}
	if status == 400 || status == 404 || status == 422 {
		de.Kind = KindInvalidAddress
	}
	return de
}
