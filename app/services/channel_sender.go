// Package services provides external service integrations and technical concerns like rendering, delivery and tokens
package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/CHINMAYKUDALKAR/LINE-sub002/models"
)

// OutboundMessage is a rendered message addressed to one recipient
type OutboundMessage struct {
	To        string
	Subject   string
	Body      string
	Reference string // idempotency reference, the message log UUID
}

// SendResult is a provider's acceptance of a message
type SendResult struct {
	ExternalID string
	Provider   string
}

// ChannelSender adapts an outbound message to one provider's API
type ChannelSender interface {
	Channel() models.MessageChannel
	Provider() string
	Send(ctx context.Context, msg OutboundMessage) (*SendResult, error)
}

// PermanentDeliveryError marks a failure that will not succeed on retry,
// such as a malformed address or content the provider refuses
type PermanentDeliveryError struct {
	Err error
}

func (e *PermanentDeliveryError) Error() string {
	return fmt.Sprintf("permanent delivery failure: %v", e.Err)
}

func (e *PermanentDeliveryError) Unwrap() error { return e.Err }

// Permanent wraps err as non-retryable; nil stays nil
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	var pe *PermanentDeliveryError
	if errors.As(err, &pe) {
		return err
	}
	return &PermanentDeliveryError{Err: err}
}

// IsPermanentDeliveryError reports whether err is non-retryable
func IsPermanentDeliveryError(err error) bool {
	var pe *PermanentDeliveryError
	return errors.As(err, &pe)
}

// ErrMissingAddress is returned when a message carries no address for its channel
var ErrMissingAddress = errors.New("recipient address is missing for channel")

// classifyHTTPStatus maps a provider HTTP status to a delivery error class
func classifyHTTPStatus(status int, err error) error {
	switch {
	case status == 429, status == 408, status >= 500:
		return err
	case status >= 400:
		return Permanent(err)
	default:
		return err
	}
}
