// Package businessflow contains the use cases of the outbound communication system
package businessflow

import (
	"errors"
	"fmt"
)

// Business flow error constants
var (
	// Validation errors
	ErrInvalidChannel          = errors.New("invalid channel")
	ErrInvalidRecipientType    = errors.New("invalid recipient type")
	ErrInvalidRecipient        = errors.New("recipient is neither an email nor a phone number")
	ErrRecipientAddressMissing = errors.New("recipient has no address for channel")
	ErrRecipientInactive       = errors.New("recipient is not active")
	ErrContentRequired         = errors.New("template or body is required")
	ErrTemplateChannelMismatch = errors.New("template channel does not match")
	ErrTemplateInactive        = errors.New("template is inactive")
	ErrScheduleInPast          = errors.New("scheduled time must be in the future")
	ErrInvalidTrigger          = errors.New("invalid trigger")
	ErrInvalidCondition        = errors.New("invalid rule condition")
	ErrInvalidDateRange        = errors.New("start date cannot be after end date")
	ErrMessageNotRetryable     = errors.New("only failed messages can be retried")
	ErrUnknownReceiptStatus    = errors.New("unknown receipt status")

	// Not found errors
	ErrMessageNotFound          = errors.New("message not found")
	ErrScheduledMessageNotFound = errors.New("scheduled message not found or already processed")
	ErrTemplateNotFound         = errors.New("template not found")
	ErrRuleNotFound             = errors.New("automation rule not found")
	ErrCandidateNotFound        = errors.New("candidate not found")
	ErrUserNotFound             = errors.New("user not found")
	ErrInterviewNotFound        = errors.New("interview not found")
	ErrTenantNotFound           = errors.New("tenant not found")

	// Rate limit errors
	ErrRetryLimitReached = errors.New("maximum retry count reached")
	ErrRateLimited       = errors.New("rate limit exceeded")

	// Conflict errors
	ErrTemplateAlreadyExists   = errors.New("template with this name already exists for channel")
	ErrRuleAlreadyExists       = errors.New("a rule for this trigger and channel already exists")
	ErrSystemTemplateImmutable = errors.New("system templates cannot be modified")
	ErrTemplateInUse           = errors.New("template is referenced by automation rules")
)

var (
	validationErrors = []error{
		ErrInvalidChannel, ErrInvalidRecipientType, ErrInvalidRecipient, ErrRecipientAddressMissing,
		ErrRecipientInactive, ErrContentRequired, ErrTemplateChannelMismatch, ErrTemplateInactive,
		ErrScheduleInPast, ErrInvalidTrigger, ErrInvalidCondition, ErrInvalidDateRange,
		ErrMessageNotRetryable, ErrUnknownReceiptStatus, ErrCandidateNotFound, ErrUserNotFound,
	}
	notFoundErrors = []error{
		ErrMessageNotFound, ErrScheduledMessageNotFound, ErrTemplateNotFound, ErrRuleNotFound,
		ErrInterviewNotFound, ErrTenantNotFound,
	}
	rateLimitErrors = []error{ErrRetryLimitReached, ErrRateLimited}
	conflictErrors  = []error{ErrTemplateAlreadyExists, ErrRuleAlreadyExists, ErrSystemTemplateImmutable, ErrTemplateInUse}
)

type BusinessError struct {
	Code    string
	Message string
	Err     error
}

func (e *BusinessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

func NewBusinessError(code, message string, err error) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

func NewBusinessErrorf(code, message string, err error, args ...any) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: fmt.Sprintf(message, args...),
		Err:     err,
	}
}

func isAny(err error, targets []error) bool {
	for _, t := range targets {
		if errors.Is(err, t) {
			return true
		}
	}
	return false
}

// IsValidation reports a caller mistake that is never retried
func IsValidation(err error) bool {
	return isAny(err, validationErrors)
}

// IsNotFound reports an unknown or foreign-tenant record
func IsNotFound(err error) bool {
	return isAny(err, notFoundErrors)
}

// IsRateLimit reports a rejection the caller must back off from
func IsRateLimit(err error) bool {
	return isAny(err, rateLimitErrors)
}

// IsConflict reports a uniqueness or immutability violation
func IsConflict(err error) bool {
	return isAny(err, conflictErrors)
}

func IsMessageNotFound(err error) bool {
	return errors.Is(err, ErrMessageNotFound)
}

func IsScheduledMessageNotFound(err error) bool {
	return errors.Is(err, ErrScheduledMessageNotFound)
}

func IsTemplateNotFound(err error) bool {
	return errors.Is(err, ErrTemplateNotFound)
}

func IsRetryLimitReached(err error) bool {
	return errors.Is(err, ErrRetryLimitReached)
}

func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}

func IsSystemTemplateImmutable(err error) bool {
	return errors.Is(err, ErrSystemTemplateImmutable)
}

func IsRecipientAddressMissing(err error) bool {
	return errors.Is(err, ErrRecipientAddressMissing)
}
