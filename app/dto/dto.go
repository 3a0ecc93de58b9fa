package dto

// APIResponse is the envelope every endpoint answers with
type APIResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
	Data      any    `json:"data,omitempty" validate:"omitempty"`
	Error     any    `json:"error,omitempty" validate:"omitempty"`
}

// ErrorDetail carries the machine-readable error code. Retryable tells the
// caller the same request may succeed later, as with rate limit rejections.
type ErrorDetail struct {
	Code      string `json:"code"`
	Retryable bool   `json:"retryable,omitempty"`
	Details   any    `json:"details,omitempty" validate:"omitempty"`
}
