package model

import "errors"

// Failure taxonomy for completion calls. Callers branch on these with
// errors.Is; the pipeline maps them to stable response error codes.
var (
	ErrCostLimitExceeded  = errors.New("model: daily cost limit exceeded")
	ErrRateLimited        = errors.New("model: rate limited")
	ErrUnauthorized       = errors.New("model: unauthorized")
	ErrServiceUnavailable = errors.New("model: service unavailable")
	ErrInvalidRequest     = errors.New("model: invalid request")
	ErrEmptyResponse      = errors.New("model: empty response")
)

// Retryable reports whether a failure class is worth another attempt.
// Unauthorized and malformed requests fail the same way every time.
func Retryable(err error) bool {
	switch {
	case errors.Is(err, ErrRateLimited),
		errors.Is(err, ErrServiceUnavailable),
		errors.Is(err, ErrEmptyResponse):
		return true
	}
	return false
}
