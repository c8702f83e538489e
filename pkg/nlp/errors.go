package nlp

import "errors"

// Common judgment backend errors
var (
	// ErrRateLimit indicates the backend rate limit has been exceeded.
	ErrRateLimit = errors.New("rate limit exceeded")

	// ErrEmptyResponse indicates the backend returned an empty response.
	ErrEmptyResponse = errors.New("the judgment backend returned an empty response")

	// ErrJudgeUnavailable indicates the judgment backend is unreachable or
	// its circuit breaker is open. Callers fall back to declaring the
	// candidates distinct.
	ErrJudgeUnavailable = errors.New("judgment backend unavailable")
)

// RateLimitError is a rate limit error with an optional backend message.
type RateLimitError struct {
	Message string
}

func (e *RateLimitError) Error() string {
	if e.Message == "" {
		return "rate limit exceeded"
	}
	return e.Message
}

// Is lets errors.Is match any RateLimitError regardless of message.
func (e *RateLimitError) Is(target error) bool {
	_, ok := target.(*RateLimitError)
	return ok
}

// MalformedResponseError reports a backend response that could not be
// parsed even after repair. Treated as a "distinct" verdict upstream.
type MalformedResponseError struct {
	Raw string
}

func (e *MalformedResponseError) Error() string {
	return "malformed judgment response"
}

// Is lets errors.Is match any MalformedResponseError.
func (e *MalformedResponseError) Is(target error) bool {
	_, ok := target.(*MalformedResponseError)
	return ok
}
