package router

import "errors"

var (
	ErrMalformedEvent    = errors.New("malformed event")
	ErrUnknownEventType  = errors.New("unknown event type")
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
)
