package types

import "errors"

// Validation errors for inbound realtime payloads
var (
	ErrMissingSessionID = errors.New("sessionId is required")
	ErrMissingDocument  = errors.New("document is required")
	ErrMissingLanguage  = errors.New("language is required")
	ErrSessionIDTooLong = errors.New("sessionId must be at most 64 characters")
)
