package interfaces

import "errors"

// Common errors shared by stores and their callers
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExists   = errors.New("session already exists")
)
