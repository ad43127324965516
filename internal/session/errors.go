package session

import (
	"errors"

	"codepair/pkg/interfaces"
)

var (
	ErrInvalidRequest  = errors.New("invalid request")
	ErrSessionNotFound = interfaces.ErrSessionNotFound
	ErrIDExhausted     = errors.New("could not allocate a unique session id")
)
