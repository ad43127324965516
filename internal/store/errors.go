package store

import "errors"

var (
	ErrStoreClosed    = errors.New("session store is closed")
	ErrUnknownBackend = errors.New("unknown session store backend")
	ErrUpdateConflict = errors.New("session update conflict, retries exhausted")
)
