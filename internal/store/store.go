package store

import "errors"

var (
	ErrEventNotFound    = errors.New("outbox event not found")
	errMultipleDefaults = errors.New("more than one default address")
)
