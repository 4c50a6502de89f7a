package transport

import "errors"

var (
	ErrMissingEndpoint   = errors.New("transport endpoint is not configured")
	ErrNotConnected      = errors.New("transport is not connected")
	ErrAlreadyConnected  = errors.New("transport is already connected")
	ErrEmptySubject      = errors.New("subject must not be empty")
	ErrAlreadySubscribed = errors.New("subject already subscribed")
	ErrNotSubscribed     = errors.New("subject not subscribed")
	ErrClosed            = errors.New("transport connection closed")
)
