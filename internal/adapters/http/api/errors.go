package api

import "errors"

// Sentinel kinds for API errors.
var (
	ErrQSONotFound  = errors.New("qso not found")
	ErrInvalidLimit = errors.New("invalid history limit")
	ErrBusClosed    = errors.New("event bus closed")
	ErrTooManyConns = errors.New("too many websocket connections")
)
