package models

import "errors"

var (
	ErrTransport         = errors.New("transport failure")
	ErrMalformedResponse = errors.New("malformed response")
	ErrSessionNotFound   = errors.New("session not found")
	ErrNoResults         = errors.New("no results")
)
