package models

import "errors"

var (
	// ErrClassifierUnavailable means the judgment service could not be reached
	// after the adapter exhausted its retries. The whole run aborts.
	ErrClassifierUnavailable = errors.New("classifier unavailable")

	// ErrMalformedResponse means upstream output could not be parsed into the
	// expected bounds. Only the affected comment is dropped.
	ErrMalformedResponse = errors.New("malformed classifier response")

	ErrRepositoryWrite = errors.New("repository write failed")
	ErrInvalidComment  = errors.New("invalid comment")
	ErrNotFound        = errors.New("not found")
)
