package thread

import "errors"

var (
	// ErrValidation marks a rejected mutation, e.g. posting to a closed
	// thread or voting on one's own comment.
	ErrValidation = errors.New("validation failed")
	// ErrNotPermitted marks an actor that may not perform the operation at all.
	ErrNotPermitted = errors.New("not permitted")
	// ErrUnknownCommontable is returned by ThreadFor for unregistered types.
	ErrUnknownCommontable = errors.New("unknown commontable type")
)
