package errors

import "errors"

var (
	ErrMissingField         = errors.New("missing required field")
	ErrUnrecognizedResponse = errors.New("response matches no known shape")
	ErrSinkClosed           = errors.New("engine input is closed")
	ErrEngineExited         = errors.New("engine process exited")
	ErrInternal             = errors.New("internal error")
)
