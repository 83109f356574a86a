// Package svcerr carries the coded error type shared by the domain services.
package svcerr

import (
	"errors"
	"fmt"
)

// ServiceError pairs a stable machine-readable code with the underlying cause.
// Codes have the shape "<package>.<operation>.<reason>".
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

// Code returns the stable error code.
func (e *ServiceError) Code() string {
	return e.code
}

// New builds a ServiceError for operation and reason.
func New(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

// CodeOf returns the code of the outermost ServiceError in err's chain, or "".
func CodeOf(err error) string {
	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) {
		return serviceErr.Code()
	}
	return ""
}
