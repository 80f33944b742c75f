// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package params holds the caller-facing form of dispatch errors.
package params

import (
	"context"
	"fmt"

	"github.com/juju/errors"

	"github.com/juju/dispatch/rpc"
)

// Error is the type of error returned by the dispatch boundary. It is a
// plain value, so that the host shell can carry it over any transport.
type Error struct {
	Message string         `json:"message"`
	Code    string         `json:"code"`
	Info    map[string]any `json:"info,omitempty"`
}

var _ rpc.ErrorCoder = (*Error)(nil)

// Error implements error.
func (e Error) Error() string {
	return e.Message
}

// ErrorCode implements rpc.ErrorCoder.
func (e Error) ErrorCode() string {
	return e.Code
}

// GoString implements fmt.GoStringer. It means that a *Error shows its
// contents correctly when printed with %#v.
func (e Error) GoString() string {
	return fmt.Sprintf("&params.Error{Message: %q, Code: %q}", e.Message, e.Code)
}

// The Code constants hold error codes for well known errors.
const (
	CodeNotFound              = "not found"
	CodeUnauthorized          = "unauthorized access"
	CodeForbidden             = "forbidden"
	CodeNotValid              = "not valid"
	CodeBadRequest            = "bad request"
	CodeProcedureTypeMismatch = "procedure type mismatch"
	CodeAlreadyExists         = "already exists"
	CodeQuotaLimitExceeded    = "quota limit exceeded"
	CodeTimeout               = "timeout"
	CodeCancelled             = "cancelled"
	CodeNotImplemented        = "not implemented"
	CodeNotSupported          = "not supported"
	CodeNotYetAvailable       = "not yet available"
	CodeMethodNotAllowed      = "method not allowed"
)

// ErrCode returns the error code associated with
// the given error, or the empty string if there
// is none.
func ErrCode(err error) string {
	var coder rpc.ErrorCoder
	if errors.As(err, &coder) {
		return coder.ErrorCode()
	}
	return ""
}

// codes is consulted in order; the first match wins.
var codes = []struct {
	kind error
	code string
}{
	{rpc.ErrProcedureTypeMismatch, CodeProcedureTypeMismatch},
	{errors.NotFound, CodeNotFound},
	{errors.Unauthorized, CodeUnauthorized},
	{errors.Forbidden, CodeForbidden},
	{errors.NotValid, CodeNotValid},
	{errors.BadRequest, CodeBadRequest},
	{errors.AlreadyExists, CodeAlreadyExists},
	{errors.QuotaLimitExceeded, CodeQuotaLimitExceeded},
	{errors.Timeout, CodeTimeout},
	{context.DeadlineExceeded, CodeTimeout},
	{context.Canceled, CodeCancelled},
	{errors.NotImplemented, CodeNotImplemented},
	{errors.NotSupported, CodeNotSupported},
	{errors.NotYetAvailable, CodeNotYetAvailable},
	{errors.MethodNotAllowed, CodeMethodNotAllowed},
}

// FromError converts err into an *Error, choosing the code from the kind
// of err. Errors that are already coded keep their code. A nil error
// returns nil.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}
	result := &Error{Message: err.Error()}
	if code := ErrCode(err); code != "" {
		result.Code = code
		return result
	}
	for _, c := range codes {
		if errors.Is(err, c.kind) {
			result.Code = c.code
			break
		}
	}
	return result
}

// TranslateWellKnownError translates well known wire error codes into a
// github/juju/errors error that matches the error code.
func TranslateWellKnownError(err error) error {
	code := ErrCode(err)
	if code == "" {
		return err
	}
	msg := err.Error()

	switch code {
	case CodeNotFound:
		return errors.NewNotFound(nil, msg)
	case CodeUnauthorized:
		return errors.NewUnauthorized(nil, msg)
	case CodeForbidden:
		return errors.NewForbidden(nil, msg)
	case CodeNotValid:
		return errors.NewNotValid(nil, msg)
	case CodeBadRequest:
		return errors.NewBadRequest(nil, msg)
	case CodeProcedureTypeMismatch:
		return errors.WithType(errors.Annotate(rpc.ErrProcedureTypeMismatch, msg), errors.BadRequest)
	case CodeAlreadyExists:
		return errors.NewAlreadyExists(nil, msg)
	case CodeQuotaLimitExceeded:
		return errors.NewQuotaLimitExceeded(nil, msg)
	case CodeTimeout:
		return errors.NewTimeout(nil, msg)
	case CodeCancelled:
		return errors.Annotate(context.Canceled, msg)
	case CodeNotImplemented:
		return errors.NewNotImplemented(nil, msg)
	case CodeNotSupported:
		return errors.NewNotSupported(nil, msg)
	case CodeNotYetAvailable:
		return errors.NewNotYetAvailable(nil, msg)
	case CodeMethodNotAllowed:
		return errors.NewMethodNotAllowed(nil, msg)
	}
	return err
}
