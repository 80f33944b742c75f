// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package rpc

import (
	"github.com/juju/errors"
)

const (
	// ErrProcedureTypeMismatch is returned when Call is used on a
	// subscription, or Subscribe on a query or mutation. It is also an
	// errors.BadRequest.
	ErrProcedureTypeMismatch = errors.ConstError("procedure type mismatch")

	// ErrRouterCompiled is returned when a compiled router is modified.
	ErrRouterCompiled = errors.ConstError("router already compiled")
)

// ErrorCoder is implemented by errors that carry an error code, a short
// string naming the kind of error.
type ErrorCoder interface {
	ErrorCode() string
}

func procedureNotFound(path string) error {
	return errors.NotFoundf("procedure %q", path)
}

func typeMismatch(path string, got, want ProcedureType) error {
	return errors.WithType(
		errors.Annotatef(ErrProcedureTypeMismatch, "%q is a %s, not a %s", path, got, want),
		errors.BadRequest,
	)
}
