// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package rpc

import (
	"github.com/juju/errors"
)

// ProcedureType distinguishes the kinds of registered procedure.
type ProcedureType int

const (
	// TypeQuery is a read-only request/response procedure.
	TypeQuery ProcedureType = iota + 1
	// TypeMutation is a request/response procedure with side effects.
	TypeMutation
	// TypeSubscription is a procedure returning a stream of events.
	TypeSubscription
)

// String implements fmt.Stringer.
func (t ProcedureType) String() string {
	switch t {
	case TypeQuery:
		return "query"
	case TypeMutation:
		return "mutation"
	case TypeSubscription:
		return "subscription"
	}
	return "unknown"
}

// IsHandler reports whether procedures of this type are invoked through
// Call.
func (t ProcedureType) IsHandler() bool {
	return t == TypeQuery || t == TypeMutation
}

// ParseProcedureType is the inverse of ProcedureType.String.
func ParseProcedureType(s string) (ProcedureType, error) {
	for _, t := range []ProcedureType{TypeQuery, TypeMutation, TypeSubscription} {
		if t.String() == s {
			return t, nil
		}
	}
	return 0, errors.NotValidf("procedure type %q", s)
}

// Request is what every middleware sees of a call.
type Request struct {
	// Path is the registered name of the procedure.
	Path string

	// Type is the kind of the procedure at Path.
	Type ProcedureType

	// Input is the structured value supplied by the caller, before it is
	// decoded into the handler's input type.
	Input any
}
