// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package subscription

import (
	"bytes"
	"strings"

	"github.com/google/uuid"
	"github.com/juju/errors"
)

// idPrefix distinguishes a subscription id from a bare uuid in logs and on
// the wire.
const idPrefix = "sub_"

// ID identifies a single subscription. It is a version 7 uuid, so ids
// created later sort after ids created earlier.
type ID struct {
	uuid uuid.UUID
}

// NewID returns a new, globally unique, time ordered subscription id.
func NewID() ID {
	return ID{uuid: uuid.Must(uuid.NewV7())}
}

// ParseID parses the textual form of an id, as produced by ID.String.
func ParseID(s string) (ID, error) {
	raw, ok := strings.CutPrefix(s, idPrefix)
	if !ok {
		return ID{}, errors.NotValidf("subscription id %q without %q prefix", s, idPrefix)
	}
	u, err := uuid.Parse(raw)
	if err != nil {
		return ID{}, errors.NewNotValid(err, "subscription id "+s)
	}
	if u.Version() != 7 {
		return ID{}, errors.NotValidf("subscription id %q version %d", s, u.Version())
	}
	return ID{uuid: u}, nil
}

// String returns the prefixed textual form of the id.
func (id ID) String() string {
	if id.IsZero() {
		return ""
	}
	return idPrefix + id.uuid.String()
}

// IsZero reports whether the id is the zero value.
func (id ID) IsZero() bool {
	return id.uuid == uuid.Nil
}

// Compare orders ids by creation time. Ids minted within the same
// millisecond are ordered by their random tail.
func (id ID) Compare(other ID) int {
	return bytes.Compare(id.uuid[:], other.uuid[:])
}

// MarshalText implements encoding.TextMarshaler.
func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *ID) UnmarshalText(text []byte) error {
	parsed, err := ParseID(string(text))
	if err != nil {
		return errors.Trace(err)
	}
	*id = parsed
	return nil
}
