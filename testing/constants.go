// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package testing

import "time"

const (
	// ShortWait is a reasonable amount of time to block waiting for
	// something that shouldn't happen.
	ShortWait = 50 * time.Millisecond

	// LongWait is used when something should have already happened, or
	// happens quickly, but we want to make sure we just haven't missed it.
	LongWait = 10 * time.Second
)
