// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package apiserver

import "github.com/juju/errors"

// ErrServerStopped is returned by calls made after the server was killed.
const ErrServerStopped = errors.ConstError("api server stopped")
