// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Command dispatchd runs a dispatch server with the built-in procedures
// and serves its metrics over HTTP.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/juju/gnuflag"
)

func main() {
	os.Exit(Main(os.Args))
}

// Main parses args and runs the daemon until it is interrupted.
func Main(args []string) int {
	cmd := &dispatchCommand{}
	f := gnuflag.NewFlagSet(args[0], gnuflag.ContinueOnError)
	cmd.SetFlags(f)
	if err := f.Parse(true, args[1:]); err != nil {
		return 2
	}
	if err := cmd.Init(f.Args()); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR %v\n", err)
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := cmd.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR %v\n", err)
		return 1
	}
	return 0
}
