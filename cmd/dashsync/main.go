// Command dashsync keeps a home-automation dashboard in step with its
// device backend.
//
// "dashsync serve" runs the synchronizer as a daemon with the local HTTP
// API, the MQTT relay and the optional InfluxDB sink. "dashsync dashboard"
// opens the terminal dashboard. The remaining subcommands are one-shot
// operations against the backend.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := newRootCmd().ExecuteContext(ctx)
	cancel()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
