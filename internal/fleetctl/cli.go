// Package fleetctl implements the operator CLI for a running fleetd
// daemon. Every command is a thin wrapper around one HTTP call; the
// daemon owns all fleet state.
package fleetctl

import (
	"context"
	"fmt"
	"os"
	"time"
)

const (
	defaultAddr       = "http://127.0.0.1:8080"
	defaultTimeoutSec = 30

	// agentWaitFloor is the minimum deadline for agent runs and chat
	// completions. Both block until the daemon finishes model work,
	// which routinely outlives the quick-op timeout.
	agentWaitFloor = 15 * time.Minute
)

// Config carries the persistent options shared by every subcommand.
type Config struct {
	Addr       string // base URL of the fleetd API
	TimeoutSec int    // per-request deadline in seconds
	LogLvl     string

	Model    string // model alias for chat and agent runs, empty keeps the server default
	Dir      string // working directory for agent runs
	MaxSteps int    // agent step budget, 0 keeps the server default
	Limit    int    // cap for run listings, 0 keeps the server default
	Force    bool   // bypass gaming-mode gating on chat
}

func defaultConfig() *Config {
	return &Config{
		Addr:       envStr("FLEETD_ADDR", defaultAddr),
		TimeoutSec: envInt("FLEETCTL_TIMEOUT", defaultTimeoutSec),
		LogLvl:     envStr("FLEETCTL_LOG_LEVEL", "info"),
	}
}

// opCtx bounds a quick operation such as a status or toggle call.
func opCtx(cfg *Config) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), time.Duration(cfg.TimeoutSec)*time.Second)
}

// waitCtx bounds a model-backed operation. An explicit --timeout above
// the floor still wins.
func waitCtx(cfg *Config) (context.Context, context.CancelFunc) {
	d := time.Duration(cfg.TimeoutSec) * time.Second
	if d < agentWaitFloor {
		d = agentWaitFloor
	}
	return context.WithTimeout(context.Background(), d)
}

// MainWithArgs is a testable variant of Main that accepts args explicitly.
// It returns an exit code (0 for success, non-zero on error).
func MainWithArgs(args []string) int {
	cfg := defaultConfig()
	root := buildRootCmdWith(cfg)
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "fleetctl: "+err.Error())
		return 1
	}
	return 0
}

// Main returns an exit code (0 for success, non-zero on error) for use by cmd/fleetctl.
func Main() int { return MainWithArgs(os.Args[1:]) }
