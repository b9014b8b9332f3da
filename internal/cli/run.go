package cli

import (
	"github.com/cockroachdb/errors"
)

// RunOptions carries the configuration of the run command.
type RunOptions struct {
	Source      string
	Store       string
	RedisAddr   string
	Checkpoint  bool
	Resume      string
	Interactive bool
	ScriptAllow []string
	Workers     int
	LoopCeiling int
	Output      string
	LogLevel    string
	Watch       bool
}

// Execute handles the run command, dispatching to a single session or
// the watch loop.
func Execute(opts RunOptions) error {
	if err := validateOptions(opts); err != nil {
		return err
	}
	if opts.Watch {
		return RunWatch(opts)
	}
	return RunSession(opts)
}

// validateOptions rejects flag combinations before any engine work
// starts, so misconfigurations fail in milliseconds.
func validateOptions(opts RunOptions) error {
	switch opts.Store {
	case "", "memory", "redis":
	default:
		return errors.Newf("unknown store %q (want memory or redis)", opts.Store)
	}
	switch opts.Output {
	case "", "text", "json":
	default:
		return errors.Newf("unknown output %q (want text or json)", opts.Output)
	}
	if opts.Resume != "" && opts.Store != "redis" {
		return errors.New("--resume needs --store redis; a fresh process has no in-memory snapshots")
	}
	if opts.Checkpoint && opts.Store == "" {
		return errors.New("--checkpoint needs a store (--store memory or --store redis)")
	}
	if opts.Watch {
		if opts.Resume != "" || opts.Checkpoint {
			return errors.New("--watch reruns the plan from scratch and cannot combine with --resume or --checkpoint")
		}
		if opts.Output == "json" {
			return errors.New("--watch is an interactive workflow; --output json is not supported")
		}
	}
	return nil
}
