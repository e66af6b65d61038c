// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command agent is the debug-agent CLI binary backed by the native
// ptrace backend or, with --instrument, the out-of-process
// instrumentation backend. It accepts exactly one peer connection at
// a time and runs the debugger core's dispatch loop against it,
// per spec.md 6's CLI surface.
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rdagent/rdagent/backend"
	"github.com/rdagent/rdagent/cpu"
	"github.com/rdagent/rdagent/dbgcore"
	"github.com/rdagent/rdagent/eventqueue"
	"github.com/rdagent/rdagent/instrbackend"
	"github.com/rdagent/rdagent/nativebackend"
	"github.com/rdagent/rdagent/transport"
)

type config struct {
	port       uint16
	verbosity  int
	logFile    string
	instrument string // path to instrumentation runner binary, empty => native backend
}

func main() {
	cfg := &config{}
	root := &cobra.Command{
		Use:   "agent <pid|path> [args...]",
		Short: "expose a native target process to a debug front end over TCP",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cfg, args)
		},
	}
	flags := root.Flags()
	flags.Uint16VarP(&cfg.port, "port", "p", 2222, "TCP port to listen on")
	flags.CountVarP(&cfg.verbosity, "verbose", "v", "increase log verbosity (-v, -vv)")
	flags.StringVarP(&cfg.logFile, "log-file", "l", "", "write logs to this file instead of stderr")
	flags.StringVar(&cfg.instrument, "instrument", "", "path to an instrumentation runner binary, instead of the native backend")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "agent:", err)
		os.Exit(1)
	}
}

func newLogger(cfg *config) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if cfg.logFile != "" {
		zcfg.OutputPaths = []string{cfg.logFile}
	}
	switch {
	case cfg.verbosity >= 2:
		zcfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case cfg.verbosity == 1:
		zcfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	default:
		zcfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	}
	return zcfg.Build()
}

func run(cfg *config, args []string) error {
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	events := eventqueue.New(eventqueue.DefaultCapacity)

	var b backend.Backend
	if cfg.instrument != "" {
		runner, err := instrbackend.NewExecRunner(cfg.instrument, args[1:])
		if err != nil {
			return cpu.NewError(cpu.ErrCouldntStartServer, err.Error())
		}
		b = instrbackend.New(runner, events)
	} else {
		b = nativebackend.New(events)
	}

	ctx := context.Background()
	attached, target := resolveTarget(args)
	if pid, ok := target.(uint64); ok {
		if err := b.Attach(ctx, pid); err != nil {
			return err
		}
	} else {
		pathArgv := target.([]string)
		if err := b.Start(ctx, pathArgv[0], pathArgv[1:]); err != nil {
			return err
		}
	}

	ln, err := transport.Listen(fmt.Sprintf(":%d", cfg.port))
	if err != nil {
		return cpu.NewError(cpu.ErrCouldntStartServer, err.Error())
	}
	defer ln.Close()

	logger.Info("agent listening", zap.Uint16("port", cfg.port))

	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		sessionID := uuid.New()
		sessionLogger := logger.With(zap.String("session", sessionID.String()))
		sessionLogger.Info("peer connected")

		core := dbgcore.New(b, sessionLogger)
		if attached {
			core.MarkAttached()
		}
		if err := core.Handshake(conn, "rdagent native/instrumentation agent"); err != nil {
			sessionLogger.Warn("handshake failed", zap.Error(err))
			conn.Close()
			continue
		}
		if err := core.Run(ctx, conn); err != nil {
			sessionLogger.Info("session ended", zap.Error(err))
		}
		conn.Close()
	}
}

// resolveTarget distinguishes the CLI's positional pid-or-path form:
// a pure unsigned integer is a pid to attach to, anything else is a
// program path (plus its own argv) to start.
func resolveTarget(args []string) (attached bool, target interface{}) {
	if pid, err := strconv.ParseUint(args[0], 10, 64); err == nil && len(args) == 1 {
		return true, pid
	}
	return true, append([]string{}, args...)
}
