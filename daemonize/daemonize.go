// Copyright (c) 2023 BVK Chaitanya

// Package daemonize respawns the running command as a background session
// process.
package daemonize

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// EnvKey holds the parent pid in the background process. It must not be set
// by anything else.
var EnvKey = "ORBTRADER_DAEMONIZE"

// IsChild returns true in the background process.
func IsChild() bool {
	return len(os.Getenv(EnvKey)) != 0
}

// Daemonize starts the current program in the background with the same
// arguments, environment and working directory. It must be called before
// opening the database or starting any servers.
//
// In the foreground process, Daemonize waits till the check function succeeds
// for the background process and exits with status zero, or returns an error
// if the background process dies or the context expires first. In the
// background process it detaches from the terminal session and returns nil.
func Daemonize(ctx context.Context, check func(ctx context.Context, child *os.Process) error) error {
	if !IsChild() {
		if err := daemonizeParent(ctx, check); err != nil {
			return err
		}
		os.Exit(0)
	}
	if _, err := unix.Setsid(); err != nil {
		return fmt.Errorf("could not set session id: %w", err)
	}
	return nil
}

func daemonizeParent(ctx context.Context, check func(context.Context, *os.Process) error) error {
	binary, err := exec.LookPath(os.Args[0])
	if err != nil {
		return fmt.Errorf("could not lookup binary: %w", err)
	}
	binaryPath, err := filepath.Abs(binary)
	if err != nil {
		return fmt.Errorf("could not determine absolute path for binary: %w", err)
	}
	wd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("could not determine working directory: %w", err)
	}

	devnull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("could not open %s: %w", os.DevNull, err)
	}
	defer devnull.Close()

	// Receive signal when child-process dies.
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGCHLD, os.Interrupt)
	defer stop()

	attr := &os.ProcAttr{
		Dir:   wd,
		Env:   append(os.Environ(), fmt.Sprintf("%s=%d", EnvKey, os.Getpid())),
		Files: []*os.File{devnull, devnull, devnull},
	}
	child, err := os.StartProcess(binaryPath, os.Args, attr)
	if err != nil {
		return fmt.Errorf("could not start background process: %w", err)
	}

	if check != nil {
		time.Sleep(time.Second)
		for ctx.Err() == nil {
			if err := check(ctx, child); err != nil {
				slog.WarnContext(ctx, "background process is not yet initialized", "pid", child.Pid, "err", err)
				time.Sleep(time.Second)
				continue
			}
			break
		}
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("could not initialize the background process: %w", err)
	}
	slog.Info("started background process", "pid", child.Pid)
	return nil
}
