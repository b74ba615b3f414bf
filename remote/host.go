// Copyright 2024 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/u-root/trydeploy/client"
	"golang.org/x/crypto/ssh"
)

// Conn is the part of *client.Client a Host needs.
type Conn interface {
	Run(ctx context.Context, cmd string, stdio client.Stdio) error
	Put(ctx context.Context, local, remoteDir string) error
}

// CommandError is a remote command that did not succeed.
type CommandError struct {
	Cmd string
	Err error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("remote command %q: %v", e.Cmd, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// ExitStatus returns the remote exit status, or -1 if the command
// did not get as far as exiting.
func (e *CommandError) ExitStatus() int {
	var ee *ssh.ExitError
	if errors.As(e.Err, &ee) {
		return ee.ExitStatus()
	}
	return -1
}

// Host runs Execs on one target over a Conn.
type Host struct {
	conn  Conn
	shell string
	log   logrus.FieldLogger

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// NewHost returns a Host using conn. Commands go through shell,
// DefaultShell if empty, and their output goes to os.Stdout and
// os.Stderr.
func NewHost(conn Conn, shell string, log logrus.FieldLogger) *Host {
	if len(shell) == 0 {
		shell = DefaultShell
	}
	return &Host{
		conn:   conn,
		shell:  shell,
		log:    log,
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}
}

// Run runs x and waits for it. Any failure is a *CommandError.
func (h *Host) Run(ctx context.Context, x Exec) error {
	cmd := x.Command(h.shell)
	h.log.WithFields(fields(x)).Infof("run: %s", x.Line())
	h.log.Debugf("run: %s", cmd)
	stdio := client.Stdio{Stdout: h.Stdout, Stderr: h.Stderr}
	if x.Interactive {
		stdio.Stdin, stdio.Pty = h.Stdin, true
	}
	if err := h.conn.Run(ctx, cmd, stdio); err != nil {
		return &CommandError{Cmd: cmd, Err: err}
	}
	return nil
}

// Put uploads local into remoteDir.
func (h *Host) Put(ctx context.Context, local, remoteDir string) error {
	h.log.Infof("put: %s -> %s", local, remoteDir)
	if err := h.conn.Put(ctx, local, remoteDir); err != nil {
		return fmt.Errorf("put %q into %q: %w", local, remoteDir, err)
	}
	return nil
}

// Exists reports whether p exists on the target, looked up in the
// context of x (user and directory). Exit status 1 from test(1)
// means it does not; any other failure is an error.
func (h *Host) Exists(ctx context.Context, x Exec, p string) (bool, error) {
	x.Cmd, x.Interactive = "test -e "+QuoteArg(p), false
	cmd := x.Command(h.shell)
	h.log.Debugf("exists: %s", cmd)
	err := h.conn.Run(ctx, cmd, client.Stdio{Stderr: h.Stderr})
	if err == nil {
		return true, nil
	}
	var ee *ssh.ExitError
	if errors.As(err, &ee) && ee.ExitStatus() == 1 {
		return false, nil
	}
	return false, &CommandError{Cmd: cmd, Err: err}
}

func fields(x Exec) logrus.Fields {
	f := logrus.Fields{}
	if len(x.User) != 0 {
		f["as"] = x.User
	} else if x.Sudo {
		f["as"] = "root"
	}
	return f
}
