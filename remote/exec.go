// Copyright 2024 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package remote

import (
	"strings"
)

// DefaultShell runs a composed command line on the target.
// A login shell is used so that prefixes like "source" work.
const DefaultShell = "/bin/bash -l -c"

// Exec is one remote command together with the context it runs in.
// The zero value besides Cmd runs Cmd as the login user in its
// home directory.
type Exec struct {
	Cmd string
	// Sudo runs the command through sudo, as root unless User is set.
	Sudo bool
	// User, if set, implies Sudo and runs the command as that user.
	User string
	// Dir is the working directory.
	Dir string
	// Prefixes run, in order, before Cmd, e.g.
	// "source /home/tryton/virtualenv/bin/activate".
	Prefixes []string
	// Interactive commands get a pty and the caller's stdin.
	Interactive bool
}

// In returns a copy of x with Dir set to dir.
func (x Exec) In(dir string) Exec {
	x.Dir = dir
	return x
}

// Do returns a copy of x with Cmd set to cmd.
func (x Exec) Do(cmd string) Exec {
	x.Cmd = cmd
	return x
}

// Line returns the command line to be handed to the shell:
// cd to Dir, then the prefixes, then Cmd, joined with &&.
func (x Exec) Line() string {
	var parts []string
	if len(x.Dir) != 0 {
		parts = append(parts, "cd "+QuoteArg(x.Dir))
	}
	parts = append(parts, x.Prefixes...)
	parts = append(parts, x.Cmd)
	return strings.Join(parts, " && ")
}

// Command returns the full command line sent to the target.
func (x Exec) Command(shell string) string {
	if len(shell) == 0 {
		shell = DefaultShell
	}
	cmd := shell + " " + QuoteArg(x.Line())
	if !x.Sudo && len(x.User) == 0 {
		return cmd
	}
	sudo := "sudo -S -p '' -H"
	if len(x.User) != 0 {
		sudo += " -u " + QuoteArg(x.User)
	}
	return sudo + " " + cmd
}

// QuoteArg quotes s for a POSIX shell.
func QuoteArg(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "'\"'\"'") + "'"
}
