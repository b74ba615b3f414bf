// Copyright 2024 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package remote describes how a deployment step runs on the target.
//
// An Exec carries the command and its context: the user to sudo to,
// the working directory, and the prefixes (e.g. activating a
// virtualenv) that must run first. Command composes these into the
// single line that is sent over ssh.
//
// Host runs Execs over an ssh connection; DryRun only logs them.
package remote
