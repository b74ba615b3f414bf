// Copyright 2024 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package sshtest provides an SSH server for tests, in the spirit
// of net/http/httptest.
//
// Start(password) listens on a loopback port and runs each command
// with /bin/sh -c on the local machine, honoring pty requests, exit
// codes and the sftp subsystem. Because "remote" is the local file
// system, tests can upload into a t.TempDir() and look at the result
// directly. Commands returns every command line the server received.
package sshtest
