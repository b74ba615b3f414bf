// Copyright 2024 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package remote

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/u-root/trydeploy/client"
	"github.com/u-root/trydeploy/sshtest"
	"golang.org/x/crypto/ssh"
)

// The sshtest server runs commands with /bin/sh, which has no
// login-shell flag, and sudo is not available in tests.
const testShell = "/bin/sh -c"

func newHost(t *testing.T) (*Host, *sshtest.Server, *logtest.Hook) {
	t.Helper()
	s, err := sshtest.Start("pw")
	if err != nil {
		t.Fatalf("sshtest.Start: %v != nil", err)
	}
	t.Cleanup(func() { s.Close() })
	c := client.New("tester@127.0.0.1:" + s.Port())
	if err := c.SetOptions(client.WithAuth(ssh.Password("pw"))); err != nil {
		t.Fatal(err)
	}
	if err := c.Dial(); err != nil {
		t.Fatalf("Dial: %v != nil", err)
	}
	t.Cleanup(func() { c.Close() })
	log, hook := logtest.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)
	h := NewHost(c, testShell, log)
	h.Stdout, h.Stderr = &bytes.Buffer{}, &bytes.Buffer{}
	return h, s, hook
}

func TestHostRun(t *testing.T) {
	h, s, hook := newHost(t)
	dir := t.TempDir()
	out := &bytes.Buffer{}
	h.Stdout = out

	if err := h.Run(context.Background(), Exec{Cmd: "pwd", Dir: dir}); err != nil {
		t.Fatalf("Run(pwd): %v != nil", err)
	}
	if got := strings.TrimSpace(out.String()); got != dir {
		t.Errorf("pwd: %q != %q", got, dir)
	}
	want := testShell + " " + QuoteArg("cd "+QuoteArg(dir)+" && pwd")
	if cmds := s.Commands(); len(cmds) != 1 || cmds[0] != want {
		t.Errorf("server commands: %q != [%q]", cmds, want)
	}
	if e := hook.Entries; len(e) == 0 || !strings.HasPrefix(e[0].Message, "run: ") {
		t.Errorf("no run log entry: %v", e)
	}
}

func TestHostRunFailure(t *testing.T) {
	h, _, _ := newHost(t)
	err := h.Run(context.Background(), Exec{Cmd: "exit 2"})
	var ce *CommandError
	if !errors.As(err, &ce) {
		t.Fatalf("Run(exit 2): %v is not a *CommandError", err)
	}
	if ce.ExitStatus() != 2 {
		t.Errorf("ExitStatus() = %d, want 2", ce.ExitStatus())
	}
	var ee *ssh.ExitError
	if !errors.As(err, &ee) {
		t.Errorf("Run(exit 2): %v does not wrap an *ssh.ExitError", err)
	}
}

func TestHostExists(t *testing.T) {
	h, _, _ := newHost(t)
	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, "sale"), 0755); err != nil {
		t.Fatal(err)
	}
	for _, tt := range []struct {
		p    string
		want bool
	}{
		{p: "sale", want: true},
		{p: "purchase", want: false},
		{p: filepath.Join(dir, "sale"), want: true},
	} {
		got, err := h.Exists(context.Background(), Exec{Dir: dir}, tt.p)
		if err != nil {
			t.Errorf("Exists(%q): %v != nil", tt.p, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Exists(%q) = %v, want %v", tt.p, got, tt.want)
		}
	}
}

func TestHostPut(t *testing.T) {
	h, _, _ := newHost(t)
	local := filepath.Join(t.TempDir(), "modules.txt")
	if err := os.WriteFile(local, []byte("trytond_sale\n"), 0644); err != nil {
		t.Fatal(err)
	}
	remote := t.TempDir()
	if err := h.Put(context.Background(), local, remote); err != nil {
		t.Fatalf("Put: %v != nil", err)
	}
	if _, err := os.Stat(filepath.Join(remote, "modules.txt")); err != nil {
		t.Errorf("uploaded file: %v", err)
	}
	if err := h.Put(context.Background(), filepath.Join(t.TempDir(), "missing"), remote); err == nil {
		t.Errorf("Put of a missing file: nil error")
	}
}

func TestDryRun(t *testing.T) {
	log, hook := logtest.NewNullLogger()
	d := NewDryRun("", log)
	ctx := context.Background()
	if err := d.Run(ctx, Exec{Cmd: "adduser tryton"}); err != nil {
		t.Fatalf("Run: %v != nil", err)
	}
	if err := d.Put(ctx, "requirements.txt", "/home/tryton/runtime"); err != nil {
		t.Fatalf("Put: %v != nil", err)
	}
	ok, err := d.Exists(ctx, Exec{Dir: "/home/tryton/develop"}, "sale")
	if ok || err != nil {
		t.Fatalf("Exists: (%v, %v) != (false, nil)", ok, err)
	}
	if len(hook.Entries) != 3 {
		t.Fatalf("got %d log entries, want 3", len(hook.Entries))
	}
	if want := "run: /bin/bash -l -c 'adduser tryton'"; hook.Entries[0].Message != want {
		t.Errorf("log: %q != %q", hook.Entries[0].Message, want)
	}

	cctx, cancel := context.WithCancel(ctx)
	cancel()
	if err := d.Run(cctx, Exec{Cmd: "true"}); !errors.Is(err, context.Canceled) {
		t.Errorf("Run with canceled context: %v != %v", err, context.Canceled)
	}
}
