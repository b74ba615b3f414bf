// Copyright 2018-2024 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sshtest

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"sync"

	"github.com/creack/pty"
	"github.com/gliderlabs/ssh"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/sftp"
)

var v = func(string, ...interface{}) {}

// SetVerbose sets the debug print function.
func SetVerbose(f func(string, ...interface{})) {
	v = f
}

// Server is an SSH server on a loopback port. It runs every
// command it is sent with /bin/sh -c as the current user and
// serves the sftp subsystem from the local file system.
type Server struct {
	srv  *ssh.Server
	ln   net.Listener
	done chan error

	mu   sync.Mutex
	cmds []string
}

// Start starts a Server. Clients may log in as any user with
// password, or with PrivateKey.
func Start(password string) (*Server, error) {
	s := &Server{done: make(chan error, 1)}
	s.srv = &ssh.Server{
		Handler: s.handler,
		PasswordHandler: func(ctx ssh.Context, p string) bool {
			return p == password
		},
		PublicKeyHandler: func(ctx ssh.Context, key ssh.PublicKey) bool {
			allowed, _, _, _, err := ssh.ParseAuthorizedKey(PublicKey)
			if err != nil {
				v("sshtest: %v", err)
				return false
			}
			return ssh.KeysEqual(key, allowed)
		},
		SubsystemHandlers: map[string]ssh.SubsystemHandler{
			"sftp": sftpHandler,
		},
	}
	if err := s.srv.SetOption(ssh.HostKeyPEM(PrivateKey)); err != nil {
		return nil, fmt.Errorf("host key: %w", err)
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	s.ln = ln
	v("sshtest: listening on %v", ln.Addr())
	go func() {
		s.done <- s.srv.Serve(ln)
	}()
	return s, nil
}

// Addr returns the host:port the server listens on.
func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// Port returns the port the server listens on.
func (s *Server) Port() string {
	_, p, _ := net.SplitHostPort(s.Addr())
	return p
}

// Commands returns the commands run so far, in order.
func (s *Server) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.cmds...)
}

// Close stops the server and waits for Serve to return.
func (s *Server) Close() error {
	var err error
	if e := s.srv.Close(); e != nil {
		err = multierror.Append(err, e)
	}
	if e := <-s.done; e != nil && !errors.Is(e, ssh.ErrServerClosed) {
		err = multierror.Append(err, e)
	}
	return err
}

func (s *Server) handler(sess ssh.Session) {
	raw := sess.RawCommand()
	s.mu.Lock()
	s.cmds = append(s.cmds, raw)
	s.mu.Unlock()
	v("sshtest: cmd is %q", raw)

	cmd := exec.Command("/bin/sh", "-c", raw)
	cmd.Env = append(os.Environ(), sess.Environ()...)
	ptyReq, winCh, isPty := sess.Pty()
	if !isPty {
		cmd.Stdout, cmd.Stderr = sess, sess.Stderr()
		// The child may exit before the client closes its stdin,
		// so stdin is copied outside of Wait.
		w, err := cmd.StdinPipe()
		if err != nil {
			v("sshtest: stdin pipe: %v", err)
			sess.Exit(1) //nolint
			return
		}
		if err := cmd.Start(); err != nil {
			v("sshtest: start: %v", err)
			sess.Exit(exitCode(err)) //nolint
			return
		}
		go func() {
			io.Copy(w, sess) //nolint
			w.Close()
		}()
		sess.Exit(exitCode(cmd.Wait())) //nolint
		return
	}

	cmd.Env = append(cmd.Env, fmt.Sprintf("TERM=%s", ptyReq.Term))
	f, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: uint16(ptyReq.Window.Height), Cols: uint16(ptyReq.Window.Width)})
	if err != nil {
		v("sshtest: pty start: %v", err)
		sess.Exit(1) //nolint
		return
	}
	defer f.Close()
	go func() {
		for win := range winCh {
			pty.Setsize(f, &pty.Winsize{Rows: uint16(win.Height), Cols: uint16(win.Width)}) //nolint
		}
	}()
	go func() {
		io.Copy(f, sess) //nolint stdin
	}()
	// Reading the pty fails with EIO once the child is gone.
	io.Copy(sess, f) //nolint stdout
	sess.Exit(exitCode(cmd.Wait())) //nolint
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		return ee.ExitCode()
	}
	v("sshtest: %v", err)
	return 1
}

func sftpHandler(sess ssh.Session) {
	srv, err := sftp.NewServer(sess)
	if err != nil {
		v("sshtest: sftp server: %v", err)
		return
	}
	if err := srv.Serve(); err != nil && !errors.Is(err, io.EOF) {
		v("sshtest: sftp serve: %v", err)
	}
	srv.Close()
}
