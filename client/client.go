// Copyright 2018-2024 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/term"
)

// V allows debug printing.
var V = func(string, ...interface{}) {}

// SetVerbose sets the debug print function.
func SetVerbose(f func(string, ...interface{})) {
	V = f
}

// ErrNotConnected is returned when a Client is used before Dial.
var ErrNotConnected = errors.New("client is not connected")

// Client is a connection to one deployment target.
// As in exec.Cmd, the exported fields can be set directly
// before Dial is called.
type Client struct {
	config ssh.ClientConfig
	client *ssh.Client
	sftp   *sftp.Client

	// Host is the name given by the user, e.g. root@example.com:2222.
	Host string
	// HostName as found in .ssh/config; set to Host if not found
	HostName       string
	User           string
	Port           string
	PrivateKeyFile string
	KnownHostsFile string
	// Auth, if not empty, replaces key file and agent authentication.
	Auth []ssh.AuthMethod

	network string // This is a variable but we expect it will always be tcp
	closers []func() error
	stdin   *stdin
}

// Stdio describes the standard streams of one remote command.
// If Pty is set, a pseudo terminal is requested and, when Stdin
// is a terminal, it is put in raw mode for the life of the command.
type Stdio struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	Pty    bool
}

// New returns a Client for host, which may carry a user and a port,
// as in user@host:port. Nothing is dialed until Dial is called.
func New(host string) *Client {
	user, name, port := ParseHost(host)
	return &Client{
		Host:     host,
		HostName: GetHostName(name),
		User:     GetUser(name, user),
		Port:     port,
		config: ssh.ClientConfig{
			HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		},
		network: "tcp",
	}
}

// Dial connects and authenticates to the target.
func (c *Client) Dial() error {
	_, name, _ := ParseHost(c.Host)
	if err := c.SetPort(c.Port); err != nil {
		return err
	}
	c.config.User = c.User
	if len(c.Auth) != 0 {
		c.config.Auth = append(c.config.Auth, c.Auth...)
	} else if err := c.UserKeyConfig(name); err != nil {
		return err
	}
	if len(c.KnownHostsFile) != 0 {
		if err := c.HostKeyConfig(c.KnownHostsFile); err != nil {
			return err
		}
	}
	addr := net.JoinHostPort(c.HostName, c.Port)
	cl, err := ssh.Dial(c.network, addr, &c.config)
	V("client:ssh.Dial(%s, %s, user %q): (%v, %v)", c.network, addr, c.config.User, cl, err)
	if err != nil {
		return fmt.Errorf("failed to dial %s: %w", addr, err)
	}
	c.client = cl
	c.closers = append(c.closers, func() error {
		if err := cl.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			return fmt.Errorf("closing connection: %w", err)
		}
		return nil
	})
	return nil
}

// SetPort sets the port in the Client.
// It calls GetPort with the passed-in port
// before assigning it.
func (c *Client) SetPort(port string) error {
	_, name, _ := ParseHost(c.Host)
	p, err := GetPort(name, port)
	if err != nil {
		return err
	}
	c.Port = p
	return nil
}

// Run runs cmd in a new session and waits for it to finish.
// A command that exits non-zero returns an *ssh.ExitError.
// If ctx is canceled the remote side gets an interrupt and the
// session is torn down; Run then returns ctx.Err().
// Stdin is read by the Client, not by the command: input that arrives
// after the command ends goes to the next Run with the same Stdin.
// Calls to Run must not overlap.
func (c *Client) Run(ctx context.Context, cmd string, stdio Stdio) error {
	if c.client == nil {
		return ErrNotConnected
	}
	s, err := c.client.NewSession()
	if err != nil {
		return fmt.Errorf("new session: %w", err)
	}
	defer s.Close()

	s.Stdout, s.Stderr = stdio.Stdout, stdio.Stderr
	if stdio.Pty {
		restore, err := c.pty(s, stdio.Stdin)
		if err != nil {
			return err
		}
		defer restore()
	}
	detach := func() {}
	if stdio.Stdin != nil {
		// Session.Stdin would make Wait block on the reader,
		// which for a terminal never returns.
		w, err := s.StdinPipe()
		if err != nil {
			return err
		}
		if c.stdin == nil || c.stdin.r != stdio.Stdin {
			c.stdin = newStdin(stdio.Stdin)
		}
		detach = c.stdin.attach(w)
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			V("client: interrupting %q: %v", cmd, ctx.Err())
			s.Signal(ssh.SIGINT) //nolint
			s.Close()
		case <-done:
		}
	}()

	V("client: session.Run(%q)", cmd)
	err = s.Run(cmd)
	s.Close()
	detach()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// pty requests a pseudo terminal sized like stdin, if stdin is a
// terminal, and puts stdin in raw mode. The returned function
// restores the terminal.
func (c *Client) pty(s *ssh.Session, stdin io.Reader) (func(), error) {
	restore := func() {}
	col, row := 80, 40
	if f, ok := stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fd := int(f.Fd())
		if w, h, err := term.GetSize(fd); err != nil {
			V("Can not get winsize: %v; assuming %dx%d", err, col, row)
		} else {
			col, row = w, h
		}
		old, err := term.MakeRaw(fd)
		if err != nil {
			return restore, fmt.Errorf("raw terminal: %w", err)
		}
		restore = func() {
			if err := term.Restore(fd, old); err != nil {
				V("restoring terminal: %v", err)
			}
		}
	}
	modes := ssh.TerminalModes{
		ssh.ECHO:          1,
		ssh.TTY_OP_ISPEED: 14400, // input speed = 14.4kbaud
		ssh.TTY_OP_OSPEED: 14400, // output speed = 14.4kbaud
	}
	V("session.RequestPty(\"xterm\", %v, %v, %#x)", row, col, modes)
	if err := s.RequestPty("xterm", row, col, modes); err != nil {
		restore()
		return func() {}, fmt.Errorf("request for pseudo terminal failed: %w", err)
	}
	return restore, nil
}

// Close ends the connection, doing whatever is needed.
// Closers run in reverse order of registration.
func (c *Client) Close() error {
	var err error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if e := c.closers[i](); e != nil {
			err = multierror.Append(err, e)
		}
	}
	c.closers = nil
	c.client, c.sftp = nil, nil
	return err
}
