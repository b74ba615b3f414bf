// Copyright 2018-2024 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package client

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	config "github.com/kevinburke/ssh_config"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"
)

const (
	// DefaultPort is the default ssh port.
	DefaultPort = "22"
)

// DefaultKeyFile is the key tried when neither the caller nor
// .ssh/config name one.
var DefaultKeyFile = filepath.Join(os.Getenv("HOME"), ".ssh/id_rsa")

// Set is a function that configures a Client.
type Set func(*Client) error

// SetOptions applies options to a Client.
func (c *Client) SetOptions(opts ...Set) error {
	for _, o := range opts {
		if err := o(c); err != nil {
			return err
		}
	}
	return nil
}

// WithPrivateKeyFile sets the private key file. An empty string
// leaves the choice to .ssh/config and DefaultKeyFile.
func WithPrivateKeyFile(key string) Set {
	return func(c *Client) error {
		c.PrivateKeyFile = key
		return nil
	}
}

// WithKnownHostsFile enables host key checking against a known_hosts file.
func WithKnownHostsFile(file string) Set {
	return func(c *Client) error {
		c.KnownHostsFile = file
		return nil
	}
}

// WithPort sets the port. An empty port is ignored.
func WithPort(port string) Set {
	return func(c *Client) error {
		if len(port) == 0 {
			return nil
		}
		if _, err := strconv.ParseUint(port, 10, 16); err != nil {
			return fmt.Errorf("port %q: %w", port, err)
		}
		c.Port = port
		return nil
	}
}

// WithUser sets the login user. An empty user is ignored.
func WithUser(user string) Set {
	return func(c *Client) error {
		if len(user) != 0 {
			c.User = user
		}
		return nil
	}
}

// WithAuth sets explicit authentication methods.
func WithAuth(methods ...ssh.AuthMethod) Set {
	return func(c *Client) error {
		c.Auth = append(c.Auth, methods...)
		return nil
	}
}

// WithNetwork sets the network type, e.g. tcp4. An empty string is ignored.
func WithNetwork(network string) Set {
	return func(c *Client) error {
		if len(network) != 0 {
			c.network = network
		}
		return nil
	}
}

// ParseHost splits a [user@]host[:port] string.
func ParseHost(s string) (user, host, port string) {
	host = s
	if i := strings.LastIndex(host, "@"); i >= 0 {
		user, host = host[:i], host[i+1:]
	}
	if h, p, err := net.SplitHostPort(host); err == nil {
		host, port = h, p
	}
	return user, host, port
}

// UserKeyConfig sets up public key authentication.
// A key file the user asked for must be readable; otherwise the
// key from .ssh/config or DefaultKeyFile is used if it can be read.
// The ssh agent, if SSH_AUTH_SOCK is set, is always offered too.
func (c *Client) UserKeyConfig(host string) error {
	explicit := len(c.PrivateKeyFile) != 0
	kf := GetKeyFile(host, c.PrivateKeyFile)
	signer, err := readKey(kf)
	switch {
	case err == nil:
		c.config.Auth = append(c.config.Auth, ssh.PublicKeys(signer))
	case explicit:
		return err
	default:
		V("skipping key file: %v", err)
	}

	if sock, ok := os.LookupEnv("SSH_AUTH_SOCK"); ok && len(sock) != 0 {
		conn, err := net.Dial("unix", sock)
		if err != nil {
			V("ssh agent at %q: %v", sock, err)
			return nil
		}
		c.closers = append(c.closers, conn.Close)
		c.config.Auth = append(c.config.Auth, ssh.PublicKeysCallback(agent.NewClient(conn).Signers))
	}
	if len(c.config.Auth) == 0 {
		return fmt.Errorf("no usable authentication for %q: tried %q and no ssh agent", host, kf)
	}
	return nil
}

func readKey(kf string) (ssh.Signer, error) {
	key, err := os.ReadFile(kf)
	if err != nil {
		return nil, fmt.Errorf("unable to read private key %q: %w", kf, err)
	}
	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("ParsePrivateKey %q: %w", kf, err)
	}
	return signer, nil
}

// HostKeyConfig checks host keys against a known_hosts file. It is optional.
func (c *Client) HostKeyConfig(knownHostsFile string) error {
	cb, err := knownhosts.New(expandHome(knownHostsFile))
	if err != nil {
		return fmt.Errorf("known hosts %v: %w", knownHostsFile, err)
	}
	c.config.HostKeyCallback = cb
	return nil
}

// GetKeyFile picks a keyfile if none has been set.
// It will use ssh config, else use a default.
func GetKeyFile(host, kf string) string {
	V("getKeyFile for %q", kf)
	if len(kf) == 0 {
		kf = config.Get(host, "IdentityFile")
		V("key file from config is %q", kf)
		if len(kf) == 0 || kf == "~/.ssh/identity" {
			kf = DefaultKeyFile
		}
	}
	kf = expandHome(kf)
	V("getKeyFile returns %q", kf)
	return kf
}

// this is a tad annoying, but the config package doesn't handle ~.
func expandHome(p string) string {
	if strings.HasPrefix(p, "~") {
		return filepath.Join(os.Getenv("HOME"), p[1:])
	}
	return p
}

// GetHostName reads the host name from the ssh config file,
// if needed. If it is not found, the host name is returned.
func GetHostName(host string) string {
	h := config.Get(host, "HostName")
	if len(h) != 0 {
		host = h
	}
	return host
}

// GetUser returns user if set, else the User from the ssh config
// file, else $USER.
func GetUser(host, user string) string {
	if len(user) != 0 {
		return user
	}
	if u := config.Get(host, "User"); len(u) != 0 {
		return u
	}
	return os.Getenv("USER")
}

// GetPort gets a port. It verifies that the port fits in 16-bit space.
// config.Get returns "22" when there is no entry in .ssh/config, so
// the default falls out of the lookup.
func GetPort(host, port string) (string, error) {
	p := port
	V("getPort(%q, %q)", host, port)
	if len(p) == 0 {
		if cp := config.Get(host, "Port"); len(cp) != 0 {
			V("config.Get(%q,%q): %q", host, "Port", cp)
			p = cp
		}
	}
	if len(p) == 0 {
		p = DefaultPort
	}
	if _, err := strconv.ParseUint(p, 10, 16); err != nil {
		return "", fmt.Errorf("port %q for %q: %w", p, host, err)
	}
	V("returns %q", p)
	return p, nil
}
