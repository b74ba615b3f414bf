// Copyright 2022-2024 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package client

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	config "github.com/kevinburke/ssh_config"
)

func TestConfig(t *testing.T) {
	V = t.Logf
	defer SetVerbose(func(string, ...interface{}) {})
	var tconfig = `
Host *.example.com
  Compression yes

Host tryton
	HostName erp.example.com
	Port 2222
	User root
	IdentityFile ~/.ssh/tryton_rsa

`

	cfg, err := config.Decode(strings.NewReader(tconfig))
	if err != nil {
		t.Fatal(err)
	}

	for _, test := range []struct {
		host string
		key  string
		want string
	}{
		{"test.example.com", "Compression", "yes"},
		{"tryton", "IdentityFile", "~/.ssh/tryton_rsa"},
		{"tryton", "Port", "2222"},
	} {
		val, err := cfg.Get(test.host, test.key)
		if err != nil {
			t.Error(err)
			continue
		}
		if val != test.want {
			t.Errorf("config.Get(%q, %q): got %q, want %q", test.host, test.key, val, test.want)
		}
	}

	h := os.Getenv("HOME")
	for _, test := range []struct {
		host string
		file string
		want string
	}{
		{"tryton", "abc", "abc"},
		{"tryton", "~abc", filepath.Join(h, "abc")},
		{"tryton", "~/.ssh/deploy_rsa", filepath.Join(h, ".ssh/deploy_rsa")},
	} {
		got := GetKeyFile(test.host, test.file)
		if got != test.want {
			t.Errorf("GetKeyFile(%q, %q): got %q, want %q", test.host, test.file, got, test.want)
		}
	}
}

func TestGetPort(t *testing.T) {
	for _, tt := range []struct {
		host string
		port string
		want string
		err  error
	}{
		{host: "tryton.invalid", port: "2222", want: "2222"},
		{host: "tryton.invalid", port: "", want: DefaultPort},
		{host: "tryton.invalid", port: "65536", err: strconv.ErrRange},
		{host: "tryton.invalid", port: "ssh", err: strconv.ErrSyntax},
	} {
		got, err := GetPort(tt.host, tt.port)
		if !errors.Is(err, tt.err) || got != tt.want {
			t.Errorf("GetPort(%q, %q): (%q, %v) != (%q, %v)", tt.host, tt.port, got, err, tt.want, tt.err)
		}
	}
}

func TestParseHost(t *testing.T) {
	for _, tt := range []struct {
		in               string
		user, host, port string
	}{
		{in: "localhost", host: "localhost"},
		{in: "root@localhost", user: "root", host: "localhost"},
		{in: "root@erp.example.com:2222", user: "root", host: "erp.example.com", port: "2222"},
		{in: "erp.example.com:22", host: "erp.example.com", port: "22"},
		{in: "deploy@[::1]:2200", user: "deploy", host: "::1", port: "2200"},
		{in: "a@b@host", user: "a@b", host: "host"},
	} {
		u, h, p := ParseHost(tt.in)
		if u != tt.user || h != tt.host || p != tt.port {
			t.Errorf("ParseHost(%q): (%q, %q, %q) != (%q, %q, %q)", tt.in, u, h, p, tt.user, tt.host, tt.port)
		}
	}
}

func TestNew(t *testing.T) {
	c := New("deploy@tryton.invalid:2200")
	if c.User != "deploy" || c.HostName != "tryton.invalid" || c.Port != "2200" {
		t.Errorf("New: (%q, %q, %q) != (%q, %q, %q)", c.User, c.HostName, c.Port, "deploy", "tryton.invalid", "2200")
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close: got %v, want nil", err)
	}
}

func TestOptions(t *testing.T) {
	c := New("tryton.invalid")
	if err := c.SetOptions(
		WithPort("2022"),
		WithUser("deploy"),
		WithPrivateKeyFile("/tmp/key"),
		WithKnownHostsFile("/tmp/known_hosts"),
		WithNetwork("tcp4"),
		WithUser(""),
		WithPort("")); err != nil {
		t.Fatalf("SetOptions: %v != nil", err)
	}
	if c.Port != "2022" || c.User != "deploy" || c.PrivateKeyFile != "/tmp/key" || c.KnownHostsFile != "/tmp/known_hosts" || c.network != "tcp4" {
		t.Errorf("SetOptions: got %+v", c)
	}
	if err := c.SetOptions(WithPort("70000")); !errors.Is(err, strconv.ErrRange) {
		t.Errorf("WithPort(70000): %v != %v", err, strconv.ErrRange)
	}
}
