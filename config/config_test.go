// Copyright 2024 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, val string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(val), 0644))
	return p
}

func TestDefaultConfig(t *testing.T) {
	c := DefaultConfig()
	require.NoError(t, c.Validate())

	assert.Equal(t, "root@localhost", c.Host)
	assert.Equal(t, "root", c.LoginUser())
	assert.Equal(t, "tryton", c.AppUser)
	assert.Equal(t, "/home/tryton/runtime/pid", c.PIDFile())
	assert.Equal(t, "source /home/tryton/virtualenv/bin/activate", c.Activate())
	assert.Equal(t, "/home/tryton/virtualenv/lib/python2.7/site-packages/trytond/modules", c.Paths.Modules)
	assert.Equal(t, time.Second, c.RestartDelay)
	assert.Equal(t, DefaultSystemDependencies, c.SystemDependencies)

	// The default list must not be shared.
	c.SystemDependencies[0] = "changed"
	assert.Equal(t, "python-setuptools", DefaultSystemDependencies[0])
}

func TestLoadFromFile(t *testing.T) {
	p := writeFile(t, "trydeploy.yaml", `
host: admin@erp.example.com:2222
app_user: erp
paths:
  directory: /srv/erp/runtime
  pid_file: /run/trytond.pid
files:
  local_dir: deploy
system_dependencies: [dtach, git-core]
restart_delay: 3s
`)
	c, err := LoadFromFile(p)
	require.NoError(t, err)
	require.NoError(t, c.Validate())

	assert.Equal(t, "admin@erp.example.com:2222", c.Host)
	assert.Equal(t, "admin", c.LoginUser())
	assert.Equal(t, "erp", c.AppUser)
	assert.Equal(t, "/srv/erp/runtime", c.Paths.Directory)
	assert.Equal(t, "/run/trytond.pid", c.PIDFile())
	// Unset fields keep their defaults.
	assert.Equal(t, "/home/tryton/virtualenv", c.Paths.Virtualenv)
	assert.Equal(t, "requirements.txt", c.Files.Requirements)
	assert.Equal(t, []string{"dtach", "git-core"}, c.SystemDependencies)
	assert.Equal(t, 3*time.Second, c.RestartDelay)
	assert.Equal(t, filepath.Join("deploy", "trytond.conf"), c.Local(c.Files.ServerConfig))
	assert.Equal(t, "/etc/trytond.conf", c.Local("/etc/trytond.conf"))
}

func TestLoginUser(t *testing.T) {
	t.Setenv("USER", "deployer")
	c := DefaultConfig()
	for _, tt := range []struct {
		host string
		want string
	}{
		{host: "root@localhost", want: "root"},
		{host: "admin@erp.invalid:2222", want: "admin"},
		{host: "erp.invalid", want: "deployer"},
		{host: "erp.invalid:2222", want: "deployer"},
	} {
		c.Host = tt.host
		assert.Equal(t, tt.want, c.LoginUser(), tt.host)
	}
}

func TestLoadFromFileErrors(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read config file")

	_, err = LoadFromFile(writeFile(t, "bad.yaml", "paths: [not, a, map]\n"))
	assert.ErrorContains(t, err, "failed to parse config file")
}

func TestLoadEnv(t *testing.T) {
	t.Setenv("TRYDEPLOY_HOST", "deploy@10.0.0.7")
	t.Setenv("TRYDEPLOY_DIRECTORY", "/opt/tryton/runtime")
	t.Setenv("TRYDEPLOY_RESTART_DELAY", "250ms")

	c, err := Load("", "")
	require.NoError(t, err)
	assert.Equal(t, "deploy@10.0.0.7", c.Host)
	assert.Equal(t, "/opt/tryton/runtime", c.Paths.Directory)
	assert.Equal(t, 250*time.Millisecond, c.RestartDelay)
	assert.Equal(t, "tryton", c.AppUser)
}

func TestLoadNoEnv(t *testing.T) {
	c, err := Load("", "")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Paths, c.Paths)
}

func TestLoadEnvFile(t *testing.T) {
	// Variables already in the environment win over the file.
	t.Setenv("TRYDEPLOY_APP_USER", "erp")
	env := writeFile(t, ".env", "TRYDEPLOY_APP_USER=ignored\nTRYDEPLOY_DB_SUPERUSER=pgadmin\n")
	t.Cleanup(func() { os.Unsetenv("TRYDEPLOY_DB_SUPERUSER") })

	yml := writeFile(t, "trydeploy.yaml", "host: root@db.example.com\n")
	c, err := Load(yml, env)
	require.NoError(t, err)
	assert.Equal(t, "root@db.example.com", c.Host)
	assert.Equal(t, "erp", c.AppUser)
	assert.Equal(t, "pgadmin", c.DBSuperuser)

	_, err = Load("", filepath.Join(t.TempDir(), "missing.env"))
	assert.ErrorContains(t, err, "failed to load env file")
}

func TestValidate(t *testing.T) {
	for _, tt := range []struct {
		name   string
		modify func(*Config)
		want   string
	}{
		{name: "host", modify: func(c *Config) { c.Host = "" }, want: "host is required"},
		{name: "app user", modify: func(c *Config) { c.AppUser = "" }, want: "app_user is required"},
		{name: "shell", modify: func(c *Config) { c.Shell = "" }, want: "shell is required"},
		{name: "delay", modify: func(c *Config) { c.RestartDelay = -time.Second }, want: "negative"},
		{name: "relative dir", modify: func(c *Config) { c.Paths.Directory = "runtime" }, want: `paths.directory "runtime"`},
		{name: "relative modules", modify: func(c *Config) { c.Paths.Modules = "modules" }, want: "paths.modules"},
		{name: "relative pid", modify: func(c *Config) { c.Paths.PIDFile = "pid" }, want: "paths.pid_file"},
	} {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultConfig()
			tt.modify(c)
			err := c.Validate()
			require.ErrorIs(t, err, ErrInvalid)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
