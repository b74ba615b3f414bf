// Copyright 2024 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package config holds the settings of a deployment target.
//
// A Config is built once, from DefaultConfig, an optional YAML file,
// an optional dotenv file and TRYDEPLOY_* environment variables, in
// that order, and is read-only afterwards.
package config

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"github.com/u-root/trydeploy/client"
	"gopkg.in/yaml.v3"
)

// ErrInvalid is returned by Validate.
var ErrInvalid = errors.New("invalid configuration")

// Config is the complete description of one deployment target.
type Config struct {
	// Host is [user@]host[:port]. The user is the privileged login
	// identity that runs unprivileged steps and starts the server.
	Host string `yaml:"host" env:"TRYDEPLOY_HOST"`
	// Port overrides the port in Host and .ssh/config.
	Port       string `yaml:"port" env:"TRYDEPLOY_PORT"`
	KeyFile    string `yaml:"key_file" env:"TRYDEPLOY_KEY_FILE"`
	KnownHosts string `yaml:"known_hosts" env:"TRYDEPLOY_KNOWN_HOSTS"`
	// Shell runs every composed command line, e.g. "/bin/bash -l -c".
	Shell string `yaml:"shell" env:"TRYDEPLOY_SHELL"`

	// AppUser owns the runtime, the virtualenv and the modules.
	AppUser string `yaml:"app_user" env:"TRYDEPLOY_APP_USER"`
	// DBSuperuser creates the application's database role.
	DBSuperuser string `yaml:"db_superuser" env:"TRYDEPLOY_DB_SUPERUSER"`

	Paths PathsConfig `yaml:"paths"`
	Files FilesConfig `yaml:"files"`

	// SystemDependencies are installed with apt-get, in order.
	SystemDependencies []string `yaml:"system_dependencies"`
	// RestartDelay is the pause between stop and start.
	RestartDelay time.Duration `yaml:"restart_delay" env:"TRYDEPLOY_RESTART_DELAY"`
}

// PathsConfig are absolute paths on the target.
type PathsConfig struct {
	Directory  string `yaml:"directory" env:"TRYDEPLOY_DIRECTORY"`
	Virtualenv string `yaml:"virtualenv" env:"TRYDEPLOY_VIRTUALENV"`
	Modules    string `yaml:"modules" env:"TRYDEPLOY_MODULES_DIRECTORY"`
	Develop    string `yaml:"develop" env:"TRYDEPLOY_DEVELOP_DIRECTORY"`
	// PIDFile defaults to pid in Directory.
	PIDFile     string `yaml:"pid_file" env:"TRYDEPLOY_PID_FILE"`
	DtachSocket string `yaml:"dtach_socket" env:"TRYDEPLOY_DTACH_SOCKET"`
}

// FilesConfig are local files, relative to LocalDir unless absolute.
type FilesConfig struct {
	LocalDir     string `yaml:"local_dir" env:"TRYDEPLOY_LOCAL_DIR"`
	Requirements string `yaml:"requirements"`
	Modules      string `yaml:"modules"`
	Develop      string `yaml:"develop"`
	Bootstrap    string `yaml:"bootstrap"`
	ServerConfig string `yaml:"server_config"`
	Launcher     string `yaml:"launcher"`
	StartScript  string `yaml:"start_script"`
	DropAll      string `yaml:"drop_all"`
	Updater      string `yaml:"updater"`
}

// DefaultSystemDependencies are the packages a trytond host needs.
var DefaultSystemDependencies = []string{
	"python-setuptools",
	"python-virtualenv",
	"postgresql",
	"build-essential",
	"postgresql-server-dev-all",
	"python-dev",
	"libxml2-dev",
	"libxslt1-dev",
	"dtach",
	"mercurial",
	"git-core",
}

// DefaultConfig returns a Config for a single Ubuntu host reached as root@localhost.
func DefaultConfig() *Config {
	return &Config{
		Host:        "root@localhost",
		Shell:       "/bin/bash -l -c",
		AppUser:     "tryton",
		DBSuperuser: "postgres",
		Paths: PathsConfig{
			Directory:   "/home/tryton/runtime",
			Virtualenv:  "/home/tryton/virtualenv",
			Modules:     "/home/tryton/virtualenv/lib/python2.7/site-packages/trytond/modules",
			Develop:     "/home/tryton/develop",
			DtachSocket: "/tmp/trytond",
		},
		Files: FilesConfig{
			LocalDir:     ".",
			Requirements: "requirements.txt",
			Modules:      "modules.txt",
			Develop:      "develop.txt",
			Bootstrap:    "tryton_bootstrap.py",
			ServerConfig: "trytond.conf",
			Launcher:     "launcher.py",
			StartScript:  "tryton_start.sh",
			DropAll:      "drop_all.py",
			Updater:      "updater.py",
		},
		SystemDependencies: append([]string(nil), DefaultSystemDependencies...),
		RestartDelay:       time.Second,
	}
}

// LoadFromFile loads configuration from a YAML file on top of the defaults.
func LoadFromFile(file string) (*Config, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	c := DefaultConfig()
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", file, err)
	}
	return c, nil
}

// Load returns the defaults, overlaid with file (if not empty), then
// the environment. If envFile is not empty it is loaded into the
// environment first; variables already set win over the file.
func Load(file, envFile string) (*Config, error) {
	c := DefaultConfig()
	if len(file) != 0 {
		var err error
		if c, err = LoadFromFile(file); err != nil {
			return nil, err
		}
	}
	if len(envFile) != 0 {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("failed to load env file %s: %w", envFile, err)
		}
	}
	if err := c.LoadEnv(); err != nil {
		return nil, err
	}
	return c, nil
}

// LoadEnv overrides fields from TRYDEPLOY_* environment variables.
func (c *Config) LoadEnv() error {
	if err := envdecode.Decode(c); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return fmt.Errorf("failed to read environment: %w", err)
	}
	return nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if len(c.Host) == 0 {
		return fmt.Errorf("%w: host is required", ErrInvalid)
	}
	if len(c.AppUser) == 0 {
		return fmt.Errorf("%w: app_user is required", ErrInvalid)
	}
	if len(c.Shell) == 0 {
		return fmt.Errorf("%w: shell is required", ErrInvalid)
	}
	if c.RestartDelay < 0 {
		return fmt.Errorf("%w: restart_delay %v is negative", ErrInvalid, c.RestartDelay)
	}
	for _, p := range []struct {
		name string
		val  string
	}{
		{"paths.directory", c.Paths.Directory},
		{"paths.virtualenv", c.Paths.Virtualenv},
		{"paths.modules", c.Paths.Modules},
		{"paths.develop", c.Paths.Develop},
		{"paths.pid_file", c.PIDFile()},
		{"paths.dtach_socket", c.Paths.DtachSocket},
	} {
		if !path.IsAbs(p.val) {
			return fmt.Errorf("%w: %s %q is not an absolute path", ErrInvalid, p.name, p.val)
		}
	}
	return nil
}

// LoginUser returns the user the connection logs in as: the user
// named in Host, else the User from .ssh/config, else $USER.
func (c *Config) LoginUser() string {
	u, h, _ := client.ParseHost(c.Host)
	return client.GetUser(h, u)
}

// PIDFile returns where the running server records its pid.
func (c *Config) PIDFile() string {
	if len(c.Paths.PIDFile) != 0 {
		return c.Paths.PIDFile
	}
	return path.Join(c.Paths.Directory, "pid")
}

// Activate returns the prefix that activates the virtualenv.
func (c *Config) Activate() string {
	return "source " + path.Join(c.Paths.Virtualenv, "bin/activate")
}

// Local resolves a local file name against Files.LocalDir.
func (c *Config) Local(name string) string {
	if filepath.IsAbs(name) || len(c.Files.LocalDir) == 0 {
		return name
	}
	return filepath.Join(c.Files.LocalDir, name)
}
