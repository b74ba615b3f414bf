// Copyright 2024 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package deploy

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/u-root/trydeploy/remote"
)

var ipv6Params = []string{
	"net.ipv6.conf.all.disable_ipv6 = 1",
	"net.ipv6.conf.default.disable_ipv6 = 1",
	"net.ipv6.conf.lo.disable_ipv6 = 1",
}

// InstallSystemDependences refreshes the package index and installs
// the system dependencies in one apt-get run.
func (d *Deployer) InstallSystemDependences(ctx context.Context) error {
	return d.task(ctx, "install_system_dependences", func(ctx context.Context) error {
		pkgs := make([]string, len(d.cfg.SystemDependencies))
		for i, p := range d.cfg.SystemDependencies {
			pkgs[i] = remote.QuoteArg(p)
		}
		return d.run(ctx,
			remote.Exec{Cmd: "apt-get -q update"},
			remote.Exec{Cmd: "apt-get -q -y install " + strings.Join(pkgs, " ")},
		)
	})
}

// InstallPythonDependences pip installs the requirements file into the virtualenv.
func (d *Deployer) InstallPythonDependences(ctx context.Context) error {
	return d.task(ctx, "install_python_dependences", func(ctx context.Context) error {
		return d.pipInstall(ctx, d.cfg.Files.Requirements)
	})
}

// InstallTrytonModules pip installs the modules file into the virtualenv.
func (d *Deployer) InstallTrytonModules(ctx context.Context) error {
	return d.task(ctx, "install_tryton_modules", func(ctx context.Context) error {
		return d.pipInstall(ctx, d.cfg.Files.Modules)
	})
}

func (d *Deployer) pipInstall(ctx context.Context, manifest string) error {
	dir := d.cfg.Paths.Directory
	if err := d.put(ctx, d.cfg.Local(manifest), dir); err != nil {
		return err
	}
	cmd := fmt.Sprintf("pip install -r %s --log=%s",
		remote.QuoteArg(filepath.Base(manifest)), remote.QuoteArg(path.Join(dir, "pip.log")))
	return d.run(ctx, d.venv().Do(cmd))
}

// CreateTrytonUser adds the application's system account.
// It fails if the account exists.
func (d *Deployer) CreateTrytonUser(ctx context.Context) error {
	return d.task(ctx, "create_tryton_user", func(ctx context.Context) error {
		return d.run(ctx, remote.Exec{Cmd: "adduser " + remote.QuoteArg(d.cfg.AppUser), Interactive: true})
	})
}

// CreateAppDirs makes the runtime, virtualenv and develop directories
// as the application user.
func (d *Deployer) CreateAppDirs(ctx context.Context) error {
	return d.task(ctx, "create_app_dirs", func(ctx context.Context) error {
		var xs []remote.Exec
		for _, dir := range []string{d.cfg.Paths.Directory, d.cfg.Paths.Virtualenv, d.cfg.Paths.Develop} {
			xs = append(xs, remote.Exec{User: d.cfg.AppUser, Cmd: "mkdir -p " + remote.QuoteArg(dir)})
		}
		return d.run(ctx, xs...)
	})
}

// CreateVirtualenv creates the virtualenv as the application user.
func (d *Deployer) CreateVirtualenv(ctx context.Context) error {
	return d.task(ctx, "create_virtualenv", func(ctx context.Context) error {
		return d.run(ctx, remote.Exec{
			User: d.cfg.AppUser,
			Dir:  d.cfg.Paths.Directory,
			Cmd:  "virtualenv " + remote.QuoteArg(d.cfg.Paths.Virtualenv),
		})
	})
}

// Bootstrap uploads the bootstrap script and the server config and runs
// the script in the virtualenv. The script creates a database and
// activates the installed modules.
func (d *Deployer) Bootstrap(ctx context.Context) error {
	return d.task(ctx, "bootstrap", func(ctx context.Context) error {
		f := d.cfg.Files
		if err := d.putAll(ctx, f.Bootstrap, f.ServerConfig); err != nil {
			return err
		}
		return d.run(ctx, d.venv().Do("python "+remote.QuoteArg(filepath.Base(f.Bootstrap))))
	})
}

// InstallDevelopModules checks out, or updates, each module listed in
// the develop manifest and installs it into the virtualenv.
// Without a local manifest it does nothing.
func (d *Deployer) InstallDevelopModules(ctx context.Context) error {
	return d.task(ctx, "install_develop_modules", func(ctx context.Context) error {
		local := d.cfg.Local(d.cfg.Files.Develop)
		f, err := os.Open(local)
		if errors.Is(err, fs.ErrNotExist) {
			d.log.Infof("no develop manifest %s, skipping", local)
			return nil
		}
		if err != nil {
			return err
		}
		defer f.Close()
		refs, skipped, err := ReadManifest(f)
		if err != nil {
			return fmt.Errorf("reading %s: %w", local, err)
		}
		for _, s := range skipped {
			d.log.Debugf("develop manifest: skipping %q", s)
		}

		if err := d.r.Put(ctx, local, d.cfg.Paths.Directory); err != nil {
			return err
		}
		develop := d.venv().In(d.cfg.Paths.Develop)
		for _, ref := range refs {
			checkout := develop.In(path.Join(d.cfg.Paths.Develop, ref.Dir))
			ok, err := d.r.Exists(ctx, develop, ref.Dir)
			if err != nil {
				return err
			}
			get := develop.Do(ref.Line)
			if ok {
				get = checkout.Do(ref.VCS.Pull())
			}
			if err := d.run(ctx, get, checkout.Do("python setup.py install")); err != nil {
				return err
			}
		}
		return nil
	})
}

// CopyModule uploads a local module directory into the trytond modules
// directory and hands it to the application user.
func (d *Deployer) CopyModule(ctx context.Context, modulePath string) error {
	return d.task(ctx, "copy_module", func(ctx context.Context) error {
		if len(modulePath) == 0 {
			return ErrModulePathRequired
		}
		modulePath = strings.TrimRight(modulePath, "/"+string(filepath.Separator))
		if len(modulePath) == 0 {
			return fmt.Errorf("%w: %q is not a module directory", ErrModulePathRequired, "/")
		}
		modules := d.cfg.Paths.Modules
		if err := d.put(ctx, modulePath, modules); err != nil {
			return err
		}
		app := d.cfg.AppUser
		return d.run(ctx, remote.Exec{
			Sudo: true,
			Dir:  modules,
			Cmd:  fmt.Sprintf("chown -R %s:%s %s", app, app, remote.QuoteArg(filepath.Base(modulePath))),
		})
	})
}

// StartPostgres starts the database service.
func (d *Deployer) StartPostgres(ctx context.Context) error {
	return d.task(ctx, "start_postgres", func(ctx context.Context) error {
		return d.run(ctx, remote.Exec{Cmd: "/etc/init.d/postgresql start"})
	})
}

// CreatePostgresUser creates the application's database role as the
// database superuser. createuser asks for the role's password.
func (d *Deployer) CreatePostgresUser(ctx context.Context) error {
	return d.task(ctx, "create_postgres_user", func(ctx context.Context) error {
		return d.run(ctx, remote.Exec{
			User:        d.cfg.DBSuperuser,
			Cmd:         "createuser --createdb --no-superuser -P " + remote.QuoteArg(d.cfg.AppUser),
			Interactive: true,
		})
	})
}

// StartTryton uploads the launcher, the server config and the start
// script, then starts trytond detached under dtach. Nothing checks for
// a server that is already running.
func (d *Deployer) StartTryton(ctx context.Context) error {
	return d.task(ctx, "start_tryton", func(ctx context.Context) error {
		f := d.cfg.Files
		if err := d.putAll(ctx, f.Launcher, f.ServerConfig, f.StartScript); err != nil {
			return err
		}
		cmd := fmt.Sprintf("dtach -n %s python %s",
			remote.QuoteArg(d.cfg.Paths.DtachSocket), remote.QuoteArg(filepath.Base(f.Launcher)))
		return d.run(ctx, d.asLogin().Do(cmd))
	})
}

// StopTryton signals the pid recorded by the running server.
func (d *Deployer) StopTryton(ctx context.Context) error {
	return d.task(ctx, "stop_tryton", func(ctx context.Context) error {
		return d.run(ctx, remote.Exec{Cmd: "kill $(cat " + remote.QuoteArg(d.cfg.PIDFile()) + ")"})
	})
}

// DisableIPv6 turns IPv6 off in /etc/sysctl.conf and reloads it.
func (d *Deployer) DisableIPv6(ctx context.Context) error {
	return d.task(ctx, "disable_ipv6", func(ctx context.Context) error {
		var xs []remote.Exec
		for _, p := range ipv6Params {
			xs = append(xs, remote.Exec{Cmd: "echo " + remote.QuoteArg(p) + " >> /etc/sysctl.conf"})
		}
		return d.run(ctx, append(xs, remote.Exec{Cmd: "sysctl -p"})...)
	})
}

// putAll uploads local files, named relative to the local directory,
// into the runtime directory.
func (d *Deployer) putAll(ctx context.Context, names ...string) error {
	for _, n := range names {
		if err := d.put(ctx, d.cfg.Local(n), d.cfg.Paths.Directory); err != nil {
			return err
		}
	}
	return nil
}
