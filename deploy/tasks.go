// Copyright 2024 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package deploy

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/u-root/trydeploy/remote"
)

// steps runs fs in order, stopping at the first error.
func steps(ctx context.Context, fs ...func(context.Context) error) error {
	for _, f := range fs {
		if err := f(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Deploy provisions a fresh host and starts trytond on it.
// It is not idempotent: on a provisioned host it fails at
// create_tryton_user.
func (d *Deployer) Deploy(ctx context.Context) error {
	return d.task(ctx, "deploy", func(ctx context.Context) error {
		return steps(ctx,
			d.InstallSystemDependences,
			d.CreateTrytonUser,
			d.CreateAppDirs,
			d.CreateVirtualenv,
			d.InstallPythonDependences,
			d.StartPostgres,
			d.CreatePostgresUser,
			d.InstallTrytonModules,
			d.InstallDevelopModules,
			d.Bootstrap,
			d.StartTryton,
		)
	})
}

// Update refreshes system and python packages and re-runs the bootstrap.
func (d *Deployer) Update(ctx context.Context) error {
	return d.task(ctx, "update", func(ctx context.Context) error {
		return steps(ctx,
			d.InstallSystemDependences,
			d.InstallPythonDependences,
			d.InstallTrytonModules,
			d.InstallDevelopModules,
			d.Bootstrap,
		)
	})
}

// Start starts the database and an installed trytond.
func (d *Deployer) Start(ctx context.Context) error {
	return d.task(ctx, "start", func(ctx context.Context) error {
		return steps(ctx, d.StartPostgres, d.StartTryton)
	})
}

// Stop stops trytond.
func (d *Deployer) Stop(ctx context.Context) error {
	return d.task(ctx, "stop", d.StopTryton)
}

// Restart stops trytond, gives it the restart delay to let go of its
// resources, and starts it again. It does not wait for the process to exit.
func (d *Deployer) Restart(ctx context.Context) error {
	return d.task(ctx, "restart", func(ctx context.Context) error {
		return steps(ctx,
			d.Stop,
			func(ctx context.Context) error { return d.sleep(ctx, d.cfg.RestartDelay) },
			d.Start,
		)
	})
}

// DropAll drops every database in the instance.
func (d *Deployer) DropAll(ctx context.Context) error {
	return d.task(ctx, "drop_all", func(ctx context.Context) error {
		return d.script(ctx, d.cfg.Files.DropAll)
	})
}

// UpdateAllModules updates the modules of every database in the instance.
func (d *Deployer) UpdateAllModules(ctx context.Context) error {
	return d.task(ctx, "update_all_modules", func(ctx context.Context) error {
		return d.script(ctx, d.cfg.Files.Updater)
	})
}

// script runs a maintenance script with the server stopped.
func (d *Deployer) script(ctx context.Context, name string) error {
	return steps(ctx,
		d.Stop,
		func(ctx context.Context) error { return d.putAll(ctx, name, d.cfg.Files.ServerConfig) },
		func(ctx context.Context) error {
			return d.run(ctx, d.asLogin().Do("python "+remote.QuoteArg(filepath.Base(name))))
		},
		d.Start,
	)
}

// Task is a named entry point of the Deployer.
type Task struct {
	Name string
	Doc  string
	// Arg names the task's one optional argument, if it takes one.
	Arg string
	Run func(ctx context.Context, d *Deployer, args []string) error
}

func noArgs(f func(*Deployer, context.Context) error) func(context.Context, *Deployer, []string) error {
	return func(ctx context.Context, d *Deployer, _ []string) error {
		return f(d, ctx)
	}
}

var tasks = []Task{
	{Name: "deploy", Doc: "Run a complete deploy on a target server", Run: noArgs((*Deployer).Deploy)},
	{Name: "update", Doc: "Update system and python packages", Run: noArgs((*Deployer).Update)},
	{Name: "start", Doc: "Start an installed instance of trytond", Run: noArgs((*Deployer).Start)},
	{Name: "stop", Doc: "Stop execution", Run: noArgs((*Deployer).Stop)},
	{Name: "restart", Doc: "Restart the instance", Run: noArgs((*Deployer).Restart)},
	{Name: "drop_all", Doc: "Drop all databases in the instance", Run: noArgs((*Deployer).DropAll)},
	{Name: "update_all_modules", Doc: "Update all databases in the instance", Run: noArgs((*Deployer).UpdateAllModules)},
	{Name: "install_system_dependences", Doc: "Install apt-get based dependences", Run: noArgs((*Deployer).InstallSystemDependences)},
	{Name: "install_python_dependences", Doc: "Install all python dependences using pip", Run: noArgs((*Deployer).InstallPythonDependences)},
	{Name: "install_tryton_modules", Doc: "Install tryton modules using pip", Run: noArgs((*Deployer).InstallTrytonModules)},
	{Name: "install_develop_modules", Doc: "Install git and hg modules in trytond", Run: noArgs((*Deployer).InstallDevelopModules)},
	{Name: "bootstrap", Doc: "Create a new tryton db and activate all installed modules", Run: noArgs((*Deployer).Bootstrap)},
	{
		Name: "copy_module",
		Doc:  "Copy a module inside the trytond modules dir",
		Arg:  "module-path",
		Run: func(ctx context.Context, d *Deployer, args []string) error {
			var p string
			if len(args) != 0 {
				p = args[0]
			}
			return d.CopyModule(ctx, p)
		},
	},
	{Name: "create_tryton_user", Doc: "Create the application user", Run: noArgs((*Deployer).CreateTrytonUser)},
	{Name: "create_app_dirs", Doc: "Create the application directories", Run: noArgs((*Deployer).CreateAppDirs)},
	{Name: "create_virtualenv", Doc: "Create the virtualenv", Run: noArgs((*Deployer).CreateVirtualenv)},
	{Name: "start_postgres", Doc: "Start the database", Run: noArgs((*Deployer).StartPostgres)},
	{Name: "create_postgres_user", Doc: "Create the tryton user in the database", Run: noArgs((*Deployer).CreatePostgresUser)},
	{Name: "start_tryton", Doc: "Start the tryton server detached", Run: noArgs((*Deployer).StartTryton)},
	{Name: "stop_tryton", Doc: "Stop the tryton server", Run: noArgs((*Deployer).StopTryton)},
	{Name: "disable_ipv6", Doc: "Disable IPv6 on the target host", Run: noArgs((*Deployer).DisableIPv6)},
}

// Tasks returns every task, composite tasks first.
func Tasks() []Task {
	return append([]Task(nil), tasks...)
}

// Lookup finds a task by name. Dashes may stand in for underscores.
func Lookup(name string) (Task, error) {
	n := strings.ReplaceAll(name, "-", "_")
	for _, t := range tasks {
		if t.Name == n {
			return t, nil
		}
	}
	return Task{}, fmt.Errorf("%w: %q", ErrUnknownTask, name)
}
