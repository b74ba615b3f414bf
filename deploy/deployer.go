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
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/u-root/trydeploy/config"
	"github.com/u-root/trydeploy/remote"
)

// Remote is the target as the Deployer sees it.
// *remote.Host and *remote.DryRun implement it.
type Remote interface {
	// Run runs one command and waits for it.
	Run(ctx context.Context, x remote.Exec) error
	// Put uploads a local file or directory into remoteDir.
	Put(ctx context.Context, local, remoteDir string) error
	// Exists reports whether p exists, as seen from x's user and directory.
	Exists(ctx context.Context, x remote.Exec, p string) (bool, error)
}

// Deployer runs tasks against one target. Steps run one at a time,
// and the first failure ends the task.
type Deployer struct {
	cfg     *config.Config
	r       Remote
	log     logrus.FieldLogger
	runID   string
	observe func(task string)
	sleep   func(ctx context.Context, d time.Duration) error
	metrics *Metrics
}

// Option configures a Deployer.
type Option func(*Deployer)

// WithLogger sets the logger. The default is logrus.StandardLogger().
func WithLogger(l logrus.FieldLogger) Option {
	return func(d *Deployer) {
		d.log = l
	}
}

// WithObserver calls f with the name of every task as it starts,
// including the tasks a composite task runs.
func WithObserver(f func(task string)) Option {
	return func(d *Deployer) {
		d.observe = f
	}
}

// WithSleep replaces the function used to pause between stop and start.
func WithSleep(f func(ctx context.Context, d time.Duration) error) Option {
	return func(d *Deployer) {
		d.sleep = f
	}
}

// WithMetrics records task durations and outcomes in m.
func WithMetrics(m *Metrics) Option {
	return func(d *Deployer) {
		d.metrics = m
	}
}

// New returns a Deployer for cfg that acts through r.
// cfg must not be changed afterwards.
func New(cfg *config.Config, r Remote, opts ...Option) *Deployer {
	d := &Deployer{
		cfg:   cfg,
		r:     r,
		log:   logrus.StandardLogger(),
		runID: uuid.NewString(),
		sleep: sleep,
	}
	for _, o := range opts {
		o(d)
	}
	d.log = d.log.WithFields(logrus.Fields{"run": d.runID, "host": cfg.Host})
	return d
}

// RunID identifies this Deployer's run in logs.
func (d *Deployer) RunID() string {
	return d.runID
}

// task runs f as the task called name.
func (d *Deployer) task(ctx context.Context, name string, f func(context.Context) error) error {
	if d.observe != nil {
		d.observe(name)
	}
	log := d.log.WithField("task", name)
	log.Info("start")
	start := time.Now()
	err := f(ctx)
	d.metrics.observe(name, time.Since(start), err)
	if err != nil {
		log.WithError(err).Error("failed")
		return fmt.Errorf("%s: %w", name, err)
	}
	log.Infof("done in %v", time.Since(start).Round(time.Millisecond))
	return nil
}

// put uploads a local file into remoteDir. A missing local file is
// reported before anything is sent.
func (d *Deployer) put(ctx context.Context, local, remoteDir string) error {
	if _, err := os.Stat(local); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrLocalFileMissing, local)
		}
		return err
	}
	return d.r.Put(ctx, local, remoteDir)
}

// run runs each Exec in turn.
func (d *Deployer) run(ctx context.Context, xs ...remote.Exec) error {
	for _, x := range xs {
		if err := d.r.Run(ctx, x); err != nil {
			return err
		}
	}
	return nil
}

// venv is the context of commands run inside the virtualenv:
// as the application user, in the runtime directory.
func (d *Deployer) venv() remote.Exec {
	return remote.Exec{
		User:     d.cfg.AppUser,
		Dir:      d.cfg.Paths.Directory,
		Prefixes: []string{d.cfg.Activate()},
	}
}

// asLogin is the context of commands run through sudo as the login
// user, in the runtime directory.
func (d *Deployer) asLogin() remote.Exec {
	return remote.Exec{
		Sudo: true,
		User: d.cfg.LoginUser(),
		Dir:  d.cfg.Paths.Directory,
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
