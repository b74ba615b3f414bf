// Copyright 2024 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package remote

import (
	"context"

	"github.com/sirupsen/logrus"
)

// DryRun logs what a Host would do and does nothing.
// Every path is reported as missing.
type DryRun struct {
	shell string
	log   logrus.FieldLogger
}

// NewDryRun returns a DryRun that logs commands as they would be
// sent through shell.
func NewDryRun(shell string, log logrus.FieldLogger) *DryRun {
	return &DryRun{shell: shell, log: log.WithField("dry-run", true)}
}

// Run logs x.
func (d *DryRun) Run(ctx context.Context, x Exec) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.log.WithFields(fields(x)).Infof("run: %s", x.Command(d.shell))
	return nil
}

// Put logs the upload.
func (d *DryRun) Put(ctx context.Context, local, remoteDir string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.log.Infof("put: %s -> %s", local, remoteDir)
	return nil
}

// Exists logs the check and returns false.
func (d *DryRun) Exists(ctx context.Context, x Exec, p string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	d.log.Infof("exists: %s (assumed missing)", x.Do("test -e "+QuoteArg(p)).Command(d.shell))
	return false, nil
}
