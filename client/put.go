// Copyright 2024 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package client

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/pkg/sftp"
)

// sftpClient returns the sftp client, starting the subsystem on first use.
func (c *Client) sftpClient() (*sftp.Client, error) {
	if c.sftp != nil {
		return c.sftp, nil
	}
	if c.client == nil {
		return nil, ErrNotConnected
	}
	sc, err := sftp.NewClient(c.client)
	if err != nil {
		return nil, fmt.Errorf("starting sftp: %w", err)
	}
	c.sftp = sc
	c.closers = append(c.closers, sc.Close)
	return sc, nil
}

// Put copies local, a file or a directory, into remoteDir.
// The copy is named after the last element of local, so
// Put(ctx, "a/b.conf", "/srv") writes /srv/b.conf and
// Put(ctx, "mod", "/srv") writes the tree /srv/mod.
// Permission bits are preserved.
func (c *Client) Put(ctx context.Context, local, remoteDir string) error {
	sc, err := c.sftpClient()
	if err != nil {
		return err
	}
	fi, err := os.Stat(local)
	if err != nil {
		return err
	}
	target := path.Join(remoteDir, filepath.Base(filepath.Clean(local)))
	V("client: put %q -> %q", local, target)
	if !fi.IsDir() {
		return putFile(sc, local, target, fi.Mode())
	}
	return filepath.WalkDir(local, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(local, p)
		if err != nil {
			return err
		}
		dst := path.Join(target, filepath.ToSlash(rel))
		info, err := d.Info()
		if err != nil {
			return err
		}
		switch {
		case d.IsDir():
			if err := sc.MkdirAll(dst); err != nil {
				return fmt.Errorf("mkdir %q: %w", dst, err)
			}
			return sc.Chmod(dst, info.Mode().Perm())
		case info.Mode().IsRegular():
			return putFile(sc, p, dst, info.Mode())
		default:
			V("client: put skips %q (%v)", p, info.Mode().Type())
			return nil
		}
	})
}

func putFile(sc *sftp.Client, local, remote string, mode fs.FileMode) error {
	src, err := os.Open(local)
	if err != nil {
		return err
	}
	defer src.Close()
	dst, err := sc.Create(remote)
	if err != nil {
		return fmt.Errorf("create %q: %w", remote, err)
	}
	if _, err := dst.ReadFrom(src); err != nil {
		dst.Close()
		return fmt.Errorf("write %q: %w", remote, err)
	}
	if err := dst.Close(); err != nil {
		return fmt.Errorf("close %q: %w", remote, err)
	}
	return sc.Chmod(remote, mode.Perm())
}
