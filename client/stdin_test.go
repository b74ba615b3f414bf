// Copyright 2024 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package client

import (
	"bytes"
	"errors"
	"io"
	"testing"
	"time"
)

type failWriter struct {
	wrote chan struct{}
}

func (f *failWriter) Write(b []byte) (int, error) {
	close(f.wrote)
	return 0, io.ErrClosedPipe
}

func (f *failWriter) Close() error { return nil }

type bufCloser struct {
	bytes.Buffer
	closed chan struct{}
}

func (b *bufCloser) Close() error {
	close(b.closed)
	return nil
}

func TestStdinKeepsUnwritten(t *testing.T) {
	pr, pw := io.Pipe()
	in := newStdin(pr)

	fw := &failWriter{wrote: make(chan struct{})}
	detach := in.attach(fw)
	if _, err := pw.Write([]byte("password\n")); err != nil {
		t.Fatal(err)
	}
	select {
	case <-fw.wrote:
	case <-time.After(5 * time.Second):
		t.Fatal("first attach never wrote")
	}
	detach()

	b := &bufCloser{closed: make(chan struct{})}
	detach = in.attach(b)
	pw.CloseWithError(errors.New("done"))
	select {
	case <-b.closed:
	case <-time.After(5 * time.Second):
		t.Fatal("end of input did not close the writer")
	}
	detach()
	if b.String() != "password\n" {
		t.Errorf("second attach got %q, want %q", b.String(), "password\n")
	}
}

func TestStdinDetachIdle(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	in := newStdin(pr)

	b := &bufCloser{closed: make(chan struct{})}
	done := make(chan struct{})
	go func() {
		in.attach(b)()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("detach blocked while no input was pending")
	}
	select {
	case <-b.closed:
		t.Error("detach closed the writer")
	default:
	}
}
