// Copyright 2024 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package client

import (
	"io"
	"sync"
)

// stdin reads a local input for the life of the Client and hands what
// it reads to whichever command is running. Input that arrives between
// commands waits for the next one.
type stdin struct {
	r  io.Reader
	ch chan []byte

	// pending is a chunk taken from ch that no command consumed.
	// Only the attached copier touches it.
	pending []byte
}

func newStdin(r io.Reader) *stdin {
	in := &stdin{r: r, ch: make(chan []byte)}
	go in.read()
	return in
}

func (in *stdin) read() {
	defer close(in.ch)
	for {
		b := make([]byte, 4096)
		n, err := in.r.Read(b)
		if n > 0 {
			in.ch <- b[:n]
		}
		if err != nil {
			V("client: stdin: %v", err)
			return
		}
	}
}

// next returns the next chunk, or false once the input is done
// or stop is closed.
func (in *stdin) next(stop <-chan struct{}) ([]byte, bool) {
	if b := in.pending; b != nil {
		in.pending = nil
		return b, true
	}
	select {
	case <-stop:
		return nil, false
	case b, ok := <-in.ch:
		return b, ok
	}
}

// attach copies input to w until the input ends, which closes w,
// or until stop is closed. The returned function closes stop and
// waits for the copy to finish.
func (in *stdin) attach(w io.WriteCloser) (detach func()) {
	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			b, ok := in.next(stop)
			if !ok {
				select {
				case <-stop:
				default:
					w.Close()
				}
				return
			}
			select {
			case <-stop:
				in.pending = b
				return
			default:
			}
			if _, err := w.Write(b); err != nil {
				in.pending = b
				return
			}
		}
	}()
	return func() {
		close(stop)
		wg.Wait()
	}
}
