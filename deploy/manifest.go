// Copyright 2024 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package deploy

import (
	"bufio"
	"io"
	"strings"

	shlex "github.com/anmitsu/go-shlex"
)

// VCS is a version control tool a develop manifest line can use.
type VCS string

const (
	Git       VCS = "git"
	Mercurial VCS = "hg"
)

// Pull returns the command that updates an existing checkout.
func (v VCS) Pull() string {
	switch v {
	case Git:
		return "git pull"
	case Mercurial:
		return "hg pull -u"
	}
	return ""
}

// Ref is one line of a develop manifest.
type Ref struct {
	// Line is the command that makes a fresh checkout,
	// e.g. "hg clone https://hg.tryton.org/modules/sale".
	Line string
	VCS  VCS
	// Dir is the name of the checkout directory.
	Dir string
}

// ParseRef classifies a manifest line by its first characters.
// It returns false for lines that are neither git nor hg, and for
// lines no checkout directory can be derived from.
func ParseRef(line string) (Ref, bool) {
	line = strings.TrimRight(line, "\r\n")
	var v VCS
	switch {
	case strings.HasPrefix(line, string(Git)):
		v = Git
	case strings.HasPrefix(line, string(Mercurial)):
		v = Mercurial
	default:
		return Ref{}, false
	}
	dir := checkoutDir(line)
	if len(dir) == 0 {
		return Ref{}, false
	}
	return Ref{Line: line, VCS: v, Dir: dir}, true
}

// checkoutDir is the last path element of the last word of line, up to
// its first dot: .../trytond_sale.git names trytond_sale.
func checkoutDir(line string) string {
	last := line
	if words, err := shlex.Split(line, true); err == nil && len(words) != 0 {
		last = words[len(words)-1]
	}
	last = strings.TrimRight(last, "/")
	if i := strings.LastIndex(last, "/"); i >= 0 {
		last = last[i+1:]
	}
	name, _, _ := strings.Cut(last, ".")
	return name
}

// ReadManifest returns the recognized lines of a develop manifest, in
// order, and the lines that were skipped.
func ReadManifest(r io.Reader) (refs []Ref, skipped []string, err error) {
	s := bufio.NewScanner(r)
	for s.Scan() {
		ref, ok := ParseRef(s.Text())
		if !ok {
			skipped = append(skipped, s.Text())
			continue
		}
		refs = append(refs, ref)
	}
	return refs, skipped, s.Err()
}
