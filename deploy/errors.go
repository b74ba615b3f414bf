// Copyright 2024 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package deploy

import "errors"

var (
	// ErrModulePathRequired is returned by CopyModule when no module path is given.
	ErrModulePathRequired = errors.New("you have to give a module path to upload")
	// ErrLocalFileMissing is returned when a file to upload does not exist.
	ErrLocalFileMissing = errors.New("local file does not exist")
	// ErrUnknownTask is returned by Lookup.
	ErrUnknownTask = errors.New("unknown task")
)
