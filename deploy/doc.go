// Copyright 2024 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package deploy provisions a trytond host and manages the server
// running on it.
//
// Each task is a method on Deployer. Primitive tasks issue remote
// commands and uploads through a Remote; composite tasks such as
// Deploy and Restart run primitive tasks in a fixed order and stop at
// the first failure. Tasks lists them all by name for command line use.
//
// Tasks are not idempotent. Running Deploy twice fails when the
// application user already exists.
package deploy
