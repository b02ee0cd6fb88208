/*
 * Copyright 2025 SREDiag Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package lifecycle owns the startup and teardown of the named resources for each
// participant role.
package lifecycle

import (
	"fmt"
	"strings"
)

// Role fixes what a participant does with the named resources.
type Role int

const (
	// RoleInitiator creates and initializes the resources and marks the run finished.
	RoleInitiator Role = iota + 1
	// RoleJoiner attaches to existing resources and removes them on exit.
	RoleJoiner
)

// String returns the role name.
func (r Role) String() string {
	switch r {
	case RoleInitiator:
		return "initiator"
	case RoleJoiner:
		return "joiner"
	default:
		return "unknown"
	}
}

// Number is the process number printed in progress lines.
func (r Role) Number() int {
	return int(r)
}

// CreatesResources reports whether the role creates the named objects.
func (r Role) CreatesResources() bool {
	return r == RoleInitiator
}

// SetsFinished reports whether the role raises the finished flag on termination.
func (r Role) SetsFinished() bool {
	return r == RoleInitiator
}

// OwnsTeardown reports whether the role destroys the named objects on exit.
func (r Role) OwnsTeardown() bool {
	return r == RoleJoiner
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleInitiator || r == RoleJoiner
}

// ParseRole accepts a role name or its process number.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "initiator", "1":
		return RoleInitiator, nil
	case "joiner", "2":
		return RoleJoiner, nil
	}
	return 0, fmt.Errorf("unknown role %q", s)
}
