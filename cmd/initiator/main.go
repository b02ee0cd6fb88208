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

// Initiator creates the shared counter and mutex, then counts with its peer.
// Start it before the joiner.
package main

import (
	"os"

	"github.com/srediag/shm-counter/internal/app"
	"github.com/srediag/shm-counter/pkg/lifecycle"
)

func main() {
	os.Exit(app.Main(lifecycle.RoleInitiator, os.Stdout))
}
