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

package coordinator

// State is the position of a participant in its increment loop.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateLocked
	StateCoinFlipping
	StateWrote
	StateSkipped
	StateUnlocked
	StateTerminated
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateLocked:
		return "locked"
	case StateCoinFlipping:
		return "coin-flipping"
	case StateWrote:
		return "wrote"
	case StateSkipped:
		return "skipped"
	case StateUnlocked:
		return "unlocked"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// HoldsLock reports whether a participant in this state is inside its critical section.
func (s State) HoldsLock() bool {
	switch s {
	case StateLocked, StateCoinFlipping, StateWrote, StateSkipped:
		return true
	}
	return false
}
