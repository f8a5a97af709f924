// Copyright 2022 The Armored Witness OS authors. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package update

import "fmt"

// State identifies where a Transaction currently sits in the update
// state machine.
type State int

const (
	// StateIdle is the initial and terminal state: no transaction active.
	StateIdle State = iota
	// StateWriting is entered by Begin; Write calls are accepted.
	StateWriting
	// StateVerifying is entered by Finish while the appendix is checked.
	StateVerifying
	// StateCommitting is entered once verification has passed and the
	// Boot Selector is about to be invoked.
	StateCommitting
	// StateAborting is entered on Abort, or on any fatal error on the
	// writing/verifying/committing path.
	StateAborting
	// StateFaulted completes the set of named states. Engine never enters
	// it: every failure path goes through StateAborting to StateIdle.
	StateFaulted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateWriting:
		return "Writing"
	case StateVerifying:
		return "Verifying"
	case StateCommitting:
		return "Committing"
	case StateAborting:
		return "Aborting"
	case StateFaulted:
		return "Faulted"
	default:
		panic(fmt.Errorf("unknown State %d", s))
	}
}

// transaction represents an in-flight update. It is owned exclusively by
// the Engine that created it: only the thread holding the Engine's Lock
// may observe or mutate it, so it carries no locking of its own.
type transaction struct {
	slot         Slot
	handle       Handle
	bytesWritten int64
	state        State
}
