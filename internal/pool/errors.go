// Copyright 2024 The Tessera authors. All Rights Reserved.
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

// Package pool implements a fixed-size worker pool that fetches and
// delivers page results in arrival order under a shared error budget.
package pool

import (
	"errors"
	"fmt"
)

// ErrCancelled is returned when the cooperative cancel flag was observed
// by a caller awaiting completion; this is a clean shutdown, not a failure.
var ErrCancelled = errors.New("pool: cancelled")

// TooManyFailuresError reports that the shared error budget was exhausted.
type TooManyFailuresError struct {
	Count int
}

func (e *TooManyFailuresError) Error() string {
	return fmt.Sprintf("pool: too many failures (%d)", e.Count)
}

// IncompleteError reports that all workers exited before delivering the
// expected number of results, without the error budget being exhausted.
type IncompleteError struct {
	Got, Want int
}

func (e *IncompleteError) Error() string {
	return fmt.Sprintf("pool: incomplete: delivered %d of %d expected results", e.Got, e.Want)
}
