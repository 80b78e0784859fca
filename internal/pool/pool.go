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

package pool

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"
)

// Result is one item delivered out of the pool: a filename and its bytes.
type Result struct {
	Filename string
	Data     []byte
}

// DoOneFunc fetches and processes a single item, returning the result to
// deliver. A returned error counts against the pool's shared error budget.
type DoOneFunc func(ctx context.Context, item int) (Result, error)

// DefaultMaxErrors is the shared error-budget ceiling used when a Pool's
// MaxErrors is left at zero.
const DefaultMaxErrors = 20

// Pool is a fixed-concurrency worker pool over a static list of items,
// distributed round-robin into per-worker buckets at construction.
type Pool struct {
	// Concurrency is the number of workers; each drains one bucket of
	// items sequentially. Defaults to 10 if zero.
	Concurrency int
	// MaxErrors is the shared error budget across all workers. Defaults
	// to DefaultMaxErrors if zero.
	MaxErrors int
	// DoOne does the work for a single item.
	DoOne DoOneFunc
}

// Handle is returned by Run: Results yields delivered items in arrival
// order, and Wait blocks until all workers have finished and reports the
// pool's final status.
type Handle struct {
	out     chan Result
	doneErr chan error
}

// Results returns the channel of delivered results. It closes once all
// workers have finished; callers should range over it and then call Wait.
func (h *Handle) Results() <-chan Result { return h.out }

// Wait blocks until the pool has finished and returns its terminal error:
// nil on a clean finish, ErrCancelled on a caller-requested cancellation
// while the error budget was not exhausted, *TooManyFailuresError if the error budget was
// exhausted, or *IncompleteError if workers exited early for any other
// reason.
func (h *Handle) Wait() error { return <-h.doneErr }

// distribute splits items round-robin into n buckets, preserving each
// worker's assigned order.
func distribute(items []int, n int) [][]int {
	buckets := make([][]int, n)
	for i, item := range items {
		b := i % n
		buckets[b] = append(buckets[b], item)
	}
	return buckets
}

// Run starts the pool's workers over items and returns a Handle streaming
// their results. Cancelling ctx, or the error budget being exhausted,
// causes all workers to wind down at the next item boundary; in-flight
// DoOne calls are allowed to complete and their results are dropped.
func (p *Pool) Run(ctx context.Context, items []int) *Handle {
	concurrency := p.Concurrency
	if concurrency <= 0 {
		concurrency = 10
	}
	maxErrors := p.MaxErrors
	if maxErrors <= 0 {
		maxErrors = DefaultMaxErrors
	}

	buckets := distribute(items, concurrency)
	out := make(chan Result, concurrency)

	var errCount int32
	var cancelled int32
	var delivered int32
	expected := int32(len(items))

	eg, egCtx := errgroup.WithContext(ctx)
	for _, bucket := range buckets {
		bucket := bucket
		eg.Go(func() error {
			for _, item := range bucket {
				if atomic.LoadInt32(&cancelled) != 0 || egCtx.Err() != nil {
					return nil
				}

				res, err := p.DoOne(egCtx, item)
				if err != nil {
					klog.Warningf("pool: item %d failed: %v", item, err)
					n := atomic.AddInt32(&errCount, 1)
					if int(n) >= maxErrors {
						klog.Errorf("pool: error budget of %d exhausted, cancelling", maxErrors)
						atomic.StoreInt32(&cancelled, 1)
					}
					continue
				}
				if atomic.LoadInt32(&cancelled) != 0 || egCtx.Err() != nil {
					return nil
				}

				select {
				case out <- res:
					atomic.AddInt32(&delivered, 1)
				case <-egCtx.Done():
					return nil
				}
			}
			return nil
		})
	}

	doneErr := make(chan error, 1)
	go func() {
		_ = eg.Wait()
		close(out)

		got := atomic.LoadInt32(&delivered)
		switch {
		case atomic.LoadInt32(&errCount) >= int32(maxErrors):
			doneErr <- &TooManyFailuresError{Count: int(errCount)}
		case ctx.Err() != nil:
			doneErr <- ErrCancelled
		case got < expected:
			doneErr <- &IncompleteError{Got: int(got), Want: int(expected)}
		default:
			doneErr <- nil
		}
	}()

	return &Handle{out: out, doneErr: doneErr}
}
