// Copyright 2026 The ScaleCI Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package workerpool is the bounded concurrency primitive behind the
// Provisioner's bootstrap work (spec §5): a pool of fixed size `workers`
// servicing an effectively unbounded queue, since submission is gated by
// the per-cycle list of jobs rather than by the pool itself.
package workerpool

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Pool bounds concurrent execution of submitted tasks to a fixed size.
// The zero value is not usable; construct with New.
type Pool struct {
	sem chan struct{}
}

// New returns a Pool that runs at most size tasks concurrently.
func New(size int) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{sem: make(chan struct{}, size)}
}

// Submit returns at once; fn runs in a new goroutine as soon as a slot is
// free. If ctx is canceled before a slot frees up, fn never runs and the
// Task reports ctx.Err(). The returned Task's Done channel closes when
// fn returns.
func (p *Pool) Submit(ctx context.Context, fn func(ctx context.Context) error) *Task {
	done := make(chan error, 1)
	t := &Task{Done: done}

	go func() {
		defer close(done)
		select {
		case p.sem <- struct{}{}:
		case <-ctx.Done():
			done <- ctx.Err()
			return
		}
		defer func() { <-p.sem }()
		done <- fn(ctx)
	}()
	return t
}

// Task is a handle to one submitted unit of work.
type Task struct {
	Done <-chan error
}

// Await blocks until the task completes or ctx is canceled.
func (t *Task) Await(ctx context.Context) error {
	select {
	case err := <-t.Done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunAll runs every fn, at most size at a time, on its own errgroup (not
// on a Pool) and waits for all of them, returning the first error — used
// by callers that want a single fan-out/fan-in without separately
// awaiting each Task.
func RunAll(ctx context.Context, size int, fns []func(ctx context.Context) error) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(size)
	for _, fn := range fns {
		fn := fn
		g.Go(func() error { return fn(gctx) })
	}
	return g.Wait()
}
