// Copyright 2019-2020 Intel Corporation. All Rights Reserved.
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

// Package cpuset rations a process-wide pool of physical CPU indices
// across concurrently executing judges. Callers block in Allocate
// until enough CPUs are free; Release coalesces returned ranges back
// into the free list and wakes every blocked allocation so each can
// re-test its own request.
package cpuset

import (
	"context"
	"sort"
	"strconv"
	"sync"

	"github.com/pkg/errors"
)

// Range is an inclusive range of physical CPU indices.
type Range struct {
	Lo, Hi int
}

func (r Range) size() int { return r.Hi - r.Lo + 1 }

// String renders the range the way cpuset.cpus expects: a bare number
// for a singleton, "lo-hi" otherwise.
func (r Range) String() string {
	if r.Lo == r.Hi {
		return strconv.Itoa(r.Lo)
	}
	return strconv.Itoa(r.Lo) + "-" + strconv.Itoa(r.Hi)
}

// ErrInvalidCpuset is returned by Release when a range falls outside
// [0, ncpu) or is inverted.
var ErrInvalidCpuset = errors.New("cpuset: invalid range")

// errCPUNotEnough drives parking inside Allocate; it never surfaces.
var errCPUNotEnough = errors.New("cpuset: not enough free cpus")

// Allocator rations physical CPU indices in [0, ncpu). The zero value
// is not usable; construct with New.
type Allocator struct {
	mu   sync.Mutex
	cond *sync.Cond

	ncpu  int
	free  []Range // sorted, disjoint
	avail int
}

// New creates an allocator that owns CPU indices [0, ncpu).
func New(ncpu int) *Allocator {
	if ncpu <= 0 {
		ncpu = 1
	}
	a := &Allocator{
		ncpu:  ncpu,
		free:  []Range{{Lo: 0, Hi: ncpu - 1}},
		avail: ncpu,
	}
	a.cond = sync.NewCond(&a.mu)
	return a
}

// NCPU returns the total number of CPUs this allocator manages.
func (a *Allocator) NCPU() int { return a.ncpu }

// Avail returns the number of currently free CPUs.
func (a *Allocator) Avail() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.avail
}

// Free returns a snapshot of the current free ranges, lowest first.
func (a *Allocator) Free() []Range {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Range, len(a.free))
	copy(out, a.free)
	return out
}

// Allocate blocks until n CPUs are available, then reserves them,
// always consuming the lowest-numbered free range first so the choice
// is deterministic. It returns early with ctx.Err() if ctx is
// cancelled before capacity frees up; the allocator's mutex is never
// held across this wait other than the brief re-test itself.
func (a *Allocator) Allocate(ctx context.Context, n int) ([]Range, error) {
	if n <= 0 {
		return nil, errors.Errorf("cpuset: invalid allocation size %d", n)
	}

	// cond.Wait cannot select on ctx.Done directly; a side-goroutine
	// turns cancellation into a Broadcast so the waiting loop below
	// notices it on its next wakeup.
	if ctx.Done() != nil {
		stop := make(chan struct{})
		defer close(stop)
		go func() {
			select {
			case <-ctx.Done():
				a.mu.Lock()
				a.cond.Broadcast()
				a.mu.Unlock()
			case <-stop:
			}
		}()
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	for {
		ranges, err := a.allocateLocked(n)
		if err == nil {
			return ranges, nil
		}
		if err != errCPUNotEnough {
			return nil, err
		}
		if cerr := ctx.Err(); cerr != nil {
			return nil, cerr
		}
		a.cond.Wait()
		if cerr := ctx.Err(); cerr != nil {
			return nil, cerr
		}
	}
}

// allocateLocked must be called with a.mu held.
func (a *Allocator) allocateLocked(n int) ([]Range, error) {
	if a.avail < n {
		return nil, errCPUNotEnough
	}

	var taken, kept []Range
	remaining := n

	for _, r := range a.free {
		if remaining == 0 {
			kept = append(kept, r)
			continue
		}
		if size := r.size(); size <= remaining {
			taken = append(taken, r)
			remaining -= size
			continue
		}
		taken = append(taken, Range{Lo: r.Lo, Hi: r.Lo + remaining - 1})
		kept = append(kept, Range{Lo: r.Lo + remaining, Hi: r.Hi})
		remaining = 0
	}

	a.free = kept
	a.avail -= n
	return taken, nil
}

// Release returns previously allocated ranges to the free pool,
// merging with adjacent free ranges, then wakes every parked
// allocation so each can re-test whether it now has enough capacity.
func (a *Allocator) Release(ranges []Range) error {
	for _, r := range ranges {
		if r.Lo > r.Hi || r.Hi >= a.ncpu || r.Lo < 0 {
			return errors.Wrapf(ErrInvalidCpuset, "range [%d,%d]", r.Lo, r.Hi)
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	for _, r := range ranges {
		a.unionLocked(r)
	}
	a.cond.Broadcast()
	return nil
}

// unionLocked merges r into the free list, coalescing with the
// immediate predecessor and successor ranges when adjacent. Must be
// called with a.mu held.
func (a *Allocator) unionLocked(r Range) {
	merged := append(append([]Range{}, a.free...), r)
	sort.Slice(merged, func(i, j int) bool { return merged[i].Lo < merged[j].Lo })

	out := merged[:0]
	for _, cur := range merged {
		if len(out) > 0 {
			last := &out[len(out)-1]
			if last.Hi+1 >= cur.Lo {
				if cur.Hi > last.Hi {
					last.Hi = cur.Hi
				}
				continue
			}
		}
		out = append(out, cur)
	}

	a.free = out
	a.avail += r.size()
}
