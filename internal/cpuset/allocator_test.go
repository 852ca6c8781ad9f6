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

package cpuset

import (
	"context"
	"testing"
	"time"
)

func TestAllocateDeterministicLowestFirst(t *testing.T) {
	tcs := []struct {
		description string
		ncpu        int
		n           int
		expected    []Range
	}{
		{
			description: "single range, partial take",
			ncpu:        8,
			n:           3,
			expected:    []Range{{0, 2}},
		},
		{
			description: "take everything",
			ncpu:        4,
			n:           4,
			expected:    []Range{{0, 3}},
		},
	}

	for _, tc := range tcs {
		t.Run(tc.description, func(t *testing.T) {
			a := New(tc.ncpu)
			got, err := a.Allocate(context.Background(), tc.n)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !equalRanges(got, tc.expected) {
				t.Errorf("expected %v, got %v", tc.expected, got)
			}
			if a.Avail() != tc.ncpu-tc.n {
				t.Errorf("expected %d free, got %d", tc.ncpu-tc.n, a.Avail())
			}
		})
	}
}

func TestReleaseCoalescesAndRestoresFreeCount(t *testing.T) {
	a := New(4)

	r1, err := a.Allocate(context.Background(), 2)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	r2, err := a.Allocate(context.Background(), 2)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if a.Avail() != 0 {
		t.Fatalf("expected 0 free, got %d", a.Avail())
	}

	if err := a.Release(r1); err != nil {
		t.Fatalf("release: %v", err)
	}
	if err := a.Release(r2); err != nil {
		t.Fatalf("release: %v", err)
	}

	if a.Avail() != 4 {
		t.Errorf("expected 4 free after full release, got %d", a.Avail())
	}
	free := a.Free()
	if !equalRanges(free, []Range{{0, 3}}) {
		t.Errorf("expected a single coalesced range (0,3), got %v", free)
	}
}

func TestReleaseInvalidRange(t *testing.T) {
	a := New(4)

	tcs := []struct {
		description string
		r           Range
	}{
		{"inverted", Range{3, 1}},
		{"out of bounds high", Range{0, 4}},
		{"negative low", Range{-1, 2}},
	}

	for _, tc := range tcs {
		t.Run(tc.description, func(t *testing.T) {
			if err := a.Release([]Range{tc.r}); err == nil {
				t.Errorf("expected ErrInvalidCpuset for %v, got nil", tc.r)
			}
		})
	}
}

// TestAllocatorStress reproduces the allocator-stress scenario: with
// ncpu=4 and three concurrent allocations of 2, 1 and 3, the first two
// succeed immediately, the third blocks until one releases, and
// releasing everything returns free_count=4 with a single range (0,3).
func TestAllocatorStress(t *testing.T) {
	a := New(4)

	first, err := a.Allocate(context.Background(), 2)
	if err != nil {
		t.Fatalf("first allocate: %v", err)
	}
	second, err := a.Allocate(context.Background(), 1)
	if err != nil {
		t.Fatalf("second allocate: %v", err)
	}
	if a.Avail() != 1 {
		t.Fatalf("expected 1 free after first two allocations, got %d", a.Avail())
	}

	thirdDone := make(chan []Range, 1)
	thirdErr := make(chan error, 1)
	go func() {
		ranges, err := a.Allocate(context.Background(), 3)
		thirdErr <- err
		thirdDone <- ranges
	}()

	select {
	case <-thirdDone:
		t.Fatal("third allocation should have blocked, it did not")
	case <-time.After(50 * time.Millisecond):
	}

	if err := a.Release(first); err != nil {
		t.Fatalf("release first: %v", err)
	}
	if err := a.Release(second); err != nil {
		t.Fatalf("release second: %v", err)
	}

	select {
	case third := <-thirdDone:
		if err := <-thirdErr; err != nil {
			t.Fatalf("third allocate: %v", err)
		}
		if err := a.Release(third); err != nil {
			t.Fatalf("release third: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("third allocation never unblocked")
	}

	if a.Avail() != 4 {
		t.Errorf("expected free_count=4, got %d", a.Avail())
	}
	free := a.Free()
	if !equalRanges(free, []Range{{0, 3}}) {
		t.Errorf("expected single range (0,3), got %v", free)
	}
}

func TestAllocateContextCancellation(t *testing.T) {
	a := New(2)
	if _, err := a.Allocate(context.Background(), 2); err != nil {
		t.Fatalf("allocate: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := a.Allocate(ctx, 1); err == nil {
		t.Error("expected context deadline error, got nil")
	}
}

func equalRanges(a, b []Range) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
