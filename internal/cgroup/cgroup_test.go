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

package cgroup

import (
	"context"
	"testing"
	"time"

	"github.com/ana-oj/judged/internal/cpuset"
)

func withFakeCgroupRoot(t *testing.T) {
	t.Helper()
	prev := GetMountDir()
	SetMountDir(t.TempDir())
	t.Cleanup(func() { SetMountDir(prev) })
}

func TestBuilderCreatesDirsAndWritesCpuset(t *testing.T) {
	withFakeCgroupRoot(t)

	alloc := cpuset.New(4)
	c, err := NewBuilder(alloc).Name("case-1").CPU().CPUAcct().Memory().Cpuset(2).Build(context.Background())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer c.Close()

	cpus, err := c.CpusetCPUs()
	if err != nil {
		t.Fatalf("CpusetCPUs: %v", err)
	}
	if cpus != "0-1" {
		t.Fatalf("expected cpuset.cpus '0-1', got %q", cpus)
	}
	if alloc.Avail() != 2 {
		t.Fatalf("expected 2 CPUs still available, got %d", alloc.Avail())
	}
}

func TestCloseReleasesCpusetAllocation(t *testing.T) {
	withFakeCgroupRoot(t)

	alloc := cpuset.New(4)
	c, err := NewBuilder(alloc).CPU().Cpuset(4).Build(context.Background())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if alloc.Avail() != 0 {
		t.Fatalf("expected 0 available after full allocation, got %d", alloc.Avail())
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if alloc.Avail() != 4 {
		t.Fatalf("expected allocation released back to 4, got %d", alloc.Avail())
	}
}

func TestTypedAccessorsRoundTrip(t *testing.T) {
	withFakeCgroupRoot(t)

	c, err := NewBuilder(nil).Name("case-2").CPU().CPUAcct().Memory().Build(context.Background())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer c.Close()

	if err := c.SetCPUPeriod(100 * time.Millisecond); err != nil {
		t.Fatalf("SetCPUPeriod: %v", err)
	}
	if got, err := c.CPUPeriod(); err != nil || got != 100*time.Millisecond {
		t.Fatalf("CPUPeriod round-trip: got %v, err %v", got, err)
	}

	if err := c.SetMemoryLimit(256 << 20); err != nil {
		t.Fatalf("SetMemoryLimit: %v", err)
	}
	if got, err := c.MemoryLimit(); err != nil || got != 256<<20 {
		t.Fatalf("MemoryLimit round-trip: got %d, err %v", got, err)
	}

	if err := writeFile(controllerDir("cpuacct", c.Name()), cpuacctUsageFile, "1500000000"); err != nil {
		t.Fatalf("seed cpuacct.usage: %v", err)
	}
	if got, err := c.CPUAcctUsage(); err != nil || got != 1500*time.Millisecond {
		t.Fatalf("CPUAcctUsage: got %v, err %v", got, err)
	}
}

func TestUsageReadsMemoryAndCPUAcct(t *testing.T) {
	withFakeCgroupRoot(t)

	c, err := NewBuilder(nil).Name("case-3").CPUAcct().Memory().Build(context.Background())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer c.Close()

	if err := writeFile(controllerDir("cpuacct", c.Name()), cpuacctUsageFile, "250000000"); err != nil {
		t.Fatalf("seed cpuacct.usage: %v", err)
	}
	if err := writeFile(controllerDir("memory", c.Name()), memMaxUsageFile, "1048576"); err != nil {
		t.Fatalf("seed memory.max_usage_in_bytes: %v", err)
	}

	cpuTime, peakMemory, err := Usage(c)
	if err != nil {
		t.Fatalf("Usage: %v", err)
	}
	if cpuTime != 250*time.Millisecond {
		t.Fatalf("expected cpuTime 250ms, got %v", cpuTime)
	}
	if peakMemory != 1<<20 {
		t.Fatalf("expected peakMemory 1MiB, got %d", peakMemory)
	}
}

func TestBuilderWithoutAllocatorFailsForCpuset(t *testing.T) {
	withFakeCgroupRoot(t)

	_, err := NewBuilder(nil).Cpuset(1).Build(context.Background())
	if err == nil {
		t.Fatal("expected error building a cpuset context without an allocator")
	}
}
