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
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

func writeFile(dir, file, value string) error {
	return os.WriteFile(filepath.Join(dir, file), []byte(value), 0o644)
}

func readFile(dir, file string) (string, error) {
	b, err := os.ReadFile(filepath.Join(dir, file))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

func (c *Context) readController(controller, file string) (string, error) {
	return readFile(controllerDir(controller, c.name), file)
}

func (c *Context) writeController(controller, file, value string) error {
	return writeFile(controllerDir(controller, c.name), file, value)
}

func parseUint(s string) (uint64, error) {
	return strconv.ParseUint(s, 10, 64)
}

func parseInt(s string) (int64, error) {
	return strconv.ParseInt(s, 10, 64)
}

// CPUPeriod reads cpu.cfs_period_us.
func (c *Context) CPUPeriod() (time.Duration, error) {
	s, err := c.readController("cpu", cpuPeriodFile)
	if err != nil {
		return 0, errors.Wrap(err, "cgroup: read cpu.cfs_period_us")
	}
	us, err := parseUint(s)
	if err != nil {
		return 0, errors.Wrap(err, "cgroup: parse cpu.cfs_period_us")
	}
	return time.Duration(us) * time.Microsecond, nil
}

// SetCPUPeriod writes cpu.cfs_period_us.
func (c *Context) SetCPUPeriod(d time.Duration) error {
	us := d.Microseconds()
	return errors.Wrap(c.writeController("cpu", cpuPeriodFile, strconv.FormatInt(us, 10)), "cgroup: write cpu.cfs_period_us")
}

// CPUQuota reads cpu.cfs_quota_us. A negative value means unlimited.
func (c *Context) CPUQuota() (time.Duration, error) {
	s, err := c.readController("cpu", cpuQuotaFile)
	if err != nil {
		return 0, errors.Wrap(err, "cgroup: read cpu.cfs_quota_us")
	}
	us, err := parseInt(s)
	if err != nil {
		return 0, errors.Wrap(err, "cgroup: parse cpu.cfs_quota_us")
	}
	return time.Duration(us) * time.Microsecond, nil
}

// SetCPUQuota writes cpu.cfs_quota_us. A negative duration requests
// the kernel's "unlimited" sentinel (-1).
func (c *Context) SetCPUQuota(d time.Duration) error {
	us := d.Microseconds()
	if d < 0 {
		us = -1
	}
	return errors.Wrap(c.writeController("cpu", cpuQuotaFile, strconv.FormatInt(us, 10)), "cgroup: write cpu.cfs_quota_us")
}

// CPUAcctUsage reads cpuacct.usage, total CPU time consumed by every
// task that has ever been in this hierarchy, as a duration.
func (c *Context) CPUAcctUsage() (time.Duration, error) {
	s, err := c.readController("cpuacct", cpuacctUsageFile)
	if err != nil {
		return 0, errors.Wrap(err, "cgroup: read cpuacct.usage")
	}
	ns, err := parseUint(s)
	if err != nil {
		return 0, errors.Wrap(err, "cgroup: parse cpuacct.usage")
	}
	return time.Duration(ns), nil
}

// CPUAcctUsagePerCPU reads cpuacct.usage_percpu, one duration per
// allocated CPU.
func (c *Context) CPUAcctUsagePerCPU() ([]time.Duration, error) {
	s, err := c.readController("cpuacct", cpuacctUsagePerCPUFile)
	if err != nil {
		return nil, errors.Wrap(err, "cgroup: read cpuacct.usage_percpu")
	}
	fields := strings.Fields(s)
	out := make([]time.Duration, 0, len(fields))
	for _, f := range fields {
		ns, err := parseUint(f)
		if err != nil {
			return nil, errors.Wrap(err, "cgroup: parse cpuacct.usage_percpu")
		}
		out = append(out, time.Duration(ns))
	}
	return out, nil
}

// MemoryUsage reads memory.usage_in_bytes, current resident usage.
func (c *Context) MemoryUsage() (uint64, error) {
	s, err := c.readController("memory", memUsageFile)
	if err != nil {
		return 0, errors.Wrap(err, "cgroup: read memory.usage_in_bytes")
	}
	return parseUint(s)
}

// MemoryMaxUsage reads memory.max_usage_in_bytes, the high-water mark
// across the hierarchy's lifetime — this is the value the Resource-
// Usage Reporter uses for peak memory, since a post-wait sample of
// memory.usage_in_bytes can miss a transient peak.
func (c *Context) MemoryMaxUsage() (uint64, error) {
	s, err := c.readController("memory", memMaxUsageFile)
	if err != nil {
		return 0, errors.Wrap(err, "cgroup: read memory.max_usage_in_bytes")
	}
	return parseUint(s)
}

// MemoryFailcnt reads memory.failcnt, the number of times this
// hierarchy's limit was hit.
func (c *Context) MemoryFailcnt() (uint64, error) {
	s, err := c.readController("memory", memFailcntFile)
	if err != nil {
		return 0, errors.Wrap(err, "cgroup: read memory.failcnt")
	}
	return parseUint(s)
}

// MemoryLimit reads memory.limit_in_bytes.
func (c *Context) MemoryLimit() (uint64, error) {
	s, err := c.readController("memory", memLimitFile)
	if err != nil {
		return 0, errors.Wrap(err, "cgroup: read memory.limit_in_bytes")
	}
	return parseUint(s)
}

// SetMemoryLimit writes memory.limit_in_bytes.
func (c *Context) SetMemoryLimit(bytes uint64) error {
	return errors.Wrap(c.writeController("memory", memLimitFile, strconv.FormatUint(bytes, 10)), "cgroup: write memory.limit_in_bytes")
}

// SetSwappiness writes memory.swappiness. Judge runs set this to 0 so
// that a memory-starved sandbox fails fast against its limit instead
// of paging out to swap.
func (c *Context) SetSwappiness(v int) error {
	return errors.Wrap(c.writeController("memory", memSwappinessFile, strconv.Itoa(v)), "cgroup: write memory.swappiness")
}

// CpusetCPUs reads cpuset.cpus back as written, e.g. "0-1,4".
func (c *Context) CpusetCPUs() (string, error) {
	s, err := c.readController("cpuset", cpusetCPUsFile)
	return s, errors.Wrap(err, "cgroup: read cpuset.cpus")
}

// Usage is the pure Resource-Usage Reporter: it reads the memory and
// cpuacct controllers of a finished run's Context and
// returns the totals a Report needs. Callers invoke this after the
// sandboxed child has been reaped and before Close releases the
// underlying directories.
func Usage(c *Context) (cpuTime time.Duration, peakMemory uint64, err error) {
	if c.enabled.has(CPUAcct) {
		cpuTime, err = c.CPUAcctUsage()
		if err != nil {
			return 0, 0, err
		}
	}
	if c.enabled.has(Memory) {
		peakMemory, err = c.MemoryMaxUsage()
		if err != nil {
			return cpuTime, 0, err
		}
	}
	return cpuTime, peakMemory, nil
}
