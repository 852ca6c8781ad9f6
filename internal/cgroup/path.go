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

// Package cgroup owns per-judge cgroup v1 sub-hierarchies (cpu,
// cpuacct, memory, cpuset) and exposes typed accessors for limits and
// usage. A Context is built once per test case and torn down after
// the sandboxed child has been reaped and its usage read.
package cgroup

import (
	"path/filepath"
	"sync"
)

// Controller file names, matching the kernel's cgroup v1 interface
// verbatim.
const (
	procsFile = "cgroup.procs"
	tasksFile = "tasks"

	cpuPeriodFile = "cpu.cfs_period_us"
	cpuQuotaFile  = "cpu.cfs_quota_us"

	cpuacctUsageFile       = "cpuacct.usage"
	cpuacctUsagePerCPUFile = "cpuacct.usage_percpu"

	memUsageFile       = "memory.usage_in_bytes"
	memMaxUsageFile    = "memory.max_usage_in_bytes"
	memFailcntFile     = "memory.failcnt"
	memLimitFile       = "memory.limit_in_bytes"
	memSwappinessFile  = "memory.swappiness"
	cpusetCPUsFile     = "cpuset.cpus"
	cpusetMemsFile     = "cpuset.mems"
	parentDirComponent = "ana"
)

var (
	mountDirMu sync.RWMutex
	mountDir   = "/sys/fs/cgroup"
)

// SetMountDir overrides the cgroup v1 mount root, normally
// /sys/fs/cgroup. Tests point this at a temporary directory standing
// in for a real cgroupfs.
func SetMountDir(dir string) {
	mountDirMu.Lock()
	defer mountDirMu.Unlock()
	mountDir = dir
}

// GetMountDir returns the currently configured cgroup v1 mount root.
func GetMountDir() string {
	mountDirMu.RLock()
	defer mountDirMu.RUnlock()
	return mountDir
}

// controllerDir returns <mountdir>/<controller>/ana/<name>.
func controllerDir(controller, name string) string {
	return filepath.Join(GetMountDir(), controller, parentDirComponent, name)
}
