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
	"os"
	"strconv"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/ana-oj/judged/internal/cpuset"
	"github.com/ana-oj/judged/internal/log"
)

var ctxlog = log.NewLogger("cgroup")

// Controller is a bitmask of the hierarchies a Context enables.
type Controller uint

const (
	CPU Controller = 1 << iota
	CPUAcct
	Memory
	Cpuset
)

func (c Controller) has(bit Controller) bool { return c&bit != 0 }

func (c Controller) names() []string {
	var names []string
	if c.has(CPU) {
		names = append(names, "cpu")
	}
	if c.has(CPUAcct) {
		names = append(names, "cpuacct")
	}
	if c.has(Memory) {
		names = append(names, "memory")
	}
	if c.has(Cpuset) {
		names = append(names, "cpuset")
	}
	return names
}

// Context owns a uniquely-named set of cgroup v1 sub-hierarchies for
// the lifetime of one judge run. Create one with a Builder; call
// Close once the sandboxed child has been reaped and its usage read.
type Context struct {
	name       string
	enabled    Controller
	allocator  *cpuset.Allocator
	allocation []cpuset.Range
}

// Name returns the unique name identifying this context's
// sub-directories across every enabled controller.
func (c *Context) Name() string { return c.name }

// ControllerDirs renders every enabled controller's absolute
// directory as a "controller=dir" pair, the form the sandbox
// launcher hands to its re-exec trampoline via an environment
// variable so the trampoline can attach its own pid before exec.
func (c *Context) ControllerDirs() []string {
	names := c.enabled.names()
	pairs := make([]string, 0, len(names))
	for _, controller := range names {
		pairs = append(pairs, controller+"="+controllerDir(controller, c.name))
	}
	return pairs
}

// Builder constructs a Context, creating one sub-directory per
// enabled controller and, if Cpuset is requested, blocking on the
// process-wide allocator until num CPUs are free.
type Builder struct {
	name      string
	enabled   Controller
	cpuNum    int
	allocator *cpuset.Allocator
}

// NewBuilder starts a Context builder. allocator may be nil unless
// Cpuset() is requested.
func NewBuilder(allocator *cpuset.Allocator) *Builder {
	return &Builder{allocator: allocator}
}

// Name sets an explicit context name. If omitted, Build generates one
// of the form "judged-<random UUID>"; the generated name does not
// encode the creation time.
func (b *Builder) Name(name string) *Builder {
	b.name = name
	return b
}

// CPU enables the cpu controller.
func (b *Builder) CPU() *Builder { b.enabled |= CPU; return b }

// CPUAcct enables the cpuacct controller.
func (b *Builder) CPUAcct() *Builder { b.enabled |= CPUAcct; return b }

// Memory enables the memory controller.
func (b *Builder) Memory() *Builder { b.enabled |= Memory; return b }

// Cpuset enables the cpuset controller and requests num CPUs from the
// allocator at Build time.
func (b *Builder) Cpuset(num int) *Builder {
	b.enabled |= Cpuset
	b.cpuNum = num
	return b
}

// Build creates the sub-directories for every enabled controller
// (idempotent: an existing directory is not an error) and, if Cpuset
// was requested, allocates and writes the CPU ranges.
func (b *Builder) Build(ctx context.Context) (*Context, error) {
	name := b.name
	if name == "" {
		name = generateName()
	}

	c := &Context{name: name, enabled: b.enabled, allocator: b.allocator}

	for _, controller := range b.enabled.names() {
		dir := controllerDir(controller, name)
		if err := mkdirIdempotent(dir); err != nil {
			return nil, errors.Wrapf(err, "cgroup: create %s dir", controller)
		}
	}

	if b.enabled.has(Cpuset) {
		if b.allocator == nil {
			return nil, errors.New("cgroup: cpuset requested without an allocator")
		}
		ranges, err := b.allocator.Allocate(ctx, b.cpuNum)
		if err != nil {
			return nil, errors.Wrap(err, "cgroup: allocate cpuset")
		}
		c.allocation = ranges
		if err := writeFile(controllerDir("cpuset", name), cpusetCPUsFile, formatRanges(ranges)); err != nil {
			_ = b.allocator.Release(ranges)
			return nil, errors.Wrap(err, "cgroup: write cpuset.cpus")
		}
		if err := writeFile(controllerDir("cpuset", name), cpusetMemsFile, "0"); err != nil {
			_ = b.allocator.Release(ranges)
			return nil, errors.Wrap(err, "cgroup: write cpuset.mems")
		}
	}

	return c, nil
}

// generateName derives a unique per-sandbox cgroup directory name. Using
// a UUID rather than a pid or timestamp means a stale directory left
// behind by a crashed judge never collides with a later run's.
func generateName() string {
	return "judged-" + uuid.New().String()
}

func mkdirIdempotent(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil && !os.IsExist(err) {
		return err
	}
	return nil
}

func formatRanges(ranges []cpuset.Range) string {
	s := ""
	for i, r := range ranges {
		if i > 0 {
			s += ","
		}
		s += r.String()
	}
	return s
}

// AddProcess writes pid into cgroup.procs of every enabled hierarchy.
// The sandbox trampoline does not call it: it attaches itself from the
// ControllerDirs pairs handed over in its environment.
func (c *Context) AddProcess(pid int) error {
	return c.writeAll(procsFile, strconv.Itoa(pid))
}

// AddTask writes tid into tasks of every enabled hierarchy.
func (c *Context) AddTask(tid int) error {
	return c.writeAll(tasksFile, strconv.Itoa(tid))
}

func (c *Context) writeAll(file, value string) error {
	var merr *multierror.Error
	for _, controller := range c.enabled.names() {
		if err := writeFile(controllerDir(controller, c.name), file, value); err != nil {
			merr = multierror.Append(merr, errors.Wrapf(err, "write %s/%s", controller, file))
		}
	}
	return merr.ErrorOrNil()
}

// Close removes every enabled hierarchy's sub-directory and, if a
// cpuset allocation was held, returns it to the allocator. Removal
// errors are logged, never panicked or returned as fatal to the
// caller's run loop — spec.md requires cleanup to never block
// progress to the next case.
func (c *Context) Close() error {
	var merr *multierror.Error

	for _, controller := range c.enabled.names() {
		dir := controllerDir(controller, c.name)
		if err := os.RemoveAll(dir); err != nil {
			merr = multierror.Append(merr, errors.Wrapf(err, "remove %s", dir))
		}
	}

	if c.enabled.has(Cpuset) && c.allocation != nil {
		if err := c.allocator.Release(c.allocation); err != nil {
			merr = multierror.Append(merr, errors.Wrap(err, "release cpuset"))
		}
		c.allocation = nil
	}

	if err := merr.ErrorOrNil(); err != nil {
		ctxlog.Warn("cgroup %s: teardown error: %v", c.name, err)
		return err
	}
	return nil
}
