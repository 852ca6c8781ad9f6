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

package sandbox

import (
	"bytes"
	"context"
	"io"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/pkg/errors"

	"github.com/ana-oj/judged/internal/cgroup"
)

// unshareFlags matches spec.md's namespace list verbatim; sysvsem
// isolation rides along with CLONE_NEWIPC since Linux does not split
// IPC namespaces any further.
const unshareFlags = syscall.CLONE_NEWCGROUP |
	syscall.CLONE_NEWIPC |
	syscall.CLONE_NEWNET |
	syscall.CLONE_NEWNS |
	syscall.CLONE_NEWPID |
	syscall.CLONE_NEWUSER |
	syscall.CLONE_NEWUTS

// minJitter is the floor under the watcher's jitter window for short
// real-time limits, where realLimit/5 alone would be too tight to
// absorb scheduler latency.
const minJitter = 50 * time.Millisecond

// Options configures one sandboxed run.
type Options struct {
	Executable string
	Args       []string
	Chroot     string // passed through to the trampoline; empty disables chroot
	Profile    string // seccomp profile name, normally judge.Language.String()

	// ExtraProfilePath, if set, names a file of extra allowed syscalls
	// (one per line) merged into Profile's allow-list, letting a
	// daemon config file widen the default without a code change.
	ExtraProfilePath string

	Cgroup   *cgroup.Context
	RealTime time.Duration
	Stdin    io.Reader
	Stdout   io.Writer
	Stderr   io.Writer
}

// Result is what actually happened, independent of any verdict
// policy — mapping this to AC/WA/TLE/MLE/RE is the orchestrator's
// job, since it alone knows the problem's resource limits and
// expected answer.
type Result struct {
	ExitCode int
	Signaled bool
	Signal   syscall.Signal
	TimedOut bool
}

// Launch starts the candidate inside the re-exec trampoline, waits
// for it to finish or the real-time limit (plus jitter) to expire,
// and returns what happened. It does not itself classify MLE/TLE/RE;
// callers read cgroup.Usage(opts.Cgroup) and memory.failcnt to do
// that once Launch returns.
func Launch(ctx context.Context, opts Options) (*Result, error) {
	self, err := os.Executable()
	if err != nil {
		return nil, errors.Wrap(err, "sandbox: resolve own executable")
	}

	args := append([]string{TrampolineArg, opts.Executable}, opts.Args...)
	cmd := exec.CommandContext(ctx, self, args...)
	cmd.Env = trampolineEnv(opts.Chroot, cgroupDirPairs(opts.Cgroup), opts.Profile, opts.ExtraProfilePath)
	cmd.Stdin = opts.Stdin
	cmd.Stdout = opts.Stdout
	cmd.Stderr = opts.Stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Cloneflags: unshareFlags}

	if err := cmd.Start(); err != nil {
		return nil, errors.Wrap(err, "sandbox: start trampoline")
	}

	jitter := opts.RealTime / 5
	if jitter < minJitter {
		jitter = minJitter
	}

	timedOut := false
	timer := time.AfterFunc(opts.RealTime+jitter, func() {
		timedOut = true
		_ = cmd.Process.Kill()
	})
	defer timer.Stop()

	err = cmd.Wait()
	timer.Stop()

	res := &Result{TimedOut: timedOut}
	if err == nil {
		res.ExitCode = 0
		return res, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
			if status.Signaled() {
				res.Signaled = true
				res.Signal = status.Signal()
			} else {
				res.ExitCode = status.ExitStatus()
			}
			return res, nil
		}
	}
	return res, errors.Wrap(err, "sandbox: wait for candidate")
}

// cgroupDirPairs renders a Context's enabled-controller directories
// as "controller=dir" pairs for the trampoline's env-var handoff.
func cgroupDirPairs(c *cgroup.Context) []string {
	if c == nil {
		return nil
	}
	return c.ControllerDirs()
}

// CaptureOutput runs Launch with stdin fed from input and returns the
// candidate's stdout, trimmed of nothing — byte-for-byte, since the
// comparer is responsible for any whitespace normalization.
func CaptureOutput(ctx context.Context, opts Options, input []byte) ([]byte, *Result, error) {
	var out bytes.Buffer
	opts.Stdin = bytes.NewReader(input)
	opts.Stdout = &out
	opts.Stderr = io.Discard
	res, err := Launch(ctx, opts)
	return out.Bytes(), res, err
}
