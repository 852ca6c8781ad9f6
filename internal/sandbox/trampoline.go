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

// Package sandbox launches a candidate program inside an isolated,
// resource-accounted child: unshared namespaces, cgroup attachment, a
// chroot and a seccomp filter, in that order, followed by a watcher
// that enforces the real-time limit with SIGKILL. The cgroup attach
// runs before the chroot, not after it.
//
// Go's os/exec has no equivalent of a pre-exec hook running after
// fork but before exec, so the ordering is implemented as a re-exec
// trampoline: the daemon binary is started again with a hidden first
// argument, recognized by cmd/judged's main before the daemon proper
// starts, which runs RunTrampoline and syscall.Exec's into the real
// candidate.
package sandbox

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"

	"github.com/pkg/errors"

	"github.com/ana-oj/judged/internal/log"
)

// TrampolineArg is the hidden argv[0]-following marker cmd/judged's
// main recognizes to run the pre-exec sequence instead of the daemon.
const TrampolineArg = "__judged_sandbox_init__"

const (
	envChroot       = "JUDGED_SANDBOX_CHROOT"
	envCgroupDirs   = "JUDGED_SANDBOX_CGROUP_DIRS"
	envSeccompProf  = "JUDGED_SANDBOX_SECCOMP_PROFILE"
	envSeccompExtra = "JUDGED_SANDBOX_SECCOMP_EXTRA_PATH"
)

var tlog = log.NewLogger("sandbox")

// trampolineEnv is the parent-side counterpart to RunTrampoline: it
// encodes everything the child-side pre-exec sequence needs as
// environment variables, since the trampoline's own argv is reserved
// for the marker and the candidate's real argv.
func trampolineEnv(chroot string, cgroupDirs []string, profile, extraProfilePath string) []string {
	env := append([]string{}, os.Environ()...)
	if chroot != "" {
		env = append(env, envChroot+"="+chroot)
	}
	if len(cgroupDirs) > 0 {
		env = append(env, envCgroupDirs+"="+strings.Join(cgroupDirs, ","))
	}
	if profile != "" {
		env = append(env, envSeccompProf+"="+profile)
	}
	if extraProfilePath != "" {
		env = append(env, envSeccompExtra+"="+extraProfilePath)
	}
	return env
}

// RunTrampoline is invoked by cmd/judged's main when os.Args[1] ==
// TrampolineArg. It performs the in-child half of the pre-exec
// sequence — cgroup attach, chroot, seccomp load — in that order, per
// the ordering the launcher's parent side relies on, then replaces
// itself with the candidate via syscall.Exec. It never returns on
// success.
func RunTrampoline(args []string) error {
	if len(args) < 1 {
		return errors.New("sandbox: trampoline requires a target executable")
	}
	target := args[0]
	targetArgs := args

	if dirs := os.Getenv(envCgroupDirs); dirs != "" {
		if err := attachSelf(dirs); err != nil {
			return errors.Wrap(err, "sandbox: trampoline cgroup attach")
		}
	}

	if root := os.Getenv(envChroot); root != "" {
		if err := syscall.Chroot(root); err != nil {
			return errors.Wrapf(err, "sandbox: chroot %s", root)
		}
		if err := syscall.Chdir("/"); err != nil {
			return errors.Wrap(err, "sandbox: chdir / after chroot")
		}
	}

	if profile := os.Getenv(envSeccompProf); profile != "" {
		if err := loadSeccompProfile(profile, os.Getenv(envSeccompExtra)); err != nil {
			return errors.Wrapf(err, "sandbox: load seccomp profile %s", profile)
		}
	}

	path, err := lookPath(target)
	if err != nil {
		return errors.Wrapf(err, "sandbox: resolve candidate %s", target)
	}

	tlog.Debug("exec candidate %s %v", path, targetArgs)
	// The candidate gets a cleared environment: none of the daemon's
	// own env, and none of the JUDGED_SANDBOX_* markers this trampoline
	// itself was launched with, reach untrusted code.
	if err := syscall.Exec(path, targetArgs, []string{}); err != nil {
		return errors.Wrapf(err, "sandbox: exec %s", path)
	}
	return nil // unreachable on success
}

// attachSelf writes the trampoline's own pid (soon to be the
// candidate's pid, post-exec) into cgroup.procs of every controller
// directory in a colon-free comma list of "controller=dir" pairs.
func attachSelf(dirs string) error {
	pid := strconv.Itoa(os.Getpid())
	for _, pair := range strings.Split(dirs, ",") {
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 {
			continue
		}
		if err := writeProcsWithRetry(kv[1], pid); err != nil {
			return fmt.Errorf("attach to %s cgroup %s: %w", kv[0], kv[1], err)
		}
	}
	return nil
}

func lookPath(target string) (string, error) {
	if strings.Contains(target, "/") {
		return target, nil
	}
	for _, dir := range strings.Split(os.Getenv("PATH"), ":") {
		if dir == "" {
			continue
		}
		candidate := dir + "/" + target
		if fi, err := os.Stat(candidate); err == nil && !fi.IsDir() {
			return candidate, nil
		}
	}
	return "", errors.Errorf("%q not found in PATH", target)
}
