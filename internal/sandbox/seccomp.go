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
	"os"
	"strings"

	seccomp "github.com/seccomp/libseccomp-golang"

	"github.com/pkg/errors"
)

// defaultAllowedSyscalls is the allow-list shared by every profile:
// the bare minimum a statically or dynamically linked program needs
// to start, read its input, write its output and exit.
var defaultAllowedSyscalls = []string{
	"read", "write", "close", "fstat", "lseek", "mmap", "mprotect",
	"munmap", "brk", "rt_sigaction", "rt_sigprocmask", "rt_sigreturn",
	"access", "execve", "exit", "exit_group", "arch_prctl",
	"open", "openat", "stat", "readlink", "getrandom", "futex",
	"set_tid_address", "set_robust_list", "prlimit64", "clock_gettime",
	"gettimeofday", "nanosleep", "getpid", "getuid", "geteuid",
	"getgid", "getegid", "ioctl", "pread64", "dup", "dup2",
}

// interpretedExtraSyscalls is appended for profiles backing an
// interpreter (python3), which forks helper threads and maps
// executable pages for its JIT-less bytecode loader more liberally
// than a statically compiled candidate needs to.
var interpretedExtraSyscalls = []string{
	"clone", "clone3", "madvise", "sigaltstack", "rseq", "prctl",
	"getcwd", "getdents64", "fcntl",
}

// profileSyscalls resolves a named profile (normally a
// judge.Language.String()) to its syscall allow-list. Unknown names
// fall back to the conservative default profile rather than failing,
// since an unrecognized profile string reaching the trampoline is a
// configuration bug, not a reason to run the candidate unconfined.
func profileSyscalls(profile string) []string {
	switch profile {
	case "python3":
		return append(append([]string{}, defaultAllowedSyscalls...), interpretedExtraSyscalls...)
	default:
		return defaultAllowedSyscalls
	}
}

// extraProfileSyscalls reads a newline-separated list of syscall names
// from path, letting a daemon config file widen a profile's allow-list
// without a code change. A blank path or a name read error (missing
// file, bad permissions) yields no extra syscalls rather than failing
// the whole profile load — the built-in allow-list alone is already a
// safe, functioning default.
func extraProfileSyscalls(path string) []string {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var names []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		names = append(names, line)
	}
	return names
}

// loadSeccompProfile compiles and loads, into the calling process, a
// filter that kills on any syscall outside the named profile's
// allow-list plus whatever extraProfilePath adds. It must run on the
// trampoline side, immediately before syscall.Exec, so the loaded
// filter is inherited by the candidate.
func loadSeccompProfile(profile, extraProfilePath string) error {
	filter, err := seccomp.NewFilter(seccomp.ActKill)
	if err != nil {
		return errors.Wrap(err, "sandbox: create seccomp filter")
	}
	defer filter.Release()

	if err := filter.AddArch(seccomp.ArchNative); err != nil {
		return errors.Wrap(err, "sandbox: add native arch")
	}

	allowed := append(profileSyscalls(profile), extraProfileSyscalls(extraProfilePath)...)
	for _, name := range allowed {
		call, err := seccomp.GetSyscallFromName(name)
		if err != nil {
			// Syscalls absent on this kernel/arch are skipped rather
			// than failing the whole profile load.
			continue
		}
		if err := filter.AddRule(call, seccomp.ActAllow); err != nil {
			return errors.Wrapf(err, "sandbox: allow %s", name)
		}
	}

	if err := filter.Load(); err != nil {
		return errors.Wrap(err, "sandbox: load filter")
	}
	return nil
}
