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

// Package version lets a build tag binaries with version metadata
// through linker-injected variables, for instance:
//
//	-ldflags "-X=github.com/ana-oj/judged/internal/version.Version=1.2.3 \
//	          -X=github.com/ana-oj/judged/internal/version.Build=<git sha>"
package version

import (
	"fmt"
	"os"
	"path/filepath"
)

var (
	// Version is the release version, by convention from 'git describe'.
	Version = "unknown"
	// Build is the git SHA1 the binary was built from.
	Build = "unknown"
)

// PrintVersionInfo writes version information for the running binary to stdout.
func PrintVersionInfo() {
	fmt.Printf("%s version information:\n", filepath.Base(os.Args[0]))
	fmt.Printf("  - version: %s\n", Version)
	fmt.Printf("  - build:   %s\n", Build)
}
