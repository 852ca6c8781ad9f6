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

package log

import (
	"fmt"
	"strings"
	"sync"
)

// FmtBackendName is the name of the built-in fmt.Println-based backend.
const FmtBackendName = "fmt"

var fmtTags = map[Level]string{
	LevelDebug: "D:",
	LevelInfo:  "I:",
	LevelWarn:  "W:",
	LevelError: "E:",
}

// fmtBackend is the default Backend, printing directly to stdout.
type fmtBackend struct {
	mu    sync.Mutex
	align int
}

func createFmtBackend() Backend { return &fmtBackend{} }

func (f *fmtBackend) Name() string { return FmtBackendName }

func (f *fmtBackend) SetSourceAlignment(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.align = n
}

func (f *fmtBackend) Log(level Level, source, format string, args ...interface{}) {
	f.emit(level, source, "", fmt.Sprintf(format, args...))
}

func (f *fmtBackend) Block(level Level, source, prefix, format string, args ...interface{}) {
	f.emit(level, source, prefix, fmt.Sprintf(format, args...))
}

func (f *fmtBackend) emit(level Level, source, prefix, msg string) {
	f.mu.Lock()
	align := f.align
	f.mu.Unlock()

	suf := (align - len(source)) / 2
	pre := align - len(source) - suf
	tagged := "[" + strings.Repeat(" ", maxInt(pre, 0)) + source + strings.Repeat(" ", maxInt(suf, 0)) + "]"

	for _, line := range strings.Split(msg, "\n") {
		if prefix == "" {
			fmt.Println(fmtTags[level], tagged, line)
		} else {
			fmt.Println(fmtTags[level], tagged, prefix, line)
		}
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func init() {
	RegisterBackend(FmtBackendName, createFmtBackend)
}
