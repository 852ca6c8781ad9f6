// Copyright 2019 Intel Corporation. All Rights Reserved.
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
	"flag"
	"fmt"
	"strings"
)

const (
	optionLevel  = "logger-level"
	optionSource = "logger-source"
	optionDebug  = "logger-debug"
	optionLogger = "logger"
)

type levelFlag struct{}

func (levelFlag) String() string { return reg.level.String() }
func (levelFlag) Set(value string) error {
	lvl, ok := NamedLevels[value]
	if !ok {
		return loggerError("unknown log level %q", value)
	}
	SetLevel(lvl)
	return nil
}

type backendFlag struct{}

func (backendFlag) String() string {
	if reg.active == nil {
		return ""
	}
	return reg.active.Name()
}
func (backendFlag) Set(value string) error {
	SelectBackend(value)
	return nil
}

func loggerError(format string, args ...interface{}) error {
	return fmt.Errorf("log: "+format, args...)
}

func splitCSV(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// init registers the command-line flags that control this package's
// runtime behavior, the same surface the teacher's own pkg/log
// exposes: which backend is active, the filtering level, and which
// sources get logging/debugging enabled.
func init() {
	flag.Var(levelFlag{}, optionLevel, "least severity of log messages to pass through (debug, info, warn, error)")
	flag.Var(backendFlag{}, optionLogger, "logging backend to use")
	flag.Func(optionSource, "comma-separated logger sources to enable ('*' for all)", func(v string) error {
		for _, s := range splitCSV(v) {
			SetSourceEnabled(s, true)
		}
		return nil
	})
	flag.Func(optionDebug, "comma-separated logger sources to enable debugging for ('*' for all)", func(v string) error {
		for _, s := range splitCSV(v) {
			SetSourceDebug(s, true)
		}
		return nil
	})
}
