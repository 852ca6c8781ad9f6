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
	stdlog "log"
)

// stdlogger adapts our Logger to io.Writer so the standard log
// package's output (from libraries we don't control) is routed
// through the same backend, at debug severity.
type stdlogger struct {
	l Logger
}

// SetStdLogger redirects the standard library's log package output
// into the logger for source (or the default logger if source is
// empty).
func SetStdLogger(source string) {
	var l Logger
	if source == "" {
		l = Default()
	} else {
		l = NewLogger(source)
	}

	stdlog.SetPrefix("")
	stdlog.SetFlags(0)
	stdlog.SetOutput(&stdlogger{l: l})
}

func (s *stdlogger) Write(p []byte) (int, error) {
	s.l.Debug("%s", string(p))
	return len(p), nil
}
