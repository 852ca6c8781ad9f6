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
	"testing"
)

type recordingBackend struct {
	name     string
	messages []string
}

func (r *recordingBackend) Name() string { return r.name }
func (r *recordingBackend) Log(level Level, source, format string, args ...interface{}) {
	r.messages = append(r.messages, source+":"+LevelNames[level])
}
func (r *recordingBackend) Block(level Level, source, prefix, format string, args ...interface{}) {
	r.messages = append(r.messages, source+":"+LevelNames[level]+":"+prefix)
}
func (r *recordingBackend) SetSourceAlignment(int) {}

func TestLoggerRespectsLevel(t *testing.T) {
	rec := &recordingBackend{name: "rec"}
	RegisterBackend("rec", func() Backend { return rec })
	SelectBackend("rec")
	defer SelectBackend(FmtBackendName)

	SetLevel(LevelWarn)
	defer SetLevel(LevelInfo)

	l := NewLogger("test-level")
	l.Info("should be suppressed")
	l.Warn("should pass")

	if len(rec.messages) != 1 {
		t.Fatalf("expected exactly 1 message, got %d: %v", len(rec.messages), rec.messages)
	}
}

func TestLoggerDebugGatedBySource(t *testing.T) {
	rec := &recordingBackend{name: "rec2"}
	RegisterBackend("rec2", func() Backend { return rec })
	SelectBackend("rec2")
	defer SelectBackend(FmtBackendName)

	l := NewLogger("test-debug")
	l.Debug("suppressed by default")
	if len(rec.messages) != 0 {
		t.Fatalf("expected debug to be suppressed by default, got %v", rec.messages)
	}

	SetSourceDebug("test-debug", true)
	l.Debug("now enabled")
	if len(rec.messages) != 1 {
		t.Fatalf("expected debug to pass once enabled, got %v", rec.messages)
	}
}

func TestRateLimit(t *testing.T) {
	rec := &recordingBackend{name: "rec3"}
	RegisterBackend("rec3", func() Backend { return rec })
	SelectBackend("rec3")
	defer SelectBackend(FmtBackendName)

	l := RateLimit(NewLogger("test-rate"), Rate{Limit: 0, Burst: 1})
	for i := 0; i < 5; i++ {
		l.Warn("repeated message")
	}
	if len(rec.messages) != 1 {
		t.Fatalf("expected exactly 1 message past the burst of 1, got %d", len(rec.messages))
	}
}
