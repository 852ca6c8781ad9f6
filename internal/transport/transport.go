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

// Package transport carries Tasks in and Reports out. The engine
// consumes an abstract Receiver and writes through an abstract
// Sender; this package's concrete implementation is newline-delimited
// JSON over anything io.ReadWriteCloser, since no Go protobuf/zmq
// binding for the original wire formats exists anywhere in this
// repository's dependency corpus.
package transport

import (
	"time"

	"github.com/ana-oj/judged/internal/judge"
)

// TaskMessage is the ingress wire shape from spec.md §6.
type TaskMessage struct {
	ID      string         `json:"id"`
	Source  SourceMessage  `json:"source"`
	Problem ProblemMessage `json:"problem"`
}

type SourceMessage struct {
	Language string `json:"language"`
	Code     string `json:"code"`
}

type ProblemMessage struct {
	Kind      string            `json:"kind"`
	Limits    LimitsMessage     `json:"limits"`
	TestCases []TestCaseMessage `json:"test_cases"`
	Checker   *SourceMessage    `json:"checker,omitempty"`
}

type LimitsMessage struct {
	CPUTimeNs   uint64 `json:"cpu_time_ns"`
	RealTimeNs  uint64 `json:"real_time_ns"`
	MemoryBytes uint64 `json:"memory_bytes"`
}

type TestCaseMessage struct {
	Input  string `json:"input"`
	Answer string `json:"answer"`
}

// ReportMessage is the egress wire shape from spec.md §6.
type ReportMessage struct {
	ID        string        `json:"id"`
	CaseIndex int           `json:"case_index"`
	Verdict   string        `json:"verdict"`
	Usage     *UsageMessage `json:"usage,omitempty"`
	Message   string        `json:"message,omitempty"`
}

type UsageMessage struct {
	CPUTimeNs   int64  `json:"cpu_time_ns"`
	RealTimeNs  int64  `json:"real_time_ns"`
	MemoryBytes uint64 `json:"memory_bytes"`
}

// ToTask converts the wire message into the engine's internal Task.
func (m TaskMessage) ToTask() judge.Task {
	t := judge.Task{
		ID:     m.ID,
		Source: judge.Source{Language: judge.ParseLanguage(m.Source.Language), Code: m.Source.Code},
		Problem: judge.Problem{
			Kind: judge.ParseProblemKind(m.Problem.Kind),
			Limits: judge.ResourceLimit{
				CPUTime:  time.Duration(m.Problem.Limits.CPUTimeNs),
				RealTime: time.Duration(m.Problem.Limits.RealTimeNs),
				Memory:   m.Problem.Limits.MemoryBytes,
			},
		},
	}
	for _, tc := range m.Problem.TestCases {
		t.Problem.TestCases = append(t.Problem.TestCases, judge.TestCase{
			Input:  []byte(tc.Input),
			Answer: []byte(tc.Answer),
		})
	}
	if m.Problem.Checker != nil {
		t.Problem.Checker = &judge.Source{
			Language: judge.ParseLanguage(m.Problem.Checker.Language),
			Code:     m.Problem.Checker.Code,
		}
	}
	return t
}

// FromReport converts an internal Report into its wire message.
func FromReport(r judge.Report) ReportMessage {
	msg := ReportMessage{ID: r.TaskID, CaseIndex: r.CaseIndex, Verdict: string(r.Verdict), Message: r.Message}
	if r.Usage != nil {
		msg.Usage = &UsageMessage{
			CPUTimeNs:   r.Usage.CPUTime.Nanoseconds(),
			RealTimeNs:  r.Usage.RealTime.Nanoseconds(),
			MemoryBytes: r.Usage.PeakMemory,
		}
	}
	return msg
}
