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

// Package judge implements the judge pipeline state machine: build
// the submission, run it against each test case inside a sandbox,
// compare its output, and emit one Report per case.
package judge

import "time"

// Language is a closed tagged variant over the handful of languages
// this engine knows how to build and run, replacing the source's
// dynamic Compiler/Launcher dispatch with a small match.
type Language int

const (
	LanguageUnknown Language = iota
	LanguageGCC
	LanguageGXX
	LanguagePython3
)

// ParseLanguage maps an ingress "language" string onto a Language.
// Unknown strings resolve to LanguageUnknown, which the orchestrator
// rejects at build time with SystemError rather than failing the
// parse.
func ParseLanguage(s string) Language {
	switch s {
	case "c.gcc", "gcc", "c":
		return LanguageGCC
	case "cpp.g++", "g++", "cpp", "c++":
		return LanguageGXX
	case "python3", "py3", "python":
		return LanguagePython3
	default:
		return LanguageUnknown
	}
}

func (l Language) String() string {
	switch l {
	case LanguageGCC:
		return "c.gcc"
	case LanguageGXX:
		return "cpp.g++"
	case LanguagePython3:
		return "python3"
	default:
		return "unknown"
	}
}

// ProblemKind selects how a submission's output is judged.
type ProblemKind int

const (
	KindNormal ProblemKind = iota
	KindSpecial
	KindInteractive
)

// ParseProblemKind maps an ingress "kind" string onto a ProblemKind.
// Interactive is accepted by the parser (per spec) but is rejected
// at orchestration time with SystemError.
func ParseProblemKind(s string) ProblemKind {
	switch s {
	case "Normal":
		return KindNormal
	case "Special":
		return KindSpecial
	case "Interactive":
		return KindInteractive
	default:
		return KindNormal
	}
}

// Source is a submission's or checker's language and code.
type Source struct {
	Language Language
	Code     string
}

// ResourceLimit bounds a single run.
type ResourceLimit struct {
	CPUTime  time.Duration
	RealTime time.Duration
	Memory   uint64 // bytes
}

// TestCase is one input/expected-answer pair.
type TestCase struct {
	Input  []byte
	Answer []byte
}

// Problem is everything needed to judge one submission.
type Problem struct {
	Kind      ProblemKind
	Limits    ResourceLimit
	TestCases []TestCase
	Checker   *Source // non-nil iff Kind == KindSpecial
}

// Task is one submission awaiting judgement.
type Task struct {
	ID      string
	Source  Source
	Problem Problem
}

// ResourceUsage is what actually happened during one run.
type ResourceUsage struct {
	CPUTime    time.Duration
	RealTime   time.Duration
	PeakMemory uint64
}

// Verdict is the per-case classification.
type Verdict string

const (
	Accepted            Verdict = "AC"
	WrongAnswer         Verdict = "WA"
	TimeLimitExceeded   Verdict = "TLE"
	MemoryLimitExceeded Verdict = "MLE"
	RuntimeError        Verdict = "RE"
	CompileError        Verdict = "CE"
	SystemError         Verdict = "SE"
)

// Report is one case's outcome, or the single report emitted on
// compile/system failure before any case runs.
type Report struct {
	TaskID    string
	CaseIndex int
	Verdict   Verdict
	Usage     *ResourceUsage
	Message   string
}
