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

package judge

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/ana-oj/judged/internal/cgroup"
	"github.com/ana-oj/judged/internal/compare"
	"github.com/ana-oj/judged/internal/cpuset"
	"github.com/ana-oj/judged/internal/instrumentation"
	"github.com/ana-oj/judged/internal/log"
	"github.com/ana-oj/judged/internal/sandbox"
)

var olog = log.NewLogger("orchestrator")

// cfsPeriod is the fixed cpu.cfs_period_us window every case's
// cgroup is configured with; quota is pinned to exactly one period so
// the candidate is rate-limited to the single CPU the cpuset
// allocator hands it, never to cpu_time itself — cpu_time is enforced
// after the fact by comparing cpuacct.usage to the problem's limit,
// not by the scheduler.
const cfsPeriod = 100 * time.Millisecond

// Orchestrator drives one task through NEW→BUILT→RUNNING→MEASURED→
// REPORTED per case, emitting one Report per case in order.
type Orchestrator struct {
	Allocator *cpuset.Allocator
	WorkDir   string
	Builder   *Builder

	// SeccompProfilePath, if set, names a file listing extra syscalls
	// (one per line) merged into every sandboxed run's seccomp
	// allow-list, letting a daemon config file widen the default
	// profile without a code change.
	SeccompProfilePath string

	// Collector, if set, is told about each case's cgroup while it
	// runs so /metrics can sample its live cpu-time and peak-memory
	// usage. Nil disables per-case sampling.
	Collector *instrumentation.Collector
}

// NewOrchestrator constructs an Orchestrator using the default
// per-language build-script table. workDir is the root under which
// each task gets its own runtime sub-directory.
func NewOrchestrator(allocator *cpuset.Allocator, workDir string) *Orchestrator {
	return &Orchestrator{Allocator: allocator, WorkDir: workDir, Builder: NewBuilder(nil)}
}

// Run drives task through the full pipeline, calling emit once per
// case in order. A compile or system failure emits exactly one report
// and returns nil — it is not itself an error, since the orchestrator
// fully handled the task by reporting its outcome.
func (o *Orchestrator) Run(ctx context.Context, task Task, emit func(Report)) error {
	if task.Problem.Kind == KindInteractive {
		emit(Report{TaskID: task.ID, CaseIndex: -1, Verdict: SystemError, Message: "interactive problems are not supported"})
		return nil
	}

	taskDir := filepath.Join(o.WorkDir, "task-"+task.ID)
	if err := os.MkdirAll(taskDir, 0o755); err != nil {
		return fmt.Errorf("orchestrator: create task dir: %w", err)
	}
	defer os.RemoveAll(taskDir)

	build, ok, err := o.Builder.Build(ctx, taskDir, task.Source)
	if err != nil {
		emit(Report{TaskID: task.ID, CaseIndex: -1, Verdict: SystemError, Message: err.Error()})
		return nil
	}
	if !ok {
		emit(Report{TaskID: task.ID, CaseIndex: -1, Verdict: CompileError, Message: build.Stderr})
		return nil
	}

	var checkerPath string
	if task.Problem.Kind == KindSpecial {
		if task.Problem.Checker == nil {
			emit(Report{TaskID: task.ID, CaseIndex: -1, Verdict: SystemError, Message: "special judge missing checker source"})
			return nil
		}
		checkerDir := filepath.Join(taskDir, "checker")
		if err := os.MkdirAll(checkerDir, 0o755); err != nil {
			emit(Report{TaskID: task.ID, CaseIndex: -1, Verdict: SystemError, Message: err.Error()})
			return nil
		}
		checkerBuild, ok, err := o.Builder.Build(ctx, checkerDir, *task.Problem.Checker)
		if err != nil || !ok {
			emit(Report{TaskID: task.ID, CaseIndex: -1, Verdict: SystemError, Message: "checker build failed"})
			return nil
		}
		checkerPath = checkerBuild.ExecutablePath
	}

	for i, tc := range task.Problem.TestCases {
		report := o.runCase(ctx, taskDir, task, i, tc, build.ExecutablePath, checkerPath)
		emit(report)
	}
	return nil
}

func (o *Orchestrator) runCase(ctx context.Context, taskDir string, task Task, index int, tc TestCase, executable, checkerPath string) Report {
	caseDir := filepath.Join(taskDir, fmt.Sprintf("case-%d", index))
	if err := os.MkdirAll(caseDir, 0o755); err != nil {
		return Report{TaskID: task.ID, CaseIndex: index, Verdict: SystemError, Message: err.Error()}
	}

	limits := task.Problem.Limits
	cg, err := cgroup.NewBuilder(o.Allocator).
		CPU().CPUAcct().Memory().Cpuset(1).
		Build(ctx)
	if err != nil {
		return Report{TaskID: task.ID, CaseIndex: index, Verdict: SystemError, Message: err.Error()}
	}
	defer func() {
		if err := cg.Close(); err != nil {
			olog.Warn("case %d: cgroup teardown: %v", index, err)
		}
	}()

	caseID := fmt.Sprintf("%s-%d", task.ID, index)
	if o.Collector != nil {
		o.Collector.CaseStarted(caseID, cg)
		defer o.Collector.CaseFinished(caseID)
	}

	if err := cg.SetCPUPeriod(cfsPeriod); err != nil {
		return Report{TaskID: task.ID, CaseIndex: index, Verdict: SystemError, Message: err.Error()}
	}
	if err := cg.SetCPUQuota(cfsPeriod); err != nil {
		return Report{TaskID: task.ID, CaseIndex: index, Verdict: SystemError, Message: err.Error()}
	}
	if err := cg.SetMemoryLimit(limits.Memory); err != nil {
		return Report{TaskID: task.ID, CaseIndex: index, Verdict: SystemError, Message: err.Error()}
	}
	if err := cg.SetSwappiness(0); err != nil {
		return Report{TaskID: task.ID, CaseIndex: index, Verdict: SystemError, Message: err.Error()}
	}

	start := time.Now()
	output, runResult, err := sandbox.CaptureOutput(ctx, sandbox.Options{
		Executable:       executable,
		Profile:          task.Source.Language.String(),
		ExtraProfilePath: o.SeccompProfilePath,
		Cgroup:           cg,
		RealTime:         limits.RealTime,
	}, tc.Input)
	wallTime := time.Since(start)
	if err != nil {
		return Report{TaskID: task.ID, CaseIndex: index, Verdict: SystemError, Message: err.Error()}
	}

	cpuTime, peakMemory, err := cgroup.Usage(cg)
	if err != nil {
		return Report{TaskID: task.ID, CaseIndex: index, Verdict: SystemError, Message: err.Error()}
	}
	failcnt, err := cg.MemoryFailcnt()
	if err != nil {
		return Report{TaskID: task.ID, CaseIndex: index, Verdict: SystemError, Message: err.Error()}
	}

	usage := &ResourceUsage{CPUTime: cpuTime, RealTime: wallTime, PeakMemory: peakMemory}

	verdict := classify(runResult, failcnt, limits, usage)
	if verdict != "" {
		return Report{TaskID: task.ID, CaseIndex: index, Verdict: verdict, Usage: usage}
	}

	accepted, err := judgeOutput(ctx, caseDir, tc.Input, output, tc.Answer, checkerPath)
	if err != nil {
		return Report{TaskID: task.ID, CaseIndex: index, Verdict: SystemError, Usage: usage, Message: err.Error()}
	}
	if accepted {
		return Report{TaskID: task.ID, CaseIndex: index, Verdict: Accepted, Usage: usage}
	}
	return Report{TaskID: task.ID, CaseIndex: index, Verdict: WrongAnswer, Usage: usage}
}

// classify applies the failure precedence MLE > TLE > RE. An empty
// return means the run is a Pass, a candidate for AC/WA comparison.
func classify(res *sandbox.Result, memFailcnt uint64, limits ResourceLimit, usage *ResourceUsage) Verdict {
	if memFailcnt > 0 || usage.PeakMemory >= limits.Memory {
		return MemoryLimitExceeded
	}
	if usage.CPUTime > limits.CPUTime || usage.RealTime > limits.RealTime || res.TimedOut {
		return TimeLimitExceeded
	}
	if res.Signaled || res.ExitCode != 0 {
		return RuntimeError
	}
	return ""
}

func judgeOutput(ctx context.Context, caseDir string, input, output, answer []byte, checkerPath string) (bool, error) {
	if checkerPath == "" {
		return compare.Equal(output, answer, compare.DefaultOptions()), nil
	}

	inputFile := filepath.Join(caseDir, "input")
	answerFile := filepath.Join(caseDir, "answer")
	outputFile := filepath.Join(caseDir, "output")
	if err := os.WriteFile(inputFile, input, 0o644); err != nil {
		return false, err
	}
	if err := os.WriteFile(answerFile, answer, 0o644); err != nil {
		return false, err
	}
	if err := os.WriteFile(outputFile, output, 0o644); err != nil {
		return false, err
	}

	res, err := compare.RunChecker(ctx, checkerPath, inputFile, answerFile, outputFile)
	if err != nil {
		return false, err
	}
	return res.Accepted, nil
}

// WorkerPool bounds how many tasks run concurrently, the Go
// equivalent of the source's fixed-size thread pool fed by a channel.
type WorkerPool struct {
	sem *semaphore.Weighted
}

// NewWorkerPool creates a pool that runs at most n tasks at once.
func NewWorkerPool(n int64) *WorkerPool {
	return &WorkerPool{sem: semaphore.NewWeighted(n)}
}

// Go blocks until a slot is free (or ctx is cancelled) then runs fn
// in its own goroutine, releasing the slot when fn returns.
func (p *WorkerPool) Go(ctx context.Context, fn func()) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	go func() {
		defer p.sem.Release(1)
		fn()
	}()
	return nil
}
