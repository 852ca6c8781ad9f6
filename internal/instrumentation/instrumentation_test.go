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

package instrumentation

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ana-oj/judged/internal/cgroup"
	"github.com/ana-oj/judged/internal/cpuset"
)

func TestCollectorTracksInFlightAndVerdicts(t *testing.T) {
	c := NewCollector(cpuset.New(4))
	c.TaskStarted()
	c.TaskStarted()
	c.CaseJudged("AC")
	c.CaseJudged("AC")
	c.CaseJudged("WA")
	c.TaskFinished()

	if c.inFlight != 1 {
		t.Fatalf("expected 1 in-flight task, got %d", c.inFlight)
	}
	if c.verdicts["AC"] != 2 || c.verdicts["WA"] != 1 {
		t.Fatalf("unexpected verdict counts: %+v", c.verdicts)
	}
}

func TestCollectorSamplesLiveCaseUsage(t *testing.T) {
	prev := cgroup.GetMountDir()
	cgroup.SetMountDir(t.TempDir())
	defer cgroup.SetMountDir(prev)

	cg, err := cgroup.NewBuilder(nil).Name("case-sample").CPUAcct().Memory().Build(context.Background())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer cg.Close()

	cpuacctDir := filepath.Join(cgroup.GetMountDir(), "cpuacct", "ana", cg.Name())
	if err := os.WriteFile(filepath.Join(cpuacctDir, "cpuacct.usage"), []byte("500000000"), 0o644); err != nil {
		t.Fatalf("seed cpuacct.usage: %v", err)
	}
	memDir := filepath.Join(cgroup.GetMountDir(), "memory", "ana", cg.Name())
	if err := os.WriteFile(filepath.Join(memDir, "memory.max_usage_in_bytes"), []byte("2097152"), 0o644); err != nil {
		t.Fatalf("seed memory.max_usage_in_bytes: %v", err)
	}

	c := NewCollector(nil)
	c.CaseStarted("task-1-0", cg)

	ch := make(chan prometheus.Metric, 16)
	c.Collect(ch)
	close(ch)

	var sawCPU, sawMem bool
	for m := range ch {
		var pb dto.Metric
		if err := m.Write(&pb); err != nil {
			t.Fatalf("write metric: %v", err)
		}
		desc := m.Desc().String()
		switch {
		case strings.Contains(desc, "judged_case_cpu_seconds"):
			sawCPU = true
			if pb.GetGauge().GetValue() != 0.5 {
				t.Fatalf("expected 0.5s cpu time, got %v", pb.GetGauge().GetValue())
			}
		case strings.Contains(desc, "judged_case_peak_memory_bytes"):
			sawMem = true
			if pb.GetGauge().GetValue() != 2097152 {
				t.Fatalf("expected 2097152 bytes peak memory, got %v", pb.GetGauge().GetValue())
			}
		}
	}
	if !sawCPU || !sawMem {
		t.Fatalf("expected both case cpu-time and peak-memory metrics, got cpu=%v mem=%v", sawCPU, sawMem)
	}

	c.CaseFinished("task-1-0")
	ch2 := make(chan prometheus.Metric, 16)
	c.Collect(ch2)
	close(ch2)
	for m := range ch2 {
		if strings.Contains(m.Desc().String(), "judged_case_cpu_seconds") {
			t.Fatal("expected no per-case metric after CaseFinished")
		}
	}
}

func TestServerServesMetrics(t *testing.T) {
	c := NewCollector(cpuset.New(4))
	c.TaskStarted()

	srv, err := NewServer("127.0.0.1:0", c)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()
	time.Sleep(20 * time.Millisecond)

	resp, err := http.Get("http://" + srv.Addr() + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if !strings.Contains(string(body), "judged_cpuset_free_cpus") {
		t.Fatalf("expected cpuset metric in output, got %s", body)
	}
	if !strings.Contains(string(body), "judged_tasks_in_flight") {
		t.Fatalf("expected in-flight metric in output, got %s", body)
	}

	cancel()
	<-done
}
