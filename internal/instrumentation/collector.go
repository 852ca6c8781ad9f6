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

// Package instrumentation exposes the engine's internal state —
// free cpuset capacity and in-flight task counts — as Prometheus
// metrics over an HTTP /metrics endpoint.
package instrumentation

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ana-oj/judged/internal/cgroup"
	"github.com/ana-oj/judged/internal/cpuset"
	"github.com/ana-oj/judged/internal/log"
)

var ilog = log.NewLogger("instrumentation")

const (
	cpusetFreeDesc = iota
	cpusetTotalDesc
	tasksInFlightDesc
	casesJudgedDesc
	caseCPUTimeDesc
	casePeakMemoryDesc
	numDescriptors
)

var descriptors = [numDescriptors]*prometheus.Desc{
	cpusetFreeDesc: prometheus.NewDesc(
		"judged_cpuset_free_cpus",
		"Number of CPUs currently unallocated in the judge's cpuset pool.",
		nil, nil,
	),
	cpusetTotalDesc: prometheus.NewDesc(
		"judged_cpuset_total_cpus",
		"Total number of CPUs managed by the judge's cpuset pool.",
		nil, nil,
	),
	tasksInFlightDesc: prometheus.NewDesc(
		"judged_tasks_in_flight",
		"Number of submissions currently being judged.",
		nil, nil,
	),
	casesJudgedDesc: prometheus.NewDesc(
		"judged_cases_judged_total",
		"Total test cases judged so far, by verdict.",
		[]string{"verdict"}, nil,
	),
	caseCPUTimeDesc: prometheus.NewDesc(
		"judged_case_cpu_seconds",
		"cpuacct.usage of an in-flight case's cgroup, sampled at scrape time.",
		[]string{"case"}, nil,
	),
	casePeakMemoryDesc: prometheus.NewDesc(
		"judged_case_peak_memory_bytes",
		"memory.max_usage_in_bytes of an in-flight case's cgroup, sampled at scrape time.",
		[]string{"case"}, nil,
	),
}

// Collector gathers the running engine's state at scrape time. It
// implements prometheus.Collector.
type Collector struct {
	allocator *cpuset.Allocator

	mu       sync.Mutex
	inFlight int
	verdicts map[string]uint64
	cases    map[string]*cgroup.Context
}

// NewCollector creates a Collector reading live state from allocator.
func NewCollector(allocator *cpuset.Allocator) *Collector {
	return &Collector{
		allocator: allocator,
		verdicts:  make(map[string]uint64),
		cases:     make(map[string]*cgroup.Context),
	}
}

// CaseStarted registers cg under id so Collect can sample its live
// resource usage until CaseFinished removes it. id should be unique
// per in-flight case (task ID plus case index is enough).
func (c *Collector) CaseStarted(id string, cg *cgroup.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cases[id] = cg
}

// CaseFinished stops sampling id's cgroup, once its case has reported
// a verdict and the cgroup itself is about to be torn down.
func (c *Collector) CaseFinished(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.cases, id)
}

// TaskStarted increments the in-flight task gauge. Call it once per
// task accepted by the orchestrator.
func (c *Collector) TaskStarted() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inFlight++
}

// TaskFinished decrements the in-flight task gauge.
func (c *Collector) TaskFinished() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inFlight--
}

// CaseJudged records one more case judged with the given verdict.
func (c *Collector) CaseJudged(verdict string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.verdicts[verdict]++
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range descriptors {
		ch <- d
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	if c.allocator != nil {
		ch <- prometheus.MustNewConstMetric(descriptors[cpusetFreeDesc], prometheus.GaugeValue, float64(c.allocator.Avail()))
		ch <- prometheus.MustNewConstMetric(descriptors[cpusetTotalDesc], prometheus.GaugeValue, float64(c.allocator.NCPU()))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	ch <- prometheus.MustNewConstMetric(descriptors[tasksInFlightDesc], prometheus.GaugeValue, float64(c.inFlight))
	for verdict, count := range c.verdicts {
		ch <- prometheus.MustNewConstMetric(descriptors[casesJudgedDesc], prometheus.CounterValue, float64(count), verdict)
	}
	for id, cg := range c.cases {
		cpuTime, peakMemory, err := cgroup.Usage(cg)
		if err != nil {
			ilog.Warn("sample usage for case %s: %v", id, err)
			continue
		}
		ch <- prometheus.MustNewConstMetric(descriptors[caseCPUTimeDesc], prometheus.GaugeValue, cpuTime.Seconds(), id)
		ch <- prometheus.MustNewConstMetric(descriptors[casePeakMemoryDesc], prometheus.GaugeValue, float64(peakMemory), id)
	}
}
