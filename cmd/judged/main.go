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

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	logger "github.com/ana-oj/judged/internal/log"

	"github.com/ana-oj/judged/internal/config"
	"github.com/ana-oj/judged/internal/cpuset"
	"github.com/ana-oj/judged/internal/instrumentation"
	"github.com/ana-oj/judged/internal/judge"
	"github.com/ana-oj/judged/internal/pidfile"
	"github.com/ana-oj/judged/internal/sandbox"
	"github.com/ana-oj/judged/internal/transport"
	"github.com/ana-oj/judged/internal/version"
)

var log = logger.Default()

func main() {
	// A re-exec of ourselves arrives as argv[0] (after exec.Cmd's own
	// path) followed by sandbox.TrampolineArg: the pre-exec sequence
	// runs in-process here instead of the daemon, then syscall.Exec
	// replaces this process image with the candidate's.
	if len(os.Args) > 1 && os.Args[1] == sandbox.TrampolineArg {
		if err := sandbox.RunTrampoline(os.Args[2:]); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	runDaemon()
}

func runDaemon() {
	rate := logger.Rate{Limit: logger.Every(1 * time.Minute)}
	logger.SetGrpcLogger("grpc", &rate)
	logger.SetStdLogger("stdlog")

	metricsAddr := flag.String("metrics-addr", "127.0.0.1:9090", "address to serve /metrics on")
	pidFile := flag.String("pid-file", pidfile.GetPath(), "write the daemon PID here and refuse to start if it is already owned")
	printVersion := flag.Bool("version", false, "print version information and exit")

	cfg, err := config.Parse(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Error("configuration error: %v", err)
		os.Exit(1)
	}

	if *printVersion {
		version.PrintVersionInfo()
		return
	}

	pidfile.SetPath(*pidFile)
	if owner, err := pidfile.OwnerPid(); err != nil {
		log.Error("checking pidfile %s: %v", *pidFile, err)
		os.Exit(1)
	} else if owner != 0 {
		log.Error("judged already running as pid %d (pidfile %s)", owner, *pidFile)
		os.Exit(1)
	}
	if err := pidfile.Write(); err != nil {
		log.Error("writing pidfile %s: %v", *pidFile, err)
		os.Exit(1)
	}
	defer pidfile.Remove()

	logger.Flush()
	logger.SetupDebugToggleSignal(syscall.SIGUSR1)
	log.Info("judged starting (threads=%d, workdir=%s)", cfg.Threads, cfg.WorkDir)

	allocator := cpuset.New(runtime.NumCPU())
	collector := instrumentation.NewCollector(allocator)

	instSrv, err := instrumentation.NewServer(*metricsAddr, collector)
	if err != nil {
		log.Error("failed to set up instrumentation: %v", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("shutting down")
		cancel()
	}()

	go func() {
		if err := instSrv.Start(ctx); err != nil {
			log.Error("instrumentation server: %v", err)
		}
	}()

	if err := run(ctx, cfg, allocator, collector); err != nil && ctx.Err() == nil {
		log.Error("fatal: %v", err)
		os.Exit(1)
	}
}

// buildScriptOverrides translates a config file's language-name-keyed
// build-script overrides onto judge's Language type, starting from the
// built-in table so a config file only needs to name the languages it
// wants to change. Unrecognized language names are skipped rather than
// rejected, since a typo here shouldn't keep the daemon from starting.
func buildScriptOverrides(overrides map[string]string) map[judge.Language]string {
	scripts := judge.DefaultBuildScripts()
	for name, script := range overrides {
		lang := judge.ParseLanguage(name)
		if lang == judge.LanguageUnknown {
			log.Warn("config: ignoring build script override for unknown language %q", name)
			continue
		}
		scripts[lang] = script
	}
	return scripts
}

// run wires the orchestrator to the configured transport and drains
// tasks until the receiver signals EOF or ctx is cancelled.
func run(ctx context.Context, cfg *config.Config, allocator *cpuset.Allocator, collector *instrumentation.Collector) error {
	recv, err := transport.DialReceiver(cfg.RecvEndpoint)
	if err != nil {
		return fmt.Errorf("dial recv endpoint: %w", err)
	}
	defer recv.Close()

	send, err := transport.DialSender(cfg.SendEndpoint)
	if err != nil {
		return fmt.Errorf("dial send endpoint: %w", err)
	}
	defer send.Close()

	orch := judge.NewOrchestrator(allocator, cfg.WorkDir)
	orch.Builder = judge.NewBuilder(buildScriptOverrides(cfg.BuildScripts))
	orch.SeccompProfilePath = cfg.SeccompProfilePath
	orch.Collector = collector
	pool := judge.NewWorkerPool(int64(cfg.Threads))

	for {
		task, err := recv.Recv(ctx)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("receive task: %w", err)
		}

		collector.TaskStarted()
		err = pool.Go(ctx, func() {
			defer collector.TaskFinished()
			runErr := orch.Run(ctx, task, func(r judge.Report) {
				collector.CaseJudged(string(r.Verdict))
				if err := send.Send(ctx, r); err != nil {
					log.Warn("send report for task %s case %d: %v", r.TaskID, r.CaseIndex, err)
				}
			})
			if runErr != nil {
				log.Warn("task %s: %v", task.ID, runErr)
			}
		})
		if err != nil {
			return fmt.Errorf("schedule task %s: %w", task.ID, err)
		}
	}
}
