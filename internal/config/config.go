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

// Package config resolves the daemon's CLI surface: flags, with
// env-var fallbacks, optionally overlaid by a YAML file. Unlike the
// teacher's reflection-based hot-reloadable Module/Snapshot system,
// this is read once at startup — the judge daemon has four knobs, not
// dozens of independently reloadable policy modules.
package config

import (
	"flag"
	"os"
	"strconv"

	"github.com/ghodss/yaml"
	"github.com/pkg/errors"
)

// Config is the daemon's fully resolved CLI surface, per spec.md §6.
type Config struct {
	Threads      int    `json:"threads"`
	RecvEndpoint string `json:"recvEndpoint"`
	SendEndpoint string `json:"sendEndpoint"`
	WorkDir      string `json:"workDir"`

	// BuildScripts overrides the per-language build-script table,
	// keyed by language name (e.g. "gcc", "g++", "python3"). Only the
	// YAML file can set this — there is no flag or env var for it,
	// since a shell script doesn't fit either surface cleanly.
	BuildScripts map[string]string `json:"buildScripts"`

	// SeccompProfilePath names a file of extra allowed syscalls (one
	// per line) merged into every sandboxed run's seccomp profile.
	// Same YAML-only surface as BuildScripts.
	SeccompProfilePath string `json:"seccompProfilePath"`
}

// DefaultThreads is the flag default for --threads (ANA_THREADS).
const DefaultThreads = 1

// Parse resolves flags from fs against args, falling back to the
// listed environment variables for unset flags, then overlays a YAML
// config file if one was named with --config. Flag and env
// precedence: an explicitly passed flag always wins; otherwise the
// env var; the YAML file supplies only the fields still at their
// zero value afterward. The --config flag itself is registered here
// rather than by the caller, since its value can only be read once
// fs.Parse has run.
func Parse(fs *flag.FlagSet, args []string) (*Config, error) {
	cfg := &Config{Threads: DefaultThreads}

	fs.IntVar(&cfg.Threads, "threads", DefaultThreads, "concurrent judges (ANA_THREADS)")
	fs.StringVar(&cfg.RecvEndpoint, "recv-endpoint", "", "task source endpoint")
	fs.StringVar(&cfg.SendEndpoint, "send-endpoint", "", "report sink endpoint")
	fs.StringVar(&cfg.WorkDir, "workdir", "", "root for per-task workspaces (ANA_WORK_DIR)")
	configFile := fs.String("config", "", "path to a YAML configuration overlay")

	if err := fs.Parse(args); err != nil {
		return nil, errors.Wrap(err, "config: parse flags")
	}

	threadsSet := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "threads" {
			threadsSet = true
		}
	})
	applyEnvFallback(fs, "threads", "ANA_THREADS", func(v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		cfg.Threads = n
		threadsSet = true
		return nil
	})
	applyEnvFallback(fs, "workdir", "ANA_WORK_DIR", func(v string) error {
		cfg.WorkDir = v
		return nil
	})

	if *configFile != "" {
		if err := overlayYAML(cfg, *configFile, threadsSet); err != nil {
			return nil, errors.Wrapf(err, "config: overlay %s", *configFile)
		}
	}

	if cfg.WorkDir == "" {
		dir, err := os.MkdirTemp("", "judged-")
		if err != nil {
			return nil, errors.Wrap(err, "config: create default workdir")
		}
		cfg.WorkDir = dir
	}

	return cfg, nil
}

// applyEnvFallback sets a field from envVar only if the corresponding
// flag was never explicitly passed on the command line.
func applyEnvFallback(fs *flag.FlagSet, flagName, envVar string, set func(string) error) {
	explicit := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == flagName {
			explicit = true
		}
	})
	if explicit {
		return
	}
	if v, ok := os.LookupEnv(envVar); ok {
		_ = set(v)
	}
}

// overlayYAML fills in any field of cfg still at its zero value from
// path, a YAML (or JSON, ghodss/yaml accepts both) file. Threads is
// taken from the file only when threadsSet is false, i.e. neither
// --threads nor ANA_THREADS supplied it.
func overlayYAML(cfg *Config, path string, threadsSet bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	overlay := &Config{}
	if err := yaml.Unmarshal(data, overlay); err != nil {
		return err
	}

	if !threadsSet && overlay.Threads != 0 {
		cfg.Threads = overlay.Threads
	}
	if cfg.RecvEndpoint == "" {
		cfg.RecvEndpoint = overlay.RecvEndpoint
	}
	if cfg.SendEndpoint == "" {
		cfg.SendEndpoint = overlay.SendEndpoint
	}
	if cfg.WorkDir == "" {
		cfg.WorkDir = overlay.WorkDir
	}
	if cfg.SeccompProfilePath == "" {
		cfg.SeccompProfilePath = overlay.SeccompProfilePath
	}
	if len(overlay.BuildScripts) > 0 {
		if cfg.BuildScripts == nil {
			cfg.BuildScripts = make(map[string]string, len(overlay.BuildScripts))
		}
		for lang, script := range overlay.BuildScripts {
			cfg.BuildScripts[lang] = script
		}
	}
	return nil
}
