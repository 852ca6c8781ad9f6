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

package config

import (
	"flag"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseDefaults(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	cfg, err := Parse(fs, nil)
	require.Nil(t, err)
	defer os.RemoveAll(cfg.WorkDir)

	require.Equal(t, DefaultThreads, cfg.Threads)
	require.NotEmpty(t, cfg.WorkDir)
}

func TestParseFlagOverridesEnv(t *testing.T) {
	t.Setenv("ANA_THREADS", "7")
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	cfg, err := Parse(fs, []string{"--threads", "3"})
	require.Nil(t, err)
	defer os.RemoveAll(cfg.WorkDir)

	require.Equal(t, 3, cfg.Threads)
}

func TestParseEnvFallbackWhenFlagUnset(t *testing.T) {
	t.Setenv("ANA_THREADS", "5")
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	cfg, err := Parse(fs, nil)
	require.Nil(t, err)
	defer os.RemoveAll(cfg.WorkDir)

	require.Equal(t, 5, cfg.Threads)
}

func TestParseYAMLOverlayFillsZeroFields(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "judged.yaml")
	content := "recvEndpoint: tcp://127.0.0.1:9000\nsendEndpoint: tcp://127.0.0.1:9001\n"
	require.Nil(t, os.WriteFile(yamlPath, []byte(content), 0o644))

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	cfg, err := Parse(fs, []string{"--config", yamlPath})
	require.Nil(t, err)
	defer os.RemoveAll(cfg.WorkDir)

	require.Equal(t, "tcp://127.0.0.1:9000", cfg.RecvEndpoint)
	require.Equal(t, "tcp://127.0.0.1:9001", cfg.SendEndpoint)
}

func TestParseYAMLOverlayFillsBuildScriptsAndSeccompPath(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "judged.yaml")
	content := "seccompProfilePath: /etc/judged/extra.profile\n" +
		"buildScripts:\n  python3: \"cp $SOURCE_FILE $EXECUTABLE_FILE\"\n"
	require.Nil(t, os.WriteFile(yamlPath, []byte(content), 0o644))

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	cfg, err := Parse(fs, []string{"--config", yamlPath})
	require.Nil(t, err)
	defer os.RemoveAll(cfg.WorkDir)

	require.Equal(t, "/etc/judged/extra.profile", cfg.SeccompProfilePath)
	require.Equal(t, "cp $SOURCE_FILE $EXECUTABLE_FILE", cfg.BuildScripts["python3"])
}

func TestParseExplicitWorkdirNotOverwritten(t *testing.T) {
	explicit := t.TempDir()
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	cfg, err := Parse(fs, []string{"--workdir", explicit})
	require.Nil(t, err)
	require.Equal(t, explicit, cfg.WorkDir)
}
