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
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/pkg/errors"

	"github.com/ana-oj/judged/internal/log"
)

var blog = log.NewLogger("builder")

// defaultBuildScripts maps a Language to the shell script its
// candidate is compiled with by default. $SOURCE_FILE, $EXECUTABLE_FILE
// and $TARGET_DIR are set by Build; cwd is the per-task runtime
// directory. A daemon config file may override entries per language,
// see Builder.
var defaultBuildScripts = map[Language]string{
	LanguageGCC:     `gcc -O2 -std=c11 -o "$EXECUTABLE_FILE" "$SOURCE_FILE"`,
	LanguageGXX:     `g++ -O2 -std=c++17 -o "$EXECUTABLE_FILE" "$SOURCE_FILE"`,
	LanguagePython3: `cp "$SOURCE_FILE" "$EXECUTABLE_FILE"`,
}

// DefaultBuildScripts returns a fresh copy of the built-in per-language
// build-script table, safe for a caller to mutate before handing to
// NewBuilder.
func DefaultBuildScripts() map[Language]string {
	scripts := make(map[Language]string, len(defaultBuildScripts))
	for lang, script := range defaultBuildScripts {
		scripts[lang] = script
	}
	return scripts
}

// defaultBuildTimeout bounds how long the external Builder may run
// before the orchestrator gives up and reports SystemError.
const defaultBuildTimeout = 10 * time.Second

// sourceFileNames gives each language its conventional source file
// extension so a compiler invoked by its usual name (gcc, g++) can
// infer the language from the suffix.
var sourceFileNames = map[Language]string{
	LanguageGCC:     "main.c",
	LanguageGXX:     "main.cpp",
	LanguagePython3: "main.py",
}

// BuildResult is what the external Builder produced.
type BuildResult struct {
	ExecutablePath string
	Stderr         string
}

// Builder compiles submissions using a per-language build-script
// table. The zero value is not usable; construct with NewBuilder.
type Builder struct {
	scripts map[Language]string
}

// NewBuilder constructs a Builder from scripts. A nil scripts uses
// DefaultBuildScripts(); a non-nil map is used as given, letting a
// daemon config file override individual languages while leaving
// others at their built-in default.
func NewBuilder(scripts map[Language]string) *Builder {
	if scripts == nil {
		scripts = DefaultBuildScripts()
	}
	return &Builder{scripts: scripts}
}

// Build stages src's code into dir, invokes the language's build
// script as `/bin/sh -c <script>` with SOURCE_FILE, EXECUTABLE_FILE
// and TARGET_DIR set (a cleared environment otherwise, matching the
// source's env_clear()), and returns the resulting executable's path.
// A non-zero exit is reported as a compile failure (ok == false, err
// == nil); a timeout or any other infrastructure error is returned as
// err.
func (b *Builder) Build(ctx context.Context, dir string, src Source) (res *BuildResult, ok bool, err error) {
	script, known := b.scripts[src.Language]
	if !known {
		return nil, false, errors.Errorf("judge: unsupported language %s", src.Language)
	}

	sourceFile := filepath.Join(dir, sourceFileNames[src.Language])
	executableFile := filepath.Join(dir, "executable")

	if err := os.WriteFile(sourceFile, []byte(src.Code), 0o644); err != nil {
		return nil, false, errors.Wrap(err, "judge: write source file")
	}

	buildCtx, cancel := context.WithTimeout(ctx, defaultBuildTimeout)
	defer cancel()

	cmd := exec.CommandContext(buildCtx, "/bin/sh", "-c", script)
	cmd.Dir = dir
	cmd.Env = []string{
		"SOURCE_FILE=" + sourceFile,
		"EXECUTABLE_FILE=" + executableFile,
		"TARGET_DIR=" + dir,
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if buildCtx.Err() == context.DeadlineExceeded {
		return nil, false, errors.New("judge: build timed out")
	}
	if runErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			return nil, false, errors.Wrap(runErr, "judge: run build script")
		}
		blog.Info("build failed for language %s: %v", src.Language, runErr)
		return &BuildResult{Stderr: stderr.String()}, false, nil
	}

	return &BuildResult{ExecutablePath: executableFile, Stderr: stderr.String()}, true, nil
}
