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

// Package compare decides whether a candidate's output matches a
// problem's reference answer, either via the built-in line comparer
// or by dispatching to an external checker program.
package compare

import (
	"bufio"
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/pkg/errors"
)

// Options toggles the two built-in line-comparer relaxations, both
// on by default.
type Options struct {
	TrimTrailingWhitespace  bool
	IgnoreTrailingEmptyLine bool
}

// DefaultOptions matches spec's default-true toggles.
func DefaultOptions() Options {
	return Options{TrimTrailingWhitespace: true, IgnoreTrailingEmptyLine: true}
}

// Equal runs the built-in line comparer over candidate output and the
// reference answer. Comparison is byte-wise; invalid UTF-8 is not an
// error.
func Equal(output, answer []byte, opts Options) bool {
	a := bufio.NewScanner(bytes.NewReader(output))
	b := bufio.NewScanner(bytes.NewReader(answer))
	a.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	b.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	for {
		aLine, aOK := nextLine(a)
		bLine, bOK := nextLine(b)

		switch {
		case aOK && bOK:
			if !linesEqual(aLine, bLine, opts) {
				return false
			}
		case aOK != bOK:
			// Exactly one side has a line; the other is at EOF.
			line := aLine
			if bOK {
				line = bLine
			}
			if opts.IgnoreTrailingEmptyLine && len(stripEOL(line, opts)) == 0 {
				continue
			}
			return false
		default: // both exhausted
			return true
		}
	}
}

func nextLine(s *bufio.Scanner) ([]byte, bool) {
	if s.Scan() {
		return s.Bytes(), true
	}
	return nil, false
}

func linesEqual(a, b []byte, opts Options) bool {
	return bytes.Equal(stripEOL(a, opts), stripEOL(b, opts))
}

func stripEOL(line []byte, opts Options) []byte {
	if !opts.TrimTrailingWhitespace {
		return line
	}
	return bytes.TrimRight(line, " \t\r\v\f")
}

// CheckerResult is an external checker's verdict.
type CheckerResult struct {
	Accepted bool
	ExitCode int
	Stderr   string
}

// RunChecker spawns an external checker as `checker input_file
// answer_file output_file`: exit 0 means accepted, any other exit
// code means wrong answer. The checker itself is not time- or
// memory-limited in this version.
func RunChecker(ctx context.Context, checkerPath string, inputFile, answerFile, outputFile string) (*CheckerResult, error) {
	for _, f := range []string{inputFile, answerFile, outputFile} {
		if _, err := os.Stat(f); err != nil {
			return nil, errors.Wrapf(err, "compare: checker input %s", filepath.Base(f))
		}
	}

	cmd := exec.CommandContext(ctx, checkerPath, inputFile, answerFile, outputFile)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := &CheckerResult{Stderr: stderr.String()}

	if err == nil {
		res.Accepted = true
		return res, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		res.Accepted = false
		return res, nil
	}
	return nil, errors.Wrap(err, "compare: run checker")
}
