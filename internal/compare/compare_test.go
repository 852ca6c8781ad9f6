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

package compare

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestEqualExactMatch(t *testing.T) {
	if !Equal([]byte("1 2 3\n"), []byte("1 2 3\n"), DefaultOptions()) {
		t.Fatal("expected exact match to be equal")
	}
}

func TestEqualTrimsTrailingWhitespace(t *testing.T) {
	if !Equal([]byte("42   \n"), []byte("42\n"), DefaultOptions()) {
		t.Fatal("expected trailing whitespace to be trimmed by default")
	}
}

func TestEqualRejectsTrailingWhitespaceWhenDisabled(t *testing.T) {
	opts := DefaultOptions()
	opts.TrimTrailingWhitespace = false
	if Equal([]byte("42   \n"), []byte("42\n"), opts) {
		t.Fatal("expected trailing whitespace to matter when trimming disabled")
	}
}

func TestEqualIgnoresTrailingEmptyLine(t *testing.T) {
	if !Equal([]byte("a\nb\n"), []byte("a\nb\n\n"), DefaultOptions()) {
		t.Fatal("expected a trailing empty line to be tolerated")
	}
}

func TestEqualTrailingNonEmptyLineAlwaysDiffers(t *testing.T) {
	if Equal([]byte("a\nb\n"), []byte("a\nb\nc\n"), DefaultOptions()) {
		t.Fatal("expected a non-empty trailing line to cause a mismatch")
	}
}

func TestEqualDisablingIgnoreTrailingEmptyRejectsExtraLine(t *testing.T) {
	opts := DefaultOptions()
	opts.IgnoreTrailingEmptyLine = false
	if Equal([]byte("a\nb\n"), []byte("a\nb\n\n"), opts) {
		t.Fatal("expected trailing empty line to matter when the toggle is off")
	}
}

func TestEqualIsSymmetric(t *testing.T) {
	a := []byte("x\ny\n")
	b := []byte("x\ny\n\n")
	if Equal(a, b, DefaultOptions()) != Equal(b, a, DefaultOptions()) {
		t.Fatal("expected Equal to be symmetric")
	}
}

func TestEqualBinarySafe(t *testing.T) {
	invalid := []byte{0xff, 0xfe, '\n'}
	if !Equal(invalid, invalid, DefaultOptions()) {
		t.Fatal("expected identical invalid-UTF-8 byte streams to compare equal")
	}
}

func TestRunCheckerAccepts(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "in")
	answer := filepath.Join(dir, "ans")
	output := filepath.Join(dir, "out")
	for _, f := range []string{input, answer, output} {
		if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
			t.Fatalf("seed %s: %v", f, err)
		}
	}

	checker := filepath.Join(dir, "checker.sh")
	if err := os.WriteFile(checker, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatalf("write checker: %v", err)
	}

	res, err := RunChecker(context.Background(), checker, input, answer, output)
	if err != nil {
		t.Fatalf("RunChecker: %v", err)
	}
	if !res.Accepted {
		t.Fatal("expected checker exiting 0 to accept")
	}
}

func TestRunCheckerRejects(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "in")
	answer := filepath.Join(dir, "ans")
	output := filepath.Join(dir, "out")
	for _, f := range []string{input, answer, output} {
		if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
			t.Fatalf("seed %s: %v", f, err)
		}
	}

	checker := filepath.Join(dir, "checker.sh")
	if err := os.WriteFile(checker, []byte("#!/bin/sh\nexit 1\n"), 0o755); err != nil {
		t.Fatalf("write checker: %v", err)
	}

	res, err := RunChecker(context.Background(), checker, input, answer, output)
	if err != nil {
		t.Fatalf("RunChecker: %v", err)
	}
	if res.Accepted {
		t.Fatal("expected checker exiting non-zero to reject")
	}
}
