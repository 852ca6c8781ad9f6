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

package sandbox

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"syscall"

	"golang.org/x/time/rate"
)

// procsAttachRetries bounds the write attempts (the first one plus two
// retries) on a transient EBUSY writing cgroup.procs during attach.
// The kernel can return EBUSY for a brief
// window while a sibling task is still being moved between
// hierarchies; retrying a handful of times clears it without the
// launcher ever seeing a spurious failure.
const procsAttachRetries = 3

func writeProcsWithRetry(dir, pid string) error {
	limiter := rate.NewLimiter(rate.Limit(20), 1) // ~50ms between attempts
	path := filepath.Join(dir, "cgroup.procs")

	var lastErr error
	for attempt := 0; attempt < procsAttachRetries; attempt++ {
		// The first Wait spends the limiter's initial token at once;
		// every later one blocks for the ~50ms refill.
		_ = limiter.Wait(context.Background())
		lastErr = os.WriteFile(path, []byte(pid), 0o644)
		if lastErr == nil {
			return nil
		}
		if !errors.Is(lastErr, syscall.EBUSY) {
			return lastErr
		}
	}
	return lastErr
}
