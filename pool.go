// Copyright 2024 Metabolon. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package rawspec

import (
	"runtime"

	"github.com/alitto/pond"
)

// decodePoolSize bounds how many scans are decoded concurrently by
// ScansParallel and the chromatogram engine's per-scan fan-out. GOMAXPROCS
// is a reasonable default since decoding is CPU-bound arithmetic over
// already-read bytes, not I/O.
func decodePoolSize() int {
	n := runtime.GOMAXPROCS(0)
	if n < 1 {
		return 1
	}
	return n
}

// newDecodePool returns a bounded worker pool sized to decodePoolSize, with
// an unbounded task queue since callers submit a known, finite batch of
// scans up front.
func newDecodePool() *pond.WorkerPool {
	return pond.New(decodePoolSize(), 0, pond.MinWorkers(decodePoolSize()))
}
