// Copyright 2024 Metabolon. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package rawspec

import (
	"context"
	"sort"
	"sync"
)

// ChromatogramPoint is one (retention time, intensity) sample of a
// chromatogram trace.
type ChromatogramPoint struct {
	RT        float64
	Intensity float64
}

// batchSweepThreshold is the target-count cutoff above which XICBatchMS1
// switches from per-peak binary search to a sorted two-pointer sweep, per
// the design notes' K<=64/K>64 split.
const batchSweepThreshold = 64

// TIC returns the total-ion-current trace: one point per scan, read
// directly from the scan index with no peak decoding.
func (h *Handle) TIC() []ChromatogramPoint {
	out := make([]ChromatogramPoint, len(h.scanIndex))
	for i, e := range h.scanIndex {
		out[i] = ChromatogramPoint{RT: e.RetentionTime, Intensity: e.TIC}
	}
	return out
}

// BPC returns the base-peak-intensity trace: one point per scan, read
// directly from the scan index with no peak decoding.
func (h *Handle) BPC() []ChromatogramPoint {
	out := make([]ChromatogramPoint, len(h.scanIndex))
	for i, e := range h.scanIndex {
		out[i] = ChromatogramPoint{RT: e.RetentionTime, Intensity: e.BasePeakIntensity}
	}
	return out
}

// XICTarget names one extracted-ion window: the tolerance is specified in
// ppm, so the absolute Dalton half-width scales with MZ, and every peak
// within [MZ-toleranceDa, MZ+toleranceDa] contributes to the trace's
// intensity at that scan. PPM == 0 collapses the window to MZ itself,
// matching only an exact m/z value.
type XICTarget struct {
	MZ  float64
	PPM float64
}

func (t XICTarget) toleranceDa() float64 { return t.MZ * t.PPM / 1e6 }

func (t XICTarget) lowMZ() float64  { return t.MZ - t.toleranceDa() }
func (t XICTarget) highMZ() float64 { return t.MZ + t.toleranceDa() }

// indexedTarget pairs a batch XIC target with its position in the caller's
// original (unsorted) target slice, so results can be returned in the
// order the caller gave them.
type indexedTarget struct {
	XICTarget
	orig int
}

// rtBounds returns the [lo, hi) scan-index range (0-based) whose retention
// time falls within [rtLo, rtHi]. rtLo==rtHi==0 selects the whole index.
func (h *Handle) rtBounds(rtLo, rtHi float64) (int, int) {
	if rtLo == 0 && rtHi == 0 {
		return 0, len(h.scanIndex)
	}
	lo := scanIndexTimeToScan(h.scanIndex, rtLo)
	hi := scanIndexTimeToScan(h.scanIndex, rtHi)
	for hi < len(h.scanIndex) && h.scanIndex[hi].RetentionTime == rtHi {
		hi++
	}
	return lo, hi
}

// candidateScansForWindow returns the 0-based scan-index positions within
// [lo, hi) whose own [LowMass, HighMass] overlaps [winLo, winHi], the cheap
// scan-index-only prefilter performed before any packet is decoded.
func (h *Handle) candidateScansForWindow(lo, hi int, winLo, winHi float64) []int {
	out := make([]int, 0, hi-lo)
	for i := lo; i < hi; i++ {
		e := h.scanIndex[i]
		if e.HighMass >= winLo && e.LowMass <= winHi {
			out = append(out, i)
		}
	}
	return out
}

// sumIntensityInWindow sums every peak's intensity whose m/z falls within
// [lo, hi], preferring the decoded profile samples when present and falling
// back to centroids.
func sumIntensityInWindow(scan DecodedScan, lo, hi float64) float64 {
	peaks := scan.Profile
	if len(peaks) == 0 {
		peaks = scan.Centroids
	}
	// Peaks are produced in ascending m/z order by every decoder in this
	// package, so a linear scan bounded by a binary-search start is enough;
	// a single target's window rarely spans more than a handful of peaks.
	start := sort.Search(len(peaks), func(i int) bool { return peaks[i].MZ >= lo })
	var sum float64
	for i := start; i < len(peaks) && peaks[i].MZ <= hi; i++ {
		sum += peaks[i].Intensity
	}
	return sum
}

// XIC extracts a single ion chromatogram over [rtLo, rtHi] (both zero
// selects the full run), optionally restricted to scans at the given MS
// level (zero value MSLevel(0) means "any level"). It returns one point per
// selected scan; scans whose mass range does not overlap the target window
// report zero intensity.
func (h *Handle) XIC(ctx context.Context, target XICTarget, level MSLevel, rtLo, rtHi float64) ([]ChromatogramPoint, error) {
	lo, hi := h.rtBounds(rtLo, rtHi)
	overlaps := make(map[int]bool, hi-lo)
	for _, idx := range h.candidateScansForWindow(lo, hi, target.lowMZ(), target.highMZ()) {
		overlaps[idx] = true
	}
	candidates := make([]int, 0, hi-lo)
	for i := lo; i < hi; i++ {
		candidates = append(candidates, i)
	}

	if level != 0 {
		filtered := candidates[:0]
		for _, idx := range candidates {
			ev, err := h.scanEvent(idx + 1)
			if err != nil {
				return nil, err
			}
			if ev.MSLevel == level {
				filtered = append(filtered, idx)
			}
		}
		candidates = filtered
	}

	points := make([]ChromatogramPoint, len(candidates))
	errs := make([]error, len(candidates))
	pool := newDecodePool()
	var wg sync.WaitGroup

	for row, scanIdx := range candidates {
		row, scanIdx := row, scanIdx
		// A scan whose mass range misses the target window is never decoded
		// and keeps a zero-intensity point at its retention time.
		points[row] = ChromatogramPoint{RT: h.scanIndex[scanIdx].RetentionTime}
		if !overlaps[scanIdx] {
			continue
		}
		wg.Add(1)
		pool.Submit(func() {
			defer wg.Done()
			select {
			case <-ctx.Done():
				errs[row] = ErrCancelled
				return
			default:
			}
			scan, err := h.Scan(scanIdx + 1)
			if err != nil {
				errs[row] = err
				return
			}
			points[row] = ChromatogramPoint{
				RT:        h.scanIndex[scanIdx].RetentionTime,
				Intensity: sumIntensityInWindow(scan, target.lowMZ(), target.highMZ()),
			}
		})
	}
	wg.Wait()
	pool.StopAndWait()

	for _, e := range errs {
		if e != nil {
			return nil, e
		}
	}
	return points, nil
}

// XICBatchMS1 extracts many ion chromatograms over the same RT window and
// MS1-only scan set in a single pass: one decode per scan, fanned out
// across workers, rather than one decode-pass per target. Targets need not
// be pre-sorted by the caller; they are sorted internally and the result is
// returned in the caller's original order.
func (h *Handle) XICBatchMS1(ctx context.Context, targets []XICTarget, rtLo, rtHi float64) ([][]ChromatogramPoint, error) {
	if len(targets) == 0 {
		return nil, nil
	}

	sorted := make([]indexedTarget, len(targets))
	for i, t := range targets {
		sorted[i] = indexedTarget{XICTarget: t, orig: i}
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].lowMZ() < sorted[j].lowMZ() })

	lo, hi := h.rtBounds(rtLo, rtHi)

	scans := make([]int, 0, hi-lo)
	for i := lo; i < hi; i++ {
		ev, err := h.scanEvent(i + 1)
		if err != nil {
			return nil, err
		}
		if ev.MSLevel == Ms1 {
			scans = append(scans, i)
		}
	}

	nRows := len(scans)
	nTargets := len(sorted)
	matrix := make([][]float64, nRows)
	for i := range matrix {
		matrix[i] = make([]float64, nTargets)
	}
	rts := make([]float64, nRows)
	errs := make([]error, nRows)

	pool := newDecodePool()
	var wg sync.WaitGroup

	for row, scanIdx := range scans {
		row, scanIdx := row, scanIdx
		wg.Add(1)
		pool.Submit(func() {
			defer wg.Done()
			select {
			case <-ctx.Done():
				errs[row] = ErrCancelled
				return
			default:
			}
			scan, err := h.Scan(scanIdx + 1)
			if err != nil {
				errs[row] = err
				return
			}
			rts[row] = h.scanIndex[scanIdx].RetentionTime

			peaks := scan.Profile
			if len(peaks) == 0 {
				peaks = scan.Centroids
			}
			if nTargets <= batchSweepThreshold {
				accumulateByBinarySearch(peaks, sorted, matrix[row])
			} else {
				accumulateBySweep(peaks, sorted, matrix[row])
			}
		})
	}
	wg.Wait()
	pool.StopAndWait()

	for _, e := range errs {
		if e != nil {
			return nil, e
		}
	}

	out := make([][]ChromatogramPoint, len(targets))
	for col, t := range sorted {
		pts := make([]ChromatogramPoint, nRows)
		for row := range scans {
			pts[row] = ChromatogramPoint{RT: rts[row], Intensity: matrix[row][col]}
		}
		out[t.orig] = pts
	}
	return out, nil
}

// accumulateByBinarySearch runs one binary search over the m/z-sorted peaks
// per target: it finds the first peak at or above the target's low bound and
// sums intensities forward while the m/z stays within the high bound, so a
// peak contributes to every target whose window contains it. Appropriate
// when the target count is small enough that K searches beat a linear sweep.
func accumulateByBinarySearch(peaks []Peak, sorted []indexedTarget, row []float64) {
	for col, t := range sorted {
		lo, hi := t.lowMZ(), t.highMZ()
		i := sort.Search(len(peaks), func(i int) bool { return peaks[i].MZ >= lo })
		for ; i < len(peaks) && peaks[i].MZ <= hi; i++ {
			row[col] += peaks[i].Intensity
		}
	}
}

// accumulateBySweep assigns peaks to every target window that contains them
// with a two-pointer merge over the peaks (sorted by m/z) and the targets
// (sorted by low bound): t advances
// past targets whose high bound has fallen behind the current peak, and
// every target from there up to the first whose low bound exceeds the peak
// (windows may overlap, so more than one target can claim the same peak)
// receives the peak's intensity. Amortizes to O(peaks+targets) when the
// target count is large enough that per-peak binary search would dominate.
func accumulateBySweep(peaks []Peak, sorted []indexedTarget, row []float64) {
	t := 0
	for _, p := range peaks {
		for t < len(sorted) && sorted[t].highMZ() < p.MZ {
			t++
		}
		for j := t; j < len(sorted) && sorted[j].lowMZ() <= p.MZ; j++ {
			if p.MZ <= sorted[j].highMZ() {
				row[j] += p.Intensity
			}
		}
	}
}
