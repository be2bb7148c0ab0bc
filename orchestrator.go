// Copyright 2024 Metabolon. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package rawspec

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Options configures how a container is opened and how its scans are
// decoded. A nil *Options behaves like &Options{} with every field at its
// zero value.
type Options struct {
	// MaxReactionsPerScan bounds how many ReactionRecord entries
	// parseScanEvent will decode per scan event, guarding against a
	// corrupt reaction count field driving an unbounded read. Zero means
	// DefaultMaxReactionsPerScan.
	MaxReactionsPerScan uint32

	// Decode configures the per-scan peak decoders.
	Decode DecodeOptions

	// Logger receives diagnostic messages recorded via addAnomaly. A nil
	// Logger uses defaultLogger (stderr).
	Logger Logger

	// DisableMetrics skips Prometheus collector registration entirely,
	// for callers embedding rawspec in a process that manages its own
	// registry lifecycle.
	DisableMetrics bool
}

// DefaultMaxReactionsPerScan is used when Options.MaxReactionsPerScan is zero.
const DefaultMaxReactionsPerScan = 16

func (o *Options) maxReactions() uint32 {
	if o == nil || o.MaxReactionsPerScan == 0 {
		return DefaultMaxReactionsPerScan
	}
	return o.MaxReactionsPerScan
}

func (o *Options) logger() Logger {
	if o == nil || o.Logger == nil {
		return defaultLogger
	}
	return o.Logger
}

// Handle is an opened container. It owns its backing store (an in-memory
// buffer or an mmap region) and the structures resolved from it during
// Open/OpenMmap: the file header, the virtual controller table, the primary
// MS controller's run header, its scan index, and its trailer field-offset
// cache. A Handle is safe for concurrent read-only use by multiple
// goroutines once Open returns; Close must only be called once, after every
// other call has returned.
type Handle struct {
	src byteSource

	header         FileHeader
	fileInfoOffset uint32
	controllers    []ControllerDescriptor
	msController   ControllerDescriptor
	runHeader      RunHeader
	sampleInfo     SampleInfo

	scanIndex           []ScanIndexEntry
	scanIndexEntryStride uint32

	trailerLayout     TrailerLayout
	trailerStreamBase int64

	eventArrayBase int64
	eventSize      uint32
	packetBase     int64

	opts    Options
	logger  Logger
	metrics *metrics

	anomaliesMu sync.Mutex
	anomalies   []string
}

// Metadata summarizes an opened container's top-level identity, independent
// of any single scan.
type Metadata struct {
	Version         uint16
	NScans          int
	Controllers     []ControllerDescriptor
	FirstRT         float64
	LastRT          float64
	InstrumentModel string
	Serial          string
	SoftwareVersion string
	SampleName      string
	MzLow           float64
	MzHigh          float64
}

// Open reads path fully into memory and walks its container structures. Use
// OpenMmap instead for files too large to comfortably hold twice over.
func Open(path string, opts *Options) (*Handle, error) {
	src, err := newOwnedBuffer(path)
	if err != nil {
		return nil, err
	}
	return open(src, opts)
}

// OpenMmap memory-maps path read-only and walks its container structures
// without copying the whole file into the Go heap.
func OpenMmap(path string, opts *Options) (*Handle, error) {
	src, err := newMappedBuffer(path)
	if err != nil {
		return nil, err
	}
	return open(src, opts)
}

// OpenBytes walks an in-memory container buffer without any file I/O,
// exactly like Open but over a buffer the caller already owns.
func OpenBytes(data []byte, opts *Options) (*Handle, error) {
	return open(&ownedBuffer{data: data}, opts)
}

func open(src byteSource, opts *Options) (*Handle, error) {
	h := &Handle{src: src, logger: opts.logger()}
	if opts != nil {
		h.opts = *opts
	}
	if !h.opts.DisableMetrics {
		h.metrics = getMetrics()
	}

	if h.metrics != nil {
		start := time.Now()
		defer func() { h.metrics.openDuration.Observe(time.Since(start).Seconds()) }()
	}

	if err := h.parseFileHeader(); err != nil {
		src.Close()
		return nil, err
	}

	fileInfoOffset, err := h.locateFileInfo()
	if err != nil {
		src.Close()
		return nil, err
	}
	h.fileInfoOffset = fileInfoOffset

	controllers, err := h.parseControllerTable(fileInfoOffset)
	if err != nil {
		src.Close()
		return nil, err
	}
	h.controllers = controllers
	h.sampleInfo = h.parseSampleInfo(fileInfoOffset, len(controllers))

	msController, err := selectPrimaryMSController(controllers)
	if err != nil {
		src.Close()
		return nil, err
	}
	h.msController = msController

	runHeader, err := h.parseRunHeader(msController)
	if err != nil {
		src.Close()
		return nil, err
	}
	h.runHeader = runHeader
	h.packetBase = runHeader.PacketBaseAddr
	h.trailerStreamBase = runHeader.TrailerStreamAddr

	nScans, err := h.parseScanCount(msController)
	if err != nil {
		src.Close()
		return nil, err
	}

	// The scan index and the trailer field-offset cache are independent
	// reads over disjoint regions of the file; resolve them concurrently,
	// fanning out independent section parses and failing fast on whichever
	// returns an error first.
	var (
		scanIndex       []ScanIndexEntry
		scanIndexStride uint32
		trailerLayout   TrailerLayout
	)
	g := new(errgroup.Group)
	g.Go(func() error {
		entries, stride, err := h.parseScanIndex(runHeader, nScans)
		if err != nil {
			return err
		}
		scanIndex, scanIndexStride = entries, stride
		return nil
	})
	g.Go(func() error {
		layout, err := h.locateTrailerLayout(uint32(runHeader.ScanIndexAddr))
		if err != nil {
			return err
		}
		trailerLayout = layout
		return nil
	})
	if err := g.Wait(); err != nil {
		src.Close()
		return nil, err
	}
	h.scanIndex = scanIndex
	h.scanIndexEntryStride = scanIndexStride
	h.trailerLayout = trailerLayout

	if err := validateEventStreamAddr(runHeader, nScans, scanIndexStride); err != nil {
		src.Close()
		return nil, err
	}

	eventSize, err := deriveEventSize(runHeader.EventStreamAddr, h.packetBase, nScans)
	if err != nil {
		src.Close()
		return nil, err
	}
	h.eventArrayBase = runHeader.EventStreamAddr
	h.eventSize = eventSize

	return h, nil
}

// Close releases the backing store. After Close returns, no other method on
// h may be called.
func (h *Handle) Close() error {
	return h.src.Close()
}

// addAnomaly records a non-fatal deviation from the expected container shape
// discovered during Open or a later query, and forwards it to the
// configured Logger. Anomalies never abort Open; they exist so a caller can
// decide for itself whether a given deviation is acceptable.
func (h *Handle) addAnomaly(msg string) {
	h.anomaliesMu.Lock()
	h.anomalies = append(h.anomalies, msg)
	h.anomaliesMu.Unlock()
	if h.logger != nil {
		h.logger.Printf("%s", msg)
	}
}

// Anomalies returns every non-fatal deviation recorded so far, in the order
// encountered.
func (h *Handle) Anomalies() []string {
	h.anomaliesMu.Lock()
	defer h.anomaliesMu.Unlock()
	out := make([]string, len(h.anomalies))
	copy(out, h.anomalies)
	return out
}

// NScans returns the number of scans in the opened container's scan index.
func (h *Handle) NScans() int {
	return len(h.scanIndex)
}

// Metadata summarizes the opened container.
func (h *Handle) Metadata() Metadata {
	md := Metadata{
		Version:         h.header.Version,
		NScans:          len(h.scanIndex),
		Controllers:     append([]ControllerDescriptor(nil), h.controllers...),
		InstrumentModel: h.sampleInfo.InstrumentModel,
		Serial:          h.sampleInfo.Serial,
		SoftwareVersion: h.sampleInfo.SoftwareVersion,
		SampleName:      h.sampleInfo.SampleName,
	}
	if len(h.scanIndex) > 0 {
		md.FirstRT = h.scanIndex[0].RetentionTime
		md.LastRT = h.scanIndex[len(h.scanIndex)-1].RetentionTime
		md.MzLow = h.scanIndex[0].LowMass
		md.MzHigh = h.scanIndex[0].HighMass
		for _, e := range h.scanIndex[1:] {
			if e.LowMass < md.MzLow {
				md.MzLow = e.LowMass
			}
			if e.HighMass > md.MzHigh {
				md.MzHigh = e.HighMass
			}
		}
	}
	return md
}

// MSLevel returns the MS^n level of scan n (1-based) without decoding its
// peak data, by reading only the scan-event preamble.
func (h *Handle) MSLevel(scan int) (MSLevel, error) {
	event, err := h.scanEvent(scan)
	if err != nil {
		return 0, err
	}
	return event.MSLevel, nil
}

// scanEvent reads the fixed-width event-record preamble for scan n.
func (h *Handle) scanEvent(scan int) (ScanEventPreamble, error) {
	if scan < 1 || scan > len(h.scanIndex) {
		return ScanEventPreamble{}, &OutOfRangeError{Scan: scan, NScans: len(h.scanIndex)}
	}
	return h.parseScanEvent(scan, h.eventArrayBase, h.eventSize, h.opts.maxReactions())
}

// scanWindow returns the raw packet bytes for scan n, which start at the
// packet base plus the scan's data offset and are bounded by either the
// next scan's packet start or the trailer stream base, whichever comes
// first.
func (h *Handle) scanWindow(scan int) ([]byte, error) {
	entry := h.scanIndex[scan-1]
	start := uint32(h.packetBase + entry.DataOffset)

	end := uint32(h.trailerStreamBase)
	if scan < len(h.scanIndex) {
		next := uint32(h.packetBase + h.scanIndex[scan].DataOffset)
		if next > start && next < end {
			end = next
		}
	}
	if end <= start {
		return nil, &BoundsError{Offset: start, Need: 1, Have: h.src.Len()}
	}
	return h.src.ReadBytes(start, end-start)
}

// Scan decodes scan n's peak data. Every call re-reads and re-decodes from
// the backing store; no decoded scan is cached, so the result of Scan(n) is
// always idempotent with respect to the backing store's contents.
func (h *Handle) Scan(n int) (DecodedScan, error) {
	if n < 1 || n > len(h.scanIndex) {
		return DecodedScan{}, &OutOfRangeError{Scan: n, NScans: len(h.scanIndex)}
	}
	entry := h.scanIndex[n-1]

	event, err := h.scanEvent(n)
	if err != nil {
		return DecodedScan{}, err
	}
	window, err := h.scanWindow(n)
	if err != nil {
		return DecodedScan{}, err
	}

	var decodeStart time.Time
	if h.metrics != nil {
		decodeStart = time.Now()
	}
	scan, err := decodeScan(entry, window, event, h.opts.Decode)
	if h.metrics != nil {
		h.metrics.decodeDuration.Observe(time.Since(decodeStart).Seconds())
		if err != nil {
			h.metrics.decodeErrors.Inc()
		} else {
			h.metrics.scansDecoded.Inc()
		}
	}
	return scan, err
}

// ScanResult is one element of the channel returned by ScansParallel.
type ScanResult struct {
	Scan int
	Data DecodedScan
	Err  error
}

// ScansParallel decodes scans [lo, hi] (1-based, inclusive) concurrently,
// then streams results back on the returned channel in ascending
// scan-number order, per the ordering guarantee that every query emits in
// non-decreasing scan-number (and therefore non-decreasing retention-time)
// order even when the decode work underneath is unordered. The channel is
// closed once every scan has been emitted.
func (h *Handle) ScansParallel(ctx context.Context, lo, hi int) (<-chan ScanResult, error) {
	if lo < 1 || hi > len(h.scanIndex) || lo > hi {
		return nil, &OutOfRangeError{Scan: lo, NScans: len(h.scanIndex)}
	}

	results := make([]ScanResult, hi-lo+1)
	pool := newDecodePool()

	var wg sync.WaitGroup
	for n := lo; n <= hi; n++ {
		n := n
		wg.Add(1)
		pool.Submit(func() {
			defer wg.Done()
			select {
			case <-ctx.Done():
				results[n-lo] = ScanResult{Scan: n, Err: ErrCancelled}
				return
			default:
			}
			scan, err := h.Scan(n)
			results[n-lo] = ScanResult{Scan: n, Data: scan, Err: err}
		})
	}

	out := make(chan ScanResult, hi-lo+1)
	go func() {
		wg.Wait()
		pool.StopAndWait()
		for _, r := range results {
			out <- r
		}
		close(out)
	}()

	return out, nil
}
