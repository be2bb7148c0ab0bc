// Copyright 2024 Metabolon. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Command rawspecdump is a thin example CLI exercising the rawspec library.
// It is not a full-featured command-line dispatcher — just enough to print
// metadata and a couple of chromatograms for manual inspection.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/metabolon/rawspec"
)

func main() {
	dumpCmd := flag.NewFlagSet("dump", flag.ExitOnError)
	wantMeta := dumpCmd.Bool("metadata", false, "Print container metadata")
	wantTIC := dumpCmd.Bool("tic", false, "Print the total ion chromatogram")
	wantBPC := dumpCmd.Bool("bpc", false, "Print the base peak chromatogram")
	wantXIC := dumpCmd.Float64("xic", 0, "Extract an ion chromatogram at this m/z")
	ppm := dumpCmd.Float64("ppm", 5.0, "XIC tolerance in ppm")
	mmap := dumpCmd.Bool("mmap", false, "Open the container with OpenMmap instead of Open")

	if len(os.Args) < 3 || os.Args[1] != "dump" {
		showHelp()
		os.Exit(1)
	}
	dumpCmd.Parse(os.Args[3:])
	path := os.Args[2]

	var (
		h   *rawspec.Handle
		err error
	)
	if *mmap {
		h, err = rawspec.OpenMmap(path, nil)
	} else {
		h, err = rawspec.Open(path, nil)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "rawspecdump: open %s: %v\n", path, err)
		os.Exit(1)
	}
	defer h.Close()

	if *wantMeta {
		printJSON(h.Metadata())
	}
	if *wantTIC {
		printJSON(h.TIC())
	}
	if *wantBPC {
		printJSON(h.BPC())
	}
	if *wantXIC != 0 {
		target := rawspec.XICTarget{MZ: *wantXIC, PPM: *ppm}
		points, err := h.XIC(context.Background(), target, 0, 0, 0)
		if err != nil {
			fmt.Fprintf(os.Stderr, "rawspecdump: xic: %v\n", err)
			os.Exit(1)
		}
		printJSON(points)
	}

	for _, a := range h.Anomalies() {
		fmt.Fprintf(os.Stderr, "rawspecdump: anomaly: %s\n", a)
	}
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}

func showHelp() {
	fmt.Fprintln(os.Stderr, "usage: rawspecdump dump <path> [-metadata] [-tic] [-bpc] [-xic mz] [-ppm n] [-mmap]")
}
