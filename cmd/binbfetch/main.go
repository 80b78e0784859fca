// Copyright 2024 The Tessera authors. All Rights Reserved.
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

// binbfetch fetches and reconstructs the pages of a BinB-hosted book.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"k8s.io/klog/v2"

	"github.com/binbreader/binbreader"
	"github.com/binbreader/binbreader/internal/binbapi"
	"github.com/binbreader/binbreader/internal/pack"
	"github.com/binbreader/binbreader/internal/pool"
	"github.com/binbreader/binbreader/internal/progress"
)

var (
	bibBase = flag.String("bib_base", "", "Base URL of the book's bib/ metadata endpoint, e.g. https://example.com/bibGetCntntInfo.php's parent directory")
	cid     = flag.String("cid", "", "Content ID of the book to fetch")

	pageStart = flag.Int("page_start", 1, "1-based index of the first page to fetch")
	pageEnd   = flag.String("page_end", "end", `Last page to fetch: "end" or a 1-based page number`)

	lossless = flag.Bool("lossless", false, "Write PNG instead of JPEG")
	threads  = flag.Int("threads", 10, "Number of concurrent fetch workers")

	metadata             = flag.Bool("metadata", true, "Write a metadata.json alongside (or inside) the output")
	zipIt                = flag.Bool("zip_it", true, "Package the output as a single zip archive instead of a directory")
	additionalZipContent = flag.String("additional_zip_content", "", "Comma-separated list of extra file paths to bundle into the zip archive")

	outputPath = flag.String("output", "", "Output zip file or directory path; defaults to the content ID in the current directory")

	username = flag.String("username", "", "Forwarded to a caller-supplied login hook; unused by this binary directly")
	password = flag.String("password", "", "Forwarded to a caller-supplied login hook; unused by this binary directly")

	forceHTTP2 = flag.Bool("force_http2", false, "Force HTTP/2 for the book's API client")
	showUI     = flag.Bool("show_ui", true, "Set to false to disable the text-based progress UI")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cfg, outPath, err := configFromFlags()
	if err != nil {
		klog.Errorf("binbfetch: %v", err)
		os.Exit(1)
	}

	// loginHook is deliberately nil: site-specific login flows are out of
	// scope for this binary. A fork that needs one can supply its own
	// binbreader.LoginHook value here without touching the core packages.
	var loginHook binbreader.LoginHook

	sess, err := binbreader.NewBookSession(ctx, *bibBase, *cid, loginHook, cfg)
	if err != nil {
		klog.Errorf("binbfetch: opening book session: %v", err)
		os.Exit(1)
	}

	start, end, err := sess.PageRange()
	if err != nil {
		klog.Errorf("binbfetch: %v", err)
		os.Exit(1)
	}

	items := make([]int, 0, end-start+1)
	for i := start; i <= end; i++ {
		items = append(items, i-1)
	}

	tracker := progress.NewTracker(len(items), 30)

	p := &pool.Pool{
		Concurrency: cfg.Threads,
		DoOne: func(ctx context.Context, item int) (pool.Result, error) {
			t0 := time.Now()
			filename, data, err := sess.FetchAndDescramble(ctx, item)
			if err != nil {
				tracker.RecordFailure()
				return pool.Result{}, err
			}
			tracker.RecordSuccess(time.Since(t0))
			return pool.Result{Filename: filename, Data: data}, nil
		},
	}

	packager, err := newPackager(outPath, sess.Metadata(), *zipIt, *metadata, extraPaths())
	if err != nil {
		klog.Errorf("binbfetch: %v", err)
		os.Exit(1)
	}

	if *showUI {
		go func() {
			if err := progress.RunUI(ctx, *cid, tracker); err != nil {
				klog.Errorf("binbfetch: progress UI: %v", err)
			}
		}()
	} else {
		go progress.RunHeadless(ctx, tracker, 5*time.Second)
	}

	handle := p.Run(ctx, items)
	delivery := pool.NewBufferedDelivery(packager, 20, 2*time.Second)
	if err := pool.DrainInto(handle, delivery); err != nil {
		klog.Errorf("binbfetch: %v", err)
		os.Exit(2)
	}

	klog.Infof("binbfetch: wrote %d pages to %q", tracker.Snapshot().Completed, outPath)
}

func extraPaths() []string {
	if *additionalZipContent == "" {
		return nil
	}
	parts := strings.Split(*additionalZipContent, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func newPackager(outPath string, meta any, zip, withMetadata bool, extra []string) (*pack.Packager, error) {
	if zip {
		return pack.NewZipPackager(outPath, meta, withMetadata, extra)
	}
	return pack.NewDirPackager(outPath, meta, withMetadata)
}

// configFromFlags validates and translates the package-level flags into a
// binbreader.Config plus the resolved output path.
func configFromFlags() (binbreader.Config, string, error) {
	if *bibBase == "" || *cid == "" {
		return binbreader.Config{}, "", fmt.Errorf("-bib_base and -cid are both required")
	}

	end := binbreader.PageEnd{All: true}
	if *pageEnd != "end" {
		n, err := strconv.Atoi(*pageEnd)
		if err != nil {
			return binbreader.Config{}, "", fmt.Errorf("-page_end must be \"end\" or an integer: %w", err)
		}
		end = binbreader.PageEnd{Index: n}
	}

	out := *outputPath
	if out == "" {
		out = *cid
		if *zipIt {
			out += ".zip"
		}
	}

	cfg := binbreader.Config{
		PageStart: *pageStart,
		PageEnd:   end,
		Lossless:  *lossless,
		Threads:   *threads,
		Username:  *username,
		Password:  *password,
		HTTP: binbapi.Config{
			ForceHTTP2: *forceHTTP2,
		},
	}
	return cfg, out, nil
}
