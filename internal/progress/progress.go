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

// Package progress reports fetch-and-descramble progress for a running
// book session, either as a tview/tcell terminal UI or, non-interactively,
// as periodic klog lines.
package progress

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	movingaverage "github.com/RobinUS2/golang-moving-average"
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"k8s.io/klog/v2"
)

// Tracker accumulates completion counts and per-page latency samples. It is
// safe for concurrent use by worker goroutines.
type Tracker struct {
	total     int32
	completed int32
	failed    int32
	latency   *movingaverage.MovingAverage
}

// NewTracker returns a Tracker expecting total pages, averaging latency
// over the last slots samples.
func NewTracker(total, slots int) *Tracker {
	if slots <= 0 {
		slots = 30
	}
	return &Tracker{total: int32(total), latency: movingaverage.New(slots)}
}

// RecordSuccess marks one page complete after it took d to fetch and
// descramble.
func (t *Tracker) RecordSuccess(d time.Duration) {
	atomic.AddInt32(&t.completed, 1)
	t.latency.Add(float64(d / time.Millisecond))
}

// RecordFailure marks one page as having failed (and been retried or
// counted against the error budget), without counting it towards Completed.
func (t *Tracker) RecordFailure() {
	atomic.AddInt32(&t.failed, 1)
}

// Snapshot is a point-in-time, race-free read of a Tracker's state.
type Snapshot struct {
	Completed, Failed, Total                int
	LatencyMinMs, LatencyAvgMs, LatencyMaxMs float64
}

// Snapshot reads the tracker's current state.
func (t *Tracker) Snapshot() Snapshot {
	min, _ := t.latency.Min()
	max, _ := t.latency.Max()
	return Snapshot{
		Completed:    int(atomic.LoadInt32(&t.completed)),
		Failed:       int(atomic.LoadInt32(&t.failed)),
		Total:        int(atomic.LoadInt32(&t.total)),
		LatencyMinMs: min,
		LatencyAvgMs: t.latency.Avg(),
		LatencyMaxMs: max,
	}
}

func (s Snapshot) String() string {
	return fmt.Sprintf("%d/%d pages (%d failed), latency %.0fms/%.0fms/%.0fms (min/avg/max)",
		s.Completed, s.Total, s.Failed, s.LatencyMinMs, s.LatencyAvgMs, s.LatencyMaxMs)
}

// RunHeadless logs t's snapshot every interval until ctx is cancelled, for
// use when --show_ui=false (or stdout isn't a terminal).
func RunHeadless(ctx context.Context, t *Tracker, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			klog.Infof("progress: %s", t.Snapshot())
		}
	}
}

// RunUI drives a tview terminal UI over t until the application exits (the
// user quits, or ctx is cancelled), mirroring the teacher's own status/log
// grid layout and periodic redraw ticker.
func RunUI(ctx context.Context, title string, t *Tracker) error {
	grid := tview.NewGrid()
	grid.SetRows(5, 0, 3).SetColumns(0).SetBorders(true)

	statusView := tview.NewTextView()
	statusView.SetBorder(true).SetTitle(title)
	grid.AddItem(statusView, 0, 0, 1, 1, 0, 0, false)

	logView := tview.NewTextView()
	logView.ScrollToEnd()
	logView.SetMaxLines(10000)
	grid.AddItem(logView, 1, 0, 1, 1, 0, 0, false)
	klog.SetOutput(logView)

	helpView := tview.NewTextView()
	helpView.SetText("q to quit")
	grid.AddItem(helpView, 2, 0, 1, 1, 0, 0, false)

	app := tview.NewApplication()
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	go func() {
		for {
			select {
			case <-ctx.Done():
				app.Stop()
				return
			case <-ticker.C:
				s := t.Snapshot()
				statusView.SetText(s.String())
				app.Draw()
				if s.Total > 0 && s.Completed+s.Failed >= s.Total {
					app.Stop()
					return
				}
			}
		}
	}()
	app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if event.Rune() == 'q' {
			app.Stop()
			return nil
		}
		return event
	})
	return app.SetRoot(grid, true).Run()
}
