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

package pool

import (
	"time"

	"github.com/globocom/go-buffer"
	"k8s.io/klog/v2"
)

// Sink receives batches of delivered results, e.g. an archive writer.
type Sink interface {
	WriteBatch(items []Result) error
}

// BufferedDelivery batches Results pushed onto it and flushes them to a
// Sink on a size or time trigger, so a slow archive writer doesn't take a
// lock per page. Grounded on the same go-buffer usage pattern the teacher
// uses to batch deduplicated log entries before writing them out.
type BufferedDelivery struct {
	buf  *buffer.Buffer
	sink Sink
}

// NewBufferedDelivery wires a BufferedDelivery flushing to sink, batching
// up to size items or flushInterval, whichever comes first.
func NewBufferedDelivery(sink Sink, size int, flushInterval time.Duration) *BufferedDelivery {
	d := &BufferedDelivery{sink: sink}
	d.buf = buffer.New(
		buffer.WithSize(size),
		buffer.WithFlushInterval(flushInterval),
		buffer.WithFlusher(buffer.FlusherFunc(d.flush)),
		buffer.WithPushTimeout(15*time.Second),
	)
	return d
}

// Push enqueues one result for the next flush.
func (d *BufferedDelivery) Push(r Result) error {
	return d.buf.Push(r)
}

// Close flushes any remaining buffered results and stops the buffer.
func (d *BufferedDelivery) Close() error {
	return d.buf.Close()
}

func (d *BufferedDelivery) flush(items []interface{}) {
	batch := make([]Result, 0, len(items))
	for _, it := range items {
		r, ok := it.(Result)
		if !ok {
			continue
		}
		batch = append(batch, r)
	}
	if len(batch) == 0 {
		return
	}
	if err := d.sink.WriteBatch(batch); err != nil {
		klog.Errorf("pool: flushing batch of %d results: %v", len(batch), err)
	}
}

// DrainInto ranges over h's results, pushing each into d, then closes d
// once the pool finishes. It returns the pool's terminal error.
func DrainInto(h *Handle, d *BufferedDelivery) error {
	for r := range h.Results() {
		if err := d.Push(r); err != nil {
			klog.Warningf("pool: pushing result %q into buffer: %v", r.Filename, err)
		}
	}
	err := h.Wait()
	if cerr := d.Close(); cerr != nil {
		klog.Errorf("pool: closing buffered delivery: %v", cerr)
	}
	return err
}
