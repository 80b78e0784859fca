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

// Package pack collects a stream of (filename, bytes) page results into a
// zip archive or a plain directory, optionally alongside a metadata.json.
//
// No example repo in the corpus targets archive construction, so this
// package is built on the standard library's archive/zip and
// encoding/json alone; see DESIGN.md for the explicit justification.
package pack

import (
	"archive/zip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"k8s.io/klog/v2"

	"github.com/binbreader/binbreader/internal/pool"
)

// contentPrefix is the directory name pages are written under inside a zip
// archive, matching the original plugin's "content/" entry prefix.
const contentPrefix = "content/"

// target abstracts "write one named file" over either a zip archive or a
// plain directory, so Packager's page-writing logic is shared between them.
// writePage namespaces a page under the content prefix (zip mode only);
// writeRoot writes a file as-is, used for metadata.json.
type target interface {
	writePage(name string, data []byte) error
	writeRoot(name string, data []byte) error
	close() error
}

// Packager receives descrambled page results (typically via
// pool.BufferedDelivery) and writes them to a zip archive or a directory,
// optionally appending extra files and a metadata.json on Close.
type Packager struct {
	t        target
	metadata any
	withMeta bool
	extra    []string
}

// NewZipPackager creates (or truncates) a zip archive at zipPath and
// returns a Packager that writes pages into its "content/" prefix.
func NewZipPackager(zipPath string, metadata any, withMetadata bool, extraPaths []string) (*Packager, error) {
	f, err := os.Create(zipPath)
	if err != nil {
		return nil, fmt.Errorf("pack: creating %q: %w", zipPath, err)
	}
	return &Packager{
		t:        &zipTarget{f: f, zw: zip.NewWriter(f)},
		metadata: metadata,
		withMeta: withMetadata,
		extra:    extraPaths,
	}, nil
}

// NewDirPackager writes pages directly into dir (created if necessary) and,
// on Close, a metadata.json alongside them if withMetadata is set. Extra
// files are not copied in directory mode; the original only bundles them
// into a zip.
func NewDirPackager(dir string, metadata any, withMetadata bool) (*Packager, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("pack: creating directory %q: %w", dir, err)
	}
	return &Packager{
		t:        &dirTarget{dir: dir},
		metadata: metadata,
		withMeta: withMetadata,
	}, nil
}

// WriteBatch implements pool.Sink, writing each delivered result as a file
// named by its Filename.
func (p *Packager) WriteBatch(items []pool.Result) error {
	for _, it := range items {
		if err := p.t.writePage(it.Filename, it.Data); err != nil {
			return fmt.Errorf("pack: writing %q: %w", it.Filename, err)
		}
	}
	return nil
}

// Close finalizes the archive or directory: additional_zip_content files
// (zip mode only) and metadata.json (either mode, if requested) are
// written first, then the underlying target is closed.
func (p *Packager) Close() error {
	if zt, ok := p.t.(*zipTarget); ok {
		for _, extra := range p.extra {
			if err := zt.addExternalFile(extra); err != nil {
				return fmt.Errorf("pack: adding %q to archive: %w", extra, err)
			}
		}
	}
	if p.withMeta {
		b, err := serializeMetadata(p.metadata)
		if err != nil {
			return fmt.Errorf("pack: serializing metadata: %w", err)
		}
		if err := p.t.writeRoot("metadata.json", b); err != nil {
			return fmt.Errorf("pack: writing metadata.json: %w", err)
		}
	}
	return p.t.close()
}

// serializeMetadata renders metadata as JSON indented by four spaces. Keys
// of a map[string]any come out sorted (encoding/json sorts map keys); the
// fields of a struct value, such as binbreader.Metadata, are written in
// declaration order and are not sorted.
func serializeMetadata(metadata any) ([]byte, error) {
	return json.MarshalIndent(metadata, "", "    ")
}

type zipTarget struct {
	f  *os.File
	zw *zip.Writer
}

func (z *zipTarget) writePage(name string, data []byte) error {
	return z.writeAt(contentPrefix+name, data)
}

func (z *zipTarget) writeRoot(name string, data []byte) error {
	return z.writeAt(name, data)
}

func (z *zipTarget) writeAt(name string, data []byte) error {
	w, err := z.zw.Create(name)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

func (z *zipTarget) addExternalFile(path string) error {
	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := src.Close(); cerr != nil {
			klog.Errorf("pack: closing %q: %v", path, cerr)
		}
	}()

	w, err := z.zw.Create(filepath.Base(path))
	if err != nil {
		return err
	}
	_, err = io.Copy(w, src)
	return err
}

func (z *zipTarget) close() error {
	if err := z.zw.Close(); err != nil {
		return err
	}
	return z.f.Close()
}

type dirTarget struct {
	dir string
}

func (d *dirTarget) writePage(name string, data []byte) error {
	return os.WriteFile(filepath.Join(d.dir, name), data, 0o644)
}

func (d *dirTarget) writeRoot(name string, data []byte) error {
	return os.WriteFile(filepath.Join(d.dir, name), data, 0o644)
}

func (d *dirTarget) close() error { return nil }
