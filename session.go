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

package binbreader

import (
	"context"
	"fmt"
	"net/http"
	"path"

	"k8s.io/klog/v2"

	"github.com/binbreader/binbreader/internal/binbapi"
	"github.com/binbreader/binbreader/internal/descramble"
)

// LoginHook is invoked with a session's HTTP client before any API call is
// made, giving a call site a chance to install cookies or other
// site-specific credentials. BookSession never inspects the hook's logic;
// site-specific login flows are out of scope for this package.
type LoginHook func(ctx context.Context, hc *http.Client, username, password string) error

// BookSession is the composition root for reading one BinB-hosted book: it
// owns the ApiClient, the decrypted KeyTable, and the page list, and
// exposes descrambling of a single already-fetched page image.
type BookSession struct {
	api     *binbapi.Client
	table   descramble.KeyTable
	info    *binbapi.ContentInfo
	cfg     Config
	bibBase string
	cid     string
}

// NewBookSession constructs a session for cid at bibBase: it creates the
// ApiClient, runs the login hook (if any), fetches content_info, decrypts
// and parses the key table, and populates the page list.
func NewBookSession(ctx context.Context, bibBase, cid string, hook LoginHook, cfg Config) (*BookSession, error) {
	if bibBase == "" || cid == "" {
		return nil, &ConfigError{Reason: "bib_base and cid are both required"}
	}

	api, err := binbapi.NewClient(bibBase, cid, now(), cfg.HTTP)
	if err != nil {
		return nil, fmt.Errorf("binbreader: constructing api client: %w", err)
	}

	if hook != nil {
		if err := hook(ctx, api.HTTPClient(), cfg.Username, cfg.Password); err != nil {
			return nil, fmt.Errorf("binbreader: login hook: %w", err)
		}
	}

	info, err := api.GetContentInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("binbreader: fetching content info: %w", err)
	}

	ctbl, err := descramble.DecryptKeyTable(info.EncryptedCTbl, cid, api.Nonce())
	if err != nil {
		return nil, fmt.Errorf("binbreader: decrypting ctbl: %w", err)
	}
	ptbl, err := descramble.DecryptKeyTable(info.EncryptedPTbl, cid, api.Nonce())
	if err != nil {
		return nil, fmt.Errorf("binbreader: decrypting ptbl: %w", err)
	}
	table, err := descramble.ParseKeyTable(ctbl, ptbl)
	if err != nil {
		return nil, fmt.Errorf("binbreader: parsing key table: %w", err)
	}

	if err := api.GetContent(ctx); err != nil {
		return nil, fmt.Errorf("binbreader: fetching content listing: %w", err)
	}

	klog.Infof("binbreader: opened book %q at %q: %d pages", cid, bibBase, api.PageCount())

	return &BookSession{
		api:     api,
		table:   table,
		info:    info,
		cfg:     cfg,
		bibBase: bibBase,
		cid:     cid,
	}, nil
}

// PageCount returns the number of pages in the book.
func (s *BookSession) PageCount() int { return s.api.PageCount() }

// PagePath returns the bare page path (e.g. "0001.jpg") for pageIndex.
func (s *BookSession) PagePath(pageIndex int) string { return s.api.PagePath(pageIndex) }

// PageRange resolves the session's Config page range against the book's
// actual page count, returning 1-based inclusive [start, end].
func (s *BookSession) PageRange() (start, end int, err error) {
	return s.cfg.pageRange(s.PageCount())
}

// Metadata returns the subset of content_info fields describing the book
// itself, pulled out of the raw field map the server returned.
func (s *BookSession) Metadata() Metadata {
	return newMetadata(s.info.Fields)
}

// FetchRawPage fetches the raw, still-scrambled bytes of pageIndex (0-based)
// from the server.
func (s *BookSession) FetchRawPage(ctx context.Context, pageIndex int) ([]byte, error) {
	return s.api.GetImage(ctx, pageIndex)
}

// Descramble undoes the server's grid/tile pixel scrambling of raw, a page
// image whose bare filename is the 0-based pageIndex's page path, and
// re-encodes it in the session's configured output format.
func (s *BookSession) Descramble(pageIndex int, raw []byte) ([]byte, error) {
	pagePath := s.api.PagePath(pageIndex)
	return descramble.Descramble(s.table, pagePath, raw, s.cfg.OutputFormat())
}

// FetchAndDescramble fetches pageIndex's raw bytes and descrambles them in
// one call, returning the output filename (e.g. "0001.jpg") and bytes ready
// for delivery to a packager.
func (s *BookSession) FetchAndDescramble(ctx context.Context, pageIndex int) (filename string, data []byte, err error) {
	raw, err := s.FetchRawPage(ctx, pageIndex)
	if err != nil {
		return "", nil, fmt.Errorf("binbreader: fetching page %d: %w", pageIndex, err)
	}
	out, err := s.Descramble(pageIndex, raw)
	if err != nil {
		return "", nil, fmt.Errorf("binbreader: descrambling page %d (%s): %w", pageIndex, path.Base(s.PagePath(pageIndex)), err)
	}
	return fmt.Sprintf("%04d.%s", pageIndex+1, s.cfg.Extension()), out, nil
}
