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

package binbapi

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/net/http2"
	"k8s.io/klog/v2"
)

// userAgent is a fixed legacy-browser identifier: the server validates
// user-agent class, not version, so any plausible browser string works.
const userAgent = "Mozilla/5.0 (compatible; MSIE 9.0; Windows NT 6.1; Trident/5.0)"

// ServerType distinguishes the two ways a book's pages are served.
type ServerType int

const (
	// ServerTypeUnset means content_info has not been fetched yet.
	ServerTypeUnset ServerType = -1
	// ServerTypeProxy ("SBC") means pages are fetched through sbcGetImg.php.
	ServerTypeProxy ServerType = 0
	// ServerTypeStatic means pages are fetched directly off a CDN path.
	ServerTypeStatic ServerType = 1
)

var imageSizePriorities = []string{"M_H", "S_H", "M_L", "S_L"}

var (
	reImagePath = regexp.MustCompile(`t-img src="(.+?)"`)
	reContentJS = regexp.MustCompile(`(?s)^\w+?\((.+)\)$`)
	reDataURI   = regexp.MustCompile(`^(?:data:)?([\w/\-.]+);(\w+),(.*)$`)
)

// ContentInfo is the parsed response of bibGetCntntInfo.php: the raw field
// map (for metadata extraction) plus the fields the client itself needs.
type ContentInfo struct {
	Fields            map[string]any
	EncryptedCTbl     string
	EncryptedPTbl     string
	ServerType        ServerType
	ContentServerBase string
	P                 string
}

// Config configures a Client's transport and retry behavior.
type Config struct {
	// Timeout bounds a single HTTP request. Zero selects a 60s default,
	// matching spec's recommendation for worker-pool-shared sessions.
	Timeout time.Duration
	// ForceHTTP2 swaps the transport for an http2.Transport dialing
	// directly, bypassing ALPN negotiation, mirroring the teacher's
	// --force_http2 escape hatch.
	ForceHTTP2 bool
	// RetryAttempts bounds GetImage's internal retry count.
	RetryAttempts uint
	// AllowSBCOnStatic lets a STATIC-server book still use the SBC content
	// listing endpoint when a "p" token is present, instead of content.js.
	AllowSBCOnStatic bool
}

// Client is a stateful HTTP client for one book session against a BIB
// (metadata) base URL and, once content_info is known, an SBC (content)
// base URL.
type Client struct {
	hc  *http.Client
	cfg Config

	bibBase string
	cid     string
	nonce   string

	contentInfo *ContentInfo
	pagePaths   []string
	pages       []string

	// sizeCache remembers, per content-server base, which STATIC size
	// qualifier last succeeded, so later pages don't re-probe all four.
	sizeCache *lru.Cache[string, string]
}

// NewClient constructs a Client for the book identified by cid at bibBase
// (which must end in "/"). now is used to seed the request nonce; callers
// typically pass time.Now().
func NewClient(bibBase, cid string, now time.Time, cfg Config) (*Client, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.RetryAttempts == 0 {
		cfg.RetryAttempts = 3
	}

	hc := &http.Client{
		Timeout: cfg.Timeout,
		Transport: &http.Transport{
			MaxIdleConns:        256,
			MaxIdleConnsPerHost: 256,
			DisableKeepAlives:   false,
		},
	}
	if cfg.ForceHTTP2 {
		hc.Transport = &http2.Transport{TLSClientConfig: &tls.Config{}}
	}

	cache, err := lru.New[string, string](8)
	if err != nil {
		return nil, fmt.Errorf("binbapi: building size cache: %w", err)
	}

	return &Client{
		hc:        hc,
		cfg:       cfg,
		bibBase:   bibBase,
		cid:       cid,
		nonce:     generateNonce(now),
		sizeCache: cache,
	}, nil
}

const nonceAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// generateNonce derives the per-session "k" parameter. The exact character
// distribution is not load-bearing; matching the server's expected
// character class (alphanumeric, fixed length) is.
func generateNonce(now time.Time) string {
	source := now.Format("20060102150405") + fmt.Sprintf("%03d", now.Nanosecond()/1e6) + nonceAlphabet
	out := make([]byte, 32)
	for i := range out {
		out[i] = source[rand.Intn(len(source))]
	}
	return string(out)
}

// Nonce returns the "k" value generated for this client.
func (c *Client) Nonce() string { return c.nonce }

// CID returns the content-id this client was constructed for.
func (c *Client) CID() string { return c.cid }

// HTTPClient returns the *http.Client backing this session, so a caller can
// install cookies or other credentials before the first API call (e.g. via
// a login hook).
func (c *Client) HTTPClient() *http.Client { return c.hc }

func (c *Client) bibURL(method string, vals url.Values) string {
	return c.bibBase + method + "?" + vals.Encode()
}

func (c *Client) sbcURL(method string, vals url.Values) string {
	return c.contentInfo.ContentServerBase + method + "?" + vals.Encode()
}

func (c *Client) commonVals() url.Values {
	vals := url.Values{}
	vals.Set("cid", c.cid)
	vals.Set("k", c.nonce)
	return vals
}

// get issues a GET request and returns the body, treating any status
// other than 200 as an HTTPError.
func (c *Client) get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			klog.Errorf("resp.Body.Close(): %v", cerr)
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("binbapi: reading body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &HTTPError{Status: resp.StatusCode, URL: rawURL}
	}
	return body, nil
}

// GetContentInfo fetches and caches bibGetCntntInfo.php, populating
// server type, the content-server base, and the "p" token needed by
// SBC-mode requests whenever the server sends one.
func (c *Client) GetContentInfo(ctx context.Context) (*ContentInfo, error) {
	if c.contentInfo != nil {
		return c.contentInfo, nil
	}

	body, err := c.get(ctx, c.bibURL("bibGetCntntInfo.php", c.commonVals()))
	if err != nil {
		return nil, fmt.Errorf("binbapi: content info: %w", err)
	}

	var env struct {
		Result int              `json:"result"`
		Items  []map[string]any `json:"items"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("binbapi: decoding content info: %w", err)
	}
	if env.Result != 1 {
		return nil, &ApiError{Result: env.Result}
	}
	if len(env.Items) == 0 {
		return nil, fmt.Errorf("binbapi: content info returned no items")
	}
	item := env.Items[0]

	ctbl, _ := item["ctbl"].(string)
	ptbl, _ := item["ptbl"].(string)
	contentsServer, _ := item["ContentsServer"].(string)
	if contentsServer != "" && !strings.HasSuffix(contentsServer, "/") {
		contentsServer += "/"
	}
	serverType := ServerTypeUnset
	if st, ok := item["ServerType"].(float64); ok {
		serverType = ServerType(int(st))
	}

	info := &ContentInfo{
		Fields:            item,
		EncryptedCTbl:     ctbl,
		EncryptedPTbl:     ptbl,
		ServerType:        serverType,
		ContentServerBase: contentsServer,
	}
	if p, ok := item["p"].(string); ok {
		info.P = p
	}

	c.contentInfo = info
	return info, nil
}

// GetContent fetches the page listing (STATIC mode reads content.js,
// proxy mode calls sbcGetCntnt.php) and populates the page path table
// GetImage and friends index into.
func (c *Client) GetContent(ctx context.Context) error {
	if c.contentInfo == nil {
		return fmt.Errorf("binbapi: GetContent called before GetContentInfo")
	}

	var ttx string
	useStatic := c.contentInfo.ServerType == ServerTypeStatic && !(c.cfg.AllowSBCOnStatic && c.contentInfo.P != "")
	if useStatic {
		body, err := c.get(ctx, c.contentInfo.ContentServerBase+"content.js")
		if err != nil {
			return fmt.Errorf("binbapi: content.js: %w", err)
		}
		m := reContentJS.FindSubmatch(body)
		if m == nil {
			return fmt.Errorf("binbapi: content.js did not match the expected JSONP wrapper")
		}
		var parsed map[string]any
		if err := json.Unmarshal(m[1], &parsed); err != nil {
			return fmt.Errorf("binbapi: decoding content.js payload: %w", err)
		}
		ttx, _ = parsed["ttx"].(string)
	} else {
		vals := url.Values{}
		vals.Set("cid", c.cid)
		vals.Set("p", c.contentInfo.P)
		body, err := c.get(ctx, c.sbcURL("sbcGetCntnt.php", vals))
		if err != nil {
			return fmt.Errorf("binbapi: sbcGetCntnt.php: %w", err)
		}
		var env struct {
			Result int              `json:"result"`
			Items  []map[string]any `json:"items"`
		}
		if err := json.Unmarshal(body, &env); err != nil {
			return fmt.Errorf("binbapi: decoding sbcGetCntnt.php: %w", err)
		}
		if env.Result != 1 {
			return &ApiError{Result: env.Result}
		}
		if len(env.Items) == 0 {
			return fmt.Errorf("binbapi: sbcGetCntnt.php returned no items")
		}
		ttx, _ = env.Items[0]["ttx"].(string)
	}

	matches := reImagePath.FindAllStringSubmatch(ttx, -1)
	half := len(matches) / 2
	c.pagePaths = make([]string, half)
	c.pages = make([]string, half)
	for i := 0; i < half; i++ {
		full := matches[i][1]
		c.pagePaths[i] = full
		if idx := strings.IndexByte(full, '/'); idx >= 0 {
			c.pages[i] = full[idx+1:]
		} else {
			c.pages[i] = full
		}
	}
	return nil
}

// PageCount returns the number of pages populated by GetContent.
func (c *Client) PageCount() int { return len(c.pagePaths) }

// PagePath returns the bare page filename (used as SlotSelector input) for
// pageIndex.
func (c *Client) PagePath(pageIndex int) string { return c.pages[pageIndex] }

// GetImage fetches the raw (still-scrambled) image bytes for pageIndex,
// retrying transient failures a bounded number of times before returning
// an error the caller should count against its own error budget.
func (c *Client) GetImage(ctx context.Context, pageIndex int) ([]byte, error) {
	var data []byte
	err := retry.Do(
		func() error {
			d, err := c.fetchImage(ctx, pageIndex)
			if err != nil {
				return err
			}
			data = d
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(c.cfg.RetryAttempts),
		retry.DelayType(retry.BackOffDelay),
	)
	return data, err
}

func (c *Client) fetchImage(ctx context.Context, pageIndex int) ([]byte, error) {
	path := c.pagePaths[pageIndex]

	if c.contentInfo.ServerType == ServerTypeStatic {
		if cached, ok := c.sizeCache.Get(c.contentInfo.ContentServerBase); ok {
			if d, err := c.get(ctx, c.contentInfo.ContentServerBase+path+"/"+cached+".jpg"); err == nil {
				return d, nil
			}
		}
		var lastErr error
		for _, size := range imageSizePriorities {
			d, err := c.get(ctx, c.contentInfo.ContentServerBase+path+"/"+size+".jpg")
			if err == nil {
				c.sizeCache.Add(c.contentInfo.ContentServerBase, size)
				return d, nil
			}
			lastErr = err
		}
		return nil, fmt.Errorf("binbapi: no static size qualifier succeeded for page %d: %w", pageIndex, lastErr)
	}

	vals := url.Values{}
	vals.Set("cid", c.cid)
	vals.Set("p", c.contentInfo.P)
	vals.Set("src", path)
	vals.Set("h", "9999")
	vals.Set("q", "0")
	return c.get(ctx, c.sbcURL("sbcGetImg.php", vals))
}

// getDataURIImage fetches a JSON envelope of the shape
// {result, items:[{Data:"data:<mime>;<encoding>,<payload>"}]} and returns
// the decoded payload of the first item.
func (c *Client) getDataURIImage(ctx context.Context, method string, vals url.Values) ([]byte, error) {
	body, err := c.get(ctx, c.sbcURL(method, vals))
	if err != nil {
		return nil, err
	}
	var env struct {
		Result int `json:"result"`
		Items  []struct {
			Data string `json:"Data"`
		} `json:"items"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("binbapi: decoding %s: %w", method, err)
	}
	if env.Result != 1 {
		return nil, &ApiError{Result: env.Result}
	}
	if len(env.Items) == 0 {
		return nil, fmt.Errorf("binbapi: %s returned no items", method)
	}
	m := reDataURI.FindStringSubmatch(env.Items[0].Data)
	if m == nil {
		return nil, fmt.Errorf("binbapi: %s returned a malformed data URI", method)
	}
	return base64.StdEncoding.DecodeString(m[3])
}

// GetImageBase64 fetches the same page image as GetImage, but through the
// data-URI envelope endpoint rather than raw bytes.
func (c *Client) GetImageBase64(ctx context.Context, pageIndex int) ([]byte, error) {
	vals := url.Values{}
	vals.Set("cid", c.cid)
	vals.Set("p", c.contentInfo.P)
	vals.Set("src", c.pagePaths[pageIndex])
	return c.getDataURIImage(ctx, "sbcGetImgB64.php", vals)
}

// GetSmallImage fetches a thumbnail-sized rendition of pageIndex.
func (c *Client) GetSmallImage(ctx context.Context, pageIndex int) ([]byte, error) {
	vals := url.Values{}
	vals.Set("cid", c.cid)
	vals.Set("p", c.contentInfo.P)
	vals.Set("src", c.pagePaths[pageIndex])
	return c.getDataURIImage(ctx, "sbcGetSmlImg.php", vals)
}

// GetNecImage fetches the "nec" rendition of pageIndex. The original
// server-side semantics of this endpoint were never documented upstream;
// this follows the same data-URI envelope pattern as GetImageBase64 by
// symmetry, unverified against real nec payloads.
func (c *Client) GetNecImage(ctx context.Context, pageIndex int) ([]byte, error) {
	vals := url.Values{}
	vals.Set("cid", c.cid)
	vals.Set("p", c.contentInfo.P)
	vals.Set("src", c.pagePaths[pageIndex])
	return c.getDataURIImage(ctx, "sbcGetNecImg.php", vals)
}

// getDataURIImageList fetches a JSON envelope whose items are all
// data-URI images, decoding every one in order.
func (c *Client) getDataURIImageList(ctx context.Context, method string, vals url.Values) ([][]byte, error) {
	body, err := c.get(ctx, c.sbcURL(method, vals))
	if err != nil {
		return nil, err
	}
	var env struct {
		Result int `json:"result"`
		Items  []struct {
			Data string `json:"Data"`
		} `json:"items"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("binbapi: decoding %s: %w", method, err)
	}
	if env.Result != 1 {
		return nil, &ApiError{Result: env.Result}
	}
	out := make([][]byte, len(env.Items))
	for i, item := range env.Items {
		m := reDataURI.FindStringSubmatch(item.Data)
		if m == nil {
			return nil, fmt.Errorf("binbapi: %s item %d is a malformed data URI", method, i)
		}
		d, err := base64.StdEncoding.DecodeString(m[3])
		if err != nil {
			return nil, fmt.Errorf("binbapi: %s item %d: %w", method, i, err)
		}
		out[i] = d
	}
	return out, nil
}

// GetSmallImageList fetches thumbnails for every page in one request.
func (c *Client) GetSmallImageList(ctx context.Context) ([][]byte, error) {
	vals := url.Values{}
	vals.Set("cid", c.cid)
	vals.Set("p", c.contentInfo.P)
	return c.getDataURIImageList(ctx, "sbcGetSmlImgList.php", vals)
}

// GetNecImageList fetches the "nec" rendition for every page in one
// request, by symmetry with GetSmallImageList.
func (c *Client) GetNecImageList(ctx context.Context) ([][]byte, error) {
	vals := url.Values{}
	vals.Set("cid", c.cid)
	vals.Set("p", c.contentInfo.P)
	return c.getDataURIImageList(ctx, "sbcGetNecImgList.php", vals)
}
