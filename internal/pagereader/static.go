package pagereader

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html/charset"

	herrors "github.com/maltedev/listing-harvester/pkg/errors"
)

// Fetcher returns the raw HTML served at url.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// StaticReader reads server-rendered HTML without a browser. Every Open
// returns an independent page, so sessions share nothing.
type StaticReader struct {
	fetcher Fetcher
}

func NewStaticReader(fetcher Fetcher) *StaticReader {
	return &StaticReader{fetcher: fetcher}
}

func (r *StaticReader) Open(ctx context.Context) (Page, error) {
	return &staticPage{fetcher: r.fetcher}, nil
}

type staticPage struct {
	fetcher Fetcher
	doc     *goquery.Document
	url     string
}

func (p *staticPage) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	body, err := p.fetcher.Fetch(ctx, url)
	if err != nil {
		return err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to parse %s: %w", url, err)
	}

	p.doc = doc
	p.url = url
	return nil
}

// WaitFor checks once: a static document does not change after load.
func (p *staticPage) WaitFor(ctx context.Context, selector string, timeout time.Duration) error {
	if p.doc == nil {
		return fmt.Errorf("wait for %q: no document loaded", selector)
	}
	if p.doc.Find(selector).Length() == 0 {
		return herrors.NewContentMissing("wait for "+selector, p.url, ErrNotFound)
	}
	return nil
}

func (p *staticPage) QueryAll(selector string) ([]Element, error) {
	if p.doc == nil {
		return nil, fmt.Errorf("query %q: no document loaded", selector)
	}
	return wrapSelection(p.doc.Find(selector)), nil
}

func (p *staticPage) Close() error {
	p.doc = nil
	return nil
}

type staticElement struct {
	sel *goquery.Selection
}

func wrapSelection(sel *goquery.Selection) []Element {
	els := make([]Element, 0, sel.Length())
	sel.Each(func(_ int, s *goquery.Selection) {
		els = append(els, &staticElement{sel: s})
	})
	return els
}

func (e *staticElement) QueryAll(selector string) ([]Element, error) {
	return wrapSelection(e.sel.Find(selector)), nil
}

func (e *staticElement) Attribute(name string) (string, error) {
	v, ok := e.sel.Attr(name)
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (e *staticElement) InnerText() (string, error) {
	return e.sel.Text(), nil
}

func (e *staticElement) InnerHTML() (string, error) {
	return e.sel.Html()
}

// MemoryFetcher serves pages from memory, keyed by URL. Useful for replaying
// saved pages.
type MemoryFetcher map[string]string

func (m MemoryFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	html, ok := m[url]
	if !ok {
		return nil, herrors.NewContentMissing("fetch", url, ErrNotFound)
	}
	return []byte(html), nil
}

// HTTPFetcher fetches pages over plain HTTP and converts them to UTF-8.
type HTTPFetcher struct {
	client         *http.Client
	userAgent      string
	acceptLanguage string
}

func NewHTTPFetcher(timeout time.Duration, userAgent, acceptLanguage string) *HTTPFetcher {
	return &HTTPFetcher{
		client:         &http.Client{Timeout: timeout},
		userAgent:      userAgent,
		acceptLanguage: acceptLanguage,
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", f.acceptLanguage)
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, herrors.NewTransient("fetch", url, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, herrors.NewTransient("fetch", url, fmt.Errorf("unexpected status code: %d", resp.StatusCode))
	case resp.StatusCode != http.StatusOK:
		return nil, herrors.NewContentMissing("fetch", url, fmt.Errorf("unexpected status code: %d", resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, herrors.NewTransient("fetch", url, fmt.Errorf("failed to read response body: %w", err))
	}

	enc, name, _ := charset.DetermineEncoding(body, resp.Header.Get("Content-Type"))
	if name == "utf-8" {
		return body, nil
	}

	decoded, err := io.ReadAll(enc.NewDecoder().Reader(bytes.NewReader(body)))
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s body: %w", name, err)
	}
	return decoded, nil
}
