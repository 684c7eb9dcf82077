package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/maltedev/listing-harvester/internal/models"
	"github.com/maltedev/listing-harvester/internal/pagereader"
	"github.com/maltedev/listing-harvester/internal/retry"
	herrors "github.com/maltedev/listing-harvester/pkg/errors"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.PageDelay = 0
	opts.PagePolicy = retry.Policy{MaxAttempts: 3, Retryable: herrors.IsTransient}
	opts.DetailPolicy = retry.Policy{MaxAttempts: 3}
	return opts
}

// siteFetcher serves fixtures by URL, records every request and can fail
// the first N requests for a URL.
type siteFetcher struct {
	mu       sync.Mutex
	pages    map[string]string
	failures map[string]int
	requests []string
}

func newSiteFetcher(pages map[string]string) *siteFetcher {
	return &siteFetcher{pages: pages, failures: map[string]int{}}
}

func (f *siteFetcher) failFirst(url string, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[url] = n
}

func (f *siteFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.requests = append(f.requests, url)
	if f.failures[url] > 0 {
		f.failures[url]--
		return nil, herrors.NewTransient("fetch", url, errors.New("connection reset by peer"))
	}
	html, ok := f.pages[url]
	if !ok {
		return nil, herrors.NewContentMissing("fetch", url, pagereader.ErrNotFound)
	}
	return []byte(html), nil
}

func (f *siteFetcher) count(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.requests {
		if r == url {
			n++
		}
	}
	return n
}

func (f *siteFetcher) reader() pagereader.Reader {
	return pagereader.NewStaticReader(f)
}

// linkResolver resolves every link to a record carrying only the publish time.
type linkResolver struct {
	mu        sync.Mutex
	published map[string]time.Time
	calls     []string
}

func (r *linkResolver) Resolve(ctx context.Context, link string) models.ListingRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, link)

	rec := models.ListingRecord{Resolved: true, ID: models.StringPtr(link)}
	if ts, ok := r.published[link]; ok {
		rec.PublishedAt = &ts
	}
	return rec
}

func listingPage(links ...string) string {
	var b strings.Builder
	b.WriteString("<html><body><div class=\"list\">")
	for i, link := range links {
		pinned := ""
		if i == 0 {
			pinned = "<span>مثبت</span>"
		}
		fmt.Fprintf(&b, `<a class="StackedCard_card__Kvggc" href="%s">
<div class="text-6-med text-neutral_600 styles_category__NQAci">Phones</div>
<div class="text-4-med text-neutral_900 styles_title__l5TTA undefined">Item %d</div>
<div class="StackedCard_tags__SsKrH">%s</div>
</a>`, link, i+1, pinned)
	}
	b.WriteString("</div></body></html>")
	return b.String()
}

func categoryPage(anchors ...string) string {
	return `<html><body><div class="styles_itemWrapper__MTzPB">` + strings.Join(anchors, "") + `</div></body></html>`
}

const detailPage = `<html><head>
<meta property="og:description" content="iPhone 13 Pro, 256GB, clean">
</head><body>
<div class="el-lvl-1 d-flex align-items-center justify-content-between styles_sectionWrapper__v97PG">
  <span class="text-4-regular m-text-5-med text-neutral_600">رقم الاعلان: 18213344</span>
</div>
<img class="styles_img__PC9G3" src="https://cdn.example.com/a.jpg">
<div class="h3 m-h5 text-prim_4sale_500">250 KWD</div>
<div class="d-flex styles_topData__Sx1GF">
  <div class="d-flex align-items-center styles_dataWithIcon__For9u"><span class="text-5-regular m-text-6-med text-neutral_600">1520</span></div>
  <div class="d-flex align-items-center styles_dataWithIcon__For9u">منذ <span class="text-5-regular m-text-6-med text-neutral_600">منذ 5 ساعات</span></div>
</div>
<div class="styles_boolAttrs__Ce6YV">
  <div class="styles_boolAttr__Fkh_j"><div>Warranty</div></div>
  <div class="styles_boolAttr__Fkh_j"><div> </div></div>
  <div class="styles_boolAttr__Fkh_j"><div>Delivery</div></div>
</div>
<div class="styles_attrs__PX5Fs">
  <div class="styles_attr__BN3w_"><img alt="Storage"><span class="text-4-med m-text-5-med text-neutral_900">256GB</span></div>
  <div class="styles_attr__BN3w_"><img alt="Color"><span class="text-4-med m-text-5-med text-neutral_900"> Blue </span></div>
  <div class="styles_attr__BN3w_"><span class="text-4-med m-text-5-med text-neutral_900">orphan</span></div>
</div>
<div class="styles_infoWrapper__v4P8_ undefined align-items-center">
  <div class="text-4-med m-h6 text-neutral_900">Abu Ali</div>
  <div class="styles_memberDate__qdUsm">
    <span class="text-neutral_600">12 ads</span>
    <span class="text-neutral_600">عضو منذ يناير 2019</span>
  </div>
</div>
<script id="__NEXT_DATA__" type="application/json">{"props":{"pageProps":{"listing":{"phone":"96550001111"}}}}</script>
</body></html>`
