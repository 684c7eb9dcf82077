package models

import (
	"strconv"
	"strings"
	"time"
)

// Category is a top-level site section. Categories are defined in code and never mutated.
type Category struct {
	Name      string
	URL       string
	PageDepth int

	// Label is the display name used for the exported file. Defaults to Name.
	Label string

	// OverrideDepth applies to brands whose title is listed in OverrideBrands.
	OverrideDepth  int
	OverrideBrands []string

	// Flat categories have a URL that already is a paginated listing template,
	// so discovery is skipped and the category is harvested as a single brand.
	Flat bool
}

// DepthFor returns how many listing pages to walk for the given brand title.
// Titles are compared exactly, so a renamed brand on the site silently falls
// back to the default depth.
func (c Category) DepthFor(brandTitle string) int {
	for _, b := range c.OverrideBrands {
		if b == brandTitle {
			return c.OverrideDepth
		}
	}
	return c.PageDepth
}

func (c Category) DisplayName() string {
	if c.Label != "" {
		return c.Label
	}
	return c.Name
}

// AsBrand returns the category itself as a brand, for flat categories.
func (c Category) AsBrand() Brand {
	return Brand{Title: c.Name, URL: c.URL}
}

type Brand struct {
	Title string
	URL   string
}

// PageURL builds the URL of listing page n (1-based). A URL containing a "{}"
// placeholder has it replaced, otherwise "/n" is appended.
func (b Brand) PageURL(n int) string {
	page := strconv.Itoa(n)
	if strings.Contains(b.URL, "{}") {
		return strings.Replace(b.URL, "{}", page, 1)
	}
	return strings.TrimRight(b.URL, "/") + "/" + page
}

type ListingSummary struct {
	Link          string `json:"link"`
	CategoryLabel string `json:"category_label"`
	Title         string `json:"title"`
	Pinned        bool   `json:"pinned"`
}

// PinnedLabel renders the pinned flag the way the exported sheet shows it.
func (s ListingSummary) PinnedLabel() string {
	if s.Pinned {
		return "Pinned today"
	}
	return "Not Pinned"
}

type Spec struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// ListingRecord is a fully resolved listing. Nil pointers mean the field was
// not present on the detail page.
type ListingRecord struct {
	ListingSummary

	ID             *string    `json:"id"`
	Description    *string    `json:"description"`
	ImageURL       *string    `json:"image_url"`
	Price          *string    `json:"price"`
	Address        *string    `json:"address"`
	Attributes     []string   `json:"attributes"`
	Specifications []Spec     `json:"specifications"`
	Views          *string    `json:"views"`
	SubmitterName  *string    `json:"submitter_name"`
	SubmitterAds   *string    `json:"submitter_ads"`
	SubmitterSince *string    `json:"submitter_since"`
	Phone          *string    `json:"phone"`
	RelativeDate   *string    `json:"relative_date"`
	PublishedAt    *time.Time `json:"published_at"`
	Resolved       bool       `json:"resolved"`
}

// PublishDate returns the publish date as YYYY-MM-DD, or "" when unknown.
func (r ListingRecord) PublishDate() string {
	if r.PublishedAt == nil {
		return ""
	}
	return r.PublishedAt.Format(time.DateOnly)
}

// BrandRecords groups the records harvested for one brand.
type BrandRecords struct {
	Brand   string          `json:"brand"`
	Records []ListingRecord `json:"records"`
}

// StringPtr returns a pointer to s, or nil when s is empty after trimming.
func StringPtr(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// Deref returns the pointed-to string or "".
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// CategoryResult is what one category contributes to a run: the window-filtered
// records per brand, plus counters for reporting.
type CategoryResult struct {
	Category string         `json:"category"`
	Brands   []BrandRecords `json:"brands"`

	BrandsSeen     int `json:"brands_seen"`
	ListingsSeen   int `json:"listings_seen"`
	ListingsKept   int `json:"listings_kept"`
	UnresolvedSeen int `json:"unresolved_seen"`
	// UndatedSeen counts resolved records without a publish time. They can
	// never match a window, so they are dropped.
	UndatedSeen int `json:"undated_seen"`
}
