package scraper

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/maltedev/listing-harvester/internal/models"
	"github.com/maltedev/listing-harvester/internal/retry"
	herrors "github.com/maltedev/listing-harvester/pkg/errors"
)

// Resolver turns a listing link into a full record. It never fails: an
// unresolvable link yields an empty record with Resolved set to false.
type Resolver interface {
	Resolve(ctx context.Context, link string) models.ListingRecord
}

type Options struct {
	PageTimeout   time.Duration
	DetailTimeout time.Duration
	WaitTimeout   time.Duration
	PageDelay     time.Duration
	// PageJitter widens each listing page gap to a random value in
	// [PageDelay, PageDelay+PageJitter).
	PageJitter time.Duration

	// PagePolicy guards category and listing page loads.
	PagePolicy retry.Policy
	// DetailPolicy guards a whole detail page attempt.
	DetailPolicy retry.Policy
}

func DefaultOptions() Options {
	return Options{
		PageTimeout:   30 * time.Second,
		DetailTimeout: 60 * time.Second,
		WaitTimeout:   30 * time.Second,
		PageDelay:     3 * time.Second,
		PagePolicy: retry.Policy{
			MaxAttempts: 3,
			BackoffBase: 2 * time.Second,
			BackoffCap:  10 * time.Second,
			Retryable:   herrors.IsTransient,
		},
		DetailPolicy: retry.Policy{
			MaxAttempts: 3,
			BackoffBase: 2 * time.Second,
			BackoffCap:  10 * time.Second,
		},
	}
}

// resolveLink makes href absolute against the scheme and host of base.
func resolveLink(base, href string) (string, error) {
	href = strings.TrimSpace(href)
	if href == "" {
		return "", fmt.Errorf("empty href")
	}

	ref, err := url.Parse(href)
	if err != nil {
		return "", fmt.Errorf("invalid href %q: %w", href, err)
	}
	if ref.IsAbs() {
		return href, nil
	}

	b, err := url.Parse(base)
	if err != nil || b.Scheme == "" || b.Host == "" {
		return "", fmt.Errorf("invalid base url %q", base)
	}
	return b.Scheme + "://" + b.Host + "/" + strings.TrimLeft(href, "/"), nil
}

// pageTemplate turns a brand link into a listing page template. A trailing
// numeric segment is the page number and becomes the placeholder.
func pageTemplate(link string) string {
	path, query, hasQuery := strings.Cut(link, "?")
	path = strings.TrimRight(path, "/")

	if i := strings.LastIndex(path, "/"); i >= 0 {
		if _, err := strconv.Atoi(path[i+1:]); err == nil {
			path = path[:i]
		}
	}
	path += "/{}"

	if hasQuery {
		return path + "?" + query
	}
	return path
}
