package scraper

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/maltedev/listing-harvester/internal/models"
	"github.com/maltedev/listing-harvester/internal/pagereader"
	"github.com/maltedev/listing-harvester/internal/ratelimit"
	herrors "github.com/maltedev/listing-harvester/pkg/errors"
)

// StopReason says why a brand's pagination ended.
type StopReason string

const (
	StopDepthReached StopReason = "depth_reached"
	StopEmptyPage    StopReason = "empty_page"
	StopFetchError   StopReason = "fetch_error"
	StopCancelled    StopReason = "cancelled"
)

// BrandHarvest is everything collected for one brand, unfiltered.
type BrandHarvest struct {
	Brand   models.Brand
	Records []models.ListingRecord
	Pages   int
	Stop    StopReason
	Err     error
}

// ListingFetcher walks a brand's listing pages in order and resolves every
// card found on them.
type ListingFetcher struct {
	reader   pagereader.Reader
	resolver Resolver
	opts     Options
	logger   *slog.Logger
}

func NewListingFetcher(reader pagereader.Reader, resolver Resolver, opts Options, logger *slog.Logger) *ListingFetcher {
	return &ListingFetcher{
		reader:   reader,
		resolver: resolver,
		opts:     opts,
		logger:   logger.With("component", "listing_fetcher"),
	}
}

// FetchBrand requests pages 1..depth. The first page that yields no cards, or
// fails after its retries, ends the walk; earlier pages are kept.
func (f *ListingFetcher) FetchBrand(ctx context.Context, category string, brand models.Brand, depth int) BrandHarvest {
	h := BrandHarvest{Brand: brand, Stop: StopDepthReached}
	pacer := ratelimit.NewSimpleRateLimiter(f.opts.PageDelay, f.opts.PageDelay+f.opts.PageJitter)
	log := f.logger.With("category", category, "brand", brand.Title)

	for n := 1; n <= depth; n++ {
		if err := pacer.Wait(ctx); err != nil {
			h.Stop, h.Err = StopCancelled, err
			return h
		}

		pageURL := brand.PageURL(n)
		summaries, err := f.fetchPage(ctx, pageURL)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
				h.Stop, h.Err = StopCancelled, err
				return h
			}
			log.Error("listing page failed, stopping brand", "url", pageURL, "page", n, "error", err)
			h.Stop, h.Err = StopFetchError, err
			return h
		}
		h.Pages++

		if len(summaries) == 0 {
			log.Info("empty listing page, stopping brand", "url", pageURL, "page", n)
			h.Stop = StopEmptyPage
			return h
		}

		log.Info("listing page fetched", "url", pageURL, "page", n, "cards", len(summaries))
		for _, s := range summaries {
			if ctx.Err() != nil {
				h.Stop, h.Err = StopCancelled, ctx.Err()
				return h
			}
			rec := f.resolver.Resolve(ctx, s.Link)
			rec.ListingSummary = s
			h.Records = append(h.Records, rec)
		}
	}

	return h
}

func (f *ListingFetcher) fetchPage(ctx context.Context, pageURL string) ([]models.ListingSummary, error) {
	var summaries []models.ListingSummary

	err := f.opts.PagePolicy.Do(ctx, func(ctx context.Context, attempt int) error {
		page, err := f.reader.Open(ctx)
		if err != nil {
			return err
		}
		defer page.Close()

		if err := page.Navigate(ctx, pageURL, f.opts.PageTimeout); err != nil {
			f.logger.Warn("listing navigation failed", "url", pageURL, "attempt", attempt, "error", err)
			return err
		}

		if err := page.WaitFor(ctx, cardSelector, f.opts.WaitTimeout); err != nil {
			if herrors.Is(err, herrors.KindContentMissing) {
				summaries = nil
				return nil
			}
			return err
		}

		cards, err := page.QueryAll(cardSelector)
		if err != nil {
			return err
		}
		summaries = f.summariesFrom(pageURL, cards)
		return nil
	})

	return summaries, err
}

func (f *ListingFetcher) summariesFrom(pageURL string, cards []pagereader.Element) []models.ListingSummary {
	summaries := make([]models.ListingSummary, 0, len(cards))
	for i, card := range cards {
		href, err := card.Attribute("href")
		if err != nil {
			f.logger.Debug("skipping card without link", "url", pageURL, "index", i)
			continue
		}
		link, err := resolveLink(pageURL, href)
		if err != nil {
			f.logger.Debug("skipping card", "url", pageURL, "index", i, "error", err)
			continue
		}

		s := models.ListingSummary{Link: link}
		s.CategoryLabel, _ = pagereader.Text(card, cardTypeSelector)
		s.Title, _ = pagereader.Text(card, cardTitleSelector)
		if tags, err := pagereader.First(card, cardTagsSelector); err == nil {
			html, _ := tags.InnerHTML()
			s.Pinned = strings.TrimSpace(html) != ""
		}
		summaries = append(summaries, s)
	}
	return summaries
}
