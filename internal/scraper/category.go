package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/maltedev/listing-harvester/internal/models"
	"github.com/maltedev/listing-harvester/internal/pagereader"
)

// Discoverer lists the brands linked from a category page.
type Discoverer struct {
	reader pagereader.Reader
	opts   Options
	logger *slog.Logger
}

func NewDiscoverer(reader pagereader.Reader, opts Options, logger *slog.Logger) *Discoverer {
	return &Discoverer{
		reader: reader,
		opts:   opts,
		logger: logger.With("component", "category_discoverer"),
	}
}

// Discover returns the category's brands in page order. A page without brand
// anchors yields an empty list and no error.
func (d *Discoverer) Discover(ctx context.Context, categoryURL string) ([]models.Brand, error) {
	var brands []models.Brand

	err := d.opts.PagePolicy.Do(ctx, func(ctx context.Context, attempt int) error {
		page, err := d.reader.Open(ctx)
		if err != nil {
			return err
		}
		defer page.Close()

		if err := page.Navigate(ctx, categoryURL, d.opts.PageTimeout); err != nil {
			d.logger.Warn("category navigation failed", "url", categoryURL, "attempt", attempt, "error", err)
			return err
		}

		anchors, err := page.QueryAll(brandAnchorSelector)
		if err != nil {
			return err
		}

		brands = d.brandsFrom(categoryURL, anchors)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("discover brands at %s: %w", categoryURL, err)
	}

	d.logger.Info("discovered brands", "url", categoryURL, "count", len(brands))
	return brands, nil
}

func (d *Discoverer) brandsFrom(categoryURL string, anchors []pagereader.Element) []models.Brand {
	brands := make([]models.Brand, 0, len(anchors))
	for i, a := range anchors {
		href, err := a.Attribute("href")
		if err != nil || strings.TrimSpace(href) == "" {
			d.logger.Debug("skipping brand anchor without href", "url", categoryURL, "index", i)
			continue
		}

		link, err := resolveLink(categoryURL, href)
		if err != nil {
			d.logger.Debug("skipping brand anchor", "url", categoryURL, "href", href, "error", err)
			continue
		}

		title, err := a.Attribute("title")
		if err != nil || strings.TrimSpace(title) == "" {
			title, _ = a.InnerText()
		}

		brands = append(brands, models.Brand{
			Title: strings.TrimSpace(title),
			URL:   pageTemplate(link),
		})
	}
	return brands
}
