package scraper

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/maltedev/listing-harvester/internal/models"
	"github.com/maltedev/listing-harvester/internal/window"
)

// Harvester drives one category from discovery down to window-filtered records.
type Harvester struct {
	discoverer *Discoverer
	fetcher    *ListingFetcher
	logger     *slog.Logger
}

func NewHarvester(discoverer *Discoverer, fetcher *ListingFetcher, logger *slog.Logger) *Harvester {
	return &Harvester{
		discoverer: discoverer,
		fetcher:    fetcher,
		logger:     logger.With("component", "harvester"),
	}
}

// HarvestCategory walks every brand of cat in order. Brands with no record in
// the window are left out of the result.
func (h *Harvester) HarvestCategory(ctx context.Context, cat models.Category, w window.Window) (models.CategoryResult, error) {
	result := models.CategoryResult{Category: cat.Name}
	log := h.logger.With("category", cat.Name)

	var brands []models.Brand
	if cat.Flat {
		brands = []models.Brand{cat.AsBrand()}
	} else {
		var err error
		brands, err = h.discoverer.Discover(ctx, cat.URL)
		if err != nil {
			return result, fmt.Errorf("category %s: %w", cat.Name, err)
		}
	}
	result.BrandsSeen = len(brands)

	if len(brands) == 0 {
		log.Warn("category has no brands", "url", cat.URL)
		return result, nil
	}

	for _, brand := range brands {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		depth := cat.DepthFor(brand.Title)
		bh := h.fetcher.FetchBrand(ctx, cat.Name, brand, depth)

		kept := window.Filter(bh.Records, w.Date)
		result.ListingsSeen += len(bh.Records)
		result.ListingsKept += len(kept)
		undated := 0
		for _, r := range bh.Records {
			switch {
			case !r.Resolved:
				result.UnresolvedSeen++
			case r.PublishedAt == nil:
				undated++
			}
		}
		result.UndatedSeen += undated

		log.Info("brand harvested",
			"brand", brand.Title,
			"pages", bh.Pages,
			"stop", bh.Stop,
			"listings", len(bh.Records),
			"in_window", len(kept),
			"undated", undated)

		if len(kept) > 0 {
			result.Brands = append(result.Brands, models.BrandRecords{Brand: brand.Title, Records: kept})
		}
	}

	return result, nil
}
