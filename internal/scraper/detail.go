package scraper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/maltedev/listing-harvester/internal/models"
	"github.com/maltedev/listing-harvester/internal/pagereader"
	"github.com/maltedev/listing-harvester/internal/reldate"
)

// DetailResolver loads a listing's detail page and extracts the full record.
// Each attempt runs in its own session; nothing from a failed attempt is kept.
type DetailResolver struct {
	reader pagereader.Reader
	opts   Options
	now    func() time.Time
	logger *slog.Logger
}

func NewDetailResolver(reader pagereader.Reader, opts Options, now func() time.Time, logger *slog.Logger) *DetailResolver {
	if now == nil {
		now = time.Now
	}
	return &DetailResolver{
		reader: reader,
		opts:   opts,
		now:    now,
		logger: logger.With("component", "detail_resolver"),
	}
}

func (r *DetailResolver) Resolve(ctx context.Context, link string) models.ListingRecord {
	var record models.ListingRecord

	err := r.opts.DetailPolicy.Do(ctx, func(ctx context.Context, attempt int) error {
		rec, err := r.attempt(ctx, link)
		if err != nil {
			r.logger.Warn("detail attempt failed", "url", link, "attempt", attempt, "error", err)
			return err
		}
		record = rec
		return nil
	})
	if err != nil {
		r.logger.Error("could not resolve listing", "url", link, "error", err)
		return models.ListingRecord{}
	}

	return record
}

func (r *DetailResolver) attempt(ctx context.Context, link string) (models.ListingRecord, error) {
	page, err := r.reader.Open(ctx)
	if err != nil {
		return models.ListingRecord{}, err
	}
	defer page.Close()

	if err := page.Navigate(ctx, link, r.opts.DetailTimeout); err != nil {
		return models.ListingRecord{}, err
	}
	captured := r.now()

	return r.extract(ctx, page, link, captured), nil
}

// extract reads every field independently; a missing field never stops the rest.
func (r *DetailResolver) extract(ctx context.Context, page pagereader.Page, link string, captured time.Time) models.ListingRecord {
	rec := models.ListingRecord{Resolved: true}

	rec.ID = r.adID(page, link)
	rec.Description = r.optionalAttr(page, descriptionSelector, "content", "description", link)
	rec.ImageURL = r.optionalAttr(page, imageSelector, "src", "image", link)
	rec.Price = r.textOrDefault(page, priceSelector, defaultPrice, "price", link)
	rec.Address = r.address(page, link)
	rec.Attributes = r.boolAttributes(page, link)
	rec.Specifications = r.specifications(page, link)
	rec.Views = r.optionalText(page, viewsSelector, "views", link)

	sub := r.submitter(page, link)
	rec.SubmitterName = sub.name
	rec.SubmitterAds = sub.ads
	rec.SubmitterSince = sub.membership

	rec.Phone = r.phone(page, link)

	rec.RelativeDate = r.relativePhrase(ctx, page, link)
	if rec.RelativeDate != nil {
		published, err := reldate.Normalize(*rec.RelativeDate, captured)
		if err != nil {
			r.logger.Info("unrecognized publish phrase, listing cannot be dated", "url", link, "phrase", *rec.RelativeDate, "error", err)
		} else {
			rec.PublishedAt = &published
		}
	}

	return rec
}

func (r *DetailResolver) fieldMissing(field, link string, err error) {
	r.logger.Debug("field not extracted", "field", field, "url", link, "error", err)
}

func (r *DetailResolver) optionalText(q pagereader.Querier, selector, field, link string) *string {
	text, err := pagereader.Text(q, selector)
	if err != nil {
		r.fieldMissing(field, link, err)
		return nil
	}
	return models.StringPtr(text)
}

func (r *DetailResolver) optionalAttr(q pagereader.Querier, selector, attr, field, link string) *string {
	v, err := pagereader.Attr(q, selector, attr)
	if err != nil {
		r.fieldMissing(field, link, err)
		return nil
	}
	return models.StringPtr(v)
}

func (r *DetailResolver) textOrDefault(q pagereader.Querier, selector, def, field, link string) *string {
	if v := r.optionalText(q, selector, field, link); v != nil {
		return v
	}
	return &def
}

func (r *DetailResolver) adID(page pagereader.Page, link string) *string {
	section, err := pagereader.First(page, idSectionSelector)
	if err != nil {
		r.fieldMissing("id", link, err)
		return nil
	}
	text, err := pagereader.Text(section, idTextSelector)
	if err != nil {
		r.fieldMissing("id", link, err)
		return nil
	}
	m := adIDPattern.FindStringSubmatch(text)
	if m == nil {
		r.fieldMissing("id", link, fmt.Errorf("no ad number in %q", text))
		return nil
	}
	return &m[1]
}

// address falls back to the sentinel when the first matching span is the ad number line.
func (r *DetailResolver) address(page pagereader.Page, link string) *string {
	def := defaultAddress
	text, err := pagereader.Text(page, addressSelector)
	if err != nil {
		r.fieldMissing("address", link, err)
		return &def
	}
	if text == "" || adIDOnlyPattern.MatchString(text) {
		return &def
	}
	return &text
}

func (r *DetailResolver) boolAttributes(page pagereader.Page, link string) []string {
	els, err := page.QueryAll(boolAttrSelector)
	if err != nil {
		r.fieldMissing("attributes", link, err)
		return nil
	}
	var attrs []string
	for _, el := range els {
		text, err := el.InnerText()
		if err != nil {
			continue
		}
		if text = strings.TrimSpace(text); text != "" {
			attrs = append(attrs, text)
		}
	}
	return attrs
}

func (r *DetailResolver) specifications(page pagereader.Page, link string) []models.Spec {
	els, err := page.QueryAll(specSelector)
	if err != nil {
		r.fieldMissing("specifications", link, err)
		return nil
	}
	var specs []models.Spec
	for _, el := range els {
		key, err := pagereader.Attr(el, "img", "alt")
		if err != nil || key == "" {
			continue
		}
		value, err := pagereader.Text(el, specValueSelector)
		if err != nil || value == "" {
			continue
		}
		specs = append(specs, models.Spec{Key: key, Value: value})
	}
	return specs
}

type submitterInfo struct {
	name       *string
	ads        *string
	membership *string
}

func (r *DetailResolver) submitter(page pagereader.Page, link string) submitterInfo {
	wrapper, err := pagereader.First(page, submitterSelector)
	if err != nil {
		r.fieldMissing("submitter", link, err)
		return submitterInfo{}
	}

	ads, membership := defaultAds, defaultMembership
	info := submitterInfo{
		name:       r.optionalText(wrapper, submitterName, "submitter_name", link),
		ads:        &ads,
		membership: &membership,
	}

	spans, err := wrapper.QueryAll(submitterSpans)
	if err != nil {
		r.fieldMissing("submitter_details", link, err)
		return info
	}
	for _, span := range spans {
		text, err := span.InnerText()
		if err != nil {
			continue
		}
		text = strings.TrimSpace(text)
		switch {
		case adsPattern.MatchString(text):
			v := text
			info.ads = &v
		case membershipPattern.MatchString(text):
			v := text
			info.membership = &v
		}
	}
	return info
}

type nextData struct {
	Props struct {
		PageProps struct {
			Listing struct {
				Phone json.RawMessage `json:"phone"`
			} `json:"listing"`
		} `json:"pageProps"`
	} `json:"props"`
}

// phone reads the number from the page's embedded Next.js payload.
func (r *DetailResolver) phone(page pagereader.Page, link string) *string {
	script, err := pagereader.First(page, nextDataSelector)
	if err != nil {
		r.fieldMissing("phone", link, err)
		return nil
	}
	raw, err := script.InnerHTML()
	if err != nil {
		r.fieldMissing("phone", link, err)
		return nil
	}

	phone, err := phoneFromNextData(raw)
	if err != nil {
		r.fieldMissing("phone", link, err)
		return nil
	}
	return phone
}

func phoneFromNextData(raw string) (*string, error) {
	var data nextData
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &data); err != nil {
		return nil, fmt.Errorf("decode next data: %w", err)
	}

	v := data.Props.PageProps.Listing.Phone
	if len(v) == 0 || string(v) == "null" {
		return nil, errors.New("no phone in next data")
	}

	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return models.StringPtr(s), nil
	}
	// Some listings carry the number as a JSON number.
	return models.StringPtr(string(v)), nil
}

func (r *DetailResolver) relativePhrase(ctx context.Context, page pagereader.Page, link string) *string {
	if err := page.WaitFor(ctx, topDataSelector, 10*time.Second); err != nil {
		r.fieldMissing("relative_date", link, err)
	}

	items, err := page.QueryAll(dataItemSelector)
	if err != nil {
		r.fieldMissing("relative_date", link, err)
		return nil
	}
	for _, item := range items {
		text, err := item.InnerText()
		if err != nil || !hasRelativeMarker(text) {
			continue
		}
		value, err := pagereader.Text(item, dataValueSelector)
		if err != nil {
			continue
		}
		return models.StringPtr(value)
	}
	return nil
}

func hasRelativeMarker(text string) bool {
	lower := strings.ToLower(text)
	for _, m := range relativeDateMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}
