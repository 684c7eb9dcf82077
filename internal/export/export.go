// Package export writes a category's window-filtered records to an .xlsx
// workbook, one sheet per brand.
package export

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/xuri/excelize/v2"

	"github.com/maltedev/listing-harvester/internal/models"
)

const maxSheetName = 31

var header = []any{
	"id", "date_published", "relative_date", "pin", "type", "title", "description",
	"link", "image", "price", "address", "additional_details", "specifications",
	"views_no", "submitter", "ads", "membership", "phone",
}

type Writer struct {
	dir    string
	logger *slog.Logger
}

func NewWriter(dir string, logger *slog.Logger) *Writer {
	return &Writer{dir: dir, logger: logger.With("component", "export")}
}

// WriteCategory writes the workbook and returns its path. When no brand has
// a record it writes nothing and returns "".
func (w *Writer) WriteCategory(name string, brands []models.BrandRecords) (string, error) {
	f := excelize.NewFile()
	defer f.Close()

	defaultSheet := f.GetSheetName(0)
	used := map[string]bool{}
	sheets := 0

	for _, b := range brands {
		if len(b.Records) == 0 {
			continue
		}

		sheet := uniqueSheetName(SheetName(b.Brand), used)
		if sheets == 0 {
			if err := f.SetSheetName(defaultSheet, sheet); err != nil {
				return "", fmt.Errorf("rename sheet for brand %s: %w", b.Brand, err)
			}
		} else if _, err := f.NewSheet(sheet); err != nil {
			return "", fmt.Errorf("create sheet for brand %s: %w", b.Brand, err)
		}

		if err := writeSheet(f, sheet, b.Records); err != nil {
			return "", fmt.Errorf("write sheet for brand %s: %w", b.Brand, err)
		}
		sheets++
		w.logger.Info("created sheet", "category", name, "brand", b.Brand, "sheet", sheet, "rows", len(b.Records))
	}

	if sheets == 0 {
		w.logger.Info("no records in window, skipping workbook", "category", name)
		return "", nil
	}

	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}
	path := filepath.Join(w.dir, FileName(name))
	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("save workbook %s: %w", path, err)
	}

	w.logger.Info("saved workbook", "category", name, "path", path, "sheets", sheets)
	return path, nil
}

func writeSheet(f *excelize.File, sheet string, records []models.ListingRecord) error {
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}
	for i, r := range records {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		values := row(r)
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return err
		}
	}
	return nil
}

func row(r models.ListingRecord) []any {
	published := ""
	if r.PublishedAt != nil {
		published = r.PublishedAt.Format(time.DateTime)
	}

	specs := make([]string, 0, len(r.Specifications))
	for _, s := range r.Specifications {
		specs = append(specs, s.Key+": "+s.Value)
	}

	return []any{
		models.Deref(r.ID),
		published,
		models.Deref(r.RelativeDate),
		r.PinnedLabel(),
		r.CategoryLabel,
		r.Title,
		models.Deref(r.Description),
		r.Link,
		models.Deref(r.ImageURL),
		models.Deref(r.Price),
		models.Deref(r.Address),
		strings.Join(r.Attributes, ", "),
		strings.Join(specs, "; "),
		models.Deref(r.Views),
		models.Deref(r.SubmitterName),
		models.Deref(r.SubmitterAds),
		models.Deref(r.SubmitterSince),
		models.Deref(r.Phone),
	}
}

// SheetName keeps only letters and digits and truncates to the 31 characters
// a sheet name may hold.
func SheetName(brand string) string {
	var b strings.Builder
	n := 0
	for _, r := range brand {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			continue
		}
		if n == maxSheetName {
			break
		}
		b.WriteRune(r)
		n++
	}
	if b.Len() == 0 {
		return "Sheet"
	}
	return b.String()
}

// uniqueSheetName appends a counter when two brands sanitize to the same name.
// Excel compares sheet names case-insensitively.
func uniqueSheetName(name string, used map[string]bool) string {
	candidate := name
	for i := 2; used[strings.ToLower(candidate)]; i++ {
		suffix := strconv.Itoa(i)
		runes := []rune(name)
		if len(runes)+len(suffix) > maxSheetName {
			runes = runes[:maxSheetName-len(suffix)]
		}
		candidate = string(runes) + suffix
	}
	used[strings.ToLower(candidate)] = true
	return candidate
}

// FileName returns the workbook file name for a category label.
func FileName(label string) string {
	safe := strings.NewReplacer("/", "_", `\`, "_").Replace(strings.TrimSpace(label))
	if safe == "" {
		safe = "export"
	}
	return safe + ".xlsx"
}
