package window

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/listing-harvester/internal/models"
)

func record(link string, published *time.Time) models.ListingRecord {
	return models.ListingRecord{
		ListingSummary: models.ListingSummary{Link: link},
		PublishedAt:    published,
	}
}

func at(y int, m time.Month, d, h int) *time.Time {
	t := time.Date(y, m, d, h, 0, 0, 0, time.UTC)
	return &t
}

func TestYesterday(t *testing.T) {
	now := time.Date(2024, 3, 1, 0, 30, 0, 0, time.UTC)
	assert.Equal(t, "2024-02-29", Yesterday(now).Date)
	assert.Equal(t, "2024-02-29", Yesterday(now).String())
}

func TestParse(t *testing.T) {
	w, err := Parse("2024-05-09")
	require.NoError(t, err)
	assert.Equal(t, "2024-05-09", w.Date)

	_, err = Parse("09/05/2024")
	assert.Error(t, err)
}

func TestFilter(t *testing.T) {
	records := []models.ListingRecord{
		record("a", at(2024, 5, 9, 1)),
		record("b", at(2024, 5, 10, 1)),
		record("c", nil),
		record("d", at(2024, 5, 9, 23)),
		record("e", at(2023, 5, 9, 12)),
	}

	got := Filter(records, "2024-05-09")
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].Link)
	assert.Equal(t, "d", got[1].Link)

	assert.Len(t, records, 5, "input must not be modified")
	assert.Nil(t, records[2].PublishedAt)
}

func TestFilterIdempotent(t *testing.T) {
	records := []models.ListingRecord{
		record("a", at(2024, 5, 9, 1)),
		record("b", at(2024, 5, 8, 1)),
		record("c", at(2024, 5, 9, 5)),
	}

	once := Filter(records, "2024-05-09")
	twice := Filter(once, "2024-05-09")
	assert.Equal(t, once, twice)
}

func TestFilterEmpty(t *testing.T) {
	assert.Empty(t, Filter(nil, "2024-05-09"))
}
