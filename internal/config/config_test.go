package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv(CredentialsEnv, `{"type":"service_account"}`)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ProfileElectronics, cfg.Profile)
	assert.Equal(t, ReaderBrowser, cfg.Scraper.Reader)
	assert.Equal(t, 3, cfg.Scraper.MaxAttempts)
	assert.Equal(t, 3*time.Second, cfg.Scraper.PageDelay)
	assert.Zero(t, cfg.Scraper.PageJitter)
	assert.Equal(t, 2, cfg.Scheduler.ChunkSize)
	assert.Equal(t, 2, cfg.Scheduler.MaxParallel)
	assert.Equal(t, 10*time.Second, cfg.Scheduler.ChunkDelay)
	assert.Equal(t, "scraper.log", cfg.Logging.File)
	assert.Equal(t, "harvest:events", cfg.Redis.Stream)
	assert.Equal(t, 12*time.Hour, cfg.Memcache.TTL)
	assert.Empty(t, cfg.Memcache.Servers)
	assert.Equal(t, "Asia/Kuwait", cfg.Location().String())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv(CredentialsEnv, `{}`)
	t.Setenv("HARVEST_PROFILE", ProfileElectronicsHierarchical)
	t.Setenv("PAGE_READER", "HTTP")
	t.Setenv("SCHEDULER_MAX_PARALLEL", "4")
	t.Setenv("SCRAPER_PAGE_DELAY", "500ms")
	t.Setenv("SCRAPER_PAGE_JITTER", "1.5s")
	t.Setenv("MEMCACHE_ADDR", "10.0.0.1:11211, 10.0.0.2:11211")
	t.Setenv("SCHEDULER_CHUNK_SIZE", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ProfileElectronicsHierarchical, cfg.Profile)
	assert.Equal(t, ReaderHTTP, cfg.Scraper.Reader)
	assert.Equal(t, 4, cfg.Scheduler.MaxParallel)
	assert.Equal(t, 500*time.Millisecond, cfg.Scraper.PageDelay)
	assert.Equal(t, 1500*time.Millisecond, cfg.Scraper.PageJitter)
	assert.Equal(t, []string{"10.0.0.1:11211", "10.0.0.2:11211"}, cfg.Memcache.Servers)
	assert.Equal(t, 2, cfg.Scheduler.ChunkSize, "unparsable values fall back to the default")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{name: "missing credentials", env: map[string]string{CredentialsEnv: ""}, wantErr: CredentialsEnv},
		{name: "credentials not needed without drive", env: map[string]string{CredentialsEnv: "", "DRIVE_ENABLED": "false"}},
		{name: "unknown profile", env: map[string]string{"HARVEST_PROFILE": "furniture"}, wantErr: "unknown HARVEST_PROFILE"},
		{name: "unknown reader", env: map[string]string{"PAGE_READER": "curl"}, wantErr: "PAGE_READER"},
		{name: "zero parallelism", env: map[string]string{"SCHEDULER_MAX_PARALLEL": "0"}, wantErr: "SCHEDULER_MAX_PARALLEL"},
		{name: "negative jitter", env: map[string]string{"SCRAPER_PAGE_JITTER": "-1s"}, wantErr: "SCRAPER_PAGE_JITTER"},
		{name: "zero attempts", env: map[string]string{"SCRAPER_MAX_ATTEMPTS": "0"}, wantErr: "SCRAPER_MAX_ATTEMPTS"},
		{name: "backoff inverted", env: map[string]string{"SCRAPER_BACKOFF_BASE": "20s"}, wantErr: "SCRAPER_BACKOFF_BASE"},
		{name: "bad timezone", env: map[string]string{"SITE_TIMEZONE": "Mars/Olympus"}, wantErr: "SITE_TIMEZONE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(CredentialsEnv, `{}`)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestProfiles(t *testing.T) {
	assert.Equal(t, []string{ProfileElectronics, ProfileElectronicsHierarchical}, ProfileNames())

	flat, err := ProfileByName(ProfileElectronics)
	require.NoError(t, err)
	require.Len(t, flat.Categories, 12)
	assert.Equal(t, DefaultParentFolderID, flat.ParentFolderID)

	total := 0
	for _, c := range flat.Categories {
		assert.True(t, c.Flat, c.Name)
		assert.True(t, strings.HasSuffix(c.URL, "/"+c.Name+"/{}"), c.URL)
		assert.NotEmpty(t, c.Label)
		total += c.PageDepth
	}
	assert.Equal(t, 23, total)
	assert.Equal(t, "https://www.q84sale.com/ar/electronics/laptop-and-computer/2", flat.Categories[5].AsBrand().PageURL(2))

	hier, err := ProfileByName(ProfileElectronicsHierarchical)
	require.NoError(t, err)
	require.Len(t, hier.Categories, 4)

	cameras := hier.Categories[0]
	assert.False(t, cameras.Flat)
	assert.Equal(t, 5, cameras.DepthFor("كاميرات مراقبة"))
	assert.Equal(t, 1, cameras.DepthFor("عدسات"))
	assert.Equal(t, 4, hier.Categories[1].DepthFor("بيع حسابات"))
	assert.Equal(t, 1, hier.Categories[3].DepthFor("anything"))
}

func TestProfileByNameReturnsCopy(t *testing.T) {
	p, err := ProfileByName(ProfileElectronics)
	require.NoError(t, err)
	p.Categories[0].PageDepth = 99

	again, err := ProfileByName(ProfileElectronics)
	require.NoError(t, err)
	assert.Equal(t, 3, again.Categories[0].PageDepth)
}

func TestSelect(t *testing.T) {
	p, err := ProfileByName(ProfileElectronicsHierarchical)
	require.NoError(t, err)

	all, err := p.Select(nil)
	require.NoError(t, err)
	assert.Len(t, all, 4)

	some, err := p.Select([]string{"electronics-shops", "cameras"})
	require.NoError(t, err)
	require.Len(t, some, 2)
	assert.Equal(t, "cameras", some[0].Name)
	assert.Equal(t, "electronics-shops", some[1].Name)

	_, err = p.Select([]string{"cameras", "phones"})
	assert.ErrorContains(t, err, "phones")
}
