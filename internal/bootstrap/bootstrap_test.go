package bootstrap

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/campaignsync/internal/audience"
	"github.com/ignite/campaignsync/internal/campaign"
	"github.com/ignite/campaignsync/internal/config"
	"github.com/ignite/campaignsync/internal/pkg/clock"
	"github.com/ignite/campaignsync/internal/pkg/distlock"
)

func memoryConfig() *config.Config {
	cfg := config.Default()
	cfg.Storage.Type = "memory"
	cfg.Notify.Type = "none"
	cfg.Site.Name = "Daily News"
	cfg.Site.AdminEmail = "editor@news.example.com"
	cfg.Site.Timezone = "America/Chicago"
	return cfg
}

func TestNewWiresMemoryBackends(t *testing.T) {
	app, err := New(context.Background(), memoryConfig(), WithClock(clock.NewFixed(time.Date(2026, 3, 11, 10, 0, 0, 0, time.UTC))))
	require.NoError(t, err)
	defer app.Close()

	assert.False(t, app.Mailchimp.Configured())
	assert.False(t, app.Content.Configured())

	st, err := app.Repo.Get(context.Background(), "aud1")
	require.NoError(t, err)
	assert.Equal(t, "America/Chicago", st.Timezone.Label)
	assert.Equal(t, "editor@news.example.com", st.PreviewEmailAddresses)

	p, err := app.Repo.Plugin(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Daily News", p.DefaultFromName)

	_, err = app.Service.Audiences(context.Background(), false)
	assert.ErrorIs(t, err, campaign.ErrUnavailable)
}

func TestStoredAPIKeyIsUsed(t *testing.T) {
	cfg := memoryConfig()
	cfg.Storage.Type = "local"
	cfg.Storage.LocalPath = t.TempDir()

	first, err := New(context.Background(), cfg)
	require.NoError(t, err)
	key := "0123456789abcdef0123456789abcdef-us21"
	_, err = first.Repo.UpdatePlugin(context.Background(), audience.PluginPatch{APIKey: &key})
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := New(context.Background(), cfg)
	require.NoError(t, err)
	defer second.Close()
	assert.True(t, second.Mailchimp.Configured())
}

func TestHealthEndpoint(t *testing.T) {
	app, err := New(context.Background(), memoryConfig())
	require.NoError(t, err)
	defer app.Close()

	rr := httptest.NewRecorder()
	app.Server().Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"storage"`)
	assert.Contains(t, rr.Body.String(), `"degraded"`, "mailchimp is not configured")
}

func TestUnknownStorage(t *testing.T) {
	cfg := memoryConfig()
	cfg.Storage.Type = "floppy"
	_, err := New(context.Background(), cfg)
	assert.Error(t, err)
}

func TestLockBackend(t *testing.T) {
	ctx := context.Background()
	app, err := New(ctx, memoryConfig())
	require.NoError(t, err)
	defer app.Close()
	assert.IsType(t, &distlock.Local{}, app.Lock("reconcile", time.Minute))

	mr := miniredis.RunT(t)
	cfg := memoryConfig()
	cfg.Cache.Type = "redis"
	cfg.Cache.RedisURL = "redis://" + mr.Addr()
	shared, err := New(ctx, cfg)
	require.NoError(t, err)
	defer shared.Close()

	l := shared.Lock("reconcile", time.Minute)
	require.IsType(t, &distlock.RedisLock{}, l)
	ok, err := l.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, mr.Exists("lock:reconcile"))

	ok, err = shared.Lock("reconcile", time.Minute).Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}
