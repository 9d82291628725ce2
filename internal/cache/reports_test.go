package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rsyaclean/internal/config"
	"rsyaclean/internal/model"
)

func newTestCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	c, err := NewRedisCache(config.RedisConfig{Address: mr.Addr(), Prefix: "test"})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	return c, mr
}

func TestRedisCache_GetSetDelete(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	_, err := c.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))
	assert.True(t, mr.Exists("test:k"))

	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)

	require.NoError(t, c.Delete(ctx, "k"))
	_, err = c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestReportCache_RoundTripAndExpiry(t *testing.T) {
	c, mr := newTestCache(t)
	reports := NewReportCache(c, 15*time.Minute)
	ctx := context.Background()

	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 6)
	placements := []model.Placement{{CampaignID: 1, Domain: "casino-x.com", Clicks: 50, Impressions: 500, Cost: 300}}

	require.NoError(t, reports.Put(ctx, []int64{2, 1}, from, to, placements))

	got, err := reports.Get(ctx, []int64{1, 2}, from, to)
	require.NoError(t, err)
	assert.Equal(t, placements, got)

	mr.FastForward(16 * time.Minute)

	_, err = reports.Get(ctx, []int64{1, 2}, from, to)
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestReportCache_DropsUndecodableEntry(t *testing.T) {
	c, mr := newTestCache(t)
	reports := NewReportCache(c, 15*time.Minute)
	ctx := context.Background()

	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	key := "test:" + ReportKey([]int64{1}, from, from)
	require.NoError(t, mr.Set(key, "{not json"))

	_, err := reports.Get(ctx, []int64{1}, from, from)
	assert.ErrorIs(t, err, ErrCacheMiss)
	assert.False(t, mr.Exists(key))
}

func TestReportKey(t *testing.T) {
	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, ReportKey([]int64{3, 1, 2}, from, from), ReportKey([]int64{1, 2, 3}, from, from))
	assert.NotEqual(t, ReportKey([]int64{1}, from, from), ReportKey([]int64{1}, from, from.AddDate(0, 0, 1)))
}

func TestNopReports(t *testing.T) {
	var r Reports = NopReports{}

	require.NoError(t, r.Put(context.Background(), nil, time.Time{}, time.Time{}, nil))
	_, err := r.Get(context.Background(), nil, time.Time{}, time.Time{})
	assert.ErrorIs(t, err, ErrCacheMiss)
}
