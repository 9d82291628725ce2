package cache

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"rsyaclean/internal/model"
)

const reportDateLayout = "2006-01-02"

// Reports caches parsed placement reports per campaign set and date range so
// that one window is ordered from the source once per TTL
type Reports interface {
	Get(ctx context.Context, campaignIDs []int64, from, to time.Time) ([]model.Placement, error)
	Put(ctx context.Context, campaignIDs []int64, from, to time.Time, placements []model.Placement) error
}

type reportCache struct {
	cache Cache
	ttl   time.Duration
}

func NewReportCache(c Cache, ttl time.Duration) Reports {
	return &reportCache{cache: c, ttl: ttl}
}

// ReportKey is independent of campaign order
func ReportKey(campaignIDs []int64, from, to time.Time) string {
	ids := slices.Clone(campaignIDs)
	slices.Sort(ids)

	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}

	sum := sha1.Sum([]byte(strings.Join(parts, ",")))
	return fmt.Sprintf("report:%s:%s:%s", hex.EncodeToString(sum[:8]), from.Format(reportDateLayout), to.Format(reportDateLayout))
}

func (r *reportCache) Get(ctx context.Context, campaignIDs []int64, from, to time.Time) ([]model.Placement, error) {
	raw, err := r.cache.Get(ctx, ReportKey(campaignIDs, from, to))
	if err != nil {
		return nil, err
	}

	key := ReportKey(campaignIDs, from, to)
	var placements []model.Placement
	if err := json.Unmarshal(raw, &placements); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Discarding undecodable cached report")
		if delErr := r.cache.Delete(ctx, key); delErr != nil {
			log.Warn().Err(delErr).Str("key", key).Msg("Failed to drop undecodable cached report")
		}
		return nil, ErrCacheMiss
	}

	return placements, nil
}

func (r *reportCache) Put(ctx context.Context, campaignIDs []int64, from, to time.Time, placements []model.Placement) error {
	raw, err := json.Marshal(placements)
	if err != nil {
		return err
	}

	return r.cache.Set(ctx, ReportKey(campaignIDs, from, to), raw, r.ttl)
}

// NopReports never hits. Used when Redis is not configured.
type NopReports struct{}

func (NopReports) Get(context.Context, []int64, time.Time, time.Time) ([]model.Placement, error) {
	return nil, ErrCacheMiss
}

func (NopReports) Put(context.Context, []int64, time.Time, time.Time, []model.Placement) error {
	return nil
}
