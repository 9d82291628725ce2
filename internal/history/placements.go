package history

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"rsyaclean/internal/model"
)

type placementDoc struct {
	CampaignID  int64     `bson:"campaign_id"`
	Domain      string    `bson:"domain"`
	Impressions int64     `bson:"impressions"`
	Clicks      int64     `bson:"clicks"`
	Cost        float64   `bson:"cost"`
	Conversions int64     `bson:"conversions"`
	SeenAt      time.Time `bson:"seen_at"`
}

func (m *mongoStore) RecordPlacements(ctx context.Context, placements []model.Placement) error {
	if len(placements) == 0 {
		return nil
	}

	now := time.Now()
	ops := make([]mongo.WriteModel, 0, len(placements))

	for _, p := range placements {
		domain := strings.ToLower(strings.TrimSpace(p.Domain))
		if domain == "" {
			continue
		}

		filter := bson.M{"campaign_id": p.CampaignID, "domain": domain}
		update := bson.M{
			"$set": bson.M{
				"impressions": p.Impressions,
				"clicks":      p.Clicks,
				"cost":        p.Cost,
				"conversions": p.Conversions,
				"seen_at":     now,
			},
		}

		op := mongo.NewUpdateOneModel()
		op.SetFilter(filter)
		op.SetUpdate(update)
		op.SetUpsert(true)
		ops = append(ops, op)
	}

	if len(ops) == 0 {
		return nil
	}

	result, err := m.placementsCol.BulkWrite(ctx, ops)
	if err != nil {
		log.Error().Err(err).Int("count", len(ops)).Msg("Failed to record placement history")
		return err
	}

	log.Debug().
		Int64("modified", result.ModifiedCount).
		Int64("upserted", result.UpsertedCount).
		Msg("Recorded placement history")

	return nil
}

func (m *mongoStore) LatestMetrics(ctx context.Context, campaignID int64, domains []string) (map[string]model.Placement, error) {
	metrics := make(map[string]model.Placement, len(domains))
	if len(domains) == 0 {
		return metrics, nil
	}

	filter := bson.M{
		"campaign_id": campaignID,
		"domain":      bson.M{"$in": domains},
	}

	cursor, err := m.placementsCol.Find(ctx, filter)
	if err != nil {
		log.Error().Err(err).Int64("campaignID", campaignID).Msg("Failed to load placement history")
		return nil, err
	}
	defer cursor.Close(ctx)

	for cursor.Next(ctx) {
		var doc placementDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		metrics[doc.Domain] = model.Placement{
			CampaignID:  doc.CampaignID,
			Domain:      doc.Domain,
			Impressions: doc.Impressions,
			Clicks:      doc.Clicks,
			Cost:        doc.Cost,
			Conversions: doc.Conversions,
		}
	}

	if err := cursor.Err(); err != nil {
		return nil, err
	}

	return metrics, nil
}
