// Package history keeps the most recent known metrics for every placement a
// campaign has been shown on, plus an audit trail of blocked domains.
package history

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"rsyaclean/internal/config"
	"rsyaclean/internal/model"
)

type Store interface {
	Health() error
	Close(ctx context.Context) error

	// RecordPlacements upserts the latest metrics per (campaign, domain)
	RecordPlacements(ctx context.Context, placements []model.Placement) error

	// LatestMetrics returns whatever is on record for the given domains.
	// Domains with no history are absent from the result.
	LatestMetrics(ctx context.Context, campaignID int64, domains []string) (map[string]model.Placement, error)

	// RecordBlocks appends an audit entry for every domain pushed to or
	// evicted from a campaign exclusion list
	RecordBlocks(ctx context.Context, campaignID int64, domains []string, action BlockAction) error
}

type mongoStore struct {
	client *mongo.Client
	db     *mongo.Database

	placementsCol *mongo.Collection
	blocksCol     *mongo.Collection
}

func New(cfg *config.Config) (Store, error) {
	clientOptions := options.Client().ApplyURI(cfg.MongoDB.URI)
	if cfg.MongoDB.Username != "" {
		clientOptions.SetAuth(options.Credential{
			Username: cfg.MongoDB.Username,
			Password: cfg.MongoDB.Password,
		})
	}

	client, err := mongo.Connect(context.TODO(), clientOptions)
	if err != nil {
		return nil, err
	}

	db := client.Database(cfg.MongoDB.DB)
	store := newStore(client, db)

	placementIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "campaign_id", Value: 1}, {Key: "domain", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			// Drop history nobody has reported on for 90 days
			Keys:    bson.D{{Key: "seen_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(60 * 60 * 24 * 90),
		},
	}

	blockIndexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "campaign_id", Value: 1}, {Key: "created_at", Value: -1}},
		},
		{
			Keys: bson.D{{Key: "domain", Value: 1}},
		},
	}

	if _, err := store.placementsCol.Indexes().CreateMany(context.Background(), placementIndexes); err != nil {
		log.Warn().Err(err).Str("Collection", "placements").Msg("Error creating indexes")
	}

	if _, err := store.blocksCol.Indexes().CreateMany(context.Background(), blockIndexes); err != nil {
		log.Warn().Err(err).Str("Collection", "blocks").Msg("Error creating indexes")
	}

	return store, nil
}

func newStore(client *mongo.Client, db *mongo.Database) *mongoStore {
	return &mongoStore{
		client:        client,
		db:            db,
		placementsCol: db.Collection("placements"),
		blocksCol:     db.Collection("blocks"),
	}
}

func (m *mongoStore) Health() error {
	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	if err := m.client.Ping(ctx, nil); err != nil {
		log.Error().Msgf("History store health error: %v", err)
		return err
	}

	return nil
}

func (m *mongoStore) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}
