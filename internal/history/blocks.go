package history

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// BlockAction says what happened to a domain in an exclusion list
type BlockAction string

const (
	ActionBlocked BlockAction = "blocked"
	ActionEvicted BlockAction = "evicted"
)

type blockDoc struct {
	CampaignID int64       `bson:"campaign_id"`
	Domain     string      `bson:"domain"`
	Action     BlockAction `bson:"action"`
	CreatedAt  time.Time   `bson:"created_at"`
}

func (m *mongoStore) RecordBlocks(ctx context.Context, campaignID int64, domains []string, action BlockAction) error {
	if len(domains) == 0 {
		return nil
	}

	now := time.Now()
	docs := make([]interface{}, len(domains))
	for i, d := range domains {
		docs[i] = blockDoc{
			CampaignID: campaignID,
			Domain:     d,
			Action:     action,
			CreatedAt:  now,
		}
	}

	if _, err := m.blocksCol.InsertMany(ctx, docs); err != nil {
		log.Error().Err(err).Int64("campaignID", campaignID).Str("action", string(action)).Msg("Failed to record block audit")
		return err
	}

	return nil
}
