// Package queue defines the messages exchanged over the durable task queue.
package queue

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"rsyaclean/internal/model"
	"rsyaclean/pkg/direct"
)

type MessageType string

const (
	// TypeCampaignBatch asks a worker to process one persisted batch
	TypeCampaignBatch MessageType = "campaign_batch"
	// TypePlacements carries placements from a report that finished late
	TypePlacements MessageType = "placements"
)

// Header keys set on every published message
const (
	HeaderMessageID   = "message_id"
	HeaderMessageType = "message_type"
	HeaderProjectID   = "project_id"
)

var ErrMalformed = errors.New("malformed queue message")

// Message is the body of a queued unit of work
type Message struct {
	MessageID   string              `json:"message_id"`
	Type        MessageType         `json:"type"`
	ProjectID   int64               `json:"project_id"`
	BatchID     int64               `json:"batch_id,omitempty"`
	CampaignIDs []int64             `json:"campaign_ids,omitempty"`
	Credentials *direct.Credentials `json:"credentials,omitempty"`
	TaskID      *int64              `json:"task_id,omitempty"`
	Placements  []model.Placement   `json:"placements,omitempty"`
}

// NewBatchMessage builds the message for a persisted batch
func NewBatchMessage(batch model.Batch, creds *direct.Credentials) Message {
	return Message{
		MessageID:   uuid.NewString(),
		Type:        TypeCampaignBatch,
		ProjectID:   batch.ProjectID,
		BatchID:     batch.ID,
		CampaignIDs: []int64(batch.CampaignIDs),
		Credentials: creds,
	}
}

// NewPlacementsMessage builds the message for placements of a completed report
func NewPlacementsMessage(projectID int64, taskID *int64, placements []model.Placement) Message {
	return Message{
		MessageID:  uuid.NewString(),
		Type:       TypePlacements,
		ProjectID:  projectID,
		TaskID:     taskID,
		Placements: placements,
	}
}

// Validate checks the fields required by the message type
func (m Message) Validate() error {
	if m.ProjectID <= 0 {
		return fmt.Errorf("%w: project_id is required", ErrMalformed)
	}

	switch m.Type {
	case TypeCampaignBatch:
		if m.BatchID <= 0 {
			return fmt.Errorf("%w: batch_id is required", ErrMalformed)
		}
		if len(m.CampaignIDs) == 0 {
			return fmt.Errorf("%w: campaign_ids is empty", ErrMalformed)
		}
	case TypePlacements:
		if len(m.Placements) == 0 {
			return fmt.Errorf("%w: placements is empty", ErrMalformed)
		}
	default:
		return fmt.Errorf("%w: unknown type %q", ErrMalformed, m.Type)
	}
	return nil
}

// Encode marshals the message and returns the headers to publish it with
func Encode(m Message) ([]byte, amqp.Table, error) {
	if m.MessageID == "" {
		m.MessageID = uuid.NewString()
	}
	if err := m.Validate(); err != nil {
		return nil, nil, err
	}

	body, err := json.Marshal(m)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal message: %w", err)
	}

	headers := amqp.Table{
		HeaderMessageID:   m.MessageID,
		HeaderMessageType: string(m.Type),
		HeaderProjectID:   m.ProjectID,
	}
	return body, headers, nil
}

// Decode parses and validates a message body
func Decode(body []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(body, &m); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := m.Validate(); err != nil {
		return Message{}, err
	}
	return m, nil
}
