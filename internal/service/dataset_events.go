package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
)

// DatasetEvent announces that a new roster generation became current.
type DatasetEvent struct {
	Type         string    `json:"type"`
	GenerationID string    `json:"generation_id"`
	FileName     string    `json:"file_name,omitempty"`
	Inserted     int       `json:"inserted"`
	Rejected     int       `json:"rejected"`
	Removed      int64     `json:"removed"`
	PublishedAt  time.Time `json:"published_at"`
}

const (
	DatasetEventReplaced = "dataset.replaced"
	DatasetEventCleared  = "dataset.cleared"
)

// DatasetPublisher fans dataset events out to other services.
type DatasetPublisher interface {
	Publish(ctx context.Context, event DatasetEvent) error
}

type natsDatasetPublisher struct {
	conn    *nats.Conn
	subject string
}

// NewNATSDatasetPublisher publishes events on subject. A nil connection
// yields a publisher that drops events.
func NewNATSDatasetPublisher(conn *nats.Conn, subject string) DatasetPublisher {
	if subject == "" {
		subject = "roster"
	}
	return &natsDatasetPublisher{conn: conn, subject: subject}
}

func (p *natsDatasetPublisher) Publish(ctx context.Context, event DatasetEvent) error {
	if p.conn == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	return p.conn.Publish(p.subject+"."+event.Type, payload)
}
