package store

import (
	"context"
	"time"
)

// DedupRecord represents an inbound event deduplication record.
type DedupRecord struct {
	MessageID   string     `json:"message_id"`
	ProspectID  string     `json:"prospect_id"`
	ReceivedAt  time.Time  `json:"received_at"`
	ProcessedAt *time.Time `json:"processed_at"`
}

// DedupRepo defines the interface for inbound event deduplication.
type DedupRepo interface {
	// IsDuplicate checks if an event ID has already been recorded.
	IsDuplicate(ctx context.Context, messageID string) (bool, error)

	// RecordInbound inserts a new inbound event record. Returns false if the
	// event was already recorded (duplicate).
	RecordInbound(ctx context.Context, messageID, prospectID string) (bool, error)

	// MarkProcessed sets the processed_at timestamp for an event.
	MarkProcessed(ctx context.Context, messageID string) error
}
