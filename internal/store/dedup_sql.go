package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var _ DedupRepo = (*sqlStore)(nil)

func (s *sqlStore) IsDuplicate(ctx context.Context, messageID string) (bool, error) {
	var id string
	err := s.queryRow(ctx, `SELECT message_id FROM inbound_dedup WHERE message_id = ?`, messageID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("dedup check failed: %w", err)
	}
	return true, nil
}

func (s *sqlStore) RecordInbound(ctx context.Context, messageID, prospectID string) (bool, error) {
	result, err := s.exec(ctx,
		`INSERT INTO inbound_dedup (message_id, prospect_id, received_at) VALUES (?, ?, ?) ON CONFLICT (message_id) DO NOTHING`,
		messageID, prospectID, utc(time.Now()),
	)
	if err != nil {
		return false, fmt.Errorf("record inbound failed: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("dedup rows affected check failed: %w", err)
	}
	return n > 0, nil
}

func (s *sqlStore) MarkProcessed(ctx context.Context, messageID string) error {
	_, err := s.exec(ctx,
		`UPDATE inbound_dedup SET processed_at = ? WHERE message_id = ?`,
		utc(time.Now()), messageID,
	)
	if err != nil {
		return fmt.Errorf("mark processed failed: %w", err)
	}
	return nil
}
