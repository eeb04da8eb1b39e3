package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

var _ OutboxRepo = (*sqlStore)(nil)

func (s *sqlStore) EnqueueOutboxMessage(ctx context.Context, recipient, kind, payloadJSON, dedupeKey string) (string, error) {
	now := utc(time.Now())

	if dedupeKey != "" {
		var existingID string
		err := s.queryRow(ctx,
			`SELECT id FROM outbox_messages WHERE dedupe_key = ? AND status <> 'canceled'`,
			dedupeKey,
		).Scan(&existingID)
		if err == nil {
			slog.Debug(s.name+".EnqueueOutboxMessage: dedupe hit", "dedupeKey", dedupeKey, "existingID", existingID)
			return existingID, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("outbox dedupe check failed: %w", err)
		}
	}

	id := uuid.NewString()
	_, err := s.exec(ctx,
		`INSERT INTO outbox_messages (id, recipient, kind, payload_json, status, attempts, dedupe_key, created_at, updated_at)
		 VALUES (?, ?, ?, ?, 'queued', 0, ?, ?, ?)`,
		id, recipient, kind, payloadJSON, nilIfEmpty(dedupeKey), now, now,
	)
	if err != nil {
		return "", fmt.Errorf("enqueue outbox message failed: %w", err)
	}
	slog.Debug(s.name+".EnqueueOutboxMessage", "id", id, "recipient", recipient, "kind", kind)
	return id, nil
}

func (s *sqlStore) ClaimDueOutboxMessages(ctx context.Context, now time.Time, limit int) ([]OutboxMessage, error) {
	now = utc(now)
	rows, err := s.query(ctx,
		`SELECT `+outboxColumns+`
		 FROM outbox_messages WHERE status = 'queued' AND (next_attempt_at IS NULL OR next_attempt_at <= ?)
		 ORDER BY created_at ASC LIMIT ?`,
		now, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("claim due outbox messages failed: %w", err)
	}
	var due []OutboxMessage
	for rows.Next() {
		m, err := scanOutboxMessage(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		due = append(due, m)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("claim outbox iteration failed: %w", err)
	}

	claimed := due[:0]
	for _, m := range due {
		res, err := s.exec(ctx,
			`UPDATE outbox_messages SET status = 'sending', locked_at = ?, updated_at = ? WHERE id = ? AND status = 'queued'`,
			now, now, m.ID,
		)
		if err != nil {
			return nil, fmt.Errorf("mark outbox sending failed: %w", err)
		}
		if n, _ := res.RowsAffected(); n != 1 {
			continue
		}
		lockedAt := now
		m.Status = OutboxStatusSending
		m.LockedAt = &lockedAt
		claimed = append(claimed, m)
	}
	return claimed, nil
}

func (s *sqlStore) MarkOutboxMessageSent(ctx context.Context, id string) error {
	_, err := s.exec(ctx,
		`UPDATE outbox_messages SET status = 'sent', locked_at = NULL, updated_at = ? WHERE id = ?`,
		utc(time.Now()), id,
	)
	if err != nil {
		return fmt.Errorf("mark outbox sent failed: %w", err)
	}
	return nil
}

func (s *sqlStore) FailOutboxMessage(ctx context.Context, id string, errMsg string, nextAttemptAt time.Time) error {
	_, err := s.exec(ctx,
		`UPDATE outbox_messages SET status = 'queued', attempts = attempts + 1, last_error = ?, next_attempt_at = ?, locked_at = NULL, updated_at = ? WHERE id = ?`,
		errMsg, utc(nextAttemptAt), utc(time.Now()), id,
	)
	if err != nil {
		return fmt.Errorf("fail outbox message failed: %w", err)
	}
	return nil
}

func (s *sqlStore) AbandonOutboxMessage(ctx context.Context, id string, errMsg string) error {
	_, err := s.exec(ctx,
		`UPDATE outbox_messages SET status = 'failed', attempts = attempts + 1, last_error = ?, next_attempt_at = NULL, locked_at = NULL, updated_at = ? WHERE id = ?`,
		errMsg, utc(time.Now()), id,
	)
	if err != nil {
		return fmt.Errorf("abandon outbox message failed: %w", err)
	}
	return nil
}

func (s *sqlStore) RequeueStaleSendingMessages(ctx context.Context, staleBefore time.Time) (int, error) {
	result, err := s.exec(ctx,
		`UPDATE outbox_messages SET status = 'queued', locked_at = NULL, updated_at = ? WHERE status = 'sending' AND locked_at < ?`,
		utc(time.Now()), utc(staleBefore),
	)
	if err != nil {
		return 0, fmt.Errorf("requeue stale outbox messages failed: %w", err)
	}
	n, _ := result.RowsAffected()
	if n > 0 {
		slog.Info(s.name+".RequeueStaleSendingMessages", "requeued", n)
	}
	return int(n), nil
}
