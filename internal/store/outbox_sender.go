package store

import (
	"context"
	"log/slog"
	"time"
)

// Outbox sender defaults.
const (
	DefaultOutboxPollInterval = 5 * time.Second
	// DefaultOutboxMaxAttempts bounds delivery attempts before a message is marked failed.
	DefaultOutboxMaxAttempts = 10
	maxBackoff               = time.Hour
)

// OutboxSendFunc delivers one claimed message. A returned error schedules a retry.
type OutboxSendFunc func(ctx context.Context, msg OutboxMessage) error

// OutboxSender claims due outbox messages on a poll interval and delivers them.
type OutboxSender struct {
	repo           OutboxRepo
	send           OutboxSendFunc
	pollInterval   time.Duration
	staleThreshold time.Duration
	claimLimit     int
	maxAttempts    int
	now            func() time.Time
}

// NewOutboxSender creates an OutboxSender. A non-positive pollInterval uses DefaultOutboxPollInterval.
func NewOutboxSender(repo OutboxRepo, send OutboxSendFunc, pollInterval time.Duration) *OutboxSender {
	if pollInterval <= 0 {
		pollInterval = DefaultOutboxPollInterval
	}
	return &OutboxSender{
		repo:           repo,
		send:           send,
		pollInterval:   pollInterval,
		staleThreshold: 5 * time.Minute,
		claimLimit:     10,
		maxAttempts:    DefaultOutboxMaxAttempts,
		now:            time.Now,
	}
}

// RecoverStaleMessages requeues messages a crashed process left in sending state.
// Call it once at startup, before Run.
func (s *OutboxSender) RecoverStaleMessages(ctx context.Context) error {
	n, err := s.repo.RequeueStaleSendingMessages(ctx, s.now().Add(-s.staleThreshold))
	if err != nil {
		return err
	}
	if n > 0 {
		slog.Info("OutboxSender.RecoverStaleMessages: requeued stale messages", "count", n)
	}
	return nil
}

// Run polls until ctx is cancelled.
func (s *OutboxSender) Run(ctx context.Context) {
	slog.Info("OutboxSender.Run: started", "pollInterval", s.pollInterval, "maxAttempts", s.maxAttempts)

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("OutboxSender.Run: stopping")
			return
		case <-ticker.C:
			s.Poll(ctx)
		}
	}
}

// Poll claims and delivers due messages once.
func (s *OutboxSender) Poll(ctx context.Context) {
	now := s.now()
	msgs, err := s.repo.ClaimDueOutboxMessages(ctx, now, s.claimLimit)
	if err != nil {
		slog.Error("OutboxSender.Poll: claim failed", "error", err)
		return
	}
	for _, msg := range msgs {
		s.deliver(ctx, msg, now)
	}
}

func (s *OutboxSender) deliver(ctx context.Context, msg OutboxMessage, now time.Time) {
	slog.Debug("OutboxSender.deliver: sending", "id", msg.ID, "recipient", msg.Recipient, "kind", msg.Kind, "attempt", msg.Attempts+1)
	sendErr := s.send(ctx, msg)
	if sendErr == nil {
		if err := s.repo.MarkOutboxMessageSent(ctx, msg.ID); err != nil {
			slog.Error("OutboxSender.deliver: mark sent failed", "id", msg.ID, "error", err)
		}
		return
	}

	if msg.Attempts+1 >= s.maxAttempts {
		slog.Error("OutboxSender.deliver: giving up", "id", msg.ID, "kind", msg.Kind, "attempts", msg.Attempts+1, "error", sendErr)
		if err := s.repo.AbandonOutboxMessage(ctx, msg.ID, sendErr.Error()); err != nil {
			slog.Error("OutboxSender.deliver: abandon failed", "id", msg.ID, "error", err)
		}
		return
	}

	next := now.Add(retryBackoff(msg.Attempts))
	slog.Warn("OutboxSender.deliver: send failed, retrying", "id", msg.ID, "kind", msg.Kind, "next_attempt_at", next, "error", sendErr)
	if err := s.repo.FailOutboxMessage(ctx, msg.ID, sendErr.Error(), next); err != nil {
		slog.Error("OutboxSender.deliver: schedule retry failed", "id", msg.ID, "error", err)
	}
}

// retryBackoff doubles from 10s per attempt: 10s, 20s, 40s, ... up to maxBackoff.
func retryBackoff(attempts int) time.Duration {
	if attempts > 12 {
		return maxBackoff
	}
	d := time.Duration(10*(1<<attempts)) * time.Second
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}
