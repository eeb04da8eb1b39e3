package store

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/BTreeMap/LeadPipe/internal/models"
)

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// rebindDollar rewrites ? placeholders as $1, $2, ... for PostgreSQL.
func rebindDollar(query string) string {
	var sb strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// rebindNone keeps ? placeholders (SQLite).
func rebindNone(query string) string {
	return query
}

// utc normalizes timestamps so lexical comparison in SQLite matches time order.
func utc(t time.Time) time.Time {
	return t.UTC()
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

const prospectColumns = `id, username, first_name, last_name, tier, task, budget, deadline,
	follow_up_count, last_message_at, created_at, updated_at`

// scanProspect scans a Prospect selected with prospectColumns.
func scanProspect(row rowScanner) (models.Prospect, error) {
	var p models.Prospect
	var username, firstName, lastName, task, budget, deadline sql.NullString
	err := row.Scan(
		&p.ID, &username, &firstName, &lastName, &p.Tier, &task, &budget, &deadline,
		&p.FollowUpCount, &p.LastMessageAt, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return p, err
	}
	p.Username = username.String
	p.FirstName = firstName.String
	p.LastName = lastName.String
	p.Task = task.String
	p.Budget = budget.String
	p.Deadline = deadline.String
	return p, nil
}

const outboxColumns = `id, recipient, kind, payload_json, status, attempts, next_attempt_at,
	dedupe_key, locked_at, last_error, created_at, updated_at`

// scanOutboxMessage scans an OutboxMessage selected with outboxColumns.
func scanOutboxMessage(row rowScanner) (OutboxMessage, error) {
	var m OutboxMessage
	var payloadJSON, dedupeKey, lastError sql.NullString
	var nextAttemptAt, lockedAt sql.NullTime
	err := row.Scan(
		&m.ID, &m.Recipient, &m.Kind, &payloadJSON, &m.Status, &m.Attempts,
		&nextAttemptAt, &dedupeKey, &lockedAt, &lastError, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return m, fmt.Errorf("scan outbox message failed: %w", err)
	}
	m.PayloadJSON = payloadJSON.String
	m.DedupeKey = dedupeKey.String
	m.LastError = lastError.String
	if nextAttemptAt.Valid {
		m.NextAttemptAt = &nextAttemptAt.Time
	}
	if lockedAt.Valid {
		m.LockedAt = &lockedAt.Time
	}
	return m, nil
}

// tierArgs expands a tier filter into an IN clause and its arguments.
func tierArgs(tiers []models.Tier) (string, []interface{}) {
	marks := make([]string, len(tiers))
	args := make([]interface{}, len(tiers))
	for i, t := range tiers {
		marks[i] = "?"
		args[i] = string(t)
	}
	return "(" + strings.Join(marks, ", ") + ")", args
}
