// Package store provides storage backends for LeadPipe.
//
// Prospects, meetings, conversation history and flow sessions live behind the Store
// interface. InMemoryStore serves tests and ephemeral runs; SQLiteStore and PostgresStore
// persist to a relational database chosen by DSN.
package store

import (
	"context"
	"strings"
	"time"

	"github.com/BTreeMap/LeadPipe/internal/models"
)

// Store is the persistence surface used by the conversation engine, the follow-up
// scheduler and the admin API. Get* methods return (nil, nil) when the row does not exist.
type Store interface {
	GetProspect(ctx context.Context, id string) (*models.Prospect, error)
	SaveProspect(ctx context.Context, p models.Prospect) error
	// TouchProspect records an inbound message: it creates the prospect on first contact,
	// refreshes contact details, sets last_message_at and resets the follow-up count.
	TouchProspect(ctx context.Context, id string, contact models.Contact, at time.Time) (*models.Prospect, error)
	ListStaleProspects(ctx context.Context, q StaleQuery) ([]models.Prospect, error)
	// ClaimFollowUp advances follow_up_count from count to count+1 if the prospect is still
	// idle since before. It reports false when the prospect replied or was already claimed.
	ClaimFollowUp(ctx context.Context, id string, count int, before time.Time) (bool, error)
	// DemoteProspect sets the tier to COLD if the prospect is still idle since before and
	// still in a follow-up tier.
	DemoteProspect(ctx context.Context, id string, before time.Time) (bool, error)

	CreateMeeting(ctx context.Context, m models.Meeting) error
	ListMeetings(ctx context.Context, prospectID string) ([]models.Meeting, error)

	AddConversationMessage(ctx context.Context, m models.ConversationMessage) error
	// GetConversationHistory returns the latest limit messages in chronological order.
	GetConversationHistory(ctx context.Context, prospectID string, limit int) ([]models.ConversationMessage, error)

	SaveFlowState(ctx context.Context, state models.FlowState) error
	GetFlowState(ctx context.Context, prospectID string, flowType models.FlowType) (*models.FlowState, error)
	DeleteFlowState(ctx context.Context, prospectID string, flowType models.FlowType) error

	// Stats summarizes prospects; NewToday counts prospects created at or after since.
	Stats(ctx context.Context, since time.Time) (models.Stats, error)
	Close() error
}

// FollowUpTiers are the tiers eligible for automated reminders.
var FollowUpTiers = []models.Tier{models.TierNew, models.TierWarm}

// StaleQuery selects idle prospects for the follow-up scheduler.
type StaleQuery struct {
	Before       time.Time     // last_message_at strictly before this instant
	Tiers        []models.Tier // tier filter; empty means any tier
	MinFollowUps int           // inclusive
	MaxFollowUps int           // inclusive; negative means unbounded
}

// matches applies the query to a prospect held in memory.
func (q StaleQuery) matches(p models.Prospect) bool {
	if !p.LastMessageAt.Before(q.Before) {
		return false
	}
	if p.FollowUpCount < q.MinFollowUps || (q.MaxFollowUps >= 0 && p.FollowUpCount > q.MaxFollowUps) {
		return false
	}
	if len(q.Tiers) == 0 {
		return true
	}
	for _, t := range q.Tiers {
		if p.Tier == t {
			return true
		}
	}
	return false
}

// PersistenceProvider is implemented by stores that also back the durable outbox and
// inbound deduplication.
type PersistenceProvider interface {
	OutboxRepo() OutboxRepo
	DedupRepo() DedupRepo
}

// Opts holds configuration options for database stores.
type Opts struct {
	DSN string
}

// Option defines a configuration option for database stores.
type Option func(*Opts)

// WithSQLiteDSN sets the SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// DetectDSNType returns "postgres" for PostgreSQL URLs or keyword DSNs and "sqlite3" otherwise.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return "postgres"
	}
	if strings.Contains(dsn, "host=") || strings.Contains(dsn, "dbname=") {
		return "postgres"
	}
	return "sqlite3"
}

// Open creates the store matching the DSN type.
func Open(dsn string) (Store, error) {
	if DetectDSNType(dsn) == "postgres" {
		return NewPostgresStore(WithPostgresDSN(dsn))
	}
	return NewSQLiteStore(WithSQLiteDSN(dsn))
}
