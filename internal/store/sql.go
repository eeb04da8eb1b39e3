package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/LeadPipe/internal/models"
)

// sqlStore implements Store over database/sql. SQLiteStore and PostgresStore embed it and
// differ only in driver setup and placeholder style.
type sqlStore struct {
	db     *sql.DB
	name   string // log prefix, e.g. "SQLiteStore"
	rebind func(string) string
}

// dbSetup describes how one backend opens its connection pool.
type dbSetup struct {
	name       string
	driver     string
	migrations string
	rebind     func(string) string
	configure  func(*sql.DB)
}

// openSQL opens dsn, pings it and applies the idempotent schema.
func openSQL(dsn string, setup dbSetup) (*sqlStore, error) {
	if dsn == "" {
		slog.Error(setup.name + ": DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}
	db, err := sql.Open(setup.driver, dsn)
	if err != nil {
		slog.Error(setup.name+": open failed", "error", err)
		return nil, fmt.Errorf("open %s: %w", setup.driver, err)
	}
	if setup.configure != nil {
		setup.configure(db)
	}
	if err := db.Ping(); err != nil {
		slog.Error(setup.name+": ping failed", "error", err)
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", setup.driver, err)
	}
	if _, err := db.Exec(setup.migrations); err != nil {
		slog.Error(setup.name+": migrations failed", "error", err)
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug(setup.name + ": schema ready")
	return &sqlStore{db: db, name: setup.name, rebind: setup.rebind}, nil
}

func (s *sqlStore) exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return s.db.ExecContext(ctx, s.rebind(query), args...)
}

func (s *sqlStore) query(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, s.rebind(query), args...)
}

func (s *sqlStore) queryRow(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return s.db.QueryRowContext(ctx, s.rebind(query), args...)
}

// GetProspect retrieves a prospect by id.
func (s *sqlStore) GetProspect(ctx context.Context, id string) (*models.Prospect, error) {
	p, err := scanProspect(s.queryRow(ctx, `SELECT `+prospectColumns+` FROM prospects WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		slog.Debug(s.name+".GetProspect: not found", "prospectID", id)
		return nil, nil
	}
	if err != nil {
		slog.Error(s.name+".GetProspect: failed", "error", err, "prospectID", id)
		return nil, fmt.Errorf("failed to get prospect %s: %w", id, err)
	}
	return &p, nil
}

// SaveProspect inserts or fully replaces a prospect row.
func (s *sqlStore) SaveProspect(ctx context.Context, p models.Prospect) error {
	if err := p.Validate(); err != nil {
		return err
	}
	_, err := s.exec(ctx, `
		INSERT INTO prospects (`+prospectColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			username = excluded.username, first_name = excluded.first_name, last_name = excluded.last_name,
			tier = excluded.tier, task = excluded.task, budget = excluded.budget, deadline = excluded.deadline,
			follow_up_count = excluded.follow_up_count, last_message_at = excluded.last_message_at,
			updated_at = excluded.updated_at`,
		p.ID, nilIfEmpty(p.Username), nilIfEmpty(p.FirstName), nilIfEmpty(p.LastName), string(p.Tier),
		nilIfEmpty(p.Task), nilIfEmpty(p.Budget), nilIfEmpty(p.Deadline),
		p.FollowUpCount, utc(p.LastMessageAt), utc(p.CreatedAt), utc(p.UpdatedAt))
	if err != nil {
		slog.Error(s.name+".SaveProspect: failed", "error", err, "prospectID", p.ID)
		return fmt.Errorf("failed to save prospect %s: %w", p.ID, err)
	}
	slog.Debug(s.name+".SaveProspect: saved", "prospectID", p.ID, "tier", p.Tier)
	return nil
}

// TouchProspect upserts the prospect on an inbound message.
func (s *sqlStore) TouchProspect(ctx context.Context, id string, contact models.Contact, at time.Time) (*models.Prospect, error) {
	if id == "" {
		return nil, models.ErrEmptyProspectID
	}
	at = utc(at)
	_, err := s.exec(ctx, `
		INSERT INTO prospects (`+prospectColumns+`)
		VALUES (?, ?, ?, ?, ?, NULL, NULL, NULL, 0, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			username = COALESCE(excluded.username, prospects.username),
			first_name = COALESCE(excluded.first_name, prospects.first_name),
			last_name = COALESCE(excluded.last_name, prospects.last_name),
			follow_up_count = 0, last_message_at = excluded.last_message_at,
			updated_at = excluded.updated_at`,
		id, nilIfEmpty(contact.Username), nilIfEmpty(contact.FirstName), nilIfEmpty(contact.LastName),
		string(models.TierNew), at, at, at)
	if err != nil {
		slog.Error(s.name+".TouchProspect: failed", "error", err, "prospectID", id)
		return nil, fmt.Errorf("failed to touch prospect %s: %w", id, err)
	}
	p, err := s.GetProspect(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, models.ErrProspectNotFound
	}
	return p, nil
}

// ListStaleProspects returns prospects idle since before q.Before.
func (s *sqlStore) ListStaleProspects(ctx context.Context, q StaleQuery) ([]models.Prospect, error) {
	query := `SELECT ` + prospectColumns + ` FROM prospects WHERE last_message_at < ? AND follow_up_count >= ?`
	args := []interface{}{utc(q.Before), q.MinFollowUps}
	if q.MaxFollowUps >= 0 {
		query += ` AND follow_up_count <= ?`
		args = append(args, q.MaxFollowUps)
	}
	if len(q.Tiers) > 0 {
		in, tierVals := tierArgs(q.Tiers)
		query += ` AND tier IN ` + in
		args = append(args, tierVals...)
	}
	query += ` ORDER BY last_message_at ASC`

	rows, err := s.query(ctx, query, args...)
	if err != nil {
		slog.Error(s.name+".ListStaleProspects: query failed", "error", err)
		return nil, fmt.Errorf("failed to query stale prospects: %w", err)
	}
	defer rows.Close()

	var prospects []models.Prospect
	for rows.Next() {
		p, err := scanProspect(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan prospect row: %w", err)
		}
		prospects = append(prospects, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate prospect rows: %w", err)
	}
	slog.Debug(s.name+".ListStaleProspects: done", "count", len(prospects), "minFollowUps", q.MinFollowUps)
	return prospects, nil
}

// ClaimFollowUp increments follow_up_count when the row still matches the snapshot.
func (s *sqlStore) ClaimFollowUp(ctx context.Context, id string, count int, before time.Time) (bool, error) {
	in, tierVals := tierArgs(FollowUpTiers)
	args := append([]interface{}{utc(time.Now()), id, count, utc(before)}, tierVals...)
	res, err := s.exec(ctx, `
		UPDATE prospects SET follow_up_count = follow_up_count + 1, updated_at = ?
		WHERE id = ? AND follow_up_count = ? AND last_message_at < ? AND tier IN `+in, args...)
	if err != nil {
		slog.Error(s.name+".ClaimFollowUp: failed", "error", err, "prospectID", id)
		return false, fmt.Errorf("failed to claim follow-up for %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim follow-up rows affected: %w", err)
	}
	return n == 1, nil
}

// DemoteProspect marks an unresponsive prospect COLD.
func (s *sqlStore) DemoteProspect(ctx context.Context, id string, before time.Time) (bool, error) {
	in, tierVals := tierArgs(FollowUpTiers)
	args := append([]interface{}{string(models.TierCold), utc(time.Now()), id, utc(before)}, tierVals...)
	res, err := s.exec(ctx, `
		UPDATE prospects SET tier = ?, updated_at = ?
		WHERE id = ? AND last_message_at < ? AND tier IN `+in, args...)
	if err != nil {
		slog.Error(s.name+".DemoteProspect: failed", "error", err, "prospectID", id)
		return false, fmt.Errorf("failed to demote prospect %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("demote rows affected: %w", err)
	}
	return n == 1, nil
}

// CreateMeeting inserts a meeting.
func (s *sqlStore) CreateMeeting(ctx context.Context, m models.Meeting) error {
	_, err := s.exec(ctx, `
		INSERT INTO meetings (id, prospect_id, scheduled_at, status, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		m.ID, m.ProspectID, utc(m.ScheduledAt), string(m.Status), nilIfEmpty(m.Notes), utc(m.CreatedAt))
	if err != nil {
		slog.Error(s.name+".CreateMeeting: failed", "error", err, "prospectID", m.ProspectID)
		return fmt.Errorf("failed to create meeting for %s: %w", m.ProspectID, err)
	}
	slog.Debug(s.name+".CreateMeeting: created", "meetingID", m.ID, "prospectID", m.ProspectID)
	return nil
}

// ListMeetings returns the prospect's meetings ordered by scheduled time.
func (s *sqlStore) ListMeetings(ctx context.Context, prospectID string) ([]models.Meeting, error) {
	rows, err := s.query(ctx, `
		SELECT id, prospect_id, scheduled_at, status, notes, created_at
		FROM meetings WHERE prospect_id = ? ORDER BY scheduled_at ASC`, prospectID)
	if err != nil {
		slog.Error(s.name+".ListMeetings: query failed", "error", err, "prospectID", prospectID)
		return nil, fmt.Errorf("failed to query meetings: %w", err)
	}
	defer rows.Close()

	var meetings []models.Meeting
	for rows.Next() {
		var m models.Meeting
		var notes sql.NullString
		if err := rows.Scan(&m.ID, &m.ProspectID, &m.ScheduledAt, &m.Status, &notes, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan meeting row: %w", err)
		}
		m.Notes = notes.String
		meetings = append(meetings, m)
	}
	return meetings, rows.Err()
}

// AddConversationMessage appends one message to the prospect's history.
func (s *sqlStore) AddConversationMessage(ctx context.Context, m models.ConversationMessage) error {
	_, err := s.exec(ctx, `
		INSERT INTO conversation_messages (id, prospect_id, role, content, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		m.ID, m.ProspectID, string(m.Role), m.Content, utc(m.CreatedAt))
	if err != nil {
		slog.Error(s.name+".AddConversationMessage: failed", "error", err, "prospectID", m.ProspectID)
		return fmt.Errorf("failed to add conversation message: %w", err)
	}
	return nil
}

// GetConversationHistory returns the latest messages oldest first.
func (s *sqlStore) GetConversationHistory(ctx context.Context, prospectID string, limit int) ([]models.ConversationMessage, error) {
	rows, err := s.query(ctx, `
		SELECT id, prospect_id, role, content, created_at FROM conversation_messages
		WHERE prospect_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`, prospectID, limit)
	if err != nil {
		slog.Error(s.name+".GetConversationHistory: query failed", "error", err, "prospectID", prospectID)
		return nil, fmt.Errorf("failed to query conversation history: %w", err)
	}
	defer rows.Close()

	var history []models.ConversationMessage
	for rows.Next() {
		var m models.ConversationMessage
		if err := rows.Scan(&m.ID, &m.ProspectID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan conversation row: %w", err)
		}
		history = append(history, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate conversation rows: %w", err)
	}
	for i, j := 0, len(history)-1; i < j; i, j = i+1, j-1 {
		history[i], history[j] = history[j], history[i]
	}
	return history, nil
}

// SaveFlowState stores or updates flow state for a prospect.
func (s *sqlStore) SaveFlowState(ctx context.Context, state models.FlowState) error {
	var stateDataJSON string
	if len(state.StateData) > 0 {
		jsonBytes, err := json.Marshal(state.StateData)
		if err != nil {
			slog.Error(s.name+".SaveFlowState: JSON marshal failed", "error", err, "prospectID", state.ProspectID)
			return err
		}
		stateDataJSON = string(jsonBytes)
	}
	_, err := s.exec(ctx, `
		INSERT INTO flow_states (prospect_id, flow_type, current_state, state_data, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (prospect_id, flow_type) DO UPDATE SET
			current_state = excluded.current_state, state_data = excluded.state_data,
			updated_at = excluded.updated_at`,
		state.ProspectID, string(state.FlowType), string(state.CurrentState), stateDataJSON,
		utc(state.CreatedAt), utc(state.UpdatedAt))
	if err != nil {
		slog.Error(s.name+".SaveFlowState: failed", "error", err, "prospectID", state.ProspectID, "flowType", state.FlowType)
		return err
	}
	slog.Debug(s.name+".SaveFlowState: succeeded", "prospectID", state.ProspectID, "state", state.CurrentState)
	return nil
}

// GetFlowState retrieves flow state for a prospect.
func (s *sqlStore) GetFlowState(ctx context.Context, prospectID string, flowType models.FlowType) (*models.FlowState, error) {
	var state models.FlowState
	var stateDataJSON string
	err := s.queryRow(ctx, `
		SELECT prospect_id, flow_type, current_state, state_data, created_at, updated_at
		FROM flow_states WHERE prospect_id = ? AND flow_type = ?`, prospectID, string(flowType)).Scan(
		&state.ProspectID, &state.FlowType, &state.CurrentState, &stateDataJSON, &state.CreatedAt, &state.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		slog.Debug(s.name+".GetFlowState: not found", "prospectID", prospectID, "flowType", flowType)
		return nil, nil
	}
	if err != nil {
		slog.Error(s.name+".GetFlowState: failed", "error", err, "prospectID", prospectID, "flowType", flowType)
		return nil, err
	}
	if stateDataJSON != "" {
		state.StateData = make(map[models.DataKey]string)
		if err := json.Unmarshal([]byte(stateDataJSON), &state.StateData); err != nil {
			slog.Error(s.name+".GetFlowState: JSON unmarshal failed", "error", err, "prospectID", prospectID)
			// Continue with empty map rather than failing
			state.StateData = make(map[models.DataKey]string)
		}
	}
	return &state, nil
}

// DeleteFlowState removes flow state for a prospect.
func (s *sqlStore) DeleteFlowState(ctx context.Context, prospectID string, flowType models.FlowType) error {
	_, err := s.exec(ctx, `DELETE FROM flow_states WHERE prospect_id = ? AND flow_type = ?`, prospectID, string(flowType))
	if err != nil {
		slog.Error(s.name+".DeleteFlowState: failed", "error", err, "prospectID", prospectID, "flowType", flowType)
		return err
	}
	slog.Debug(s.name+".DeleteFlowState: succeeded", "prospectID", prospectID, "flowType", flowType)
	return nil
}

// Stats aggregates prospect and meeting counts.
func (s *sqlStore) Stats(ctx context.Context, since time.Time) (models.Stats, error) {
	stats := models.Stats{ByTier: make(map[models.Tier]int)}
	for _, t := range models.AllTiers {
		stats.ByTier[t] = 0
	}

	rows, err := s.query(ctx, `SELECT tier, COUNT(*) FROM prospects GROUP BY tier`)
	if err != nil {
		return stats, fmt.Errorf("failed to count prospects by tier: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var tier models.Tier
		var n int
		if err := rows.Scan(&tier, &n); err != nil {
			return stats, fmt.Errorf("failed to scan tier count: %w", err)
		}
		stats.ByTier[tier] = n
		stats.TotalProspects += n
	}
	if err := rows.Err(); err != nil {
		return stats, fmt.Errorf("failed to iterate tier counts: %w", err)
	}

	if err := s.queryRow(ctx, `SELECT COUNT(*) FROM prospects WHERE created_at >= ?`, utc(since)).Scan(&stats.NewToday); err != nil {
		return stats, fmt.Errorf("failed to count new prospects: %w", err)
	}
	if err := s.queryRow(ctx, `SELECT COUNT(*) FROM meetings WHERE status = ?`,
		string(models.MeetingStatusScheduled)).Scan(&stats.ScheduledMeetings); err != nil {
		return stats, fmt.Errorf("failed to count meetings: %w", err)
	}

	hot, err := scanProspect(s.queryRow(ctx, `SELECT `+prospectColumns+` FROM prospects WHERE tier = ?
		ORDER BY updated_at DESC LIMIT 1`, string(models.TierHot)))
	switch {
	case err == nil:
		stats.LastHot = &hot
	case !errors.Is(err, sql.ErrNoRows):
		return stats, fmt.Errorf("failed to load last hot prospect: %w", err)
	}
	return stats, nil
}

// Close closes the database connection.
func (s *sqlStore) Close() error {
	slog.Debug(s.name + ".Close: closing database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error(s.name+".Close: failed", "error", err)
	}
	return err
}
