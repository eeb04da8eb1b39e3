package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/BTreeMap/LeadPipe/internal/models"
	"github.com/google/uuid"
)

// InMemoryStore keeps everything in process memory. It is safe for concurrent use.
type InMemoryStore struct {
	mu         sync.Mutex
	prospects  map[string]models.Prospect
	meetings   []models.Meeting
	messages   []models.ConversationMessage
	flowStates map[string]models.FlowState
	dedup      map[string]DedupRecord
	outbox     []OutboxMessage
}

var (
	_ Store      = (*InMemoryStore)(nil)
	_ OutboxRepo = (*InMemoryStore)(nil)
	_ DedupRepo  = (*InMemoryStore)(nil)
)

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		prospects:  make(map[string]models.Prospect),
		flowStates: make(map[string]models.FlowState),
		dedup:      make(map[string]DedupRecord),
	}
}

// OutboxRepo returns the store as an OutboxRepo.
func (s *InMemoryStore) OutboxRepo() OutboxRepo { return s }

// DedupRepo returns the store as a DedupRepo.
func (s *InMemoryStore) DedupRepo() DedupRepo { return s }

func (s *InMemoryStore) GetProspect(ctx context.Context, id string) (*models.Prospect, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.prospects[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (s *InMemoryStore) SaveProspect(ctx context.Context, p models.Prospect) error {
	if err := p.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.prospects[p.ID]; ok {
		p.CreatedAt = existing.CreatedAt
	}
	s.prospects[p.ID] = p
	return nil
}

func (s *InMemoryStore) TouchProspect(ctx context.Context, id string, contact models.Contact, at time.Time) (*models.Prospect, error) {
	if id == "" {
		return nil, models.ErrEmptyProspectID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.prospects[id]
	if !ok {
		p = models.NewProspect(id, contact, at)
	}
	if contact.Username != "" {
		p.Username = contact.Username
	}
	if contact.FirstName != "" {
		p.FirstName = contact.FirstName
	}
	if contact.LastName != "" {
		p.LastName = contact.LastName
	}
	p.FollowUpCount = 0
	p.LastMessageAt = at
	p.UpdatedAt = at
	s.prospects[id] = p
	return &p, nil
}

func (s *InMemoryStore) ListStaleProspects(ctx context.Context, q StaleQuery) ([]models.Prospect, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Prospect
	for _, p := range s.prospects {
		if q.matches(p) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastMessageAt.Before(out[j].LastMessageAt) })
	return out, nil
}

func (s *InMemoryStore) ClaimFollowUp(ctx context.Context, id string, count int, before time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.prospects[id]
	q := StaleQuery{Before: before, Tiers: FollowUpTiers, MinFollowUps: count, MaxFollowUps: count}
	if !ok || !q.matches(p) {
		return false, nil
	}
	p.FollowUpCount++
	p.UpdatedAt = time.Now()
	s.prospects[id] = p
	return true, nil
}

func (s *InMemoryStore) DemoteProspect(ctx context.Context, id string, before time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.prospects[id]
	q := StaleQuery{Before: before, Tiers: FollowUpTiers, MaxFollowUps: -1}
	if !ok || !q.matches(p) {
		return false, nil
	}
	p.Tier = models.TierCold
	p.UpdatedAt = time.Now()
	s.prospects[id] = p
	return true, nil
}

func (s *InMemoryStore) CreateMeeting(ctx context.Context, m models.Meeting) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.meetings = append(s.meetings, m)
	return nil
}

func (s *InMemoryStore) ListMeetings(ctx context.Context, prospectID string) ([]models.Meeting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Meeting
	for _, m := range s.meetings {
		if m.ProspectID == prospectID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.Before(out[j].ScheduledAt) })
	return out, nil
}

func (s *InMemoryStore) AddConversationMessage(ctx context.Context, m models.ConversationMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, m)
	return nil
}

func (s *InMemoryStore) GetConversationHistory(ctx context.Context, prospectID string, limit int) ([]models.ConversationMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.ConversationMessage
	for _, m := range s.messages {
		if m.ProspectID == prospectID {
			out = append(out, m)
		}
	}
	if limit >= 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func flowKey(prospectID string, flowType models.FlowType) string {
	return string(flowType) + "/" + prospectID
}

func (s *InMemoryStore) SaveFlowState(ctx context.Context, state models.FlowState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	data := make(map[models.DataKey]string, len(state.StateData))
	for k, v := range state.StateData {
		data[k] = v
	}
	state.StateData = data
	s.flowStates[flowKey(state.ProspectID, state.FlowType)] = state
	return nil
}

func (s *InMemoryStore) GetFlowState(ctx context.Context, prospectID string, flowType models.FlowType) (*models.FlowState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.flowStates[flowKey(prospectID, flowType)]
	if !ok {
		return nil, nil
	}
	data := make(map[models.DataKey]string, len(state.StateData))
	for k, v := range state.StateData {
		data[k] = v
	}
	state.StateData = data
	return &state, nil
}

func (s *InMemoryStore) DeleteFlowState(ctx context.Context, prospectID string, flowType models.FlowType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.flowStates, flowKey(prospectID, flowType))
	return nil
}

func (s *InMemoryStore) Stats(ctx context.Context, since time.Time) (models.Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := models.Stats{ByTier: make(map[models.Tier]int)}
	for _, t := range models.AllTiers {
		stats.ByTier[t] = 0
	}
	for _, p := range s.prospects {
		stats.TotalProspects++
		stats.ByTier[p.Tier]++
		if !p.CreatedAt.Before(since) {
			stats.NewToday++
		}
		if p.Tier == models.TierHot && (stats.LastHot == nil || p.UpdatedAt.After(stats.LastHot.UpdatedAt)) {
			hot := p
			stats.LastHot = &hot
		}
	}
	for _, m := range s.meetings {
		if m.Status == models.MeetingStatusScheduled {
			stats.ScheduledMeetings++
		}
	}
	return stats, nil
}

func (s *InMemoryStore) Close() error { return nil }

func (s *InMemoryStore) IsDuplicate(ctx context.Context, messageID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.dedup[messageID]
	return ok, nil
}

func (s *InMemoryStore) RecordInbound(ctx context.Context, messageID, prospectID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.dedup[messageID]; ok {
		return false, nil
	}
	s.dedup[messageID] = DedupRecord{MessageID: messageID, ProspectID: prospectID, ReceivedAt: time.Now()}
	return true, nil
}

func (s *InMemoryStore) MarkProcessed(ctx context.Context, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.dedup[messageID]; ok {
		now := time.Now()
		r.ProcessedAt = &now
		s.dedup[messageID] = r
	}
	return nil
}

func (s *InMemoryStore) EnqueueOutboxMessage(ctx context.Context, recipient, kind, payloadJSON, dedupeKey string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if dedupeKey != "" {
		for _, m := range s.outbox {
			if m.DedupeKey == dedupeKey && m.Status != OutboxStatusCanceled {
				return m.ID, nil
			}
		}
	}
	now := time.Now()
	m := OutboxMessage{
		ID:          uuid.NewString(),
		Recipient:   recipient,
		Kind:        kind,
		PayloadJSON: payloadJSON,
		Status:      OutboxStatusQueued,
		DedupeKey:   dedupeKey,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.outbox = append(s.outbox, m)
	return m.ID, nil
}

func (s *InMemoryStore) ClaimDueOutboxMessages(ctx context.Context, now time.Time, limit int) ([]OutboxMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var claimed []OutboxMessage
	for i := range s.outbox {
		if len(claimed) >= limit {
			break
		}
		m := &s.outbox[i]
		if m.Status != OutboxStatusQueued || (m.NextAttemptAt != nil && m.NextAttemptAt.After(now)) {
			continue
		}
		lockedAt := now
		m.Status = OutboxStatusSending
		m.LockedAt = &lockedAt
		m.UpdatedAt = now
		claimed = append(claimed, *m)
	}
	return claimed, nil
}

func (s *InMemoryStore) MarkOutboxMessageSent(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.outbox {
		if s.outbox[i].ID == id {
			s.outbox[i].Status = OutboxStatusSent
			s.outbox[i].LockedAt = nil
			s.outbox[i].UpdatedAt = time.Now()
		}
	}
	return nil
}

func (s *InMemoryStore) FailOutboxMessage(ctx context.Context, id string, errMsg string, nextAttemptAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.outbox {
		if s.outbox[i].ID == id {
			next := nextAttemptAt
			s.outbox[i].Status = OutboxStatusQueued
			s.outbox[i].Attempts++
			s.outbox[i].LastError = errMsg
			s.outbox[i].NextAttemptAt = &next
			s.outbox[i].LockedAt = nil
			s.outbox[i].UpdatedAt = time.Now()
		}
	}
	return nil
}

func (s *InMemoryStore) AbandonOutboxMessage(ctx context.Context, id string, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.outbox {
		if s.outbox[i].ID == id {
			s.outbox[i].Status = OutboxStatusFailed
			s.outbox[i].Attempts++
			s.outbox[i].LastError = errMsg
			s.outbox[i].NextAttemptAt = nil
			s.outbox[i].LockedAt = nil
			s.outbox[i].UpdatedAt = time.Now()
		}
	}
	return nil
}

func (s *InMemoryStore) RequeueStaleSendingMessages(ctx context.Context, staleBefore time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for i := range s.outbox {
		m := &s.outbox[i]
		if m.Status == OutboxStatusSending && m.LockedAt != nil && m.LockedAt.Before(staleBefore) {
			m.Status = OutboxStatusQueued
			m.LockedAt = nil
			n++
		}
	}
	return n, nil
}

// OutboxMessages returns a snapshot of the outbox (for tests and diagnostics).
func (s *InMemoryStore) OutboxMessages() []OutboxMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]OutboxMessage(nil), s.outbox...)
}
