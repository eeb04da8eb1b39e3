package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/LeadPipe/internal/models"
	"github.com/BTreeMap/LeadPipe/internal/store"
)

// StoreBasedStateManager implements StateManager using a Store backend.
type StoreBasedStateManager struct {
	store store.Store
	now   func() time.Time
}

// NewStoreBasedStateManager creates a new StateManager backed by a Store.
func NewStoreBasedStateManager(st store.Store) *StoreBasedStateManager {
	slog.Debug("Creating StoreBasedStateManager")
	return &StoreBasedStateManager{store: st, now: time.Now}
}

// GetState retrieves the current state of a prospect. A session naming an unknown state is
// reported as no session so the conversation starts over.
func (sm *StoreBasedStateManager) GetState(ctx context.Context, prospectID string) (State, error) {
	slog.Debug("StateManager.GetState", "prospectID", prospectID)

	fs, err := sm.store.GetFlowState(ctx, prospectID, models.FlowTypeQualification)
	if err != nil {
		slog.Error("StateManager.GetState: load failed", "error", err, "prospectID", prospectID)
		return nil, err
	}
	if fs == nil {
		slog.Debug("StateManager.GetState: not found", "prospectID", prospectID)
		return nil, nil
	}

	s, err := DecodeState(fs.CurrentState, fs.StateData)
	if err != nil {
		if errors.Is(err, ErrUnknownState) {
			slog.Warn("StateManager.GetState: discarding unknown state", "prospectID", prospectID, "state", fs.CurrentState)
			return nil, nil
		}
		slog.Error("StateManager.GetState: decode failed", "error", err, "prospectID", prospectID)
		return nil, err
	}

	slog.Debug("StateManager.GetState: found", "prospectID", prospectID, "state", fs.CurrentState)
	return s, nil
}

// SetState replaces the stored state of a prospect, keeping the session creation time.
func (sm *StoreBasedStateManager) SetState(ctx context.Context, prospectID string, s State) error {
	kind, data, err := EncodeState(s)
	if err != nil {
		return fmt.Errorf("set state for %s: %w", prospectID, err)
	}
	slog.Debug("StateManager.SetState", "prospectID", prospectID, "state", kind)

	existing, err := sm.store.GetFlowState(ctx, prospectID, models.FlowTypeQualification)
	if err != nil {
		slog.Error("StateManager.SetState: load failed", "error", err, "prospectID", prospectID)
		return err
	}

	now := sm.now()
	fs := models.FlowState{
		ProspectID:   prospectID,
		FlowType:     models.FlowTypeQualification,
		CurrentState: kind,
		StateData:    data,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if existing != nil {
		fs.CreatedAt = existing.CreatedAt
	}

	if err := sm.store.SaveFlowState(ctx, fs); err != nil {
		slog.Error("StateManager.SetState: save failed", "error", err, "prospectID", prospectID, "state", kind)
		return err
	}
	return nil
}

// ResetState removes the session of a prospect.
func (sm *StoreBasedStateManager) ResetState(ctx context.Context, prospectID string) error {
	slog.Debug("StateManager.ResetState", "prospectID", prospectID)

	if err := sm.store.DeleteFlowState(ctx, prospectID, models.FlowTypeQualification); err != nil {
		slog.Error("StateManager.ResetState: delete failed", "error", err, "prospectID", prospectID)
		return err
	}

	slog.Info("StateManager.ResetState: session cleared", "prospectID", prospectID)
	return nil
}
