// Package models defines state management structures for LeadPipe flows.
package models

import "time"

// FlowState is the persisted session of a prospect in a flow.
type FlowState struct {
	ProspectID   string             `json:"prospect_id"`
	FlowType     FlowType           `json:"flow_type"`
	CurrentState StateType          `json:"current_state"`
	StateData    map[DataKey]string `json:"state_data,omitempty"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
}
