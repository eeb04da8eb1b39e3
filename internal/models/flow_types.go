// Package models defines flow type definitions to avoid circular imports.
package models

// FlowType represents a specific conversation flow.
type FlowType string

// StateType represents a specific state within a flow.
type StateType string

// DataKey represents a key for storing state-specific data.
type DataKey string

// Flow type constants.
const (
	FlowTypeQualification FlowType = "qualification"
)

// State constants for the qualification flow.
const (
	StateTask                StateType = "TASK"
	StateBudget              StateType = "BUDGET"
	StateDeadline            StateType = "DEADLINE"
	StateAction              StateType = "ACTION"
	StateFreeChat            StateType = "FREE_CHAT"
	StateTaskCustomInput     StateType = "TASK_CUSTOM_INPUT"
	StateBudgetCustomInput   StateType = "BUDGET_CUSTOM_INPUT"
	StateDeadlineCustomInput StateType = "DEADLINE_CUSTOM_INPUT"
	StateMeetingCustomTime   StateType = "MEETING_CUSTOM_TIME"
)

// Data key constants for the qualification flow.
const (
	DataKeyBudgetChoice  DataKey = "budgetChoice"  // budget button key, empty for free text
	DataKeyBudgetText    DataKey = "budgetText"    // budget answer as shown or typed
	DataKeyNotifyPending DataKey = "notifyPending" // deferred owner notification
	DataKeyOfferedSlots  DataKey = "offeredSlots"  // JSON map selector -> RFC3339 time
	DataKeyExchanges     DataKey = "exchanges"     // free-chat exchange counter
	DataKeyMenu          DataKey = "menu"          // number of the live free-chat menu
)
