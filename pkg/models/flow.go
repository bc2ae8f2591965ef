// Package models defines the domain models for tenant automation flows and their executions.
package models

import "time"

// FlowStatus represents the lifecycle state of a flow. Only active flows execute.
type FlowStatus string

const (
	FlowStatusActive   FlowStatus = "active"
	FlowStatusPaused   FlowStatus = "paused"
	FlowStatusDraft    FlowStatus = "draft"
	FlowStatusArchived FlowStatus = "archived"
)

// BlockType discriminates the blocks of a flow.
type BlockType string

const (
	BlockTypeTrigger   BlockType = "trigger"
	BlockTypeDelay     BlockType = "delay"
	BlockTypeAction    BlockType = "action"
	BlockTypeCondition BlockType = "condition"
)

// Flow is an automation definition: a trigger, optional flow-level conditions and an
// ordered list of blocks.
type Flow struct {
	ID         string     `json:"id"`
	TenantID   string     `json:"tenant_id"            validate:"required"`
	Name       string     `json:"name"                 validate:"required"`
	Status     FlowStatus `json:"status"               validate:"required,oneof=active paused draft archived"`
	Conditions any        `json:"conditions,omitempty"`
	Blocks     []Block    `json:"blocks"`
	RunCount   int64      `json:"run_count"`
	LastRun    *time.Time `json:"last_run,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Block is one step of a flow. Config is interpreted per block type.
type Block struct {
	ID     string         `json:"id"`
	Type   BlockType      `json:"type"             validate:"required"`
	Config map[string]any `json:"config,omitempty"`
}

// IsActive reports whether the flow may run.
func (f *Flow) IsActive() bool {
	return f.Status == FlowStatusActive
}

// ExecutableBlocks returns the blocks that run, dropping a leading trigger block.
func (f *Flow) ExecutableBlocks() []Block {
	if len(f.Blocks) > 0 && f.Blocks[0].Type == BlockTypeTrigger {
		return f.Blocks[1:]
	}

	return f.Blocks
}

// TriggerEvent returns the event type configured on the leading trigger block.
func (f *Flow) TriggerEvent() string {
	if len(f.Blocks) == 0 || f.Blocks[0].Type != BlockTypeTrigger {
		return ""
	}

	event, _ := f.Blocks[0].Config["event"].(string)

	return event
}
