package models

import "time"

// TrackingSlot is a persisted slot row: the execution a session was
// tracking when it last saved.
type TrackingSlot struct {
	Slot        string    `db:"slot" json:"slot"`
	ExecutionID string    `db:"execution_id" json:"executionId"`
	UpdatedAt   time.Time `db:"updated_at" json:"updatedAt"`
}
