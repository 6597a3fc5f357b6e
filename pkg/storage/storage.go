package storage

import (
	"github.com/ignatij/exectrack/pkg/models"
	"github.com/pkg/errors"
)

// ErrNotFound is returned by Load when the slot holds no execution ID.
var ErrNotFound = errors.New("not found")

// DefaultSlot names the slot that remembers the tracked execution.
const DefaultSlot = "tracked-execution"

// SessionStore persists the tracked execution ID so tracking can resume
// after a restart. Only one execution is tracked per slot.
type SessionStore interface {
	Load(slot string) (string, error)
	Save(slot, executionID string) error
	Clear(slot string) error
	Close() error
}

// SlotLister is implemented by stores that can enumerate their slots.
type SlotLister interface {
	ListSlots() ([]models.TrackingSlot, error)
}
