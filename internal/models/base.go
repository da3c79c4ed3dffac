package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrJournalAppendOnly is returned when a stored journal row is updated.
var ErrJournalAppendOnly = errors.New("journal entries are append-only")

// JournalEntry keys an append-only journal row. Rows are written once and read
// back in RecordedAt order.
type JournalEntry struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	RecordedAt time.Time `gorm:"index;not null" json:"recorded_at"`
}

// BeforeCreate assigns the id and stamps the row in UTC.
func (e *JournalEntry) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.RecordedAt.IsZero() {
		e.RecordedAt = time.Now().UTC()
	}
	return nil
}

// BeforeUpdate refuses every update.
func (e *JournalEntry) BeforeUpdate(tx *gorm.DB) error {
	return ErrJournalAppendOnly
}
