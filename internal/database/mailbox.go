package database

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/GriffinCanCode/oneshot/internal/relay"
)

const mailboxSlot = "latest"

// Mailbox is the single relay row: the encoded outcome and its timestamp.
type Mailbox struct {
	Slot      string `gorm:"primaryKey"`
	Result    string `gorm:"type:text"`
	Timestamp int64
}

// MailboxStore implements relay.Store on a one-row table, so the outcome
// survives restarts and is visible to other processes.
type MailboxStore struct {
	db *gorm.DB
}

func NewMailboxStore(db *gorm.DB) *MailboxStore {
	return &MailboxStore{db: db}
}

func (s *MailboxStore) Save(ctx context.Context, e relay.Entry) error {
	return s.db.WithContext(ctx).Save(&Mailbox{
		Slot:      mailboxSlot,
		Result:    e.Result,
		Timestamp: e.Timestamp,
	}).Error
}

func (s *MailboxStore) Load(ctx context.Context) (relay.Entry, error) {
	var m Mailbox
	err := s.db.WithContext(ctx).Where("slot = ?", mailboxSlot).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return relay.Entry{}, nil
	}
	if err != nil {
		return relay.Entry{}, err
	}
	return relay.Entry{Result: m.Result, Timestamp: m.Timestamp}, nil
}
