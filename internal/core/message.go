package core

import (
	"time"

	"github.com/vovakirdan/campuschat/internal/store"
)

// DeliveryState tracks a message through the send pipeline.
type DeliveryState string

const (
	DeliveryPending   DeliveryState = "pending"
	DeliveryPersisted DeliveryState = "persisted"
	DeliveryFailed    DeliveryState = "failed"
)

// Message is the domain model for a chat message. ID is the per-room sequence
// number and defines the room's total order.
type Message struct {
	ID            int64
	RoomID        string
	SenderID      string
	Body          string
	CreatedAt     time.Time
	DeliveryState DeliveryState
}

func messageFromRecord(rec *store.Message) Message {
	return Message{
		ID:            rec.Seq,
		RoomID:        rec.RoomID,
		SenderID:      rec.SenderID,
		Body:          rec.Body,
		CreatedAt:     rec.CreatedAt,
		DeliveryState: DeliveryPersisted,
	}
}

func messagesFromRecords(recs []*store.Message) []Message {
	out := make([]Message, 0, len(recs))
	for _, rec := range recs {
		out = append(out, messageFromRecord(rec))
	}
	return out
}

func (m Message) record(kind RoomKind) *store.Message {
	return &store.Message{
		RoomID:    m.RoomID,
		RoomKind:  string(kind),
		Seq:       m.ID,
		SenderID:  m.SenderID,
		Body:      m.Body,
		CreatedAt: m.CreatedAt,
	}
}
