package core

import (
	"context"
	"time"
)

// Cursor selects where a history page starts. AfterID takes precedence over
// AfterTime; a zero cursor asks for the most recent messages.
type Cursor struct {
	AfterID   int64
	AfterTime time.Time
}

// IsZero reports whether no cursor was given.
func (c Cursor) IsZero() bool {
	return c.AfterID <= 0 && c.AfterTime.IsZero()
}

// History returns up to limit messages of a room in ascending id order,
// strictly after the cursor. It does not check authorization.
func (h *Hub) History(ctx context.Context, roomID string, cursor Cursor, limit int) ([]Message, error) {
	if _, err := ParseRoomID(roomID); err != nil {
		return nil, err
	}
	limit = h.clampLimit(limit)

	var err error
	var page []Message
	switch {
	case cursor.AfterID > 0:
		recs, e := h.messages.ListAfterSeq(ctx, roomID, cursor.AfterID, limit)
		page, err = messagesFromRecords(recs), e
	case !cursor.AfterTime.IsZero():
		recs, e := h.messages.ListAfterTime(ctx, roomID, cursor.AfterTime, limit)
		page, err = messagesFromRecords(recs), e
	default:
		recs, e := h.messages.ListRecent(ctx, roomID, limit)
		page, err = messagesFromRecords(recs), e
	}
	if err != nil {
		h.log.Error().Err(err).Str("room_id", roomID).Msg("load history")
		return nil, ErrInternal
	}
	return page, nil
}

// HistoryFor is History for a user, who must be allowed to join the room.
func (h *Hub) HistoryFor(ctx context.Context, userID, roomID string, cursor Cursor, limit int) ([]Message, error) {
	if err := h.Authorize(ctx, userID, roomID); err != nil {
		return nil, err
	}
	return h.History(ctx, roomID, cursor, limit)
}

func (h *Hub) clampLimit(limit int) int {
	if limit <= 0 {
		return h.opts.HistoryLimit
	}
	return min(limit, h.opts.MaxHistoryLimit)
}
