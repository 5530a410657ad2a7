package proto

import "sort"

// Timeline is the client-side view of one room. Live events and history
// pages may overlap or arrive out of order; Timeline keeps each message once,
// ordered by id, and exposes the cursor to resume from after a reconnect.
type Timeline struct {
	seen     map[int64]struct{}
	messages []ChatMessage
}

// NewTimeline creates an empty timeline.
func NewTimeline() *Timeline {
	return &Timeline{seen: make(map[int64]struct{})}
}

// Add inserts a message. It returns false for a duplicate id.
func (t *Timeline) Add(m ChatMessage) bool {
	if _, dup := t.seen[m.ID]; dup {
		return false
	}
	t.seen[m.ID] = struct{}{}
	i := sort.Search(len(t.messages), func(i int) bool { return t.messages[i].ID > m.ID })
	t.messages = append(t.messages, ChatMessage{})
	copy(t.messages[i+1:], t.messages[i:])
	t.messages[i] = m
	return true
}

// AddAll inserts a batch and returns how many were new.
func (t *Timeline) AddAll(msgs []ChatMessage) int {
	added := 0
	for _, m := range msgs {
		if t.Add(m) {
			added++
		}
	}
	return added
}

// Cursor is the highest id seen, the since value for the next history request.
func (t *Timeline) Cursor() int64 {
	if len(t.messages) == 0 {
		return 0
	}
	return t.messages[len(t.messages)-1].ID
}

// Messages returns the messages in id order.
func (t *Timeline) Messages() []ChatMessage {
	out := make([]ChatMessage, len(t.messages))
	copy(out, t.messages)
	return out
}

// Gaps lists ids missing between the first and last message held.
func (t *Timeline) Gaps() []int64 {
	var gaps []int64
	for i := 1; i < len(t.messages); i++ {
		for id := t.messages[i-1].ID + 1; id < t.messages[i].ID; id++ {
			gaps = append(gaps, id)
		}
	}
	return gaps
}
