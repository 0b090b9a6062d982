// Package notify turns matched operations into alert ledger entries and command runs.
package notify

// UserMessage is one buffered notification. MediaTypeID 0 targets all active media of the user.
type UserMessage struct {
	UserID      uint64
	MediaTypeID uint64
	Subject     string
	Message     string
}

// UserMessages buffers the notifications produced while processing one escalation step.
// Entries are deduplicated on (user, subject, message): a concrete media type entry
// replaces a wildcard one, and a wildcard is dropped when any entry already covers the key.
type UserMessages struct {
	entries []UserMessage
}

// NewUserMessages creates an empty buffer.
func NewUserMessages() *UserMessages {
	return &UserMessages{}
}

// Add buffers a message unless an equivalent entry exists.
func (m *UserMessages) Add(userID, mediaTypeID uint64, subject, message string) {
	kept := m.entries[:0]
	covered := false
	for _, e := range m.entries {
		if e.UserID != userID || e.Subject != subject || e.Message != message {
			kept = append(kept, e)
			continue
		}
		switch {
		case e.MediaTypeID == mediaTypeID, mediaTypeID == 0:
			covered = true
			kept = append(kept, e)
		case e.MediaTypeID == 0:
			// wildcard superseded by the concrete media type
		default:
			kept = append(kept, e)
		}
	}
	m.entries = kept

	if !covered {
		m.entries = append(m.entries, UserMessage{
			UserID:      userID,
			MediaTypeID: mediaTypeID,
			Subject:     subject,
			Message:     message,
		})
	}
}

// Len returns the number of buffered messages.
func (m *UserMessages) Len() int {
	return len(m.entries)
}

// Entries returns the buffered messages in insertion order.
func (m *UserMessages) Entries() []UserMessage {
	return append([]UserMessage(nil), m.entries...)
}

// Reset empties the buffer.
func (m *UserMessages) Reset() {
	m.entries = m.entries[:0]
}
