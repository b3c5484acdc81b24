package domain

// JournalEntry is one persisted lifecycle event.
// Payload is the JSON-encoded event; Type and Market are duplicated for indexing.
type JournalEntry struct {
	Seq     uint64
	ID      string
	Type    string
	Market  Identity
	At      int64
	Payload []byte
}
