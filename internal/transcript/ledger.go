package transcript

// CompletionLedger is the set of message ids that have reached a terminal
// state (stream_end, fatal error, or user abort). Membership check precedes
// any finalization logic; insertion is the last step of finalization. The
// ledger is owned by one reconciler - there is no process-wide instance -
// and is cleared when the session's message list is reset.
type CompletionLedger struct {
	done map[string]struct{}
}

// NewCompletionLedger returns an empty ledger.
func NewCompletionLedger() *CompletionLedger {
	return &CompletionLedger{done: make(map[string]struct{})}
}

// Contains reports whether the message id has already been finalized.
func (l *CompletionLedger) Contains(messageID string) bool {
	_, ok := l.done[messageID]
	return ok
}

// Record marks a message id as finalized. Recording twice is harmless.
func (l *CompletionLedger) Record(messageID string) {
	l.done[messageID] = struct{}{}
}

// Len returns the number of finalized ids.
func (l *CompletionLedger) Len() int {
	return len(l.done)
}

// Reset drops all entries. Called on new chat / history reload.
func (l *CompletionLedger) Reset() {
	l.done = make(map[string]struct{})
}
