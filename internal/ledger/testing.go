package ledger

// Recorded is a test helper returning the purchases held by the in-memory ledger.
func Recorded(l Ledger) []Purchase {
	mem, ok := l.(*inMemoryLedger)
	if !ok {
		return nil
	}
	mem.mu.RLock()
	defer mem.mu.RUnlock()
	out := make([]Purchase, len(mem.purchases))
	copy(out, mem.purchases)
	return out
}
