package state

import "sync"

// PresenceRecord is a user's last known online state. ProducedAt is the
// server-embedded timestamp, stored but never compared: overwrite order is
// arrival order.
type PresenceRecord struct {
	UserID     int64
	Online     bool
	LastSeen   int64 // unix ms
	ProducedAt int64 // unix ms, server-embedded
	ReceivedAt int64 // unix ms, local arrival
}

// PresenceLedger keeps per-user presence. Records are overwritten wholesale
// on each inbound event: last write wins by arrival order, not by embedded
// timestamp, because out-of-order delivery is possible and the server gives
// no ordering guarantee to improve on.
type PresenceLedger struct {
	mu      sync.RWMutex
	records map[int64]PresenceRecord
}

// NewPresenceLedger creates an empty ledger.
func NewPresenceLedger() *PresenceLedger {
	return &PresenceLedger{records: make(map[int64]PresenceRecord)}
}

// Overwrite replaces the record for rec.UserID unconditionally.
func (p *PresenceLedger) Overwrite(rec PresenceRecord) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.records[rec.UserID] = rec
}

// IsOnline reports the last known online flag for a user.
func (p *PresenceLedger) IsOnline(userID int64) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.records[userID].Online
}

// LastSeen returns the last-seen timestamp for a user, false if unknown.
func (p *PresenceLedger) LastSeen(userID int64) (int64, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	rec, ok := p.records[userID]
	return rec.LastSeen, ok
}
