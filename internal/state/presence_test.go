package state

import "testing"

func TestPresenceOverwriteLastArrivalWins(t *testing.T) {
	p := NewPresenceLedger()

	p.Overwrite(PresenceRecord{UserID: 5, Online: true, LastSeen: 9000, ReceivedAt: 100})
	// Older embedded timestamp arriving later still wins: overwrite is
	// unconditional by arrival order.
	p.Overwrite(PresenceRecord{UserID: 5, Online: false, LastSeen: 1000, ReceivedAt: 200})

	if p.IsOnline(5) {
		t.Error("online = true, want last-arrival value false")
	}
	seen, ok := p.LastSeen(5)
	if !ok || seen != 1000 {
		t.Errorf("last seen = %d/%v, want 1000/true", seen, ok)
	}
}

func TestPresenceUnknownUser(t *testing.T) {
	p := NewPresenceLedger()
	if p.IsOnline(1) {
		t.Error("unknown user reported online")
	}
	if _, ok := p.LastSeen(1); ok {
		t.Error("unknown user has last seen")
	}
}
