package favorites

import (
	"errors"
	"sync"
	"time"
)

// ErrTogglePending indicates a toggle for the same item is still in flight.
var ErrTogglePending = errors.New("favorites: toggle already pending")

// Membership is the local view of one item's favorite state.
type Membership int

const (
	Absent Membership = iota
	PendingAdd
	PendingRemove
	Present
)

func (m Membership) String() string {
	switch m {
	case Absent:
		return "absent"
	case PendingAdd:
		return "pending-add"
	case PendingRemove:
		return "pending-remove"
	case Present:
		return "present"
	default:
		return "unknown"
	}
}

// Pending reports whether a toggle is in flight.
func (m Membership) Pending() bool {
	return m == PendingAdd || m == PendingRemove
}

// Intent is the store call a toggle resolves to.
type Intent int

const (
	IntentAdd Intent = iota + 1
	IntentRemove
)

// Tracker holds the membership of every item one user has seen. Absent items
// are not stored.
type Tracker struct {
	mu     sync.Mutex
	states map[int64]Membership
}

func NewTracker() *Tracker {
	return &Tracker{states: make(map[int64]Membership)}
}

// State returns the membership of itemID.
func (t *Tracker) State(itemID int64) Membership {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.states[itemID]
}

// Begin marks itemID pending and returns the store call to make. It fails
// with ErrTogglePending while a previous toggle has not finished.
func (t *Tracker) Begin(itemID int64) (Intent, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch t.states[itemID] {
	case PendingAdd, PendingRemove:
		return 0, ErrTogglePending
	case Present:
		t.states[itemID] = PendingRemove
		return IntentRemove, nil
	default:
		t.states[itemID] = PendingAdd
		return IntentAdd, nil
	}
}

// BeginRemove marks itemID pending removal whatever its settled state. It
// fails with ErrTogglePending while a toggle has not finished. A failed
// removal settles as Present until the next Sync.
func (t *Tracker) BeginRemove(itemID int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.states[itemID].Pending() {
		return ErrTogglePending
	}
	t.states[itemID] = PendingRemove
	return nil
}

// Finish settles a pending toggle: the new membership on success, the prior
// one on failure. Calling Finish for an item that is not pending does nothing.
func (t *Tracker) Finish(itemID int64, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch t.states[itemID] {
	case PendingAdd:
		if err == nil {
			t.states[itemID] = Present
		} else {
			delete(t.states, itemID)
		}
	case PendingRemove:
		if err == nil {
			delete(t.states, itemID)
		} else {
			t.states[itemID] = Present
		}
	}
}

// Sync replaces settled memberships with ids. Pending items keep their state.
func (t *Tracker) Sync(ids IDSet) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for itemID, state := range t.states {
		if state == Present && !ids.Has(itemID) {
			delete(t.states, itemID)
		}
	}
	for itemID := range ids {
		if !t.states[itemID].Pending() {
			t.states[itemID] = Present
		}
	}
}

// Apply records a change settled elsewhere, such as another session of the
// same user. Pending items keep their state.
func (t *Tracker) Apply(change Change) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.states[change.ItemID].Pending() {
		return
	}
	if change.Present {
		t.states[change.ItemID] = Present
	} else {
		delete(t.states, change.ItemID)
	}
}

// IDs returns the items currently stored remotely as far as this tracker
// knows: settled favorites plus those with a removal in flight.
func (t *Tracker) IDs() IDSet {
	t.mu.Lock()
	defer t.mu.Unlock()
	ids := make(IDSet, len(t.states))
	for itemID, state := range t.states {
		if state == Present || state == PendingRemove {
			ids[itemID] = struct{}{}
		}
	}
	return ids
}

// PendingIDs returns the items with a toggle in flight.
func (t *Tracker) PendingIDs() IDSet {
	t.mu.Lock()
	defer t.mu.Unlock()
	ids := make(IDSet)
	for itemID, state := range t.states {
		if state.Pending() {
			ids[itemID] = struct{}{}
		}
	}
	return ids
}

const defaultTrackerIdleTTL = 30 * time.Minute

// TrackerRegistryConfig controls how long unused trackers are kept.
type TrackerRegistryConfig struct {
	// IdleTTL is how long a tracker may go unused before it is dropped.
	IdleTTL time.Duration
	Clock   func() time.Time
}

type registryEntry struct {
	tracker  *Tracker
	lastUsed time.Time
}

// TrackerRegistry shares one Tracker per user across requests. Trackers idle
// past the TTL are dropped unless a toggle is in flight; a dropped user gets
// a fresh tracker, which pages sync from the store before use.
type TrackerRegistry struct {
	mu        sync.Mutex
	entries   map[string]*registryEntry
	idleTTL   time.Duration
	clock     func() time.Time
	lastSweep time.Time
}

func NewTrackerRegistry(cfg TrackerRegistryConfig) *TrackerRegistry {
	idleTTL := cfg.IdleTTL
	if idleTTL <= 0 {
		idleTTL = defaultTrackerIdleTTL
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &TrackerRegistry{
		entries:   make(map[string]*registryEntry),
		idleTTL:   idleTTL,
		clock:     clock,
		lastSweep: clock(),
	}
}

// For returns the tracker of userID, creating it on first use.
func (r *TrackerRegistry) For(userID string) *Tracker {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.clock()
	r.evictIdle(now)
	entry, ok := r.entries[userID]
	if !ok {
		entry = &registryEntry{tracker: NewTracker()}
		r.entries[userID] = entry
	}
	entry.lastUsed = now
	return entry.tracker
}

// Len reports how many users currently hold a tracker.
func (r *TrackerRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// evictIdle sweeps at most once per TTL. Callers hold r.mu.
func (r *TrackerRegistry) evictIdle(now time.Time) {
	if now.Sub(r.lastSweep) < r.idleTTL {
		return
	}
	r.lastSweep = now
	for userID, entry := range r.entries {
		if now.Sub(entry.lastUsed) < r.idleTTL {
			continue
		}
		if len(entry.tracker.PendingIDs()) > 0 {
			continue
		}
		delete(r.entries, userID)
	}
}
