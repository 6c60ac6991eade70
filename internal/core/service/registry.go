package service

import (
	"sync"
	"time"

	"github.com/berfenger/crestron2mqtt/internal/core/domain"
	"github.com/berfenger/crestron2mqtt/internal/core/port"
	"github.com/berfenger/crestron2mqtt/pkg/crestron"

	"github.com/google/uuid"
)

type registryEntry struct {
	accessory port.Accessory
	entry     domain.AccessoryEntry
}

// Registry keeps the accessories known to the bridge, keyed by UUID.
// All methods are safe for concurrent use. Entries are never removed.
type Registry struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]*registryEntry
	order   []uuid.UUID
}

func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[uuid.UUID]*registryEntry),
	}
}

func (r *Registry) Get(id uuid.UUID) (port.Accessory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok {
		return nil, false
	}
	return e.accessory, true
}

// Add stores a new accessory. It returns false, leaving the registry untouched, if the UUID is taken.
func (r *Registry) Add(acc port.Accessory, device crestron.NormalizedDevice, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := acc.UUID()
	if _, ok := r.entries[id]; ok {
		return false
	}
	r.entries[id] = &registryEntry{
		accessory: acc,
		entry: domain.AccessoryEntry{
			UUID:           id,
			CrestronID:     device.ID,
			Domain:         device.Domain,
			Kind:           acc.Kind(),
			Name:           device.Name,
			State:          domain.ENTRY_STATE_REGISTERED,
			LastKnownState: device,
			LastSeen:       now,
		},
	}
	r.order = append(r.order, id)
	return true
}

func (r *Registry) MarkSynced(id uuid.UUID, device crestron.NormalizedDevice, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return
	}
	e.entry.State = domain.ENTRY_STATE_SYNCED
	e.entry.Name = device.Name
	e.entry.LastKnownState = device
	e.entry.LastSeen = now
}

// MarkStale flags every entry not in seen and returns the ones that just turned stale.
func (r *Registry) MarkStale(seen map[uuid.UUID]struct{}) []domain.AccessoryEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	var stale []domain.AccessoryEntry
	for _, id := range r.order {
		if _, ok := seen[id]; ok {
			continue
		}
		e := r.entries[id]
		if e.entry.State == domain.ENTRY_STATE_STALE {
			continue
		}
		e.entry.State = domain.ENTRY_STATE_STALE
		stale = append(stale, e.entry)
	}
	return stale
}

// Snapshot returns copies of all entries in insertion order.
func (r *Registry) Snapshot() []domain.AccessoryEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.AccessoryEntry, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.entries[id].entry)
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
