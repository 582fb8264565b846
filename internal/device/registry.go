package device

import (
	"reflect"
	"sort"
	"sync"
	"time"
)

// Logger defines the logging interface used by the Registry.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Listener receives a record snapshot after its state changed.
type Listener func(Record)

// Registry is the in-memory arena of device records.
//
// Records are appended on first sighting and updated in place afterwards;
// nothing is ever deleted. Listeners registered against a key are invoked
// synchronously, in registration order, whenever that record's state
// changes.
//
// All public methods are thread-safe.
type Registry struct {
	mu      sync.RWMutex
	arena   []*Record
	index   map[Key]int
	logger  Logger
	nextSub int
	subs    map[Key]map[int]Listener
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		index:  make(map[Key]int),
		subs:   make(map[Key]map[int]Listener),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// Upsert records a state observation for key.
//
// On first sighting the record is created with its derived ID, display
// name, and platform category. On subsequent sightings only the state and
// timestamps move. Listeners fire only when the state actually changed.
//
// Parameters:
//   - key: The device facet identity
//   - state: The decoded state value
//
// Returns:
//   - Record: Snapshot of the record after the update
//   - bool: Whether the stored state changed (always true on creation)
func (r *Registry) Upsert(key Key, state any) (Record, bool) {
	now := time.Now()

	r.mu.Lock()
	idx, exists := r.index[key]
	var rec *Record
	changed := false

	if !exists {
		rec = &Record{
			Key:       key,
			ID:        DeviceID(key),
			Name:      DisplayName(key),
			Category:  CategoryFor(key.DeviceType),
			State:     state,
			UpdatedAt: now,
			SeenAt:    now,
		}
		r.index[key] = len(r.arena)
		r.arena = append(r.arena, rec)
		changed = true
		r.logger.Info("device discovered",
			"id", rec.ID,
			"category", string(rec.Category))
	} else {
		rec = r.arena[idx]
		rec.SeenAt = now
		if !reflect.DeepEqual(rec.State, state) {
			rec.State = state
			rec.UpdatedAt = now
			changed = true
		}
	}

	snapshot := *rec
	var listeners []Listener
	if changed {
		listeners = r.listenersLocked(key)
	}
	r.mu.Unlock()

	for _, fn := range listeners {
		fn(snapshot)
	}
	return snapshot, changed
}

// listenersLocked returns key's listeners in registration order.
// Caller holds r.mu.
func (r *Registry) listenersLocked(key Key) []Listener {
	subs := r.subs[key]
	if len(subs) == 0 {
		return nil
	}
	handles := make([]int, 0, len(subs))
	for h := range subs {
		handles = append(handles, h)
	}
	sort.Ints(handles)
	listeners := make([]Listener, len(handles))
	for i, h := range handles {
		listeners[i] = subs[h]
	}
	return listeners
}

// Subscribe registers a listener for state changes of key. The listener
// may be registered before the device is first seen. The returned
// function removes the listener.
func (r *Registry) Subscribe(key Key, fn Listener) func() {
	r.mu.Lock()
	handle := r.nextSub
	r.nextSub++
	if r.subs[key] == nil {
		r.subs[key] = make(map[int]Listener)
	}
	r.subs[key][handle] = fn
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		delete(r.subs[key], handle)
		r.mu.Unlock()
	}
}

// Get returns the record for key.
//
// Returns:
//   - Record: Snapshot of the record
//   - error: ErrNotFound if the device has never been seen
func (r *Registry) Get(key Key) (Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	idx, ok := r.index[key]
	if !ok {
		return Record{}, ErrNotFound
	}
	return *r.arena[idx], nil
}

// GetByID returns the record with the given derived identifier.
func (r *Registry) GetByID(id string) (Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, rec := range r.arena {
		if rec.ID == id {
			return *rec, nil
		}
	}
	return Record{}, ErrNotFound
}

// List returns snapshots of all records in discovery order.
func (r *Registry) List() []Record {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Record, len(r.arena))
	for i, rec := range r.arena {
		out[i] = *rec
	}
	return out
}

// ListByCategory returns snapshots of all records surfacing under the
// given platform category, in discovery order.
func (r *Registry) ListByCategory(category Category) []Record {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Record
	for _, rec := range r.arena {
		if rec.Category == category {
			out = append(out, *rec)
		}
	}
	return out
}

// Count returns the number of known devices.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.arena)
}
