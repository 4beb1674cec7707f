package device

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
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

// snapshot is one immutable version of the registry contents. It is never
// modified after being published; writers build a new one.
type snapshot struct {
	devices []Device       // insertion order
	index   map[string]int // id -> position in devices
}

var emptySnapshot = &snapshot{index: map[string]int{}}

// Change describes the effect of applying one event.
type Change struct {
	Previous Device
	Current  Device
	// Created is true when the event introduced a previously unseen device.
	Created bool
	// Fields are the payload fields the event carried.
	Fields Field
}

// Registry is the authoritative in-memory view of every known device.
//
// Readers load the current snapshot without locking and never observe a
// partially applied event. Writers are serialised, build the next snapshot
// from the current one, and publish it with a single atomic store. Events
// for one device are therefore applied in the order Apply is called.
//
// Devices are created on first sighting and never removed.
//
// All public methods are thread-safe.
type Registry struct {
	state   atomic.Pointer[snapshot]
	writeMu sync.Mutex
	// pending holds names given to devices not yet seen. Guarded by writeMu.
	pending map[string]string

	names  NameStore
	now    func() time.Time
	logger Logger
}

// NewRegistry creates an empty registry. names may be nil, in which case
// display names are derived from device IDs and renames are not persisted.
func NewRegistry(names NameStore) *Registry {
	r := &Registry{
		names:   names,
		now:     time.Now,
		logger:  noopLogger{},
		pending: make(map[string]string),
	}
	r.state.Store(emptySnapshot)
	return r
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// SetClock replaces the time source used for LastUpdate.
func (r *Registry) SetClock(now func() time.Time) {
	r.now = now
}

// ApplyEvent applies ev and returns the resulting device.
func (r *Registry) ApplyEvent(ctx context.Context, ev Event) Device {
	return r.Apply(ctx, ev).Current
}

// Apply applies ev and reports the device before and after the change.
//
// Only the fields carried by the event are written; other categories and
// the display name are left untouched. Connected is set and LastUpdate is
// refreshed on every event.
func (r *Registry) Apply(ctx context.Context, ev Event) Change {
	id := ev.DeviceID()

	// Resolve a saved name outside the write lock; it is only used if the
	// device is still unknown once the lock is held.
	var name string
	if _, known := r.Get(id); !known {
		name = r.initialName(ctx, id)
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	cur := r.state.Load()
	pos, exists := cur.index[id]

	var prev Device
	if exists {
		prev = cur.devices[pos]
	} else {
		// A rename that raced the name lookup above wins.
		if pendingName, ok := r.pending[id]; ok {
			name = pendingName
			delete(r.pending, id)
		}
		prev = Device{ID: id, Name: name}
		if prev.Name == "" {
			prev.Name = DefaultName(id)
		}
	}

	next := prev
	ev.apply(&next)
	next.Connected = true
	next.LastUpdate = r.nextTimestamp(prev.LastUpdate)

	devices := make([]Device, len(cur.devices), len(cur.devices)+1)
	copy(devices, cur.devices)

	index := cur.index
	if exists {
		devices[pos] = next
	} else {
		index = make(map[string]int, len(cur.index)+1)
		for k, v := range cur.index {
			index[k] = v
		}
		index[id] = len(devices)
		devices = append(devices, next)
	}

	r.state.Store(&snapshot{devices: devices, index: index})

	if !exists {
		r.logger.Info("device discovered", "device_id", id, "name", next.Name)
	}

	return Change{Previous: prev, Current: next, Created: !exists, Fields: ev.Fields()}
}

// nextTimestamp returns now in Unix ms, bumped past prev if the clock has
// not advanced.
func (r *Registry) nextTimestamp(prev int64) int64 {
	ts := r.now().UnixMilli()
	if ts <= prev {
		ts = prev + 1
	}
	return ts
}

// initialName looks up a saved display name for a new device. Lookup
// failures fall back to the derived name.
func (r *Registry) initialName(ctx context.Context, id string) string {
	if r.names == nil {
		return ""
	}
	name, ok, err := r.names.DeviceName(ctx, id)
	if err != nil {
		r.logger.Warn("loading saved device name", "device_id", id, "error", err)
		return ""
	}
	if !ok {
		return ""
	}
	return name
}

// Rename sets the display name of a device and persists it through the
// name store.
//
// Renaming an unknown device is not an error: the name is persisted and
// used when the device is first seen.
func (r *Registry) Rename(ctx context.Context, id, name string) error {
	if id == "" {
		return ErrInvalidID
	}
	name, err := normaliseName(name)
	if err != nil {
		return err
	}

	if r.names != nil {
		if err := r.names.SetDeviceName(ctx, id, name); err != nil {
			return fmt.Errorf("saving device name: %w", err)
		}
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	cur := r.state.Load()
	pos, exists := cur.index[id]
	if !exists {
		r.pending[id] = name
		return nil
	}

	devices := make([]Device, len(cur.devices))
	copy(devices, cur.devices)
	devices[pos].Name = name

	r.state.Store(&snapshot{devices: devices, index: cur.index})
	r.logger.Info("device renamed", "device_id", id, "name", name)
	return nil
}

// Get returns a copy of the device with the given ID.
func (r *Registry) Get(id string) (Device, bool) {
	cur := r.state.Load()
	pos, ok := cur.index[id]
	if !ok {
		return Device{}, false
	}
	return cur.devices[pos], true
}

// Snapshot returns a copy of every device in first-seen order.
func (r *Registry) Snapshot() []Device {
	cur := r.state.Load()
	devices := make([]Device, len(cur.devices))
	copy(devices, cur.devices)
	return devices
}

// Len returns the number of known devices.
func (r *Registry) Len() int {
	return len(r.state.Load().devices)
}

// Stale returns the devices that have not been updated within after,
// in first-seen order.
func (r *Registry) Stale(now time.Time, after time.Duration) []Device {
	var stale []Device
	for _, d := range r.state.Load().devices {
		if d.IsStale(now, after) {
			stale = append(stale, d)
		}
	}
	return stale
}
