package device

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

// MockNameStore is a test implementation of NameStore.
type MockNameStore struct {
	mu      sync.Mutex
	names   map[string]string
	getErr  error
	saveErr error
}

func NewMockNameStore() *MockNameStore {
	return &MockNameStore{names: make(map[string]string)}
}

func (m *MockNameStore) DeviceName(_ context.Context, id string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return "", false, m.getErr
	}
	name, ok := m.names[id]
	return name, ok, nil
}

func (m *MockNameStore) SetDeviceName(_ context.Context, id, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.names[id] = name
	return nil
}

// fixedClock returns a clock that always reports t.
func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func sensorUpdate(id string, temp, hum float64, lux int) SensorUpdate {
	return SensorUpdate{
		ID:      id,
		Sensors: Sensors{Temperature: temp, Humidity: hum, Illuminance: lux},
		Present: FieldTemperature | FieldHumidity | FieldIlluminance,
	}
}

// =============================================================================
// Creation
// =============================================================================

func TestRegistry_Apply_CreatesDevice(t *testing.T) {
	ctx := context.Background()
	registry := NewRegistry(nil)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	registry.SetClock(fixedClock(now))

	change := registry.Apply(ctx, sensorUpdate("living_room", 21.5, 40, 300))

	if !change.Created {
		t.Error("Created = false, want true for first sighting")
	}
	d := change.Current
	if d.Name != "Living Room" {
		t.Errorf("Name = %q, want %q", d.Name, "Living Room")
	}
	if !d.Connected {
		t.Error("Connected = false, want true")
	}
	if d.LastUpdate != now.UnixMilli() {
		t.Errorf("LastUpdate = %d, want %d", d.LastUpdate, now.UnixMilli())
	}
	if d.Sensors.Temperature != 21.5 || d.Sensors.Humidity != 40 || d.Sensors.Illuminance != 300 {
		t.Errorf("Sensors = %+v, want {21.5 40 300}", d.Sensors)
	}
	if registry.Len() != 1 {
		t.Errorf("Len() = %d, want 1", registry.Len())
	}
}

func TestRegistry_Apply_UsesSavedName(t *testing.T) {
	ctx := context.Background()
	names := NewMockNameStore()
	names.names["room1"] = "Office"
	registry := NewRegistry(names)

	d := registry.ApplyEvent(ctx, sensorUpdate("room1", 20, 30, 10))

	if d.Name != "Office" {
		t.Errorf("Name = %q, want saved name %q", d.Name, "Office")
	}
}

func TestRegistry_Apply_NameLookupFailureFallsBack(t *testing.T) {
	ctx := context.Background()
	names := NewMockNameStore()
	names.getErr = errors.New("database locked")
	registry := NewRegistry(names)

	d := registry.ApplyEvent(ctx, sensorUpdate("guest-room", 20, 30, 10))

	if d.Name != "Guest Room" {
		t.Errorf("Name = %q, want derived name %q", d.Name, "Guest Room")
	}
}

// =============================================================================
// Partial and category-scoped updates
// =============================================================================

func TestRegistry_Apply_PartialSensorUpdate(t *testing.T) {
	ctx := context.Background()
	registry := NewRegistry(nil)

	registry.Apply(ctx, sensorUpdate("room1", 21, 45, 200))
	registry.Apply(ctx, ActuatorUpdate{
		ID:        "room1",
		Actuators: Actuators{Light: true, SamplingInterval: 30},
		Present:   FieldLight | FieldSamplingInterval,
	})
	registry.Apply(ctx, InfoUpdate{ID: "room1", Info: Info{IP: "10.0.0.5"}, Present: FieldIP})
	before, _ := registry.Get("room1")

	d := registry.ApplyEvent(ctx, SensorUpdate{
		ID:      "room1",
		Sensors: Sensors{Humidity: 55},
		Present: FieldHumidity,
	})

	if d.Sensors.Humidity != 55 {
		t.Errorf("Humidity = %v, want 55", d.Sensors.Humidity)
	}
	if d.Sensors.Temperature != 21 || d.Sensors.Illuminance != 200 {
		t.Errorf("absent sensor fields changed: %+v", d.Sensors)
	}
	if d.Actuators != before.Actuators {
		t.Errorf("Actuators changed: %+v, want %+v", d.Actuators, before.Actuators)
	}
	if d.Info != before.Info {
		t.Errorf("Info changed: %+v, want %+v", d.Info, before.Info)
	}
	if d.Name != before.Name {
		t.Errorf("Name changed: %q, want %q", d.Name, before.Name)
	}
}

func TestRegistry_Apply_Categories(t *testing.T) {
	tests := []struct {
		name  string
		event Event
		check func(t *testing.T, d Device)
	}{
		{
			name: "actuator update",
			event: ActuatorUpdate{
				ID:        "room1",
				Actuators: Actuators{Light: true, Fan: false, AC: true, MasterMode: true, SamplingInterval: 60},
				Present:   FieldLight | FieldFan | FieldAC | FieldMasterMode | FieldSamplingInterval,
			},
			check: func(t *testing.T, d Device) {
				want := Actuators{Light: true, AC: true, MasterMode: true, SamplingInterval: 60}
				if d.Actuators != want {
					t.Errorf("Actuators = %+v, want %+v", d.Actuators, want)
				}
			},
		},
		{
			name: "info update",
			event: InfoUpdate{
				ID:      "room1",
				Info:    Info{IP: "192.168.1.20", SSID: "home", Firmware: "1.2.0", MAC: "AA:BB:CC:DD:EE:FF"},
				Present: FieldIP | FieldSSID | FieldFirmware | FieldMAC,
			},
			check: func(t *testing.T, d Device) {
				if d.Info.Firmware != "1.2.0" || d.Info.MAC != "AA:BB:CC:DD:EE:FF" {
					t.Errorf("Info = %+v", d.Info)
				}
				if d.Sensors != (Sensors{}) {
					t.Errorf("Sensors = %+v, want zero", d.Sensors)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			registry := NewRegistry(nil)
			tt.check(t, registry.ApplyEvent(context.Background(), tt.event))
		})
	}
}

func TestRegistry_Apply_DoesNotTouchOtherDevices(t *testing.T) {
	ctx := context.Background()
	registry := NewRegistry(nil)
	registry.Apply(ctx, sensorUpdate("d1", 20, 40, 100))
	registry.Apply(ctx, sensorUpdate("d2", 25, 50, 200))
	d2Before, _ := registry.Get("d2")

	registry.Apply(ctx, ActuatorUpdate{ID: "d1", Actuators: Actuators{Fan: true}, Present: FieldFan})

	d2After, _ := registry.Get("d2")
	if d2After != d2Before {
		t.Errorf("d2 changed: %+v, want %+v", d2After, d2Before)
	}
}

// =============================================================================
// Timestamps and idempotence
// =============================================================================

func TestRegistry_Apply_IdempotentExceptLastUpdate(t *testing.T) {
	ctx := context.Background()
	registry := NewRegistry(nil)
	registry.SetClock(fixedClock(time.Unix(1_700_000_000, 0)))

	ev := sensorUpdate("room1", 22, 50, 150)
	first := registry.ApplyEvent(ctx, ev)
	second := registry.ApplyEvent(ctx, ev)
	third := registry.ApplyEvent(ctx, ev)

	if !(first.LastUpdate < second.LastUpdate && second.LastUpdate < third.LastUpdate) {
		t.Errorf("LastUpdate not strictly increasing: %d, %d, %d",
			first.LastUpdate, second.LastUpdate, third.LastUpdate)
	}

	first.LastUpdate, third.LastUpdate = 0, 0
	if first != third {
		t.Errorf("repeated apply changed state: %+v vs %+v", first, third)
	}
}

func TestRegistry_Apply_ClockGoesBackwards(t *testing.T) {
	ctx := context.Background()
	registry := NewRegistry(nil)
	now := time.Unix(1_700_000_000, 0)
	registry.SetClock(fixedClock(now))
	first := registry.ApplyEvent(ctx, sensorUpdate("room1", 1, 1, 1))

	registry.SetClock(fixedClock(now.Add(-time.Minute)))
	second := registry.ApplyEvent(ctx, sensorUpdate("room1", 1, 1, 1))

	if second.LastUpdate <= first.LastUpdate {
		t.Errorf("LastUpdate = %d, want > %d", second.LastUpdate, first.LastUpdate)
	}
}

// =============================================================================
// Rename
// =============================================================================

func TestRegistry_Rename(t *testing.T) {
	ctx := context.Background()
	names := NewMockNameStore()
	registry := NewRegistry(names)
	registry.Apply(ctx, sensorUpdate("room1", 20, 30, 40))
	before, _ := registry.Get("room1")

	if err := registry.Rename(ctx, "room1", "  Study  "); err != nil {
		t.Fatalf("Rename() error = %v", err)
	}

	d, _ := registry.Get("room1")
	if d.Name != "Study" {
		t.Errorf("Name = %q, want %q", d.Name, "Study")
	}
	if d.Sensors != before.Sensors || d.LastUpdate != before.LastUpdate {
		t.Error("Rename changed fields other than Name")
	}
	if names.names["room1"] != "Study" {
		t.Errorf("persisted name = %q, want %q", names.names["room1"], "Study")
	}
}

func TestRegistry_Rename_UnknownDevicePersists(t *testing.T) {
	ctx := context.Background()
	names := NewMockNameStore()
	registry := NewRegistry(names)

	if err := registry.Rename(ctx, "attic", "Loft"); err != nil {
		t.Fatalf("Rename() error = %v, want nil for unknown device", err)
	}
	if registry.Len() != 0 {
		t.Errorf("Len() = %d, want 0 (rename must not create devices)", registry.Len())
	}

	d := registry.ApplyEvent(ctx, sensorUpdate("attic", 18, 60, 0))
	if d.Name != "Loft" {
		t.Errorf("Name on first sighting = %q, want %q", d.Name, "Loft")
	}
}

// lookupHookStore runs onLookup the first time a name is looked up, before
// answering from the wrapped store.
type lookupHookStore struct {
	*MockNameStore
	once     sync.Once
	onLookup func()
}

func (s *lookupHookStore) DeviceName(ctx context.Context, id string) (string, bool, error) {
	name, ok, err := s.MockNameStore.DeviceName(ctx, id)
	s.once.Do(s.onLookup)
	return name, ok, err
}

func TestRegistry_Rename_DuringFirstSighting(t *testing.T) {
	ctx := context.Background()
	store := &lookupHookStore{MockNameStore: NewMockNameStore()}
	registry := NewRegistry(store)

	// The rename lands after the saved-name lookup and before the device
	// is created.
	store.onLookup = func() {
		if err := registry.Rename(ctx, "room1", "Kitchen"); err != nil {
			t.Errorf("Rename() error = %v", err)
		}
	}

	d := registry.ApplyEvent(ctx, sensorUpdate("room1", 21, 40, 100))
	if d.Name != "Kitchen" {
		t.Errorf("Name = %q, want %q", d.Name, "Kitchen")
	}
	if got, _ := registry.Get("room1"); got.Name != "Kitchen" {
		t.Errorf("registry name = %q, want %q", got.Name, "Kitchen")
	}

	// The pending name is consumed once.
	d = registry.ApplyEvent(ctx, sensorUpdate("room1", 22, 40, 100))
	if d.Name != "Kitchen" {
		t.Errorf("Name after second event = %q, want %q", d.Name, "Kitchen")
	}
	if len(registry.pending) != 0 {
		t.Errorf("pending names = %v, want none", registry.pending)
	}
}

func TestRegistry_Rename_Errors(t *testing.T) {
	ctx := context.Background()
	names := NewMockNameStore()
	registry := NewRegistry(names)
	registry.Apply(ctx, sensorUpdate("room1", 20, 30, 40))

	tests := []struct {
		name    string
		id      string
		newName string
		saveErr error
		wantErr error
	}{
		{name: "empty id", id: "", newName: "X", wantErr: ErrInvalidID},
		{name: "blank name", id: "room1", newName: "   ", wantErr: ErrInvalidName},
		{name: "too long", id: "room1", newName: string(make([]byte, MaxNameLength+1)), wantErr: ErrInvalidName},
		{name: "store failure", id: "room1", newName: "Den", saveErr: errors.New("disk full")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			names.saveErr = tt.saveErr
			defer func() { names.saveErr = nil }()

			err := registry.Rename(ctx, tt.id, tt.newName)
			if err == nil {
				t.Fatal("Rename() error = nil, want error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("Rename() error = %v, want %v", err, tt.wantErr)
			}
			if d, _ := registry.Get("room1"); d.Name != "Room1" {
				t.Errorf("Name = %q, want unchanged %q", d.Name, "Room1")
			}
		})
	}
}

// =============================================================================
// Reads
// =============================================================================

func TestRegistry_Snapshot_PreservesInsertionOrder(t *testing.T) {
	ctx := context.Background()
	registry := NewRegistry(nil)
	ids := []string{"zeta", "alpha", "mike"}
	for _, id := range ids {
		registry.Apply(ctx, sensorUpdate(id, 1, 1, 1))
	}
	// Updating an existing device must not move it.
	registry.Apply(ctx, sensorUpdate("zeta", 2, 2, 2))

	snap := registry.Snapshot()
	if len(snap) != len(ids) {
		t.Fatalf("len(Snapshot()) = %d, want %d", len(snap), len(ids))
	}
	for i, id := range ids {
		if snap[i].ID != id {
			t.Errorf("Snapshot()[%d].ID = %q, want %q", i, snap[i].ID, id)
		}
	}
}

func TestRegistry_Snapshot_IsIsolated(t *testing.T) {
	ctx := context.Background()
	registry := NewRegistry(nil)
	registry.Apply(ctx, sensorUpdate("room1", 20, 30, 40))

	snap := registry.Snapshot()
	snap[0].Name = "mutated"
	held := registry.Snapshot()

	registry.Apply(ctx, sensorUpdate("room1", 99, 99, 99))

	if d, _ := registry.Get("room1"); d.Name == "mutated" {
		t.Error("mutating a snapshot changed registry state")
	}
	if held[0].Sensors.Temperature != 20 {
		t.Errorf("held snapshot changed to %v after later apply", held[0].Sensors.Temperature)
	}
}

func TestRegistry_Get_Unknown(t *testing.T) {
	registry := NewRegistry(nil)
	if _, ok := registry.Get("missing"); ok {
		t.Error("Get() ok = true for unknown device")
	}
}

func TestRegistry_Stale(t *testing.T) {
	ctx := context.Background()
	registry := NewRegistry(nil)
	start := time.Unix(1_700_000_000, 0)

	registry.SetClock(fixedClock(start))
	registry.Apply(ctx, sensorUpdate("old", 1, 1, 1))
	registry.SetClock(fixedClock(start.Add(5 * time.Minute)))
	registry.Apply(ctx, sensorUpdate("fresh", 1, 1, 1))

	stale := registry.Stale(start.Add(6*time.Minute), 2*time.Minute)
	if len(stale) != 1 || stale[0].ID != "old" {
		t.Errorf("Stale() = %v, want only %q", stale, "old")
	}
	// Staleness is informational; the device stays connected.
	if d, _ := registry.Get("old"); !d.Connected {
		t.Error("stale device was marked disconnected")
	}
}

func TestDefaultName(t *testing.T) {
	tests := []struct {
		id   string
		want string
	}{
		{"living_room", "Living Room"},
		{"kitchen", "Kitchen"},
		{"guest-bed_room", "Guest Bed Room"},
		{"room1", "Room1"},
		{"__", "__"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			if got := DefaultName(tt.id); got != tt.want {
				t.Errorf("DefaultName(%q) = %q, want %q", tt.id, got, tt.want)
			}
		})
	}
}

// =============================================================================
// Concurrency
// =============================================================================

func TestRegistry_ConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	registry := NewRegistry(NewMockNameStore())

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(3)

		go func(n int) {
			defer wg.Done()
			registry.Apply(ctx, sensorUpdate(fmt.Sprintf("dev-%d", n%10), float64(n), float64(n), n))
		}(i)

		go func() {
			defer wg.Done()
			for _, d := range registry.Snapshot() {
				// Every field of one reading is written together, so a
				// reader must never see them disagree.
				if d.Sensors.Temperature != d.Sensors.Humidity {
					t.Errorf("torn read: %+v", d.Sensors)
				}
			}
		}()

		go func(n int) {
			defer wg.Done()
			registry.Rename(ctx, fmt.Sprintf("dev-%d", n%10), fmt.Sprintf("Device %d", n)) //nolint:errcheck // exercised for races
		}(i)
	}
	wg.Wait()

	if registry.Len() != 10 {
		t.Errorf("Len() = %d, want 10", registry.Len())
	}
}

func TestRegistry_SameDeviceOrdering(t *testing.T) {
	ctx := context.Background()
	registry := NewRegistry(nil)

	for i := 1; i <= 50; i++ {
		registry.Apply(ctx, SensorUpdate{ID: "room1", Sensors: Sensors{Illuminance: i}, Present: FieldIlluminance})
	}

	if d, _ := registry.Get("room1"); d.Sensors.Illuminance != 50 {
		t.Errorf("Illuminance = %d, want last applied 50", d.Sensors.Illuminance)
	}
}
