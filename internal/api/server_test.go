package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/nerrad567/roomlink-core/internal/alert"
	"github.com/nerrad567/roomlink-core/internal/command"
	"github.com/nerrad567/roomlink-core/internal/device"
	"github.com/nerrad567/roomlink-core/internal/engine"
	"github.com/nerrad567/roomlink-core/internal/history"
	"github.com/nerrad567/roomlink-core/internal/infrastructure/config"
	"github.com/nerrad567/roomlink-core/internal/infrastructure/logging"
)

const testSecret = "test-secret-key-at-least-32-characters-long"

// ─── Test Doubles ──────────────────────────────────────────────────

type fakeCommander struct {
	mu     sync.Mutex
	err    error
	sent   []command.Params
	nextID int
}

func (f *fakeCommander) Send(deviceID string, params command.Params) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.sent = append(f.sent, params)
	f.nextID++
	return fmt.Sprintf("app_%03d", f.nextID), nil
}

func (f *fakeCommander) last() command.Params {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return nil
	}
	return f.sent[len(f.sent)-1]
}

type historyCall struct {
	deviceID string
	limit    int
	window   history.Window
}

type fakeHistory struct {
	mu      sync.Mutex
	records []history.Record
	err     error
	calls   []historyCall
}

func (f *fakeHistory) FetchWindow(_ context.Context, deviceID string, limit int, w history.Window) ([]history.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, historyCall{deviceID, limit, w})
	if f.err != nil {
		return []history.Record{}, f.err
	}
	return f.records, nil
}

type fakeSettings struct {
	mu         sync.Mutex
	thresholds alert.Thresholds
	enabled    bool
	readErr    error
	writeErr   error
}

func (f *fakeSettings) Thresholds(context.Context) (alert.Thresholds, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.thresholds, f.readErr
}

func (f *fakeSettings) SetThresholds(_ context.Context, t alert.Thresholds) error {
	if err := t.Validate(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	f.thresholds = t
	return nil
}

func (f *fakeSettings) AlertsEnabled(context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.enabled, f.readErr
}

func (f *fakeSettings) SetAlertsEnabled(_ context.Context, enabled bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	f.enabled = enabled
	return nil
}

type fakeStatus struct {
	status engine.Status
	stats  engine.Stats
}

func (f fakeStatus) Status() engine.Status { return f.status }
func (f fakeStatus) Stats() engine.Stats   { return f.stats }

// testFixture bundles a server with its doubles.
type testFixture struct {
	srv      *Server
	router   http.Handler
	registry *device.Registry
	commands *fakeCommander
	history  *fakeHistory
	settings *fakeSettings
	token    string
}

func newFixture(t *testing.T) *testFixture {
	t.Helper()

	log := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")
	f := &testFixture{
		registry: device.NewRegistry(nil),
		commands: &fakeCommander{},
		history:  &fakeHistory{},
		settings: &fakeSettings{
			thresholds: alert.Thresholds{Temperature: 30, Humidity: 70, Illuminance: 1000},
			enabled:    true,
		},
	}

	srv, err := New(Deps{
		Config: config.APIConfig{Host: "127.0.0.1", Port: 0},
		WS: config.WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Security: config.SecurityConfig{JWT: config.JWTConfig{Secret: testSecret}},
		Logger:   log,
		Registry: f.registry,
		Commands: f.commands,
		History:  f.history,
		Settings: f.settings,
		Status: fakeStatus{
			status: engine.Status{State: engine.StateConnected, Since: time.Unix(1_772_000_000, 0).UTC()},
			stats:  engine.Stats{Received: 7, Applied: 5, Dropped: 1, Ignored: 1, Alerts: 2},
		},
		StaleAfter: time.Minute,
		Version:    "test",
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go srv.hub.Run(ctx)

	f.srv = srv
	f.router = srv.buildRouter()
	f.token = signToken(t, jwt.SigningMethodHS256, testSecret, jwt.MapClaims{
		"sub": "user-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	return f
}

func signToken(t *testing.T, method jwt.SigningMethod, secret string, claims jwt.MapClaims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}
	return signed
}

// do sends an authenticated request through the router.
func (f *testFixture) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+f.token)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *testFixture) seed(ctx context.Context, id string, temperature float64) {
	f.registry.Apply(ctx, device.SensorUpdate{
		ID:      id,
		Sensors: device.Sensors{Temperature: temperature},
		Present: device.FieldTemperature,
	})
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("unmarshal %q: %v", w.Body.String(), err)
	}
	return v
}

// ─── Construction Tests ────────────────────────────────────────────

func TestNew_RequiresDependencies(t *testing.T) {
	log := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")
	full := Deps{
		Security: config.SecurityConfig{JWT: config.JWTConfig{Secret: testSecret}},
		Logger:   log,
		Registry: device.NewRegistry(nil),
		Commands: &fakeCommander{},
		History:  &fakeHistory{},
		Settings: &fakeSettings{},
	}

	tests := []struct {
		name   string
		mutate func(*Deps)
	}{
		{"no logger", func(d *Deps) { d.Logger = nil }},
		{"no registry", func(d *Deps) { d.Registry = nil }},
		{"no commands", func(d *Deps) { d.Commands = nil }},
		{"no history", func(d *Deps) { d.History = nil }},
		{"no settings", func(d *Deps) { d.Settings = nil }},
		{"no secret", func(d *Deps) { d.Security.JWT.Secret = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps := full
			tt.mutate(&deps)
			if _, err := New(deps); err == nil {
				t.Error("New() error = nil, want error")
			}
		})
	}

	srv, err := New(full)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if srv.Hub() == nil || !srv.ownHub {
		t.Error("New() without a hub should create its own")
	}
	if srv.staleAfter != defaultStaleAfter {
		t.Errorf("staleAfter = %v, want %v", srv.staleAfter, defaultStaleAfter)
	}

	shared := NewHub(config.WebSocketConfig{}, log)
	full.Hub = shared
	srv, err = New(full)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if srv.Hub() != shared || srv.ownHub {
		t.Error("New() should use the injected hub")
	}
}

// ─── Health Endpoint Tests ─────────────────────────────────────────

func TestHealth(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("health status = %d, want %d", w.Code, http.StatusOK)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}

	resp := decode[map[string]any](t, w)
	if resp["status"] != "ok" || resp["version"] != "test" {
		t.Errorf("health body = %v", resp)
	}
}

// ─── Middleware Tests ──────────────────────────────────────────────

func TestRequestID(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	if len(w.Header().Get("X-Request-ID")) != 36 {
		t.Errorf("generated X-Request-ID = %q, want a UUID", w.Header().Get("X-Request-ID"))
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "client-123")
	w = httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	if got := w.Header().Get("X-Request-ID"); got != "client-123" {
		t.Errorf("X-Request-ID = %q, want client-123", got)
	}
}

func TestCORS(t *testing.T) {
	f := newFixture(t)
	f.srv.cfg.CORS.AllowedOrigins = []string{"https://panel.example"}
	router := f.srv.buildRouter()

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/devices", nil)
	req.Header.Set("Origin", "https://panel.example")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://panel.example" {
		t.Errorf("Allow-Origin = %q", got)
	}

	req = httptest.NewRequest(http.MethodOptions, "/api/v1/devices", nil)
	req.Header.Set("Origin", "https://evil.example")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("Allow-Origin for unlisted origin = %q, want empty", got)
	}
}

func TestBodySizeLimit(t *testing.T) {
	f := newFixture(t)

	body := `{"name":"` + strings.Repeat("a", maxRequestBodySize) + `"}`
	w := f.do(http.MethodPatch, "/api/v1/devices/room1", body)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

// ─── Auth Tests ────────────────────────────────────────────────────

func TestAuth_RejectsInvalidTokens(t *testing.T) {
	f := newFixture(t)
	valid := jwt.MapClaims{"sub": "user-1", "exp": time.Now().Add(time.Hour).Unix()}

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"wrong scheme", "Basic dXNlcjpwYXNz"},
		{"empty bearer", "Bearer "},
		{"garbage", "Bearer not-a-jwt"},
		{"wrong secret", "Bearer " + signToken(t, jwt.SigningMethodHS256, "another-secret-of-at-least-32-chars!!", valid)},
		{"wrong algorithm", "Bearer " + signToken(t, jwt.SigningMethodHS512, testSecret, valid)},
		{"expired", "Bearer " + signToken(t, jwt.SigningMethodHS256, testSecret, jwt.MapClaims{
			"sub": "user-1",
			"exp": time.Now().Add(-time.Hour).Unix(),
		})},
		{"no subject", "Bearer " + signToken(t, jwt.SigningMethodHS256, testSecret, jwt.MapClaims{
			"exp": time.Now().Add(time.Hour).Unix(),
		})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/devices", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			f.router.ServeHTTP(w, req)

			if w.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
			}
			if resp := decode[Error](t, w); resp.Code != ErrCodeUnauthorized {
				t.Errorf("code = %q, want %q", resp.Code, ErrCodeUnauthorized)
			}
		})
	}
}

func TestAuth_IssuerAndAudience(t *testing.T) {
	f := newFixture(t)
	f.srv.secCfg.JWT.Issuer = "https://id.example"
	f.srv.secCfg.JWT.Audience = "roomlink"

	tests := []struct {
		name   string
		claims jwt.MapClaims
		want   int
	}{
		{"matching", jwt.MapClaims{"sub": "u", "iss": "https://id.example", "aud": "roomlink"}, http.StatusOK},
		{"wrong issuer", jwt.MapClaims{"sub": "u", "iss": "https://other.example", "aud": "roomlink"}, http.StatusUnauthorized},
		{"wrong audience", jwt.MapClaims{"sub": "u", "iss": "https://id.example", "aud": "other"}, http.StatusUnauthorized},
		{"no issuer", jwt.MapClaims{"sub": "u", "aud": "roomlink"}, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f.token = signToken(t, jwt.SigningMethodHS256, testSecret, tt.claims)
			if w := f.do(http.MethodGet, "/api/v1/devices", ""); w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestWSTicket_SingleUse(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodPost, "/api/v1/auth/ws-ticket", "")
	if w.Code != http.StatusOK {
		t.Fatalf("ticket status = %d, want %d", w.Code, http.StatusOK)
	}
	resp := decode[map[string]any](t, w)
	ticket, _ := resp["ticket"].(string)
	if len(ticket) != ticketBytes*2 {
		t.Fatalf("ticket = %q, want %d hex characters", ticket, ticketBytes*2)
	}

	subject, ok := f.srv.tickets.redeem(ticket)
	if !ok || subject != "user-1" {
		t.Errorf("first redeem = %q, %v; want user-1, true", subject, ok)
	}
	if _, ok := f.srv.tickets.redeem(ticket); ok {
		t.Error("second redeem should fail")
	}
}

func TestWSTicket_Expiry(t *testing.T) {
	store := newTicketStore()
	now := time.Unix(1_772_000_000, 0)
	store.now = func() time.Time { return now }

	expired := store.issue("user-1")
	now = now.Add(ticketTTL)
	live := store.issue("user-2")

	store.cleanExpired()
	if store.len() != 1 {
		t.Errorf("tickets after cleanup = %d, want 1", store.len())
	}
	if _, ok := store.redeem(expired); ok {
		t.Error("expired ticket redeemed")
	}

	now = now.Add(ticketTTL - time.Second)
	if subject, ok := store.redeem(live); !ok || subject != "user-2" {
		t.Errorf("redeem before expiry = %q, %v; want user-2, true", subject, ok)
	}
}

// ─── Device Tests ──────────────────────────────────────────────────

func TestListDevices(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodGet, "/api/v1/devices", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	empty := decode[deviceListResponse](t, w)
	if empty.Count != 0 || empty.Devices == nil {
		t.Errorf("empty list = %+v, want count 0 and a non-nil array", empty)
	}

	ctx := context.Background()
	f.seed(ctx, "kitchen", 21)
	f.seed(ctx, "living_room", 22)

	resp := decode[deviceListResponse](t, f.do(http.MethodGet, "/api/v1/devices", ""))
	if resp.Count != 2 {
		t.Fatalf("count = %d, want 2", resp.Count)
	}
	if resp.Devices[0].ID != "kitchen" || resp.Devices[1].Name != "Living Room" {
		t.Errorf("devices = %+v", resp.Devices)
	}
}

func TestGetDevice(t *testing.T) {
	f := newFixture(t)
	f.seed(context.Background(), "room1", 23.5)

	w := f.do(http.MethodGet, "/api/v1/devices/room1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	dev := decode[device.Device](t, w)
	if dev.ID != "room1" || dev.Sensors.Temperature != 23.5 || !dev.Connected {
		t.Errorf("device = %+v", dev)
	}

	if w := f.do(http.MethodGet, "/api/v1/devices/ghost", ""); w.Code != http.StatusNotFound {
		t.Errorf("unknown device status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestRenameDevice(t *testing.T) {
	f := newFixture(t)
	f.seed(context.Background(), "room1", 20)

	w := f.do(http.MethodPatch, "/api/v1/devices/room1", `{"name":"  Office  "}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	if dev := decode[device.Device](t, w); dev.Name != "Office" {
		t.Errorf("name = %q, want Office", dev.Name)
	}
	if dev, _ := f.registry.Get("room1"); dev.Name != "Office" {
		t.Errorf("registry name = %q, want Office", dev.Name)
	}

	// Unknown devices accept a name for later.
	w = f.do(http.MethodPatch, "/api/v1/devices/garage", `{"name":"Garage"}`)
	if w.Code != http.StatusAccepted {
		t.Errorf("unknown device status = %d, want %d", w.Code, http.StatusAccepted)
	}
}

func TestRenameDevice_Invalid(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		body string
		code string
	}{
		{"malformed", `{"name":`, ErrCodeBadRequest},
		{"missing name", `{}`, ErrCodeBadRequest},
		{"unknown field", `{"name":"x","room":"y"}`, ErrCodeBadRequest},
		{"blank name", `{"name":"   "}`, ErrCodeValidation},
		{"too long", `{"name":"` + strings.Repeat("x", device.MaxNameLength+1) + `"}`, ErrCodeValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(http.MethodPatch, "/api/v1/devices/room1", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
			}
			if resp := decode[Error](t, w); resp.Code != tt.code {
				t.Errorf("code = %q, want %q", resp.Code, tt.code)
			}
		})
	}
}

func TestListStaleDevices(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	start := time.Unix(1_772_000_000, 0)
	f.registry.SetClock(func() time.Time { return start })
	f.seed(ctx, "old", 20)
	f.registry.SetClock(func() time.Time { return start.Add(90 * time.Second) })
	f.seed(ctx, "fresh", 20)
	f.srv.now = func() time.Time { return start.Add(2 * time.Minute) }

	tests := []struct {
		query string
		want  []string
	}{
		{"", []string{"old"}}, // configured one minute
		{"?after=20", []string{"old", "fresh"}},
		{"?after=5m", []string{}},
		{"?after=100s", []string{"old"}},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			w := f.do(http.MethodGet, "/api/v1/devices/stale"+tt.query, "")
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d", w.Code)
			}
			resp := decode[deviceListResponse](t, w)
			var got []string
			for _, d := range resp.Devices {
				got = append(got, d.ID)
			}
			if fmt.Sprint(got) != fmt.Sprint(tt.want) || resp.Devices == nil {
				t.Errorf("stale = %v, want %v", got, tt.want)
			}
		})
	}

	for _, bad := range []string{"0", "-5", "soon", "-1m"} {
		if w := f.do(http.MethodGet, "/api/v1/devices/stale?after="+bad, ""); w.Code != http.StatusBadRequest {
			t.Errorf("after=%s status = %d, want %d", bad, w.Code, http.StatusBadRequest)
		}
	}
}

// ─── Command Tests ─────────────────────────────────────────────────

func TestDeviceCommand_Params(t *testing.T) {
	tests := []struct {
		name    string
		command string
		body    string
		want    command.Params
	}{
		{"light on", "light", `{"on":true}`, command.SetActuator{Actuator: command.ActuatorLight, On: true}},
		{"fan off", "fan", `{"on":false}`, command.SetActuator{Actuator: command.ActuatorFan, On: false}},
		{"ac on", "ac", `{"on":true}`, command.SetActuator{Actuator: command.ActuatorAC, On: true}},
		{"all", "all", `{"light":true,"fan":false,"ac":true}`, command.SetAllActuators{Light: true, AC: true}},
		{"mode", "mode", `{"master":true}`, command.SetMode{Master: true}},
		{"interval", "interval", `{"seconds":60}`, command.SetInterval{Seconds: 60}},
		{"interval clamped high", "interval", `{"seconds":99999}`, command.SetInterval{Seconds: command.MaxInterval}},
		{"interval clamped low", "interval", `{"seconds":1}`, command.SetInterval{Seconds: command.MinInterval}},
		{"reboot without body", "reboot", ``, command.Reboot{}},
		{"reboot with empty object", "reboot", `{}`, command.Reboot{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)

			w := f.do(http.MethodPost, "/api/v1/devices/room1/commands/"+tt.command, tt.body)
			if w.Code != http.StatusAccepted {
				t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusAccepted, w.Body.String())
			}
			resp := decode[commandResponse](t, w)
			if resp.CommandID != "app_001" || resp.DeviceID != "room1" || resp.Command != tt.want.Name() {
				t.Errorf("response = %+v", resp)
			}
			if got := f.commands.last(); got != tt.want {
				t.Errorf("params = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestDeviceCommand_InvalidBody(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		command string
		body    string
	}{
		{"light", ``},
		{"light", `{}`},
		{"light", `{"on":"yes"}`},
		{"all", `{"light":true,"fan":true}`},
		{"mode", `{"master":1}`},
		{"interval", `{"seconds":"ten"}`},
		{"interval", `{}`},
		{"reboot", `[1]`},
		{"fan", `{"on":true,"speed":3}`},
	}

	for _, tt := range tests {
		t.Run(tt.command+" "+tt.body, func(t *testing.T) {
			w := f.do(http.MethodPost, "/api/v1/devices/room1/commands/"+tt.command, tt.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
			}
		})
	}

	if f.commands.last() != nil {
		t.Error("no command should have been sent")
	}
}

func TestDeviceCommand_UnknownCommand(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodPost, "/api/v1/devices/room1/commands/heater", `{"on":true}`)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestDeviceCommand_SendErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not connected", command.ErrNotConnected, http.StatusServiceUnavailable},
		{"invalid device", command.ErrInvalidDeviceID, http.StatusBadRequest},
		{"invalid params", fmt.Errorf("%w: bad", command.ErrInvalidParams), http.StatusBadRequest},
		{"transport", errors.New("submitting command: boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.commands.err = tt.err

			w := f.do(http.MethodPost, "/api/v1/devices/room1/commands/light", `{"on":true}`)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

// recordingPublisher is a command.Publisher that keeps the last payload.
type recordingPublisher struct {
	connected bool
	topic     string
	payload   []byte
}

func (p *recordingPublisher) IsConnected() bool { return p.connected }

func (p *recordingPublisher) PublishAsync(topic string, payload []byte, _ byte, _ bool) error {
	p.topic, p.payload = topic, payload
	return nil
}

func TestDeviceCommand_ThroughDispatcher(t *testing.T) {
	f := newFixture(t)
	pub := &recordingPublisher{}
	f.srv.commands = command.NewDispatcher(pub, "esp32")

	// Disconnected: 503 and nothing published.
	w := f.do(http.MethodPost, "/api/v1/devices/room1/commands/light", `{"on":true}`)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("disconnected status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
	if pub.payload != nil {
		t.Fatal("published while disconnected")
	}

	pub.connected = true
	w = f.do(http.MethodPost, "/api/v1/devices/room1/commands/light", `{"on":true}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusAccepted)
	}
	if pub.topic != "esp32/room1/command" {
		t.Errorf("topic = %q", pub.topic)
	}
	want := `{"id":"app_001","command":"set_device","params":{"device":"light","state":1}}`
	if string(pub.payload) != want {
		t.Errorf("payload = %s, want %s", pub.payload, want)
	}

	if w := f.do(http.MethodPost, "/api/v1/devices/app/commands/reboot", ""); w.Code != http.StatusBadRequest {
		t.Errorf("reserved device status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

// ─── History Tests ─────────────────────────────────────────────────

func TestDeviceHistory(t *testing.T) {
	f := newFixture(t)
	f.history.records = []history.Record{
		{Timestamp: 1_772_000_000_000, Temperature: 21},
		{Timestamp: 1_772_000_060_000, Temperature: 22},
	}

	w := f.do(http.MethodGet, "/api/v1/devices/room1/history?limit=50&hours=24", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	resp := decode[historyResponse](t, w)
	if resp.DeviceID != "room1" || resp.Window != "24h" || resp.Count != 2 || len(resp.Records) != 2 {
		t.Errorf("response = %+v", resp)
	}

	call := f.history.calls[0]
	if call.deviceID != "room1" || call.limit != 50 || call.window != history.Hours(24) {
		t.Errorf("fetch call = %+v", call)
	}
}

func TestDeviceHistory_Defaults(t *testing.T) {
	f := newFixture(t)

	for _, path := range []string{"/api/v1/devices/room1/history", "/api/v1/devices/room1/history?hours=all"} {
		w := f.do(http.MethodGet, path, "")
		if w.Code != http.StatusOK {
			t.Fatalf("%s status = %d", path, w.Code)
		}
		resp := decode[historyResponse](t, w)
		if resp.Window != "all" || resp.Records == nil {
			t.Errorf("%s response = %+v", path, resp)
		}
	}

	for _, call := range f.history.calls {
		if call.limit != 0 || !call.window.IsAllTime() {
			t.Errorf("fetch call = %+v, want default limit and all time", call)
		}
	}
}

func TestDeviceHistory_InvalidQuery(t *testing.T) {
	f := newFixture(t)

	for _, q := range []string{"?limit=ten", "?limit=-1", "?hours=0", "?hours=-3", "?hours=soon"} {
		if w := f.do(http.MethodGet, "/api/v1/devices/room1/history"+q, ""); w.Code != http.StatusBadRequest {
			t.Errorf("%s status = %d, want %d", q, w.Code, http.StatusBadRequest)
		}
	}
	if len(f.history.calls) != 0 {
		t.Errorf("store called %d times for invalid queries", len(f.history.calls))
	}
}

func TestDeviceHistory_StoreFailure(t *testing.T) {
	f := newFixture(t)
	f.history.err = fmt.Errorf("%w: %w", history.ErrUnavailable, errors.New("connection refused"))

	w := f.do(http.MethodGet, "/api/v1/devices/room1/history", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}

	resp := decode[map[string]any](t, w)
	records, ok := resp["records"].([]any)
	if !ok || len(records) != 0 {
		t.Errorf("records = %#v, want an empty array", resp["records"])
	}
	if resp["error"] == "" || resp["error"] == nil {
		t.Error("error message missing")
	}
}

// ─── Settings Tests ────────────────────────────────────────────────

func TestThresholds(t *testing.T) {
	f := newFixture(t)

	got := decode[alert.Thresholds](t, f.do(http.MethodGet, "/api/v1/settings/thresholds", ""))
	if got != f.settings.thresholds {
		t.Errorf("GET thresholds = %+v", got)
	}

	w := f.do(http.MethodPut, "/api/v1/settings/thresholds", `{"temperature":28.5,"humidity":65,"illuminance":800}`)
	if w.Code != http.StatusOK {
		t.Fatalf("PUT status = %d: %s", w.Code, w.Body.String())
	}
	want := alert.Thresholds{Temperature: 28.5, Humidity: 65, Illuminance: 800}
	if got := decode[alert.Thresholds](t, w); got != want {
		t.Errorf("PUT response = %+v, want %+v", got, want)
	}
	if f.settings.thresholds != want {
		t.Errorf("saved = %+v, want %+v", f.settings.thresholds, want)
	}
}

func TestThresholds_Invalid(t *testing.T) {
	f := newFixture(t)
	before := f.settings.thresholds

	tests := []struct {
		name string
		body string
		code string
	}{
		{"partial", `{"temperature":25}`, ErrCodeBadRequest},
		{"wrong type", `{"temperature":"hot","humidity":1,"illuminance":1}`, ErrCodeBadRequest},
		{"negative", `{"temperature":-1,"humidity":1,"illuminance":1}`, ErrCodeValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(http.MethodPut, "/api/v1/settings/thresholds", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
			}
			if resp := decode[Error](t, w); resp.Code != tt.code {
				t.Errorf("code = %q, want %q", resp.Code, tt.code)
			}
		})
	}
	if f.settings.thresholds != before {
		t.Error("invalid input changed thresholds")
	}
}

func TestThresholds_StoreErrors(t *testing.T) {
	f := newFixture(t)
	f.settings.readErr = errors.New("disk I/O error")
	f.settings.writeErr = errors.New("disk I/O error")

	// Reads fall back to whatever the store returned alongside the error.
	if w := f.do(http.MethodGet, "/api/v1/settings/thresholds", ""); w.Code != http.StatusOK {
		t.Errorf("GET status = %d, want %d", w.Code, http.StatusOK)
	}
	w := f.do(http.MethodPut, "/api/v1/settings/thresholds", `{"temperature":1,"humidity":1,"illuminance":1}`)
	if w.Code != http.StatusInternalServerError {
		t.Errorf("PUT status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
}

func TestAlertsSetting(t *testing.T) {
	f := newFixture(t)

	resp := decode[map[string]bool](t, f.do(http.MethodGet, "/api/v1/settings/alerts", ""))
	if !resp["enabled"] {
		t.Errorf("GET alerts = %v, want enabled", resp)
	}

	w := f.do(http.MethodPut, "/api/v1/settings/alerts", `{"enabled":false}`)
	if w.Code != http.StatusOK {
		t.Fatalf("PUT status = %d", w.Code)
	}
	if f.settings.enabled {
		t.Error("alerts still enabled after PUT")
	}
	if resp := decode[map[string]bool](t, w); resp["enabled"] {
		t.Errorf("PUT response = %v", resp)
	}

	for _, body := range []string{`{}`, `{"enabled":"no"}`, `true`} {
		if w := f.do(http.MethodPut, "/api/v1/settings/alerts", body); w.Code != http.StatusBadRequest {
			t.Errorf("body %s status = %d, want %d", body, w.Code, http.StatusBadRequest)
		}
	}
}

// ─── Status Tests ──────────────────────────────────────────────────

func TestStatus(t *testing.T) {
	f := newFixture(t)
	f.seed(context.Background(), "room1", 20)

	w := f.do(http.MethodGet, "/api/v1/status", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	resp := decode[SystemStatus](t, w)

	if resp.Connection == nil || resp.Connection.State != engine.StateConnected {
		t.Errorf("connection = %+v", resp.Connection)
	}
	if resp.Messages == nil || resp.Messages.Received != 7 || resp.Messages.Alerts != 2 {
		t.Errorf("messages = %+v", resp.Messages)
	}
	if resp.Devices.Total != 1 || resp.Devices.Stale != 0 {
		t.Errorf("devices = %+v", resp.Devices)
	}
	if resp.Version != "test" || resp.Runtime.Goroutines == 0 {
		t.Errorf("version/runtime = %q/%+v", resp.Version, resp.Runtime)
	}
}

func TestStatus_WithoutEngine(t *testing.T) {
	f := newFixture(t)
	f.srv.status = nil

	resp := decode[SystemStatus](t, f.do(http.MethodGet, "/api/v1/status", ""))
	if resp.Connection != nil || resp.Messages != nil {
		t.Errorf("status without engine = %+v", resp)
	}
}
