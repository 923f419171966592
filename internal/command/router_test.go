package command

import (
	"errors"
	"testing"
	"time"

	"github.com/liminal-dev/liminal-core/internal/hal"
	"github.com/liminal-dev/liminal-core/internal/peripheral"
)

const root = "liminal/commands/esp32-001"

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// recordingDispatcher records calls without touching hardware.
type recordingDispatcher struct {
	calls []string
	err   error
}

func (d *recordingDispatcher) HandleCommand(name string, _ peripheral.Command, _ time.Time) error {
	d.calls = append(d.calls, name)
	return d.err
}

func newTestRouter(t *testing.T, target Dispatcher) *Router {
	t.Helper()
	r, err := NewRouter(root, target)
	if err != nil {
		t.Fatalf("NewRouter() error = %v", err)
	}
	return r
}

func TestRouter_ExtractName(t *testing.T) {
	r := newTestRouter(t, &recordingDispatcher{})

	tests := []struct {
		topic   string
		want    string
		wantErr error
	}{
		{"liminal/commands/esp32-001/status_led", "status_led", nil},
		{"liminal/commands/esp32-001/leds/front/status_led", "status_led", nil},
		{"liminal/commands/esp32-002/status_led", "", ErrTopicMismatch},
		{"liminal/commands/esp32-0010/status_led", "", ErrTopicMismatch},
		{"other/commands/esp32-001/status_led", "", ErrTopicMismatch},
		{"liminal/commands/esp32-001", "", ErrEmptyName},
		{"liminal/commands/esp32-001/", "", ErrEmptyName},
		{"liminal/commands/esp32-001/leds/", "", ErrEmptyName},
	}

	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			got, err := r.ExtractName(tt.topic)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("ExtractName() error = %v, want %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ExtractName() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRouter_Parse(t *testing.T) {
	r := newTestRouter(t, &recordingDispatcher{})

	tests := []struct {
		name     string
		payload  string
		wantName string
		wantErr  error
	}{
		{"state", `{"state": true}`, "state", nil},
		{"toggle any value", `{"toggle": null}`, "toggle", nil},
		{"brightness", `{"brightness": 128}`, "brightness", nil},
		{"blink defaults", `{"blink": {}}`, "blink", nil},
		{"blink full", `{"blink": {"on_time": 200, "off_time": 300, "cycles": 4}}`, "blink", nil},
		{"stop blink", `{"stop_blink": true}`, "stop_blink", nil},
		{"state wins over toggle", `{"toggle": true, "state": false}`, "state", nil},
		{"not json", `state=on`, "", ErrMalformedPayload},
		{"empty", ``, "", ErrMalformedPayload},
		{"array", `[1,2]`, "", ErrInvalidPayload},
		{"state not bool", `{"state": "on"}`, "", ErrInvalidPayload},
		{"brightness too high", `{"brightness": 256}`, "", ErrInvalidPayload},
		{"negative on_time", `{"blink": {"on_time": -5}}`, "", ErrInvalidPayload},
		{"later field ignored", `{"state": true, "brightness": 999}`, "state", nil},
		{"later blink ignored", `{"state": true, "blink": {"on_time": -1}}`, "state", nil},
		{"unknown fields beside command", `{"color": "red", "toggle": 1}`, "toggle", nil},
		{"integral float brightness", `{"brightness": 3.0}`, "brightness", nil},
		{"fractional brightness", `{"brightness": 3.5}`, "", ErrInvalidPayload},
		{"on_time above a day", `{"blink": {"on_time": 86400001}}`, "", ErrInvalidPayload},
		{"on_time overflow", `{"blink": {"on_time": 18446744073710}}`, "", ErrInvalidPayload},
		{"on_time max int64", `{"blink": {"on_time": 9223372036854775807}}`, "", ErrInvalidPayload},
		{"state null", `{"state": null}`, "", ErrInvalidPayload},
		{"unrecognised field", `{"color": "red"}`, "", peripheral.ErrUnknownCommand},
		{"empty object", `{}`, "", peripheral.ErrUnknownCommand},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, err := r.Parse([]byte(tt.payload))
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Parse() error = %v, want %v", err, tt.wantErr)
			}
			if err == nil && cmd.Name() != tt.wantName {
				t.Errorf("Name() = %q, want %q", cmd.Name(), tt.wantName)
			}
		})
	}
}

func TestRouter_ParseBlinkDefaults(t *testing.T) {
	r := newTestRouter(t, &recordingDispatcher{})

	cmd, err := r.Parse([]byte(`{"blink": {"cycles": 3}}`))
	if err != nil {
		t.Fatal(err)
	}
	on, off, cycles := cmd.Blink.Params()
	if on != 500*time.Millisecond || off != 500*time.Millisecond || cycles != 3 {
		t.Errorf("Params() = %v, %v, %d; want 500ms, 500ms, 3", on, off, cycles)
	}
}

func TestRouter_ParseDecodesDecidingField(t *testing.T) {
	r := newTestRouter(t, &recordingDispatcher{})

	cmd, err := r.Parse([]byte(`{"state": true, "brightness": 999, "blink": {"on_time": -1}}`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cmd.State == nil || !*cmd.State {
		t.Errorf("State = %v, want true", cmd.State)
	}
	if cmd.Brightness != nil || cmd.Blink != nil {
		t.Errorf("ignored fields decoded: %+v", cmd)
	}

	cmd, err = r.Parse([]byte(`{"brightness": 3.0}`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cmd.Brightness == nil || *cmd.Brightness != 3 {
		t.Errorf("Brightness = %v, want 3", cmd.Brightness)
	}

	cmd, err = r.Parse([]byte(`{"blink": {"on_time": 86400000, "off_time": 250.0, "cycles": -1}}`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	on, off, cycles := cmd.Blink.Params()
	if on != 24*time.Hour || off != 250*time.Millisecond || cycles != -1 {
		t.Errorf("Params() = %v, %v, %d; want 24h, 250ms, -1", on, off, cycles)
	}
}

func TestRouter_RoutesFirstMatchDespiteInvalidLaterField(t *testing.T) {
	d := &recordingDispatcher{}
	r := newTestRouter(t, d)

	out, err := r.Route(root+"/status_led", []byte(`{"state": true, "brightness": 999}`), t0)
	if err != nil {
		t.Fatalf("Route() error = %v", err)
	}
	if out.Command != "state" || len(d.calls) != 1 {
		t.Errorf("Outcome = %+v, dispatcher calls = %v", out, d.calls)
	}
}

func TestRouter_FailuresNeverReachDispatcher(t *testing.T) {
	d := &recordingDispatcher{}
	r := newTestRouter(t, d)

	inputs := []struct{ topic, payload string }{
		{"elsewhere/status_led", `{"state": true}`},
		{root + "/status_led", `{not json`},
		{root + "/status_led", `{"state": 1}`},
		{root + "/status_led", `{"colour": "red"}`},
	}
	for _, in := range inputs {
		if _, err := r.Route(in.topic, []byte(in.payload), t0); err == nil {
			t.Errorf("Route(%q, %q) succeeded, want error", in.topic, in.payload)
		}
	}
	if len(d.calls) != 0 {
		t.Errorf("dispatcher called %d times, want 0", len(d.calls))
	}
}

func TestRouter_RouteToRegistry(t *testing.T) {
	sim := hal.NewSim()
	reg := peripheral.NewRegistry[peripheral.Actuator]("actuators")
	led := peripheral.NewOutput(peripheral.OutputConfig{Name: "status_led", Pin: 2}, sim)
	cold := peripheral.NewOutput(peripheral.OutputConfig{Name: "cold_led", Pin: 4}, sim)
	_ = reg.Add(led)
	_ = reg.Add(cold)
	if err := led.Initialize(t0); err != nil {
		t.Fatal(err)
	}

	r := newTestRouter(t, reg)

	out, err := r.Route(root+"/status_led", []byte(`{"state": true}`), t0)
	if err != nil {
		t.Fatalf("Route() error = %v", err)
	}
	if !led.State() {
		t.Error("state not applied")
	}
	if w, _ := sim.Pin(2).Last(); !w.High() {
		t.Error("output not asserted")
	}
	if out.Peripheral != "status_led" || out.Command != "state" || out.Err != nil {
		t.Errorf("Outcome = %+v", out)
	}

	_, err = r.Route(root+"/cold_led", []byte(`{"state": true}`), t0)
	if !errors.Is(err, peripheral.ErrNotReady) {
		t.Errorf("not-ready error = %v, want ErrNotReady", err)
	}
	if cold.State() {
		t.Error("not-ready actuator mutated")
	}

	out, err = r.Route(root+"/ghost", []byte(`{"state": true}`), t0)
	if !errors.Is(err, peripheral.ErrNotFound) {
		t.Errorf("not-found error = %v, want ErrNotFound", err)
	}
	if !errors.Is(out.Err, peripheral.ErrNotFound) {
		t.Errorf("Outcome.Err = %v, want ErrNotFound", out.Err)
	}
}

func TestRouter_OutcomeIDsAreUnique(t *testing.T) {
	r := newTestRouter(t, &recordingDispatcher{})

	a, _ := r.Route(root+"/x", []byte(`{"toggle": true}`), t0)
	b, _ := r.Route(root+"/x", []byte(`{"toggle": true}`), t0)
	if a.ID == b.ID {
		t.Error("two outcomes share a correlation ID")
	}
}

func TestRouter_Subscription(t *testing.T) {
	r := newTestRouter(t, &recordingDispatcher{})
	if got := r.Subscription(); got != root+"/#" {
		t.Errorf("Subscription() = %q, want %q", got, root+"/#")
	}
}
