package link

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"
)

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

// writeIfaceCommand writes its interface argument to path.
func writeIfaceCommand(path string) []string {
	return []string{"sh", "-c", `printf %s "$1" > "$2"`, "sh", "{interface}", path}
}

func TestCommandReconnector_SubstitutesInterface(t *testing.T) {
	requireShell(t)
	out := filepath.Join(t.TempDir(), "iface")
	r := NewCommandReconnector(writeIfaceCommand(out), 5*time.Second, nil)

	if err := r.Reconnect("wlan0"); err != nil {
		t.Fatalf("Reconnect() error = %v", err)
	}
	r.wait()

	got, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("command output missing: %v", err)
	}
	if string(got) != "wlan0" {
		t.Errorf("command saw interface %q, want wlan0", got)
	}
}

func TestCommandReconnector_OneAtATime(t *testing.T) {
	requireShell(t)
	r := NewCommandReconnector([]string{"sh", "-c", "sleep 5"}, 200*time.Millisecond, nil)

	if err := r.Reconnect("wlan0"); err != nil {
		t.Fatalf("first Reconnect() error = %v", err)
	}
	if err := r.Reconnect("wlan0"); !errors.Is(err, ErrReconnectRunning) {
		t.Errorf("second Reconnect() error = %v, want ErrReconnectRunning", err)
	}

	start := time.Now()
	r.wait()
	if elapsed := time.Since(start); elapsed > 4*time.Second {
		t.Errorf("command not killed at timeout, ran %v", elapsed)
	}

	if err := r.Reconnect("wlan0"); err != nil {
		t.Errorf("Reconnect() after exit error = %v", err)
	}
	r.wait()
}

func TestCommandReconnector_StartFailure(t *testing.T) {
	tests := []struct {
		name string
		argv []string
	}{
		{"missing program", []string{"/nonexistent/liminal-reconnect"}},
		{"empty", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewCommandReconnector(tt.argv, time.Second, nil)
			if err := r.Reconnect("wlan0"); err == nil {
				t.Error("Reconnect() succeeded, want error")
			}
		})
	}
}

func TestMonitor_RunsReconnectCommandWhileDown(t *testing.T) {
	requireShell(t)
	out := filepath.Join(t.TempDir(), "iface")
	r := NewCommandReconnector(writeIfaceCommand(out), 5*time.Second, nil)

	m := NewMonitor(linkConfig(),
		WithSource(&fakeSource{obs: Observation{Interface: "wlan0"}}),
		WithReconnect(r.Reconnect),
	)
	m.Update(t0)
	r.wait()

	if got, err := os.ReadFile(out); err != nil || string(got) != "wlan0" {
		t.Errorf("reconnect command output = %q, %v", got, err)
	}
}
