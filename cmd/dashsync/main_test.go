package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-dashsync/internal/device"
	"github.com/nerrad567/gray-logic-dashsync/internal/devicesync"
)

// fakeBackend is a small in-memory device backend speaking the REST
// dialect the remote client expects.
type fakeBackend struct {
	srv *httptest.Server

	mu       sync.Mutex
	devices  []map[string]any
	requests []string
	bodies   map[string]string
	failIDs  map[string]int
	status   int
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	b := &fakeBackend{
		devices: []map[string]any{
			{"id": 1, "name": "Ceiling", "type": "light", "room": "Living", "isOn": false, "isOnline": true},
			{"id": 2, "name": "Lamp", "type": "light", "room": "Living", "isOn": true, "isOnline": true},
			{"id": 3, "name": "Thermostat", "type": "sensor", "room": "Hall", "value": 21.5, "unit": "C", "isOnline": true},
			{"id": 4, "name": "Porch", "type": "switch", "room": "", "isOn": false, "isOnline": true},
		},
		bodies:  make(map[string]string),
		failIDs: make(map[string]int),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/devices/{$}", func(w http.ResponseWriter, _ *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()
		writeTestJSON(w, http.StatusOK, b.devices)
	})
	mux.HandleFunc("PATCH /api/devices/{id}/", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			IsOn bool `json:"isOn"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeTestJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		b.mu.Lock()
		defer b.mu.Unlock()
		id := r.PathValue("id")
		if status, ok := b.failIDs[id]; ok {
			writeTestJSON(w, status, map[string]string{"error": "relay fault"})
			return
		}
		d := b.find(id)
		if d == nil {
			writeTestJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
			return
		}
		d["isOn"] = req.IsOn
		writeTestJSON(w, http.StatusOK, d)
	})
	mux.HandleFunc("POST /api/devices/batch_toggle/", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			IDs  []string `json:"ids"`
			IsOn bool     `json:"isOn"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeTestJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		b.mu.Lock()
		defer b.mu.Unlock()
		out := make([]map[string]any, 0, len(req.IDs))
		for _, id := range req.IDs {
			if d := b.find(id); d != nil {
				d["isOn"] = req.IsOn
				out = append(out, d)
			}
		}
		writeTestJSON(w, http.StatusOK, out)
	})
	mux.HandleFunc("POST /api/devices/sync/", func(w http.ResponseWriter, _ *http.Request) {
		writeTestJSON(w, http.StatusOK, map[string]any{
			"status":    "completed",
			"timestamp": "2026-03-01T12:00:00Z",
			"summary":   map[string]int{"total": 4, "new": 1, "updated": 2, "removed": 0},
		})
	})
	mux.HandleFunc("GET /api/scenes/{$}", func(w http.ResponseWriter, _ *http.Request) {
		writeTestJSON(w, http.StatusOK, []map[string]any{{"id": 7, "name": "Evening", "type": "lighting"}})
	})
	mux.HandleFunc("POST /api/scenes/{id}/execute/", func(w http.ResponseWriter, _ *http.Request) {
		writeTestJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("GET /api/nezu-routines/{$}", func(w http.ResponseWriter, _ *http.Request) {
		writeTestJSON(w, http.StatusOK, map[string]any{"results": []map[string]any{
			{"id": 3, "name": "Bedtime", "description": "All off", "is_active": true},
		}})
	})
	mux.HandleFunc("POST /api/nezu-routines/{id}/execute/", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	b.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body) //nolint:errcheck // test server
		r.Body = io.NopCloser(bytes.NewReader(body))

		key := r.Method + " " + r.URL.Path
		b.mu.Lock()
		b.requests = append(b.requests, key)
		b.bodies[key] = string(body)
		status := b.status
		b.mu.Unlock()

		if r.Header.Get("Authorization") != "Bearer test-token" {
			writeTestJSON(w, http.StatusUnauthorized, map[string]string{"detail": "bad token"})
			return
		}
		if status != 0 {
			writeTestJSON(w, status, map[string]string{"detail": "forced failure"})
			return
		}
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(b.srv.Close)
	return b
}

// find must be called with mu held.
func (b *fakeBackend) find(id string) map[string]any {
	for _, d := range b.devices {
		if fmt.Sprint(d["id"]) == id {
			return d
		}
	}
	return nil
}

func (b *fakeBackend) saw(key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, r := range b.requests {
		if r == key {
			return true
		}
	}
	return false
}

func (b *fakeBackend) body(key string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.bodies[key]
}

func (b *fakeBackend) setStatus(status int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.status = status
}

func writeTestJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // test server
}

type configOption func(*strings.Builder)

func withYAML(extra string) configOption {
	return func(sb *strings.Builder) { sb.WriteString(extra) }
}

// writeConfig writes a config file pointing at backend and returns its path.
func writeConfig(t *testing.T, backend *fakeBackend, opts ...configOption) string {
	t.Helper()
	dir := t.TempDir()

	var sb strings.Builder
	fmt.Fprintf(&sb, `backend:
  base_url: %q
  token: test-token
  timeout: 5
database:
  path: %q
logging:
  level: error
  format: text
  output: discard
`, backend.srv.URL+"/api/", filepath.Join(dir, "dashsync.db"))
	for _, opt := range opts {
		opt(&sb)
	}

	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(sb.String()), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func executeCommand(ctx context.Context, args ...string) (string, error) {
	var out, errOut bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	return out.String(), err
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return executeCommand(ctx, args...)
}

func TestVersionCommand(t *testing.T) {
	t.Setenv("DASHSYNC_CONFIG", "/nonexistent/config.yaml")

	out, err := run(t, "version")
	if err != nil {
		t.Fatalf("version command failed: %v", err)
	}
	if !strings.Contains(out, "dashsync version dev") {
		t.Errorf("output = %q", out)
	}
}

func TestRoot_ConfigErrors(t *testing.T) {
	b := newFakeBackend(t)
	cfg := writeConfig(t, b)

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"missing file", []string{"devices", "--config", "/nonexistent/config.yaml"}, "loading config"},
		{"bad output format", []string{"devices", "--config", cfg, "-o", "xml"}, "invalid output format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, tt.args...)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadConfig_FromEnvironment(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DASHSYNC_CONFIG", "")
	t.Setenv("DASHSYNC_BACKEND_URL", "http://hub.local:8000/api/")
	t.Setenv("DASHSYNC_BACKEND_TOKEN", "env-token")

	cfg, path, err := loadConfig("")
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}
	if path != "" {
		t.Errorf("path = %q, want none", path)
	}
	if cfg.Backend.Token != "env-token" {
		t.Errorf("token = %q", cfg.Backend.Token)
	}
}

func TestDevicesCommand(t *testing.T) {
	b := newFakeBackend(t)
	cfg := writeConfig(t, b)

	out, err := run(t, "devices", "--config", cfg)
	if err != nil {
		t.Fatalf("devices failed: %v", err)
	}
	for _, want := range []string{"ID", "STATE", "Ceiling", "Lamp"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	for _, unwanted := range []string{"Thermostat", "Porch"} {
		if strings.Contains(out, unwanted) {
			t.Errorf("filtered device %q listed:\n%s", unwanted, out)
		}
	}

	out, err = run(t, "devices", "--config", cfg, "--all", "-o", "json")
	if err != nil {
		t.Fatalf("devices --all failed: %v", err)
	}
	var devices []device.Device
	if err := json.Unmarshal([]byte(out), &devices); err != nil {
		t.Fatalf("decoding %q: %v", out, err)
	}
	if len(devices) != 4 {
		t.Errorf("got %d devices, want 4", len(devices))
	}
}

func TestToggleCommand_Journals(t *testing.T) {
	b := newFakeBackend(t)
	cfg := writeConfig(t, b)

	out, err := run(t, "toggle", "1", "on", "--config", cfg)
	if err != nil {
		t.Fatalf("toggle failed: %v", err)
	}
	if !strings.Contains(out, "Ceiling") || !strings.Contains(out, "on") {
		t.Errorf("output = %q", out)
	}
	if got := b.body("PATCH /api/devices/1/"); !strings.Contains(got, `"isOn":true`) {
		t.Errorf("backend body = %q", got)
	}

	out, err = run(t, "history", "--config", cfg, "-o", "json")
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	var records []devicesync.MutationRecord
	if err := json.Unmarshal([]byte(out), &records); err != nil {
		t.Fatalf("decoding %q: %v", out, err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	rec := records[0]
	if rec.Kind != devicesync.MutationToggle || rec.Outcome != devicesync.OutcomeApplied || strings.Join(rec.Targets, ",") != "1" {
		t.Errorf("record = %+v", rec)
	}
}

func TestToggleCommand_Errors(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		check   func(error) bool
		outcome devicesync.Outcome
	}{
		{
			name:  "bad state",
			args:  []string{"toggle", "1", "maybe"},
			check: func(err error) bool { return strings.Contains(err.Error(), "invalid state") },
		},
		{
			name:  "filtered device",
			args:  []string{"toggle", "3", "on"},
			check: func(err error) bool { return errors.Is(err, devicesync.ErrUnknownDevice) },
		},
		{
			name: "backend failure rolls back",
			args: []string{"toggle", "2", "off"},
			check: func(err error) bool {
				var netErr *devicesync.NetworkError
				return errors.As(err, &netErr)
			},
			outcome: devicesync.OutcomeRolledBack,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newFakeBackend(t)
			b.failIDs["2"] = http.StatusInternalServerError
			cfg := writeConfig(t, b)

			_, err := run(t, append(tt.args, "--config", cfg)...)
			if err == nil || !tt.check(err) {
				t.Fatalf("error = %v", err)
			}
			if tt.outcome == "" {
				return
			}

			out, err := run(t, "history", "--config", cfg, "-o", "json")
			if err != nil {
				t.Fatalf("history failed: %v", err)
			}
			var records []devicesync.MutationRecord
			if err := json.Unmarshal([]byte(out), &records); err != nil {
				t.Fatalf("decoding %q: %v", out, err)
			}
			if len(records) != 1 || records[0].Outcome != tt.outcome {
				t.Errorf("records = %+v, want one %s", records, tt.outcome)
			}
		})
	}
}

func TestBatchCommand(t *testing.T) {
	b := newFakeBackend(t)
	cfg := writeConfig(t, b)

	out, err := run(t, "batch", "off", "1", "2", "--config", cfg)
	if err != nil {
		t.Fatalf("batch failed: %v", err)
	}
	if !strings.Contains(out, "Ceiling") || !strings.Contains(out, "Lamp") {
		t.Errorf("output = %q", out)
	}
	body := b.body("POST /api/devices/batch_toggle/")
	if !strings.Contains(body, `"ids":["1","2"]`) || !strings.Contains(body, `"isOn":false`) {
		t.Errorf("backend body = %q", body)
	}
}

func TestCatalogCommands(t *testing.T) {
	b := newFakeBackend(t)
	cfg := writeConfig(t, b)

	tests := []struct {
		name    string
		args    []string
		want    []string
		request string
	}{
		{"list scenes", []string{"scene"}, []string{"NAME", "Evening"}, ""},
		{"execute scene", []string{"scene", "7"}, []string{`Scene "7" executed.`}, "POST /api/scenes/7/execute/"},
		{"list routines", []string{"routine"}, []string{"Bedtime", "yes"}, ""},
		{"execute routine as yaml", []string{"routine", "3", "-o", "yaml"}, []string{"kind: routine", "status: executed"}, "POST /api/nezu-routines/3/execute/"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := run(t, append(tt.args, "--config", cfg)...)
			if err != nil {
				t.Fatalf("command failed: %v", err)
			}
			for _, want := range tt.want {
				if !strings.Contains(out, want) {
					t.Errorf("output missing %q:\n%s", want, out)
				}
			}
			if tt.request != "" && !b.saw(tt.request) {
				t.Errorf("backend never saw %s", tt.request)
			}
		})
	}
}

func TestSyncCommand(t *testing.T) {
	b := newFakeBackend(t)
	cfg := writeConfig(t, b)

	out, err := run(t, "history", "last-sync", "--config", cfg)
	if err != nil {
		t.Fatalf("last-sync failed: %v", err)
	}
	if !strings.Contains(out, "No backend sync recorded.") {
		t.Errorf("output = %q", out)
	}

	out, err = run(t, "sync", "--config", cfg)
	if err != nil {
		t.Fatalf("sync failed: %v", err)
	}
	if !strings.Contains(out, "completed") {
		t.Errorf("output = %q", out)
	}

	out, err = run(t, "history", "last-sync", "--config", cfg, "-o", "json")
	if err != nil {
		t.Fatalf("last-sync failed: %v", err)
	}
	var rec devicesync.SyncRecord
	if err := json.Unmarshal([]byte(out), &rec); err != nil {
		t.Fatalf("decoding %q: %v", out, err)
	}
	if rec.Status != "completed" || rec.Summary.New != 1 {
		t.Errorf("record = %+v", rec)
	}
}

func TestHistoryCommand(t *testing.T) {
	b := newFakeBackend(t)

	t.Run("prune", func(t *testing.T) {
		out, err := run(t, "history", "prune", "--config", writeConfig(t, b))
		if err != nil {
			t.Fatalf("prune failed: %v", err)
		}
		if !strings.Contains(out, "Removed 0 journal entries") {
			t.Errorf("output = %q", out)
		}
	})

	t.Run("bad limit", func(t *testing.T) {
		_, err := run(t, "history", "--limit", "0", "--config", writeConfig(t, b))
		if err == nil || !strings.Contains(err.Error(), "--limit") {
			t.Errorf("error = %v", err)
		}
	})

	t.Run("journal disabled", func(t *testing.T) {
		cfg := writeConfig(t, b, withYAML("journal:\n  enabled: false\n"))
		_, err := run(t, "history", "--config", cfg)
		if err == nil || !strings.Contains(err.Error(), "journal is disabled") {
			t.Errorf("error = %v", err)
		}
	})
}

func TestAuthFailure(t *testing.T) {
	b := newFakeBackend(t)
	b.setStatus(http.StatusUnauthorized)

	_, err := run(t, "devices", "--config", writeConfig(t, b))
	if !devicesync.IsAuthError(err) {
		t.Errorf("error = %v, want an auth error", err)
	}
}

func TestServe(t *testing.T) {
	b := newFakeBackend(t)
	cfg := writeConfig(t, b, withYAML("api:\n  enabled: false\nsync:\n  poll_interval: 50ms\n"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		_, err := executeCommand(ctx, "serve", "--config", cfg)
		done <- err
	}()

	deadline := time.Now().Add(5 * time.Second)
	for !b.saw("GET /api/devices/") {
		if time.Now().After(deadline) {
			t.Fatal("serve never polled the backend")
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("serve returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not stop after cancel")
	}
}

func TestServe_StopsWhenSessionEnds(t *testing.T) {
	b := newFakeBackend(t)
	b.setStatus(http.StatusUnauthorized)
	cfg := writeConfig(t, b, withYAML("api:\n  enabled: false\n"))

	done := make(chan error, 1)
	go func() {
		_, err := executeCommand(context.Background(), "serve", "--config", cfg)
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("serve returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("serve kept running after the backend refused the token")
	}
}

func TestParseOnOff(t *testing.T) {
	tests := []struct {
		in      string
		want    bool
		wantErr bool
	}{
		{"on", true, false},
		{"ON", true, false},
		{"true", true, false},
		{"off", false, false},
		{"0", false, false},
		{"dim", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseOnOff(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseOnOff(%q) error = %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("parseOnOff(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}
