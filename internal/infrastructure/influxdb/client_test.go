package influxdb

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/gray-logic-dashsync/internal/device"
	"github.com/nerrad567/gray-logic-dashsync/internal/infrastructure/config"
)

// fakeInflux answers /ping and captures line protocol posted to /api/v2/write.
type fakeInflux struct {
	mu    sync.Mutex
	lines []string
}

func newFakeInflux(t *testing.T) (*fakeInflux, *httptest.Server) {
	t.Helper()
	f := &fakeInflux{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ping":
			w.WriteHeader(http.StatusNoContent)
		case "/api/v2/write":
			body, _ := io.ReadAll(r.Body) //nolint:errcheck // test server
			f.mu.Lock()
			for _, line := range strings.Split(strings.TrimSpace(string(body)), "\n") {
				if line != "" {
					f.lines = append(f.lines, line)
				}
			}
			f.mu.Unlock()
			w.WriteHeader(http.StatusNoContent)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeInflux) written() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.lines...)
}

func testConfig(url string) config.InfluxDBConfig {
	return config.InfluxDBConfig{
		Enabled:       true,
		URL:           url,
		Token:         "test-token",
		Org:           "home",
		Bucket:        "dashsync",
		BatchSize:     100,
		FlushInterval: 60,
	}
}

func TestConnect_Disabled(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:8086")
	cfg.Enabled = false

	if _, err := Connect(context.Background(), cfg); !errors.Is(err, ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_Unreachable(t *testing.T) {
	_, srv := newFakeInflux(t)
	url := srv.URL
	srv.Close()

	if _, err := Connect(context.Background(), testConfig(url)); !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestClient_WriteDeviceState(t *testing.T) {
	fake, srv := newFakeInflux(t)
	c, err := Connect(context.Background(), testConfig(srv.URL))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer c.Close() //nolint:errcheck // test cleanup

	if err := c.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() = %v", err)
	}

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c.WriteDeviceState(device.Device{ID: "light-1", Type: device.TypeLight, Room: "Living", IsOn: true, IsOnline: true}, at)
	c.Flush()

	lines := fake.written()
	if len(lines) != 1 {
		t.Fatalf("lines = %v, want 1", lines)
	}
	for _, part := range []string{"device_state,", "device_id=light-1", "room=Living", "type=light", "is_on=1i", "online=1i"} {
		if !strings.Contains(lines[0], part) {
			t.Errorf("line %q missing %q", lines[0], part)
		}
	}
}

func TestClient_ClosedIsNoop(t *testing.T) {
	fake, srv := newFakeInflux(t)
	c, err := Connect(context.Background(), testConfig(srv.URL))
	if err != nil {
		t.Fatal(err)
	}

	if err := c.Close(); err != nil {
		t.Fatalf("Close() = %v", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("second Close() = %v", err)
	}

	c.WriteDeviceState(device.Device{ID: "x"}, time.Now())
	c.Flush()

	if len(fake.written()) != 0 {
		t.Error("writes after Close should be dropped")
	}
	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() after Close = %v, want ErrNotConnected", err)
	}

	var nilClient *Client
	if err := nilClient.Close(); err != nil || nilClient.IsConnected() {
		t.Error("nil client should be closed and inert")
	}
}

func TestDeviceStatePoint(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		device    device.Device
		wantValue any
		wantRoom  bool
	}{
		{"switch off", device.Device{ID: "s", Type: device.TypeSwitch, Room: "Hall"}, nil, true},
		{"sensor float", device.Device{ID: "t", Type: device.TypeSensor, Value: 21.5}, 21.5, false},
		{"sensor int", device.Device{ID: "t", Type: device.TypeSensor, Value: 3}, 3.0, false},
		{"json number", device.Device{ID: "t", Type: device.TypeSensor, Value: json.Number("4.25")}, 4.25, false},
		{"string value ignored", device.Device{ID: "l", Type: device.TypeLock, Value: "locked"}, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := deviceStatePoint(tt.device, at)
			if p.Name() != MeasurementDeviceState || !p.Time().Equal(at) {
				t.Errorf("point = %s @ %v", p.Name(), p.Time())
			}

			tags := tagMap(p)
			if tags["device_id"] != tt.device.ID || tags["type"] != string(tt.device.Type) {
				t.Errorf("tags = %v", tags)
			}
			if _, ok := tags["room"]; ok != tt.wantRoom {
				t.Errorf("room tag present = %v, want %v", ok, tt.wantRoom)
			}

			fields := fieldMap(p)
			if fields["is_on"] != int64(0) && fields["is_on"] != int64(1) {
				t.Errorf("is_on = %v", fields["is_on"])
			}
			if got, ok := fields["value"]; tt.wantValue == nil {
				if ok {
					t.Errorf("value = %v, want none", got)
				}
			} else if got != tt.wantValue {
				t.Errorf("value = %v, want %v", got, tt.wantValue)
			}
		})
	}
}

func tagMap(p *write.Point) map[string]string {
	out := make(map[string]string)
	for _, tag := range p.TagList() {
		out[tag.Key] = tag.Value
	}
	return out
}

func fieldMap(p *write.Point) map[string]any {
	out := make(map[string]any)
	for _, f := range p.FieldList() {
		out[f.Key] = f.Value
	}
	return out
}
