package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dj-oyu/rdk-x5_camera-core/internal/config"
	"github.com/dj-oyu/rdk-x5_camera-core/internal/selector"
)

func newTestHub(t *testing.T) *Hub {
	t.Helper()
	cfg := &config.Config{
		ShmBaseDir:     t.TempDir(),
		DayFrameShm:    "/hub_test_day",
		NightFrameShm:  "/hub_test_night",
		ActiveFrameShm: "/hub_test_active",
		DetectionShm:   "/hub_test_detections",
		RingCapacity:   4,
		MaxFrameBytes:  1024,
		ReadRetryBound: 3,
		FrameInterval:  33 * time.Millisecond,
		Selector:       selector.DefaultConfig(),
	}
	hub, err := NewHub(cfg)
	if err != nil {
		t.Fatalf("NewHub() error = %v", err)
	}
	t.Cleanup(func() { hub.Shutdown(true) })
	return hub
}

func TestCameraStatusEndpoint(t *testing.T) {
	hub := newTestHub(t)
	srv := httptest.NewServer(hub.routes())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/camera_status")
	if err != nil {
		t.Fatalf("GET /api/camera_status error = %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var payload struct {
		Camera selector.Status `json:"camera"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Camera.Mode != "auto" {
		t.Fatalf("camera.mode = %q, want auto", payload.Camera.Mode)
	}
	if payload.Camera.State != "probing" {
		t.Fatalf("camera.state = %q, want probing", payload.Camera.State)
	}
}

func TestSwitchCameraEndpoint(t *testing.T) {
	hub := newTestHub(t)
	srv := httptest.NewServer(hub.routes())
	defer srv.Close()

	post := func(body string) (*http.Response, map[string]any) {
		t.Helper()
		resp, err := http.Post(srv.URL+"/api/debug/switch-camera", "application/json", strings.NewReader(body))
		if err != nil {
			t.Fatalf("POST /api/debug/switch-camera error = %v", err)
		}
		defer resp.Body.Close()
		var payload map[string]any
		if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		return resp, payload
	}

	resp, payload := post(`{"mode": "night"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if ok, _ := payload["ok"].(bool); !ok {
		t.Fatalf("ok = %v, want true", payload["ok"])
	}
	if st := hub.runtime.Status(); st.Mode != "manual" || st.ActiveCamera != "night" {
		t.Fatalf("Status() = (%s, %s), want (manual, night)", st.Mode, st.ActiveCamera)
	}

	resp, _ = post(`{"mode": "auto"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if st := hub.runtime.Status(); st.Mode != "auto" {
		t.Fatalf("Status().Mode = %q, want auto after resume", st.Mode)
	}

	resp, payload = post(`{"mode": "sideways"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for unknown mode", resp.StatusCode)
	}
	if msg, _ := payload["error"].(string); msg == "" {
		t.Fatal("error message missing for unknown mode")
	}

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/debug/switch-camera", nil)
	getResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /api/debug/switch-camera error = %v", err)
	}
	getResp.Body.Close()
	if getResp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405 for GET", getResp.StatusCode)
	}
}
