package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rickgao/quotefeed/internal/config"
	"github.com/rickgao/quotefeed/internal/feed"
	"github.com/rickgao/quotefeed/internal/model"
	"github.com/rickgao/quotefeed/internal/publish"
)

func TestLoadConfig_DefaultsAndOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quotefeed.yaml")
	yaml := `
session:
  sender_comp_id: CLIENT
  target_comp_id: SERVER
instruments: [EUR/USD]
`
	if err := os.WriteFile(path, []byte(yaml), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := loadConfig(path, "GBP/USD,USD/JPY")
	if err != nil {
		t.Fatalf("loadConfig() error: %v", err)
	}
	if len(cfg.Instruments) != 2 || cfg.Instruments[0] != "GBP/USD" {
		t.Errorf("Instruments = %v, want [GBP/USD USD/JPY]", cfg.Instruments)
	}
}

func TestLoadConfig_InvalidWithoutCompIDs(t *testing.T) {
	if _, err := loadConfig("", ""); err == nil {
		t.Error("loadConfig() expected validation error without comp ids")
	}
}

func TestHealthHandler(t *testing.T) {
	cfg := config.Default()
	cfg.Session.SenderCompID = "CLIENT"
	cfg.Session.TargetCompID = "SERVER"
	cfg.Instruments = []string{"EUR/USD", "GBP/USD"}

	client, err := feed.New(cfg, feed.Options{})
	if err != nil {
		t.Fatalf("feed.New() error: %v", err)
	}
	h := createHealthHandler(client, "/metrics")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d before logon", rec.Code, http.StatusServiceUnavailable)
	}

	var body struct {
		Status      string `json:"status"`
		Session     string `json:"session"`
		Instruments struct {
			Tested  int `json:"tested"`
			Pending int `json:"pending"`
		} `json:"instruments"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if body.Session != "disconnected" || body.Instruments.Tested != 2 || body.Instruments.Pending != 2 {
		t.Errorf("health = %+v", body)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "quotefeed_") {
		t.Errorf("metrics status = %d", rec.Code)
	}
}

func TestStartHubLoop_StopsOnlyWhenAsked(t *testing.T) {
	hub := publish.NewHub(nil)
	stopHub := startHubLoop(hub)
	defer stopHub()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := hub.Publish(ctx, model.NewLogoutEvent(time.Now())); err != nil {
		t.Fatalf("Publish() before stop = %v, want nil", err)
	}

	stopHub()
	stopHub()

	if err := hub.Publish(ctx, model.NewLogoutEvent(time.Now())); !errors.Is(err, publish.ErrHubStopped) {
		t.Errorf("Publish() after stop = %v, want ErrHubStopped", err)
	}
}
