package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestNewPriceEvent(t *testing.T) {
	bid := decimal.RequireFromString("1.10000")
	ask := decimal.RequireFromString("1.10015")

	ev := NewPriceEvent("EUR/USD", bid, ask, time.Now())

	data, err := ev.JSON()
	if err != nil {
		t.Fatalf("JSON() error: %v", err)
	}

	var got map[string]any
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	want := map[string]float64{
		"bid":      1.1,
		"ask":      1.10015,
		"midprice": 1.100075,
		"spread":   0.00015,
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s = %v, want %v", k, got[k], v)
		}
	}
	if got["ticker"] != "EUR/USD" {
		t.Errorf("ticker = %v, want EUR/USD", got["ticker"])
	}
	if v, ok := got["err"]; !ok || v != nil {
		t.Errorf("err = %v (present=%v), want null", v, ok)
	}
	if ev.IsError() {
		t.Error("IsError() = true, want false")
	}
}

func TestNewErrorEvent(t *testing.T) {
	ev := NewErrorEvent(KindReject, "GBP/JPY", "Unknown symbol", time.Now())

	data, err := ev.JSON()
	if err != nil {
		t.Fatalf("JSON() error: %v", err)
	}

	want := `{"ticker":"GBP/JPY","bid":null,"ask":null,"midprice":null,"spread":null,"err":"Unknown symbol"}`
	if string(data) != want {
		t.Errorf("JSON() = %s, want %s", data, want)
	}
	if !ev.IsError() {
		t.Error("IsError() = false, want true")
	}
}

func TestNewLogoutEvent(t *testing.T) {
	ev := NewLogoutEvent(time.Now())

	if ev.Kind != KindLogout {
		t.Errorf("Kind = %q, want %q", ev.Kind, KindLogout)
	}
	if ev.Err == nil || *ev.Err != "LOGOUT" {
		t.Errorf("Err = %v, want LOGOUT", ev.Err)
	}
	if ev.Bid != nil || ev.Ask != nil || ev.Midprice != nil || ev.Spread != nil {
		t.Error("price fields should be nil on logout")
	}
}

func TestQuoteEqual(t *testing.T) {
	a := Quote{Bid: decimal.RequireFromString("1.10000"), Ask: decimal.RequireFromString("1.10015")}
	b := Quote{Bid: decimal.RequireFromString("1.1"), Ask: decimal.RequireFromString("1.10015")}
	c := Quote{Bid: decimal.RequireFromString("1.1"), Ask: decimal.RequireFromString("1.1002")}

	if !a.Equal(b) {
		t.Error("1.10000 and 1.1 should compare equal")
	}
	if a.Equal(c) {
		t.Error("different ask should not compare equal")
	}
}
