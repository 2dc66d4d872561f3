package database

import (
	"strings"
	"testing"

	"github.com/rickgao/quotefeed/internal/config"
)

func TestPoolConfig(t *testing.T) {
	tests := []struct {
		name         string
		cfg          config.DBConfig
		wantHost     string
		wantPort     uint16
		wantDB       string
		wantUser     string
		wantPassword string
		wantMin      int32
		wantMax      int32
	}{
		{
			name: "basic",
			cfg: config.DBConfig{
				Host: "localhost", Port: 5432, Name: "quotes",
				User: "feed", Password: "secret", SSLMode: "disable",
				MinConns: 1, MaxConns: 4,
			},
			wantHost: "localhost", wantPort: 5432, wantDB: "quotes",
			wantUser: "feed", wantPassword: "secret",
			wantMin: 1, wantMax: 4,
		},
		{
			name: "password with reserved characters",
			cfg: config.DBConfig{
				Host: "db.internal", Port: 6543, Name: "ticks",
				User: "feed", Password: "p@ss:w/rd?#%", SSLMode: "disable",
				MaxConns: 2,
			},
			wantHost: "db.internal", wantPort: 6543, wantDB: "ticks",
			wantUser: "feed", wantPassword: "p@ss:w/rd?#%",
			wantMin: 0, wantMax: 2,
		},
		{
			name: "ipv6 host",
			cfg: config.DBConfig{
				Host: "::1", Port: 5432, Name: "quotes",
				User: "feed", SSLMode: "disable", MaxConns: 3,
			},
			wantHost: "::1", wantPort: 5432, wantDB: "quotes",
			wantUser: "feed", wantPassword: "",
			wantMin: 0, wantMax: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := PoolConfig(tt.cfg)
			if err != nil {
				t.Fatalf("PoolConfig() error: %v", err)
			}
			cc := got.ConnConfig
			if cc.Host != tt.wantHost {
				t.Errorf("Host = %q, want %q", cc.Host, tt.wantHost)
			}
			if cc.Port != tt.wantPort {
				t.Errorf("Port = %d, want %d", cc.Port, tt.wantPort)
			}
			if cc.Database != tt.wantDB {
				t.Errorf("Database = %q, want %q", cc.Database, tt.wantDB)
			}
			if cc.User != tt.wantUser {
				t.Errorf("User = %q, want %q", cc.User, tt.wantUser)
			}
			if cc.Password != tt.wantPassword {
				t.Errorf("Password = %q, want %q", cc.Password, tt.wantPassword)
			}
			if app := cc.RuntimeParams["application_name"]; app != ApplicationName {
				t.Errorf("application_name = %q, want %q", app, ApplicationName)
			}
			if got.MinConns != tt.wantMin {
				t.Errorf("MinConns = %d, want %d", got.MinConns, tt.wantMin)
			}
			if got.MaxConns != tt.wantMax {
				t.Errorf("MaxConns = %d, want %d", got.MaxConns, tt.wantMax)
			}
		})
	}
}

func TestPoolConfig_DefaultSSLMode(t *testing.T) {
	// "prefer" yields a TLS attempt plus a plaintext fallback.
	got, err := PoolConfig(config.DBConfig{Host: "localhost", Port: 5432, Name: "quotes", User: "feed"})
	if err != nil {
		t.Fatalf("PoolConfig() error: %v", err)
	}
	if got.ConnConfig.TLSConfig == nil {
		t.Error("TLSConfig = nil, want TLS attempted under sslmode=prefer")
	}
	if len(got.ConnConfig.Fallbacks) != 1 || got.ConnConfig.Fallbacks[0].TLSConfig != nil {
		t.Errorf("Fallbacks = %+v, want one plaintext fallback", got.ConnConfig.Fallbacks)
	}
}

func TestPoolConfig_InvalidSSLModeRedactsPassword(t *testing.T) {
	_, err := PoolConfig(config.DBConfig{
		Host: "localhost", Port: 5432, Name: "quotes",
		User: "feed", Password: "hunter2", SSLMode: "bogus",
	})
	if err == nil {
		t.Fatal("PoolConfig() error = nil, want error for unknown sslmode")
	}
	if strings.Contains(err.Error(), "hunter2") {
		t.Errorf("error %q leaks the password", err)
	}
}
