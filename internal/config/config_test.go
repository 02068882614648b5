package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(Options{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Domain != DefaultDomain {
		t.Fatalf("Domain = %q, want %q", cfg.Domain, DefaultDomain)
	}
	if want := "wss://" + DefaultDomain + "/ws"; cfg.WebSocketURL != want {
		t.Fatalf("WebSocketURL = %q, want %q", cfg.WebSocketURL, want)
	}
	if cfg.STUNServer != DefaultSTUN {
		t.Fatalf("STUNServer = %q, want %q", cfg.STUNServer, DefaultSTUN)
	}
	if cfg.TURNServers() != nil {
		t.Fatal("TURN servers configured by default")
	}
}

func TestLoadFlagBeatsEnv(t *testing.T) {
	t.Setenv("CODEDROP_DOMAIN", "env.example.com")
	t.Setenv("CODEDROP_SERVER_URL", "ws://env.example.com/ws")

	cfg, err := Load(Options{Domain: "flag.example.com"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Domain != "flag.example.com" {
		t.Fatalf("Domain = %q, flag should win over env", cfg.Domain)
	}
	// The explicit URL from the environment still applies when no flag
	// overrides it.
	if cfg.WebSocketURL != "ws://env.example.com/ws" {
		t.Fatalf("WebSocketURL = %q", cfg.WebSocketURL)
	}
}

func TestLoadEnvBeatsDefault(t *testing.T) {
	t.Setenv("CODEDROP_DOMAIN", "env.example.com")

	cfg, err := Load(Options{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Domain != "env.example.com" {
		t.Fatalf("Domain = %q, want env value", cfg.Domain)
	}
	if want := "wss://env.example.com/ws"; cfg.WebSocketURL != want {
		t.Fatalf("WebSocketURL = %q, want %q", cfg.WebSocketURL, want)
	}
}

func TestRoomLink(t *testing.T) {
	cfg, _ := Load(Options{Domain: "drop.example.com"})
	if got, want := cfg.RoomLink("4821"), "https://drop.example.com/r/4821"; got != want {
		t.Fatalf("RoomLink = %q, want %q", got, want)
	}
}

func TestTURNServerExpansion(t *testing.T) {
	cfg, err := Load(Options{
		TURNServer: "turn:relay.example.com",
		TURNUser:   "alice",
		TURNPass:   "secret",
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	servers := cfg.TURNServers()
	if len(servers) != 2 {
		t.Fatalf("TURNServers = %v, want udp and tcp variants", servers)
	}
	user, pass := cfg.TURNCredentials()
	if user != "alice" || pass != "secret" {
		t.Fatalf("credentials = %q/%q", user, pass)
	}
}

func TestLoadServer(t *testing.T) {
	t.Setenv("LISTEN_ADDR", "")
	t.Setenv("PORT", "9000")
	t.Setenv("STORAGE_DIR", "")
	t.Setenv("UPLOAD_RETENTION", "2h")

	cfg := LoadServer()
	if cfg.ListenAddr != ":9000" {
		t.Fatalf("ListenAddr = %q, want :9000", cfg.ListenAddr)
	}
	if cfg.StorageDir != "uploads" {
		t.Fatalf("StorageDir = %q, want uploads", cfg.StorageDir)
	}
	if cfg.Retention != 2*time.Hour {
		t.Fatalf("Retention = %v, want 2h", cfg.Retention)
	}
}

func TestLoadServerExplicitAddr(t *testing.T) {
	t.Setenv("LISTEN_ADDR", "127.0.0.1:8443")
	t.Setenv("PORT", "9000")

	cfg := LoadServer()
	if cfg.ListenAddr != "127.0.0.1:8443" {
		t.Fatalf("ListenAddr = %q, LISTEN_ADDR should win over PORT", cfg.ListenAddr)
	}
}
