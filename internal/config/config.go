package config

import (
	"fmt"
	"os"
	"time"
)

// Default client configuration (production).
const (
	DefaultDomain = "code-drop.onrender.com"
	DefaultSTUN   = "stun:stun.l.google.com:19302"
)

// Config holds client-side configuration.
type Config struct {
	// Domain is the relay server domain.
	Domain string

	// WebSocketURL is constructed from Domain unless overridden.
	WebSocketURL string

	// ICE servers for the peer connection.
	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string
}

// Options carries CLI flag overrides into Load.
type Options struct {
	Domain     string
	ServerURL  string
	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string
}

// Load resolves configuration with flag > env > default priority.
func Load(opts Options) (*Config, error) {
	domain := firstOf(opts.Domain, os.Getenv("CODEDROP_DOMAIN"), DefaultDomain)
	stun := firstOf(opts.STUNServer, os.Getenv("STUN_SERVER"), DefaultSTUN)
	turn := firstOf(opts.TURNServer, os.Getenv("TURN_SERVER"))
	turnUser := firstOf(opts.TURNUser, os.Getenv("TURN_USERNAME"))
	turnPass := firstOf(opts.TURNPass, os.Getenv("TURN_PASSWORD"))

	wsURL := firstOf(opts.ServerURL, os.Getenv("CODEDROP_SERVER_URL"))
	if wsURL == "" {
		wsURL = fmt.Sprintf("wss://%s/ws", domain)
	}

	return &Config{
		Domain:       domain,
		WebSocketURL: wsURL,
		STUNServer:   stun,
		TURNServer:   turn,
		TURNUser:     turnUser,
		TURNPass:     turnPass,
	}, nil
}

// RoomLink returns the web URL a browser peer can open for a code.
func (c *Config) RoomLink(code string) string {
	return fmt.Sprintf("https://%s/r/%s", c.Domain, code)
}

// STUNServers returns STUN URLs for the peer connection.
func (c *Config) STUNServers() []string {
	return []string{c.STUNServer}
}

// TURNServers returns TURN URLs if a TURN server is configured.
func (c *Config) TURNServers() []string {
	if c.TURNServer == "" {
		return nil
	}
	return []string{
		fmt.Sprintf("%s:3478?transport=udp", c.TURNServer),
		fmt.Sprintf("%s:3478?transport=tcp", c.TURNServer),
	}
}

// TURNCredentials returns the TURN username and password.
func (c *Config) TURNCredentials() (string, string) {
	return c.TURNUser, c.TURNPass
}

// ServerConfig holds server-side configuration, env-driven.
type ServerConfig struct {
	ListenAddr string
	StorageDir string
	Retention  time.Duration
}

// LoadServer resolves server configuration from the environment.
func LoadServer() *ServerConfig {
	addr := os.Getenv("LISTEN_ADDR")
	if addr == "" {
		if port := os.Getenv("PORT"); port != "" {
			addr = ":" + port
		} else {
			addr = ":8080"
		}
	}

	dir := firstOf(os.Getenv("STORAGE_DIR"), "uploads")

	retention := 24 * time.Hour
	if v := os.Getenv("UPLOAD_RETENTION"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			retention = d
		}
	}

	return &ServerConfig{ListenAddr: addr, StorageDir: dir, Retention: retention}
}

// firstOf returns the first non-empty value.
func firstOf(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
