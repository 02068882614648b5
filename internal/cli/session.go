package cli

import (
	"github.com/danish296/Code-Drop/internal/config"
	"github.com/danish296/Code-Drop/internal/signaling"
	"github.com/danish296/Code-Drop/internal/transfer"
)

// ConnectionContext bundles one live signaling connection with its
// event handler and the resolved configuration.
type ConnectionContext struct {
	Client  *signaling.Client
	Handler *signaling.Handler
	Config  *config.Config
}

// NewConnectionContext dials the relay and starts the event handler.
func NewConnectionContext(cfg *config.Config) (*ConnectionContext, error) {
	client := signaling.NewClient(cfg.WebSocketURL)
	if err := client.Connect(); err != nil {
		return nil, transfer.NewError("connect to server", err)
	}

	handler := signaling.NewHandler(client)
	go handler.Start()

	return &ConnectionContext{
		Client:  client,
		Handler: handler,
		Config:  cfg,
	}, nil
}

// Close drops the signaling connection. The handler drains and stops
// on its own once the socket dies.
func (c *ConnectionContext) Close() {
	if c.Client != nil {
		c.Client.Close()
	}
}

// LoadConfig resolves configuration from flags, environment, and
// defaults.
func LoadConfig(opts config.Options) (*config.Config, error) {
	cfg, err := config.Load(opts)
	if err != nil {
		return nil, transfer.NewError("load config", err)
	}
	return cfg, nil
}
