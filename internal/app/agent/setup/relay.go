package setup

import (
	"fmt"
	"net/http"

	"clownetagent/internal/config"
	"clownetagent/internal/core/model"
	"clownetagent/internal/pkg/backoff"
	"clownetagent/internal/pkg/transport"
	"clownetagent/internal/pkg/version"
	"clownetagent/internal/service/client"
)

// SetupRelay 初始化中继连接模块
func SetupRelay(cfg *config.Config, identity model.AgentIdentity) (*RelayModule, error) {
	header := http.Header{}
	header.Set("User-Agent", version.GetUserAgent())

	dialer, err := transport.NewWebsocketDialer(transport.Options{
		URL:              cfg.Relay.URL,
		Proxy:            cfg.Relay.Proxy,
		HandshakeTimeout: cfg.Relay.HandshakeTimeout,
		WriteTimeout:     cfg.Relay.WriteTimeout,
		PingInterval:     cfg.Relay.PingInterval,
		Header:           header,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create relay dialer: %w", err)
	}

	dispatcher := client.NewDispatcher()
	policy := backoff.New(cfg.Relay.BaseBackoff, cfg.Relay.MaxBackoff, cfg.Relay.Jitter)

	connection := client.NewConnectionManager(client.ConnectionOptions{
		RelayURL:         cfg.Relay.URL,
		Token:            cfg.Relay.Token,
		Tenant:           cfg.Agent.Tenant,
		HandshakeTimeout: cfg.Relay.HandshakeTimeout,
	}, identity, dialer, dispatcher, policy)

	return &RelayModule{
		Dispatcher: dispatcher,
		Connection: connection,
	}, nil
}
